package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"ipdevolve/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// CurrentVersion is the version stamp for newly written records.
func CurrentVersion() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeRun(run model.RunRecord) ([]byte, error) {
	return json.Marshal(run)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func EncodeSnapshot(snapshot model.GenerationSnapshot) ([]byte, error) {
	return json.Marshal(snapshot)
}

func DecodeSnapshot(data []byte) (model.GenerationSnapshot, error) {
	var snapshot model.GenerationSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return model.GenerationSnapshot{}, err
	}
	if err := checkVersion(snapshot.VersionedRecord); err != nil {
		return model.GenerationSnapshot{}, err
	}
	return snapshot, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return fmt.Errorf("%w: schema=%d codec=%d", ErrVersionMismatch, v.SchemaVersion, v.CodecVersion)
	}
	return nil
}

func validateRun(run model.RunRecord) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}
	return checkVersion(run.VersionedRecord)
}

func validateSnapshot(snapshot model.GenerationSnapshot) error {
	if snapshot.RunID == "" {
		return errors.New("snapshot run id is required")
	}
	if snapshot.Generation <= 0 {
		return fmt.Errorf("snapshot generation must be > 0, got %d", snapshot.Generation)
	}
	return checkVersion(snapshot.VersionedRecord)
}
