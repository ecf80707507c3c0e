package storage

import (
	"context"

	"ipdevolve/internal/model"
)

// Store persists run descriptions and the snapshots published after every
// generation. It is a write-mostly record for observers; runs are never
// resumed from it.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	AppendGeneration(ctx context.Context, snapshot model.GenerationSnapshot) error
	GetGenerations(ctx context.Context, runID string) ([]model.GenerationSnapshot, bool, error)
}
