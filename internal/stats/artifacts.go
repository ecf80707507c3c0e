package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"ipdevolve/internal/model"
)

const runIndexFile = "run_index.json"

type TopGenome struct {
	Rank int `json:"rank"`
	model.MemberSummary
}

type RunArtifacts struct {
	Run         model.RunRecord            `json:"run"`
	Generations []model.GenerationSnapshot `json:"generations"`
	TopGenomes  []TopGenome                `json:"top_genomes"`
}

type RunIndexEntry struct {
	RunID             string  `json:"run_id"`
	Policy            string  `json:"policy"`
	PopulationSize    int     `json:"population_size"`
	Generations       int     `json:"generations"`
	Seed              int64   `json:"seed"`
	FinalAverageScore float64 `json:"final_average_score"`
	TerminationReason string  `json:"termination_reason"`
	CreatedAtUTC      string  `json:"created_at_utc"`
}

// RankMembers orders members by ascending score, then by age descending, and
// keeps at most limit of them. A limit <= 0 keeps all.
func RankMembers(members []model.MemberSummary, limit int) []TopGenome {
	sorted := append([]model.MemberSummary(nil), members...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score == sorted[j].Score {
			return sorted[i].Age > sorted[j].Age
		}
		return sorted[i].Score < sorted[j].Score
	})
	if limit > 0 && limit < len(sorted) {
		sorted = sorted[:limit]
	}
	top := make([]TopGenome, len(sorted))
	for i, m := range sorted {
		top[i] = TopGenome{Rank: i + 1, MemberSummary: m}
	}
	return top
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Run.ID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Run.ID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "run.json"), artifacts.Run); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "generations.json"), artifacts.Generations); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "top_genomes.json"), artifacts.TopGenomes); err != nil {
		return "", err
	}
	if err := WriteGenerationSeries(runDir, artifacts.Generations); err != nil {
		return "", err
	}
	return runDir, nil
}

func ReadRunRecord(baseDir, runID string) (model.RunRecord, bool, error) {
	var run model.RunRecord
	ok, err := readJSON(filepath.Join(baseDir, runID, "run.json"), &run)
	return run, ok, err
}

func ReadGenerations(baseDir, runID string) ([]model.GenerationSnapshot, bool, error) {
	var generations []model.GenerationSnapshot
	ok, err := readJSON(filepath.Join(baseDir, runID, "generations.json"), &generations)
	return generations, ok, err
}

func ReadTopGenomes(baseDir, runID string) ([]TopGenome, bool, error) {
	var top []TopGenome
	ok, err := readJSON(filepath.Join(baseDir, runID, "top_genomes.json"), &top)
	return top, ok, err
}

var seriesHeader = []string{"generation", "average_score", "distinct_genomes", "fraction_explored", "average_age", "mode"}

// WriteGenerationSeries writes one CSV row per generation for plotting.
func WriteGenerationSeries(runDir string, generations []model.GenerationSnapshot) (err error) {
	file, err := os.Create(filepath.Join(runDir, "generations.csv"))
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := file.Close(); err == nil {
			err = closeErr
		}
	}()

	writer := csv.NewWriter(file)
	if err := writer.Write(seriesHeader); err != nil {
		return err
	}
	for _, g := range generations {
		if err := writer.Write([]string{
			strconv.Itoa(g.Generation),
			strconv.FormatFloat(g.AverageScore, 'f', -1, 64),
			strconv.Itoa(g.DistinctGenomes),
			strconv.FormatFloat(g.FractionExplored, 'g', -1, 64),
			strconv.FormatFloat(g.AverageAge, 'f', -1, 64),
			string(g.Mode),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}
	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}
	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns entries newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	var entries []RunIndexEntry
	ok, err := readJSON(filepath.Join(baseDir, runIndexFile), &entries)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []RunIndexEntry{}, nil
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func readJSON(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, err
	}
	return true, nil
}
