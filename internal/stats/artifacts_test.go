package stats

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ipdevolve/internal/model"
)

func TestWriteAndReadRunArtifacts(t *testing.T) {
	baseDir := t.TempDir()
	members := []model.MemberSummary{
		{Genome: "110", Score: 1.8, Age: 1},
		{Genome: "111", Score: 1.0, Age: 3},
		{Genome: "101", Score: 1.0, Age: 5},
	}
	artifacts := RunArtifacts{
		Run: model.RunRecord{ID: "run-1", Policy: "score_threshold", PopulationSize: 3, Generations: 2},
		Generations: []model.GenerationSnapshot{
			{Generation: 1, AverageScore: 1.9, Mode: model.EvolutionRapid},
			{Generation: 2, AverageScore: 1.4, Mode: model.EvolutionGradual},
		},
		TopGenomes: RankMembers(members, 2),
	}

	runDir, err := WriteRunArtifacts(baseDir, artifacts)
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}
	for _, file := range []string{"run.json", "generations.json", "top_genomes.json", "generations.csv"} {
		if _, err := os.Stat(filepath.Join(runDir, file)); err != nil {
			t.Fatalf("expected file %s: %v", file, err)
		}
	}

	run, ok, err := ReadRunRecord(baseDir, "run-1")
	if err != nil || !ok {
		t.Fatalf("read run: ok=%t err=%v", ok, err)
	}
	if run.Policy != "score_threshold" || run.Generations != 2 {
		t.Fatalf("unexpected run record: %+v", run)
	}

	top, ok, err := ReadTopGenomes(baseDir, "run-1")
	if err != nil || !ok {
		t.Fatalf("read top genomes: ok=%t err=%v", ok, err)
	}
	if len(top) != 2 || top[0].Genome != "101" || top[1].Genome != "111" {
		t.Fatalf("unexpected ranking: %+v", top)
	}

}

func TestWriteGenerationSeries(t *testing.T) {
	runDir := t.TempDir()
	generations := []model.GenerationSnapshot{
		{Generation: 1, AverageScore: 1.9, DistinctGenomes: 40, FractionExplored: 1e-20, AverageAge: 0.5, Mode: model.EvolutionRapid},
		{Generation: 2, AverageScore: 1.4, DistinctGenomes: 52, FractionExplored: 2e-20, AverageAge: 1.25, Mode: model.EvolutionGradual},
	}
	if err := WriteGenerationSeries(runDir, generations); err != nil {
		t.Fatalf("write series: %v", err)
	}

	file, err := os.Open(filepath.Join(runDir, "generations.csv"))
	if err != nil {
		t.Fatalf("open series: %v", err)
	}
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("read series: %v", err)
	}
	if len(rows) != 3 || strings.Join(rows[0], ",") != strings.Join(seriesHeader, ",") {
		t.Fatalf("unexpected series rows: %v", rows)
	}
	if got := strings.Join(rows[2], ","); got != "2,1.4,52,2e-20,1.25,"+string(model.EvolutionGradual) {
		t.Fatalf("unexpected second row: %s", got)
	}

	if err := WriteGenerationSeries(filepath.Join(runDir, "missing"), generations); err == nil {
		t.Fatal("expected error for a missing run directory")
	}
}

func TestReadMissingArtifacts(t *testing.T) {
	baseDir := t.TempDir()
	if _, ok, err := ReadRunRecord(baseDir, "missing"); ok || err != nil {
		t.Fatalf("expected missing run, ok=%t err=%v", ok, err)
	}
	if _, ok, err := ReadGenerations(baseDir, "missing"); ok || err != nil {
		t.Fatalf("expected missing generations, ok=%t err=%v", ok, err)
	}
	if _, err := WriteRunArtifacts(baseDir, RunArtifacts{}); err == nil {
		t.Fatal("expected run id error")
	}
}

func TestRunIndexNewestFirst(t *testing.T) {
	baseDir := t.TempDir()
	entries := []RunIndexEntry{
		{RunID: "a", CreatedAtUTC: "2026-01-01T00:00:00Z"},
		{RunID: "b", CreatedAtUTC: "2026-01-02T00:00:00Z"},
	}
	for _, e := range entries {
		if err := AppendRunIndex(baseDir, e); err != nil {
			t.Fatalf("append %s: %v", e.RunID, err)
		}
	}
	if err := AppendRunIndex(baseDir, RunIndexEntry{RunID: "a", CreatedAtUTC: "2026-01-03T00:00:00Z", Generations: 9}); err != nil {
		t.Fatalf("replace a: %v", err)
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(index) != 2 || index[0].RunID != "a" || index[0].Generations != 9 {
		t.Fatalf("unexpected index: %+v", index)
	}
	if err := AppendRunIndex(baseDir, RunIndexEntry{}); err == nil {
		t.Fatal("expected run id error")
	}
}
