package evo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"testing"

	"ipdevolve/internal/agent"
	"ipdevolve/internal/decision"
	"ipdevolve/internal/game"
	"ipdevolve/internal/model"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type collectingObserver struct {
	mu        sync.Mutex
	snapshots []model.GenerationSnapshot
}

func (o *collectingObserver) ObserveGeneration(_ context.Context, s model.GenerationSnapshot) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.snapshots = append(o.snapshots, s)
	return nil
}

func TestPopulationMonitorValidation(t *testing.T) {
	if _, err := NewPopulationMonitor(MonitorConfig{PopulationSize: 3, Generations: 1}); !errors.Is(err, ErrPairingInvariant) {
		t.Fatalf("expected odd population error, got %v", err)
	}
	if _, err := NewPopulationMonitor(MonitorConfig{PopulationSize: 4}); err == nil {
		t.Fatal("expected generation ceiling error")
	}
	if _, err := NewPopulationMonitor(MonitorConfig{PopulationSize: 4, Generations: 1, Depth: 9}); err == nil {
		t.Fatal("expected depth error")
	}
	if _, err := NewPopulationMonitor(MonitorConfig{PopulationSize: 4, Generations: 1, Rounds: game.RoundRange{Min: 5, Max: 2}}); err == nil {
		t.Fatal("expected round range error")
	}
	m, err := NewPopulationMonitor(MonitorConfig{PopulationSize: 4, Generations: 1, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	cfg := m.Config()
	if cfg.Depth != decision.DefaultDepth || cfg.MutationFrequency != 10000 || cfg.Rounds != game.DefaultRoundRange() || cfg.Policy.Name() != ScoreThresholdName {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if m.Status() != model.StatusSetup {
		t.Fatalf("expected setup status, got %s", m.Status())
	}
}

func TestPopulationMonitorRunsToCeiling(t *testing.T) {
	observer := &collectingObserver{}
	m, err := NewPopulationMonitor(MonitorConfig{
		RunID:          "run-1",
		PopulationSize: 20,
		Rounds:         game.RoundRange{Min: 5, Max: 10},
		Generations:    4,
		Workers:        3,
		Seed:           11,
		Controls:       true,
		Observers:      []Observer{observer},
		Logger:         quietLogger(),
	})
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	result, err := m.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if m.Status() != model.StatusFinished {
		t.Fatalf("expected finished status, got %s", m.Status())
	}
	if len(result.FinalPopulation) != 20 {
		t.Fatalf("expected 20 members, got %d", len(result.FinalPopulation))
	}
	if len(result.Generations) == 0 || len(result.Generations) > 4 {
		t.Fatalf("unexpected generation count %d", len(result.Generations))
	}
	if len(observer.snapshots) != len(result.Generations) {
		t.Fatalf("observer saw %d snapshots, want %d", len(observer.snapshots), len(result.Generations))
	}

	for i, s := range result.Generations {
		if s.Generation != i+1 || s.PopulationSize != 20 || s.RunID != "run-1" {
			t.Fatalf("unexpected snapshot header: %+v", s)
		}
		if s.AverageScore < OptimalScore || s.AverageScore > 3 {
			t.Fatalf("average score out of range: %f", s.AverageScore)
		}
		if s.DistinctGenomes < 1 || s.DistinctGenomes > 20 || s.GenomesExplored < s.DistinctGenomes {
			t.Fatalf("unexpected diversity counts: %+v", s)
		}
		if s.DecisionSpaceBits != 85 || s.FractionExplored <= 0 {
			t.Fatalf("unexpected explored fraction: %+v", s)
		}
		if len(s.Controls) != len(ControlOpponents()) {
			t.Fatalf("expected %d control scores, got %d", len(ControlOpponents()), len(s.Controls))
		}
		if c, ok := s.Control(agent.AlwaysCooperateName); !ok || c.WinPercent != 100 {
			t.Fatalf("every strategy ties or beats always cooperate: %+v", c)
		}
		if c, ok := s.Control(agent.AlwaysDefectName); !ok || c.AverageScore < 2 {
			t.Fatalf("nobody scores below punishment against always defect: %+v", c)
		}
	}
	final, _ := result.Final()
	if final.Status != model.StatusFinished || final.TerminationReason != result.TerminationReason {
		t.Fatalf("expected final snapshot to carry termination: %+v", final)
	}
	latest, ok := m.Latest()
	if !ok || latest.Generation != final.Generation {
		t.Fatalf("expected latest snapshot to match final: %+v", latest)
	}
	wantMatches := int64(len(result.Generations) * (10 + 20*len(ControlOpponents())))
	if result.CompletedMatches != wantMatches {
		t.Fatalf("expected %d matches, got %d", wantMatches, result.CompletedMatches)
	}
	if _, err := m.Run(context.Background(), nil); !errors.Is(err, ErrMonitorStarted) {
		t.Fatalf("expected monitor started error, got %v", err)
	}
}

func TestPopulationMonitorStopsAtOptimum(t *testing.T) {
	idx := decision.MustNew(decision.DefaultDepth)
	bits := make([]string, 6)
	for i := range bits {
		bits[i] = strings.Repeat("1", idx.Size())
	}
	initial, err := PopulationFromBitStrings(bits, idx)
	if err != nil {
		t.Fatalf("initial: %v", err)
	}
	m, err := NewPopulationMonitor(MonitorConfig{
		PopulationSize:    6,
		Rounds:            game.RoundRange{Min: 3, Max: 3},
		MutationFrequency: 1 << 30,
		Generations:       50,
		Logger:            quietLogger(),
	})
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	result, err := m.Run(context.Background(), initial)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.TerminationReason != TerminationOptimum || len(result.Generations) != 1 {
		t.Fatalf("expected optimum after one generation, got %s after %d", result.TerminationReason, len(result.Generations))
	}
	if result.Generations[0].AverageScore != OptimalScore {
		t.Fatalf("expected optimal score, got %f", result.Generations[0].AverageScore)
	}
}

func TestPopulationMonitorLargePoolIsBounded(t *testing.T) {
	if testing.Short() {
		t.Skip("large pool")
	}
	m, err := NewPopulationMonitor(MonitorConfig{
		PopulationSize: 10000,
		Rounds:         game.RoundRange{Min: 4, Max: 6},
		Generations:    50,
		Seed:           3,
		Logger:         quietLogger(),
	})
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	result, err := m.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	switch result.TerminationReason {
	case TerminationCeiling:
		if len(result.Generations) != 50 {
			t.Fatalf("ceiling reached after %d generations", len(result.Generations))
		}
	case TerminationOptimum:
		if len(result.Generations) > 50 {
			t.Fatalf("ceiling exceeded: %d generations", len(result.Generations))
		}
	default:
		t.Fatalf("unexpected termination reason %q", result.TerminationReason)
	}
	for _, s := range result.Generations {
		if s.PopulationSize != 10000 {
			t.Fatalf("population size drifted to %d", s.PopulationSize)
		}
	}
	if len(result.FinalPopulation) != 10000 {
		t.Fatalf("expected 10000 members, got %d", len(result.FinalPopulation))
	}
}

func TestPopulationMonitorResourcePolicy(t *testing.T) {
	m, err := NewPopulationMonitor(MonitorConfig{
		PopulationSize: 16,
		Rounds:         game.RoundRange{Min: 5, Max: 5},
		Generations:    5,
		Seed:           5,
		Policy:         ResourceThresholdPolicy{Threshold: 2, LossPenalty: 1},
		Logger:         quietLogger(),
	})
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	result, err := m.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, s := range result.Generations {
		if s.Policy != ResourceThresholdName || s.PopulationSize != 16 {
			t.Fatalf("unexpected snapshot: %+v", s)
		}
	}
	if len(result.FinalPopulation) != 16 {
		t.Fatalf("expected 16 members, got %d", len(result.FinalPopulation))
	}
}

func TestPopulationMonitorCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var published int
	m, err := NewPopulationMonitor(MonitorConfig{
		PopulationSize: 40,
		Rounds:         game.RoundRange{Min: 5, Max: 5},
		Generations:    1000,
		Workers:        2,
		Seed:           9,
		Observers: []Observer{ObserverFunc(func(context.Context, model.GenerationSnapshot) error {
			published++
			if published == 2 {
				cancel()
			}
			return nil
		})},
		Logger: quietLogger(),
	})
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}

	result, err := m.Run(ctx, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if result.TerminationReason != TerminationCancelled {
		t.Fatalf("unexpected termination reason %s", result.TerminationReason)
	}
	if len(result.Generations) != 2 {
		t.Fatalf("expected two completed generations, got %d", len(result.Generations))
	}
	if len(result.FinalPopulation) != 40 {
		t.Fatalf("population size changed on cancel: %d", len(result.FinalPopulation))
	}
	// The final pool is the last one scored, not the bred successor.
	last := result.Generations[len(result.Generations)-1]
	if got := meanMemberScore(result.FinalPopulation); got == 0 || math.Abs(got-last.AverageScore) > 1e-9 {
		t.Fatalf("final pool mean score %.6f, last snapshot %.6f", got, last.AverageScore)
	}
	if m.Status() != model.StatusFinished {
		t.Fatalf("expected finished status, got %s", m.Status())
	}
}

func TestPopulationMonitorRejectsBadInitialPopulation(t *testing.T) {
	m, err := NewPopulationMonitor(MonitorConfig{PopulationSize: 2, Generations: 1, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	bot, _ := agent.ReferenceBot(agent.TitForTatName)
	if _, err := m.Run(context.Background(), []*agent.Strategy{bot, bot}); err == nil {
		t.Fatal("expected fixed-rule members to be rejected")
	}
}

func meanMemberScore(members []model.MemberSummary) float64 {
	if len(members) == 0 {
		return 0
	}
	total := 0.0
	for _, m := range members {
		total += m.Score
	}
	return total / float64(len(members))
}
