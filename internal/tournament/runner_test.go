package tournament

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"

	"ipdevolve/internal/agent"
	"ipdevolve/internal/decision"
	"ipdevolve/internal/game"
)

func randomFixtures(t *testing.T, idx *decision.Index, n, rounds int) []Fixture {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	fixtures := make([]Fixture, n)
	for i := range fixtures {
		fixtures[i] = Fixture{
			A:       agent.NewRandomStrategy(rng, idx),
			B:       agent.NewRandomStrategy(rng, idx),
			Options: game.Options{Rounds: rounds, CountsTowardsWins: true},
		}
	}
	return fixtures
}

func TestRunBatchMatchesSequentialPlay(t *testing.T) {
	idx := decision.MustNew(decision.DefaultDepth)
	fixtures := randomFixtures(t, idx, 64, 30)

	var observed atomic.Int64
	runner, err := NewRunner(Config{Index: idx, Workers: 4, OnMatch: func(Fixture, game.Result) {
		observed.Add(1)
	}})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	results, err := runner.RunBatch(context.Background(), fixtures)
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if len(results) != len(fixtures) {
		t.Fatalf("expected %d results, got %d", len(fixtures), len(results))
	}
	for i, f := range fixtures {
		want, err := game.Play(f.A, f.B, idx, game.Options{Rounds: 30})
		if err != nil {
			t.Fatalf("replay %d: %v", i, err)
		}
		if results[i].ScoreA != want.ScoreA || results[i].ScoreB != want.ScoreB {
			t.Fatalf("fixture %d: got %d/%d want %d/%d", i, results[i].ScoreA, results[i].ScoreB, want.ScoreA, want.ScoreB)
		}
		if f.A.Score != float64(want.ScoreA)/30 {
			t.Fatalf("fixture %d: participant score not recorded", i)
		}
	}
	if observed.Load() != int64(len(fixtures)) || runner.Completed() != int64(len(fixtures)) {
		t.Fatalf("expected %d completed matches, observed=%d completed=%d", len(fixtures), observed.Load(), runner.Completed())
	}
}

func TestRunBatchRejectsSharedParticipant(t *testing.T) {
	idx := decision.MustNew(decision.DefaultDepth)
	fixtures := randomFixtures(t, idx, 2, 5)
	fixtures[1].B = fixtures[0].A

	runner, _ := NewRunner(Config{Index: idx, Workers: 2})
	if _, err := runner.RunBatch(context.Background(), fixtures); !errors.Is(err, ErrDuplicateParticipant) {
		t.Fatalf("expected duplicate participant error, got %v", err)
	}
	if runner.Completed() != 0 {
		t.Fatal("expected no matches to be played")
	}
}

func TestRunBatchStopsOnCancel(t *testing.T) {
	idx := decision.MustNew(decision.DefaultDepth)
	fixtures := randomFixtures(t, idx, 200, 20)

	ctx, cancel := context.WithCancel(context.Background())
	runner, _ := NewRunner(Config{Index: idx, Workers: 1, OnMatch: func(Fixture, game.Result) {
		cancel()
	}})
	results, err := runner.RunBatch(ctx, fixtures)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if results != nil {
		t.Fatal("expected no partial results")
	}
	if runner.Completed() >= int64(len(fixtures)) {
		t.Fatalf("expected cancellation to stop issuing matches, completed=%d", runner.Completed())
	}
}

func TestRunBatchAlreadyCancelled(t *testing.T) {
	idx := decision.MustNew(decision.DefaultDepth)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner, _ := NewRunner(Config{Index: idx})
	if _, err := runner.RunBatch(ctx, randomFixtures(t, idx, 3, 5)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if runner.Completed() != 0 {
		t.Fatal("expected nothing to run")
	}
}

func TestNewRunnerDefaults(t *testing.T) {
	if _, err := NewRunner(Config{}); err == nil {
		t.Fatal("expected missing index error")
	}
	runner, err := NewRunner(Config{Index: decision.MustNew(1)})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	if runner.Workers() < 1 {
		t.Fatalf("expected default worker count, got %d", runner.Workers())
	}
}
