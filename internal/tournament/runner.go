// Package tournament plays batches of independent matches on a bounded worker
// pool. A batch returns only after every launched match has finished.
package tournament

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"ipdevolve/internal/agent"
	"ipdevolve/internal/decision"
	"ipdevolve/internal/game"
)

var ErrDuplicateParticipant = errors.New("strategy scheduled in more than one match of a batch")

// Fixture is one scheduled match.
type Fixture struct {
	A, B    *agent.Strategy
	Options game.Options
}

// MatchObserver is called from worker goroutines after each match and must
// be safe for concurrent use.
type MatchObserver func(fixture Fixture, result game.Result)

type Config struct {
	Index   *decision.Index
	Workers int
	// OnMatch is optional.
	OnMatch MatchObserver
}

type Runner struct {
	index     *decision.Index
	workers   int
	onMatch   MatchObserver
	completed atomic.Int64
}

func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Index == nil {
		return nil, fmt.Errorf("decision index is required")
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("workers must be >= 0, got %d", cfg.Workers)
	}
	workers := cfg.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Runner{index: cfg.Index, workers: workers, onMatch: cfg.OnMatch}, nil
}

func (r *Runner) Workers() int {
	return r.workers
}

// Completed counts matches played by this runner across all batches.
func (r *Runner) Completed() int64 {
	return r.completed.Load()
}

// RunBatch plays every fixture and waits for all of them. Results are in
// fixture order. On cancellation no further matches are started, matches
// already running are allowed to finish, and the context error is returned
// with a nil result slice.
func (r *Runner) RunBatch(ctx context.Context, fixtures []Fixture) ([]game.Result, error) {
	if err := checkExclusive(fixtures); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]game.Result, len(fixtures))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for i := range fixtures {
		if gCtx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			f := fixtures[i]
			result, err := game.Play(f.A, f.B, r.index, f.Options)
			if err != nil {
				return fmt.Errorf("match %d: %w", i, err)
			}
			results[i] = result
			r.completed.Add(1)
			if r.onMatch != nil {
				r.onMatch(f, result)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func checkExclusive(fixtures []Fixture) error {
	seen := make(map[*agent.Strategy]int, 2*len(fixtures))
	for i, f := range fixtures {
		if f.A == nil || f.B == nil {
			return fmt.Errorf("fixture %d is missing a participant", i)
		}
		if f.A == f.B {
			return fmt.Errorf("%w: fixture %d plays itself", ErrDuplicateParticipant, i)
		}
		for _, s := range []*agent.Strategy{f.A, f.B} {
			if prev, ok := seen[s]; ok {
				return fmt.Errorf("%w: fixtures %d and %d", ErrDuplicateParticipant, prev, i)
			}
			seen[s] = i
		}
	}
	return nil
}
