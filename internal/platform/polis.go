// Package platform hosts evolution runs: it owns the store, tracks active
// runs by id and lets callers stop them or read their progress.
package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"ipdevolve/internal/agent"
	"ipdevolve/internal/evo"
	"ipdevolve/internal/model"
	"ipdevolve/internal/storage"
)

var (
	ErrNotStarted   = errors.New("polis is not initialized")
	ErrRunActive    = errors.New("run already active")
	ErrRunNotActive = errors.New("run not active")
)

type Config struct {
	Store  storage.Store
	Logger *slog.Logger
}

type EvolutionConfig struct {
	Monitor evo.MonitorConfig
	// Initial seeds the pool; nil draws a random one.
	Initial []*agent.Strategy
}

type EvolutionResult struct {
	Run    model.RunRecord
	Result evo.RunResult
}

type activeRun struct {
	cancel  context.CancelFunc
	monitor *evo.PopulationMonitor
}

type Polis struct {
	store  storage.Store
	logger *slog.Logger

	mu      sync.RWMutex
	started bool
	runs    map[string]*activeRun
	// inflight counts RunEvolution calls between register and their final save.
	inflight sync.WaitGroup
}

func NewPolis(cfg Config) *Polis {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Polis{
		store:  cfg.Store,
		logger: logger,
		runs:   make(map[string]*activeRun),
	}
}

func (p *Polis) Init(ctx context.Context) error {
	if p.store == nil {
		return fmt.Errorf("store is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	if err := p.store.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	p.started = true
	return nil
}

// Stop cancels every active run and refuses new ones until Init is called
// again.
func (p *Polis) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, run := range p.runs {
		p.logger.Info("stopping run", slog.String("run_id", id))
		run.cancel()
	}
	p.started = false
}

// Wait blocks until every registered run has returned from RunEvolution,
// including its final store write.
func (p *Polis) Wait() {
	p.inflight.Wait()
}

// RunEvolution runs one monitor to completion, recording the run and every
// generation snapshot in the store. A cancelled run is still recorded with
// its partial progress.
func (p *Polis) RunEvolution(ctx context.Context, cfg EvolutionConfig) (EvolutionResult, error) {
	runID := cfg.Monitor.RunID
	if runID == "" {
		return EvolutionResult{}, fmt.Errorf("run id is required")
	}

	monitorCfg := cfg.Monitor
	monitorCfg.Observers = append([]evo.Observer{storage.NewRecorder(p.store)}, cfg.Monitor.Observers...)
	if monitorCfg.Logger == nil {
		monitorCfg.Logger = p.logger
	}
	monitor, err := evo.NewPopulationMonitor(monitorCfg)
	if err != nil {
		return EvolutionResult{}, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := p.registerRun(runID, &activeRun{cancel: cancel, monitor: monitor}); err != nil {
		return EvolutionResult{}, err
	}
	defer p.unregisterRun(runID)

	record := runRecord(monitor.Config())
	if err := p.store.SaveRun(ctx, record); err != nil {
		return EvolutionResult{}, fmt.Errorf("save run: %w", err)
	}

	result, runErr := monitor.Run(runCtx, cfg.Initial)
	record.Generations = len(result.Generations)
	record.TerminationReason = result.TerminationReason
	if final, ok := result.Final(); ok {
		record.FinalAverageScore = final.AverageScore
	}
	// The caller's context may be the one that was cancelled.
	if err := p.store.SaveRun(context.WithoutCancel(ctx), record); err != nil {
		return EvolutionResult{Run: record, Result: result}, errors.Join(runErr, fmt.Errorf("save run: %w", err))
	}
	return EvolutionResult{Run: record, Result: result}, runErr
}

func runRecord(cfg evo.MonitorConfig) model.RunRecord {
	return model.RunRecord{
		VersionedRecord:   storage.CurrentVersion(),
		ID:                cfg.RunID,
		Policy:            cfg.Policy.Name(),
		PopulationSize:    cfg.PopulationSize,
		Depth:             cfg.Depth,
		MinRounds:         cfg.Rounds.Min,
		MaxRounds:         cfg.Rounds.Max,
		MutationFrequency: cfg.MutationFrequency,
		GenerationCeiling: cfg.Generations,
		Seed:              cfg.Seed,
	}
}

// StopRun cancels an active run. The run finishes its in-flight matches and
// returns its partial result to whoever started it.
func (p *Polis) StopRun(runID string) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	p.mu.RLock()
	run, ok := p.runs[runID]
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotActive, runID)
	}
	run.cancel()
	return nil
}

// RunStatus reports the state and latest snapshot of an active run.
func (p *Polis) RunStatus(runID string) (model.RunStatus, model.GenerationSnapshot, bool) {
	p.mu.RLock()
	run, ok := p.runs[runID]
	p.mu.RUnlock()
	if !ok {
		return "", model.GenerationSnapshot{}, false
	}
	latest, _ := run.monitor.Latest()
	return run.monitor.Status(), latest, true
}

func (p *Polis) ActiveRuns() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := make([]string, 0, len(p.runs))
	for id := range p.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (p *Polis) registerRun(runID string, run *activeRun) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return ErrNotStarted
	}
	if _, exists := p.runs[runID]; exists {
		return fmt.Errorf("%w: %s", ErrRunActive, runID)
	}
	p.runs[runID] = run
	p.inflight.Add(1)
	return nil
}

func (p *Polis) unregisterRun(runID string) {
	p.mu.Lock()
	delete(p.runs, runID)
	p.mu.Unlock()
	p.inflight.Done()
}
