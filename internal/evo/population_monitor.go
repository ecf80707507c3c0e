package evo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"ipdevolve/internal/agent"
	"ipdevolve/internal/decision"
	"ipdevolve/internal/game"
	"ipdevolve/internal/genotype"
	"ipdevolve/internal/model"
	"ipdevolve/internal/stats"
	"ipdevolve/internal/storage"
	"ipdevolve/internal/tournament"
)

const (
	TerminationOptimum   = "optimum"
	TerminationCeiling   = "generation_ceiling"
	TerminationStable    = "stable"
	TerminationCancelled = "cancelled"
)

// OptimalScore is the per-round score of a pool that always cooperates.
const OptimalScore = float64(model.RewardPayoff)

var ErrMonitorStarted = errors.New("population monitor already started")

// Observer receives a copy of every published generation snapshot. Calls are
// made from the simulation goroutine in generation order.
type Observer interface {
	ObserveGeneration(ctx context.Context, snapshot model.GenerationSnapshot) error
}

type ObserverFunc func(ctx context.Context, snapshot model.GenerationSnapshot) error

func (f ObserverFunc) ObserveGeneration(ctx context.Context, snapshot model.GenerationSnapshot) error {
	return f(ctx, snapshot)
}

type RunResult struct {
	RunID             string
	Generations       []model.GenerationSnapshot
	FinalPopulation   []model.MemberSummary
	TerminationReason string
	CompletedMatches  int64
}

// Final returns the last published snapshot.
func (r RunResult) Final() (model.GenerationSnapshot, bool) {
	if len(r.Generations) == 0 {
		return model.GenerationSnapshot{}, false
	}
	return r.Generations[len(r.Generations)-1], true
}

type MonitorConfig struct {
	RunID             string
	PopulationSize    int
	Rounds            game.RoundRange
	MutationFrequency int
	Depth             int
	// Generations is the hard ceiling on evaluated generations.
	Generations int
	Workers     int
	Seed        int64
	Policy      Policy
	// Controls plays every member against each reference bot and a random
	// opponent after the pool round. Diagnostic only.
	Controls       bool
	StopWhenStable bool
	Observers      []Observer
	OnMatch        tournament.MatchObserver
	Logger         *slog.Logger
}

type PopulationMonitor struct {
	cfg      MonitorConfig
	index    *decision.Index
	rng      *rand.Rand
	runner   *tournament.Runner
	explorer *stats.Explorer
	logger   *slog.Logger

	mu     sync.RWMutex
	status model.RunStatus
	latest *model.GenerationSnapshot
}

func NewPopulationMonitor(cfg MonitorConfig) (*PopulationMonitor, error) {
	if err := validatePopulationSize(cfg.PopulationSize); err != nil {
		return nil, err
	}
	if cfg.Generations <= 0 {
		return nil, fmt.Errorf("generations must be > 0")
	}
	if cfg.Rounds == (game.RoundRange{}) {
		cfg.Rounds = game.DefaultRoundRange()
	}
	if err := cfg.Rounds.Validate(); err != nil {
		return nil, err
	}
	if cfg.MutationFrequency < 0 {
		return nil, fmt.Errorf("mutation frequency must be >= 0")
	}
	if cfg.MutationFrequency == 0 {
		cfg.MutationFrequency = genotype.DefaultMutationFrequency
	}
	if cfg.Depth == 0 {
		cfg.Depth = decision.DefaultDepth
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("workers must be >= 0")
	}
	if cfg.Policy == nil {
		cfg.Policy = DefaultPolicy()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	index, err := decision.New(cfg.Depth)
	if err != nil {
		return nil, err
	}
	runner, err := tournament.NewRunner(tournament.Config{Index: index, Workers: cfg.Workers, OnMatch: cfg.OnMatch})
	if err != nil {
		return nil, err
	}

	return &PopulationMonitor{
		cfg:      cfg,
		index:    index,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		runner:   runner,
		explorer: stats.NewExplorer(),
		logger:   cfg.Logger.With(slog.String("run_id", cfg.RunID)),
		status:   model.StatusSetup,
	}, nil
}

func (m *PopulationMonitor) Index() *decision.Index {
	return m.index
}

func (m *PopulationMonitor) Config() MonitorConfig {
	return m.cfg
}

// Status is safe to call from any goroutine.
func (m *PopulationMonitor) Status() model.RunStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Latest returns a copy of the most recent published snapshot.
func (m *PopulationMonitor) Latest() (model.GenerationSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.latest == nil {
		return model.GenerationSnapshot{}, false
	}
	return copySnapshot(*m.latest), true
}

func (m *PopulationMonitor) setStatus(status model.RunStatus) {
	m.mu.Lock()
	m.status = status
	m.mu.Unlock()
}

// Run evolves initial (or a random pool when initial is nil) until the
// optimum, the generation ceiling, stability when enabled, or cancellation.
// On cancellation the partial result is returned with the context error.
func (m *PopulationMonitor) Run(ctx context.Context, initial []*agent.Strategy) (RunResult, error) {
	m.mu.Lock()
	if m.status != model.StatusSetup {
		m.mu.Unlock()
		return RunResult{}, ErrMonitorStarted
	}
	m.status = model.StatusEvolving
	m.mu.Unlock()
	defer m.setStatus(model.StatusFinished)

	population, err := m.seed(initial)
	if err != nil {
		return RunResult{}, err
	}

	result := RunResult{
		RunID:       m.cfg.RunID,
		Generations: make([]model.GenerationSnapshot, 0, m.cfg.Generations),
	}
	m.logger.Info("run started",
		slog.Int("population_size", m.cfg.PopulationSize),
		slog.String("policy", m.cfg.Policy.Name()),
		slog.Int("depth", m.cfg.Depth),
		slog.Int("generation_ceiling", m.cfg.Generations),
		slog.Int("workers", m.runner.Workers()),
	)

	// scored is the last pool that finished evaluation. Once a generation is
	// bred, population holds unscored members until the next evaluation.
	var scored []*agent.Strategy
	finish := func(reason string) RunResult {
		pool := scored
		if pool == nil {
			pool = population
		}
		result.TerminationReason = reason
		result.FinalPopulation = Summarize(pool)
		result.CompletedMatches = m.runner.Completed()
		return result
	}

	for gen := 1; gen <= m.cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return m.cancelled(finish, gen, err)
		}

		started := time.Now()
		snapshot, err := m.evaluate(ctx, population, gen)
		if err != nil {
			if ctx.Err() != nil {
				return m.cancelled(finish, gen, ctx.Err())
			}
			return finish(""), err
		}
		scored = population

		next, err := m.cfg.Policy.NextGeneration(m.rng, population, m.cfg.MutationFrequency)
		if err != nil {
			return finish(""), fmt.Errorf("generation %d: %w", gen, err)
		}
		if len(next) != len(population) {
			return finish(""), fmt.Errorf("%w: policy %s produced %d members from %d", ErrPairingInvariant, m.cfg.Policy.Name(), len(next), len(population))
		}
		population = next

		reason := m.terminationReason(snapshot, gen)
		snapshot.ElapsedMillis = time.Since(started).Milliseconds()
		snapshot.CompletedMatches = int(m.runner.Completed())
		if reason != "" {
			snapshot.Status = model.StatusFinished
			snapshot.TerminationReason = reason
		}
		result.Generations = append(result.Generations, snapshot)
		m.publish(ctx, snapshot)

		m.logger.Info("generation complete",
			slog.Int("generation", gen),
			slog.Float64("average_score", snapshot.AverageScore),
			slog.Int("distinct_genomes", snapshot.DistinctGenomes),
			slog.Float64("average_age", snapshot.AverageAge),
			slog.String("mode", string(snapshot.Mode)),
			slog.Int64("elapsed_ms", snapshot.ElapsedMillis),
		)

		if reason != "" {
			m.logger.Info("run finished", slog.String("reason", reason), slog.Int("generations", gen))
			return finish(reason), nil
		}
	}
	// Unreachable: the ceiling check terminates the last generation.
	return finish(TerminationCeiling), nil
}

func (m *PopulationMonitor) cancelled(finish func(string) RunResult, gen int, err error) (RunResult, error) {
	m.logger.Warn("run cancelled", slog.Int("generation", gen), slog.Any("error", err))
	return finish(TerminationCancelled), err
}

func (m *PopulationMonitor) seed(initial []*agent.Strategy) ([]*agent.Strategy, error) {
	if initial == nil {
		return NewPopulation(m.rng, m.cfg.PopulationSize, m.index)
	}
	if len(initial) != m.cfg.PopulationSize {
		return nil, fmt.Errorf("initial population mismatch: got=%d want=%d", len(initial), m.cfg.PopulationSize)
	}
	population := make([]*agent.Strategy, len(initial))
	for i, s := range initial {
		if s == nil || s.IsFixed() {
			return nil, fmt.Errorf("initial member %d must be a genome-encoded strategy", i)
		}
		if s.Genome().Size() != m.index.Size() {
			return nil, fmt.Errorf("%w: member %d has %d characteristics, want %d", genotype.ErrGenomeMismatch, i, s.Genome().Size(), m.index.Size())
		}
		population[i] = s
	}
	return population, nil
}

// evaluate plays the pool round and the optional control rounds, then
// summarizes the generation. Nothing is summarized until every batch has
// completed.
func (m *PopulationMonitor) evaluate(ctx context.Context, population []*agent.Strategy, gen int) (model.GenerationSnapshot, error) {
	pairs, err := Pair(population)
	if err != nil {
		return model.GenerationSnapshot{}, err
	}
	payout := m.cfg.Policy.Payout()
	fixtures := make([]tournament.Fixture, len(pairs))
	for i, p := range pairs {
		fixtures[i] = tournament.Fixture{
			A: p.A,
			B: p.B,
			Options: game.Options{
				Rounds:            m.cfg.Rounds.Draw(m.rng),
				CountsTowardsWins: true,
				Payout:            payout,
			},
		}
	}
	if _, err := m.runner.RunBatch(ctx, fixtures); err != nil {
		return model.GenerationSnapshot{}, fmt.Errorf("pool matches: %w", err)
	}

	var controls []model.ControlScore
	if m.cfg.Controls {
		controls, err = m.playControls(ctx, population)
		if err != nil {
			return model.GenerationSnapshot{}, err
		}
	}

	ages := stats.SummarizeAges(population)
	snapshot := model.GenerationSnapshot{
		VersionedRecord:   storage.CurrentVersion(),
		RunID:             m.cfg.RunID,
		Generation:        gen,
		PopulationSize:    len(population),
		Status:            model.StatusEvolving,
		Policy:            m.cfg.Policy.Name(),
		AverageScore:      stats.MeanScore(population),
		FitCount:          m.cfg.Policy.FitCount(population),
		Controls:          controls,
		DistinctGenomes:   m.explorer.Observe(population),
		AverageAge:        ages.Average,
		Eldest:            ages.Eldest,
		EldestAge:         ages.EldestAge,
		Mode:              stats.Mode(ages.Average),
		AverageResources:  stats.MeanResources(population),
		DecisionSpaceBits: m.index.Size(),
	}
	snapshot.GenomesExplored = m.explorer.Explored()
	snapshot.FractionExplored = m.explorer.FractionExplored(m.index.Size())
	return snapshot, nil
}

// ControlOpponents lists the control opponents in report order.
func ControlOpponents() []string {
	return append(agent.ReferenceBotNames(), agent.RandomName)
}

// playControls runs one batch per opponent so no member is ever in two
// matches at once. Opponents are fresh per match and results never feed back
// into member counters.
func (m *PopulationMonitor) playControls(ctx context.Context, population []*agent.Strategy) ([]model.ControlScore, error) {
	opponents := ControlOpponents()
	scores := make([]model.ControlScore, 0, len(opponents))
	for _, name := range opponents {
		fixtures := make([]tournament.Fixture, len(population))
		for i, member := range population {
			opponent, err := agent.Opponent(name, m.rng, m.index)
			if err != nil {
				return nil, err
			}
			fixtures[i] = tournament.Fixture{
				A:       member,
				B:       opponent,
				Options: game.Options{Rounds: m.cfg.Rounds.Draw(m.rng)},
			}
		}
		results, err := m.runner.RunBatch(ctx, fixtures)
		if err != nil {
			return nil, fmt.Errorf("control matches against %s: %w", name, err)
		}
		scores = append(scores, summarizeControl(name, results))
	}
	return scores, nil
}

func summarizeControl(name string, results []game.Result) model.ControlScore {
	score := model.ControlScore{Opponent: name}
	if len(results) == 0 {
		return score
	}
	total := 0.0
	wins := 0
	for _, r := range results {
		if len(r.Rounds) > 0 {
			total += float64(r.ScoreA) / float64(len(r.Rounds))
		}
		if r.Win {
			wins++
		}
	}
	score.AverageScore = total / float64(len(results))
	score.WinPercent = 100 * float64(wins) / float64(len(results))
	return score
}

func (m *PopulationMonitor) terminationReason(snapshot model.GenerationSnapshot, gen int) string {
	switch {
	case snapshot.AverageScore <= OptimalScore:
		return TerminationOptimum
	case m.cfg.StopWhenStable && snapshot.Mode == model.EvolutionStable:
		return TerminationStable
	case gen >= m.cfg.Generations:
		return TerminationCeiling
	default:
		return ""
	}
}

func (m *PopulationMonitor) publish(ctx context.Context, snapshot model.GenerationSnapshot) {
	m.mu.Lock()
	latest := copySnapshot(snapshot)
	m.latest = &latest
	m.mu.Unlock()

	for _, observer := range m.cfg.Observers {
		if err := observer.ObserveGeneration(ctx, copySnapshot(snapshot)); err != nil {
			m.logger.Warn("observer failed",
				slog.Int("generation", snapshot.Generation),
				slog.Any("error", err),
			)
		}
	}
}

func copySnapshot(s model.GenerationSnapshot) model.GenerationSnapshot {
	s.Controls = append([]model.ControlScore(nil), s.Controls...)
	return s
}
