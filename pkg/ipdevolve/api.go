package ipdevolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"ipdevolve/internal/agent"
	"ipdevolve/internal/decision"
	"ipdevolve/internal/evo"
	"ipdevolve/internal/game"
	"ipdevolve/internal/metrics"
	"ipdevolve/internal/model"
	"ipdevolve/internal/platform"
	"ipdevolve/internal/stats"
	"ipdevolve/internal/storage"
)

const (
	defaultArtifactsDir = "runs"
	defaultDBPath       = "ipdevolve.db"
	defaultPopulation   = 3000
	defaultGenerations  = 1000
	defaultTopGenomes   = 10
	defaultRunsLimit    = 20
)

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
	Logger       *slog.Logger
	// Registerer receives the evolution collectors. Nil disables metrics.
	Registerer prometheus.Registerer
}

type Client struct {
	store   storage.Store
	polis   *platform.Polis
	metrics *metrics.Recorder
	logger  *slog.Logger

	artifactsDir string
}

type RunRequest struct {
	// RunID defaults to a fresh uuid.
	RunID             string
	Population        int
	MinRounds         int
	MaxRounds         int
	MutationFrequency int
	Depth             int
	Generations       int
	Workers           int
	// Seed 0 draws a seed from the clock; the chosen seed is recorded.
	Seed           int64
	Policy         string
	Controls       bool
	StopWhenStable bool
	TopGenomes     int
	// Initial seeds the pool with bit-string genomes instead of random ones.
	Initial      []string
	OnGeneration func(model.GenerationSnapshot)
}

type RunSummary struct {
	RunID             string
	ArtifactsDir      string
	Seed              int64
	AverageScores     []float64
	Final             model.GenerationSnapshot
	TerminationReason string
	CompletedMatches  int64
	TopGenomes        []stats.TopGenome
}

type RunItem struct {
	RunID             string
	CreatedAtUTC      string
	Policy            string
	Seed              int64
	Population        int
	Generations       int
	FinalAverageScore float64
	TerminationReason string
}

type PlayRequest struct {
	// A and B are reference bot names, "random" or bit-string genomes.
	A      string
	B      string
	Rounds int
	Depth  int
	Seed   int64
}

type PlaySummary struct {
	A      string
	B      string
	Result game.Result
}

// Decision is one genome bit read as a rule: after History, play Move.
type Decision struct {
	ID int
	// History lists remembered outcomes, most recent first. It is empty for
	// the opening move.
	History []string
	Move    model.Choice
}

type SpaceSummary struct {
	Depth       int
	GenomeBits  int
	Outcomes    []string
	ControlBots []string
	Policies    []string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	var recorder *metrics.Recorder
	if opts.Registerer != nil {
		recorder = metrics.NewRecorder(opts.Registerer)
	}

	return &Client{
		store:        store,
		polis:        platform.NewPolis(platform.Config{Store: store, Logger: logger}),
		metrics:      recorder,
		logger:       logger,
		artifactsDir: artifactsDir,
	}, nil
}

// Close cancels active runs and waits for them to record their final state
// before closing the store.
func (c *Client) Close() error {
	c.polis.Stop()
	c.polis.Wait()
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.polis.Init(ctx)
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if err := c.polis.Init(ctx); err != nil {
		return RunSummary{}, err
	}
	cfg, initial, err := c.monitorConfig(req)
	if err != nil {
		return RunSummary{}, err
	}

	out, runErr := c.polis.RunEvolution(ctx, platform.EvolutionConfig{Monitor: cfg, Initial: initial})
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return RunSummary{}, runErr
	}

	limit := req.TopGenomes
	if limit <= 0 {
		limit = defaultTopGenomes
	}
	top := stats.RankMembers(out.Result.FinalPopulation, limit)
	runDir, err := stats.WriteRunArtifacts(c.artifactsDir, stats.RunArtifacts{
		Run:         out.Run,
		Generations: out.Result.Generations,
		TopGenomes:  top,
	})
	if err != nil {
		return RunSummary{}, errors.Join(runErr, err)
	}
	if err := stats.AppendRunIndex(c.artifactsDir, stats.RunIndexEntry{
		RunID:             out.Run.ID,
		Policy:            out.Run.Policy,
		PopulationSize:    out.Run.PopulationSize,
		Generations:       out.Run.Generations,
		Seed:              out.Run.Seed,
		FinalAverageScore: out.Run.FinalAverageScore,
		TerminationReason: out.Run.TerminationReason,
		CreatedAtUTC:      time.Now().UTC().Format(time.RFC3339Nano),
	}); err != nil {
		return RunSummary{}, errors.Join(runErr, err)
	}

	summary := RunSummary{
		RunID:             out.Run.ID,
		ArtifactsDir:      runDir,
		Seed:              out.Run.Seed,
		AverageScores:     make([]float64, 0, len(out.Result.Generations)),
		TerminationReason: out.Result.TerminationReason,
		CompletedMatches:  out.Result.CompletedMatches,
		TopGenomes:        top,
	}
	for _, s := range out.Result.Generations {
		summary.AverageScores = append(summary.AverageScores, s.AverageScore)
	}
	summary.Final, _ = out.Result.Final()
	return summary, runErr
}

func (c *Client) monitorConfig(req RunRequest) (evo.MonitorConfig, []*agent.Strategy, error) {
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	population := req.Population
	if population == 0 {
		population = defaultPopulation
		if len(req.Initial) > 0 {
			population = len(req.Initial)
		}
	}
	generations := req.Generations
	if generations == 0 {
		generations = defaultGenerations
	}
	seed := req.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	policy, err := evo.PolicyByName(req.Policy)
	if err != nil {
		return evo.MonitorConfig{}, nil, err
	}

	cfg := evo.MonitorConfig{
		RunID:             runID,
		PopulationSize:    population,
		Rounds:            game.RoundRange{Min: req.MinRounds, Max: req.MaxRounds},
		MutationFrequency: req.MutationFrequency,
		Depth:             req.Depth,
		Generations:       generations,
		Workers:           req.Workers,
		Seed:              seed,
		Policy:            policy,
		Controls:          req.Controls,
		StopWhenStable:    req.StopWhenStable,
		Logger:            c.logger,
	}
	if c.metrics != nil {
		cfg.Observers = append(cfg.Observers, c.metrics)
		cfg.OnMatch = c.metrics.ObserveMatch
	}
	if req.OnGeneration != nil {
		notify := req.OnGeneration
		cfg.Observers = append(cfg.Observers, evo.ObserverFunc(func(_ context.Context, s model.GenerationSnapshot) error {
			notify(s)
			return nil
		}))
	}

	if len(req.Initial) == 0 {
		return cfg, nil, nil
	}
	depth := req.Depth
	if depth == 0 {
		depth = decision.DefaultDepth
	}
	index, err := decision.New(depth)
	if err != nil {
		return evo.MonitorConfig{}, nil, err
	}
	initial, err := evo.PopulationFromBitStrings(req.Initial, index)
	if err != nil {
		return evo.MonitorConfig{}, nil, err
	}
	return cfg, initial, nil
}

// Stop cancels a run started by this client.
func (c *Client) Stop(runID string) error {
	return c.polis.StopRun(runID)
}

// Status reports the latest snapshot of an active run.
func (c *Client) Status(runID string) (model.GenerationSnapshot, bool) {
	_, latest, ok := c.polis.RunStatus(runID)
	return latest, ok
}

// ActiveRuns lists the ids of runs this client is evolving.
func (c *Client) ActiveRuns() []string {
	return c.polis.ActiveRuns()
}

func (c *Client) Runs(_ context.Context, limit int) ([]RunItem, error) {
	if limit <= 0 {
		limit = defaultRunsLimit
	}
	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:             e.RunID,
			CreatedAtUTC:      e.CreatedAtUTC,
			Policy:            e.Policy,
			Seed:              e.Seed,
			Population:        e.PopulationSize,
			Generations:       e.Generations,
			FinalAverageScore: e.FinalAverageScore,
			TerminationReason: e.TerminationReason,
		})
	}
	return out, nil
}

// GetRun returns the record of a run from the store, or from its run.json
// artifact when the store does not know it.
func (c *Client) GetRun(ctx context.Context, runID string) (model.RunRecord, error) {
	if runID == "" {
		return model.RunRecord{}, errors.New("run id is required")
	}
	if err := c.polis.Init(ctx); err != nil {
		return model.RunRecord{}, err
	}
	run, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return model.RunRecord{}, err
	}
	if ok {
		return run, nil
	}
	run, ok, err = stats.ReadRunRecord(c.artifactsDir, runID)
	if err != nil {
		return model.RunRecord{}, err
	}
	if !ok {
		return model.RunRecord{}, fmt.Errorf("run not found: %s", runID)
	}
	return run, nil
}

// Generations returns the stored snapshots of a run, falling back to the
// artifacts directory when the store has none.
func (c *Client) Generations(ctx context.Context, runID string) ([]model.GenerationSnapshot, error) {
	if runID == "" {
		return nil, errors.New("run id is required")
	}
	if err := c.polis.Init(ctx); err != nil {
		return nil, err
	}
	snapshots, ok, err := c.store.GetGenerations(ctx, runID)
	if err != nil {
		return nil, err
	}
	if ok {
		return snapshots, nil
	}
	snapshots, ok, err = stats.ReadGenerations(c.artifactsDir, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	return snapshots, nil
}

// TopGenomes reads the ranked final population written for a run.
func (c *Client) TopGenomes(_ context.Context, runID string, limit int) ([]stats.TopGenome, error) {
	top, ok, err := stats.ReadTopGenomes(c.artifactsDir, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	if limit > 0 && len(top) > limit {
		top = top[:limit]
	}
	return top, nil
}

// Play runs one standalone match. Neither side's counters are updated.
func (c *Client) Play(_ context.Context, req PlayRequest) (PlaySummary, error) {
	depth := req.Depth
	if depth == 0 {
		depth = decision.DefaultDepth
	}
	index, err := decision.New(depth)
	if err != nil {
		return PlaySummary{}, err
	}
	seed := req.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	a, err := resolvePlayer(req.A, rng, index)
	if err != nil {
		return PlaySummary{}, fmt.Errorf("player a: %w", err)
	}
	b, err := resolvePlayer(req.B, rng, index)
	if err != nil {
		return PlaySummary{}, fmt.Errorf("player b: %w", err)
	}
	rounds := req.Rounds
	if rounds == 0 {
		rounds = game.DefaultRoundRange().Draw(rng)
	}
	result, err := game.Play(a, b, index, game.Options{Rounds: rounds})
	if err != nil {
		return PlaySummary{}, err
	}
	return PlaySummary{A: a.Name(), B: b.Name(), Result: result}, nil
}

func resolvePlayer(player string, rng *rand.Rand, index *decision.Index) (*agent.Strategy, error) {
	if player == "" {
		return nil, errors.New("player is required")
	}
	if player == agent.RandomName {
		return agent.Opponent(player, rng, index)
	}
	if bot, err := agent.ReferenceBot(player); err == nil {
		return bot, nil
	}
	return agent.FromBitString(player, index)
}

// Explain lists the rule each bit of a genome encodes. The lookback depth is
// inferred from the genome length.
func Explain(genome string) ([]Decision, error) {
	depth := -1
	for d := 1; d <= decision.MaxDepth; d++ {
		if decision.Size(d) == len(genome) {
			depth = d
			break
		}
	}
	if depth < 0 {
		return nil, fmt.Errorf("no lookback depth has %d decisions", len(genome))
	}
	index, err := decision.New(depth)
	if err != nil {
		return nil, err
	}
	strategy, err := agent.FromBitString(genome, index)
	if err != nil {
		return nil, err
	}
	bits := strategy.Genome()

	out := make([]Decision, index.Size())
	for id := range out {
		path, err := index.Path(id)
		if err != nil {
			return nil, err
		}
		history := make([]string, len(path))
		for i, o := range path {
			history[i] = o.String()
		}
		move := model.Defect
		if bits.Active(id) {
			move = model.Cooperate
		}
		out[id] = Decision{ID: id, History: history, Move: move}
	}
	return out, nil
}

// Space describes the genome space for a lookback depth.
func Space(depth int) (SpaceSummary, error) {
	if depth == 0 {
		depth = decision.DefaultDepth
	}
	index, err := decision.New(depth)
	if err != nil {
		return SpaceSummary{}, err
	}
	outcomes := make([]string, 0, len(decision.Outcomes))
	for _, o := range decision.Outcomes {
		outcomes = append(outcomes, o.String())
	}
	return SpaceSummary{
		Depth:       depth,
		GenomeBits:  index.Size(),
		Outcomes:    outcomes,
		ControlBots: evo.ControlOpponents(),
		Policies:    evo.ListPolicies(),
	}, nil
}
