package game

import (
	"errors"
	"fmt"
	"math/rand"

	"ipdevolve/internal/agent"
	"ipdevolve/internal/decision"
	"ipdevolve/internal/model"
)

var ErrMatchFinished = errors.New("match already finished")

const (
	DefaultMinRounds = 100
	DefaultMaxRounds = 200
)

type State int

const (
	NotStarted State = iota
	InProgress
	Finished
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case InProgress:
		return "in_progress"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// Payout converts one side's match totals into a resource delta.
type Payout func(own, opponent int) int

type Options struct {
	Rounds int
	// CountsTowardsWins feeds the outcome back into the participants'
	// persistent counters. Control matches leave it false.
	CountsTowardsWins bool
	Payout            Payout
}

type Result struct {
	Rounds []model.RoundResult `json:"rounds"`
	ScoreA int                 `json:"score_a"`
	ScoreB int                 `json:"score_b"`
	// Win is from seat A's point of view; ties count.
	Win bool `json:"win"`
}

// RoundRange bounds the per-match round count, inclusive on both ends.
type RoundRange struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

func DefaultRoundRange() RoundRange {
	return RoundRange{Min: DefaultMinRounds, Max: DefaultMaxRounds}
}

func (r RoundRange) Validate() error {
	if r.Min <= 0 {
		return fmt.Errorf("min rounds must be > 0, got %d", r.Min)
	}
	if r.Max < r.Min {
		return fmt.Errorf("max rounds %d below min rounds %d", r.Max, r.Min)
	}
	return nil
}

// Draw picks a round count uniformly in [Min, Max].
func (r RoundRange) Draw(rng *rand.Rand) int {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + rng.Intn(r.Max-r.Min+1)
}

// Match is a single head-to-head between seat A and seat B. It exclusively
// owns both participants while it is being played.
type Match struct {
	a, b    *agent.Strategy
	index   *decision.Index
	options Options

	state   State
	history []model.RoundResult
	scoreA  int
	scoreB  int
}

func NewMatch(a, b *agent.Strategy, index *decision.Index, options Options) (*Match, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("match requires two participants")
	}
	if index == nil {
		return nil, fmt.Errorf("match requires a decision index")
	}
	if options.Rounds <= 0 {
		return nil, fmt.Errorf("match rounds must be > 0, got %d", options.Rounds)
	}
	return &Match{
		a:       a,
		b:       b,
		index:   index,
		options: options,
		history: make([]model.RoundResult, 0, options.Rounds),
	}, nil
}

func (m *Match) State() State {
	return m.state
}

// Play resolves every remaining round and settles the participants.
func (m *Match) Play() (Result, error) {
	if m.state == Finished {
		return Result{}, ErrMatchFinished
	}
	m.state = InProgress
	for len(m.history) < m.options.Rounds {
		if err := m.step(); err != nil {
			return Result{}, err
		}
	}
	m.state = Finished

	result := Result{
		Rounds: m.history,
		ScoreA: m.scoreA,
		ScoreB: m.scoreB,
		Win:    m.scoreA <= m.scoreB,
	}
	if m.options.CountsTowardsWins {
		m.settle()
	}
	return result, nil
}

func (m *Match) step() error {
	// Both moves are chosen against the same history before the round is
	// appended, so neither side can see the other's current choice.
	moveA, err := m.a.ChooseMove(m.history, model.SeatA, m.index)
	if err != nil {
		return fmt.Errorf("seat A move: %w", err)
	}
	moveB, err := m.b.ChooseMove(m.history, model.SeatB, m.index)
	if err != nil {
		return fmt.Errorf("seat B move: %w", err)
	}
	round := model.Resolve(len(m.history), moveA, moveB)
	m.history = append(m.history, round)
	m.scoreA += round.ScoreA
	m.scoreB += round.ScoreB
	return nil
}

func (m *Match) settle() {
	rounds := len(m.history)
	recordA := agent.MatchRecord{OwnScore: m.scoreA, OpponentScore: m.scoreB, Rounds: rounds}
	recordB := agent.MatchRecord{OwnScore: m.scoreB, OpponentScore: m.scoreA, Rounds: rounds}
	if m.options.Payout != nil {
		recordA.ResourceDelta = m.options.Payout(m.scoreA, m.scoreB)
		recordB.ResourceDelta = m.options.Payout(m.scoreB, m.scoreA)
	}
	m.a.Record(recordA)
	m.b.Record(recordB)
}

// Play runs a fresh match to completion.
func Play(a, b *agent.Strategy, index *decision.Index, options Options) (Result, error) {
	m, err := NewMatch(a, b, index, options)
	if err != nil {
		return Result{}, err
	}
	return m.Play()
}
