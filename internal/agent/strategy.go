package agent

import (
	"fmt"
	"math/rand"

	"ipdevolve/internal/decision"
	"ipdevolve/internal/genotype"
	"ipdevolve/internal/model"
)

// Kind tags which variant a Strategy is.
type Kind int

const (
	GenomeEncoded Kind = iota
	FixedRule
)

// Rule is a hardcoded policy over the recent history seen from its own seat.
type Rule func(view []model.Turn) model.Choice

// Strategy is one agent. Genome-encoded strategies evolve; fixed-rule
// strategies are reference bots and never accumulate counters.
type Strategy struct {
	kind   Kind
	name   string
	rule   Rule
	genome genotype.Genome

	// Age is the number of generations the genome survived unchanged.
	Age int
	// Resources accumulate across generations under the resource policy.
	Resources int
	// Score is the mean per-round score of the last recorded match.
	Score float64
	// Wins counts recorded matches with own score <= opponent score.
	Wins int
}

func NewStrategy(genome genotype.Genome) *Strategy {
	return &Strategy{kind: GenomeEncoded, genome: genome}
}

// NewRandomStrategy draws an unbiased genome sized to the decision space.
func NewRandomStrategy(rng *rand.Rand, index *decision.Index) *Strategy {
	return NewStrategy(genotype.RandomGenome(rng, index.Size()))
}

func NewFixedStrategy(name string, rule Rule) (*Strategy, error) {
	if name == "" {
		return nil, fmt.Errorf("fixed strategy name is required")
	}
	if rule == nil {
		return nil, fmt.Errorf("fixed strategy %s requires a rule", name)
	}
	return &Strategy{kind: FixedRule, name: name, rule: rule}, nil
}

// FromBitString rebuilds a genome-encoded strategy for an index.
func FromBitString(bits string, index *decision.Index) (*Strategy, error) {
	genome, err := genotype.FromBitString(bits, index.Size())
	if err != nil {
		return nil, err
	}
	return NewStrategy(genome), nil
}

func (s *Strategy) Kind() Kind {
	return s.kind
}

func (s *Strategy) IsFixed() bool {
	return s.kind == FixedRule
}

// Name is the bot name for fixed rules and the bit string otherwise.
func (s *Strategy) Name() string {
	if s.kind == FixedRule {
		return s.name
	}
	return s.genome.BitString()
}

func (s *Strategy) Genome() genotype.Genome {
	return s.genome
}

// ChooseMove resolves this strategy's move from the rounds played so far.
// The history never contains the round being decided.
func (s *Strategy) ChooseMove(history []model.RoundResult, seat model.Seat, index *decision.Index) (model.Choice, error) {
	window := Recent(history, index.Depth())
	switch s.kind {
	case FixedRule:
		return s.rule(model.View(window, seat)), nil
	case GenomeEncoded:
		id, err := index.Lookup(window, seat)
		if err != nil {
			return model.Defect, err
		}
		if s.genome.Active(id) {
			return model.Cooperate, nil
		}
		return model.Defect, nil
	default:
		return model.Defect, fmt.Errorf("unknown strategy kind %d", s.kind)
	}
}

// Recent returns the last depth rounds of history.
func Recent(history []model.RoundResult, depth int) []model.RoundResult {
	if len(history) <= depth {
		return history
	}
	return history[len(history)-depth:]
}

// Reproduce crosses two genome-encoded strategies into two new offspring of
// age zero. Neither parent is modified.
func (s *Strategy) Reproduce(rng *rand.Rand, other *Strategy, mutationFrequency int) (*Strategy, *Strategy, error) {
	if s.kind != GenomeEncoded || other.kind != GenomeEncoded {
		return nil, nil, fmt.Errorf("%w: fixed-rule strategies cannot reproduce", genotype.ErrGenomeMismatch)
	}
	result, err := genotype.Crossover(rng, s.genome, other.genome, mutationFrequency)
	if err != nil {
		return nil, nil, err
	}
	return NewStrategy(result.ChildA), NewStrategy(result.ChildB), nil
}

// EmitSurvivor carries the genome into the next generation one generation
// older. Resources carry over; per-generation counters reset.
func (s *Strategy) EmitSurvivor() *Strategy {
	if s.kind == FixedRule {
		return &Strategy{kind: FixedRule, name: s.name, rule: s.rule}
	}
	return &Strategy{
		kind:      GenomeEncoded,
		genome:    s.genome.Clone(),
		Age:       s.Age + 1,
		Resources: s.Resources,
	}
}

// MatchRecord is what a counted match feeds back into a strategy.
type MatchRecord struct {
	OwnScore      int
	OpponentScore int
	Rounds        int
	ResourceDelta int
}

// Record applies a counted match. Fixed-rule strategies ignore it.
func (s *Strategy) Record(r MatchRecord) {
	if s.kind == FixedRule {
		return
	}
	if r.Rounds > 0 {
		s.Score = float64(r.OwnScore) / float64(r.Rounds)
	}
	if r.OwnScore <= r.OpponentScore {
		s.Wins++
	}
	s.Resources += r.ResourceDelta
	if s.Resources < 0 {
		s.Resources = 0
	}
}

// SpendResources pays a reproduction cost when enough resources are held.
func (s *Strategy) SpendResources(amount int) bool {
	if s.Resources < amount {
		return false
	}
	s.Resources -= amount
	return true
}
