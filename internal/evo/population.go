package evo

import (
	"errors"
	"fmt"
	"math/rand"

	"ipdevolve/internal/agent"
	"ipdevolve/internal/decision"
	"ipdevolve/internal/genotype"
	"ipdevolve/internal/model"
)

var ErrPairingInvariant = errors.New("pairing invariant violated")

// Pairing is two members scheduled against each other.
type Pairing struct {
	A, B *agent.Strategy
}

// NewPopulation draws size random genome strategies for an index.
func NewPopulation(rng *rand.Rand, size int, index *decision.Index) ([]*agent.Strategy, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if index == nil {
		return nil, fmt.Errorf("decision index is required")
	}
	if err := validatePopulationSize(size); err != nil {
		return nil, err
	}
	members := make([]*agent.Strategy, size)
	for i := range members {
		members[i] = agent.NewRandomStrategy(rng, index)
	}
	return members, nil
}

// PopulationFromBitStrings rebuilds a pool from genome projections.
func PopulationFromBitStrings(bits []string, index *decision.Index) ([]*agent.Strategy, error) {
	if err := validatePopulationSize(len(bits)); err != nil {
		return nil, err
	}
	members := make([]*agent.Strategy, len(bits))
	for i, b := range bits {
		s, err := agent.FromBitString(b, index)
		if err != nil {
			return nil, fmt.Errorf("member %d: %w", i, err)
		}
		members[i] = s
	}
	return members, nil
}

func validatePopulationSize(size int) error {
	if size <= 0 {
		return fmt.Errorf("population size must be > 0")
	}
	if size%2 != 0 {
		return fmt.Errorf("%w: population size %d is odd", ErrPairingInvariant, size)
	}
	return nil
}

// Pair matches adjacent members: (0,1), (2,3), ...
func Pair(members []*agent.Strategy) ([]Pairing, error) {
	if len(members)%2 != 0 {
		return nil, fmt.Errorf("%w: %d members leave one unpaired", ErrPairingInvariant, len(members))
	}
	pairs := make([]Pairing, 0, len(members)/2)
	for i := 0; i+1 < len(members); i += 2 {
		pairs = append(pairs, Pairing{A: members[i], B: members[i+1]})
	}
	return pairs, nil
}

func shuffle(rng *rand.Rand, members []*agent.Strategy) {
	rng.Shuffle(len(members), func(i, j int) {
		members[i], members[j] = members[j], members[i]
	})
}

// Summarize detaches a read-only view of the pool.
func Summarize(members []*agent.Strategy) []model.MemberSummary {
	out := make([]model.MemberSummary, len(members))
	for i, m := range members {
		genome := m.Genome()
		out[i] = model.MemberSummary{
			Genome:      genome.BitString(),
			Fingerprint: genotype.ComputeGenomeSignature(genome).Fingerprint,
			Age:         m.Age,
			Score:       m.Score,
			Wins:        m.Wins,
			Resources:   m.Resources,
		}
	}
	return out
}
