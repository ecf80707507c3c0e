package evo

import (
	"fmt"
	"math/rand"
	"sort"

	"ipdevolve/internal/agent"
	"ipdevolve/internal/game"
	"ipdevolve/internal/stats"
)

// Policy decides who reproduces and how the pool is refilled. NextGeneration
// must return exactly len(members) strategies, shuffled, and must not modify
// the genomes of members.
type Policy interface {
	Name() string
	// Payout is the resource delta applied after each counted match; nil when
	// the policy does not track resources.
	Payout() game.Payout
	FitCount(members []*agent.Strategy) int
	NextGeneration(rng *rand.Rand, members []*agent.Strategy, mutationFrequency int) ([]*agent.Strategy, error)
}

const (
	ScoreThresholdName    = "score_threshold"
	ResourceThresholdName = "resource_threshold"

	DefaultResourceThreshold = 30
	DefaultLossPenalty       = 1
)

// ScoreThresholdPolicy lets every member scoring below the pool mean
// reproduce. The remaining slots go to the best scoring survivors.
type ScoreThresholdPolicy struct{}

func (ScoreThresholdPolicy) Name() string {
	return ScoreThresholdName
}

func (ScoreThresholdPolicy) Payout() game.Payout {
	return nil
}

func (ScoreThresholdPolicy) eligible(members []*agent.Strategy) []*agent.Strategy {
	mean := stats.MeanScore(members)
	out := make([]*agent.Strategy, 0, len(members))
	for _, m := range members {
		if m.Score < mean {
			out = append(out, m)
		}
	}
	return out
}

func (p ScoreThresholdPolicy) FitCount(members []*agent.Strategy) int {
	return len(p.eligible(members))
}

func (p ScoreThresholdPolicy) NextGeneration(rng *rand.Rand, members []*agent.Strategy, mutationFrequency int) ([]*agent.Strategy, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	parents := p.eligible(members)
	shuffle(rng, parents)
	next, err := breed(rng, parents, mutationFrequency, nil)
	if err != nil {
		return nil, err
	}

	ranked := append([]*agent.Strategy(nil), members...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score < ranked[j].Score
	})
	return fill(rng, next, ranked, len(members)), nil
}

// ResourceThresholdPolicy lets members holding at least Threshold resources
// reproduce; each reproducing parent pays Threshold. The remaining slots go
// to the richest survivors.
type ResourceThresholdPolicy struct {
	Threshold   int
	LossPenalty int
}

func NewResourceThresholdPolicy() ResourceThresholdPolicy {
	return ResourceThresholdPolicy{Threshold: DefaultResourceThreshold, LossPenalty: DefaultLossPenalty}
}

func (ResourceThresholdPolicy) Name() string {
	return ResourceThresholdName
}

// Payout awards 2 for a clear win, 1 for a tie and takes LossPenalty for a
// loss. Lower scores win.
func (p ResourceThresholdPolicy) Payout() game.Payout {
	penalty := p.LossPenalty
	return func(own, opponent int) int {
		switch {
		case own < opponent:
			return 2
		case own == opponent:
			return 1
		default:
			return -penalty
		}
	}
}

func (p ResourceThresholdPolicy) threshold() int {
	if p.Threshold <= 0 {
		return DefaultResourceThreshold
	}
	return p.Threshold
}

func (p ResourceThresholdPolicy) FitCount(members []*agent.Strategy) int {
	n := 0
	for _, m := range members {
		if m.Resources >= p.threshold() {
			n++
		}
	}
	return n
}

func (p ResourceThresholdPolicy) NextGeneration(rng *rand.Rand, members []*agent.Strategy, mutationFrequency int) ([]*agent.Strategy, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	threshold := p.threshold()
	parents := make([]*agent.Strategy, 0, len(members))
	for _, m := range members {
		if m.Resources >= threshold {
			parents = append(parents, m)
		}
	}
	shuffle(rng, parents)
	next, err := breed(rng, parents, mutationFrequency, func(a, b *agent.Strategy) {
		a.SpendResources(threshold)
		b.SpendResources(threshold)
	})
	if err != nil {
		return nil, err
	}

	ranked := append([]*agent.Strategy(nil), members...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Resources > ranked[j].Resources
	})
	return fill(rng, next, ranked, len(members)), nil
}

// breed crosses parents two at a time. A lone trailing parent survives
// unchanged instead of reproducing.
func breed(rng *rand.Rand, parents []*agent.Strategy, mutationFrequency int, pay func(a, b *agent.Strategy)) ([]*agent.Strategy, error) {
	next := make([]*agent.Strategy, 0, len(parents))
	for i := 0; i < len(parents); i += 2 {
		if i+1 == len(parents) {
			next = append(next, parents[i].EmitSurvivor())
			break
		}
		a, b := parents[i], parents[i+1]
		childA, childB, err := a.Reproduce(rng, b, mutationFrequency)
		if err != nil {
			return nil, err
		}
		if pay != nil {
			pay(a, b)
		}
		next = append(next, childA, childB)
	}
	return next, nil
}

// fill tops next up to size with survivors taken from ranked, best first,
// then shuffles.
func fill(rng *rand.Rand, next, ranked []*agent.Strategy, size int) []*agent.Strategy {
	for i := 0; len(next) < size; i++ {
		next = append(next, ranked[i%len(ranked)].EmitSurvivor())
	}
	shuffle(rng, next)
	return next
}
