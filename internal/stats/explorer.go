package stats

import (
	"math"

	"ipdevolve/internal/agent"
	"ipdevolve/internal/model"
)

const (
	// Average age cut-offs between the evolution modes.
	StableAgeThreshold  = 10.0
	GradualAgeThreshold = 0.005
)

// Explorer remembers every genome a run has produced. It is owned by the
// simulation loop and is not safe for concurrent use.
type Explorer struct {
	seen map[string]struct{}
}

func NewExplorer() *Explorer {
	return &Explorer{seen: make(map[string]struct{})}
}

// Observe records a generation and returns how many distinct genomes it holds.
func (e *Explorer) Observe(members []*agent.Strategy) int {
	distinct := make(map[string]struct{}, len(members))
	for _, m := range members {
		bits := m.Name()
		distinct[bits] = struct{}{}
		e.seen[bits] = struct{}{}
	}
	return len(distinct)
}

// Explored is the cumulative count of distinct genomes observed.
func (e *Explorer) Explored() int {
	return len(e.seen)
}

// FractionExplored is Explored over the 2^bits possible genomes.
func (e *Explorer) FractionExplored(bits int) float64 {
	if bits <= 0 {
		return 0
	}
	return float64(len(e.seen)) / math.Pow(2, float64(bits))
}

// Ages summarizes member ages. The eldest is the first member with the
// highest age.
type Ages struct {
	Average   float64
	Eldest    string
	EldestAge int
}

func SummarizeAges(members []*agent.Strategy) Ages {
	if len(members) == 0 {
		return Ages{}
	}
	total := 0
	eldest := members[0]
	for _, m := range members {
		total += m.Age
		if m.Age > eldest.Age {
			eldest = m
		}
	}
	return Ages{
		Average:   float64(total) / float64(len(members)),
		Eldest:    eldest.Name(),
		EldestAge: eldest.Age,
	}
}

// Mode classifies how fast the pool is turning over from its average age.
func Mode(averageAge float64) model.EvolutionMode {
	switch {
	case averageAge > StableAgeThreshold:
		return model.EvolutionStable
	case averageAge > GradualAgeThreshold:
		return model.EvolutionGradual
	default:
		return model.EvolutionRapid
	}
}

// MeanScore is the pool's average per-round score.
func MeanScore(members []*agent.Strategy) float64 {
	if len(members) == 0 {
		return 0
	}
	total := 0.0
	for _, m := range members {
		total += m.Score
	}
	return total / float64(len(members))
}

func MeanResources(members []*agent.Strategy) float64 {
	if len(members) == 0 {
		return 0
	}
	total := 0
	for _, m := range members {
		total += m.Resources
	}
	return float64(total) / float64(len(members))
}
