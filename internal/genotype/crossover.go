package genotype

import (
	"errors"
	"fmt"
	"math/rand"
)

var ErrGenomeMismatch = errors.New("genome mismatch")

// CrossoverResult keeps the pre-mutation children next to the mutated ones so
// callers and tests can observe what mutation changed.
type CrossoverResult struct {
	Point          int
	PreMutationA   Genome
	PreMutationB   Genome
	ChildA, ChildB Genome
}

// Crossover performs single-point recombination at a uniformly chosen point k
// in [0, size): childA = other[:k] + self[k:], childB = self[:k] + other[k:].
// Every child bit is then mutated independently.
func Crossover(rng *rand.Rand, self, other Genome, frequency int) (CrossoverResult, error) {
	if rng == nil {
		return CrossoverResult{}, fmt.Errorf("random source is required")
	}
	if self.Size() != other.Size() {
		return CrossoverResult{}, fmt.Errorf("%w: sizes %d and %d", ErrGenomeMismatch, self.Size(), other.Size())
	}
	if self.Size() == 0 {
		return CrossoverResult{}, fmt.Errorf("%w: empty genome", ErrGenomeMismatch)
	}
	for i := range self.characteristics {
		if self.characteristics[i].Name != other.characteristics[i].Name {
			return CrossoverResult{}, fmt.Errorf("%w: characteristic %d named %q and %q", ErrGenomeMismatch, i, self.characteristics[i].Name, other.characteristics[i].Name)
		}
	}
	return crossoverAt(rng, self, other, rng.Intn(self.Size()), frequency), nil
}

func crossoverAt(rng *rand.Rand, self, other Genome, point, frequency int) CrossoverResult {
	size := self.Size()
	a := make([]Characteristic, 0, size)
	b := make([]Characteristic, 0, size)
	a = append(a, other.characteristics[:point]...)
	a = append(a, self.characteristics[point:]...)
	b = append(b, self.characteristics[:point]...)
	b = append(b, other.characteristics[point:]...)

	result := CrossoverResult{
		Point:        point,
		PreMutationA: Genome{characteristics: append([]Characteristic(nil), a...)},
		PreMutationB: Genome{characteristics: append([]Characteristic(nil), b...)},
	}
	for i := 0; i < size; i++ {
		a[i].Mutate(rng, frequency)
		b[i].Mutate(rng, frequency)
	}
	result.ChildA = Genome{characteristics: a}
	result.ChildB = Genome{characteristics: b}
	return result
}
