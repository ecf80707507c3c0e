package genotype

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
)

// DefaultMutationFrequency is the 1-in-N chance that an offspring bit flips.
const DefaultMutationFrequency = 10000

var ErrMalformedGenome = errors.New("malformed genome")

// Characteristic is one named on/off gene. Names are the decision id the
// gene answers for, so every genome of a pool shares the same names in the
// same order.
type Characteristic struct {
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Mutate flips the characteristic with probability 1/frequency. A frequency
// of 1 or less always flips.
func (c *Characteristic) Mutate(rng *rand.Rand, frequency int) {
	if frequency <= 1 || rng.Intn(frequency) == 0 {
		c.Active = !c.Active
	}
}

// Genome is the ordered characteristic vector of one strategy. It is not
// changed after construction except by offspring mutation.
type Genome struct {
	characteristics []Characteristic
}

func characteristicName(index int) string {
	return strconv.Itoa(index)
}

func RandomGenome(rng *rand.Rand, size int) Genome {
	characteristics := make([]Characteristic, size)
	for i := range characteristics {
		characteristics[i] = Characteristic{
			Name:   characteristicName(i),
			Active: rng.Intn(2) == 0,
		}
	}
	return Genome{characteristics: characteristics}
}

// FromBitString rebuilds a genome from its '0'/'1' projection. The string must
// be exactly size runes long.
func FromBitString(bits string, size int) (Genome, error) {
	if len(bits) != size {
		return Genome{}, fmt.Errorf("%w: length %d, want %d", ErrMalformedGenome, len(bits), size)
	}
	characteristics := make([]Characteristic, size)
	for i := 0; i < len(bits); i++ {
		var active bool
		switch bits[i] {
		case '1':
			active = true
		case '0':
		default:
			return Genome{}, fmt.Errorf("%w: invalid bit %q at %d", ErrMalformedGenome, bits[i], i)
		}
		characteristics[i] = Characteristic{Name: characteristicName(i), Active: active}
	}
	return Genome{characteristics: characteristics}, nil
}

func (g Genome) Size() int {
	return len(g.characteristics)
}

// Active reports the gene at a decision id. Out of range ids are inactive.
func (g Genome) Active(id int) bool {
	if id < 0 || id >= len(g.characteristics) {
		return false
	}
	return g.characteristics[id].Active
}

// Characteristics returns a copy of the vector.
func (g Genome) Characteristics() []Characteristic {
	return append([]Characteristic(nil), g.characteristics...)
}

func (g Genome) BitString() string {
	var b strings.Builder
	b.Grow(len(g.characteristics))
	for _, c := range g.characteristics {
		if c.Active {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

func (g Genome) Clone() Genome {
	return Genome{characteristics: g.Characteristics()}
}

func (g Genome) Equal(other Genome) bool {
	if len(g.characteristics) != len(other.characteristics) {
		return false
	}
	for i := range g.characteristics {
		if g.characteristics[i] != other.characteristics[i] {
			return false
		}
	}
	return true
}

// ActiveCount is the number of cooperating decision ids.
func (g Genome) ActiveCount() int {
	n := 0
	for _, c := range g.characteristics {
		if c.Active {
			n++
		}
	}
	return n
}
