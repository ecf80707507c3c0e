package genotype

import (
	"errors"
	"math/rand"
	"testing"
)

func TestRandomGenomeBitStringRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		genome := RandomGenome(rng, 85)
		rebuilt, err := FromBitString(genome.BitString(), 85)
		if err != nil {
			t.Fatalf("from bit string: %v", err)
		}
		if !rebuilt.Equal(genome) {
			t.Fatalf("round trip mismatch: got=%s want=%s", rebuilt.BitString(), genome.BitString())
		}
	}
}

func TestRandomGenomeNamesFollowIndex(t *testing.T) {
	genome := RandomGenome(rand.New(rand.NewSource(1)), 5)
	for i, c := range genome.Characteristics() {
		if c.Name != characteristicName(i) {
			t.Fatalf("characteristic %d named %q", i, c.Name)
		}
	}
}

func TestRandomGenomeIsUnbiased(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	genome := RandomGenome(rng, 20000)
	ratio := float64(genome.ActiveCount()) / float64(genome.Size())
	if ratio < 0.47 || ratio > 0.53 {
		t.Fatalf("expected roughly half active bits, got ratio=%f", ratio)
	}
}

func TestFromBitStringRejectsWrongLength(t *testing.T) {
	_, err := FromBitString("0101", 5)
	if !errors.Is(err, ErrMalformedGenome) {
		t.Fatalf("expected malformed genome error, got %v", err)
	}
	_, err = FromBitString("010101", 5)
	if !errors.Is(err, ErrMalformedGenome) {
		t.Fatalf("expected malformed genome error for long input, got %v", err)
	}
}

func TestFromBitStringRejectsInvalidRune(t *testing.T) {
	_, err := FromBitString("01x1", 4)
	if !errors.Is(err, ErrMalformedGenome) {
		t.Fatalf("expected malformed genome error, got %v", err)
	}
}

func TestActiveOutOfRange(t *testing.T) {
	genome, err := FromBitString("111", 3)
	if err != nil {
		t.Fatalf("from bit string: %v", err)
	}
	if genome.Active(-1) || genome.Active(3) {
		t.Fatal("expected out of range ids to be inactive")
	}
	if !genome.Active(2) {
		t.Fatal("expected id 2 active")
	}
}

func TestCharacteristicsReturnsCopy(t *testing.T) {
	genome, _ := FromBitString("10", 2)
	characteristics := genome.Characteristics()
	characteristics[0].Active = false
	if !genome.Active(0) {
		t.Fatal("expected genome to be unaffected by caller mutation")
	}
}

func TestMutateFrequencyOneAlwaysFlips(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	c := Characteristic{Name: "0"}
	for i := 0; i < 10; i++ {
		before := c.Active
		c.Mutate(rng, 1)
		if c.Active == before {
			t.Fatalf("expected flip on iteration %d", i)
		}
	}
}

func TestMutateDefaultFrequencyIsRare(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	flips := 0
	for i := 0; i < 100000; i++ {
		c := Characteristic{Name: "0"}
		c.Mutate(rng, DefaultMutationFrequency)
		if c.Active {
			flips++
		}
	}
	if flips < 1 || flips > 30 {
		t.Fatalf("expected about 10 flips in 100000 trials, got %d", flips)
	}
}
