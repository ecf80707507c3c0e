package genotype

import (
	"crypto/sha1"
	"encoding/hex"
)

type GenomeSummary struct {
	Size        int     `json:"size"`
	ActiveCount int     `json:"active_count"`
	Cooperation float64 `json:"cooperation"`
	RootActive  bool    `json:"root_active"`
}

type GenomeSignature struct {
	Fingerprint string        `json:"fingerprint"`
	Summary     GenomeSummary `json:"summary"`
}

// ComputeGenomeSignature hashes the bit string and summarizes how much of the
// decision space the genome answers with cooperation.
func ComputeGenomeSignature(genome Genome) GenomeSignature {
	bits := genome.BitString()
	summary := GenomeSummary{
		Size:        genome.Size(),
		ActiveCount: genome.ActiveCount(),
		RootActive:  genome.Active(0),
	}
	if summary.Size > 0 {
		summary.Cooperation = float64(summary.ActiveCount) / float64(summary.Size)
	}

	digest := sha1.Sum([]byte(bits))
	return GenomeSignature{
		Fingerprint: hex.EncodeToString(digest[:8]),
		Summary:     summary,
	}
}

// Fingerprint is the signature hash alone.
func (g Genome) Fingerprint() string {
	return ComputeGenomeSignature(g).Fingerprint
}
