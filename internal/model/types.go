package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

type Choice int

const (
	Cooperate Choice = iota
	Defect
)

func (c Choice) String() string {
	switch c {
	case Cooperate:
		return "cooperate"
	case Defect:
		return "defect"
	default:
		return "unknown"
	}
}

// Seat is the per-match label of a participant.
type Seat int

const (
	SeatA Seat = iota
	SeatB
)

func (s Seat) String() string {
	if s == SeatB {
		return "B"
	}
	return "A"
}

// RoundResult is one resolved round. It is never mutated after it is
// appended to a match history.
type RoundResult struct {
	Round   int    `json:"round"`
	ChoiceA Choice `json:"choice_a"`
	ChoiceB Choice `json:"choice_b"`
	ScoreA  int    `json:"score_a"`
	ScoreB  int    `json:"score_b"`
}

// Turn is a RoundResult seen from one seat: own values first.
type Turn struct {
	Round         int
	Self          Choice
	Opponent      Choice
	SelfScore     int
	OpponentScore int
}

func (r RoundResult) ViewFor(seat Seat) Turn {
	if seat == SeatB {
		return Turn{
			Round:         r.Round,
			Self:          r.ChoiceB,
			Opponent:      r.ChoiceA,
			SelfScore:     r.ScoreB,
			OpponentScore: r.ScoreA,
		}
	}
	return Turn{
		Round:         r.Round,
		Self:          r.ChoiceA,
		Opponent:      r.ChoiceB,
		SelfScore:     r.ScoreA,
		OpponentScore: r.ScoreB,
	}
}

// View projects a history onto one seat, preserving round order.
func View(history []RoundResult, seat Seat) []Turn {
	out := make([]Turn, len(history))
	for i, round := range history {
		out[i] = round.ViewFor(seat)
	}
	return out
}

type RunStatus string

const (
	StatusSetup    RunStatus = "setup"
	StatusEvolving RunStatus = "evolving"
	StatusFinished RunStatus = "finished"
)

type EvolutionMode string

const (
	EvolutionRapid   EvolutionMode = "rapid"
	EvolutionGradual EvolutionMode = "gradual"
	EvolutionStable  EvolutionMode = "stable"
)

// ControlScore is the pool's aggregate result against one reference opponent.
type ControlScore struct {
	Opponent     string  `json:"opponent"`
	AverageScore float64 `json:"average_score"`
	WinPercent   float64 `json:"win_percent"`
}

// GenerationSnapshot is the read-only view published after every generation
// barrier.
type GenerationSnapshot struct {
	VersionedRecord
	RunID             string         `json:"run_id"`
	Generation        int            `json:"generation"`
	PopulationSize    int            `json:"population_size"`
	Status            RunStatus      `json:"status"`
	Policy            string         `json:"policy"`
	AverageScore      float64        `json:"average_score"`
	FitCount          int            `json:"fit_count"`
	Controls          []ControlScore `json:"controls,omitempty"`
	DistinctGenomes   int            `json:"distinct_genomes"`
	GenomesExplored   int            `json:"genomes_explored"`
	FractionExplored  float64        `json:"fraction_explored"`
	AverageAge        float64        `json:"average_age"`
	Eldest            string         `json:"eldest"`
	EldestAge         int            `json:"eldest_age"`
	Mode              EvolutionMode  `json:"mode"`
	ElapsedMillis     int64          `json:"elapsed_ms"`
	AverageResources  float64        `json:"average_resources,omitempty"`
	DecisionSpaceBits int            `json:"decision_space_bits"`
	CompletedMatches  int            `json:"completed_matches"`
	TerminationReason string         `json:"termination_reason,omitempty"`
}

// Control returns the score against the named opponent.
func (s GenerationSnapshot) Control(opponent string) (ControlScore, bool) {
	for _, c := range s.Controls {
		if c.Opponent == opponent {
			return c, true
		}
	}
	return ControlScore{}, false
}

// RunRecord describes one evolutionary run.
type RunRecord struct {
	VersionedRecord
	ID                string  `json:"id"`
	Policy            string  `json:"policy"`
	PopulationSize    int     `json:"population_size"`
	Depth             int     `json:"depth"`
	MinRounds         int     `json:"min_rounds"`
	MaxRounds         int     `json:"max_rounds"`
	MutationFrequency int     `json:"mutation_frequency"`
	GenerationCeiling int     `json:"generation_ceiling"`
	Seed              int64   `json:"seed"`
	Generations       int     `json:"generations"`
	FinalAverageScore float64 `json:"final_average_score"`
	TerminationReason string  `json:"termination_reason"`
}

// MemberSummary is a detached view of one pool member.
type MemberSummary struct {
	Genome      string  `json:"genome"`
	Fingerprint string  `json:"fingerprint"`
	Age         int     `json:"age"`
	Score       float64 `json:"score"`
	Wins        int     `json:"wins"`
	Resources   int     `json:"resources"`
}
