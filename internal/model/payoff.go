package model

// Payoffs are golf-style: lower is better.
const (
	RewardPayoff     = 1
	PunishmentPayoff = 2
	TemptationPayoff = 0
	SuckerPayoff     = 3
)

// Payoff resolves one round of the dilemma for seats A and B.
func Payoff(a, b Choice) (int, int) {
	switch {
	case a == Cooperate && b == Cooperate:
		return RewardPayoff, RewardPayoff
	case a == Defect && b == Defect:
		return PunishmentPayoff, PunishmentPayoff
	case a == Cooperate && b == Defect:
		return SuckerPayoff, TemptationPayoff
	default:
		return TemptationPayoff, SuckerPayoff
	}
}

// Resolve builds the immutable record of one round.
func Resolve(round int, a, b Choice) RoundResult {
	scoreA, scoreB := Payoff(a, b)
	return RoundResult{
		Round:   round,
		ChoiceA: a,
		ChoiceB: b,
		ScoreA:  scoreA,
		ScoreB:  scoreB,
	}
}
