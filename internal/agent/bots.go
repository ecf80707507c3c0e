package agent

import (
	"fmt"
	"math/rand"

	"ipdevolve/internal/decision"
	"ipdevolve/internal/model"
)

const (
	AlwaysDefectName    = "always_defect"
	AlwaysCooperateName = "always_cooperate"
	TitForTatName       = "tit_for_tat"
	// RandomName is a freshly drawn random genome rather than a fixed rule.
	RandomName = "random"
)

func alwaysDefect(_ []model.Turn) model.Choice {
	return model.Defect
}

func alwaysCooperate(_ []model.Turn) model.Choice {
	return model.Cooperate
}

func titForTat(view []model.Turn) model.Choice {
	if len(view) == 0 {
		return model.Cooperate
	}
	return view[len(view)-1].Opponent
}

var referenceRules = map[string]Rule{
	AlwaysDefectName:    alwaysDefect,
	AlwaysCooperateName: alwaysCooperate,
	TitForTatName:       titForTat,
}

// ReferenceBotNames lists the fixed control opponents in report order.
func ReferenceBotNames() []string {
	return []string{AlwaysDefectName, AlwaysCooperateName, TitForTatName}
}

// ReferenceBot builds a fresh fixed-rule bot.
func ReferenceBot(name string) (*Strategy, error) {
	rule, ok := referenceRules[name]
	if !ok {
		return nil, fmt.Errorf("unknown reference bot: %s", name)
	}
	return NewFixedStrategy(name, rule)
}

// Opponent builds a control opponent by name; "random" draws a new genome.
func Opponent(name string, rng *rand.Rand, index *decision.Index) (*Strategy, error) {
	if name == RandomName {
		if rng == nil {
			return nil, fmt.Errorf("random source is required for %s opponent", RandomName)
		}
		return NewRandomStrategy(rng, index), nil
	}
	return ReferenceBot(name)
}
