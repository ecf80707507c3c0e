// Package decision enumerates every bounded sequence of round outcomes and
// maps each one to a stable integer id. A strategy genome carries one bit per
// id.
package decision

import (
	"errors"
	"fmt"

	"ipdevolve/internal/model"
)

const (
	DefaultDepth = 3
	MaxDepth     = 8
)

var ErrHistoryTooLong = errors.New("history longer than decision depth")

// Outcome is a round seen from one participant's seat.
type Outcome int

const (
	BothCooperate Outcome = iota
	SelfLoses
	SelfWins
	BothDefect
)

// Outcomes is the alphabet in the order children are enumerated.
var Outcomes = []Outcome{BothCooperate, SelfLoses, SelfWins, BothDefect}

func (o Outcome) String() string {
	switch o {
	case BothCooperate:
		return "both_cooperate"
	case SelfLoses:
		return "self_loses"
	case SelfWins:
		return "self_wins"
	case BothDefect:
		return "both_defect"
	default:
		return "unknown"
	}
}

// OutcomeOf classifies a turn by its own-first payoff pair.
func OutcomeOf(turn model.Turn) Outcome {
	switch {
	case turn.Self == model.Cooperate && turn.Opponent == model.Cooperate:
		return BothCooperate
	case turn.Self == model.Cooperate:
		return SelfLoses
	case turn.Opponent == model.Cooperate:
		return SelfWins
	default:
		return BothDefect
	}
}

type node struct {
	depth    int
	children [4]int
}

// Index is built once and shared read-only by every strategy and match of a
// run.
type Index struct {
	depth int
	nodes []node
}

// New enumerates the tree in pre-order, so the root is id 0 and each
// subtree occupies a contiguous id range.
func New(depth int) (*Index, error) {
	if depth < 1 || depth > MaxDepth {
		return nil, fmt.Errorf("decision depth must be in [1, %d], got %d", MaxDepth, depth)
	}
	idx := &Index{depth: depth, nodes: make([]node, 0, Size(depth))}
	idx.build(0)
	return idx, nil
}

// MustNew is New for package-level defaults and tests.
func MustNew(depth int) *Index {
	idx, err := New(depth)
	if err != nil {
		panic(err)
	}
	return idx
}

func (idx *Index) build(depth int) int {
	id := len(idx.nodes)
	idx.nodes = append(idx.nodes, node{depth: depth})
	if depth == idx.depth {
		return id
	}
	for i := range Outcomes {
		child := idx.build(depth + 1)
		idx.nodes[id].children[i] = child
	}
	return id
}

// Size is the number of ids for a depth: sum over k=0..depth of 4^k.
func Size(depth int) int {
	total, level := 0, 1
	for k := 0; k <= depth; k++ {
		total += level
		level *= len(Outcomes)
	}
	return total
}

func (idx *Index) Depth() int {
	return idx.depth
}

func (idx *Index) Size() int {
	return len(idx.nodes)
}

// Lookup resolves the id of a history seen from seat. The history is in round
// order; the most recent round is matched first.
func (idx *Index) Lookup(history []model.RoundResult, seat model.Seat) (int, error) {
	if len(history) > idx.depth {
		return 0, fmt.Errorf("%w: %d rounds, depth %d", ErrHistoryTooLong, len(history), idx.depth)
	}
	current := 0
	for i := len(history) - 1; i >= 0; i-- {
		outcome := OutcomeOf(history[i].ViewFor(seat))
		current = idx.nodes[current].children[outcome]
	}
	return current, nil
}

// Path returns the outcome chain of an id, most recent first. It is the
// inverse of Lookup.
func (idx *Index) Path(id int) ([]Outcome, error) {
	if id < 0 || id >= len(idx.nodes) {
		return nil, fmt.Errorf("decision id %d out of range [0, %d)", id, len(idx.nodes))
	}
	var path []Outcome
	current := 0
	for current != id {
		next := -1
		for i, child := range idx.nodes[current].children {
			if child == 0 {
				break
			}
			if child <= id && id < child+Size(idx.depth-idx.nodes[child].depth) {
				next = i
				break
			}
		}
		if next < 0 {
			return nil, fmt.Errorf("decision id %d unreachable", id)
		}
		path = append(path, Outcomes[next])
		current = idx.nodes[current].children[next]
	}
	return path, nil
}
