package decision

import (
	"errors"
	"testing"

	"ipdevolve/internal/model"
)

func rounds(pairs ...[2]model.Choice) []model.RoundResult {
	out := make([]model.RoundResult, 0, len(pairs))
	for i, p := range pairs {
		out = append(out, model.Resolve(i, p[0], p[1]))
	}
	return out
}

var (
	cc = [2]model.Choice{model.Cooperate, model.Cooperate}
	cd = [2]model.Choice{model.Cooperate, model.Defect}
	dc = [2]model.Choice{model.Defect, model.Cooperate}
	dd = [2]model.Choice{model.Defect, model.Defect}
)

func TestSizeMatchesEnumeration(t *testing.T) {
	for depth := 1; depth <= 5; depth++ {
		idx, err := New(depth)
		if err != nil {
			t.Fatalf("new depth=%d: %v", depth, err)
		}
		if idx.Size() != Size(depth) {
			t.Fatalf("depth=%d size=%d want %d", depth, idx.Size(), Size(depth))
		}
	}
	if Size(3) != 85 {
		t.Fatalf("expected 85 ids at depth 3, got %d", Size(3))
	}
}

func TestNewRejectsInvalidDepth(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Fatal("expected error for depth 0")
	}
	if _, err := New(MaxDepth + 1); err == nil {
		t.Fatal("expected error above max depth")
	}
}

func TestEmptyHistoryIsRoot(t *testing.T) {
	idx := MustNew(DefaultDepth)
	id, err := idx.Lookup(nil, model.SeatA)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if id != 0 {
		t.Fatalf("expected root id 0, got %d", id)
	}
}

func TestLookupRejectsLongHistory(t *testing.T) {
	idx := MustNew(2)
	_, err := idx.Lookup(rounds(cc, cc, cc), model.SeatA)
	if !errors.Is(err, ErrHistoryTooLong) {
		t.Fatalf("expected history too long, got %v", err)
	}
}

func TestPreOrderIDs(t *testing.T) {
	idx := MustNew(DefaultDepth)
	// First child of the root is the both-cooperate branch, enumerated
	// depth-first before its siblings.
	id, _ := idx.Lookup(rounds(cc), model.SeatA)
	if id != 1 {
		t.Fatalf("expected id 1 for a single cooperative round, got %d", id)
	}
	id, _ = idx.Lookup(rounds(cc, cc), model.SeatA)
	if id != 2 {
		t.Fatalf("expected id 2 for two cooperative rounds, got %d", id)
	}
	id, _ = idx.Lookup(rounds(cd), model.SeatA)
	if id != 1+Size(2) {
		t.Fatalf("expected second subtree to start at %d, got %d", 1+Size(2), id)
	}
}

func TestLookupIsDistinctAndTotal(t *testing.T) {
	idx := MustNew(DefaultDepth)
	alphabet := [][2]model.Choice{cc, cd, dc, dd}
	seen := map[int]struct{}{}

	var walk func(prefix [][2]model.Choice)
	walk = func(prefix [][2]model.Choice) {
		id, err := idx.Lookup(rounds(prefix...), model.SeatA)
		if err != nil {
			t.Fatalf("lookup %v: %v", prefix, err)
		}
		if id < 0 || id >= idx.Size() {
			t.Fatalf("id %d out of range", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %d for %v", id, prefix)
		}
		seen[id] = struct{}{}

		again, _ := idx.Lookup(rounds(prefix...), model.SeatA)
		if again != id {
			t.Fatalf("lookup not deterministic: %d vs %d", id, again)
		}
		if len(prefix) == idx.Depth() {
			return
		}
		for _, p := range alphabet {
			walk(append(append([][2]model.Choice(nil), prefix...), p))
		}
	}
	walk(nil)

	if len(seen) != idx.Size() {
		t.Fatalf("expected every id to be reachable, got %d of %d", len(seen), idx.Size())
	}
}

func TestLookupIsAsymmetricPerSeat(t *testing.T) {
	idx := MustNew(DefaultDepth)
	history := rounds(cd)
	a, _ := idx.Lookup(history, model.SeatA)
	b, _ := idx.Lookup(history, model.SeatB)
	if a == b {
		t.Fatalf("expected different ids for the two seats, got %d", a)
	}
	mirrored, _ := idx.Lookup(rounds(dc), model.SeatA)
	if mirrored != b {
		t.Fatalf("expected seat B view of (C,D) to equal seat A view of (D,C): %d vs %d", b, mirrored)
	}
}

func TestLookupReadsMostRecentFirst(t *testing.T) {
	idx := MustNew(DefaultDepth)
	older, _ := idx.Lookup(rounds(dd, cc), model.SeatA)
	newer, _ := idx.Lookup(rounds(cc, dd), model.SeatA)
	if older == newer {
		t.Fatal("expected round order to matter")
	}
	path, err := idx.Path(newer)
	if err != nil {
		t.Fatalf("path: %v", err)
	}
	if len(path) != 2 || path[0] != BothDefect || path[1] != BothCooperate {
		t.Fatalf("unexpected path for newer: %v", path)
	}
}

func TestPathInvertsLookup(t *testing.T) {
	idx := MustNew(2)
	for id := 0; id < idx.Size(); id++ {
		path, err := idx.Path(id)
		if err != nil {
			t.Fatalf("path %d: %v", id, err)
		}
		history := make([]model.RoundResult, len(path))
		// Path is most recent first; history is in round order.
		for i, outcome := range path {
			history[len(path)-1-i] = roundFor(outcome)
		}
		got, err := idx.Lookup(history, model.SeatA)
		if err != nil {
			t.Fatalf("lookup turns: %v", err)
		}
		if got != id {
			t.Fatalf("path of %d resolves to %d", id, got)
		}
	}
	if _, err := idx.Path(idx.Size()); err == nil {
		t.Fatal("expected out of range error")
	}
}

// roundFor builds a round whose outcome seen from seat A is o.
func roundFor(o Outcome) model.RoundResult {
	switch o {
	case BothCooperate:
		return model.Resolve(0, model.Cooperate, model.Cooperate)
	case SelfLoses:
		return model.Resolve(0, model.Cooperate, model.Defect)
	case SelfWins:
		return model.Resolve(0, model.Defect, model.Cooperate)
	default:
		return model.Resolve(0, model.Defect, model.Defect)
	}
}
