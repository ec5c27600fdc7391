package analysis

import (
	"math"
	"testing"
	"time"

	"github.com/MJE43/studio-analyzer/internal/round"
)

// seq turns "AABT" into outcomes: A=SideA, B=SideB, T=Tie.
func seq(s string) []round.Outcome {
	out := make([]round.Outcome, 0, len(s))
	for _, c := range s {
		switch c {
		case 'A':
			out = append(out, round.SideA)
		case 'B':
			out = append(out, round.SideB)
		case 'T':
			out = append(out, round.Tie)
		}
	}
	return out
}

var fixedTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// history builds a card-less history from a seq string.
func history(s string) round.History {
	var h round.History
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, o := range seq(s) {
		r, _ := round.NewRound(o, round.NoRank, round.NoRank, base.Add(time.Duration(i)*time.Minute))
		h = h.Append(r)
	}
	return h
}

// carded appends a round whose winning side holds the given card.
func carded(h round.History, o round.Outcome, card round.Rank) round.History {
	a, b := card, round.Rank("2")
	if o == round.SideB {
		a, b = round.Rank("2"), card
	}
	r, _ := round.NewRound(o, a, b, time.Date(2025, 3, 1, 12, len(h), 0, 0, time.UTC))
	return h.Append(r)
}

func approx(t *testing.T, name string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s = %.6f, want %.6f (±%g)", name, got, want, tol)
	}
}

func assertDistribution(t *testing.T, d Distribution) {
	t.Helper()
	if math.Abs(d.Sum()-1) > 1e-9 {
		t.Errorf("distribution %v sums to %.12f", d, d.Sum())
	}
	for i, v := range d {
		if v < 0 || v > 1 {
			t.Errorf("distribution entry %d out of range: %f", i, v)
		}
	}
}
