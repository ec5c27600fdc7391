package analysis

import "github.com/MJE43/studio-analyzer/internal/round"

// Streak is a run of identical outcomes.
type Streak struct {
	Outcome round.Outcome `json:"outcome"`
	Length  int           `json:"length"`
}

// CurrentStreak returns the trailing run. A Tie never extends a run, so a
// trailing Tie is always a run of length 1. Empty input returns a zero Streak.
func CurrentStreak(outcomes []round.Outcome) Streak {
	n := len(outcomes)
	if n == 0 {
		return Streak{}
	}
	last := outcomes[n-1]
	if last == round.Tie {
		return Streak{Outcome: round.Tie, Length: 1}
	}
	length := 1
	for i := n - 2; i >= 0 && outcomes[i] == last; i-- {
		length++
	}
	return Streak{Outcome: last, Length: length}
}

// trailingSideStreak is the current streak length, or 0 when the last round is a Tie.
func trailingSideStreak(outcomes []round.Outcome) Streak {
	s := CurrentStreak(outcomes)
	if s.Outcome == round.Tie {
		return Streak{Outcome: round.Tie}
	}
	return s
}

// HistoricalStreaks collapses maximal runs of the same non-Tie outcome and
// keeps those of length 2 or more, in chronological order.
func HistoricalStreaks(outcomes []round.Outcome) []Streak {
	var out []Streak
	if len(outcomes) == 0 {
		return out
	}
	cur := outcomes[0]
	length := 1
	flush := func() {
		if length > 1 && cur != round.Tie {
			out = append(out, Streak{Outcome: cur, Length: length})
		}
	}
	for _, o := range outcomes[1:] {
		if o == cur && o != round.Tie {
			length++
			continue
		}
		flush()
		cur = o
		length = 1
	}
	flush()
	return out
}

// MaxStreak is the longest historical run, or 1 when there is none.
func MaxStreak(streaks []Streak) int {
	best := 1
	for _, s := range streaks {
		if s.Length > best {
			best = s.Length
		}
	}
	return best
}

// AlternationRate is the share of adjacent pairs that differ.
func AlternationRate(outcomes []round.Outcome) float64 {
	if len(outcomes) < 2 {
		return 0
	}
	changes := 0
	for i := 1; i < len(outcomes); i++ {
		if outcomes[i] != outcomes[i-1] {
			changes++
		}
	}
	return float64(changes) / float64(len(outcomes)-1)
}

// PostStreakTies counts Ties that land right after two equal side outcomes.
func PostStreakTies(outcomes []round.Outcome) int {
	count := 0
	for i := 2; i < len(outcomes); i++ {
		if outcomes[i] == round.Tie && outcomes[i-1] != round.Tie && outcomes[i-2] == outcomes[i-1] {
			count++
		}
	}
	return count
}
