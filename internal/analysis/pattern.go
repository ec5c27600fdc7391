package analysis

import (
	"encoding/json"
	"fmt"

	"github.com/MJE43/studio-analyzer/internal/round"
)

// Pattern names the shape of the tail of the sequence.
type Pattern int

const (
	PatternInsufficient Pattern = iota
	PatternNone
	PatternRepetition
	PatternAlternation
	PatternSteppedPair
	PatternControlledBreak
)

// minPatternRounds is the shortest history for which a pattern is reported.
const minPatternRounds = 3

func (p Pattern) String() string {
	switch p {
	case PatternNone:
		return "none"
	case PatternRepetition:
		return "repetition"
	case PatternAlternation:
		return "alternation"
	case PatternSteppedPair:
		return "stepped_pair"
	case PatternControlledBreak:
		return "controlled_break"
	default:
		return "insufficient_data"
	}
}

func (p Pattern) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Pattern) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	for c := PatternInsufficient; c <= PatternControlledBreak; c++ {
		if c.String() == s {
			*p = c
			return nil
		}
	}
	return fmt.Errorf("unknown pattern %q", s)
}

// DetectPattern classifies the tail of h. Rules are checked in precedence
// order and the first match wins.
func DetectPattern(h round.History) Pattern {
	if len(h) < minPatternRounds {
		return PatternInsufficient
	}
	outcomes := h.Outcomes()
	switch {
	case isRepetition(outcomes):
		return PatternRepetition
	case isAlternating(outcomes):
		return PatternAlternation
	case isSteppedPair(outcomes):
		return PatternSteppedPair
	case isControlledBreak(h):
		return PatternControlledBreak
	default:
		return PatternNone
	}
}

// isRepetition: the last three outcomes are identical.
func isRepetition(o []round.Outcome) bool {
	n := len(o)
	if n < 3 {
		return false
	}
	return o[n-1] == o[n-2] && o[n-2] == o[n-3]
}

// isAlternating: the last four outcomes go x, y, x, y with x != y.
func isAlternating(o []round.Outcome) bool {
	n := len(o)
	if n < 4 {
		return false
	}
	t := o[n-4:]
	return t[0] != t[1] && t[0] == t[2] && t[1] == t[3]
}

// isSteppedPair: the last six outcomes are three equal pairs whose values
// alternate between two outcomes (xx yy xx).
func isSteppedPair(o []round.Outcome) bool {
	n := len(o)
	if n < 6 {
		return false
	}
	t := o[n-6:]
	if t[0] != t[1] || t[2] != t[3] || t[4] != t[5] {
		return false
	}
	return t[0] != t[2] && t[0] == t[4]
}

// isControlledBreak: the winning-card tiers of the last three rounds are
// Low, Low, High. Rounds without card data never match.
func isControlledBreak(h round.History) bool {
	tail := h.Last(3)
	if len(tail) < 3 {
		return false
	}
	want := [3]round.Tier{round.TierLow, round.TierLow, round.TierHigh}
	for i, r := range tail {
		tier, ok := r.Tier()
		if !ok || tier != want[i] {
			return false
		}
	}
	return true
}
