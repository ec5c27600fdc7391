package round

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Outcome is the resolved result of one round.
type Outcome int

const (
	SideA Outcome = iota
	SideB
	Tie
)

// NumOutcomes is the size of the outcome space.
const NumOutcomes = 3

// Outcomes lists every outcome in index order.
var Outcomes = [NumOutcomes]Outcome{SideA, SideB, Tie}

func (o Outcome) String() string {
	switch o {
	case SideA:
		return "side_a"
	case SideB:
		return "side_b"
	case Tie:
		return "tie"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Color returns the export name of the outcome (red, blue, tie).
func (o Outcome) Color() string {
	switch o {
	case SideA:
		return "red"
	case SideB:
		return "blue"
	default:
		return "tie"
	}
}

// Valid reports whether o is one of the three known outcomes.
func (o Outcome) Valid() bool {
	return o >= SideA && o <= Tie
}

// Other returns the opposing side. Tie has no opposite and is returned unchanged.
func (o Outcome) Other() Outcome {
	switch o {
	case SideA:
		return SideB
	case SideB:
		return SideA
	default:
		return Tie
	}
}

// ParseOutcome accepts the canonical names plus the aliases used by table
// operators and by exported files.
func ParseOutcome(s string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "side_a", "a", "red", "home", "player":
		return SideA, nil
	case "side_b", "b", "blue", "away", "banker":
		return SideB, nil
	case "tie", "t", "draw":
		return Tie, nil
	default:
		return 0, fmt.Errorf("unknown outcome %q", s)
	}
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

func (o *Outcome) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseOutcome(s)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// Round is one recorded result. Rounds are never mutated after construction.
type Round struct {
	Index     int       `json:"index"`
	Outcome   Outcome   `json:"outcome"`
	SideA     Rank      `json:"side_a_card,omitempty"`
	SideB     Rank      `json:"side_b_card,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRound builds a round with an explicit outcome. Cards are optional and
// normalised with ParseRank; unknown text is kept and classifies as Low.
func NewRound(o Outcome, a, b Rank, at time.Time) (Round, error) {
	if !o.Valid() {
		return Round{}, fmt.Errorf("invalid outcome %d", int(o))
	}
	if at.IsZero() {
		at = time.Now()
	}
	a, b = ParseRank(string(a)), ParseRank(string(b))
	return Round{Outcome: o, SideA: a, SideB: b, Timestamp: at.UTC()}, nil
}

// RoundFromCards derives the winner from the two ranks: the higher value
// wins and equal values are a tie.
func RoundFromCards(a, b Rank, at time.Time) (Round, error) {
	if a == NoRank || b == NoRank {
		return Round{}, fmt.Errorf("both cards are required to derive a winner")
	}
	return NewRound(Winner(a, b), a, b, at)
}

// Winner compares two ranks by value.
func Winner(a, b Rank) Outcome {
	av, bv := a.Value(), b.Value()
	switch {
	case av > bv:
		return SideA
	case bv > av:
		return SideB
	default:
		return Tie
	}
}

// Card returns the rank of the winning side. On a tie the SideA card is used.
func (r Round) Card() Rank {
	if r.Outcome == SideB {
		return r.SideB
	}
	return r.SideA
}

// Tier returns the tier of the winning card and whether one was recorded.
func (r Round) Tier() (Tier, bool) {
	c := r.Card()
	if c == NoRank {
		return TierLow, false
	}
	return c.Tier(), true
}

// History is the ordered log of rounds for one table. It is append-only
// apart from a full reset.
type History []Round

// Append returns a new history with r added at the next index. The receiver
// is not modified.
func (h History) Append(r Round) History {
	r.Index = len(h)
	out := make(History, len(h), len(h)+1)
	copy(out, h)
	return append(out, r)
}

// Outcomes projects the history to its outcome sequence.
func (h History) Outcomes() []Outcome {
	out := make([]Outcome, len(h))
	for i, r := range h {
		out[i] = r.Outcome
	}
	return out
}

// Last returns the most recent n rounds (fewer if the history is shorter).
func (h History) Last(n int) History {
	if n <= 0 {
		return nil
	}
	if n >= len(h) {
		return h
	}
	return h[len(h)-n:]
}

// Parse builds a round from operator input. With an outcome the cards are
// optional; without one both cards are required and decide the winner.
// Card text that is not a recognised rank is rejected.
func Parse(outcome, sideA, sideB string, at time.Time) (Round, error) {
	a, b := ParseRank(sideA), ParseRank(sideB)
	for _, c := range []Rank{a, b} {
		if c != NoRank && !c.Valid() {
			return Round{}, fmt.Errorf("unknown card %q", string(c))
		}
	}
	if strings.TrimSpace(outcome) == "" {
		return RoundFromCards(a, b, at)
	}
	o, err := ParseOutcome(outcome)
	if err != nil {
		return Round{}, err
	}
	return NewRound(o, a, b, at)
}
