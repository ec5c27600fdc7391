package analysis

import (
	"encoding/json"
	"fmt"

	"github.com/MJE43/studio-analyzer/internal/round"
)

// Suggestion is either "wait" or a side to back. The zero value is wait.
type Suggestion struct {
	bet  bool
	side round.Outcome
}

// Wait is the non-actionable suggestion.
var Wait = Suggestion{}

// Bet suggests backing o.
func Bet(o round.Outcome) Suggestion {
	return Suggestion{bet: true, side: o}
}

// IsWait reports whether the suggestion is non-actionable.
func (s Suggestion) IsWait() bool { return !s.bet }

// Side returns the suggested outcome and whether there is one.
func (s Suggestion) Side() (round.Outcome, bool) {
	return s.side, s.bet
}

func (s Suggestion) String() string {
	if !s.bet {
		return "wait"
	}
	return s.side.String()
}

// ParseSuggestion reads the String form back.
func ParseSuggestion(v string) (Suggestion, error) {
	if v == "" || v == "wait" {
		return Wait, nil
	}
	o, err := round.ParseOutcome(v)
	if err != nil {
		return Wait, fmt.Errorf("invalid suggestion: %w", err)
	}
	return Bet(o), nil
}

func (s Suggestion) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Suggestion) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	parsed, err := ParseSuggestion(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Decision is what a policy emits for one evaluation.
type Decision struct {
	Suggestion Suggestion
	Reason     string
}

// Decision reasons shared by the built-in policies.
const (
	ReasonInsufficient = "insufficient history"
	ReasonCooldown     = "cooldown"
	ReasonTieBreak     = "tie breaks read"
	ReasonZigzag       = "zigzag"
	ReasonLongStreak   = "long streak risk"
	ReasonShortRun     = "clean short continuation"
	ReasonNoEdge       = "no statistical edge"
	ReasonBalanced     = "probabilities too balanced"
	ReasonTopForecast  = "top forecast"
)

// PolicyInput is everything a policy may look at. It is a read-only view.
type PolicyInput struct {
	Outcomes      []round.Outcome
	Pattern       Pattern
	Probabilities Distribution
	Level         int
	Confidence    float64
	Cooldown      int
}

// Policy turns an analysed sequence into a suggestion. It receives the
// current cooldown counter and returns the counter to carry forward.
type Policy interface {
	Name() string
	Decide(in PolicyInput) (Decision, int)
}

// ThresholdPolicy suggests the top forecast whenever it clears MinProbability.
// It keeps no state.
type ThresholdPolicy struct {
	MinProbability float64
}

// NewThresholdPolicy returns the policy with the default 0.34 threshold.
func NewThresholdPolicy() *ThresholdPolicy {
	return &ThresholdPolicy{MinProbability: 0.34}
}

func (p *ThresholdPolicy) Name() string { return "threshold" }

func (p *ThresholdPolicy) Decide(in PolicyInput) (Decision, int) {
	if in.Pattern == PatternInsufficient {
		return Decision{Suggestion: Wait, Reason: ReasonInsufficient}, in.Cooldown
	}
	top := in.Probabilities.Top()
	if in.Probabilities[top] < p.MinProbability {
		return Decision{Suggestion: Wait, Reason: ReasonBalanced}, in.Cooldown
	}
	return Decision{Suggestion: Bet(top), Reason: ReasonTopForecast}, in.Cooldown
}

// CooldownPolicy is the conservative state machine: it only backs a clean
// streak of two or three, and sits out a round after ties and long streaks.
type CooldownPolicy struct {
	MinHistory     int
	LongStreak     int
	CooldownRounds int
}

// NewCooldownPolicy returns the machine with its default thresholds.
func NewCooldownPolicy() *CooldownPolicy {
	return &CooldownPolicy{MinHistory: 6, LongStreak: 4, CooldownRounds: 1}
}

func (p *CooldownPolicy) Name() string { return "cooldown" }

func (p *CooldownPolicy) Decide(in PolicyInput) (Decision, int) {
	o := in.Outcomes
	n := len(o)
	cooldown := in.Cooldown

	if n < p.MinHistory {
		return Decision{Suggestion: Wait, Reason: ReasonInsufficient}, cooldown
	}
	if cooldown > 0 {
		return Decision{Suggestion: Wait, Reason: ReasonCooldown}, cooldown - 1
	}
	if o[n-1] == round.Tie || o[n-2] == round.Tie {
		return Decision{Suggestion: Wait, Reason: ReasonTieBreak}, p.CooldownRounds
	}
	if isAlternating(o) {
		return Decision{Suggestion: Wait, Reason: ReasonZigzag}, cooldown
	}

	streak := trailingSideStreak(o)
	switch {
	case streak.Length >= p.LongStreak:
		return Decision{Suggestion: Wait, Reason: ReasonLongStreak}, p.CooldownRounds
	case streak.Length >= 2:
		return Decision{Suggestion: Bet(streak.Outcome), Reason: ReasonShortRun}, cooldown
	default:
		return Decision{Suggestion: Wait, Reason: ReasonNoEdge}, cooldown
	}
}
