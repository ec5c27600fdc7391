package analysis

import (
	"encoding/json"

	"github.com/MJE43/studio-analyzer/internal/round"
)

// State is everything the engine needs between events: the round log and
// the cooldown counter used by stateful policies.
type State struct {
	History  round.History `json:"history"`
	Cooldown int           `json:"cooldown_rounds_remaining"`
}

// EventKind distinguishes the two inputs the engine accepts.
type EventKind int

const (
	EventAppend EventKind = iota
	EventClear
)

// Event is one input from the surrounding application.
type Event struct {
	Kind  EventKind
	Round round.Round
}

// AppendEvent wraps a round for Apply.
func AppendEvent(r round.Round) Event {
	return Event{Kind: EventAppend, Round: r}
}

// ClearEvent empties the history and resets the cooldown.
func ClearEvent() Event {
	return Event{Kind: EventClear}
}

// Phase is the policy state reported alongside a result.
type Phase int

const (
	PhaseAwait Phase = iota
	PhaseSuggest
	PhaseCooldown
)

func (p Phase) String() string {
	switch p {
	case PhaseSuggest:
		return "suggest"
	case PhaseCooldown:
		return "cooldown"
	default:
		return "await"
	}
}

func (p Phase) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Phase) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch s {
	case "suggest":
		*p = PhaseSuggest
	case "cooldown":
		*p = PhaseCooldown
	default:
		*p = PhaseAwait
	}
	return nil
}

// Result is the full analysis after an event. It is recomputed on every
// event and carries no identity.
type Result struct {
	Rounds            int           `json:"rounds"`
	Pattern           Pattern       `json:"pattern"`
	Probabilities     Distribution  `json:"probabilities"`
	Forecast          round.Outcome `json:"forecast"`
	ManipulationLevel int           `json:"manipulation_level"`
	Confidence        float64       `json:"confidence"`
	Suggestion        Suggestion    `json:"suggestion"`
	Reason            string        `json:"reason"`
	RiskLabel         RiskLabel     `json:"risk_label"`
	Phase             Phase         `json:"phase"`
	Cooldown          int           `json:"cooldown_rounds_remaining"`
}

// Neutral is the result for an empty history.
func Neutral() Result {
	return Result{
		Pattern:           PatternInsufficient,
		Probabilities:     Uniform,
		Forecast:          round.Tie,
		ManipulationLevel: minLevel,
		Confidence:        0,
		Suggestion:        Wait,
		Reason:            ReasonInsufficient,
		RiskLabel:         RiskHigh,
		Phase:             PhaseAwait,
	}
}

// Metrics is the raw diagnostic view of a history.
type Metrics struct {
	Rounds          int          `json:"rounds"`
	SimpleFrequency Distribution `json:"simple_frequency"`
	RecencyWeighted Distribution `json:"recency_weighted_frequency"`
	Combined        Distribution `json:"combined"`
	AlternationRate float64      `json:"alternation_rate"`
	Entropy         float64      `json:"entropy"`
	Streaks         []Streak     `json:"historical_streaks"`
	CurrentStreak   Streak       `json:"current_streak"`
	PostStreakTies  int          `json:"post_streak_ties"`
	Risk            RiskScore    `json:"risk"`
}

// Engine combines a forecaster and a policy. It holds no per-table state;
// callers keep State and feed it back through Apply.
type Engine struct {
	forecaster Forecaster
	policy     Policy
	decay      float64
}

// Option configures an Engine.
type Option func(*Engine)

// WithForecaster replaces the default blend forecaster.
func WithForecaster(f Forecaster) Option {
	return func(e *Engine) {
		if f != nil {
			e.forecaster = f
		}
	}
}

// WithPolicy replaces the default threshold policy.
func WithPolicy(p Policy) Option {
	return func(e *Engine) {
		if p != nil {
			e.policy = p
		}
	}
}

// WithDecay sets the recency decay used for diagnostic metrics.
func WithDecay(d float64) Option {
	return func(e *Engine) {
		if d > 0 {
			e.decay = d
		}
	}
}

// New builds an engine. Without options it uses the blend forecaster and
// the threshold policy.
func New(opts ...Option) *Engine {
	e := &Engine{decay: DefaultDecay}
	for _, opt := range opts {
		opt(e)
	}
	if e.forecaster == nil {
		e.forecaster = NewBlendForecaster(e.decay)
	}
	if e.policy == nil {
		e.policy = NewThresholdPolicy()
	}
	return e
}

// ForecasterName reports the configured forecaster.
func (e *Engine) ForecasterName() string { return e.forecaster.Name() }

// PolicyName reports the configured policy.
func (e *Engine) PolicyName() string { return e.policy.Name() }

// Apply computes the state after ev and the analysis of that state. It does
// not modify st.
func (e *Engine) Apply(st State, ev Event) (State, Result) {
	if ev.Kind == EventClear {
		return State{}, Neutral()
	}
	next := State{History: st.History.Append(ev.Round), Cooldown: st.Cooldown}
	res, cooldown := e.evaluate(next)
	next.Cooldown = cooldown
	res.Cooldown = cooldown
	return next, res
}

// Replay rebuilds the state and last result for a stored history. It gives
// the same result as applying every round from an empty state, but copies
// the history once and evaluates each prefix of that copy in place.
func (e *Engine) Replay(h round.History) (State, Result) {
	full := make(round.History, len(h))
	for i, r := range h {
		r.Index = i
		full[i] = r
	}
	st, res := State{}, Neutral()
	for i := range full {
		st.History = full[: i+1 : i+1]
		res, st.Cooldown = e.evaluate(st)
		res.Cooldown = st.Cooldown
	}
	return st, res
}

func (e *Engine) evaluate(st State) (Result, int) {
	h := st.History
	if len(h) == 0 {
		return Neutral(), st.Cooldown
	}
	outcomes := h.Outcomes()
	pattern := DetectPattern(h)
	probs := e.forecaster.Forecast(h, pattern)
	level := ManipulationLevel(outcomes)

	forecast := probs.Top()
	confidence := Confidence(probs, level)
	if pattern == PatternInsufficient {
		forecast = round.Tie
		confidence = 0
	}

	decision, cooldown := e.policy.Decide(PolicyInput{
		Outcomes:      outcomes,
		Pattern:       pattern,
		Probabilities: probs,
		Level:         level,
		Confidence:    confidence,
		Cooldown:      st.Cooldown,
	})
	if cooldown < 0 {
		cooldown = 0
	}
	if pattern == PatternInsufficient && !decision.Suggestion.IsWait() {
		decision = Decision{Suggestion: Wait, Reason: ReasonInsufficient}
	}

	phase := PhaseAwait
	switch {
	case !decision.Suggestion.IsWait():
		phase = PhaseSuggest
	case cooldown > 0 || decision.Reason == ReasonCooldown:
		phase = PhaseCooldown
	}

	return Result{
		Rounds:            len(h),
		Pattern:           pattern,
		Probabilities:     probs,
		Forecast:          forecast,
		ManipulationLevel: level,
		Confidence:        confidence,
		Suggestion:        decision.Suggestion,
		Reason:            decision.Reason,
		RiskLabel:         LabelRisk(level, confidence),
		Phase:             phase,
	}, cooldown
}

// Analyze returns the diagnostic metrics for st without touching the policy.
func (e *Engine) Analyze(st State) Metrics {
	outcomes := st.History.Outcomes()
	return Metrics{
		Rounds:          len(outcomes),
		SimpleFrequency: SimpleFrequency(outcomes),
		RecencyWeighted: RecencyWeighted(outcomes, e.decay),
		Combined:        e.forecaster.Forecast(st.History, DetectPattern(st.History)),
		AlternationRate: AlternationRate(outcomes),
		Entropy:         Entropy(outcomes),
		Streaks:         HistoricalStreaks(outcomes),
		CurrentStreak:   CurrentStreak(outcomes),
		PostStreakTies:  PostStreakTies(outcomes),
		Risk:            ScoreRisk(outcomes),
	}
}
