package analysis

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/MJE43/studio-analyzer/internal/round"
)

const (
	minLevel = 1
	maxLevel = 10
)

var maxEntropy = math.Log2(round.NumOutcomes)

// RiskScore is the raw [0,1] score behind the manipulation level, split
// into its four terms for diagnostics.
type RiskScore struct {
	StreakTerm      float64 `json:"streak_term"`
	AlternationTerm float64 `json:"alternation_term"`
	TieTerm         float64 `json:"tie_term"`
	EntropyTerm     float64 `json:"entropy_term"`
}

// Total is the clamped sum of the terms.
func (s RiskScore) Total() float64 {
	return clamp01(s.StreakTerm + s.AlternationTerm + s.TieTerm + s.EntropyTerm)
}

// Level maps the score onto 1..10.
func (s RiskScore) Level() int {
	level := minLevel + int(math.Floor(9*s.Total()))
	if level < minLevel {
		return minLevel
	}
	if level > maxLevel {
		return maxLevel
	}
	return level
}

// ScoreRisk computes the four risk terms for a sequence.
func ScoreRisk(outcomes []round.Outcome) RiskScore {
	if len(outcomes) == 0 {
		return RiskScore{}
	}
	maxStreak := MaxStreak(HistoricalStreaks(outcomes))
	alt := AlternationRate(outcomes)
	ties := PostStreakTies(outcomes)
	ent := Entropy(outcomes)

	return RiskScore{
		StreakTerm:      math.Min(0.35, 0.06*float64(maxStreak)),
		AlternationTerm: math.Min(0.35, 0.7*alt),
		TieTerm:         math.Min(0.20, 0.05*float64(ties)),
		EntropyTerm:     math.Min(0.20, 0.4*(1-ent/maxEntropy)),
	}
}

// ManipulationLevel is the 1..10 score of how forced the sequence looks.
// An empty sequence is level 1.
func ManipulationLevel(outcomes []round.Outcome) int {
	if len(outcomes) == 0 {
		return minLevel
	}
	return ScoreRisk(outcomes).Level()
}

// Confidence is the forecast certainty as a percentage with one decimal,
// discounted by the manipulation level.
func Confidence(d Distribution, level int) float64 {
	top1, top2 := d.topTwo()
	gap := top1 - top2
	base := top1 * (0.6 + 0.4*gap)
	adjusted := clamp01(base * (1 - float64(level-1)/12))
	return roundPercent(adjusted)
}

// roundPercent converts a [0,1] fraction into a percentage rounded to one
// decimal place.
func roundPercent(f float64) float64 {
	return decimal.NewFromFloat(f).Mul(decimal.NewFromInt(100)).Round(1).InexactFloat64()
}

// RiskLabel is the coarse risk bucket shown next to a suggestion.
type RiskLabel int

const (
	RiskLow RiskLabel = iota
	RiskMedium
	RiskHigh
)

func (r RiskLabel) String() string {
	switch r {
	case RiskHigh:
		return "high"
	case RiskMedium:
		return "medium"
	default:
		return "low"
	}
}

func (r RiskLabel) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *RiskLabel) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch s {
	case "high":
		*r = RiskHigh
	case "medium":
		*r = RiskMedium
	case "low":
		*r = RiskLow
	default:
		return fmt.Errorf("unknown risk label %q", s)
	}
	return nil
}

// LabelRisk buckets a level/confidence pair.
func LabelRisk(level int, confidence float64) RiskLabel {
	switch {
	case level >= 7 || confidence < 40:
		return RiskHigh
	case level >= 4 || confidence < 65:
		return RiskMedium
	default:
		return RiskLow
	}
}
