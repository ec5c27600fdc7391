package analysis

import (
	"math"

	"github.com/MJE43/studio-analyzer/internal/round"
)

// Forecaster turns a history and its detected pattern into a probability
// vector for the next round.
type Forecaster interface {
	Name() string
	Forecast(h round.History, p Pattern) Distribution
}

const (
	streakBoostPerRound = 0.05
	streakBoostCap      = 0.25
)

// BlendForecaster mixes plain frequency with recency-weighted frequency and
// adds a continuation bias for the trailing streak. It ignores card data.
type BlendForecaster struct {
	Decay         float64
	SimpleWeight  float64
	RecencyWeight float64
}

// NewBlendForecaster returns the blend with the default 0.4/0.6 weights.
func NewBlendForecaster(decay float64) *BlendForecaster {
	if decay <= 0 {
		decay = DefaultDecay
	}
	return &BlendForecaster{Decay: decay, SimpleWeight: 0.4, RecencyWeight: 0.6}
}

func (f *BlendForecaster) Name() string { return "blend" }

func (f *BlendForecaster) Forecast(h round.History, _ Pattern) Distribution {
	outcomes := h.Outcomes()
	if len(outcomes) == 0 {
		return Uniform
	}
	simple := SimpleFrequency(outcomes)
	recent := RecencyWeighted(outcomes, f.Decay)

	var combined Distribution
	for _, o := range round.Outcomes {
		combined[o] = f.SimpleWeight*simple[o] + f.RecencyWeight*recent[o]
	}

	if s := trailingSideStreak(outcomes); s.Length >= 2 {
		combined[s.Outcome] += math.Min(streakBoostCap, streakBoostPerRound*float64(s.Length))
	}
	return combined.Normalized()
}

// CardTierForecaster derives the vector from the tier of the last winning
// card and then applies pattern adjustments. Rounds it cannot read (a Tie
// or no card) are handed to Fallback.
type CardTierForecaster struct {
	Fallback Forecaster
}

// NewCardTierForecaster uses a default blend as fallback when none is given.
func NewCardTierForecaster(fallback Forecaster) *CardTierForecaster {
	if fallback == nil {
		fallback = NewBlendForecaster(DefaultDecay)
	}
	return &CardTierForecaster{Fallback: fallback}
}

func (f *CardTierForecaster) Name() string { return "card_tier" }

func (f *CardTierForecaster) Forecast(h round.History, p Pattern) Distribution {
	if len(h) == 0 {
		return Uniform
	}
	last := h[len(h)-1]
	tier, ok := last.Tier()
	if !ok || last.Outcome == round.Tie {
		return f.Fallback.Forecast(h, p)
	}

	same := last.Outcome
	other := same.Other()
	var d Distribution
	switch tier {
	case round.TierHigh:
		d[same] = 0.70
		d[other] = 0.95 * 0.30
		d[round.Tie] = 1 - d[same] - d[other]
	case round.TierMedium:
		base := 0.52
		if p == PatternRepetition {
			base = 0.60
		}
		d[same] = base
		d[other] = 1 - base - 0.03
		d[round.Tie] = 0.03
	default:
		d[other] = 0.75
		d[same] = 1 - 0.75 - 0.04
		d[round.Tie] = 0.04
	}

	switch p {
	case PatternRepetition:
		d = d.withShare(same, math.Min(0.95, d[same]+0.10))
	case PatternAlternation:
		if d[other] < 0.55 {
			d = d.withShare(other, 0.55)
		}
	case PatternSteppedPair:
		prev := h[len(h)-2].Outcome
		if prev == same && d[same] < 0.70 {
			d = d.withShare(same, 0.70)
		}
	case PatternControlledBreak:
		// The last round is the High one in a Low, Low, High tail.
		if d[same] < 0.60 {
			d = d.withShare(same, 0.60)
		}
		if d[round.Tie] < 0.06 {
			d = d.withShare(round.Tie, 0.06)
		}
	}
	return d.Normalized()
}
