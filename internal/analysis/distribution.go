package analysis

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/MJE43/studio-analyzer/internal/round"
)

// DefaultDecay is the recency decay used when none is configured.
const DefaultDecay = 0.06

// Distribution is a probability vector over the three outcomes, indexed by round.Outcome.
type Distribution [round.NumOutcomes]float64

// Uniform is the neutral distribution returned for an empty history.
var Uniform = Distribution{1.0 / 3, 1.0 / 3, 1.0 / 3}

// fallbackDistribution replaces a vector whose mass is zero before normalising.
var fallbackDistribution = Distribution{0.49, 0.49, 0.02}

// Of returns the probability assigned to o.
func (d Distribution) Of(o round.Outcome) float64 {
	return d[o]
}

// Sum returns the total mass of the vector.
func (d Distribution) Sum() float64 {
	return d[0] + d[1] + d[2]
}

// Normalized clips negative entries to zero and rescales to sum 1.
// A vector with no mass is replaced by the fallback vector.
func (d Distribution) Normalized() Distribution {
	for i := range d {
		if d[i] < 0 || math.IsNaN(d[i]) {
			d[i] = 0
		}
	}
	total := d.Sum()
	if total <= 0 || math.IsInf(total, 0) {
		return fallbackDistribution
	}
	for i := range d {
		d[i] /= total
	}
	return d
}

// withShare sets o to p and rescales the other two entries so the vector
// still sums to 1. If the others carry no mass they split the remainder evenly.
func (d Distribution) withShare(o round.Outcome, p float64) Distribution {
	p = clamp01(p)
	rest := d.Sum() - d[o]
	out := Distribution{}
	for _, k := range round.Outcomes {
		if k == o {
			out[k] = p
			continue
		}
		if rest <= 0 {
			out[k] = (1 - p) / 2
		} else {
			out[k] = d[k] / rest * (1 - p)
		}
	}
	return out
}

// Top returns the most likely outcome. Ties resolve in SideA, SideB, Tie order.
func (d Distribution) Top() round.Outcome {
	best := round.SideA
	for _, o := range round.Outcomes[1:] {
		if d[o] > d[best] {
			best = o
		}
	}
	return best
}

// Ranked is one entry of a sorted distribution.
type Ranked struct {
	Outcome     round.Outcome `json:"outcome"`
	Probability float64       `json:"probability"`
}

// Sorted returns the entries ordered from most to least likely.
func (d Distribution) Sorted() []Ranked {
	out := make([]Ranked, 0, round.NumOutcomes)
	for _, o := range round.Outcomes {
		out = append(out, Ranked{Outcome: o, Probability: d[o]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Probability > out[j].Probability
	})
	return out
}

// topTwo returns the largest and second largest probabilities.
func (d Distribution) topTwo() (float64, float64) {
	s := d.Sorted()
	return s[0].Probability, s[1].Probability
}

func (d Distribution) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]float64{
		round.SideA.String(): d[round.SideA],
		round.SideB.String(): d[round.SideB],
		round.Tie.String():   d[round.Tie],
	})
}

func (d *Distribution) UnmarshalJSON(b []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*d = Distribution{}
	for k, v := range m {
		o, err := round.ParseOutcome(k)
		if err != nil {
			return err
		}
		d[o] = v
	}
	return nil
}

// SimpleFrequency is the share of each outcome in the sequence.
func SimpleFrequency(outcomes []round.Outcome) Distribution {
	if len(outcomes) == 0 {
		return Uniform
	}
	var d Distribution
	for _, o := range outcomes {
		d[o]++
	}
	return d.Normalized()
}

// RecencyWeighted weights the round at backward offset s (0 = most recent)
// by e^(-decay*s) before normalising.
func RecencyWeighted(outcomes []round.Outcome, decay float64) Distribution {
	if len(outcomes) == 0 {
		return Uniform
	}
	var d Distribution
	n := len(outcomes)
	for i, o := range outcomes {
		s := float64(n - 1 - i)
		d[o] += math.Exp(-decay * s)
	}
	return d.Normalized()
}

// Entropy is the Shannon entropy (base 2) of the outcome counts.
func Entropy(outcomes []round.Outcome) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	var counts [round.NumOutcomes]int
	for _, o := range outcomes {
		counts[o]++
	}
	total := float64(len(outcomes))
	ent := 0.0
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / total
		ent -= p * math.Log2(p)
	}
	return ent
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
