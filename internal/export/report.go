package export

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/MJE43/studio-analyzer/internal/analysis"
)

var hundred = decimal.NewFromInt(100)

// percent formats a fraction as a percentage with the given decimals.
func percent(f float64, places int32) string {
	return decimal.NewFromFloat(f).Mul(hundred).StringFixed(places) + "%"
}

func fixed(f float64, places int32) string {
	return decimal.NewFromFloat(f).StringFixed(places)
}

// FormatDistribution renders d highest first, e.g. "side_a=61.2% tie=20.0% side_b=18.8%".
func FormatDistribution(d analysis.Distribution, places int32) string {
	parts := make([]string, 0, len(d))
	for _, e := range d.Sorted() {
		parts = append(parts, e.Outcome.String()+"="+percent(e.Probability, places))
	}
	return strings.Join(parts, " ")
}

func formatStreaks(streaks []analysis.Streak) string {
	if len(streaks) == 0 {
		return "-"
	}
	parts := make([]string, len(streaks))
	for i, s := range streaks {
		parts[i] = fmt.Sprintf("%s x%d", s.Outcome, s.Length)
	}
	return strings.Join(parts, ", ")
}

// WriteReport writes the latest result and the raw metrics as key: value lines.
func WriteReport(w io.Writer, res analysis.Result, m analysis.Metrics) error {
	bw := bufio.NewWriter(w)
	line := func(k, v string) {
		fmt.Fprintf(bw, "%s: %s\n", k, v)
	}

	line("rounds", fmt.Sprint(res.Rounds))
	line("pattern", res.Pattern.String())
	line("forecast", res.Forecast.String())
	line("probabilities", FormatDistribution(res.Probabilities, 1))
	line("manipulation_level", fmt.Sprint(res.ManipulationLevel))
	line("confidence", fixed(res.Confidence, 1))
	line("suggestion", res.Suggestion.String())
	line("reason", res.Reason)
	line("risk_label", res.RiskLabel.String())
	line("phase", res.Phase.String())
	line("cooldown_rounds_remaining", fmt.Sprint(res.Cooldown))

	line("simple_frequency", FormatDistribution(m.SimpleFrequency, 2))
	line("recency_weighted_frequency", FormatDistribution(m.RecencyWeighted, 2))
	line("combined", FormatDistribution(m.Combined, 2))
	line("alternation_rate", fixed(m.AlternationRate, 3))
	line("entropy", fixed(m.Entropy, 3))
	line("historical_streaks", formatStreaks(m.Streaks))
	if m.CurrentStreak.Length > 0 {
		line("current_streak", formatStreaks([]analysis.Streak{m.CurrentStreak}))
	} else {
		line("current_streak", "-")
	}
	line("post_streak_ties", fmt.Sprint(m.PostStreakTies))

	return bw.Flush()
}
