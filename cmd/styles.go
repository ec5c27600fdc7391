package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/MJE43/studio-analyzer/internal/analysis"
	"github.com/MJE43/studio-analyzer/internal/export"
	"github.com/MJE43/studio-analyzer/internal/round"
)

var (
	colorRed    = lipgloss.Color("#f85149")
	colorBlue   = lipgloss.Color("#58a6ff")
	colorTie    = lipgloss.Color("#d29922")
	colorMuted  = lipgloss.Color("#8b949e")
	colorBorder = lipgloss.Color("#30363d")
	colorGood   = lipgloss.Color("#3fb950")

	labelStyle  = lipgloss.NewStyle().Foreground(colorMuted).Width(14)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorMuted).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	waitStyle   = lipgloss.NewStyle().Foreground(colorMuted).Bold(true)
	actStyle    = lipgloss.NewStyle().Foreground(colorGood).Bold(true)
)

func outcomeStyle(o round.Outcome) lipgloss.Style {
	switch o {
	case round.SideA:
		return lipgloss.NewStyle().Foreground(colorRed)
	case round.SideB:
		return lipgloss.NewStyle().Foreground(colorBlue)
	default:
		return lipgloss.NewStyle().Foreground(colorTie)
	}
}

func renderOutcome(o round.Outcome) string {
	return outcomeStyle(o).Render(o.String())
}

// renderStrip draws the outcome sequence as a row of coloured markers.
func renderStrip(h round.History) string {
	var b strings.Builder
	for _, r := range h {
		mark := "●"
		if r.Outcome == round.Tie {
			mark = "◆"
		}
		b.WriteString(outcomeStyle(r.Outcome).Render(mark))
	}
	return b.String()
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorBorder)).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

// renderResult formats an analysis for the terminal.
func renderResult(res analysis.Result) string {
	var b strings.Builder
	line := func(k, v string) {
		b.WriteString(labelStyle.Render(k) + " " + v + "\n")
	}

	suggestion := waitStyle.Render("WAIT")
	if side, ok := res.Suggestion.Side(); ok {
		suggestion = actStyle.Render("ACT ") + renderOutcome(side)
	}

	line("rounds", fmt.Sprint(res.Rounds))
	line("pattern", res.Pattern.String())
	line("forecast", renderOutcome(res.Forecast))
	line("probabilities", export.FormatDistribution(res.Probabilities, 1))
	line("level", fmt.Sprintf("%d / 10", res.ManipulationLevel))
	line("confidence", fmt.Sprintf("%.1f%%", res.Confidence))
	line("risk", res.RiskLabel.String())
	line("suggestion", suggestion)
	line("reason", res.Reason)
	line("phase", res.Phase.String())
	if res.Cooldown > 0 {
		line("cooldown", fmt.Sprintf("%d round(s)", res.Cooldown))
	}
	return b.String()
}
