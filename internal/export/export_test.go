package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/MJE43/studio-analyzer/internal/analysis"
	"github.com/MJE43/studio-analyzer/internal/round"
)

func sampleHistory(t *testing.T) round.History {
	t.Helper()
	base := time.Date(2025, 5, 4, 20, 15, 0, 0, time.UTC)
	var h round.History
	add := func(r round.Round, err error) {
		if err != nil {
			t.Fatalf("build round: %v", err)
		}
		h = h.Append(r)
	}
	add(round.RoundFromCards("K", "4", base))
	add(round.RoundFromCards("3", "9", base.Add(time.Minute)))
	add(round.RoundFromCards("7", "7", base.Add(2*time.Minute)))
	add(round.NewRound(round.SideB, round.NoRank, round.NoRank, base.Add(3*time.Minute)))
	add(round.NewRound(round.Tie, round.NoRank, round.NoRank, base.Add(4*time.Minute)))
	add(round.RoundFromCards("10", "A", base.Add(5*time.Minute)))
	return h
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleHistory(t)); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	want := strings.Join([]string{
		"timestamp,winner,card,value,value_class",
		"2025-05-04T20:15:00Z,red,K,13,alta",
		"2025-05-04T20:16:00Z,blue,9,9,media",
		"2025-05-04T20:17:00Z,tie,7,7,baixa",
		"2025-05-04T20:18:00Z,blue,,0,baixa",
		"2025-05-04T20:19:00Z,tie,,0,baixa",
		"2025-05-04T20:20:00Z,blue,A,14,alta",
	}, "\n") + "\n"
	if buf.String() != want {
		t.Errorf("csv mismatch\ngot:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestCSVRoundTrip(t *testing.T) {
	h := sampleHistory(t)
	var buf bytes.Buffer
	if err := WriteCSV(&buf, h); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	back, err := ParseCSV(&buf)
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(back) != len(h) {
		t.Fatalf("got %d rows, want %d", len(back), len(h))
	}
	for i := range h {
		got, want := RowFor(back[i]), RowFor(h[i])
		if got.Winner != want.Winner || got.Card != want.Card || got.Value != want.Value || got.ValueClass != want.ValueClass {
			t.Errorf("row %d: got %+v, want %+v", i, got, want)
		}
		if back[i].Index != i {
			t.Errorf("row %d: index %d", i, back[i].Index)
		}
	}
}

func TestCSVRoundTripOddRanks(t *testing.T) {
	at := time.Date(2025, 5, 4, 21, 0, 0, 0, time.UTC)
	var h round.History
	for _, tc := range []struct {
		o    round.Outcome
		a, b round.Rank
	}{
		{round.SideA, "q", "3"},
		{round.SideB, "2", " k "},
		{round.SideA, "Z", round.NoRank},
		{round.Tie, "11", "11"},
	} {
		r, err := round.NewRound(tc.o, tc.a, tc.b, at)
		if err != nil {
			t.Fatalf("NewRound: %v", err)
		}
		h = h.Append(r)
	}
	if h[0].SideA != "Q" || h[1].SideB != "K" {
		t.Errorf("ranks not normalised: %q %q", h[0].SideA, h[1].SideB)
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, h); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	back, err := ParseCSV(&buf)
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(back) != len(h) {
		t.Fatalf("got %d rows, want %d", len(back), len(h))
	}
	for i := range h {
		got, want := RowFor(back[i]), RowFor(h[i])
		if got.Winner != want.Winner || got.Card != want.Card || got.Value != want.Value || got.ValueClass != want.ValueClass {
			t.Errorf("row %d: got %+v, want %+v", i, got, want)
		}
	}
	if row := RowFor(back[0]); row.Card != "Q" || row.Value != 12 || row.ValueClass != "alta" {
		t.Errorf("lowercase rank came back as %+v", row)
	}
	if row := RowFor(back[2]); row.Card != "Z" || row.Value != 0 || row.ValueClass != "baixa" {
		t.Errorf("unknown rank came back as %+v", row)
	}
}

func TestParseCSVErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"bad header", "when,winner,card,value,value_class\n"},
		{"bad winner", "timestamp,winner,card,value,value_class\n2025-05-04T20:15:00Z,green,K,13,alta\n"},
		{"bad time", "timestamp,winner,card,value,value_class\nyesterday,red,K,13,alta\n"},
		{"short row", "timestamp,winner,card,value,value_class\n2025-05-04T20:15:00Z,red\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseCSV(strings.NewReader(tt.in)); err == nil {
				t.Error("expected error")
			}
		})
	}

	h, err := ParseCSV(strings.NewReader(""))
	if err != nil || len(h) != 0 {
		t.Errorf("empty input: %v, %d rows", err, len(h))
	}
}

func TestWriteReport(t *testing.T) {
	e := analysis.New(analysis.WithPolicy(analysis.NewCooldownPolicy()))
	st, res := e.Replay(sampleHistory(t))

	var buf bytes.Buffer
	if err := WriteReport(&buf, res, e.Analyze(st)); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"rounds: 6\n",
		"pattern: " + res.Pattern.String() + "\n",
		"suggestion: " + res.Suggestion.String() + "\n",
		"risk_label: " + res.RiskLabel.String() + "\n",
		"historical_streaks: -\n",
		"post_streak_ties: 0\n",
		"current_streak: side_b x1\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q\n%s", want, out)
		}
	}
	for _, l := range strings.Split(strings.TrimSpace(out), "\n") {
		if !strings.Contains(l, ": ") {
			t.Errorf("line %q is not key: value", l)
		}
	}
}

func TestFormatDistribution(t *testing.T) {
	got := FormatDistribution(analysis.Distribution{0.2, 0.5, 0.3}, 1)
	if got != "side_b=50.0% tie=30.0% side_a=20.0%" {
		t.Errorf("got %q", got)
	}
}
