package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/MJE43/studio-analyzer/internal/round"
)

// Header is the first row of every exported file.
var Header = []string{"timestamp", "winner", "card", "value", "value_class"}

// Row is the exported view of one round.
type Row struct {
	Timestamp  time.Time
	Winner     string
	Card       round.Rank
	Value      int
	ValueClass string
}

// RowFor flattens r. The card is the winning side's rank, or SideA's on a tie.
func RowFor(r round.Round) Row {
	card := r.Card()
	return Row{
		Timestamp:  r.Timestamp,
		Winner:     r.Outcome.Color(),
		Card:       card,
		Value:      card.Value(),
		ValueClass: card.Tier().Label(),
	}
}

func (r Row) record() []string {
	return []string{
		r.Timestamp.UTC().Format(time.RFC3339),
		r.Winner,
		string(r.Card),
		strconv.Itoa(r.Value),
		r.ValueClass,
	}
}

// WriteCSV writes h with a header row.
func WriteCSV(w io.Writer, h round.History) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range h {
		if err := cw.Write(RowFor(r).record()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ParseCSV reads a file produced by WriteCSV back into a history. The card
// is placed on the winning side (SideA for a tie); value and value_class are
// derived from it and only checked for presence. Unknown card text is kept
// as-is, like NewRound does.
func ParseCSV(r io.Reader) (round.History, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)
	cr.TrimLeadingSpace = true

	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, col := range Header {
		if !strings.EqualFold(strings.TrimSpace(head[i]), col) {
			return nil, fmt.Errorf("unexpected column %d: got %q, want %q", i+1, head[i], col)
		}
	}

	var h round.History
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return h, nil
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rd, err := parseRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		h = h.Append(rd)
	}
}

func parseRecord(rec []string) (round.Round, error) {
	ts, err := time.Parse(time.RFC3339, rec[0])
	if err != nil {
		return round.Round{}, fmt.Errorf("invalid timestamp %q: %w", rec[0], err)
	}
	o, err := round.ParseOutcome(rec[1])
	if err != nil {
		return round.Round{}, err
	}
	card := round.ParseRank(rec[2])
	if _, err := strconv.Atoi(rec[3]); err != nil {
		return round.Round{}, fmt.Errorf("invalid value %q", rec[3])
	}

	a, b := card, round.NoRank
	if o == round.SideB {
		a, b = round.NoRank, card
	}
	return round.NewRound(o, a, b, ts)
}
