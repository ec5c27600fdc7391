package round

import "strings"

// Rank is a card rank symbol as entered at the table: "2".."10", "J", "Q", "K", "A".
// The zero value means no card was recorded for that side.
type Rank string

// NoRank marks a side without a recorded card.
const NoRank Rank = ""

// Ranks in ascending order: 2-10, J, Q, K, A
var cardRanks = []Rank{"2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K", "A"}

// Ranks returns the recognised rank symbols in ascending order.
func Ranks() []Rank {
	out := make([]Rank, len(cardRanks))
	copy(out, cardRanks)
	return out
}

// ParseRank normalises user input ("q", " 10 ", "a") into a Rank.
// Unrecognised text is kept as-is; it classifies as value 0 / Low.
func ParseRank(s string) Rank {
	return Rank(strings.ToUpper(strings.TrimSpace(s)))
}

// Valid reports whether r is one of the thirteen recognised symbols.
func (r Rank) Valid() bool {
	return r.Value() != 0
}

// Value returns the numeric value used for comparison.
// 2=2, ..., 10=10, J=11, Q=12, K=13, A=14; anything else is 0.
func (r Rank) Value() int {
	switch r {
	case "2":
		return 2
	case "3":
		return 3
	case "4":
		return 4
	case "5":
		return 5
	case "6":
		return 6
	case "7":
		return 7
	case "8":
		return 8
	case "9":
		return 9
	case "10":
		return 10
	case "J":
		return 11
	case "Q":
		return 12
	case "K":
		return 13
	case "A":
		return 14
	default:
		return 0
	}
}

// Tier classifies a card by value band.
type Tier int

const (
	TierLow Tier = iota
	TierMedium
	TierHigh
)

// tierByValue is indexed by Rank.Value(); index 0 (unknown) and 2-7 are Low.
var tierByValue = [15]Tier{
	8:  TierMedium,
	9:  TierMedium,
	10: TierMedium,
	11: TierHigh,
	12: TierHigh,
	13: TierHigh,
	14: TierHigh,
}

// Tier returns the value band of r. Every rank maps to exactly one tier.
func (r Rank) Tier() Tier {
	return tierByValue[r.Value()]
}

func (t Tier) String() string {
	switch t {
	case TierHigh:
		return "high"
	case TierMedium:
		return "medium"
	default:
		return "low"
	}
}

// Label returns the export label used in CSV files (alta, media, baixa).
func (t Tier) Label() string {
	switch t {
	case TierHigh:
		return "alta"
	case TierMedium:
		return "media"
	default:
		return "baixa"
	}
}

// ParseTierLabel is the inverse of Label. Unknown labels map to TierLow.
func ParseTierLabel(s string) Tier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "alta", "high":
		return TierHigh
	case "media", "medium":
		return TierMedium
	default:
		return TierLow
	}
}
