package analysis

import (
	"encoding/json"
	"testing"

	"github.com/MJE43/studio-analyzer/internal/round"
)

func TestCooldownPolicyDecide(t *testing.T) {
	p := NewCooldownPolicy()
	tests := []struct {
		name         string
		in           string
		cooldown     int
		wantBet      bool
		wantSide     round.Outcome
		wantReason   string
		wantCooldown int
	}{
		{"short history", "AAB", 0, false, 0, ReasonInsufficient, 0},
		{"cooldown pending", "ABTBAA", 1, false, 0, ReasonCooldown, 0},
		{"last is tie", "ABABBT", 0, false, 0, ReasonTieBreak, 1},
		{"tie one back", "ABABTB", 0, false, 0, ReasonTieBreak, 1},
		{"zigzag", "ABABAB", 0, false, 0, ReasonZigzag, 0},
		{"long streak", "BAAAAA", 0, false, 0, ReasonLongStreak, 1},
		{"clean pair", "ABTBAA", 0, true, round.SideA, ReasonShortRun, 0},
		{"clean triple", "ABTBBB", 0, true, round.SideB, ReasonShortRun, 0},
		{"no edge", "AABTAB", 0, false, 0, ReasonNoEdge, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := history(tt.in)
			d, cd := p.Decide(PolicyInput{
				Outcomes: h.Outcomes(),
				Pattern:  DetectPattern(h),
				Cooldown: tt.cooldown,
			})
			if d.Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", d.Reason, tt.wantReason)
			}
			if cd != tt.wantCooldown {
				t.Errorf("cooldown = %d, want %d", cd, tt.wantCooldown)
			}
			side, ok := d.Suggestion.Side()
			if ok != tt.wantBet {
				t.Fatalf("suggestion = %s, want bet=%v", d.Suggestion, tt.wantBet)
			}
			if ok && side != tt.wantSide {
				t.Errorf("side = %s, want %s", side, tt.wantSide)
			}
		})
	}
}

func TestThresholdPolicyDecide(t *testing.T) {
	p := NewThresholdPolicy()

	d, _ := p.Decide(PolicyInput{Pattern: PatternNone, Probabilities: Distribution{0.335, 0.333, 0.332}})
	if !d.Suggestion.IsWait() || d.Reason != ReasonBalanced {
		t.Errorf("balanced vector should wait, got %s/%s", d.Suggestion, d.Reason)
	}

	d, _ = p.Decide(PolicyInput{Pattern: PatternNone, Probabilities: Distribution{0.2, 0.5, 0.3}})
	if side, ok := d.Suggestion.Side(); !ok || side != round.SideB {
		t.Errorf("expected side_b, got %s", d.Suggestion)
	}

	d, cd := p.Decide(PolicyInput{Pattern: PatternInsufficient, Probabilities: Distribution{1, 0, 0}, Cooldown: 2})
	if !d.Suggestion.IsWait() || cd != 2 {
		t.Errorf("insufficient data should wait and keep the counter, got %s/%d", d.Suggestion, cd)
	}
}

func TestSuggestionJSON(t *testing.T) {
	for _, s := range []Suggestion{Wait, Bet(round.SideA), Bet(round.Tie)} {
		b, err := json.Marshal(s)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var back Suggestion
		if err := json.Unmarshal(b, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", b, err)
		}
		if back != s {
			t.Errorf("got %s, want %s", back, s)
		}
	}
	if _, err := ParseSuggestion("maybe"); err == nil {
		t.Error("expected error for unknown suggestion")
	}
}
