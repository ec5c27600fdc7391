package script

import (
	"strings"
	"testing"
	"time"

	"github.com/MJE43/studio-analyzer/internal/analysis"
	"github.com/MJE43/studio-analyzer/internal/logging"
	"github.com/MJE43/studio-analyzer/internal/round"
)

func input(outcomes ...round.Outcome) analysis.PolicyInput {
	return analysis.PolicyInput{
		Outcomes:      outcomes,
		Pattern:       analysis.PatternRepetition,
		Probabilities: analysis.Distribution{0.6, 0.3, 0.1},
		Level:         3,
		Confidence:    41.5,
	}
}

func TestLoadRequiresSuggest(t *testing.T) {
	if _, err := Load(`var x = 1`, WithLogger(logging.Discard())); err == nil {
		t.Fatal("expected error when suggest is missing")
	}
	if _, err := Load(`function suggest( {`, WithLogger(logging.Discard())); err == nil {
		t.Fatal("expected syntax error")
	}
}

func TestDecideReturnsObject(t *testing.T) {
	p, err := Load(`
		function suggest(ctx) {
			if (ctx.rounds < 3) return "wait"
			var last = ctx.outcomes[ctx.outcomes.length - 1]
			log("pattern", ctx.pattern, "top", ctx.probabilities.side_a)
			return { suggestion: last, reason: "follow " + ctx.pattern, cooldown: 2 }
		}
	`, WithLogger(logging.Discard()))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	d, cd := p.Decide(input(round.SideB, round.SideB, round.SideB))
	if side, ok := d.Suggestion.Side(); !ok || side != round.SideB {
		t.Errorf("suggestion = %s, want side_b", d.Suggestion)
	}
	if d.Reason != "follow repetition" || cd != 2 {
		t.Errorf("reason/cooldown = %q/%d", d.Reason, cd)
	}

	d, _ = p.Decide(input(round.SideA))
	if !d.Suggestion.IsWait() || d.Reason != "script" {
		t.Errorf("short input should wait, got %s/%q", d.Suggestion, d.Reason)
	}

	logs := p.Logs()
	if len(logs) != 1 || !strings.HasPrefix(logs[0], "pattern repetition top 0.6") {
		t.Errorf("logs = %v", logs)
	}
}

func TestDecideKeepsCooldownWhenOmitted(t *testing.T) {
	p, err := Load(`function suggest(ctx) { return { suggestion: "wait", reason: "cd " + ctx.cooldown } }`,
		WithLogger(logging.Discard()))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	in := input(round.SideA)
	in.Cooldown = 3
	d, cd := p.Decide(in)
	if cd != 3 || d.Reason != "cd 3" {
		t.Errorf("got %q/%d", d.Reason, cd)
	}
}

func TestDecideScriptErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"throws", `function suggest() { throw new Error("boom") }`},
		{"bad side", `function suggest() { return "green" }`},
		{"no value", `function suggest() {}`},
		{"bad cooldown", `function suggest() { return { suggestion: "wait", cooldown: "x" } }`},
		{"sandboxed eval", `function suggest() { return eval("'side_a'") }`},
		{"function constructor", `function suggest() { return (function(){}).constructor("return 'side_a'")() }`},
		{"generator constructor", `function suggest() { return (function*(){}).constructor("yield 'side_a'")().next().value }`},
		{"async constructor", `function suggest() { return (async function(){}).constructor("return 1") && "side_a" }`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Load(tt.src, WithLogger(logging.Discard()))
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			in := input(round.SideA)
			in.Cooldown = 1
			d, cd := p.Decide(in)
			if !d.Suggestion.IsWait() || d.Reason != ReasonScriptError || cd != 1 {
				t.Errorf("got %s/%q/%d", d.Suggestion, d.Reason, cd)
			}
		})
	}
}

func TestLoadRejectsFunctionConstructor(t *testing.T) {
	src := `
		var compiled = (function(){}).constructor("return 'side_b'")
		function suggest() { return compiled() }
	`
	if _, err := Load(src, WithLogger(logging.Discard())); err == nil {
		t.Fatal("expected load to fail when compiling code through a function constructor")
	}
	p, err := Load(`function suggest() { return typeof (function(){}).constructor === "undefined" ? "side_a" : "side_b" }`,
		WithLogger(logging.Discard()))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	d, _ := p.Decide(input(round.SideA))
	if side, ok := d.Suggestion.Side(); !ok || side != round.SideA {
		t.Errorf("constructor still reachable, got %s", d.Suggestion)
	}
}

func TestDecideTimeout(t *testing.T) {
	p, err := Load(`function suggest() { for (;;) {} }`,
		WithLogger(logging.Discard()), WithTimeout(50*time.Millisecond))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	start := time.Now()
	d, _ := p.Decide(input(round.SideA))
	if d.Reason != ReasonScriptError {
		t.Errorf("reason = %q", d.Reason)
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("timeout took %s", time.Since(start))
	}

	// The runtime must still be usable after an interrupt.
	p2, err := Load(`var n = 0; function suggest() { n++; if (n == 1) { for (;;) {} } return "tie" }`,
		WithLogger(logging.Discard()), WithTimeout(50*time.Millisecond))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	p2.Decide(input(round.SideA))
	d, _ = p2.Decide(input(round.SideA))
	if side, ok := d.Suggestion.Side(); !ok || side != round.Tie {
		t.Errorf("second call = %s/%q", d.Suggestion, d.Reason)
	}
}

func TestPolicyInEngine(t *testing.T) {
	p, err := Load(`function suggest(ctx) { return ctx.rounds >= 3 ? "side_a" : "wait" }`,
		WithLogger(logging.Discard()), WithName("always_a"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	e := analysis.New(analysis.WithPolicy(p))
	if e.PolicyName() != "always_a" {
		t.Errorf("policy name = %s", e.PolicyName())
	}
	var st analysis.State
	var res analysis.Result
	for _, o := range []round.Outcome{round.SideB, round.Tie, round.SideB} {
		r, _ := round.NewRound(o, round.NoRank, round.NoRank, time.Time{})
		st, res = e.Apply(st, analysis.AppendEvent(r))
	}
	if side, ok := res.Suggestion.Side(); !ok || side != round.SideA || res.Phase != analysis.PhaseSuggest {
		t.Errorf("result = %s/%s", res.Suggestion, res.Phase)
	}
}
