package script

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dop251/goja"

	"github.com/MJE43/studio-analyzer/internal/analysis"
	"github.com/MJE43/studio-analyzer/internal/logging"
	"github.com/MJE43/studio-analyzer/internal/round"
)

const (
	scriptInitTimeout = 2 * time.Second
	scriptCallTimeout = 250 * time.Millisecond
	maxLogs           = 200
)

// ReasonScriptError is reported when suggest() throws, times out or
// returns something unreadable.
const ReasonScriptError = "script error"

var errNoSuggest = errors.New("suggest() function is not defined")

// Policy runs a user-supplied suggest(ctx) function as an analysis.Policy.
//
// ctx carries the read-only view the built-in policies see:
//
//	{rounds, outcomes, pattern, probabilities: {side_a, side_b, tie},
//	 level, confidence, cooldown}
//
// suggest returns either a string ("wait", "side_a", ...) or an object
// {suggestion, reason, cooldown}. A missing cooldown keeps the current one.
type Policy struct {
	mu      sync.Mutex
	name    string
	runtime *goja.Runtime
	fn      goja.Callable
	timeout time.Duration
	logger  *log.Logger

	logs []string
}

// Option configures a Policy.
type Option func(*Policy)

// WithTimeout overrides the per-call deadline.
func WithTimeout(d time.Duration) Option {
	return func(p *Policy) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithLogger sets the logger used for script errors and log() output.
func WithLogger(l *log.Logger) Option {
	return func(p *Policy) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithName sets the name reported by Name. Defaults to "script".
func WithName(name string) Option {
	return func(p *Policy) {
		if name != "" {
			p.name = name
		}
	}
}

// Load compiles source and looks up its suggest function.
func Load(source string, opts ...Option) (*Policy, error) {
	p := &Policy{
		name:    "script",
		runtime: goja.New(),
		timeout: scriptCallTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logging.New("script")
	}
	p.sandbox()

	err := p.runWithTimeout(scriptInitTimeout, func() error {
		if _, err := p.runtime.RunString(source); err != nil {
			return fmt.Errorf("script execution error: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	fn, ok := goja.AssertFunction(p.runtime.Get("suggest"))
	if !ok {
		return nil, errNoSuggest
	}
	p.fn = fn
	return p, nil
}

// LoadFile reads and compiles a policy script from disk.
func LoadFile(path string, opts ...Option) (*Policy, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy script: %w", err)
	}
	return Load(string(src), opts...)
}

// sandbox installs log(), removes globals a policy has no business using
// and detaches the constructors that compile source at run time.
func (p *Policy) sandbox() {
	rt := p.runtime
	rt.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		msg := strings.Join(parts, " ")
		if len(p.logs) >= maxLogs {
			p.logs = p.logs[1:]
		}
		p.logs = append(p.logs, msg)
		p.logger.Debug("script log", "msg", msg)
		return goja.Undefined()
	})
	console := rt.NewObject()
	console.Set("log", rt.Get("log"))
	rt.Set("console", console)

	// Each function kind also reaches its constructor through its prototype.
	for _, expr := range []string{
		"Function.prototype",
		"Object.getPrototypeOf(function*(){})",
		"Object.getPrototypeOf(async function(){})",
		"Object.getPrototypeOf(async function*(){})",
	} {
		v, err := rt.RunString(expr)
		if err != nil {
			continue
		}
		proto := v.ToObject(rt)
		if err := proto.DefineDataProperty("constructor", goja.Undefined(), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE); err != nil {
			p.logger.Warn("could not seal function constructor", "prototype", expr, "err", err)
		}
	}
	for _, name := range []string{"require", "fetch", "XMLHttpRequest", "eval", "Function"} {
		rt.Set(name, goja.Undefined())
	}
}

func (p *Policy) Name() string { return p.name }

// Decide calls suggest(ctx). Any failure yields a wait with the cooldown
// left as it was.
func (p *Policy) Decide(in analysis.PolicyInput) (analysis.Decision, int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	d, cooldown, err := p.call(in)
	if err != nil {
		p.logger.Warn("suggest failed", "err", err)
		return analysis.Decision{Suggestion: analysis.Wait, Reason: ReasonScriptError}, in.Cooldown
	}
	return d, cooldown
}

// Logs returns the messages the script has passed to log().
func (p *Policy) Logs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.logs))
	copy(out, p.logs)
	return out
}

func (p *Policy) call(in analysis.PolicyInput) (analysis.Decision, int, error) {
	var ret goja.Value
	err := p.runWithTimeout(p.timeout, func() error {
		v, err := p.fn(goja.Undefined(), p.runtime.ToValue(contextFor(in)))
		if err != nil {
			return fmt.Errorf("suggest() error: %w", err)
		}
		ret = v
		return nil
	})
	if err != nil {
		return analysis.Decision{}, 0, err
	}
	return decode(ret, in.Cooldown)
}

func contextFor(in analysis.PolicyInput) map[string]interface{} {
	outcomes := make([]interface{}, len(in.Outcomes))
	for i, o := range in.Outcomes {
		outcomes[i] = o.String()
	}
	probs := make(map[string]interface{}, len(in.Probabilities))
	for i, v := range in.Probabilities {
		probs[round.Outcome(i).String()] = v
	}
	return map[string]interface{}{
		"rounds":        len(in.Outcomes),
		"outcomes":      outcomes,
		"pattern":       in.Pattern.String(),
		"probabilities": probs,
		"level":         in.Level,
		"confidence":    in.Confidence,
		"cooldown":      in.Cooldown,
	}
}

func decode(v goja.Value, cooldown int) (analysis.Decision, int, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return analysis.Decision{}, 0, errors.New("suggest() returned nothing")
	}

	if s, ok := v.Export().(string); ok {
		sug, err := analysis.ParseSuggestion(s)
		if err != nil {
			return analysis.Decision{}, 0, err
		}
		return analysis.Decision{Suggestion: sug, Reason: "script"}, cooldown, nil
	}

	obj, ok := v.Export().(map[string]interface{})
	if !ok {
		return analysis.Decision{}, 0, fmt.Errorf("suggest() returned %T", v.Export())
	}

	raw, _ := obj["suggestion"].(string)
	sug, err := analysis.ParseSuggestion(raw)
	if err != nil {
		return analysis.Decision{}, 0, err
	}
	reason, _ := obj["reason"].(string)
	if reason == "" {
		reason = "script"
	}
	if c, ok := obj["cooldown"]; ok {
		switch n := c.(type) {
		case int64:
			cooldown = int(n)
		case float64:
			cooldown = int(n)
		default:
			return analysis.Decision{}, 0, fmt.Errorf("cooldown must be a number, got %T", c)
		}
	}
	if cooldown < 0 {
		cooldown = 0
	}
	return analysis.Decision{Suggestion: sug, Reason: reason}, cooldown, nil
}

func (p *Policy) runWithTimeout(timeout time.Duration, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		p.runtime.Interrupt("script execution timeout")
		err := <-done
		p.runtime.ClearInterrupt()
		if err != nil {
			return fmt.Errorf("script timed out: %w", err)
		}
		return errors.New("script timed out")
	}
}
