package analysis

import (
	"sync"

	"github.com/MJE43/studio-analyzer/internal/round"
)

// CommitFunc persists the outcome of an event before the session adopts
// it. Returning an error leaves the session unchanged.
type CommitFunc func(next State, res Result) error

// Session owns the State of one table and serialises access to it, so a
// round append and the cooldown change it causes land together.
type Session struct {
	mu     sync.Mutex
	engine *Engine
	state  State
	last   Result
}

// NewSession starts an empty session.
func NewSession(e *Engine) *Session {
	return &Session{engine: e, last: Neutral()}
}

// RestoreSession rebuilds a session from a stored history by replay.
func RestoreSession(e *Engine, h round.History) *Session {
	st, res := e.Replay(h)
	return &Session{engine: e, state: st, last: res}
}

// Apply runs ev through the engine. When commit is non-nil it is called with
// the new state while the session lock is held; the session only advances
// if commit succeeds.
func (s *Session) Apply(ev Event, commit CommitFunc) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, res := s.engine.Apply(s.state, ev)
	if commit != nil {
		if err := commit(next, res); err != nil {
			return s.last, err
		}
	}
	s.state = next
	s.last = res
	return res, nil
}

// Append adds a round and returns the fresh analysis.
func (s *Session) Append(r round.Round) Result {
	res, _ := s.Apply(AppendEvent(r), nil)
	return res
}

// Clear empties the history and resets the cooldown.
func (s *Session) Clear() Result {
	res, _ := s.Apply(ClearEvent(), nil)
	return res
}

// Last returns the analysis produced by the most recent event.
func (s *Session) Last() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := make(round.History, len(s.state.History))
	copy(h, s.state.History)
	return State{History: h, Cooldown: s.state.Cooldown}
}

// Metrics returns the diagnostic metrics for the current state.
func (s *Session) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Analyze(s.state)
}

// View returns the latest analysis together with the metrics of the state
// that produced it.
func (s *Session) View() (Result, Metrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.engine.Analyze(s.state)
}

// Len is the number of rounds recorded.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.History)
}
