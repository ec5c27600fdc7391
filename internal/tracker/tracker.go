package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/MJE43/studio-analyzer/internal/analysis"
	"github.com/MJE43/studio-analyzer/internal/export"
	"github.com/MJE43/studio-analyzer/internal/logging"
	"github.com/MJE43/studio-analyzer/internal/round"
	"github.com/MJE43/studio-analyzer/internal/roundstore"
)

// Store is the persistence the tracker needs. *roundstore.Store satisfies it.
type Store interface {
	CreateSession(ctx context.Context, name string) (roundstore.Session, error)
	GetSession(ctx context.Context, id uuid.UUID) (roundstore.Session, error)
	ListSessions(ctx context.Context, limit, offset int) ([]roundstore.Session, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error
	AppendRound(ctx context.Context, id uuid.UUID, r round.Round, cooldown int) error
	ClearRounds(ctx context.Context, id uuid.UUID) error
	LoadHistory(ctx context.Context, id uuid.UUID) (round.History, int, error)
	RecentRounds(ctx context.Context, id uuid.UUID, limit int) ([]round.Round, error)
}

// Tracker owns one analysis.Session per table and keeps each in step with
// the store. Sessions are loaded lazily by replaying their stored history.
type Tracker struct {
	engine *analysis.Engine
	store  Store
	logger *log.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*analysis.Session
}

// New creates a tracker. A nil logger uses the "tracker" component logger.
func New(engine *analysis.Engine, store Store, logger *log.Logger) *Tracker {
	if logger == nil {
		logger = logging.New("tracker")
	}
	return &Tracker{
		engine:   engine,
		store:    store,
		logger:   logger,
		sessions: make(map[uuid.UUID]*analysis.Session),
	}
}

// Engine exposes the configured engine, e.g. for reporting its names.
func (t *Tracker) Engine() *analysis.Engine { return t.engine }

func (t *Tracker) CreateSession(ctx context.Context, name string) (roundstore.Session, error) {
	sess, err := t.store.CreateSession(ctx, name)
	if err != nil {
		return roundstore.Session{}, err
	}
	t.mu.Lock()
	t.sessions[sess.ID] = analysis.NewSession(t.engine)
	t.mu.Unlock()
	t.logger.Info("session created", "session", sess.ID, "name", name)
	return sess, nil
}

func (t *Tracker) ListSessions(ctx context.Context, limit, offset int) ([]roundstore.Session, error) {
	return t.store.ListSessions(ctx, limit, offset)
}

func (t *Tracker) GetSession(ctx context.Context, id uuid.UUID) (roundstore.Session, error) {
	return t.store.GetSession(ctx, id)
}

// DeleteSession removes the session from the store and drops its state.
func (t *Tracker) DeleteSession(ctx context.Context, id uuid.UUID) error {
	if err := t.store.DeleteSession(ctx, id); err != nil {
		return err
	}
	t.mu.Lock()
	delete(t.sessions, id)
	t.mu.Unlock()
	t.logger.Info("session deleted", "session", id)
	return nil
}

// session returns the live state for id, replaying it from the store on
// first use. A cached session whose round count no longer matches the store
// (another process wrote to the same database) is replayed again.
func (t *Tracker) session(ctx context.Context, id uuid.UUID) (*analysis.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.sessions[id]; ok {
		stored, err := t.store.GetSession(ctx, id)
		if err != nil {
			if errors.Is(err, roundstore.ErrSessionNotFound) {
				delete(t.sessions, id)
			}
			return nil, err
		}
		if stored.Rounds == int64(s.Len()) {
			return s, nil
		}
		t.logger.Info("session changed in store; reloading",
			"session", id, "cached", s.Len(), "stored", stored.Rounds)
	}
	h, storedCooldown, err := t.store.LoadHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	s := analysis.RestoreSession(t.engine, h)
	if got := s.Snapshot().Cooldown; got != storedCooldown {
		t.logger.Warn("stored cooldown differs from replay; using replay",
			"session", id, "stored", storedCooldown, "replayed", got)
	}
	t.sessions[id] = s
	t.logger.Debug("session restored", "session", id, "rounds", len(h))
	return s, nil
}

func (t *Tracker) evict(id uuid.UUID) {
	t.mu.Lock()
	delete(t.sessions, id)
	t.mu.Unlock()
}

// AppendRound records r and returns the new analysis. The round is stored
// together with the resulting cooldown; if that fails the session is unchanged.
// When the store already holds a round at the next index the session is
// replayed from the store and the append is tried once more.
func (t *Tracker) AppendRound(ctx context.Context, id uuid.UUID, r round.Round) (analysis.Result, error) {
	res, err := t.appendRound(ctx, id, r)
	if errors.Is(err, roundstore.ErrDuplicateRound) {
		t.logger.Warn("round index already stored; reloading session", "session", id)
		t.evict(id)
		res, err = t.appendRound(ctx, id, r)
	}
	if err != nil {
		return analysis.Result{}, fmt.Errorf("append round: %w", err)
	}
	t.logger.Debug("round appended", "session", id, "outcome", r.Outcome,
		"pattern", res.Pattern, "suggestion", res.Suggestion, "phase", res.Phase)
	return res, nil
}

func (t *Tracker) appendRound(ctx context.Context, id uuid.UUID, r round.Round) (analysis.Result, error) {
	s, err := t.session(ctx, id)
	if err != nil {
		return analysis.Result{}, err
	}
	return s.Apply(analysis.AppendEvent(r), func(next analysis.State, _ analysis.Result) error {
		stored := next.History[len(next.History)-1]
		return t.store.AppendRound(ctx, id, stored, next.Cooldown)
	})
}

// Clear empties the session's history.
func (t *Tracker) Clear(ctx context.Context, id uuid.UUID) (analysis.Result, error) {
	s, err := t.session(ctx, id)
	if err != nil {
		return analysis.Result{}, err
	}
	res, err := s.Apply(analysis.ClearEvent(), func(analysis.State, analysis.Result) error {
		return t.store.ClearRounds(ctx, id)
	})
	if err != nil {
		return analysis.Result{}, fmt.Errorf("clear history: %w", err)
	}
	t.logger.Info("history cleared", "session", id)
	return res, nil
}

// Analysis returns the result of the most recent event.
func (t *Tracker) Analysis(ctx context.Context, id uuid.UUID) (analysis.Result, error) {
	s, err := t.session(ctx, id)
	if err != nil {
		return analysis.Result{}, err
	}
	return s.Last(), nil
}

// Metrics returns the raw diagnostic metrics.
func (t *Tracker) Metrics(ctx context.Context, id uuid.UUID) (analysis.Metrics, error) {
	s, err := t.session(ctx, id)
	if err != nil {
		return analysis.Metrics{}, err
	}
	return s.Metrics(), nil
}

// Recent returns the newest limit rounds, oldest first.
func (t *Tracker) Recent(ctx context.Context, id uuid.UUID, limit int) ([]round.Round, error) {
	if _, err := t.store.GetSession(ctx, id); err != nil {
		return nil, err
	}
	return t.store.RecentRounds(ctx, id, limit)
}

// History returns the full in-memory history.
func (t *Tracker) History(ctx context.Context, id uuid.UUID) (round.History, error) {
	s, err := t.session(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Snapshot().History, nil
}

// ExportCSV writes the session's history as CSV.
func (t *Tracker) ExportCSV(ctx context.Context, w io.Writer, id uuid.UUID) error {
	h, err := t.History(ctx, id)
	if err != nil {
		return err
	}
	return export.WriteCSV(w, h)
}

// WriteReport writes the latest analysis and metrics as a text report.
func (t *Tracker) WriteReport(ctx context.Context, w io.Writer, id uuid.UUID) error {
	s, err := t.session(ctx, id)
	if err != nil {
		return err
	}
	res, m := s.View()
	return export.WriteReport(w, res, m)
}
