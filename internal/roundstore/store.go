package roundstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/MJE43/studio-analyzer/internal/logging"
	"github.com/MJE43/studio-analyzer/internal/round"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrDuplicateRound  = errors.New("round index already stored")
)

// --------- Data models ---------

// Session is one table being tracked.
type Session struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	Cooldown   int       `json:"cooldown_rounds_remaining"`
	Rounds     int64     `json:"rounds"`
}

// --------- Store ---------

type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// Open opens or creates the SQLite database at path and applies pending
// migrations. ":memory:" gives a private in-memory database.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	if path == ":memory:" {
		dsn = "file::memory:?_pragma=foreign_keys(1)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // one writer; also keeps :memory: on a single connection

	s := &Store{db: db, logger: logging.New("store")}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// --------- Migrations ---------

func (s *Store) migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, fsys)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, r := range results {
		s.logger.Debug("migration applied", "version", r.Source.Version, "took", r.Duration)
	}
	return nil
}

// --------- Sessions ---------

// CreateSession registers a new empty session.
func (s *Store) CreateSession(ctx context.Context, name string) (Session, error) {
	now := time.Now().UTC()
	sess := Session{ID: uuid.New(), Name: name, CreatedAt: now, LastSeenAt: now}
	err := s.withRetry(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO sessions(id, name, created_at, last_seen_at, cooldown)
			VALUES(?, ?, ?, ?, 0)`, sess.ID.String(), name, now, now)
		return err
	})
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

const sessionColumns = `
	s.id, s.name, s.created_at, s.last_seen_at, s.cooldown,
	(SELECT COUNT(*) FROM rounds r WHERE r.session_id = s.id)`

func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var (
		sess Session
		id   string
	)
	if err := row.Scan(&id, &sess.Name, &sess.CreatedAt, &sess.LastSeenAt, &sess.Cooldown, &sess.Rounds); err != nil {
		return Session{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Session{}, fmt.Errorf("corrupt session id %q: %w", id, err)
	}
	sess.ID = parsed
	return sess, nil
}

// GetSession loads one session with its round count.
func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions s WHERE s.id=?`, id.String())
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	return sess, err
}

// ListSessions returns sessions, most recently active first.
func (s *Store) ListSessions(ctx context.Context, limit, offset int) ([]Session, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions s
		ORDER BY s.last_seen_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and its rounds.
func (s *Store) DeleteSession(ctx context.Context, id uuid.UUID) error {
	return s.withRetry(ctx, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id=?`, id.String())
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrSessionNotFound
		}
		return nil
	})
}

// --------- Rounds ---------

// AppendRound stores r at its history index and records the cooldown the
// engine produced for it, in one transaction.
func (s *Store) AppendRound(ctx context.Context, id uuid.UUID, r round.Round, cooldown int) error {
	err := s.withRetry(ctx, func(ctx context.Context) error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO rounds(session_id, idx, outcome, side_a, side_b, played_at)
				VALUES(?, ?, ?, ?, ?, ?)`,
				id.String(), r.Index, int(r.Outcome), string(r.SideA), string(r.SideB), r.Timestamp.UTC()); err != nil {
				if isConstraintErr(err) {
					return s.classifyConstraint(ctx, tx, id, err)
				}
				return err
			}
			return touch(ctx, tx, id, cooldown)
		})
	})
	if err != nil {
		return err
	}
	s.logger.Debug("round stored", "session", id, "index", r.Index, "outcome", r.Outcome, "cooldown", cooldown)
	return nil
}

// ClearRounds deletes every round of a session and resets its cooldown.
func (s *Store) ClearRounds(ctx context.Context, id uuid.UUID) error {
	return s.withRetry(ctx, func(ctx context.Context) error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `DELETE FROM rounds WHERE session_id=?`, id.String()); err != nil {
				return err
			}
			return touch(ctx, tx, id, 0)
		})
	})
}

// LoadHistory returns the full ordered history and the stored cooldown.
func (s *Store) LoadHistory(ctx context.Context, id uuid.UUID) (round.History, int, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, outcome, side_a, side_b, played_at
		FROM rounds WHERE session_id=? ORDER BY idx ASC`, id.String())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	h := make(round.History, 0, sess.Rounds)
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, 0, err
		}
		if r.Index != len(h) {
			return nil, 0, fmt.Errorf("session %s: gap in round indices at %d", id, len(h))
		}
		h = append(h, r)
	}
	return h, sess.Cooldown, rows.Err()
}

// RecentRounds returns up to limit of the newest rounds, oldest first.
func (s *Store) RecentRounds(ctx context.Context, id uuid.UUID, limit int) ([]round.Round, error) {
	if limit <= 0 {
		limit = 90
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, outcome, side_a, side_b, played_at FROM (
			SELECT * FROM rounds WHERE session_id=? ORDER BY idx DESC LIMIT ?
		) ORDER BY idx ASC`, id.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []round.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --------- helpers ---------

func scanRound(rows *sql.Rows) (round.Round, error) {
	var (
		r       round.Round
		outcome int
		a, b    string
	)
	if err := rows.Scan(&r.Index, &outcome, &a, &b, &r.Timestamp); err != nil {
		return round.Round{}, err
	}
	r.Outcome = round.Outcome(outcome)
	r.SideA = round.Rank(a)
	r.SideB = round.Rank(b)
	r.Timestamp = r.Timestamp.UTC()
	return r, nil
}

func touch(ctx context.Context, tx *sql.Tx, id uuid.UUID, cooldown int) error {
	res, err := tx.ExecContext(ctx, `UPDATE sessions SET cooldown=?, last_seen_at=? WHERE id=?`,
		cooldown, time.Now().UTC(), id.String())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// classifyConstraint tells a missing session apart from a duplicate index.
func (s *Store) classifyConstraint(ctx context.Context, tx *sql.Tx, id uuid.UUID, cause error) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id=?`, id.String()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSessionNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %v", ErrDuplicateRound, cause)
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// withRetry re-runs fn while SQLite reports the database as busy.
func (s *Store) withRetry(ctx context.Context, fn func(context.Context) error) error {
	b := retry.WithMaxRetries(5, retry.NewExponential(20*time.Millisecond))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if isBusyErr(err) {
			s.logger.Warn("database busy, retrying", "err", err)
			return retry.RetryableError(err)
		}
		return err
	})
}

func isConstraintErr(err error) bool {
	// modernc sqlite reports "constraint failed" / "UNIQUE constraint failed".
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "constraint failed") || strings.Contains(msg, "unique constraint")
}

func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy")
}
