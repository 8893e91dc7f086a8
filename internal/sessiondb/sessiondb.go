// Package sessiondb stores acquisition sessions and their state transitions
// in sqlite.
package sessiondb

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/rigcam/internal/acquisition"
	"github.com/banshee-data/rigcam/internal/monitoring"
)

var logs = monitoring.NewStreams("[sessiondb] ")

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUnknownSession is returned when ending a session that was never started.
var ErrUnknownSession = errors.New("sessiondb: unknown session")

// DB is the session store. It implements acquisition.Recorder.
type DB struct {
	*sql.DB
	path string
}

var _ acquisition.Recorder = (*DB)(nil)

// dsn applies the pragmas to every pooled connection.
func dsn(path string) string {
	return "file:" + path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=temp_store(MEMORY)" +
		"&_pragma=foreign_keys(1)"
}

// Open opens or creates the store at path and applies pending migrations.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, err
	}
	db := &DB{DB: sqlDB, path: path}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Session is one stored acquisition session.
type Session struct {
	ID        string               `json:"id"`
	Mode      string               `json:"mode"`
	Holistic  bool                 `json:"holistic"`
	StartedAt time.Time            `json:"started_at"`
	EndedAt   *time.Time           `json:"ended_at,omitempty"`
	Counters  acquisition.Counters `json:"counters"`
	Last      *Transition          `json:"last,omitempty"`
}

// Transition is one stored state change.
type Transition struct {
	At       time.Time `json:"at"`
	State    string    `json:"state"`
	Attempt  int       `json:"attempt"`
	Message  string    `json:"message,omitempty"`
	Terminal bool      `json:"terminal"`
}

func toUnix(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromUnix(v float64) time.Time {
	sec, frac := math.Modf(v)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}

// StartSession inserts a new session row.
func (db *DB) StartSession(ctx context.Context, s acquisition.SessionInfo) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO sessions (id, mode, holistic, started_at) VALUES (?, ?, ?, ?)`,
		s.ID, s.Mode.String(), s.Holistic, toUnix(s.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to start session %s: %w", s.ID, err)
	}
	return nil
}

// RecordEvent stores state transitions. Result events are not stored; their
// totals arrive with EndSession.
func (db *DB) RecordEvent(ctx context.Context, ev acquisition.Event) error {
	if ev.Kind != acquisition.KindTransition {
		return nil
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO transitions (session_id, at, state, attempt, message, terminal) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.Session, toUnix(ev.Time), ev.State.String(), ev.Attempt, ev.Message, ev.Terminal,
	)
	if err != nil {
		return fmt.Errorf("failed to record %s transition: %w", ev.State, err)
	}
	return nil
}

// EndSession stamps the end time and result counters.
func (db *DB) EndSession(ctx context.Context, id string, endedAt time.Time, c acquisition.Counters) error {
	res, err := db.ExecContext(ctx, `
		UPDATE sessions
		SET ended_at = ?, results = ?, poses = ?, dropped = ?, skipped = ?,
			estimate_errors = ?, region_failures = ?
		WHERE id = ?`,
		toUnix(endedAt), c.Results, c.Poses, c.Dropped, c.Skipped, c.EstimateErrors, c.RegionFailures, id,
	)
	if err != nil {
		return fmt.Errorf("failed to end session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return nil
}

// Sessions returns the most recent sessions, newest first, each with its
// last transition.
func (db *DB) Sessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT s.id, s.mode, s.holistic, s.started_at, s.ended_at,
			s.results, s.poses, s.dropped, s.skipped, s.estimate_errors, s.region_failures,
			t.at, t.state, t.attempt, t.message, t.terminal
		FROM sessions s
		LEFT JOIN transitions t ON t.transition_id = (
			SELECT transition_id FROM transitions
			WHERE session_id = s.id
			ORDER BY at DESC, transition_id DESC
			LIMIT 1
		)
		ORDER BY s.started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			s        Session
			started  float64
			ended    sql.NullFloat64
			at       sql.NullFloat64
			state    sql.NullString
			attempt  sql.NullInt64
			message  sql.NullString
			terminal sql.NullBool
		)
		if err := rows.Scan(&s.ID, &s.Mode, &s.Holistic, &started, &ended,
			&s.Counters.Results, &s.Counters.Poses, &s.Counters.Dropped, &s.Counters.Skipped,
			&s.Counters.EstimateErrors, &s.Counters.RegionFailures,
			&at, &state, &attempt, &message, &terminal); err != nil {
			return nil, err
		}
		s.StartedAt = fromUnix(started)
		if ended.Valid {
			e := fromUnix(ended.Float64)
			s.EndedAt = &e
		}
		if state.Valid {
			s.Last = &Transition{
				At:       fromUnix(at.Float64),
				State:    state.String,
				Attempt:  int(attempt.Int64),
				Message:  message.String,
				Terminal: terminal.Bool,
			}
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Transitions returns a session's transitions in order.
func (db *DB) Transitions(ctx context.Context, sessionID string) ([]Transition, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT at, state, attempt, message, terminal
		FROM transitions
		WHERE session_id = ?
		ORDER BY at, transition_id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var (
			t       Transition
			at      float64
			message sql.NullString
		)
		if err := rows.Scan(&at, &t.State, &t.Attempt, &message, &t.Terminal); err != nil {
			return nil, err
		}
		t.At = fromUnix(at)
		t.Message = message.String
		out = append(out, t)
	}
	return out, rows.Err()
}

// Prune deletes sessions that started before cutoff, with their
// transitions. It returns how many sessions were removed.
func (db *DB) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE started_at < ?`, toUnix(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", err)
	}
	return res.RowsAffected()
}
