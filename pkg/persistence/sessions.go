package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrSessionNotFound is returned when a requested session does not exist.
var ErrSessionNotFound = errors.New("session not found")

// Session status constants.
const (
	SessionStatusActive    = "active"
	SessionStatusCompleted = "completed"
	SessionStatusFailed    = "failed"
	SessionStatusCrashed   = "crashed" // Process ended without finishing the session
)

// Session is one exploration run.
type Session struct {
	SessionID string     `json:"session_id"`
	Target    string     `json:"target"`
	Model     string     `json:"model"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Status    string     `json:"status"`
	CostUSD   float64    `json:"cost_usd"`
}

// SessionStore records exploration sessions.
type SessionStore struct {
	db *sql.DB
}

// NewSessionStore wraps an open database.
func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

// Start records a new active session.
func (s *SessionStore) Start(ctx context.Context, sessionID, target, model string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, target, model, status)
		VALUES (?, ?, ?, ?)
	`, sessionID, target, model, SessionStatusActive)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// Finish sets the final status, cost and end time of a session.
func (s *SessionStore) Finish(ctx context.Context, sessionID, status string, cost float64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET status = ?, cost_usd = ?, ended_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
		WHERE session_id = ?
	`, status, cost, sessionID)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanSession scans a session row into a Session struct.
func scanSession(row rowScanner) (*Session, error) {
	var session Session
	var startedAt string
	var endedAt sql.NullString
	err := row.Scan(&session.SessionID, &session.Target, &session.Model, &startedAt, &endedAt, &session.Status, &session.CostUSD)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	if t, parseErr := time.Parse(time.RFC3339Nano, startedAt); parseErr == nil {
		session.StartedAt = t
	}
	if endedAt.Valid {
		if t, parseErr := time.Parse(time.RFC3339Nano, endedAt.String); parseErr == nil {
			session.EndedAt = &t
		}
	}
	return &session, nil
}

const sessionColumns = "session_id, target, model, started_at, ended_at, status, cost_usd"

// Get returns a session by ID.
// Returns ErrSessionNotFound if the session does not exist.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, sessionID)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// List returns the most recent sessions, newest first.
func (s *SessionStore) List(ctx context.Context, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

// MarkStaleSessions marks any 'active' sessions as 'crashed'.
// Called at startup to detect runs that did not finish.
func (s *SessionStore) MarkStaleSessions(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET status = ?, ended_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
		WHERE status = ?
	`, SessionStatusCrashed, SessionStatusActive)
	if err != nil {
		return 0, fmt.Errorf("failed to mark stale sessions: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}
