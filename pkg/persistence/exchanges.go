package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"kcexplore/pkg/transcript"
)

// ExchangeStore mirrors transcript entries into the oracle_exchanges table.
// It satisfies the oracle session's sink interface.
type ExchangeStore struct {
	db *sql.DB
}

// NewExchangeStore wraps an open database.
func NewExchangeStore(db *sql.DB) *ExchangeStore {
	return &ExchangeStore{db: db}
}

// Append inserts one entry.
func (s *ExchangeStore) Append(ctx context.Context, e *transcript.Entry) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oracle_exchanges (
			session_id, seq, kind, stage, model, content,
			prompt_tokens, completion_tokens, cost_usd, cached, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.SessionID, e.Seq, string(e.Kind), e.Stage, e.Model, e.Content,
		e.PromptTokens, e.CompletionTokens, e.Cost, e.Cached, ts.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert oracle exchange: %w", err)
	}
	return nil
}

// Exchanges returns the entries of one session in insertion order.
func (s *ExchangeStore) Exchanges(ctx context.Context, sessionID string) ([]transcript.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, seq, kind, stage, model, content,
		       prompt_tokens, completion_tokens, cost_usd, cached, created_at
		FROM oracle_exchanges
		WHERE session_id = ?
		ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query oracle exchanges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []transcript.Entry
	for rows.Next() {
		var (
			e       transcript.Entry
			kind    string
			created string
		)
		if err := rows.Scan(&e.SessionID, &e.Seq, &kind, &e.Stage, &e.Model, &e.Content,
			&e.PromptTokens, &e.CompletionTokens, &e.Cost, &e.Cached, &created); err != nil {
			return nil, fmt.Errorf("failed to scan oracle exchange: %w", err)
		}
		e.Kind = transcript.Kind(kind)
		if t, parseErr := time.Parse(time.RFC3339Nano, created); parseErr == nil {
			e.Timestamp = t
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating oracle exchanges: %w", err)
	}
	return entries, nil
}

// TotalCost sums the recorded response costs of a session.
func (s *ExchangeStore) TotalCost(ctx context.Context, sessionID string) (float64, error) {
	var total sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT SUM(cost_usd) FROM oracle_exchanges WHERE session_id = ? AND kind = ?
	`, sessionID, string(transcript.KindResponse)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum session cost: %w", err)
	}
	return total.Float64, nil
}
