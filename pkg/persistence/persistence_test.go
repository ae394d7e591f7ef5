package persistence

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kcexplore/pkg/transcript"
)

// setupTestDB opens an in-memory database with the full schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpenCreatesSchema(t *testing.T) {
	db := setupTestDB(t)

	version, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)

	for _, table := range []string{"kg_entities", "kg_relationships", "kg_statements", "sessions", "oracle_exchanges"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		assert.NoError(t, err, "table %s should exist", table)
	}
}

func TestOpenIsIdempotentOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kc.db")

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	version, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}

func TestMigrationFromVersion1(t *testing.T) {
	db, err := sql.Open("sqlite", dsn(MemoryPath))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	_, err = GetSchemaVersion(db)
	require.NoError(t, err)
	for _, ddl := range schemaV1 {
		_, err := db.Exec(ddl)
		require.NoError(t, err)
	}
	require.NoError(t, setSchemaVersion(db, 1))

	require.NoError(t, initializeSchemaWithMigrations(db))

	version, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	_, err = db.Exec(`SELECT cached FROM oracle_exchanges`)
	assert.NoError(t, err)
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(setupTestDB(t))

	require.NoError(t, store.Start(ctx, "s1", "the unixbench total score", "gpt-3.5-turbo-1106"))

	s, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, SessionStatusActive, s.Status)
	assert.Equal(t, "the unixbench total score", s.Target)
	assert.False(t, s.StartedAt.IsZero())
	assert.Nil(t, s.EndedAt)

	require.NoError(t, store.Finish(ctx, "s1", SessionStatusCompleted, 0.42))
	s, err = store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, SessionStatusCompleted, s.Status)
	assert.InDelta(t, 0.42, s.CostUSD, 1e-9)
	assert.NotNil(t, s.EndedAt)

	assert.ErrorIs(t, store.Finish(ctx, "missing", SessionStatusCompleted, 0), ErrSessionNotFound)
	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMarkStaleSessions(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(setupTestDB(t))

	require.NoError(t, store.Start(ctx, "a", "t", "m"))
	require.NoError(t, store.Start(ctx, "b", "t", "m"))
	require.NoError(t, store.Finish(ctx, "b", SessionStatusCompleted, 0))

	n, err := store.MarkStaleSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	s, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, SessionStatusCrashed, s.Status)

	list, err := store.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestExchangeStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewExchangeStore(setupTestDB(t))

	now := time.Now().UTC()
	require.NoError(t, store.Append(ctx, &transcript.Entry{
		Timestamp: now, SessionID: "s1", Seq: 1, Kind: transcript.KindRequest, Stage: "boolean", Content: "prompt",
	}))
	require.NoError(t, store.Append(ctx, &transcript.Entry{
		Timestamp: now, SessionID: "s1", Seq: 2, Kind: transcript.KindResponse, Stage: "boolean",
		Content: "[A increase]", PromptTokens: 100, CompletionTokens: 50, Cost: 0.0016,
	}))
	require.NoError(t, store.Append(ctx, &transcript.Entry{
		SessionID: "s1", Seq: 3, Kind: transcript.KindResponse, Content: "cached", Cached: true,
	}))
	require.NoError(t, store.Append(ctx, &transcript.Entry{SessionID: "other", Seq: 1, Kind: transcript.KindRequest, Content: "x"}))

	entries, err := store.Exchanges(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, transcript.KindRequest, entries[0].Kind)
	assert.Equal(t, "[A increase]", entries[1].Content)
	assert.Equal(t, 50, entries[1].CompletionTokens)
	assert.True(t, entries[2].Cached)
	assert.WithinDuration(t, now, entries[0].Timestamp, time.Millisecond)

	total, err := store.TotalCost(ctx, "s1")
	require.NoError(t, err)
	assert.InDelta(t, 0.0016, total, 1e-12)

	total, err = store.TotalCost(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, total)
}
