package persistence

import (
	"database/sql"
	"errors"
	"fmt"
)

// CurrentSchemaVersion defines the current schema version for migration support.
const CurrentSchemaVersion = 2

// initializeSchemaWithMigrations ensures the database schema is at the current version.
func initializeSchemaWithMigrations(db *sql.DB) error {
	currentVersion, err := GetSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	// If database is empty (version 0), create fresh schema
	if currentVersion == 0 {
		return createSchema(db)
	}

	if currentVersion == CurrentSchemaVersion {
		return nil
	}
	if currentVersion > CurrentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", currentVersion, CurrentSchemaVersion)
	}

	return runMigrations(db, currentVersion, CurrentSchemaVersion)
}

// runMigrations applies database migrations from current version to target version.
func runMigrations(db *sql.DB, fromVersion, toVersion int) error {
	for version := fromVersion + 1; version <= toVersion; version++ {
		if err := runMigration(db, version); err != nil {
			return fmt.Errorf("migration to version %d failed: %w", version, err)
		}
		if err := setSchemaVersion(db, version); err != nil {
			return fmt.Errorf("failed to update schema version to %d: %w", version, err)
		}
	}
	return nil
}

func runMigration(db *sql.DB, version int) error {
	switch version {
	case 2:
		return migrateToVersion2(db)
	default:
		return fmt.Errorf("unknown migration version: %d", version)
	}
}

// migrateToVersion2 records whether an exchange was answered from the cache.
func migrateToVersion2(db *sql.DB) error {
	migrations := []string{
		"ALTER TABLE oracle_exchanges ADD COLUMN cached INTEGER NOT NULL DEFAULT 0",
	}
	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %s: %w", migration, err)
		}
	}
	return nil
}

// schemaV1 is the original layout; createSchema applies it followed by every
// later migration so fresh and migrated databases are identical.
//
//nolint:gochecknoglobals // static DDL
var schemaV1 = []string{
	`CREATE TABLE IF NOT EXISTS kg_entities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		source_id TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE VIRTUAL TABLE IF NOT EXISTS kg_entities_fts USING fts5(
		name, description, content='kg_entities', content_rowid='id'
	)`,
	`CREATE TRIGGER IF NOT EXISTS kg_entities_ai AFTER INSERT ON kg_entities BEGIN
		INSERT INTO kg_entities_fts(rowid, name, description) VALUES (new.id, new.name, new.description);
	END`,
	`CREATE TRIGGER IF NOT EXISTS kg_entities_ad AFTER DELETE ON kg_entities BEGIN
		INSERT INTO kg_entities_fts(kg_entities_fts, rowid, name, description) VALUES ('delete', old.id, old.name, old.description);
	END`,
	`CREATE TRIGGER IF NOT EXISTS kg_entities_au AFTER UPDATE ON kg_entities BEGIN
		INSERT INTO kg_entities_fts(kg_entities_fts, rowid, name, description) VALUES ('delete', old.id, old.name, old.description);
		INSERT INTO kg_entities_fts(rowid, name, description) VALUES (new.id, new.name, new.description);
	END`,
	`CREATE TABLE IF NOT EXISTS kg_relationships (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		src_name TEXT NOT NULL,
		tgt_name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		keywords TEXT NOT NULL DEFAULT '',
		weight REAL NOT NULL DEFAULT 1.0,
		source_id TEXT NOT NULL DEFAULT '',
		UNIQUE (src_name, tgt_name, description)
	)`,
	`CREATE TABLE IF NOT EXISTS kg_statements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	)`,
	`CREATE VIRTUAL TABLE IF NOT EXISTS kg_statements_fts USING fts5(
		text, content='kg_statements', content_rowid='id'
	)`,
	`CREATE TRIGGER IF NOT EXISTS kg_statements_ai AFTER INSERT ON kg_statements BEGIN
		INSERT INTO kg_statements_fts(rowid, text) VALUES (new.id, new.text);
	END`,
	`CREATE TRIGGER IF NOT EXISTS kg_statements_ad AFTER DELETE ON kg_statements BEGIN
		INSERT INTO kg_statements_fts(kg_statements_fts, rowid, text) VALUES ('delete', old.id, old.text);
	END`,
	`CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		target TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		started_at DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
		ended_at DATETIME,
		status TEXT NOT NULL DEFAULT 'active',
		cost_usd REAL NOT NULL DEFAULT 0.0
	)`,
	`CREATE TABLE IF NOT EXISTS oracle_exchanges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		kind TEXT NOT NULL,
		stage TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		prompt_tokens INTEGER NOT NULL DEFAULT 0,
		completion_tokens INTEGER NOT NULL DEFAULT 0,
		cost_usd REAL NOT NULL DEFAULT 0.0,
		created_at DATETIME NOT NULL
	)`,
	"CREATE INDEX IF NOT EXISTS idx_kg_relationships_src ON kg_relationships(src_name)",
	"CREATE INDEX IF NOT EXISTS idx_kg_relationships_tgt ON kg_relationships(tgt_name)",
	"CREATE INDEX IF NOT EXISTS idx_oracle_exchanges_session ON oracle_exchanges(session_id, seq)",
	"CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status)",
}

func createSchema(db *sql.DB) error {
	for _, ddl := range schemaV1 {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	if err := setSchemaVersion(db, 1); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return runMigrations(db, 1, CurrentSchemaVersion)
}

// setSchemaVersion records the current schema version.
func setSchemaVersion(db *sql.DB, version int) error {
	_, err := db.Exec(`INSERT OR REPLACE INTO schema_version (version) VALUES (?)`, version)
	if err != nil {
		return fmt.Errorf("database exec error: %w", err)
	}
	return nil
}

// GetSchemaVersion returns the current schema version from the database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	// First ensure the schema_version table exists
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	)`)
	if err != nil {
		return 0, fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil // No version set yet
	}
	if err != nil {
		return 0, fmt.Errorf("schema version scan error: %w", err)
	}
	return version, nil
}
