// Package sqlite is the single-node store used for local runs: same
// repository contracts as the postgres package, backed by a modernc.org
// (CGo-free) sqlite file. Claim atomicity comes from funneling every
// statement through one connection (the pool is capped at a single
// connection) instead of FOR UPDATE SKIP LOCKED.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS reminders (
    id                 TEXT PRIMARY KEY,
    owner_id           TEXT    NOT NULL,
    correlation_key    TEXT    NOT NULL,
    payload            TEXT    NOT NULL,
    status             TEXT    NOT NULL DEFAULT 'delayed',
    due_at             INTEGER NOT NULL,
    priority           INTEGER NOT NULL DEFAULT 0,
    attempts_remaining INTEGER NOT NULL DEFAULT 1,
    claimed_at         INTEGER,
    claimed_by         TEXT,
    heartbeat_at       INTEGER,
    completed_at       INTEGER,
    call_ref           TEXT,
    last_error         TEXT,
    retry_of           TEXT,
    created_at         INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS reminders_owner_key_live
    ON reminders (owner_id, correlation_key)
    WHERE status IN ('delayed', 'active');

CREATE INDEX IF NOT EXISTS reminders_due ON reminders (status, due_at);

CREATE INDEX IF NOT EXISTS reminders_owner_key ON reminders (owner_id, correlation_key);

CREATE TABLE IF NOT EXISTS attempts (
    id          TEXT PRIMARY KEY,
    reminder_id TEXT    NOT NULL,
    attempt_num INTEGER NOT NULL,
    worker_id   TEXT    NOT NULL,
    started_at  INTEGER NOT NULL,
    completed_at INTEGER,
    call_ref    TEXT,
    error       TEXT,
    duration_ms INTEGER
);

CREATE INDEX IF NOT EXISTS attempts_reminder ON attempts (reminder_id, started_at);

CREATE TABLE IF NOT EXISTS recurring_reminders (
    id          TEXT PRIMARY KEY,
    owner_id    TEXT    NOT NULL,
    name        TEXT    NOT NULL,
    cron_expr   TEXT    NOT NULL,
    payload     TEXT    NOT NULL,
    paused      INTEGER NOT NULL DEFAULT 0,
    next_run_at INTEGER NOT NULL,
    last_run_at INTEGER,
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL,
    UNIQUE (owner_id, name)
);
`

// Open creates (if needed) and opens the sqlite database at path.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite wants one writer; funnel everything through a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return db, nil
}
