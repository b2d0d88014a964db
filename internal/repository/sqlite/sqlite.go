// Package sqlite implements the repository interfaces on SQLite through
// database/sql and the pure-Go modernc.org/sqlite driver (no CGo).
//
// Times are stored in UTC so their text form sorts chronologically. Tags are
// kept as a JSON array in a TEXT column and searched with json_each.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/sakif/codemind/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// DB owns the connection pool and hands out per-table repositories.
type DB struct {
	conn *sql.DB
}

// New opens (creating if needed) the database at path and runs migrations.
//
// path examples:
//   - "data/codemind.db" → file-based database
//   - ":memory:"         → in-memory database, used by tests
//
// Foreign keys and the busy timeout are set through the DSN so that every
// pooled connection gets them, not just the first one.
func New(path string) (*DB, error) {
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Each connection to ":memory:" is a separate database.
	if path == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in progress.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}
	return db, nil
}

func (db *DB) Users() repository.UserRepository { return &UserDB{conn: db.conn} }
func (db *DB) Histories() repository.HistoryRepository { return &HistoryDB{conn: db.conn} }
func (db *DB) ErrorLogs() repository.ErrorLogRepository { return &ErrorLogDB{conn: db.conn} }

// Durable is always true: data survives restarts (":memory:" aside, which
// only tests use).
func (db *DB) Durable() bool { return true }

func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE ... IF NOT EXISTS keeps it idempotent.
func (db *DB) migrate() error {
	steps := []struct {
		name string
		sql  string
	}{
		{"users", `
			CREATE TABLE IF NOT EXISTS users (
				id                TEXT PRIMARY KEY,
				name              TEXT NOT NULL,
				email             TEXT NOT NULL UNIQUE,
				password_hash     TEXT NOT NULL DEFAULT '',
				github_id         INTEGER,
				is_active         INTEGER NOT NULL DEFAULT 1,
				theme             TEXT NOT NULL DEFAULT 'dark',
				default_language  TEXT NOT NULL DEFAULT 'javascript',
				default_framework TEXT NOT NULL DEFAULT 'react',
				last_login        DATETIME,
				created_at        DATETIME NOT NULL,
				updated_at        DATETIME NOT NULL
			);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_users_github_id
				ON users(github_id) WHERE github_id IS NOT NULL;`},
		{"history", `
			CREATE TABLE IF NOT EXISTS history (
				id              TEXT PRIMARY KEY,
				user_id         TEXT NOT NULL REFERENCES users(id),
				title           TEXT NOT NULL,
				language        TEXT NOT NULL,
				framework       TEXT NOT NULL DEFAULT 'none',
				styling         TEXT NOT NULL DEFAULT 'css',
				prompt          TEXT NOT NULL,
				enhanced_prompt TEXT NOT NULL DEFAULT '',
				generated_code  TEXT NOT NULL,
				edited_code     TEXT NOT NULL DEFAULT '',
				ai_provider     TEXT NOT NULL DEFAULT 'gemini',
				is_favorite     INTEGER NOT NULL DEFAULT 0,
				tags            TEXT NOT NULL DEFAULT '[]',
				view_count      INTEGER NOT NULL DEFAULT 0,
				created_at      DATETIME NOT NULL,
				updated_at      DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_history_user_created ON history(user_id, created_at);`},
		{"history_fixes", `
			CREATE TABLE IF NOT EXISTS history_fixes (
				id         INTEGER PRIMARY KEY AUTOINCREMENT,
				history_id TEXT NOT NULL REFERENCES history(id) ON DELETE CASCADE,
				error      TEXT NOT NULL,
				fixed_code TEXT NOT NULL,
				created_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_history_fixes_history ON history_fixes(history_id);`},
		{"error_logs", `
			CREATE TABLE IF NOT EXISTS error_logs (
				id             TEXT PRIMARY KEY,
				user_id        TEXT NOT NULL REFERENCES users(id),
				history_id     TEXT NOT NULL DEFAULT '',
				error_type     TEXT NOT NULL DEFAULT 'other',
				error_message  TEXT NOT NULL,
				code_snippet   TEXT NOT NULL DEFAULT '',
				language       TEXT NOT NULL DEFAULT '',
				fix_attempted  INTEGER NOT NULL DEFAULT 0,
				fix_successful INTEGER NOT NULL DEFAULT 0,
				ai_response    TEXT NOT NULL DEFAULT '',
				resolved       INTEGER NOT NULL DEFAULT 0,
				created_at     DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_error_logs_user_created ON error_logs(user_id, created_at);`},
	}

	for _, s := range steps {
		if _, err := db.conn.Exec(s.sql); err != nil {
			return fmt.Errorf("creating %s table: %w", s.name, err)
		}
	}
	return nil
}

// now is the single clock for stored timestamps. UTC() also drops the
// monotonic reading, which would otherwise leak into the stored text.
func now() time.Time {
	return time.Now().UTC()
}

// isUniqueViolation reports a UNIQUE constraint failure. The driver exposes
// only the message text for this, so we match on it.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encoding tags: %w", err)
	}
	return string(b), nil
}

func decodeTags(raw string) ([]string, error) {
	tags := []string{}
	if raw == "" {
		return tags, nil
	}
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, fmt.Errorf("decoding tags: %w", err)
	}
	return tags, nil
}

// rowsAffectedOrNotFound turns an UPDATE/DELETE that touched nothing into err.
func rowsAffectedOrNotFound(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
