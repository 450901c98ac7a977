// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// Pollar keeps a single relational database as its source of truth. SQLite
// is embedded, needs no server, and gives us real transactions, UNIQUE and
// CHECK constraints, which is everything the vote and project paths need.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// modernc.org/sqlite is a pure Go translation of SQLite: no CGo, no C
// compiler, trivial cross-compilation.
//
// CONCURRENCY:
// The pool is capped at ONE connection. SQLite allows a single writer at a
// time anyway; with one pooled connection every transaction runs to
// completion before the next one starts, so the vote transaction is
// serialisable without BEGIN IMMEDIATE tricks or SQLITE_BUSY retries.
// Reads are short, so the cost is small at this scale.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/juju/clock"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn  *sql.DB
	clock clock.Clock
}

// New creates a new SQLite database connection and runs migrations.
//
// dbPath examples:
//   - "data/pollar.db"  → file-based database (persistent)
//   - ":memory:"        → in-memory database (tests)
//
// clk stamps created_at / updated_at; pass clock.WallClock in production
// and a testclock in tests.
func New(dbPath string, clk clock.Clock) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// One connection: see the package comment. It also keeps ":memory:"
	// databases alive, since every new connection to ":memory:" would be a
	// brand-new empty database.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}

	if clk == nil {
		clk = clock.WallClock
	}
	db := &DB{conn: conn, clock: clk}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the database is reachable. Used by /healthz.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// now returns the current time in UTC. Storing UTC everywhere keeps the
// text encoding of DATETIME columns comparable.
func (db *DB) now() time.Time {
	return db.clock.Now().UTC()
}

// migrations run in order on every start. Each statement is idempotent.
var migrations = []struct {
	name string
	sql  string
}{
	{"users", `
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE COLLATE NOCASE,
			name          TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL DEFAULT '',
			avatar_url    TEXT NOT NULL DEFAULT '',
			plan          TEXT NOT NULL DEFAULT 'FREE',
			created_at    DATETIME NOT NULL,
			updated_at    DATETIME NOT NULL
		);`},
	{"providers", `
		CREATE TABLE IF NOT EXISTS providers (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name       TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			UNIQUE (user_id, name)
		);`},
	{"projects", `
		CREATE TABLE IF NOT EXISTS projects (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name        TEXT NOT NULL,
			owner       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at  DATETIME NOT NULL,
			updated_at  DATETIME NOT NULL,
			UNIQUE (user_id, name)
		);
		CREATE INDEX IF NOT EXISTS idx_projects_user_id ON projects(user_id);`},
	// The respondents CHECK is the last line of defence for the capacity
	// invariant: even a buggy UPDATE cannot push respondents past max_votes.
	{"polls", `
		CREATE TABLE IF NOT EXISTS polls (
			id          TEXT PRIMARY KEY,
			project_id  TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			question    TEXT NOT NULL,
			duration    INTEGER NOT NULL CHECK (duration BETWEEN 1 AND 168),
			max_votes   INTEGER CHECK (max_votes IS NULL OR max_votes >= 1),
			respondents INTEGER NOT NULL DEFAULT 0
			            CHECK (respondents >= 0 AND (max_votes IS NULL OR respondents <= max_votes)),
			position    INTEGER NOT NULL,
			created_at  DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_polls_project_id ON polls(project_id, position);`},
	{"options", `
		CREATE TABLE IF NOT EXISTS options (
			id         TEXT PRIMARY KEY,
			poll_id    TEXT NOT NULL REFERENCES polls(id) ON DELETE CASCADE,
			text       TEXT NOT NULL,
			norm_text  TEXT NOT NULL,
			votes      INTEGER NOT NULL DEFAULT 0 CHECK (votes >= 0),
			position   INTEGER NOT NULL,
			created_at DATETIME NOT NULL,
			UNIQUE (poll_id, norm_text)
		);
		CREATE INDEX IF NOT EXISTS idx_options_poll_id ON options(poll_id, position);`},
	{"vote_receipts", `
		CREATE TABLE IF NOT EXISTS vote_receipts (
			key        TEXT PRIMARY KEY,
			poll_id    TEXT NOT NULL REFERENCES polls(id) ON DELETE CASCADE,
			option_id  TEXT NOT NULL REFERENCES options(id) ON DELETE CASCADE,
			vote_count INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		);`},
}

func (db *DB) migrate() error {
	for _, m := range migrations {
		if _, err := db.conn.Exec(m.sql); err != nil {
			return fmt.Errorf("creating %s: %w", m.name, err)
		}
	}
	return nil
}

// inTx runs fn inside a transaction. The transaction is rolled back if fn
// returns an error, panics, or ctx is cancelled before commit.
func (db *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	// Rollback after a successful Commit is a no-op returning ErrTxDone.
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// isCheckViolation reports whether err is a CHECK constraint failure.
func isCheckViolation(err error) bool {
	var se *msqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_CHECK
	}
	return false
}

// nullableInt converts an optional int to a SQL parameter.
func nullableInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

// intPtr converts a scanned NULL-able integer back.
func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
