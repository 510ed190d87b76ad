// Package taskstore is the bundled SQLite implementation of the task data
// layer: tasks, people, and per-user counters. Every query is scoped by
// user id; no method can read or write another user's rows.
//
// The agent treats this store as the source of truth and queries it live
// on every turn. A hosted task service can replace it by implementing
// the same method set (see tools.Store).
package taskstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql

	"github.com/nugget/errand/internal/gtd"
)

// Sentinel errors, shared with every other data-layer implementation.
var (
	ErrNotFound    = gtd.ErrNotFound
	ErrExists      = gtd.ErrExists
	ErrAlreadyDone = gtd.ErrAlreadyDone
	ErrNotDone     = gtd.ErrNotDone
)

const timeLayout = time.RFC3339Nano

// Store manages task and person persistence in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the SQLite database at dbPath with the
// mattn/go-sqlite3 driver and returns a migrated store. The caller owns
// the returned store and must Close it.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already-open database, running migrations on first use.
// The caller keeps ownership of db.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate taskstore: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database still answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			type TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			context TEXT NOT NULL DEFAULT '',
			priority TEXT NOT NULL DEFAULT '',
			due_date TEXT NOT NULL DEFAULT '',
			person_id TEXT NOT NULL DEFAULT '',
			person_name TEXT NOT NULL DEFAULT '',
			project_id TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			completed_at TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_tasks_user_status ON tasks(user_id, status);
		CREATE INDEX IF NOT EXISTS idx_tasks_user_due ON tasks(user_id, due_date);
		CREATE INDEX IF NOT EXISTS idx_tasks_user_person ON tasks(user_id, person_id);

		CREATE TABLE IF NOT EXISTS people (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			aliases TEXT NOT NULL DEFAULT '[]',
			phone TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_people_user_name ON people(user_id, LOWER(name));

		CREATE TABLE IF NOT EXISTS task_stats (
			user_id TEXT PRIMARY KEY,
			created INTEGER NOT NULL DEFAULT 0,
			completed INTEGER NOT NULL DEFAULT 0,
			deleted INTEGER NOT NULL DEFAULT 0
		);
	`)
	return err
}

// bumpStat adjusts one counter for a user, never letting it drop below
// zero. column is always a package constant, never user input.
func bumpStat(ctx context.Context, tx *sql.Tx, userID, column string, delta int) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO task_stats (user_id) VALUES (?)`, userID); err != nil {
		return fmt.Errorf("init stats: %w", err)
	}
	q := fmt.Sprintf(`UPDATE task_stats SET %[1]s = MAX(0, %[1]s + ?) WHERE user_id = ?`, column)
	if _, err := tx.ExecContext(ctx, q, delta, userID); err != nil {
		return fmt.Errorf("update stats %s: %w", column, err)
	}
	return nil
}

const (
	statCreated   = "created"
	statCompleted = "completed"
	statDeleted   = "deleted"
)

// withTx runs fn in a transaction, committing on success.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}
