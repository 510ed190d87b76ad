package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store persists conversation contexts. Get returns (nil, nil) for a user
// with no stored context. Implementations store documents as-is and leave
// expiry to the Manager.
type Store interface {
	Get(ctx context.Context, userID string) (*ConversationContext, error)
	Put(ctx context.Context, c *ConversationContext) error
	Delete(ctx context.Context, userID string) error
}

// errCorrupt marks a stored document that no longer decodes.
var errCorrupt = errors.New("corrupt context document")

// SQLiteStore keeps one JSON document per user in SQLite. The session
// expiry is duplicated into its own column so stale sessions can be
// found without decoding.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if needed) a context store at dbPath.
func OpenSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore wraps an open database and creates the schema on first
// use. The caller keeps ownership of db.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversation_contexts (
		user_id    TEXT PRIMARY KEY,
		document   TEXT NOT NULL,
		expires_at TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get returns the stored context for userID.
func (s *SQLiteStore) Get(ctx context.Context, userID string) (*ConversationContext, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM conversation_contexts WHERE user_id = ?`, userID,
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get context %s: %w", userID, err)
	}
	return decode([]byte(doc))
}

// Put upserts c.
func (s *SQLiteStore) Put(ctx context.Context, c *ConversationContext) error {
	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode context %s: %w", c.UserID, err)
	}
	var expires string
	if c.Session != nil {
		expires = c.Session.ExpiresAt.UTC().Format(time.RFC3339)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversation_contexts (user_id, document, expires_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE
		 SET document = excluded.document, expires_at = excluded.expires_at, updated_at = excluded.updated_at`,
		c.UserID, string(doc), expires, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("put context %s: %w", c.UserID, err)
	}
	return nil
}

// Delete removes a user's context. No error is returned if none exists.
func (s *SQLiteStore) Delete(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversation_contexts WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("delete context %s: %w", userID, err)
	}
	return nil
}

// MemoryStore keeps encoded contexts in memory. Documents are stored
// encoded so callers never share structure with the store.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string][]byte
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

// Get returns the stored context for userID.
func (m *MemoryStore) Get(_ context.Context, userID string) (*ConversationContext, error) {
	m.mu.Lock()
	doc, ok := m.docs[userID]
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return decode(doc)
}

// Put stores c.
func (m *MemoryStore) Put(_ context.Context, c *ConversationContext) error {
	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode context %s: %w", c.UserID, err)
	}
	m.mu.Lock()
	m.docs[c.UserID] = doc
	m.mu.Unlock()
	return nil
}

// Delete removes a user's context.
func (m *MemoryStore) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	delete(m.docs, userID)
	m.mu.Unlock()
	return nil
}

func decode(doc []byte) (*ConversationContext, error) {
	var c ConversationContext
	if err := json.Unmarshal(doc, &c); err != nil {
		return nil, fmt.Errorf("%w: %w", errCorrupt, err)
	}
	return &c, nil
}
