// Package history logs conversation transcripts to SQLite for audit and
// analytics. It is separate from session checkpoints: losing a history row
// never loses session state.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/support-agent/server/internal/agent/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversation_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    role TEXT NOT NULL CHECK(role IN ('human','assistant')),
    content TEXT NOT NULL,
    intent TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_history_session ON conversation_history(session_id, id);
`

// Store wraps the SQLite conversation-history database.
type Store struct {
	db *sql.DB
}

// Open creates or opens the history database at the given path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// OpenMemory creates an in-memory history store (useful for testing).
func OpenMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

// Append writes one transcript row.
func (s *Store) Append(ctx context.Context, sessionID string, role model.Role, content string, intent model.Intent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_history (session_id, role, content, intent, created_at) VALUES (?, ?, ?, ?, ?)`,
		sessionID, string(role), content, string(intent), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert history row: %w", err)
	}
	return nil
}

// Entry is one logged transcript row.
type Entry struct {
	ID        int64
	SessionID string
	Role      model.Role
	Content   string
	Intent    model.Intent
	CreatedAt time.Time
}

// BySession returns the logged transcript for a session in insertion order.
func (s *Store) BySession(ctx context.Context, sessionID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, intent, created_at
		   FROM conversation_history WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var role, intent string
		if err := rows.Scan(&e.ID, &e.SessionID, &role, &e.Content, &intent, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		e.Role = model.Role(role)
		e.Intent = model.Intent(intent)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Ping reports whether the database is reachable; used by the health probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ model.HistoryStore = (*Store)(nil)
