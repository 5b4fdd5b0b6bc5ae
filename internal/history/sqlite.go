package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite stores transcripts in a local database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// modernc connections do not share an in-memory database.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) initSchema(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS transcripts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			input TEXT NOT NULL,
			answer TEXT NOT NULL,
			model TEXT NOT NULL DEFAULT '',
			loops INTEGER NOT NULL DEFAULT 0,
			messages TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transcripts_conversation ON transcripts(conversation_id, id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init history schema: %w", err)
		}
	}
	return nil
}

// Record inserts a transcript.
func (s *SQLite) Record(ctx context.Context, t Transcript) error {
	messages := string(t.Messages)
	if messages == "" {
		messages = "[]"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcripts (conversation_id, input, answer, model, loops, messages, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ConversationID, t.Input, t.Answer, t.Model, t.Loops, messages,
		t.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert transcript: %w", err)
	}
	return nil
}

// List returns the newest transcripts of a conversation first.
func (s *SQLite) List(ctx context.Context, conversationID string, limit int) ([]Transcript, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, input, answer, model, loops, messages, created_at
		 FROM transcripts WHERE conversation_id = ? ORDER BY id DESC LIMIT ?`,
		conversationID, normalizeLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("query transcripts: %w", err)
	}
	defer rows.Close()

	out := make([]Transcript, 0)
	for rows.Next() {
		var (
			t        Transcript
			messages string
			created  string
		)
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.Input, &t.Answer, &t.Model, &t.Loops, &messages, &created); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		t.Messages = []byte(messages)
		t.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
