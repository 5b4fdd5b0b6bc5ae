package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres stores transcripts in a PostgreSQL database.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and applies the schema.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect history db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping history db: %w", err)
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS transcripts (
			id BIGSERIAL PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			input TEXT NOT NULL,
			answer TEXT NOT NULL,
			model TEXT NOT NULL DEFAULT '',
			loops INTEGER NOT NULL DEFAULT 0,
			messages JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_transcripts_conversation ON transcripts(conversation_id, id);`)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Record inserts a transcript.
func (p *Postgres) Record(ctx context.Context, t Transcript) error {
	messages := string(t.Messages)
	if messages == "" {
		messages = "[]"
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO transcripts (conversation_id, input, answer, model, loops, messages, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)`,
		t.ConversationID, t.Input, t.Answer, t.Model, t.Loops, messages, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transcript: %w", err)
	}
	return nil
}

// List returns the newest transcripts of a conversation first.
func (p *Postgres) List(ctx context.Context, conversationID string, limit int) ([]Transcript, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, conversation_id, input, answer, model, loops, messages::text, created_at
		 FROM transcripts WHERE conversation_id = $1 ORDER BY id DESC LIMIT $2`,
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
		)
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.Input, &t.Answer, &t.Model, &t.Loops, &messages, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		t.Messages = []byte(messages)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Close releases the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
