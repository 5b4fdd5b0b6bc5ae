// Package history persists transcripts of completed conversation turns.
package history

import (
	"context"
	"time"

	json "github.com/goccy/go-json"
)

// DefaultListLimit caps List when the caller passes no limit.
const DefaultListLimit = 50

// Transcript is the record of one completed turn.
type Transcript struct {
	ID             int64           `json:"id,omitempty"`
	ConversationID string          `json:"conversationId"`
	Input          string          `json:"input"`
	Answer         string          `json:"answer"`
	Model          string          `json:"model"`
	Loops          int             `json:"loops"`
	Messages       json.RawMessage `json:"messages,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// Recorder stores transcripts.
type Recorder interface {
	Record(ctx context.Context, t Transcript) error
	// List returns the newest transcripts of a conversation first.
	List(ctx context.Context, conversationID string, limit int) ([]Transcript, error)
	Close() error
}

// Nop discards transcripts.
type Nop struct{}

// Record does nothing.
func (Nop) Record(context.Context, Transcript) error { return nil }

// List returns no transcripts.
func (Nop) List(context.Context, string, int) ([]Transcript, error) { return []Transcript{}, nil }

// Close does nothing.
func (Nop) Close() error { return nil }

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
