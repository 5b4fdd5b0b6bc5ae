// Package secrets persists LLM service credential records for the session store.
//
// The default backend is Memory, which keeps nothing across a restart. FileVault keeps
// the records in a single file encrypted with XChaCha20-Poly1305 under a key derived
// from a passphrase with Argon2id.
package secrets

import (
	"context"
	"time"
)

// Record is one stored credential.
type Record struct {
	Name    string    `json:"name"`
	Key     string    `json:"key"`
	AddedAt time.Time `json:"addedAt"`
}

// Backend loads and saves the complete set of credential records.
type Backend interface {
	Load(ctx context.Context) ([]Record, error)
	Save(ctx context.Context, records []Record) error
}

// Memory is a Backend that persists nothing. Load always returns no records.
type Memory struct{}

var _ Backend = Memory{}

// Load returns no records.
func (Memory) Load(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, nil
}

// Save discards records.
func (Memory) Save(ctx context.Context, _ []Record) error {
	return ctx.Err()
}
