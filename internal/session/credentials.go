package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	mcp "github.com/nakad-pixel/Mcpclient"
	"github.com/nakad-pixel/Mcpclient/internal/secrets"
)

// Credential is the key stored for one LLM service.
type Credential struct {
	Name    string
	Key     string
	AddedAt time.Time
}

// ServiceInfo is the only view of a credential handed to clients. It never carries
// the key.
type ServiceInfo struct {
	Name    string    `json:"name"`
	AddedAt time.Time `json:"addedAt"`
}

func credentialID(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// LoadCredentials replaces the in-memory credentials with those held by the backend.
func (s *Store) LoadCredentials(ctx context.Context) error {
	records, err := s.backend.Load(ctx)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.credentials = make(map[string]Credential, len(records))
	for _, r := range records {
		id := credentialID(r.Name)
		if id == "" {
			continue
		}
		s.credentials[id] = Credential{Name: r.Name, Key: r.Key, AddedAt: r.AddedAt}
	}
	s.logger.Debug().Int("services", len(s.credentials)).Msg("credentials loaded")
	return nil
}

// SetKey stores key for the named service, replacing any previous record. Names are
// case-insensitive.
func (s *Store) SetKey(ctx context.Context, name, key string) error {
	id := credentialID(name)
	if id == "" {
		return mcp.NewError(mcp.KindInvalidRequest, "service name is required")
	}
	if key == "" {
		return mcp.NewError(mcp.KindInvalidRequest, "key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cloneCredentialsLocked()
	next[id] = Credential{Name: strings.TrimSpace(name), Key: key, AddedAt: s.now()}
	if err := s.commitLocked(ctx, next); err != nil {
		return err
	}
	s.logger.Info().Str("service", id).Msg("credential stored")
	return nil
}

// GetKey returns the key stored for the named service.
func (s *Store) GetKey(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.credentials[credentialID(name)]
	return c.Key, ok
}

// HasKey reports whether a key is stored for the named service.
func (s *Store) HasKey(name string) bool {
	_, ok := s.GetKey(name)
	return ok
}

// RemoveKey deletes the named service's key and reports whether one existed.
func (s *Store) RemoveKey(ctx context.Context, name string) (bool, error) {
	id := credentialID(name)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.credentials[id]; !ok {
		return false, nil
	}
	next := s.cloneCredentialsLocked()
	delete(next, id)
	if err := s.commitLocked(ctx, next); err != nil {
		return false, err
	}
	s.logger.Info().Str("service", id).Msg("credential removed")
	return true, nil
}

// ListServices returns the stored service names with the time each key was added,
// ordered by name.
func (s *Store) ListServices() []ServiceInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ServiceInfo, 0, len(s.credentials))
	for _, c := range s.credentials {
		out = append(out, ServiceInfo{Name: c.Name, AddedAt: c.AddedAt})
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// ClearAll deletes every stored credential.
func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.commitLocked(ctx, map[string]Credential{}); err != nil {
		return err
	}
	s.logger.Info().Msg("credentials cleared")
	return nil
}

func (s *Store) cloneCredentialsLocked() map[string]Credential {
	next := make(map[string]Credential, len(s.credentials)+1)
	for id, c := range s.credentials {
		next[id] = c
	}
	return next
}

// commitLocked saves next and installs it as the credential set. On a save error the
// previous set stays in place. The caller holds s.mu so that saves happen in mutation
// order.
func (s *Store) commitLocked(ctx context.Context, next map[string]Credential) error {
	records := make([]secrets.Record, 0, len(next))
	for _, c := range next {
		records = append(records, secrets.Record{Name: c.Name, Key: c.Key, AddedAt: c.AddedAt})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })

	if err := s.backend.Save(ctx, records); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist credentials")
		return fmt.Errorf("persist credentials: %w", err)
	}
	s.credentials = next
	return nil
}
