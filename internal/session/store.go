// Package session holds the live bindings between the backend and connected MCP
// servers, and the LLM service credentials supplied by users.
//
// A Store is constructed once by the process entry point and handed to every
// component that needs it. Sessions expire on a sliding window: every successful
// lookup pushes expiry back.
package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	mcp "github.com/nakad-pixel/Mcpclient"
	"github.com/nakad-pixel/Mcpclient/internal/secrets"
)

// DefaultExpiry is how long a session survives without being looked up.
const DefaultExpiry = time.Hour

// ClientFactory builds the remote procedure client owned by a new session.
type ClientFactory func(serverURL string, headers map[string]string) mcp.RemoteClient

// Option configures a Store.
type Option func(*Store)

// Session is the live binding to one connected MCP server.
type Session struct {
	ID           string
	ServerID     string
	ServerURL    string
	Headers      map[string]string
	Capabilities json.RawMessage
	ServerInfo   mcp.Info
	Client       mcp.RemoteClient
	CreatedAt    time.Time

	mu         sync.RWMutex
	tools      []mcp.Tool
	lastAccess time.Time
}

// Summary describes a live session without exposing its client or headers.
type Summary struct {
	ID         string    `json:"sessionId"`
	ServerID   string    `json:"serverId"`
	ServerURL  string    `json:"serverUrl"`
	ServerInfo mcp.Info  `json:"serverInfo"`
	ToolCount  int       `json:"toolCount"`
	CreatedAt  time.Time `json:"createdAt"`
	LastAccess time.Time `json:"lastAccess"`
}

// Store maps session ids to sessions and service names to credentials. One mutex
// covers both maps.
type Store struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	credentials map[string]Credential

	expiry    time.Duration
	now       func() time.Time
	newClient ClientFactory
	backend   secrets.Backend
	logger    zerolog.Logger
}

// WithExpiry sets the sliding expiry window.
func WithExpiry(d time.Duration) Option {
	return func(s *Store) {
		s.expiry = d
	}
}

// WithClock sets the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithClientFactory sets how session clients are built.
func WithClientFactory(f ClientFactory) Option {
	return func(s *Store) {
		s.newClient = f
	}
}

// WithCredentialBackend sets where credential records are persisted.
func WithCredentialBackend(b secrets.Backend) Option {
	return func(s *Store) {
		s.backend = b
	}
}

// WithLogger sets the logger for the store.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates an empty store. Without options sessions expire after an hour,
// clients are HTTP clients with the default timeout, and credentials live only in
// memory.
func NewStore(options ...Option) *Store {
	s := &Store{
		sessions:    map[string]*Session{},
		credentials: map[string]Credential{},
		logger:      zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}

	if s.expiry <= 0 {
		s.expiry = DefaultExpiry
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newClient == nil {
		s.newClient = func(serverURL string, headers map[string]string) mcp.RemoteClient {
			return mcp.NewClient(serverURL, mcp.WithHeaders(headers), mcp.WithClientLogger(s.logger))
		}
	}
	if s.backend == nil {
		s.backend = secrets.Memory{}
	}

	return s
}

// CreateSession validates serverURL, opens a client to it and performs initialize
// followed by tools/list. The session is stored only when both succeed; their errors
// are returned unchanged.
func (s *Store) CreateSession(
	ctx context.Context,
	serverID, serverURL string,
	headers map[string]string,
) (*Session, error) {
	if serverID == "" {
		return nil, mcp.NewError(mcp.KindInvalidRequest, "serverId is required")
	}
	u, err := ValidateServerURL(serverURL)
	if err != nil {
		return nil, err
	}

	hdrs := make(map[string]string, len(headers))
	for k, v := range headers {
		hdrs[k] = v
	}

	client := s.newClient(u.String(), hdrs)

	init, err := client.Initialize(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Str("server_id", serverID).Str("url", u.Redacted()).Msg("initialize failed")
		return nil, err
	}
	tools, err := client.ListTools(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Str("server_id", serverID).Str("url", u.Redacted()).Msg("tools/list failed")
		return nil, err
	}

	now := s.now()
	sess := &Session{
		ID:           fmt.Sprintf("sess_%s_%s", serverID, uuid.New().String()),
		ServerID:     serverID,
		ServerURL:    u.String(),
		Headers:      hdrs,
		Capabilities: init.Capabilities,
		ServerInfo:   init.ServerInfo,
		Client:       client,
		CreatedAt:    now,
		tools:        tools,
		lastAccess:   now,
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	s.logger.Info().
		Str("session_id", sess.ID).
		Str("server_id", serverID).
		Int("tools", len(tools)).
		Msg("session created")

	return sess, nil
}

// GetSession returns the session and refreshes its last access time. Unknown and
// expired ids fail with SESSION_NOT_FOUND; an expired session is evicted.
func (s *Store) GetSession(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, mcp.Errorf(mcp.KindSessionNotFound, "session %q not found", id)
	}

	now := s.now()
	if now.Sub(sess.LastAccess()) > s.expiry {
		delete(s.sessions, id)
		s.logger.Info().Str("session_id", id).Msg("session expired")
		return nil, mcp.Errorf(mcp.KindSessionNotFound, "session %q expired", id)
	}

	sess.touch(now)
	return sess, nil
}

// CloseSession removes the session. Unknown ids are ignored.
func (s *Store) CloseSession(id string) {
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if ok {
		s.logger.Info().Str("session_id", id).Msg("session closed")
	}
}

// InvalidateTools clears the cached tool list of the session so the next call to
// Tools fetches it again.
func (s *Store) InvalidateTools(id string) error {
	sess, err := s.GetSession(id)
	if err != nil {
		return err
	}
	sess.setTools(nil)
	return nil
}

// Tools returns the session's tool list, fetching it from the server when the cached
// list is empty.
func (s *Store) Tools(ctx context.Context, id string) ([]mcp.Tool, error) {
	sess, err := s.GetSession(id)
	if err != nil {
		return nil, err
	}

	if tools := sess.Tools(); len(tools) > 0 {
		return tools, nil
	}

	tools, err := sess.Client.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	sess.setTools(tools)
	s.logger.Debug().Str("session_id", id).Int("tools", len(tools)).Msg("tools refreshed")

	return sess.Tools(), nil
}

// Sessions lists live sessions ordered by creation time. Listing does not refresh
// expiry.
func (s *Store) Sessions() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	out := make([]Summary, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if now.Sub(sess.LastAccess()) > s.expiry {
			continue
		}
		out = append(out, sess.Summary())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Count returns the number of stored sessions, expired or not.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep evicts every expired session and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.LastAccess()) > s.expiry {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("expired sessions swept")
	}
	return removed
}

// Run sweeps expired sessions every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Tools returns a copy of the session's cached tool list in server order.
func (s *Session) Tools() []mcp.Tool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]mcp.Tool(nil), s.tools...)
}

// Tool looks up a tool by name in the cached list.
func (s *Session) Tool(name string) (mcp.Tool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tools {
		if t.Name == name {
			return t, true
		}
	}
	return mcp.Tool{}, false
}

// LastAccess returns when the session was last looked up.
func (s *Session) LastAccess() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastAccess
}

// Summary returns the public description of the session.
func (s *Session) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Summary{
		ID:         s.ID,
		ServerID:   s.ServerID,
		ServerURL:  s.ServerURL,
		ServerInfo: s.ServerInfo,
		ToolCount:  len(s.tools),
		CreatedAt:  s.CreatedAt,
		LastAccess: s.lastAccess,
	}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAccess = now
}

func (s *Session) setTools(tools []mcp.Tool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools = tools
}
