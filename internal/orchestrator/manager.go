package orchestrator

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	mcp "github.com/nakad-pixel/Mcpclient"
	"github.com/nakad-pixel/Mcpclient/internal/council"
	"github.com/nakad-pixel/Mcpclient/internal/history"
	"github.com/nakad-pixel/Mcpclient/internal/llm"
)

// ErrNotFound is wrapped by lookups of unknown conversation ids.
var ErrNotFound = errors.New("conversation not found")

// Deps are the shared services conversations are built from.
type Deps struct {
	Sessions interface {
		SessionSource
		llm.SessionSource
	}
	Invoker    ToolInvoker
	Dispatcher council.Dispatcher
	Directory  *llm.Directory
	Recorder   history.Recorder
	Listener   Listener
	Budget     *Budget
	Logger     zerolog.Logger
	// Defaults fills MaxLoops, Temperature, MaxTokens and SystemPrompt when a Config
	// leaves them unset. An explicit zero temperature is kept. Defaults.Models seeds council conversations created without models.
	Defaults Config
}

// Manager keeps the live conversations by id.
type Manager struct {
	deps Deps

	mu            sync.RWMutex
	conversations map[string]*Conversation
}

// NewManager creates a manager.
func NewManager(deps Deps) *Manager {
	return &Manager{
		deps:          deps,
		conversations: map[string]*Conversation{},
	}
}

// Create starts a conversation using tools from the given sessions, in preference
// order. Models not in the directory are served by the sessions' llm_<model> tools.
func (m *Manager) Create(cfg Config, sessionIDs ...string) (*Conversation, error) {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.MaxLoops <= 0 {
		cfg.MaxLoops = m.deps.Defaults.MaxLoops
	}
	if cfg.Temperature == nil {
		cfg.Temperature = m.deps.Defaults.Temperature
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = m.deps.Defaults.MaxTokens
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = m.deps.Defaults.SystemPrompt
	}
	if cfg.Council && len(cfg.Models) == 0 {
		cfg.Models = append([]string(nil), m.deps.Defaults.Models...)
	}

	options := []Option{
		WithLogger(m.deps.Logger),
		WithBudget(m.deps.Budget),
	}
	if m.deps.Recorder != nil {
		options = append(options, WithRecorder(m.deps.Recorder))
	}
	if m.deps.Listener != nil {
		options = append(options, WithListener(m.deps.Listener))
	}
	if m.deps.Sessions != nil {
		options = append(options, WithTools(NewRouter(m.deps.Sessions, sessionIDs...), m.deps.Sessions, m.deps.Invoker))
	}
	if m.deps.Directory != nil {
		var resolver llm.Resolver = m.deps.Directory
		if m.deps.Sessions != nil && m.deps.Dispatcher != nil {
			resolver = m.deps.Directory.WithFallback(llm.NewMCPTool(m.deps.Sessions, m.deps.Dispatcher, sessionIDs...))
		}
		options = append(options, WithResolver(resolver))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.conversations[cfg.ID]; exists {
		return nil, mcp.Errorf(mcp.KindInvalidRequest, "conversation %q already exists", cfg.ID)
	}
	c := New(cfg, options...)
	m.conversations[cfg.ID] = c
	return c, nil
}

// Get returns the conversation with id.
func (m *Manager) Get(id string) (*Conversation, error) {
	m.mu.RLock()
	c, ok := m.conversations[id]
	m.mu.RUnlock()
	if !ok {
		return nil, mcp.WrapError(mcp.KindInvalidRequest, ErrNotFound, "conversation "+id)
	}
	return c, nil
}

// Delete forgets a conversation. It reports whether it existed.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.conversations[id]
	delete(m.conversations, id)
	return ok
}

// IDs returns the ids of all conversations, sorted.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.conversations))
	for id := range m.conversations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
