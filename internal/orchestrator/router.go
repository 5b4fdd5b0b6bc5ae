package orchestrator

import (
	"context"
	"sort"
	"sync"

	mcp "github.com/nakad-pixel/Mcpclient"
	"github.com/nakad-pixel/Mcpclient/internal/llm"
	"github.com/nakad-pixel/Mcpclient/internal/session"
)

// SessionSource is the part of the session store the loop depends on.
type SessionSource interface {
	GetSession(id string) (*session.Session, error)
	Tools(ctx context.Context, id string) ([]mcp.Tool, error)
}

// Router merges the tool catalogs of the sessions attached to a conversation and
// resolves a tool name back to the session serving it. When two sessions advertise
// the same name the earlier attached session wins.
type Router struct {
	sessions SessionSource

	mu    sync.RWMutex
	ids   []string
	index map[string]string
}

// NewRouter creates a router over the given session ids, in preference order.
func NewRouter(sessions SessionSource, ids ...string) *Router {
	return &Router{
		sessions: sessions,
		ids:      append([]string(nil), ids...),
		index:    map[string]string{},
	}
}

// SessionIDs returns the attached session ids.
func (r *Router) SessionIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.ids...)
}

// Attach adds a session at the lowest preference.
func (r *Router) Attach(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.ids {
		if existing == id {
			return
		}
	}
	r.ids = append(r.ids, id)
}

// Detach removes a session.
func (r *Router) Detach(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.ids[:0]
	for _, existing := range r.ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	r.ids = out
	for tool, sid := range r.index {
		if sid == id {
			delete(r.index, tool)
		}
	}
}

// Catalog fetches the tools of every attached session and rebuilds the name index.
// A session that is gone or expired fails the whole catalog with SESSION_NOT_FOUND.
func (r *Router) Catalog(ctx context.Context) ([]llm.ToolSpec, error) {
	ids := r.SessionIDs()

	index := map[string]string{}
	specs := make([]llm.ToolSpec, 0)
	for _, id := range ids {
		tools, err := r.sessions.Tools(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, t := range tools {
			if _, dup := index[t.Name]; dup {
				continue
			}
			index[t.Name] = id
			specs = append(specs, llm.ToolSpec{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			})
		}
	}

	r.mu.Lock()
	r.index = index
	r.mu.Unlock()

	return specs, nil
}

// Resolve returns the id of the session serving tool name according to the last
// Catalog. Unknown names fail with TOOL_NOT_FOUND listing the known tools.
func (r *Router) Resolve(name string) (string, error) {
	r.mu.RLock()
	id, ok := r.index[name]
	var available []string
	if !ok {
		available = make([]string, 0, len(r.index))
		for tool := range r.index {
			available = append(available, tool)
		}
	}
	r.mu.RUnlock()

	if !ok {
		sort.Strings(available)
		return "", mcp.Errorf(mcp.KindToolNotFound, "tool %q not found", name).
			WithDetails(map[string]any{"available": available})
	}
	return id, nil
}
