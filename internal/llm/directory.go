package llm

import (
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	mcp "github.com/nakad-pixel/Mcpclient"
)

// Model is a configured model reachable through an OpenAI compatible service.
type Model struct {
	// Name is what users select.
	Name string
	// Service keys the API key in the credential store.
	Service string
	// ID is the upstream model id; Name is used when empty.
	ID string
	// BaseURL of the chat completions API.
	BaseURL string
	// Headers sent with every request.
	Headers map[string]string
}

// Resolver maps a selected model name to the provider serving it and the model id to
// send.
type Resolver interface {
	Resolve(name string) (Provider, string, error)
}

// Directory is a Resolver over configured models. SetModels may replace them at any
// time; resolvers derived with WithFallback see the change.
type Directory struct {
	mu         sync.RWMutex
	models     map[string]Model
	keys       KeySource
	httpClient *http.Client
	logger     zerolog.Logger
	providers  map[string]*OpenAI
}

// NewDirectory creates a directory resolving models with keys from keys.
func NewDirectory(keys KeySource, httpClient *http.Client, logger zerolog.Logger, models ...Model) *Directory {
	d := &Directory{keys: keys, httpClient: httpClient, logger: logger}
	d.SetModels(models...)
	return d
}

// SetModels replaces the configured models.
func (d *Directory) SetModels(models ...Model) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.models = make(map[string]Model, len(models))
	d.providers = map[string]*OpenAI{}
	for _, m := range models {
		d.models[strings.ToLower(m.Name)] = m
	}
}

// Models returns the configured models.
func (d *Directory) Models() []Model {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Model, 0, len(d.models))
	for _, m := range d.models {
		out = append(out, m)
	}
	return out
}

// WithFallback returns a resolver that looks names up in d and serves names d does not
// know with p.
func (d *Directory) WithFallback(p Provider) Resolver {
	return &fallbackResolver{dir: d, fallback: p}
}

// Resolve implements Resolver.
func (d *Directory) Resolve(name string) (Provider, string, error) {
	p, id, ok := d.lookup(name)
	if !ok {
		return nil, "", mcp.Errorf(mcp.KindInvalidRequest, "unknown model %q", name)
	}
	return p, id, nil
}

func (d *Directory) lookup(name string) (Provider, string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, ok := d.models[strings.ToLower(name)]
	if !ok {
		return nil, "", false
	}

	id := m.ID
	if id == "" {
		id = m.Name
	}

	key := m.Service + "|" + m.BaseURL
	p, ok := d.providers[key]
	if !ok {
		opts := []OpenAIOption{WithOpenAILogger(d.logger), WithOpenAIHeaders(m.Headers)}
		if d.httpClient != nil {
			opts = append(opts, WithOpenAIHTTPClient(d.httpClient))
		}
		p = NewOpenAI(m.Service, m.BaseURL, d.keys, opts...)
		d.providers[key] = p
	}
	return p, id, true
}

type fallbackResolver struct {
	dir      *Directory
	fallback Provider
}

func (r *fallbackResolver) Resolve(name string) (Provider, string, error) {
	if p, id, ok := r.dir.lookup(name); ok {
		return p, id, nil
	}
	return r.fallback, name, nil
}
