// Package registry loads the file describing the MCP servers and models a deployment
// knows about. The file is YAML or TOML, chosen by extension.
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/nakad-pixel/Mcpclient/internal/llm"
)

// Server is an MCP server entry.
type Server struct {
	ID          string            `yaml:"id" toml:"id" json:"id"`
	URL         string            `yaml:"url" toml:"url" json:"url"`
	Headers     map[string]string `yaml:"headers,omitempty" toml:"headers,omitempty" json:"headers,omitempty"`
	AutoConnect bool              `yaml:"auto_connect" toml:"auto_connect" json:"autoConnect"`
}

// Model is a chat model entry. Models without a base URL are served by MCP servers
// exposing an llm_<name> tool.
type Model struct {
	Name    string            `yaml:"name" toml:"name" json:"name"`
	Service string            `yaml:"service" toml:"service" json:"service"`
	ID      string            `yaml:"id,omitempty" toml:"id,omitempty" json:"id,omitempty"`
	BaseURL string            `yaml:"base_url,omitempty" toml:"base_url,omitempty" json:"baseUrl,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty" toml:"headers,omitempty" json:"headers,omitempty"`
}

// Council lists the default council members.
type Council struct {
	Models []string `yaml:"models" toml:"models" json:"models"`
}

// Registry is the parsed file.
type Registry struct {
	Servers []Server `yaml:"servers" toml:"servers" json:"servers"`
	Models  []Model  `yaml:"models" toml:"models" json:"models"`
	Council Council  `yaml:"council" toml:"council" json:"council"`
}

// Load reads the registry at path. A missing file yields an empty registry.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Registry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	return Parse(filepath.Ext(path), data)
}

// Parse decodes a registry document. ext selects the format: .yaml, .yml or .toml.
func Parse(ext string, data []byte) (*Registry, error) {
	var reg Registry
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &reg); err != nil {
			return nil, fmt.Errorf("parse registry yaml: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &reg); err != nil {
			return nil, fmt.Errorf("parse registry toml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported registry format %q", ext)
	}
	if err := reg.validate(); err != nil {
		return nil, err
	}
	return &reg, nil
}

func (r *Registry) validate() error {
	seen := map[string]bool{}
	for i, s := range r.Servers {
		if s.ID == "" {
			return fmt.Errorf("server #%d: id is required", i+1)
		}
		if s.URL == "" {
			return fmt.Errorf("server %q: url is required", s.ID)
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate server id %q", s.ID)
		}
		seen[s.ID] = true
	}
	names := map[string]bool{}
	for i, m := range r.Models {
		if m.Name == "" {
			return fmt.Errorf("model #%d: name is required", i+1)
		}
		key := strings.ToLower(m.Name)
		if names[key] {
			return fmt.Errorf("duplicate model %q", m.Name)
		}
		names[key] = true
	}
	return nil
}

// Server returns the server with id.
func (r *Registry) Server(id string) (Server, bool) {
	for _, s := range r.Servers {
		if s.ID == id {
			return s, true
		}
	}
	return Server{}, false
}

// AutoConnect returns the servers to connect on load.
func (r *Registry) AutoConnect() []Server {
	out := make([]Server, 0)
	for _, s := range r.Servers {
		if s.AutoConnect {
			out = append(out, s)
		}
	}
	return out
}

// LLMModels converts the model entries for the model directory.
func (r *Registry) LLMModels() []llm.Model {
	out := make([]llm.Model, 0, len(r.Models))
	for _, m := range r.Models {
		out = append(out, llm.Model{
			Name:    m.Name,
			Service: m.Service,
			ID:      m.ID,
			BaseURL: m.BaseURL,
			Headers: m.Headers,
		})
	}
	return out
}
