package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 30*time.Second, cfg.MCP.Timeout)
	assert.Equal(t, time.Hour, cfg.Session.Expiry)
	assert.Equal(t, 5*time.Minute, cfg.Session.SweepInterval)
	assert.Equal(t, 8, cfg.Orchestrator.MaxLoops)
	assert.Equal(t, 12000, cfg.Orchestrator.TokenBudget)
	assert.Equal(t, 0.7, cfg.Council.Temperature)
	assert.Equal(t, 500, cfg.Council.MaxTokens)
	assert.Equal(t, 8, cfg.Council.Concurrency)
	assert.Equal(t, BackendMemory, cfg.Credentials.Backend)
	assert.Equal(t, DriverSQLite, cfg.History.Driver)
	assert.True(t, cfg.Registry.Watch)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcpclient.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":9090"
mcp:
  timeout: 5s
orchestrator:
  max_loops: 4
credentials:
  backend: file
  path: /tmp/creds.bin
history:
  driver: none
`), 0o644))

	t.Setenv("MCPCLIENT_CREDENTIALS_PASSPHRASE", "hunter2")
	t.Setenv("MCPCLIENT_COUNCIL_TEMPERATURE", "0.1")

	cfg, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 5*time.Second, cfg.MCP.Timeout)
	assert.Equal(t, 4, cfg.Orchestrator.MaxLoops)
	assert.Equal(t, BackendFile, cfg.Credentials.Backend)
	assert.Equal(t, "hunter2", cfg.Credentials.Passphrase)
	assert.Equal(t, 0.1, cfg.Council.Temperature)
	assert.Equal(t, DriverNone, cfg.History.Driver)
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcpclient.toml")
	require.NoError(t, os.WriteFile(path, []byte("[session]\nexpiry = \"10m\"\n"), 0o644))
	cfg, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, cfg.Session.Expiry)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"file backend without path", func(c *Config) { c.Credentials.Backend = BackendFile; c.Credentials.Passphrase = "x" }, "credentials.path"},
		{"file backend without passphrase", func(c *Config) { c.Credentials.Backend = BackendFile; c.Credentials.Path = "p" }, "credentials.passphrase"},
		{"unknown backend", func(c *Config) { c.Credentials.Backend = "vault" }, "unknown credentials.backend"},
		{"unknown driver", func(c *Config) { c.History.Driver = "mysql" }, "unknown history.driver"},
		{"postgres without dsn", func(c *Config) { c.History.Driver = DriverPostgres; c.History.DSN = "" }, "history.dsn"},
		{"zero loops", func(c *Config) { c.Orchestrator.MaxLoops = 0 }, "max_loops"},
		{"zero timeout", func(c *Config) { c.MCP.Timeout = 0 }, "mcp.timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(New(), "")
			require.NoError(t, err)
			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
