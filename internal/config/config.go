// Package config loads the server settings from an optional file, environment
// variables prefixed MCPCLIENT_ and command line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. MCPCLIENT_HTTP_ADDR.
const EnvPrefix = "MCPCLIENT"

// Config keys.
const (
	KeyHTTPAddr              = "http.addr"
	KeyMCPTimeout            = "mcp.timeout"
	KeySessionExpiry         = "session.expiry"
	KeySessionSweep          = "session.sweep_interval"
	KeyMaxLoops              = "orchestrator.max_loops"
	KeyTokenBudget           = "orchestrator.token_budget"
	KeySystemPrompt          = "orchestrator.system_prompt"
	KeyCouncilTemperature    = "council.temperature"
	KeyCouncilMaxTokens      = "council.max_tokens"
	KeyCouncilConcurrency    = "council.concurrency"
	KeyCredentialsBackend    = "credentials.backend"
	KeyCredentialsPath       = "credentials.path"
	KeyCredentialsPassphrase = "credentials.passphrase"
	KeyHistoryDriver         = "history.driver"
	KeyHistoryDSN            = "history.dsn"
	KeyRegistryPath          = "registry.path"
	KeyRegistryWatch         = "registry.watch"
	KeyLogLevel              = "log.level"
	KeyLogFormat             = "log.format"
	KeyShutdownTimeout       = "http.shutdown_timeout"
)

// Credential backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
)

// History drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

// Config is the resolved server configuration.
type Config struct {
	HTTP         HTTP
	MCP          MCP
	Session      Session
	Orchestrator Orchestrator
	Council      Council
	Credentials  Credentials
	History      History
	Registry     Registry
	Log          Log
}

type HTTP struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type MCP struct {
	Timeout time.Duration
}

type Session struct {
	Expiry        time.Duration
	SweepInterval time.Duration
}

type Orchestrator struct {
	MaxLoops     int
	TokenBudget  int
	SystemPrompt string
}

type Council struct {
	Temperature float64
	MaxTokens   int
	Concurrency int
}

type Credentials struct {
	Backend    string
	Path       string
	Passphrase string
}

type History struct {
	Driver string
	DSN    string
}

type Registry struct {
	Path  string
	Watch bool
}

type Log struct {
	Level  string
	Format string
}

// New returns a viper instance with defaults and environment binding applied.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers the default of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyHTTPAddr, ":8080")
	v.SetDefault(KeyShutdownTimeout, 10*time.Second)
	v.SetDefault(KeyMCPTimeout, 30*time.Second)
	v.SetDefault(KeySessionExpiry, time.Hour)
	v.SetDefault(KeySessionSweep, 5*time.Minute)
	v.SetDefault(KeyMaxLoops, 8)
	v.SetDefault(KeyTokenBudget, 12000)
	v.SetDefault(KeySystemPrompt, "")
	v.SetDefault(KeyCouncilTemperature, 0.7)
	v.SetDefault(KeyCouncilMaxTokens, 500)
	v.SetDefault(KeyCouncilConcurrency, 8)
	v.SetDefault(KeyCredentialsBackend, BackendMemory)
	v.SetDefault(KeyCredentialsPath, "")
	v.SetDefault(KeyCredentialsPassphrase, "")
	v.SetDefault(KeyHistoryDriver, DriverSQLite)
	v.SetDefault(KeyHistoryDSN, "mcpclient.db")
	v.SetDefault(KeyRegistryPath, "")
	v.SetDefault(KeyRegistryWatch, true)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "console")
}

// Load reads the config file at path, if any, into v and resolves the configuration.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		HTTP: HTTP{
			Addr:            v.GetString(KeyHTTPAddr),
			ShutdownTimeout: v.GetDuration(KeyShutdownTimeout),
		},
		MCP: MCP{Timeout: v.GetDuration(KeyMCPTimeout)},
		Session: Session{
			Expiry:        v.GetDuration(KeySessionExpiry),
			SweepInterval: v.GetDuration(KeySessionSweep),
		},
		Orchestrator: Orchestrator{
			MaxLoops:     v.GetInt(KeyMaxLoops),
			TokenBudget:  v.GetInt(KeyTokenBudget),
			SystemPrompt: v.GetString(KeySystemPrompt),
		},
		Council: Council{
			Temperature: v.GetFloat64(KeyCouncilTemperature),
			MaxTokens:   v.GetInt(KeyCouncilMaxTokens),
			Concurrency: v.GetInt(KeyCouncilConcurrency),
		},
		Credentials: Credentials{
			Backend:    strings.ToLower(v.GetString(KeyCredentialsBackend)),
			Path:       v.GetString(KeyCredentialsPath),
			Passphrase: v.GetString(KeyCredentialsPassphrase),
		},
		History: History{
			Driver: strings.ToLower(v.GetString(KeyHistoryDriver)),
			DSN:    v.GetString(KeyHistoryDSN),
		},
		Registry: Registry{
			Path:  v.GetString(KeyRegistryPath),
			Watch: v.GetBool(KeyRegistryWatch),
		},
		Log: Log{
			Level:  v.GetString(KeyLogLevel),
			Format: v.GetString(KeyLogFormat),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and cross-field requirements.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if c.MCP.Timeout <= 0 {
		errs = append(errs, errors.New("mcp.timeout must be positive"))
	}
	if c.Session.Expiry <= 0 {
		errs = append(errs, errors.New("session.expiry must be positive"))
	}
	if c.Orchestrator.MaxLoops <= 0 {
		errs = append(errs, errors.New("orchestrator.max_loops must be positive"))
	}
	if c.Council.Concurrency <= 0 {
		errs = append(errs, errors.New("council.concurrency must be positive"))
	}
	switch c.Credentials.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Credentials.Path == "" {
			errs = append(errs, errors.New("credentials.path is required for the file backend"))
		}
		if c.Credentials.Passphrase == "" {
			errs = append(errs, errors.New("credentials.passphrase is required for the file backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown credentials.backend %q", c.Credentials.Backend))
	}
	switch c.History.Driver {
	case DriverNone:
	case DriverSQLite, DriverPostgres:
		if c.History.DSN == "" {
			errs = append(errs, fmt.Errorf("history.dsn is required for the %s driver", c.History.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown history.driver %q", c.History.Driver))
	}
	return errors.Join(errs...)
}
