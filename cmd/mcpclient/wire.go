package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	mcp "github.com/nakad-pixel/Mcpclient"
	"github.com/nakad-pixel/Mcpclient/internal/api"
	"github.com/nakad-pixel/Mcpclient/internal/config"
	"github.com/nakad-pixel/Mcpclient/internal/council"
	"github.com/nakad-pixel/Mcpclient/internal/events"
	"github.com/nakad-pixel/Mcpclient/internal/gateway"
	"github.com/nakad-pixel/Mcpclient/internal/history"
	"github.com/nakad-pixel/Mcpclient/internal/llm"
	"github.com/nakad-pixel/Mcpclient/internal/orchestrator"
	"github.com/nakad-pixel/Mcpclient/internal/registry"
	"github.com/nakad-pixel/Mcpclient/internal/secrets"
	"github.com/nakad-pixel/Mcpclient/internal/session"
)

// app holds the long-lived services behind the HTTP handler.
type app struct {
	handler   http.Handler
	store     *session.Store
	directory *llm.Directory
	broker    *events.Broker
	recorder  history.Recorder
	watcher   *registry.Watcher
	logger    zerolog.Logger
}

func wireApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	backend, err := credentialBackend(cfg.Credentials)
	if err != nil {
		return nil, err
	}

	mcpLogger := logger.With().Str("component", "mcp").Logger()
	store := session.NewStore(
		session.WithExpiry(cfg.Session.Expiry),
		session.WithCredentialBackend(backend),
		session.WithLogger(logger.With().Str("component", "session").Logger()),
		session.WithClientFactory(func(serverURL string, headers map[string]string) mcp.RemoteClient {
			return mcp.NewClient(serverURL,
				mcp.WithHeaders(headers),
				mcp.WithClientTimeout(cfg.MCP.Timeout),
				mcp.WithClientLogger(mcpLogger),
			)
		}),
	)
	if err := store.LoadCredentials(ctx); err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}

	recorder, err := openHistory(ctx, cfg.History)
	if err != nil {
		return nil, err
	}

	reg := &registry.Registry{}
	if cfg.Registry.Path != "" {
		if reg, err = registry.Load(cfg.Registry.Path); err != nil {
			_ = recorder.Close()
			return nil, err
		}
	}

	budget, err := orchestrator.NewBudget(cfg.Orchestrator.TokenBudget)
	if err != nil {
		_ = recorder.Close()
		return nil, err
	}

	directory := llm.NewDirectory(store, http.DefaultClient, logger.With().Str("component", "llm").Logger(), reg.LLMModels()...)
	gw := gateway.New(gateway.WithLogger(logger.With().Str("component", "gateway").Logger()))
	engine := council.NewEngine(gw,
		council.WithDefaults(cfg.Council.Temperature, cfg.Council.MaxTokens),
		council.WithConcurrency(cfg.Council.Concurrency),
		council.WithLogger(logger.With().Str("component", "council").Logger()),
	)
	broker := events.NewBroker(events.WithLogger(logger.With().Str("component", "events").Logger()))

	temperature := cfg.Council.Temperature
	manager := orchestrator.NewManager(orchestrator.Deps{
		Sessions:   store,
		Invoker:    gw,
		Dispatcher: gw,
		Directory:  directory,
		Recorder:   recorder,
		Listener:   broker,
		Budget:     budget,
		Logger:     logger.With().Str("component", "orchestrator").Logger(),
		Defaults: orchestrator.Config{
			Models:       reg.Council.Models,
			MaxLoops:     cfg.Orchestrator.MaxLoops,
			Temperature:  &temperature,
			MaxTokens:    cfg.Council.MaxTokens,
			SystemPrompt: cfg.Orchestrator.SystemPrompt,
		},
	})

	a := &app{
		store:     store,
		directory: directory,
		broker:    broker,
		recorder:  recorder,
		logger:    logger,
		handler: api.New(api.Deps{
			Sessions:           store,
			Gateway:            gw,
			Council:            engine,
			Conversations:      manager,
			Directory:          directory,
			History:            recorder,
			Events:             broker,
			Logger:             logger.With().Str("component", "api").Logger(),
			Version:            version,
			CouncilTemperature: cfg.Council.Temperature,
			CouncilMaxTokens:   cfg.Council.MaxTokens,
		}),
	}

	a.autoConnect(ctx, reg)

	if cfg.Registry.Path != "" && cfg.Registry.Watch {
		w, err := registry.NewWatcher(cfg.Registry.Path, a.applyRegistry(ctx),
			registry.WithWatcherLogger(logger.With().Str("component", "registry").Logger()))
		if err != nil {
			_ = recorder.Close()
			return nil, err
		}
		if err := w.Start(ctx); err != nil {
			_ = recorder.Close()
			return nil, err
		}
		a.watcher = w
	}
	return a, nil
}

func credentialBackend(cfg config.Credentials) (secrets.Backend, error) {
	switch cfg.Backend {
	case config.BackendFile:
		return secrets.NewFileVault(cfg.Path, cfg.Passphrase)
	default:
		return secrets.Memory{}, nil
	}
}

func openHistory(ctx context.Context, cfg config.History) (history.Recorder, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return history.OpenSQLite(ctx, cfg.DSN)
	case config.DriverPostgres:
		return history.OpenPostgres(ctx, cfg.DSN)
	default:
		return history.Nop{}, nil
	}
}

// applyRegistry returns the watcher callback: models are replaced and new
// auto-connect servers are connected.
func (a *app) applyRegistry(ctx context.Context) func(*registry.Registry) {
	return func(reg *registry.Registry) {
		a.directory.SetModels(reg.LLMModels()...)
		a.autoConnect(ctx, reg)
		a.broker.Publish(events.Event{
			Type: events.TypeRegistry,
			Data: map[string]any{
				"servers": len(reg.Servers),
				"models":  len(reg.Models),
			},
		})
	}
}

// autoConnect opens a session to every auto-connect server without a live one.
func (a *app) autoConnect(ctx context.Context, reg *registry.Registry) {
	connected := map[string]bool{}
	for _, s := range a.store.Sessions() {
		connected[s.ServerID] = true
	}
	for _, srv := range reg.AutoConnect() {
		if connected[srv.ID] {
			continue
		}
		sess, err := a.store.CreateSession(ctx, srv.ID, srv.URL, srv.Headers)
		if err != nil {
			a.logger.Warn().Err(err).Str("server", srv.ID).Msg("auto-connect failed")
			continue
		}
		a.logger.Info().Str("server", srv.ID).Str("session", sess.ID).Msg("auto-connected")
		a.broker.Publish(events.Event{
			Type: events.TypeSession,
			Data: map[string]any{"event": "connected", "session": sess.Summary()},
		})
	}
}

func (a *app) close() error {
	var errs []error
	if a.watcher != nil {
		errs = append(errs, a.watcher.Stop())
	}
	a.broker.Close()
	errs = append(errs, a.recorder.Close())
	return errors.Join(errs...)
}
