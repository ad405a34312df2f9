package main

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"aide/internal/assistant"
	"aide/internal/config"
	"aide/internal/interpreter"
	"aide/internal/logging"
	"aide/internal/reconcile"
	"aide/internal/resolver"
	"aide/internal/store"
)

// app bundles the wired pipeline for one CLI invocation.
type app struct {
	cfg       *config.Config
	store     *store.SQLiteStore
	manager   *reconcile.Manager
	assistant *assistant.Assistant
	client    interpreter.CompletionClient
}

// openApp loads config and wires store, working set and pipeline. When
// needLLM is false (listing, config commands) the completion collaborator
// is left unconfigured and no API key is required.
func openApp(ctx context.Context, needLLM bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if needLLM {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("config: %w (try 'aide config init')", err)
		}
	}

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	if err := logging.Initialize(filepath.Dir(cfg.Store.DatabasePath), logging.Options{
		Enabled: cfg.Logging.Enabled || verbose,
		Level:   level,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	st, err := store.NewSQLiteStore(cfg.Store.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	window, err := cfg.DebounceWindow()
	if err != nil {
		st.Close()
		return nil, err
	}
	mgr := reconcile.NewManager(st, cfg.Store.OwnerID, window)
	if err := mgr.Start(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to load working set: %w", err)
	}

	a := &app{cfg: cfg, store: st, manager: mgr}
	if needLLM {
		a.client = newCompletionClient(cfg)
		a.assistant = assistant.New(interpreter.New(a.client), resolver.New(), mgr)
	}

	logger.Debug("app wired",
		zap.String("db", cfg.Store.DatabasePath),
		zap.String("owner", cfg.Store.OwnerID),
		zap.Bool("llm", needLLM))
	return a, nil
}

func (a *app) close() {
	a.manager.Close()
	if err := a.store.Close(); err != nil {
		logger.Warn("store close failed", zap.Error(err))
	}
	logging.CloseAll()
}

func newCompletionClient(cfg *config.Config) interpreter.CompletionClient {
	timeout, _ := cfg.LLMTimeout()
	switch cfg.LLM.Provider {
	case "anthropic":
		c := interpreter.DefaultAnthropicConfig(cfg.LLM.APIKey)
		if cfg.LLM.Model != "" {
			c.Model = cfg.LLM.Model
		}
		if cfg.LLM.BaseURL != "" {
			c.BaseURL = cfg.LLM.BaseURL
		}
		c.Timeout = timeout
		return interpreter.NewAnthropicClientWithConfig(c)
	default:
		c := interpreter.DefaultOpenAIConfig(cfg.LLM.APIKey)
		if cfg.LLM.Model != "" {
			c.Model = cfg.LLM.Model
		}
		if cfg.LLM.BaseURL != "" {
			c.BaseURL = cfg.LLM.BaseURL
		}
		c.Timeout = timeout
		return interpreter.NewOpenAIClientWithConfig(c)
	}
}
