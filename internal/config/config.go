// Package config holds all aide configuration: completion provider settings,
// store location, reconciliation tuning and logging. Config is YAML on disk
// with environment-variable overrides applied on load.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all aide configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Completion collaborator configuration
	LLM LLMConfig `yaml:"llm"`

	// Persistence configuration
	Store StoreConfig `yaml:"store"`

	// Mutation/reconciliation tuning
	Sync SyncConfig `yaml:"sync"`

	// Speech capture settings
	Speech SpeechConfig `yaml:"speech"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the text-completion collaborator.
type LLMConfig struct {
	Provider string `yaml:"provider"` // openai, anthropic
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// StoreConfig configures the persistence service.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
	OwnerID      string `yaml:"owner_id"`
}

// SyncConfig configures the reconciliation scheduler.
type SyncConfig struct {
	// Quiet window after which coalesced triggers produce one fetch.
	DebounceWindow string `yaml:"debounce_window"`
}

// SpeechConfig configures speech capture.
type SpeechConfig struct {
	// Hard ceiling on a capture session regardless of activity.
	MaxDuration string `yaml:"max_duration"`
}

// LoggingConfig configures the category logger.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "aide",
		Version: "1.0.0",

		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
			BaseURL:  "https://api.openai.com/v1",
			Timeout:  "120s",
		},

		Store: StoreConfig{
			DatabasePath: "data/aide.db",
			OwnerID:      "local",
		},

		Sync: SyncConfig{
			DebounceWindow: "400ms",
		},

		Speech: SpeechConfig{
			MaxDuration: "2m",
		},

		Logging: LoggingConfig{
			Enabled: false,
			Level:   "info",
		},
	}
}

// Load reads configuration from the given path, falling back to defaults
// for a missing file, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to the given path, creating parent
// directories as needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// applyEnvOverrides lets environment variables win over file values.
func (c *Config) applyEnvOverrides() {
	switch c.LLM.Provider {
	case "anthropic":
		if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
			c.LLM.APIKey = key
		}
	default:
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			c.LLM.APIKey = key
		}
	}
	if path := os.Getenv("AIDE_DB_PATH"); path != "" {
		c.Store.DatabasePath = path
	}
	if owner := os.Getenv("AIDE_OWNER_ID"); owner != "" {
		c.Store.OwnerID = owner
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required (or set %s)", c.apiKeyEnvVar())
	}
	if c.Store.DatabasePath == "" {
		return fmt.Errorf("store.database_path is required")
	}
	if _, err := c.DebounceWindow(); err != nil {
		return fmt.Errorf("sync.debounce_window: %w", err)
	}
	if _, err := c.LLMTimeout(); err != nil {
		return fmt.Errorf("llm.timeout: %w", err)
	}
	if _, err := c.SpeechMaxDuration(); err != nil {
		return fmt.Errorf("speech.max_duration: %w", err)
	}
	return nil
}

func (c *Config) apiKeyEnvVar() string {
	if c.LLM.Provider == "anthropic" {
		return "ANTHROPIC_API_KEY"
	}
	return "OPENAI_API_KEY"
}

// DebounceWindow returns the parsed reconciliation quiet window.
func (c *Config) DebounceWindow() (time.Duration, error) {
	return parseDurationDefault(c.Sync.DebounceWindow, 400*time.Millisecond)
}

// LLMTimeout returns the parsed completion-call timeout.
func (c *Config) LLMTimeout() (time.Duration, error) {
	return parseDurationDefault(c.LLM.Timeout, 120*time.Second)
}

// SpeechMaxDuration returns the parsed capture ceiling.
func (c *Config) SpeechMaxDuration() (time.Duration, error) {
	return parseDurationDefault(c.Speech.MaxDuration, 2*time.Minute)
}

func parseDurationDefault(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %v", d)
	}
	return d, nil
}
