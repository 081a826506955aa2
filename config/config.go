// Package config loads the assistant engine configuration from YAML,
// with environment variable overrides for deployment settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all assistant engine configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Backend REST API (interaction log, tool registry/execution)
	Backend BackendConfig `yaml:"backend"`

	// Streamed completion endpoint
	Stream StreamConfig `yaml:"stream"`

	// Interaction log store selection
	Store StoreConfig `yaml:"store"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// BackendConfig configures the dashboard backend API client.
type BackendConfig struct {
	BaseURL  string `yaml:"base_url"`
	APIToken string `yaml:"api_token"`
	Timeout  string `yaml:"timeout"`
}

// StreamConfig configures the streamed completion client.
type StreamConfig struct {
	// Endpoint path relative to the backend base URL.
	Endpoint string `yaml:"endpoint"`

	// IncludeContext asks the backend to prepend user context to the prompt.
	IncludeContext bool `yaml:"include_context"`

	// ContextType selects which context slice the backend assembles.
	ContextType string `yaml:"context_type"`

	// ReadBufferSize is the chunk read buffer in bytes.
	ReadBufferSize int `yaml:"read_buffer_size"`
}

// StoreConfig selects the interaction log store backing.
type StoreConfig struct {
	// Kind is "remote" (backend REST store) or "sqlite" (local database).
	Kind string `yaml:"kind"`

	// DatabasePath is used when Kind is "sqlite".
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures categorized debug logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "lifeboard-assistant",
		Version: "1.0.0",

		Backend: BackendConfig{
			BaseURL: "http://localhost:8000/api/v1/mini-assistant",
			Timeout: "30s",
		},

		Stream: StreamConfig{
			Endpoint:       "/stream",
			IncludeContext: true,
			ContextType:    "general",
			ReadBufferSize: 4096,
		},

		Store: StoreConfig{
			Kind:         "remote",
			DatabasePath: "data/assistant.db",
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("LIFEBOARD_BACKEND_URL"); url != "" {
		c.Backend.BaseURL = url
	}
	if token := os.Getenv("LIFEBOARD_API_TOKEN"); token != "" {
		c.Backend.APIToken = token
	}
	if path := os.Getenv("LIFEBOARD_DB"); path != "" {
		c.Store.DatabasePath = path
		c.Store.Kind = "sqlite"
	}
}

// BackendTimeout returns the backend timeout as a duration.
func (c *Config) BackendTimeout() time.Duration {
	d, err := time.ParseDuration(c.Backend.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}
