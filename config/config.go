// Package config loads the tabflow sender's YAML configuration, following
// the teacher's DefaultConfig -> LoadConfig -> Validate shape.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the tabflow sender's full configuration.
type Config struct {
	Listen              string `yaml:"listen"`
	StateStorePath      string `yaml:"state_store_path"`
	ObservabilityDBPath string `yaml:"observability_db_path"`
	TraceDBPath         string `yaml:"trace_db_path"`

	// Upper chunk-size bounds. Validate checks that they are positive;
	// the control plane does not compare incoming requests against them.
	MaxChunkSizeRecords int   `yaml:"max_chunk_size_records"`
	MaxChunkSizeBytes   int64 `yaml:"max_chunk_size_bytes"`

	PushTimeoutSeconds int `yaml:"push_timeout_seconds"`
	PushMaxAttempts    int `yaml:"push_max_attempts"`

	// Logger is never read from YAML; callers set it after LoadConfig.
	Logger *slog.Logger `yaml:"-"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:              ":8090",
		StateStorePath:      "tabflow_state.db",
		ObservabilityDBPath: "tabflow_observability.db",
		TraceDBPath:         "tabflow_traces.db",
		MaxChunkSizeRecords: 10_000,
		MaxChunkSizeBytes:   50 * 1024 * 1024,
		PushTimeoutSeconds:  60,
		PushMaxAttempts:     3,
		Logger:              slog.Default(),
	}
}

// LoadConfig reads and parses a YAML config file, returning DefaultConfig
// merged with whatever the file overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg, cfg.Validate()
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.StateStorePath == "" {
		return fmt.Errorf("config: state_store_path is required")
	}
	if c.MaxChunkSizeRecords <= 0 {
		return fmt.Errorf("config: max_chunk_size_records must be > 0")
	}
	if c.MaxChunkSizeBytes <= 0 {
		return fmt.Errorf("config: max_chunk_size_bytes must be > 0")
	}
	if c.PushMaxAttempts < 1 {
		return fmt.Errorf("config: push_max_attempts must be >= 1")
	}
	if c.PushTimeoutSeconds <= 0 {
		return fmt.Errorf("config: push_timeout_seconds must be > 0")
	}
	return nil
}

// PushTimeout returns the configured HTTP push timeout as a Duration.
func (c *Config) PushTimeout() time.Duration {
	return time.Duration(c.PushTimeoutSeconds) * time.Second
}
