// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for the Brewshed server.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// HTTP configures the device and recipe HTTP API.
	HTTP HTTPConfig `yaml:"http"`

	// Stream configures the CBOR telemetry stream listener.
	Stream StreamConfig `yaml:"stream"`

	// Session configures session buffering and the fermentation
	// estimator loop.
	Session SessionConfig `yaml:"session"`

	// Store configures the SQLite session store.
	Store StoreConfig `yaml:"store"`

	// Logging configures the slog handler.
	Logging LoggingConfig `yaml:"logging"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Paths   *PathsConfig   `yaml:"paths,omitempty"`
	HTTP    *HTTPConfig    `yaml:"http,omitempty"`
	Stream  *StreamConfig  `yaml:"stream,omitempty"`
	Session *SessionConfig `yaml:"session,omitempty"`
	Store   *StoreConfig   `yaml:"store,omitempty"`
	Logging *LoggingConfig `yaml:"logging,omitempty"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for Brewshed data.
	Root string `yaml:"root"`

	// Data is where the session database lives.
	Data string `yaml:"data"`

	// Recipes is the recipe library directory. Saved recipes are
	// written here as JSON files, one per recipe.
	Recipes string `yaml:"recipes"`
}

// HTTPConfig configures the device and recipe HTTP API.
type HTTPConfig struct {
	// ListenAddress is the host:port the HTTP server binds to.
	// Default: :8080
	ListenAddress string `yaml:"listen_address"`

	// ShutdownTimeout is how long to wait for in-flight requests
	// during graceful shutdown. Default: 10s
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// StreamConfig configures the CBOR telemetry stream listener.
type StreamConfig struct {
	// ListenAddress is the host:port the TCP stream listener binds to.
	// Default: :8081
	ListenAddress string `yaml:"listen_address"`

	// HeartbeatInterval is how often heartbeat events are sent to
	// stream subscribers. Default: 30s
	HeartbeatInterval string `yaml:"heartbeat_interval"`

	// SubscriberBuffer is the per-subscriber event buffer size. When a
	// subscriber falls behind, the oldest buffered event is dropped to
	// make room for the newest. Default: 64
	SubscriberBuffer int `yaml:"subscriber_buffer"`
}

// SessionConfig configures session buffering and the estimator loop.
type SessionConfig struct {
	// FlushThreshold is the number of pending telemetry points that
	// triggers a durable batch write. Default: 256
	FlushThreshold int `yaml:"flush_threshold"`

	// FlushInterval is the maximum time pending points wait before
	// being flushed regardless of count. Default: 30s
	FlushInterval string `yaml:"flush_interval"`

	// WindowCap is the maximum in-memory points retained per session.
	// When exceeded, the window is downsampled. Durable history is
	// unaffected. Default: 4000
	WindowCap int `yaml:"window_cap"`

	// EstimateInterval is how often the fermentation estimator
	// re-evaluates active sessions for auto-completion. Default: 60s
	EstimateInterval string `yaml:"estimate_interval"`
}

// StoreConfig configures the SQLite session store.
type StoreConfig struct {
	// PoolSize is the SQLite connection pool size. Zero means
	// max(NumCPU, 4).
	PoolSize int `yaml:"pool_size"`

	// Compression selects the codec for durable telemetry batches.
	// Values: "zstd", "lz4", "none". Default: zstd
	Compression string `yaml:"compression"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`

	// Format selects the handler: "text" or "json".
	// Default: text (development), json (production)
	Format string `yaml:"format"`
}

// Default returns the built-in configuration: state under
// ~/.local/share/brewshed, HTTP on :8080, stream on :8081, text logs.
// A loaded config file merges over these values, and the server runs
// on them directly when no file is given.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".local", "share", "brewshed")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:    defaultRoot,
			Data:    filepath.Join(defaultRoot, "data"),
			Recipes: filepath.Join(defaultRoot, "recipes"),
		},
		HTTP: HTTPConfig{
			ListenAddress:   ":8080",
			ShutdownTimeout: "10s",
		},
		Stream: StreamConfig{
			ListenAddress:     ":8081",
			HeartbeatInterval: "30s",
			SubscriberBuffer:  64,
		},
		Session: SessionConfig{
			FlushThreshold:   256,
			FlushInterval:    "30s",
			WindowCap:        4000,
			EstimateInterval: "60s",
		},
		Store: StoreConfig{
			PoolSize:    0,
			Compression: "zstd",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from the BREWSHED_CONFIG environment variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks or defaults - if BREWSHED_CONFIG is not set, this fails.
// This ensures deterministic, auditable configuration with no hidden overrides.
func Load() (*Config, error) {
	configPath := os.Getenv("BREWSHED_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("BREWSHED_CONFIG environment variable not set; " +
			"set it to the path of your brewshed.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables do not
// override config values - this ensures deterministic, auditable configuration.
// The only expansion performed is ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	// Apply environment-specific overrides (development/staging/production sections in the file).
	cfg.applyEnvironmentOverrides()

	// Expand ${HOME} and similar variables in paths for portability.
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, c)
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production defaults: structured logs for ingestion.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Logging: &LoggingConfig{
					Format: "json",
				},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		if overrides.Paths.Root != "" {
			c.Paths.Root = overrides.Paths.Root
		}
		if overrides.Paths.Data != "" {
			c.Paths.Data = overrides.Paths.Data
		}
		if overrides.Paths.Recipes != "" {
			c.Paths.Recipes = overrides.Paths.Recipes
		}
	}

	if overrides.HTTP != nil {
		if overrides.HTTP.ListenAddress != "" {
			c.HTTP.ListenAddress = overrides.HTTP.ListenAddress
		}
		if overrides.HTTP.ShutdownTimeout != "" {
			c.HTTP.ShutdownTimeout = overrides.HTTP.ShutdownTimeout
		}
	}

	if overrides.Stream != nil {
		if overrides.Stream.ListenAddress != "" {
			c.Stream.ListenAddress = overrides.Stream.ListenAddress
		}
		if overrides.Stream.HeartbeatInterval != "" {
			c.Stream.HeartbeatInterval = overrides.Stream.HeartbeatInterval
		}
		if overrides.Stream.SubscriberBuffer != 0 {
			c.Stream.SubscriberBuffer = overrides.Stream.SubscriberBuffer
		}
	}

	if overrides.Session != nil {
		if overrides.Session.FlushThreshold != 0 {
			c.Session.FlushThreshold = overrides.Session.FlushThreshold
		}
		if overrides.Session.FlushInterval != "" {
			c.Session.FlushInterval = overrides.Session.FlushInterval
		}
		if overrides.Session.WindowCap != 0 {
			c.Session.WindowCap = overrides.Session.WindowCap
		}
		if overrides.Session.EstimateInterval != "" {
			c.Session.EstimateInterval = overrides.Session.EstimateInterval
		}
	}

	if overrides.Store != nil {
		if overrides.Store.PoolSize != 0 {
			c.Store.PoolSize = overrides.Store.PoolSize
		}
		if overrides.Store.Compression != "" {
			c.Store.Compression = overrides.Store.Compression
		}
	}

	if overrides.Logging != nil {
		if overrides.Logging.Level != "" {
			c.Logging.Level = overrides.Logging.Level
		}
		if overrides.Logging.Format != "" {
			c.Logging.Format = overrides.Logging.Format
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"BREWSHED_ROOT": c.Paths.Root,
		"HOME":          os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["BREWSHED_ROOT"] = c.Paths.Root // Update for dependent paths.

	c.Paths.Data = expandVars(c.Paths.Data, vars)
	c.Paths.Recipes = expandVars(c.Paths.Recipes, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}

	if c.HTTP.ListenAddress == "" {
		errs = append(errs, fmt.Errorf("http.listen_address is required"))
	}

	if c.Stream.ListenAddress == "" {
		errs = append(errs, fmt.Errorf("stream.listen_address is required"))
	}

	if c.Session.FlushThreshold <= 0 {
		errs = append(errs, fmt.Errorf("session.flush_threshold must be positive"))
	}

	if c.Session.WindowCap <= 0 {
		errs = append(errs, fmt.Errorf("session.window_cap must be positive"))
	}

	if c.Stream.SubscriberBuffer <= 0 {
		errs = append(errs, fmt.Errorf("stream.subscriber_buffer must be positive"))
	}

	compressionValues := []string{"none", "lz4", "zstd"}
	if !contains(compressionValues, c.Store.Compression) {
		errs = append(errs, fmt.Errorf("store.compression must be one of: %v", compressionValues))
	}

	levelValues := []string{"debug", "info", "warn", "error"}
	if !contains(levelValues, c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level must be one of: %v", levelValues))
	}

	formatValues := []string{"text", "json"}
	if !contains(formatValues, c.Logging.Format) {
		errs = append(errs, fmt.Errorf("logging.format must be one of: %v", formatValues))
	}

	for _, field := range []struct {
		name  string
		value string
	}{
		{"http.shutdown_timeout", c.HTTP.ShutdownTimeout},
		{"stream.heartbeat_interval", c.Stream.HeartbeatInterval},
		{"session.flush_interval", c.Session.FlushInterval},
		{"session.estimate_interval", c.Session.EstimateInterval},
	} {
		if _, err := time.ParseDuration(field.value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field.name, err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// LogLevel returns the slog level for the configured logging level.
// Unknown values fall back to info.
func (c *Config) LogLevel() slog.Level {
	switch c.Logging.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// DatabasePath returns the full path of the session database file.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.Data, "brewshed.db")
}

// ShutdownTimeout returns the parsed HTTP shutdown timeout.
func (c *Config) ShutdownTimeout() time.Duration {
	return parseDurationOr(c.HTTP.ShutdownTimeout, 10*time.Second)
}

// HeartbeatInterval returns the parsed stream heartbeat interval.
func (c *Config) HeartbeatInterval() time.Duration {
	return parseDurationOr(c.Stream.HeartbeatInterval, 30*time.Second)
}

// FlushInterval returns the parsed session flush interval.
func (c *Config) FlushInterval() time.Duration {
	return parseDurationOr(c.Session.FlushInterval, 30*time.Second)
}

// EstimateInterval returns the parsed estimator loop interval.
func (c *Config) EstimateInterval() time.Duration {
	return parseDurationOr(c.Session.EstimateInterval, time.Minute)
}

// parseDurationOr parses s, falling back when s is invalid or not
// positive. Validate reports the parse error; accessors stay total.
func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// EnsurePaths creates all configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Paths.Root,
		c.Paths.Data,
		c.Paths.Recipes,
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
