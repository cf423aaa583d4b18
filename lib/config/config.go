// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for keyfold.
type Config struct {
	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Daemon configures the keyfoldd socket server.
	Daemon DaemonConfig `yaml:"daemon"`

	// Vault configures item storage.
	Vault VaultConfig `yaml:"vault"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for keyfold data.
	// Default: ~/.keyfold
	Root string `yaml:"root"`

	// State is where runtime state (pid files, account metadata
	// snapshots) is stored.
	// Default: ${KEYFOLD_ROOT}/state
	State string `yaml:"state"`
}

// DaemonConfig configures the keyfoldd socket server.
type DaemonConfig struct {
	// SocketPath is the Unix socket the daemon listens on.
	// Default: ${KEYFOLD_ROOT}/keyfoldd.sock
	SocketPath string `yaml:"socket_path"`

	// HeartbeatInterval is how often watch streams emit a heartbeat
	// when no snapshots flow, as a Go duration string.
	// Default: 30s
	HeartbeatInterval string `yaml:"heartbeat_interval"`
}

// VaultConfig configures item storage.
type VaultConfig struct {
	// DatabasePath is the SQLite database holding items.
	// Default: ${KEYFOLD_ROOT}/vault.db
	DatabasePath string `yaml:"database_path"`

	// PoolSize is the SQLite connection pool size. Zero uses the
	// store's default.
	PoolSize int `yaml:"pool_size"`

	// ExportCompression is the default compression for export
	// bundles: none, lz4, or zstd.
	// Default: zstd
	ExportCompression string `yaml:"export_compression"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is the minimum level emitted: debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`

	// Format selects the slog handler: text or json.
	// Default: text
	Format string `yaml:"format"`
}

// Default returns the built-in configuration. All paths derive from a
// root under the user's home directory, so the daemon runs without a
// config file on a fresh machine.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".keyfold")

	return &Config{
		Paths: PathsConfig{
			Root:  defaultRoot,
			State: filepath.Join(defaultRoot, "state"),
		},
		Daemon: DaemonConfig{
			SocketPath:        filepath.Join(defaultRoot, "keyfoldd.sock"),
			HeartbeatInterval: "30s",
		},
		Vault: VaultConfig{
			DatabasePath:      filepath.Join(defaultRoot, "vault.db"),
			ExportCompression: "zstd",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from the file named by KEYFOLD_CONFIG.
// When the variable is unset the built-in defaults apply; a set
// variable naming an unreadable file is an error, never silently
// ignored.
func Load() (*Config, error) {
	configPath := os.Getenv("KEYFOLD_CONFIG")
	if configPath == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, merging it
// over the defaults. The file is the single source of truth;
// environment variables do not override its values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in path
// fields. The root is expanded first so dependent paths can reference
// ${KEYFOLD_ROOT}.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"KEYFOLD_ROOT": c.Paths.Root,
		"HOME":         os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["KEYFOLD_ROOT"] = c.Paths.Root

	c.Paths.State = expandVars(c.Paths.State, vars)
	c.Daemon.SocketPath = expandVars(c.Daemon.SocketPath, vars)
	c.Vault.DatabasePath = expandVars(c.Vault.DatabasePath, vars)
}

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

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors and reports all of
// them at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}
	if c.Daemon.SocketPath == "" {
		errs = append(errs, fmt.Errorf("daemon.socket_path is required"))
	}
	if c.Vault.DatabasePath == "" {
		errs = append(errs, fmt.Errorf("vault.database_path is required"))
	}
	if c.Vault.PoolSize < 0 {
		errs = append(errs, fmt.Errorf("vault.pool_size must not be negative"))
	}

	if interval, err := time.ParseDuration(c.Daemon.HeartbeatInterval); err != nil {
		errs = append(errs, fmt.Errorf("daemon.heartbeat_interval: %w", err))
	} else if interval <= 0 {
		errs = append(errs, fmt.Errorf("daemon.heartbeat_interval must be positive"))
	}

	if !contains([]string{"none", "lz4", "zstd"}, c.Vault.ExportCompression) {
		errs = append(errs, fmt.Errorf("vault.export_compression must be one of: none, lz4, zstd"))
	}
	if !contains([]string{"debug", "info", "warn", "error"}, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: debug, info, warn, error"))
	}
	if !contains([]string{"text", "json"}, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of: text, json"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Heartbeat returns the parsed heartbeat interval. Call after
// Validate; an unparseable value falls back to 30 seconds.
func (c *Config) Heartbeat() time.Duration {
	interval, err := time.ParseDuration(c.Daemon.HeartbeatInterval)
	if err != nil || interval <= 0 {
		return 30 * time.Second
	}
	return interval
}

// NewLogger builds the slog logger the configuration describes,
// writing to w.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch c.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	options := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, options))
	}
	return slog.New(slog.NewTextHandler(w, options))
}

// EnsurePaths creates the configured directories, including the
// parents of the socket and database paths. Vault data is private to
// the user, so everything is created mode 0700.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Paths.Root,
		c.Paths.State,
		filepath.Dir(c.Daemon.SocketPath),
		filepath.Dir(c.Vault.DatabasePath),
	}

	for _, path := range paths {
		if path == "" || path == "." {
			continue
		}
		if err := os.MkdirAll(path, 0700); err != nil {
			return fmt.Errorf("config: creating %s: %w", path, err)
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
