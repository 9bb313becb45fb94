// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading for lexos-tui.
//
// Configuration is read from TOML with sensible defaults and environment
// variable overrides:
//   - ~/.lexos/config.toml
//   - Built-in defaults
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete lexos-tui configuration.
type Config struct {
	// Server holds backend endpoint configuration.
	Server ServerConfig `toml:"server"`

	// StateDir is the directory for snapshots, the credential file and the
	// client identifier. Default: ~/.lexos
	StateDir string `toml:"state_dir"`
}

// ServerConfig contains backend endpoint configuration.
type ServerConfig struct {
	// BaseURL is the HTTP base URL of the Command Center backend.
	BaseURL string `toml:"base_url"`
	// WebsocketURL is the push-channel endpoint, without the client
	// identifier suffix. Derived from BaseURL when empty.
	WebsocketURL string `toml:"websocket_url"`
	// TimeoutSecs is the synchronous request timeout in seconds.
	TimeoutSecs int `toml:"timeout_secs"`
}

// Defaults returns the built-in default configuration.
func Defaults() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		Server: ServerConfig{
			BaseURL:     "http://localhost:8000",
			TimeoutSecs: 60,
		},
		StateDir: filepath.Join(home, ".lexos"),
	}
}

// DefaultPath returns the default configuration file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".lexos", "config.toml")
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads configuration from the given path, falling back to defaults
// when the file does not exist, then applies environment overrides and
// validates.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		path = DefaultPath()
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies LEXOS_* environment variables over file values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("LEXOS_BASE_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("LEXOS_WS_URL"); v != "" {
		c.Server.WebsocketURL = v
	}
	if v := os.Getenv("LEXOS_STATE_DIR"); v != "" {
		c.StateDir = v
	}
	if v := os.Getenv("LEXOS_TIMEOUT_SECS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			c.Server.TimeoutSecs = secs
		}
	}
}

// Validate checks the configuration for usable values.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid server.base_url: %q", c.Server.BaseURL)
	}
	if c.Server.TimeoutSecs <= 0 {
		return fmt.Errorf("server.timeout_secs must be positive, got %d", c.Server.TimeoutSecs)
	}
	if c.StateDir == "" {
		return fmt.Errorf("state_dir must not be empty")
	}
	return nil
}

// Timeout returns the synchronous request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Server.TimeoutSecs) * time.Second
}

// PushURL returns the websocket endpoint, deriving it from BaseURL when not
// configured explicitly.
func (c *Config) PushURL() string {
	if c.Server.WebsocketURL != "" {
		return c.Server.WebsocketURL
	}
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws/chat"
	return u.String()
}
