// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/equitydesk/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete equitydesk configuration.
type Config struct {
	Version string `toml:"version"`

	// Backend configuration (analysis and chat endpoints)
	Backend BackendConfig `toml:"backend"`

	// Chat configuration
	Chat ChatConfig `toml:"chat"`

	// Storage configuration (local history database)
	Storage StorageConfig `toml:"storage"`

	// UI configuration
	UI UIConfig `toml:"ui"`
}

// BackendConfig contains the analysis backend connection settings.
type BackendConfig struct {
	// URL is the base URL of the analysis backend
	URL string `toml:"url"`
	// Model is the model identifier sent with generation requests
	Model string `toml:"model"`
	// TimeoutSecs is the timeout for non-streaming requests in seconds
	TimeoutSecs int `toml:"timeout_secs"`
	// RequestsPerSecond caps the request rate against the backend
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// ChatConfig contains chat session defaults.
type ChatConfig struct {
	// DefaultMode is the chat variant on session open: "normal" or "agent"
	DefaultMode string `toml:"default_mode"`
}

// StorageConfig contains the local history database settings.
type StorageConfig struct {
	// Path is the SQLite database path (empty = ~/.equitydesk/history.db)
	Path string `toml:"path"`
}

// UIConfig contains presentation settings.
type UIConfig struct {
	// Theme is the UI theme: "dark" or "light"
	Theme string `toml:"theme"`
	// ShowSources displays citation sources under assistant messages
	ShowSources bool `toml:"show_sources"`
	// ShowTimestamps displays message timestamps in the transcript
	ShowTimestamps bool `toml:"show_timestamps"`
	// CompactMode uses a more compact transcript layout
	CompactMode bool `toml:"compact_mode"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Backend: BackendConfig{
			URL:               "http://127.0.0.1:8084",
			Model:             "research-std",
			TimeoutSecs:       30,
			RequestsPerSecond: 4,
		},

		Chat: ChatConfig{
			DefaultMode: "normal",
		},

		Storage: StorageConfig{
			Path: "",
		},

		UI: UIConfig{
			Theme:          "dark",
			ShowSources:    true,
			ShowTimestamps: false,
			CompactMode:    false,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// Dir returns the equitydesk configuration directory path.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".equitydesk"), nil
}

// Path returns the path to the TOML config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureDir ensures the config directory exists.
func EnsureDir() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the default config file, falling back to
// built-in defaults when no file exists. Environment overrides are applied
// last, then the result is validated.
func Load() (*Config, error) {
	path, err := Path()
	if err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific TOML file with full
// validation. Missing fields fall back to defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
	}

	fillDefaults(cfg)
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// fillDefaults fills in any missing values with defaults.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}
	if cfg.Backend.URL == "" {
		cfg.Backend.URL = defaults.Backend.URL
	}
	if cfg.Backend.Model == "" {
		cfg.Backend.Model = defaults.Backend.Model
	}
	if cfg.Backend.TimeoutSecs == 0 {
		cfg.Backend.TimeoutSecs = defaults.Backend.TimeoutSecs
	}
	if cfg.Backend.RequestsPerSecond == 0 {
		cfg.Backend.RequestsPerSecond = defaults.Backend.RequestsPerSecond
	}
	if cfg.Chat.DefaultMode == "" {
		cfg.Chat.DefaultMode = defaults.Chat.DefaultMode
	}
	if cfg.UI.Theme == "" {
		cfg.UI.Theme = defaults.UI.Theme
	}
}

// =============================================================================
// SAVE
// =============================================================================

// Save writes the configuration to the default config file atomically.
func (c *Config) Save() error {
	if err := EnsureDir(); err != nil {
		return err
	}
	path, err := Path()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the configuration to the given path atomically.
func (c *Config) SaveTo(path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if u, err := url.Parse(c.Backend.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "backend.url",
			Message: fmt.Sprintf("invalid URL '%s'", c.Backend.URL),
		})
	}

	if c.Backend.TimeoutSecs < 1 || c.Backend.TimeoutSecs > 600 {
		errs = append(errs, ValidationError{
			Field:   "backend.timeout_secs",
			Message: fmt.Sprintf("must be 1-600, got %d", c.Backend.TimeoutSecs),
		})
	}

	if c.Backend.RequestsPerSecond <= 0 {
		errs = append(errs, ValidationError{
			Field:   "backend.requests_per_second",
			Message: "must be positive",
		})
	}

	validModes := map[string]bool{"normal": true, "agent": true}
	if !validModes[strings.ToLower(c.Chat.DefaultMode)] {
		errs = append(errs, ValidationError{
			Field:   "chat.default_mode",
			Message: fmt.Sprintf("invalid mode '%s', must be one of: normal, agent", c.Chat.DefaultMode),
		})
	}

	validThemes := map[string]bool{"dark": true, "light": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light", c.UI.Theme),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported variables:
//   - EQUITYDESK_BACKEND_URL: overrides backend.url
//   - EQUITYDESK_MODEL: overrides backend.model
//   - EQUITYDESK_MODE: overrides chat.default_mode
//   - EQUITYDESK_DB_PATH: overrides storage.path
//   - EQUITYDESK_THEME: overrides ui.theme
func (c *Config) ApplyEnvOverrides() {
	if u := os.Getenv("EQUITYDESK_BACKEND_URL"); u != "" {
		c.Backend.URL = u
	}
	if model := os.Getenv("EQUITYDESK_MODEL"); model != "" {
		c.Backend.Model = model
	}
	if mode := os.Getenv("EQUITYDESK_MODE"); mode != "" {
		c.Chat.DefaultMode = strings.ToLower(mode)
	}
	if path := os.Getenv("EQUITYDESK_DB_PATH"); path != "" {
		c.Storage.Path = path
	}
	if theme := os.Getenv("EQUITYDESK_THEME"); theme != "" {
		c.UI.Theme = strings.ToLower(theme)
	}
}

// =============================================================================
// DERIVED VALUES
// =============================================================================

// DatabasePath resolves the local history database path, defaulting to
// history.db under the config directory.
func (c *Config) DatabasePath() (string, error) {
	if c.Storage.Path != "" {
		return c.Storage.Path, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}
