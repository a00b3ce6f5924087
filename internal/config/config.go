// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for dispatch.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.dispatch/config.toml
//   - ~/.dispatch/config.json
//   - Built-in defaults
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/jeranaias/rigrun-dispatch/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete dispatch configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Model selection used by /model and /models
	Model ModelConfig `toml:"model" json:"model"`

	// Plugin discovery and invocation
	Plugins PluginsConfig `toml:"plugins" json:"plugins"`

	// Structured logging
	Logging LoggingConfig `toml:"logging" json:"logging"`

	// Command execution history
	History HistoryConfig `toml:"history" json:"history"`
}

// ModelConfig contains the active and selectable model identifiers.
type ModelConfig struct {
	// Active is the model currently in use
	Active string `toml:"active" json:"active"`

	// Available lists the models /model may switch to.
	// Empty means any name is accepted.
	Available []string `toml:"available" json:"available"`
}

// PluginsConfig contains plugin loading settings.
type PluginsConfig struct {
	// Dir holds *.toml plugin manifests
	Dir string `toml:"dir" json:"dir"`

	// Watch reloads plugins when manifests change
	Watch bool `toml:"watch" json:"watch"`

	// DebounceMs coalesces bursts of file events
	DebounceMs int `toml:"debounce_ms" json:"debounce_ms"`

	// Disabled lists plugin ids that are loaded but administratively disabled
	Disabled []string `toml:"disabled" json:"disabled"`

	// RateLimit caps invocations per plugin per second (0 = unlimited)
	RateLimit float64 `toml:"rate_limit" json:"rate_limit"`

	// RateBurst is the limiter burst size
	RateBurst int `toml:"rate_burst" json:"rate_burst"`
}

// LoggingConfig contains logger settings.
type LoggingConfig struct {
	// Level: debug, info, warn, error
	Level string `toml:"level" json:"level"`

	// Format: console or json
	Format string `toml:"format" json:"format"`

	// File receives logs in addition to stderr when set
	File string `toml:"file" json:"file"`
}

// HistoryConfig contains execution history settings.
type HistoryConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled"`
	Path    string `toml:"path" json:"path"`

	// RetentionDays prunes older records on startup (0 = keep forever)
	RetentionDays int `toml:"retention_days" json:"retention_days"`
}

// CurrentVersion is the configuration schema version written by Save.
const CurrentVersion = "1"

// Default returns a new Config with default values.
func Default() *Config {
	dir, err := ConfigDir()
	if err != nil {
		dir = ".dispatch"
	}

	return &Config{
		Version: CurrentVersion,
		Model: ModelConfig{
			Active: "qwen2.5-coder:7b",
		},
		Plugins: PluginsConfig{
			Dir:        filepath.Join(dir, "plugins"),
			Watch:      true,
			DebounceMs: 250,
			RateBurst:  5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		History: HistoryConfig{
			Enabled:       true,
			Path:          filepath.Join(dir, "history.db"),
			RetentionDays: 30,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the dispatch configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".dispatch"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the default locations.
// Tries TOML first, then JSON, and falls back to defaults.
// It also returns the path that was read, empty when defaults were used.
func Load() (*Config, string, error) {
	for _, candidate := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		path, err := candidate()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		cfg, err := LoadFromPath(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, path, nil
	}

	cfg := Default()
	if err := cfg.finish(); err != nil {
		return nil, "", err
	}
	return cfg, "", nil
}

// LoadFromPath loads configuration from a specific file path with full validation.
// Files ending in .json are decoded as JSON, everything else as TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg. Keys absent from the file keep
// their current values.
func LoadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// finish runs the post-load pipeline shared by every loader.
func (c *Config) finish() error {
	c.ApplyEnvOverrides()
	if err := c.Migrate(); err != nil {
		return fmt.Errorf("config migration failed: %w", err)
	}
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
// RELIABILITY: Atomic write with fsync prevents data loss on crash
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# dispatch configuration file\n")
	buf.WriteString("# Generated by dispatch - edit with care\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON saves the configuration to a JSON file.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveToPath saves in the format implied by the file extension.
func SaveToPath(cfg *Config, path string) error {
	if strings.HasSuffix(path, ".json") {
		return SaveJSON(cfg, path)
	}
	return SaveTOML(cfg, path)
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

var (
	validLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validFormats = map[string]bool{"console": true, "json": true}
)

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	// Model
	if strings.TrimSpace(c.Model.Active) == "" {
		errs = append(errs, ValidationError{
			Field:   "model.active",
			Message: "must not be empty",
		})
	} else if len(c.Model.Available) > 0 && !containsString(c.Model.Available, c.Model.Active) {
		errs = append(errs, ValidationError{
			Field:   "model.active",
			Message: fmt.Sprintf("'%s' is not listed in model.available", c.Model.Active),
		})
	}

	// Plugins
	if c.Plugins.Dir == "" {
		errs = append(errs, ValidationError{
			Field:   "plugins.dir",
			Message: "must not be empty",
		})
	}
	if c.Plugins.DebounceMs < 0 || c.Plugins.DebounceMs > 60000 {
		errs = append(errs, ValidationError{
			Field:   "plugins.debounce_ms",
			Message: fmt.Sprintf("must be between 0 and 60000, got %d", c.Plugins.DebounceMs),
		})
	}
	if c.Plugins.RateLimit < 0 {
		errs = append(errs, ValidationError{
			Field:   "plugins.rate_limit",
			Message: fmt.Sprintf("must be non-negative, got %v", c.Plugins.RateLimit),
		})
	}
	if c.Plugins.RateBurst < 0 {
		errs = append(errs, ValidationError{
			Field:   "plugins.rate_burst",
			Message: fmt.Sprintf("must be non-negative, got %d", c.Plugins.RateBurst),
		})
	}

	// Logging
	if !validLevels[c.Logging.Level] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}
	if !validFormats[c.Logging.Format] {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid format '%s', must be one of: console, json", c.Logging.Format),
		})
	}

	// History
	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "history.path",
			Message: "must be set when history is enabled",
		})
	}
	if c.History.RetentionDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "history.retention_days",
			Message: fmt.Sprintf("must be non-negative, got %d", c.History.RetentionDays),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills in zero values that have a sensible default.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}
	if c.Model.Active == "" && len(c.Model.Available) > 0 {
		c.Model.Active = c.Model.Available[0]
	}
	if c.Plugins.Dir == "" {
		c.Plugins.Dir = defaults.Plugins.Dir
	}
	if c.Plugins.RateLimit > 0 && c.Plugins.RateBurst == 0 {
		c.Plugins.RateBurst = defaults.Plugins.RateBurst
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaults.Logging.Format
	}
	if c.History.Path == "" {
		c.History.Path = defaults.History.Path
	}
}

// Migrate normalizes values written by older versions or by hand.
func (c *Config) Migrate() error {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "warning" {
		c.Logging.Level = "warn"
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "text" {
		c.Logging.Format = "console"
	}

	c.Plugins.Dir = expandHome(c.Plugins.Dir)
	c.History.Path = expandHome(c.History.Path)
	c.Logging.File = expandHome(c.Logging.File)

	c.Model.Available = dedupe(c.Model.Available)
	c.Plugins.Disabled = dedupe(c.Plugins.Disabled)

	c.Version = CurrentVersion
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - DISPATCH_MODEL: overrides model.active
//   - DISPATCH_PLUGINS_DIR: overrides plugins.dir
//   - DISPATCH_LOG_LEVEL: overrides logging.level
//   - DISPATCH_HISTORY: "0"/"false" disables history, "1"/"true" enables it
func (c *Config) ApplyEnvOverrides() {
	if model := os.Getenv("DISPATCH_MODEL"); model != "" {
		c.Model.Active = model
		if len(c.Model.Available) > 0 && !containsString(c.Model.Available, model) {
			c.Model.Available = append(c.Model.Available, model)
		}
	}

	if dir := os.Getenv("DISPATCH_PLUGINS_DIR"); dir != "" {
		c.Plugins.Dir = dir
	}

	if level := os.Getenv("DISPATCH_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if history := os.Getenv("DISPATCH_HISTORY"); history != "" {
		c.History.Enabled = parseBool(history)
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "plugins.dir").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "plugins.dir").
// String values are converted to the field's type.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

// lookup walks the struct tree along a dotted key.
func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)

		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}

		if i == len(parts)-1 {
			return field, nil
		}

		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}

	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			field.SetBool(parseBool(strVal))
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				field.Set(reflect.ValueOf(splitList(strVal)))
				return nil
			}
		}
	}

	if value == nil {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}

	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	return []string{
		"version",
		"model.active",
		"model.available",
		"plugins.dir",
		"plugins.watch",
		"plugins.debounce_ms",
		"plugins.disabled",
		"plugins.rate_limit",
		"plugins.rate_burst",
		"logging.level",
		"logging.format",
		"logging.file",
		"history.enabled",
		"history.path",
		"history.retention_days",
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// IsPluginDisabled reports whether id is listed in plugins.disabled.
func (c *Config) IsPluginDisabled(id string) bool {
	return containsString(c.Plugins.Disabled, id)
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Model.Available = append([]string(nil), c.Model.Available...)
	clone.Plugins.Disabled = append([]string(nil), c.Plugins.Disabled...)
	return &clone
}

// String returns a JSON representation of the config for debugging.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "1" || s == "true" || s == "yes"
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func dedupe(list []string) []string {
	if len(list) == 0 {
		return list
	}
	seen := make(map[string]bool, len(list))
	out := list[:0]
	for _, item := range list {
		item = strings.TrimSpace(item)
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
