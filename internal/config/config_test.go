// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// =============================================================================
// DEFAULTS AND LOADING
// =============================================================================

func TestConfig_Default(t *testing.T) {
	cfg := Default()

	if cfg.Version != CurrentVersion {
		t.Errorf("Version = %q, want %q", cfg.Version, CurrentVersion)
	}
	if cfg.Model.Active == "" {
		t.Error("Model.Active should have a default")
	}
	if !cfg.Plugins.Watch {
		t.Error("Plugins.Watch should default to true")
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "console" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

func TestLoadFromPath_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, `
[model]
active = "gpt-4"
available = ["qwen", "gpt-4", "qwen"]

[plugins]
dir = "/opt/dispatch/plugins"
disabled = ["svn"]
rate_limit = 2.5

[logging]
level = "WARNING"
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}

	if cfg.Model.Active != "gpt-4" {
		t.Errorf("Model.Active = %q", cfg.Model.Active)
	}
	if !reflect.DeepEqual(cfg.Model.Available, []string{"qwen", "gpt-4"}) {
		t.Errorf("Model.Available = %v", cfg.Model.Available)
	}
	if cfg.Plugins.Dir != "/opt/dispatch/plugins" {
		t.Errorf("Plugins.Dir = %q", cfg.Plugins.Dir)
	}
	if !cfg.IsPluginDisabled("svn") || cfg.IsPluginDisabled("git") {
		t.Errorf("Plugins.Disabled = %v", cfg.Plugins.Disabled)
	}
	if cfg.Plugins.RateLimit != 2.5 || cfg.Plugins.RateBurst != 5 {
		t.Errorf("rate = %v/%d", cfg.Plugins.RateLimit, cfg.Plugins.RateBurst)
	}
	// Keys missing from the file keep their defaults
	if !cfg.Plugins.Watch || cfg.Plugins.DebounceMs != 250 {
		t.Errorf("Plugins defaults lost: %+v", cfg.Plugins)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want migrated 'warn'", cfg.Logging.Level)
	}
}

func TestLoadFromPath_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{"model": {"active": "llama3"}, "history": {"enabled": false}}`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Model.Active != "llama3" {
		t.Errorf("Model.Active = %q", cfg.Model.Active)
	}
	if cfg.History.Enabled {
		t.Error("History.Enabled should be false")
	}
}

func TestLoadFromPath_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, `
[logging]
level = "loud"
format = "xml"
`)

	_, err := LoadFromPath(path)
	if err == nil {
		t.Fatal("expected validation error")
	}

	var verrs ValidateErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidateErrors, got %T", err)
	}
	if len(verrs) != 2 {
		t.Errorf("expected 2 validation errors, got %d: %v", len(verrs), verrs)
	}
}

func TestLoadFromPath_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "[model\nactive = ")

	if _, err := LoadFromPath(path); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestLoad_FallsBackToDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, path, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if path != "" {
		t.Errorf("path = %q, want empty", path)
	}
	if cfg.Model.Active != Default().Model.Active {
		t.Errorf("Model.Active = %q", cfg.Model.Active)
	}
}

func TestLoad_PrefersTOML(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".dispatch")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "config.toml"), "[model]\nactive = \"from-toml\"\n")
	writeFile(t, filepath.Join(dir, "config.json"), `{"model": {"active": "from-json"}}`)

	cfg, path, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model.Active != "from-toml" {
		t.Errorf("Model.Active = %q", cfg.Model.Active)
	}
	if !strings.HasSuffix(path, "config.toml") {
		t.Errorf("path = %q", path)
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("DISPATCH_MODEL", "mistral")
	t.Setenv("DISPATCH_PLUGINS_DIR", "/tmp/plugins")
	t.Setenv("DISPATCH_LOG_LEVEL", "debug")
	t.Setenv("DISPATCH_HISTORY", "false")

	cfg := Default()
	cfg.Model.Available = []string{"qwen"}
	cfg.ApplyEnvOverrides()

	if cfg.Model.Active != "mistral" {
		t.Errorf("Model.Active = %q", cfg.Model.Active)
	}
	if !reflect.DeepEqual(cfg.Model.Available, []string{"qwen", "mistral"}) {
		t.Errorf("Model.Available = %v", cfg.Model.Available)
	}
	if cfg.Plugins.Dir != "/tmp/plugins" {
		t.Errorf("Plugins.Dir = %q", cfg.Plugins.Dir)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
	if cfg.History.Enabled {
		t.Error("History should be disabled")
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"empty model", func(c *Config) { c.Model.Active = " " }, "model.active"},
		{"model not available", func(c *Config) {
			c.Model.Available = []string{"a", "b"}
			c.Model.Active = "c"
		}, "model.active"},
		{"negative debounce", func(c *Config) { c.Plugins.DebounceMs = -1 }, "plugins.debounce_ms"},
		{"huge debounce", func(c *Config) { c.Plugins.DebounceMs = 60001 }, "plugins.debounce_ms"},
		{"negative rate", func(c *Config) { c.Plugins.RateLimit = -1 }, "plugins.rate_limit"},
		{"negative burst", func(c *Config) { c.Plugins.RateBurst = -1 }, "plugins.rate_burst"},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"history without path", func(c *Config) { c.History.Path = "" }, "history.path"},
		{"history disabled without path", func(c *Config) {
			c.History.Enabled = false
			c.History.Path = ""
		}, ""},
		{"negative retention", func(c *Config) { c.History.RetentionDays = -5 }, "history.retention_days"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.modify(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tc.wantErr)
			}
		})
	}
}

// =============================================================================
// GET/SET
// =============================================================================

func TestConfig_GetSet(t *testing.T) {
	cfg := Default()

	if err := cfg.Set("plugins.debounce_ms", "500"); err != nil {
		t.Fatalf("Set debounce: %v", err)
	}
	if err := cfg.Set("plugins.watch", "false"); err != nil {
		t.Fatalf("Set watch: %v", err)
	}
	if err := cfg.Set("model.available", "qwen, gpt-4"); err != nil {
		t.Fatalf("Set available: %v", err)
	}
	if err := cfg.Set("plugins.rate_limit", 3); err != nil {
		t.Fatalf("Set rate_limit: %v", err)
	}

	v, err := cfg.Get("plugins.debounce_ms")
	if err != nil || v != 500 {
		t.Errorf("Get debounce = %v, %v", v, err)
	}
	if cfg.Plugins.Watch {
		t.Error("watch should be false")
	}
	if !reflect.DeepEqual(cfg.Model.Available, []string{"qwen", "gpt-4"}) {
		t.Errorf("available = %v", cfg.Model.Available)
	}
	if cfg.Plugins.RateLimit != 3 {
		t.Errorf("rate_limit = %v", cfg.Plugins.RateLimit)
	}

	if _, err := cfg.Get("plugins.nope"); err == nil {
		t.Error("expected unknown field error")
	}
	if _, err := cfg.Get("version.major"); err == nil {
		t.Error("expected not-a-struct error")
	}
	if err := cfg.Set("plugins.debounce_ms", "soon"); err == nil {
		t.Error("expected integer parse error")
	}
	if _, err := cfg.Get(""); err == nil {
		t.Error("expected empty key error")
	}
}

func TestGetAllKeys_Resolvable(t *testing.T) {
	cfg := Default()
	for _, key := range GetAllKeys() {
		if _, err := cfg.Get(key); err != nil {
			t.Errorf("Get(%q): %v", key, err)
		}
	}
}

func TestConfig_Clone(t *testing.T) {
	cfg := Default()
	cfg.Model.Available = []string{"a"}

	clone := cfg.Clone()
	clone.Model.Available[0] = "b"
	clone.Plugins.Dir = "/elsewhere"

	if cfg.Model.Available[0] != "a" || cfg.Plugins.Dir == "/elsewhere" {
		t.Error("Clone shares state with the original")
	}
}

// =============================================================================
// SAVE AND MODEL STORE
// =============================================================================

func TestSaveTOML_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Default()
	cfg.Model.Available = []string{"qwen", "gpt-4"}
	cfg.Model.Active = "gpt-4"

	if err := SaveTOML(cfg, path); err != nil {
		t.Fatalf("SaveTOML: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("perm = %o, want 600", info.Mode().Perm())
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if loaded.Model.Active != "gpt-4" || len(loaded.Model.Available) != 2 {
		t.Errorf("round trip lost model section: %+v", loaded.Model)
	}
}

func TestModelStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := Default()
	cfg.Model.Available = []string{"qwen", "gpt-4"}
	cfg.Model.Active = "qwen"
	store := NewModelStore(cfg, path)

	if store.ActiveModel() != "qwen" {
		t.Errorf("ActiveModel = %q", store.ActiveModel())
	}
	if err := store.SetActiveModel("gpt-4"); err != nil {
		t.Fatalf("SetActiveModel: %v", err)
	}
	if err := store.SetActiveModel("claude"); err == nil {
		t.Error("expected unknown model error")
	}
	if err := store.SetActiveModel(""); err == nil {
		t.Error("expected empty name error")
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if loaded.Model.Active != "gpt-4" {
		t.Errorf("persisted model = %q", loaded.Model.Active)
	}

	models := store.AvailableModels()
	models[0] = "mutated"
	if cfg.Model.Available[0] != "qwen" {
		t.Error("AvailableModels must return a copy")
	}
}

func TestModelStore_AcceptsAnyWhenUnlisted(t *testing.T) {
	store := NewModelStore(Default(), "")
	if err := store.SetActiveModel("anything"); err != nil {
		t.Fatalf("SetActiveModel: %v", err)
	}
	if store.ActiveModel() != "anything" {
		t.Errorf("ActiveModel = %q", store.ActiveModel())
	}
}

func TestModelStore_ConcurrentAccess(t *testing.T) {
	store := NewModelStore(Default(), "")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = store.SetActiveModel("m")
		}()
		go func() {
			defer wg.Done()
			_ = store.ActiveModel()
		}()
	}
	wg.Wait()
}

func TestModelStore_GetFollowsSwitch(t *testing.T) {
	cfg := Default()
	cfg.Model.Available = []string{"m1", "m2"}
	store := NewModelStore(cfg, "")

	if err := store.SetActiveModel("m2"); err != nil {
		t.Fatalf("SetActiveModel: %v", err)
	}
	v, err := store.Get("model.active")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != "m2" {
		t.Errorf("model.active = %v, want m2", v)
	}
	if _, err := store.Get("model.nope"); err == nil {
		t.Error("expected error for unknown key")
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = store.SetActiveModel("m1")
		}()
		go func() {
			defer wg.Done()
			_, _ = store.Get("model.active")
		}()
	}
	wg.Wait()
}
