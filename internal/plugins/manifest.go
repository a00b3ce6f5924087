// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package plugins

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/rigrun-dispatch/internal/commands"
)

// =============================================================================
// MANIFEST FILE FORMAT
// =============================================================================

// manifestFile is the on-disk shape of a plugin manifest:
//
//	id = "jira"
//	description = "Jira issues"
//	requires_env = ["JIRA_URL", "JIRA_API_TOKEN"]
//	timeout_seconds = 30
//
//	[guide]
//	auth_required = "Export JIRA_API_TOKEN, then reload."
//
//	[[commands]]
//	name = "issue"
//	syntax = "@jira:issue --title=<text>"
//	run = ["jira-cli", "issue", "create"]
//
// Older manifests use "name" for the plugin id, "id" for command names and
// "exec" or "handler" command strings. Both shapes are accepted here and
// nowhere else.
type manifestFile struct {
	ID             string            `toml:"id"`
	Name           string            `toml:"name"`
	Description    string            `toml:"description"`
	Enabled        *bool             `toml:"enabled"`
	RequiresEnv    []string          `toml:"requires_env"`
	Env            map[string]string `toml:"env"`
	WorkDir        string            `toml:"workdir"`
	TimeoutSeconds int               `toml:"timeout_seconds"`
	Guide          manifestGuide     `toml:"guide"`
	Commands       []rawCommand      `toml:"commands"`
}

type manifestGuide struct {
	NotConfigured string `toml:"not_configured"`
	AuthRequired  string `toml:"auth_required"`
}

// rawCommand accepts both historical command shapes.
type rawCommand struct {
	Name        string   `toml:"name"`
	ID          string   `toml:"id"`
	Description string   `toml:"description"`
	Syntax      string   `toml:"syntax"`
	Examples    []string `toml:"examples"`
	Run         []string `toml:"run"`
	Exec        string   `toml:"exec"`
	Handler     string   `toml:"handler"`
}

// =============================================================================
// NORMALIZED TYPES
// =============================================================================

// Manifest is a validated plugin manifest with one command shape.
type Manifest struct {
	ID          string
	Description string
	Enabled     bool
	RequiresEnv []string
	Env         map[string]string
	WorkDir     string
	Timeout     int
	Guide       commands.Guide
	Commands    []CommandDescriptor
}

// CommandDescriptor is the single internal command shape.
type CommandDescriptor struct {
	commands.CommandSpec

	// Argv is the program and leading arguments run for the command
	Argv []string
}

// normalizeCommand converts either historical shape into a CommandDescriptor.
func normalizeCommand(raw rawCommand) (CommandDescriptor, error) {
	name := strings.TrimSpace(raw.Name)
	if id := strings.TrimSpace(raw.ID); id != "" {
		if name != "" && name != id {
			return CommandDescriptor{}, fmt.Errorf("command has both name %q and id %q", name, id)
		}
		name = id
	}
	if name == "" {
		return CommandDescriptor{}, fmt.Errorf("command has no name")
	}

	argv := raw.Run
	if len(argv) == 0 {
		line := raw.Exec
		if line == "" {
			line = raw.Handler
		}
		argv = commands.Tokenize(line)
	}
	if len(argv) == 0 {
		return CommandDescriptor{}, fmt.Errorf("command %q has no run, exec or handler", name)
	}

	return CommandDescriptor{
		CommandSpec: commands.CommandSpec{
			Name:        name,
			Description: raw.Description,
			Syntax:      raw.Syntax,
			Examples:    raw.Examples,
		},
		Argv: argv,
	}, nil
}

// =============================================================================
// LOADING
// =============================================================================

// ParseManifest decodes and normalizes a manifest. fallbackID is used when
// the file names no id, normally the file's base name.
func ParseManifest(data []byte, fallbackID string) (*Manifest, error) {
	var mf manifestFile
	meta, err := toml.Decode(string(data), &mf)
	if err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown manifest keys: %s", strings.Join(keys, ", "))
	}

	id := strings.TrimSpace(mf.ID)
	if name := strings.TrimSpace(mf.Name); name != "" {
		if id != "" && id != name {
			return nil, fmt.Errorf("manifest has both id %q and name %q", id, name)
		}
		id = name
	}
	if id == "" {
		id = fallbackID
	}
	if !ValidID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPluginID, id)
	}

	m := &Manifest{
		ID:          id,
		Description: mf.Description,
		Enabled:     mf.Enabled == nil || *mf.Enabled,
		RequiresEnv: mf.RequiresEnv,
		Env:         mf.Env,
		WorkDir:     mf.WorkDir,
		Timeout:     mf.TimeoutSeconds,
		Guide: commands.Guide{
			AgentID:       id,
			NotConfigured: mf.Guide.NotConfigured,
			AuthRequired:  mf.Guide.AuthRequired,
		},
	}

	seen := make(map[string]bool, len(mf.Commands))
	for i, raw := range mf.Commands {
		cmd, err := normalizeCommand(raw)
		if err != nil {
			return nil, fmt.Errorf("commands[%d]: %w", i, err)
		}
		if seen[cmd.Name] {
			return nil, fmt.Errorf("commands[%d]: duplicate command %q", i, cmd.Name)
		}
		seen[cmd.Name] = true
		m.Commands = append(m.Commands, cmd)
	}

	return m, nil
}

// LoadManifest reads a manifest file into an exec-backed plugin.
func LoadManifest(path string) (*ExecPlugin, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	fallback := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	m, err := ParseManifest(data, fallback)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if m.WorkDir != "" && !filepath.IsAbs(m.WorkDir) {
		m.WorkDir = filepath.Join(filepath.Dir(path), m.WorkDir)
	}
	return NewExecPlugin(m, path), nil
}

// LoadDir loads every *.toml manifest in dir, sorted by file name.
// A missing directory yields no plugins and no error. Per-file failures
// are returned alongside the plugins that did load.
func LoadDir(dir string) ([]*ExecPlugin, []error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, []error{fmt.Errorf("failed to read plugin directory: %w", err)}
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && isManifest(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var loaded []*ExecPlugin
	var errs []error
	for _, name := range names {
		p, err := LoadManifest(filepath.Join(dir, name))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		loaded = append(loaded, p)
	}
	return loaded, errs
}

func isManifest(name string) bool {
	return strings.HasSuffix(name, ".toml") && !strings.HasPrefix(name, ".")
}
