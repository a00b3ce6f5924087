// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package plugins

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-dispatch/internal/commands"
)

// =============================================================================
// ERRORS AND EVENTS
// =============================================================================

var (
	// ErrDuplicatePlugin is returned by Register when the id is taken.
	ErrDuplicatePlugin = errors.New("plugin already registered")

	// ErrInvalidPluginID is returned for empty ids or ids containing ':' or spaces.
	ErrInvalidPluginID = errors.New("invalid plugin id")
)

// ChangeType describes a plugin set change.
type ChangeType string

const (
	PluginLoaded   ChangeType = "loaded"
	PluginUnloaded ChangeType = "unloaded"
	PluginToggled  ChangeType = "toggled"
)

// ChangeEvent is delivered to OnChange listeners after the change is applied.
type ChangeEvent struct {
	Type     ChangeType
	PluginID string
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry is the set of plugins available to the command executor.
// It satisfies commands.PluginSource and commands.PluginLookup.
type Registry struct {
	mu        sync.RWMutex
	plugins   map[string]commands.Plugin
	disabled  map[string]bool
	listeners []func(ChangeEvent)
	logger    *zap.Logger
}

// NewRegistry creates an empty registry. Ids in disabled are reported as
// disabled regardless of what the plugin itself says.
func NewRegistry(logger *zap.Logger, disabled ...string) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		plugins:  make(map[string]commands.Plugin),
		disabled: make(map[string]bool),
		logger:   logger,
	}
	for _, id := range disabled {
		r.disabled[id] = true
	}
	return r
}

// ValidID reports whether id can be used as an agent namespace.
func ValidID(id string) bool {
	return id != "" && !strings.ContainsAny(id, ": \t\r\n@/")
}

// Register adds p. Ids are unique; use Put to replace.
func (r *Registry) Register(p commands.Plugin) error {
	id := p.ID()
	if !ValidID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidPluginID, id)
	}

	r.mu.Lock()
	if _, exists := r.plugins[id]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicatePlugin, id)
	}
	r.plugins[id] = p
	r.mu.Unlock()

	r.logger.Info("PLUGIN_LOADED", zap.String("plugin", id), zap.Int("commands", len(p.Commands())))
	r.notify(ChangeEvent{Type: PluginLoaded, PluginID: id})
	return nil
}

// Put adds p, replacing any plugin with the same id.
func (r *Registry) Put(p commands.Plugin) error {
	id := p.ID()
	if !ValidID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidPluginID, id)
	}

	r.mu.Lock()
	_, replaced := r.plugins[id]
	r.plugins[id] = p
	r.mu.Unlock()

	r.logger.Info("PLUGIN_LOADED",
		zap.String("plugin", id),
		zap.Int("commands", len(p.Commands())),
		zap.Bool("replaced", replaced))
	r.notify(ChangeEvent{Type: PluginLoaded, PluginID: id})
	return nil
}

// Unregister removes the plugin with id and reports whether it existed.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	_, ok := r.plugins[id]
	delete(r.plugins, id)
	r.mu.Unlock()

	if ok {
		r.logger.Info("PLUGIN_UNLOADED", zap.String("plugin", id))
		r.notify(ChangeEvent{Type: PluginUnloaded, PluginID: id})
	}
	return ok
}

// SetEnabled administratively enables or disables a plugin id.
func (r *Registry) SetEnabled(id string, enabled bool) {
	r.mu.Lock()
	changed := r.disabled[id] == enabled
	if enabled {
		delete(r.disabled, id)
	} else {
		r.disabled[id] = true
	}
	r.mu.Unlock()

	if changed {
		r.logger.Info("PLUGIN_TOGGLED", zap.String("plugin", id), zap.Bool("enabled", enabled))
		r.notify(ChangeEvent{Type: PluginToggled, PluginID: id})
	}
}

// Plugin looks up a plugin by id, disabled or not.
func (r *Registry) Plugin(id string) (commands.Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[id]
	if !ok {
		return nil, false
	}
	return r.view(p), true
}

// EnabledPlugins returns the enabled plugins sorted by id.
func (r *Registry) EnabledPlugins(ctx context.Context) ([]commands.Plugin, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []commands.Plugin
	for _, p := range r.All() {
		if p.Enabled() {
			out = append(out, p)
		}
	}
	return out, nil
}

// All returns every plugin sorted by id.
func (r *Registry) All() []commands.Plugin {
	r.mu.RLock()
	out := make([]commands.Plugin, 0, len(r.plugins))
	for _, p := range r.plugins {
		out = append(out, r.view(p))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// OnChange registers fn to be called after every load, unload or toggle.
// Listeners run synchronously on the goroutine that made the change.
func (r *Registry) OnChange(fn func(ChangeEvent)) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) notify(ev ChangeEvent) {
	r.mu.RLock()
	listeners := append([]func(ChangeEvent){}, r.listeners...)
	r.mu.RUnlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

// view applies the administrative disabled list. Caller holds r.mu.
func (r *Registry) view(p commands.Plugin) commands.Plugin {
	if r.disabled[p.ID()] {
		return disabledPlugin{p}
	}
	return p
}

// disabledPlugin reports Enabled() == false for an otherwise live plugin.
type disabledPlugin struct {
	commands.Plugin
}

func (disabledPlugin) Enabled() bool { return false }

// unwrap returns the plugin behind an administrative view.
func unwrap(p commands.Plugin) commands.Plugin {
	if d, ok := p.(disabledPlugin); ok {
		return d.Plugin
	}
	return p
}
