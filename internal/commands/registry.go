// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// =============================================================================
// COMMAND TABLE
// =============================================================================

// table is the two-level lookup agent id -> command name -> handler,
// with a parallel usage table.
type table struct {
	handlers map[string]map[string]Handler
	usages   map[string]map[string]Usage
}

func newTable() *table {
	return &table{
		handlers: make(map[string]map[string]Handler),
		usages:   make(map[string]map[string]Usage),
	}
}

// add registers a handler and returns a non-empty reason when it refuses.
func (t *table) add(agentID, name string, h Handler) string {
	switch {
	case agentID == "":
		return "empty agent id"
	case name == "":
		return "empty command name"
	case h == nil:
		return "nil handler"
	}
	cmds, ok := t.handlers[agentID]
	if !ok {
		cmds = make(map[string]Handler)
		t.handlers[agentID] = cmds
	}
	if _, exists := cmds[name]; exists {
		return "already registered"
	}
	cmds[name] = h
	return ""
}

func (t *table) setUsage(u Usage) {
	cmds, ok := t.usages[u.AgentID]
	if !ok {
		cmds = make(map[string]Usage)
		t.usages[u.AgentID] = cmds
	}
	cmds[u.Command] = u
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry holds command handlers and usage metadata keyed by agent id.
type Registry struct {
	mu     sync.RWMutex
	tables *table

	// refreshMu serializes Refresh calls
	refreshMu sync.Mutex

	source PluginSource
	models ModelStore
	logger *zap.Logger
	events *notifier
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithPluginSource sets the plugin collaborator used by Refresh.
func WithPluginSource(source PluginSource) RegistryOption {
	return func(r *Registry) { r.source = source }
}

// WithModelStore sets the model configuration used by /model and /models.
func WithModelStore(models ModelStore) RegistryOption {
	return func(r *Registry) { r.models = models }
}

// NewRegistry creates a registry seeded with the built-in core commands.
func NewRegistry(logger *zap.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		tables: newTable(),
		logger: logger,
		events: newNotifier(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.seedBuiltins(r.tables)
	return r
}

// Register adds a handler for (agentID, name).
// First writer wins: a duplicate pair is rejected and the existing handler kept.
func (r *Registry) Register(agentID, name string, h Handler) bool {
	r.mu.Lock()
	reason := r.tables.add(agentID, name, h)
	r.mu.Unlock()

	if reason != "" {
		r.logger.Warn("REGISTER_REJECTED",
			zap.String("agent", agentID),
			zap.String("command", name),
			zap.String("reason", reason))
		return false
	}

	r.events.publish(Event{Type: EventCommandRegistered, AgentID: agentID, Command: name})
	r.events.publish(Event{Type: EventCommandsChanged})
	return true
}

// Handler returns the handler registered for (agentID, name).
func (r *Registry) Handler(agentID, name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.tables.handlers[agentID][name]
	return h, ok
}

// RegisterUsage stores help metadata. Unlike handlers, a repeat call for the
// same (agent, command) replaces the previous entry.
func (r *Registry) RegisterUsage(u Usage) bool {
	if u.AgentID == "" || u.Command == "" {
		r.logger.Warn("USAGE_REJECTED",
			zap.String("agent", u.AgentID),
			zap.String("command", u.Command))
		return false
	}
	r.mu.Lock()
	r.tables.setUsage(u)
	r.mu.Unlock()
	return true
}

// Usage returns the usage entry for (agentID, name).
func (r *Registry) Usage(agentID, name string) (Usage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.tables.usages[agentID][name]
	return u, ok
}

// Usages returns every usage entry sorted by agent then command.
func (r *Registry) Usages() []Usage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Usage
	for _, cmds := range r.tables.usages {
		for _, u := range cmds {
			out = append(out, u)
		}
	}
	sortUsages(out)
	return out
}

// AgentUsages returns the usage entries of one agent sorted by command.
func (r *Registry) AgentUsages(agentID string) []Usage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cmds := r.tables.usages[agentID]
	out := make([]Usage, 0, len(cmds))
	for _, u := range cmds {
		out = append(out, u)
	}
	sortUsages(out)
	return out
}

// Agents returns the agent ids that have at least one handler.
func (r *Registry) Agents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.tables.handlers))
	for id, cmds := range r.tables.handlers {
		if len(cmds) > 0 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Subscribe returns a stream of registry events and a cancel function.
func (r *Registry) Subscribe(buffer int) (<-chan Event, func()) {
	return r.events.subscribe(buffer)
}

func sortUsages(us []Usage) {
	sort.Slice(us, func(i, j int) bool {
		if us[i].AgentID != us[j].AgentID {
			return us[i].AgentID < us[j].AgentID
		}
		return us[i].Command < us[j].Command
	})
}

// =============================================================================
// REFRESH
// =============================================================================

// RegistrationFailure records a plugin command skipped during Refresh.
type RegistrationFailure struct {
	AgentID string
	Command string
	Reason  string
}

// RefreshResult summarizes a Refresh.
type RefreshResult struct {
	// Registered counts plugin commands in the rebuilt table
	Registered int

	// Failures lists plugin commands that could not be registered
	Failures []RegistrationFailure
}

// Refresh rebuilds both tables from the built-ins and the currently enabled
// plugins. Plugins are enumerated before anything is cleared, and the new
// tables replace the old ones in a single step. Concurrent calls run one at
// a time. Per-command failures are collected, not fatal.
func (r *Registry) Refresh(ctx context.Context) (RefreshResult, error) {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	var plugins []Plugin
	if r.source != nil {
		var err error
		plugins, err = r.source.EnabledPlugins(ctx)
		if err != nil {
			r.logger.Error("REFRESH_FAILED", zap.Error(err))
			return RefreshResult{}, fmt.Errorf("enumerate plugins: %w", err)
		}
	}

	next := newTable()
	r.seedBuiltins(next)

	var result RefreshResult
	for _, p := range plugins {
		agentID := p.ID()
		for _, spec := range p.Commands() {
			if reason := next.add(agentID, spec.Name, pluginHandler(p, spec.Name)); reason != "" {
				result.Failures = append(result.Failures, RegistrationFailure{
					AgentID: agentID,
					Command: spec.Name,
					Reason:  reason,
				})
				continue
			}
			next.setUsage(pluginUsage(agentID, spec))
			result.Registered++
		}
	}

	r.mu.Lock()
	r.tables = next
	r.mu.Unlock()

	for _, f := range result.Failures {
		r.logger.Debug("REFRESH_SKIPPED",
			zap.String("agent", f.AgentID),
			zap.String("command", f.Command),
			zap.String("reason", f.Reason))
	}
	r.logger.Info("REGISTRY_REFRESHED",
		zap.Int("plugins", len(plugins)),
		zap.Int("registered", result.Registered),
		zap.Int("failed", len(result.Failures)))

	r.events.publish(Event{Type: EventCommandsChanged})
	return result, nil
}

// pluginHandler adapts a plugin command to the Handler signature.
func pluginHandler(p Plugin, name string) Handler {
	return func(ctx context.Context, args []any, flags map[string]any) (any, error) {
		return p.Execute(ctx, name, args, flags)
	}
}

func pluginUsage(agentID string, spec CommandSpec) Usage {
	syntax := spec.Syntax
	if syntax == "" {
		syntax = "@" + agentID + ":" + spec.Name
	}
	description := spec.Description
	if description == "" {
		description = "No description"
	}
	return Usage{
		AgentID:     agentID,
		Command:     spec.Name,
		Description: description,
		Syntax:      syntax,
		Examples:    spec.Examples,
	}
}
