// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"errors"
	"sync"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

type fakePlugin struct {
	id          string
	enabled     bool
	initialized bool
	commands    []CommandSpec
	err         error

	mu    sync.Mutex
	calls []fakeCall
}

type fakeCall struct {
	command string
	args    []any
	flags   map[string]any
}

func newFakePlugin(id string, names ...string) *fakePlugin {
	p := &fakePlugin{id: id, enabled: true, initialized: true}
	for _, n := range names {
		p.commands = append(p.commands, CommandSpec{Name: n, Description: n + " command"})
	}
	return p
}

func (p *fakePlugin) ID() string              { return p.id }
func (p *fakePlugin) Enabled() bool           { return p.enabled }
func (p *fakePlugin) Initialized() bool       { return p.initialized }
func (p *fakePlugin) Commands() []CommandSpec { return p.commands }

func (p *fakePlugin) Execute(ctx context.Context, command string, args []any, flags map[string]any) (any, error) {
	p.mu.Lock()
	p.calls = append(p.calls, fakeCall{command: command, args: args, flags: flags})
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return "ran " + p.id + ":" + command, nil
}

func (p *fakePlugin) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// guidedPlugin adds a GuideProvider to fakePlugin.
type guidedPlugin struct {
	*fakePlugin
	guide Guide
}

func (p *guidedPlugin) Guide() Guide { return p.guide }

// fakeSource serves a fixed plugin set, both for Refresh and for lookup.
type fakeSource struct {
	mu      sync.Mutex
	plugins []Plugin
	err     error
}

func newFakeSource(plugins ...Plugin) *fakeSource {
	return &fakeSource{plugins: plugins}
}

func (s *fakeSource) EnabledPlugins(ctx context.Context) ([]Plugin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []Plugin
	for _, p := range s.plugins {
		if p.Enabled() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeSource) Plugin(agentID string) (Plugin, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.plugins {
		if p.ID() == agentID {
			return p, true
		}
	}
	return nil, false
}

func (s *fakeSource) set(plugins ...Plugin) {
	s.mu.Lock()
	s.plugins = plugins
	s.mu.Unlock()
}

type fakeModels struct {
	active    string
	available []string
}

func (m *fakeModels) ActiveModel() string       { return m.active }
func (m *fakeModels) AvailableModels() []string { return m.available }

func (m *fakeModels) SetActiveModel(name string) error {
	if name == "" {
		return errors.New("empty model name")
	}
	m.active = name
	return nil
}

func okHandler(result any) Handler {
	return func(ctx context.Context, args []any, flags map[string]any) (any, error) {
		return result, nil
	}
}
