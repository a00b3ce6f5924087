// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package plugins

import (
	"context"

	"github.com/jeranaias/rigrun-dispatch/internal/commands"
)

// StaticCommand is one command of an in-process plugin.
type StaticCommand struct {
	commands.CommandSpec
	Handler commands.Handler
}

// Static is an in-process plugin whose commands are Go functions.
// Host integrations (git, shell helpers) are registered this way.
type Static struct {
	id       string
	specs    []commands.CommandSpec
	handlers map[string]commands.Handler

	// Ready reports whether the plugin has what it needs to run.
	// Nil means always ready.
	Ready func() bool

	// Remediation, when non-empty, is shown instead of running a command
	// while Ready returns false.
	Remediation commands.Guide
}

// NewStatic creates an in-process plugin. Commands with an empty name or a
// nil handler are skipped; later duplicates are ignored.
func NewStatic(id string, cmds ...StaticCommand) *Static {
	s := &Static{
		id:       id,
		handlers: make(map[string]commands.Handler, len(cmds)),
	}
	for _, c := range cmds {
		if c.Name == "" || c.Handler == nil {
			continue
		}
		if _, dup := s.handlers[c.Name]; dup {
			continue
		}
		s.handlers[c.Name] = c.Handler
		s.specs = append(s.specs, c.CommandSpec)
	}
	return s
}

func (s *Static) ID() string { return s.id }

func (s *Static) Enabled() bool { return true }

func (s *Static) Initialized() bool {
	return s.Ready == nil || s.Ready()
}

func (s *Static) Commands() []commands.CommandSpec {
	return append([]commands.CommandSpec(nil), s.specs...)
}

func (s *Static) Guide() commands.Guide {
	g := s.Remediation
	g.AgentID = s.id
	return g
}

// Execute runs the named command's handler.
func (s *Static) Execute(ctx context.Context, command string, args []any, flags map[string]any) (any, error) {
	h, ok := s.handlers[command]
	if !ok {
		return nil, &commands.DispatchError{Kind: commands.ErrCommandNotFound, AgentID: s.id, Command: command}
	}
	return h(ctx, args, flags)
}
