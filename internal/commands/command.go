// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"strings"
)

// =============================================================================
// PREFIX
// =============================================================================

// Prefix is the routing discriminator taken from the first character of the input.
type Prefix int

const (
	// PrefixNone marks input that is not routed anywhere.
	PrefixNone Prefix = iota
	// PrefixAt routes to a plugin ("@git:status").
	PrefixAt
	// PrefixSlash routes to the command registry ("/model gpt-4").
	PrefixSlash
)

// Kind mirrors Prefix as a semantic tag so callers never re-inspect characters.
type Kind = Prefix

// String returns the prefix character ("@", "/") or "" for PrefixNone.
func (p Prefix) String() string {
	switch p {
	case PrefixAt:
		return "@"
	case PrefixSlash:
		return "/"
	default:
		return ""
	}
}

// CoreAgent is the namespace used by slash commands without an explicit agent.
const CoreAgent = "core"

// =============================================================================
// COMMAND
// =============================================================================

// Command is a parsed, routable unit of user input.
type Command struct {
	// Prefix is derived from the first character of the input
	Prefix Prefix

	// Kind mirrors Prefix
	Kind Kind

	// AgentID is the namespace ("core" or a plugin id)
	AgentID string

	// Name is the command name within the namespace
	Name string

	// Args are the coerced positional arguments
	Args []any

	// Flags maps flag names to coerced values (true for bare flags)
	Flags map[string]any

	// RawArgs holds the positional tokens as typed, aligned with Args
	RawArgs []string

	// RawInput is the trimmed source string
	RawInput string
}

// QualifiedName returns prefix+agent+":"+name, e.g. "@git:status".
func (c *Command) QualifiedName() string {
	return c.Prefix.String() + c.AgentID + ":" + c.Name
}

// =============================================================================
// HANDLERS AND USAGE
// =============================================================================

// Handler performs a command's action.
type Handler func(ctx context.Context, args []any, flags map[string]any) (any, error)

// Usage is help metadata for a registered command.
type Usage struct {
	AgentID     string   `json:"agent_id"`
	Command     string   `json:"command"`
	Description string   `json:"description"`
	Syntax      string   `json:"syntax"`
	Examples    []string `json:"examples,omitempty"`
}

// IsAgentUsage reports whether the usage documents an @-style command.
func (u Usage) IsAgentUsage() bool {
	return strings.HasPrefix(u.Syntax, "@")
}

// Response is the assistant-shaped result handed back to the chat UI.
// Soft failures use it with Error set so the UI renders them inline.
type Response struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Error   bool   `json:"error,omitempty"`
	Type    string `json:"type,omitempty"`
}

// Soft failure response types.
const (
	ResponsePluginNotFound = "plugin-not-found"
	ResponseAuthRequired   = "auth-required"
)

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// CommandSpec is a command declared by a plugin.
type CommandSpec struct {
	Name        string
	Description string
	Syntax      string
	Examples    []string
}

// Plugin is an externally provided agent reachable through @-commands.
type Plugin interface {
	ID() string
	Enabled() bool
	Initialized() bool
	Commands() []CommandSpec
	Execute(ctx context.Context, command string, args []any, flags map[string]any) (any, error)
}

// PluginSource enumerates enabled plugins for Registry.Refresh.
type PluginSource interface {
	EnabledPlugins(ctx context.Context) ([]Plugin, error)
}

// PluginLookup resolves a plugin by agent id for the executor's @-path.
type PluginLookup interface {
	Plugin(agentID string) (Plugin, bool)
}

// GuideProvider is implemented by plugins that supply their own
// remediation text for the auth-required soft failure.
type GuideProvider interface {
	Guide() Guide
}

// ModelStore is the model-configuration collaborator used by /model and /models.
type ModelStore interface {
	ActiveModel() string
	SetActiveModel(model string) error
	AvailableModels() []string
}
