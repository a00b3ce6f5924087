// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"errors"
	"fmt"
)

// =============================================================================
// ERROR KINDS
// =============================================================================

// Error kinds returned by the executor. Match them with errors.Is.
var (
	ErrAgentNotFound     = errors.New("plugin not found")
	ErrPluginDisabled    = errors.New("plugin disabled")
	ErrAuthRequired      = errors.New("authentication required")
	ErrCommandNotFound   = errors.New("command not found")
	ErrUnsupportedPrefix = errors.New("unsupported command prefix")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrNotACommand       = errors.New("not a command")
)

// DispatchError carries the kind of a dispatch failure and the command it hit.
// Handler and plugin errors are never wrapped in it.
type DispatchError struct {
	Kind    error
	AgentID string
	Command string
}

func (e *DispatchError) Error() string {
	switch {
	case e.AgentID != "" && e.Command != "":
		return fmt.Sprintf("%v: %s:%s", e.Kind, e.AgentID, e.Command)
	case e.AgentID != "":
		return fmt.Sprintf("%v: %s", e.Kind, e.AgentID)
	default:
		return e.Kind.Error()
	}
}

func (e *DispatchError) Unwrap() error {
	return e.Kind
}

func dispatchError(kind error, agentID, command string) error {
	return &DispatchError{Kind: kind, AgentID: agentID, Command: command}
}
