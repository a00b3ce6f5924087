// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package commands turns chat input into dispatched commands.
//
// Input starting with "@" is routed to a plugin ("@git:status"); input
// starting with "/" is routed to the command registry ("/model gpt-4",
// which lives in the "core" namespace). Anything else is conversation.
//
// # Key Types
//
//   - Command: parsed input with agent id, name, args and flags
//   - Registry: agent id -> command -> handler, plus usage metadata
//   - Executor: routes a Command to a plugin or registry handler
//   - Completer: command-palette suggestions
//
// # Built-in Commands
//
//   - /help [agent]: agent commands grouped by agent
//   - //help: built-in slash commands
//   - /model [name]: show or switch the active model
//   - /models: list available models
//
// # Usage
//
//	cmd := commands.Parse(input)
//	if cmd == nil {
//	    // plain conversation
//	}
//	result, err := executor.Execute(ctx, cmd)
package commands
