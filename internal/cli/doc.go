// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the dispatch command line.
//
// # Commands
//
//   - run: execute one "@agent:cmd" or "/cmd" line and print the result
//   - repl: interactive prompt with history and tab completion
//   - commands: list registered command usages
//   - plugins: list loaded plugins
//   - history: show recently executed commands
//   - config: show, read and update configuration values
//   - version: print build information
//
// Output is rendered as markdown on a terminal and printed verbatim when
// piped.
package cli
