// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package plugins provides the plugin set behind "@agent:command" input.
//
// Plugins come from two places: Static plugins registered by the host in
// Go, and *.toml manifests in the plugins directory whose commands run
// external programs. A Watcher keeps manifest plugins in sync with the
// directory and the Registry reports every change to OnChange listeners,
// which the app uses to refresh the command registry.
package plugins
