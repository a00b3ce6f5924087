// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the dispatcher packages.
//
// # Key Functions
//
// String Utilities:
//   - StringWidth, PadRight: terminal-column aware alignment
//   - TruncateWidth: width-safe truncation with ellipsis
//   - SingleLine: collapse whitespace for log and history columns
//
// File Operations:
//   - AtomicWriteFile: Crash-safe file writing with fsync
//
// # Usage
//
//	// Align a help table
//	line := util.PadRight(syntax, width) + "  " + description
//
//	// Write config atomically to prevent data loss
//	err := util.AtomicWriteFile(path, data, 0644)
package util
