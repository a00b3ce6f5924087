// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"strings"
	"unicode"
)

// Tokenize splits a command line into tokens, respecting quotes and escapes.
//
// Both single and double quotes group whitespace; a quote only closes the
// kind that opened it. A backslash escapes the next character everywhere.
// An unterminated quote runs to the end of the input without error.
func Tokenize(input string) []string {
	var tokens []string
	var current strings.Builder
	var quote rune
	escaped := false

	for _, char := range input {
		switch {
		case escaped:
			current.WriteRune(char)
			escaped = false

		case char == '\\':
			escaped = true

		case quote != 0:
			if char == quote {
				quote = 0
			} else {
				current.WriteRune(char)
			}

		case char == '"' || char == '\'':
			quote = char

		case unicode.IsSpace(char):
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}

		default:
			current.WriteRune(char)
		}
	}

	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}

	return tokens
}
