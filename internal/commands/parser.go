// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// =============================================================================
// PARSER
// =============================================================================

// Parse turns user input into a routable Command.
//
// It returns nil for anything that is not a command: plain text, "@" text
// without a colon ("@explain this"), and malformed namespaces. Parse never
// fails; ambiguous input is treated as conversation.
func Parse(input string) *Command {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil
	}

	var prefix Prefix
	var content string

	switch {
	case strings.HasPrefix(trimmed, "@"):
		// The colon is the only signal that "@..." is a command at all
		if !strings.Contains(trimmed[1:], ":") {
			return nil
		}
		prefix = PrefixAt
		content = trimmed[1:]
	case strings.HasPrefix(trimmed, "/"):
		prefix = PrefixSlash
		content = trimmed[1:]
	default:
		return nil
	}

	tokens := Tokenize(content)
	if len(tokens) == 0 {
		return nil
	}

	agentID, name, ok := splitNamespace(tokens[0], prefix)
	if !ok {
		return nil
	}

	args, raw, flags := parseArguments(tokens[1:])

	return &Command{
		Prefix:   prefix,
		Kind:     prefix,
		AgentID:  agentID,
		Name:     name,
		Args:     args,
		RawArgs:  raw,
		Flags:    flags,
		RawInput: trimmed,
	}
}

// IsCommand reports whether the input would parse as a command.
func IsCommand(input string) bool {
	return Parse(input) != nil
}

// splitNamespace extracts agent id and command name from the first token.
func splitNamespace(token string, prefix Prefix) (agentID, name string, ok bool) {
	parts := strings.Split(token, ":")
	if len(parts) > 1 {
		agentID = strings.TrimSpace(parts[0])
		name = strings.TrimSpace(strings.Join(parts[1:], ":"))
		if agentID == "" || name == "" {
			return "", "", false
		}
		return norm.NFC.String(agentID), norm.NFC.String(name), true
	}

	// "@x: free text" carries a colon, but not in the namespace token
	if prefix == PrefixAt {
		return "", "", false
	}
	return CoreAgent, norm.NFC.String(token), true
}

// =============================================================================
// ARGUMENT PARSING
// =============================================================================

// parseArguments splits the remaining tokens into positional args and flags.
// raw keeps each positional token uncoerced.
func parseArguments(tokens []string) (args []any, raw []string, flags map[string]any) {
	args = make([]any, 0, len(tokens))
	raw = make([]string, 0, len(tokens))
	flags = make(map[string]any)

	for i := 0; i < len(tokens); i++ {
		token := tokens[i]

		switch {
		case strings.HasPrefix(token, "--"):
			// A bare "--" is a flag with an empty name, not an end-of-flags marker
			name, value, hasValue := strings.Cut(token[2:], "=")
			if hasValue {
				flags[name] = Coerce(value)
			} else {
				flags[name] = true
			}

		case isShortFlag(token):
			name := token[1:]
			if i+1 < len(tokens) && !strings.HasPrefix(tokens[i+1], "-") {
				flags[name] = Coerce(tokens[i+1])
				i++
			} else {
				flags[name] = true
			}

		default:
			args = append(args, Coerce(token))
			raw = append(raw, token)
		}
	}

	return args, raw, flags
}

// isShortFlag matches the "-x" form: a dash and exactly one character.
func isShortFlag(token string) bool {
	if !strings.HasPrefix(token, "-") || strings.HasPrefix(token, "--") {
		return false
	}
	return len([]rune(token)) == 2
}
