// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// =============================================================================
// COMPLETER
// =============================================================================

// Completion represents a completion suggestion.
type Completion struct {
	// Value is the full input line after accepting the suggestion
	Value string

	// Display is the short text shown in a palette
	Display string

	// Description shown alongside
	Description string

	// Score for ranking (higher = better match)
	Score int
}

// Completer produces command-palette suggestions from the registry.
type Completer struct {
	registry *Registry

	// ModelsFn returns model names for "/model <partial>"
	ModelsFn func() []string
}

// NewCompleter creates a new completer with the given registry.
func NewCompleter(registry *Registry) *Completer {
	return &Completer{registry: registry}
}

// Complete returns completions for the input up to cursorPos.
func (c *Completer) Complete(input string, cursorPos int) []Completion {
	if cursorPos >= 0 && cursorPos < len(input) {
		// A cursor inside a multi-byte rune belongs to the rune's start
		for cursorPos > 0 && !utf8.RuneStart(input[cursorPos]) {
			cursorPos--
		}
		input = input[:cursorPos]
	}
	input = strings.TrimLeftFunc(input, unicode.IsSpace)

	switch {
	case strings.HasPrefix(input, "@"):
		return c.completeAgentInput(input[1:])
	case strings.HasPrefix(input, "/"):
		return c.completeSlashInput(input[1:])
	default:
		return nil
	}
}

// completeAgentInput completes "@agent" and "@agent:command".
func (c *Completer) completeAgentInput(rest string) []Completion {
	if strings.ContainsFunc(rest, unicode.IsSpace) {
		return nil
	}

	agent, partial, hasColon := strings.Cut(rest, ":")
	if !hasColon {
		var out []Completion
		for _, id := range c.registry.Agents() {
			if id == CoreAgent || !hasPrefixFold(id, agent) {
				continue
			}
			out = append(out, Completion{
				Value:   "@" + id + ":",
				Display: "@" + id,
				Score:   calculateScore(id, agent),
			})
		}
		sortCompletions(out)
		return out
	}

	var out []Completion
	for _, u := range c.registry.AgentUsages(agent) {
		if !hasPrefixFold(u.Command, partial) {
			continue
		}
		out = append(out, Completion{
			Value:       "@" + agent + ":" + u.Command,
			Display:     u.Syntax,
			Description: u.Description,
			Score:       calculateScore(u.Command, partial),
		})
	}
	sortCompletions(out)
	return out
}

// completeSlashInput completes core command names and /model arguments.
func (c *Completer) completeSlashInput(rest string) []Completion {
	name, argText, hasArgs := strings.Cut(rest, " ")
	if !hasArgs {
		var out []Completion
		for _, u := range c.registry.AgentUsages(CoreAgent) {
			if !hasPrefixFold(u.Command, name) {
				continue
			}
			out = append(out, Completion{
				Value:       "/" + u.Command,
				Display:     u.Syntax,
				Description: u.Description,
				Score:       calculateScore(u.Command, name),
			})
		}
		sortCompletions(out)
		return out
	}

	if name != "model" || c.ModelsFn == nil {
		return nil
	}
	partial := strings.TrimLeftFunc(argText, unicode.IsSpace)
	if strings.ContainsFunc(partial, unicode.IsSpace) {
		return nil
	}

	var out []Completion
	for _, m := range c.ModelsFn() {
		if !hasPrefixFold(m, partial) {
			continue
		}
		out = append(out, Completion{
			Value:   "/model " + m,
			Display: m,
			Score:   calculateScore(m, partial),
		})
	}
	sortCompletions(out)
	return out
}

// =============================================================================
// SCORING
// =============================================================================

func hasPrefixFold(value, partial string) bool {
	return strings.HasPrefix(strings.ToLower(value), strings.ToLower(partial))
}

// calculateScore calculates a match score for completion ranking.
// Higher scores are better matches.
func calculateScore(value, partial string) int {
	value = strings.ToLower(value)
	partial = strings.ToLower(partial)

	score := 100

	// Exact match
	if value == partial {
		return score + 100
	}

	// Prefix match bonus, shorter completions first
	if strings.HasPrefix(value, partial) {
		score += 50
		score += 20 - len(value)
	}

	score -= len(value) / 2

	return score
}

func sortCompletions(completions []Completion) {
	sort.Slice(completions, func(i, j int) bool {
		if completions[i].Score != completions[j].Score {
			return completions[i].Score > completions[j].Score
		}
		return completions[i].Value < completions[j].Value
	})
}
