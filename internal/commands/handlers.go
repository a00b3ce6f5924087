// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jeranaias/rigrun-dispatch/internal/util"
)

// errNoModelStore is returned by the model commands when no store is configured.
var errNoModelStore = errors.New("model configuration is not available")

// =============================================================================
// BUILT-IN COMMANDS
// =============================================================================

// seedBuiltins registers the core slash commands into t.
func (r *Registry) seedBuiltins(t *table) {
	builtins := []struct {
		usage   Usage
		handler Handler
	}{
		{
			usage: Usage{
				Command:     "help",
				Description: "Show agent commands grouped by agent",
				Syntax:      "/help [agent]",
				Examples:    []string{"/help", "/help git"},
			},
			handler: r.handleHelp,
		},
		{
			usage: Usage{
				Command:     "/help",
				Description: "Show built-in slash commands",
				Syntax:      "//help",
			},
			handler: r.handleSlashHelp,
		},
		{
			usage: Usage{
				Command:     "model",
				Description: "Show or switch the active model",
				Syntax:      "/model [name]",
				Examples:    []string{"/model", "/model gpt-4"},
			},
			handler: r.handleModel,
		},
		{
			usage: Usage{
				Command:     "models",
				Description: "List available models",
				Syntax:      "/models",
			},
			handler: r.handleModels,
		},
	}

	for _, b := range builtins {
		b.usage.AgentID = CoreAgent
		t.add(CoreAgent, b.usage.Command, b.handler)
		t.setUsage(b.usage)
	}
}

// =============================================================================
// HANDLER IMPLEMENTATIONS
// =============================================================================

// handleHelp lists @-style usages grouped by agent, optionally for one agent.
func (r *Registry) handleHelp(ctx context.Context, args []any, flags map[string]any) (any, error) {
	var filter string
	if len(args) > 0 {
		filter = formatValue(args[0])
	}

	groups := make(map[string][]Usage)
	var agents []string
	for _, u := range r.Usages() {
		if !u.IsAgentUsage() {
			continue
		}
		if filter != "" && u.AgentID != filter {
			continue
		}
		if _, seen := groups[u.AgentID]; !seen {
			agents = append(agents, u.AgentID)
		}
		groups[u.AgentID] = append(groups[u.AgentID], u)
	}

	if len(agents) == 0 {
		if filter != "" {
			return assistant(fmt.Sprintf("No commands registered for agent `%s`.", filter)), nil
		}
		return assistant("No agent commands are registered. Type `//help` for built-in commands."), nil
	}

	var b strings.Builder
	b.WriteString("## Agent commands\n")
	for _, agent := range agents {
		fmt.Fprintf(&b, "\n### @%s\n\n", agent)
		writeUsageTable(&b, groups[agent])
	}
	return assistant(b.String()), nil
}

// handleSlashHelp lists /-style usages.
func (r *Registry) handleSlashHelp(ctx context.Context, args []any, flags map[string]any) (any, error) {
	var slash []Usage
	for _, u := range r.Usages() {
		if !u.IsAgentUsage() {
			slash = append(slash, u)
		}
	}

	var b strings.Builder
	b.WriteString("## Slash commands\n\n")
	writeUsageTable(&b, slash)
	return assistant(b.String()), nil
}

// handleModel shows the active model, or switches to args[0].
func (r *Registry) handleModel(ctx context.Context, args []any, flags map[string]any) (any, error) {
	if r.models == nil {
		return nil, errNoModelStore
	}
	if len(args) == 0 {
		return assistant(fmt.Sprintf("Current model: `%s`", r.models.ActiveModel())), nil
	}

	// Coercion turns "1.10" into 1.1, so prefer the typed text
	model := formatValue(args[0])
	if raw, ok := RawArgs(ctx); ok && len(raw) > 0 {
		model = raw[0]
	}
	if err := r.models.SetActiveModel(model); err != nil {
		return nil, err
	}
	return assistant(fmt.Sprintf("Switched model to `%s`", model)), nil
}

// handleModels lists available models, marking the active one.
func (r *Registry) handleModels(ctx context.Context, args []any, flags map[string]any) (any, error) {
	if r.models == nil {
		return nil, errNoModelStore
	}

	active := r.models.ActiveModel()
	models := r.models.AvailableModels()
	if len(models) == 0 {
		return assistant("No models configured."), nil
	}

	var b strings.Builder
	b.WriteString("## Available models\n\n")
	for _, m := range models {
		marker := " "
		if m == active {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s %s\n", marker, m)
	}
	return assistant(b.String()), nil
}

// =============================================================================
// HELPERS
// =============================================================================

func assistant(content string) *Response {
	return &Response{Role: "assistant", Content: content}
}

// writeUsageTable renders usages as an aligned plain-text block.
func writeUsageTable(b *strings.Builder, usages []Usage) {
	width := 0
	for _, u := range usages {
		if w := util.StringWidth(u.Syntax); w > width {
			width = w
		}
	}

	b.WriteString("```\n")
	for _, u := range usages {
		fmt.Fprintf(b, "%s  %s\n", util.PadRight(u.Syntax, width), u.Description)
		for _, ex := range u.Examples {
			fmt.Fprintf(b, "%s    e.g. %s\n", util.PadRight("", width), ex)
		}
	}
	b.WriteString("```\n")
}

// formatValue renders a coerced value back to text.
func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}
