// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jeranaias/rigrun-dispatch/internal/commands"
	"github.com/jeranaias/rigrun-dispatch/internal/config"
	"github.com/jeranaias/rigrun-dispatch/internal/plugins"
	"github.com/jeranaias/rigrun-dispatch/internal/util"
)

// hostPlugins returns the in-process plugins every App carries.
func (a *App) hostPlugins() []commands.Plugin {
	hosts := []commands.Plugin{a.configPlugin()}
	if a.history != nil {
		hosts = append(hosts, a.historyPlugin())
	}
	return hosts
}

// configPlugin exposes read-only configuration lookups as @config commands.
func (a *App) configPlugin() *plugins.Static {
	return plugins.NewStatic("config",
		plugins.StaticCommand{
			CommandSpec: commands.CommandSpec{
				Name:        "get",
				Description: "Show a configuration value",
				Syntax:      "@config:get <key>",
				Examples:    []string{"@config:get plugins.dir"},
			},
			Handler: func(ctx context.Context, args []any, flags map[string]any) (any, error) {
				if len(args) == 0 {
					return nil, errors.New("usage: @config:get <key>")
				}
				key := fmt.Sprint(args[0])
				v, err := a.models.Get(key)
				if err != nil {
					return nil, err
				}
				return &commands.Response{Role: "assistant", Content: fmt.Sprintf("`%s` = `%v`", key, v)}, nil
			},
		},
		plugins.StaticCommand{
			CommandSpec: commands.CommandSpec{
				Name:        "keys",
				Description: "List configuration keys",
				Syntax:      "@config:keys",
			},
			Handler: func(ctx context.Context, args []any, flags map[string]any) (any, error) {
				var b strings.Builder
				b.WriteString("## Configuration keys\n\n")
				for _, k := range config.GetAllKeys() {
					fmt.Fprintf(&b, "- `%s`\n", k)
				}
				return &commands.Response{Role: "assistant", Content: b.String()}, nil
			},
		},
	)
}

// historyPlugin exposes the execution log as @history commands.
func (a *App) historyPlugin() *plugins.Static {
	return plugins.NewStatic("history",
		plugins.StaticCommand{
			CommandSpec: commands.CommandSpec{
				Name:        "recent",
				Description: "Show recently executed commands",
				Syntax:      "@history:recent [n]",
				Examples:    []string{"@history:recent", "@history:recent 50"},
			},
			Handler: func(ctx context.Context, args []any, flags map[string]any) (any, error) {
				limit := 10
				if len(args) > 0 {
					n, err := strconv.Atoi(fmt.Sprint(args[0]))
					if err != nil || n <= 0 {
						return nil, fmt.Errorf("invalid count %v", args[0])
					}
					limit = n
				}

				entries, err := a.history.Recent(ctx, limit)
				if err != nil {
					return nil, err
				}
				if len(entries) == 0 {
					return &commands.Response{Role: "assistant", Content: "No commands recorded yet."}, nil
				}

				var b strings.Builder
				b.WriteString("## Recent commands\n\n```\n")
				for _, e := range entries {
					status := "ok "
					if !e.Success {
						status = "err"
					}
					fmt.Fprintf(&b, "%s  %s  %6dms  %s\n",
						e.StartedAt.Format("2006-01-02 15:04:05"), status,
						e.Elapsed.Milliseconds(), util.TruncateWidth(e.Input, 60))
				}
				b.WriteString("```\n")
				return &commands.Response{Role: "assistant", Content: b.String()}, nil
			},
		},
	)
}
