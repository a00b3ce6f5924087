// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-dispatch/internal/app"
	"github.com/jeranaias/rigrun-dispatch/internal/commands"
	"github.com/jeranaias/rigrun-dispatch/internal/config"
	"github.com/jeranaias/rigrun-dispatch/internal/logging"
	"github.com/jeranaias/rigrun-dispatch/internal/plugins"
	"github.com/jeranaias/rigrun-dispatch/internal/util"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// =============================================================================
// ROOT COMMAND
// =============================================================================

// globals holds state shared by every subcommand. It is filled in by the
// root PersistentPreRunE.
type globals struct {
	configPath string
	verbose    bool

	cfg     *config.Config
	cfgPath string
	logger  *zap.Logger
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context) int {
	root := NewRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ErrorStyle.Render("[Error]"), err)
		return 1
	}
	return 0
}

// NewRootCommand builds the dispatch command tree.
func NewRootCommand() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:           "dispatch",
		Short:         "Route @agent:command and /command input to plugins and built-ins",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if g.logger != nil {
				_ = g.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "config file (default ~/.dispatch/config.toml)")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newRunCommand(g),
		newReplCommand(g),
		newCommandsCommand(g),
		newPluginsCommand(g),
		newHistoryCommand(g),
		newConfigCommand(g),
		newVersionCommand(),
	)
	return root
}

// load reads the configuration and builds the logger.
func (g *globals) load() error {
	if g.configPath != "" {
		g.cfgPath = g.configPath
		cfg, err := config.LoadFromPath(g.configPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			g.cfg = config.Default()
		case err != nil:
			return err
		default:
			g.cfg = cfg
		}
	} else {
		cfg, path, err := config.Load()
		if err != nil {
			return err
		}
		g.cfg = cfg
		g.cfgPath = path
		if g.cfgPath == "" {
			if g.cfgPath, err = config.ConfigPathTOML(); err != nil {
				return err
			}
		}
	}

	logger, err := logging.New(g.cfg.Logging, g.verbose)
	if err != nil {
		return err
	}
	g.logger = logger
	return nil
}

// startApp builds and starts the dispatcher. One-shot commands never watch
// the plugin directory.
func (g *globals) startApp(ctx context.Context, watch bool) (*app.App, error) {
	a, err := app.New(g.cfg, g.logger,
		app.WithConfigPath(g.cfgPath),
		app.WithWatch(watch))
	if err != nil {
		return nil, err
	}
	if err := a.Start(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// =============================================================================
// RUN
// =============================================================================

func newRunCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "run <input...>",
		Short: "Execute one command line",
		Example: `  dispatch run /models
  dispatch run '@git:commit -m "fix typo" --amend'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := strings.Join(args, " ")

			a, err := g.startApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			result, handled, err := a.Submit(cmd.Context(), input)
			if !handled {
				return fmt.Errorf("%q is not a command; start with @agent:command or /command", input)
			}
			if err != nil {
				return err
			}
			newRenderer(cmd.OutOrStdout()).Result(result)
			return nil
		},
	}
}

// =============================================================================
// COMMANDS
// =============================================================================

func newCommandsCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "commands [agent]",
		Short: "List registered commands",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.startApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			var usages []commands.Usage
			if len(args) == 1 {
				usages = a.AgentUsages(args[0])
				if len(usages) == 0 {
					return fmt.Errorf("no commands registered for agent %q", args[0])
				}
			} else {
				usages = a.Usages()
			}

			writeUsages(cmd.OutOrStdout(), usages)
			return nil
		},
	}
}

func writeUsages(out io.Writer, usages []commands.Usage) {
	width := 0
	for _, u := range usages {
		if w := util.StringWidth(u.Syntax); w > width {
			width = w
		}
	}

	fmt.Fprintln(out, TitleStyle.Render("Commands"))
	for _, u := range usages {
		fmt.Fprintf(out, "  %s  %s\n", util.PadRight(u.Syntax, width), DimStyle.Render(u.Description))
	}
}

// =============================================================================
// PLUGINS
// =============================================================================

func newPluginsCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "List loaded plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.startApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, TitleStyle.Render("Plugins"))
			for _, p := range a.Plugins().All() {
				status := "enabled"
				switch {
				case !p.Enabled():
					status = "disabled"
				case !p.Initialized():
					status = "auth"
				}
				fmt.Fprintf(out, "  %s %-16s %2d commands", RenderStatus(status), p.ID(), len(p.Commands()))
				if ep, ok := p.(*plugins.ExecPlugin); ok {
					fmt.Fprintf(out, "  %s", DimStyle.Render(ep.Path()))
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

// =============================================================================
// HISTORY
// =============================================================================

func newHistoryCommand(g *globals) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently executed commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !g.cfg.History.Enabled {
				return errors.New("history is disabled (history.enabled = false)")
			}

			a, err := app.New(g.cfg, g.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.History().Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, DimStyle.Render("No commands recorded yet."))
				return nil
			}
			for _, e := range entries {
				status := "ok"
				if !e.Success {
					status = "fail"
				}
				fmt.Fprintf(out, "%s %s %6dms  %s\n",
					e.StartedAt.Format("2006-01-02 15:04:05"),
					RenderStatus(status),
					e.Elapsed.Milliseconds(),
					e.Input)
				if e.Error != "" {
					fmt.Fprintf(out, "    %s\n", ErrorStyle.Render(e.Error))
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	return cmd
}

// =============================================================================
// CONFIG
// =============================================================================

func newConfigCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change configuration",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				var buf bytes.Buffer
				if err := toml.NewEncoder(&buf).Encode(g.cfg); err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				text := buf.String()
				if isTerminal(out) && ColorsEnabled() {
					text = highlightCode(text, "toml")
				}
				_, err := io.WriteString(out, text)
				return err
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the configuration file path",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), g.cfgPath)
			},
		},
		&cobra.Command{
			Use:   "keys",
			Short: "List configuration keys",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				for _, k := range config.GetAllKeys() {
					fmt.Fprintln(cmd.OutOrStdout(), k)
				}
			},
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print one configuration value",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := g.cfg.Get(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Change and save one configuration value",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := g.cfg.Set(args[0], args[1]); err != nil {
					return err
				}
				if err := g.cfg.Validate(); err != nil {
					return err
				}
				if err := config.SaveToPath(g.cfg, g.cfgPath); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s = %v\n", RenderStatus("ok"), args[0], args[1])
				return nil
			},
		},
	)
	return cmd
}

// =============================================================================
// VERSION
// =============================================================================

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dispatch %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
		},
	}
}
