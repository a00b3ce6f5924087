// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-dispatch/internal/app"
	"github.com/jeranaias/rigrun-dispatch/internal/commands"
	"github.com/jeranaias/rigrun-dispatch/internal/config"
)

// =============================================================================
// INPUT
// =============================================================================

// lineReader reads one line of REPL input. io.EOF ends the session.
type lineReader interface {
	Prompt(prompt string) (string, error)
	Close() error
}

// linerReader provides line editing, persistent history and tab completion
// on a terminal.
type linerReader struct {
	line        *liner.State
	historyFile string
}

func newLinerReader(complete func(string) []string) *linerReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	line.SetTabCompletionStyle(liner.TabPrints)
	line.SetCompleter(complete)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}
	r := &linerReader{
		line:        line,
		historyFile: filepath.Join(configDir, "repl_history"),
	}

	if f, err := os.Open(r.historyFile); err == nil {
		r.line.ReadHistory(f)
		f.Close()
	}
	return r
}

func (r *linerReader) Prompt(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if err != nil {
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", io.EOF
		}
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history with owner-only permissions and restores the terminal.
func (r *linerReader) Close() error {
	if err := os.MkdirAll(filepath.Dir(r.historyFile), 0700); err == nil {
		if f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			r.line.WriteHistory(f)
			f.Close()
		}
	}
	return r.line.Close()
}

// scanReader reads piped input without prompting.
type scanReader struct {
	scanner *bufio.Scanner
}

func newScanReader(in io.Reader) *scanReader {
	return &scanReader{scanner: bufio.NewScanner(in)}
}

func (r *scanReader) Prompt(string) (string, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.scanner.Text(), nil
}

func (r *scanReader) Close() error { return nil }

// =============================================================================
// REPL
// =============================================================================

func newReplCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive command prompt",
		Long: `Start an interactive command prompt.

Lines starting with @ or / are dispatched; Tab completes agents, commands
and model names. Type exit or press Ctrl+D to leave.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.startApp(cmd.Context(), g.cfg.Plugins.Watch)
			if err != nil {
				return err
			}
			defer a.Close()

			var in lineReader
			if isTerminal(cmd.InOrStdin()) {
				in = newLinerReader(completeFunc(a))
				fmt.Fprintln(cmd.OutOrStdout(), TitleStyle.Render("dispatch "+Version)+
					DimStyle.Render("  /help for agent commands, //help for built-ins"))
			} else {
				in = newScanReader(cmd.InOrStdin())
			}
			defer in.Close()

			return runREPL(cmd.Context(), a, in, cmd.OutOrStdout())
		},
	}
}

func completeFunc(a *app.App) func(string) []string {
	return func(line string) []string {
		var out []string
		for _, c := range a.Complete(line, len(line)) {
			out = append(out, c.Value)
		}
		return out
	}
}

// runREPL reads lines until EOF, exit, or ctx is cancelled.
func runREPL(ctx context.Context, a *app.App, in lineReader, out io.Writer) error {
	events, cancel := a.Subscribe(16)
	defer cancel()

	r := newRenderer(out)
	prompt := PromptStyle.Render("dispatch> ")

	for {
		if drainReloads(events) {
			fmt.Fprintln(out, DimStyle.Render("(commands reloaded)"))
		}

		input, err := in.Prompt(prompt)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			return nil
		}

		result, handled, err := a.Submit(ctx, input)
		switch {
		case !handled:
			fmt.Fprintln(out, DimStyle.Render("Not a command. Start with @agent:command or /command; /help lists them."))
		case err != nil:
			r.Error(err)
		default:
			r.Result(result)
		}
	}
}

// drainReloads empties events and reports whether the command set changed.
func drainReloads(events <-chan commands.Event) bool {
	changed := false
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return changed
			}
			if ev.Type == commands.EventCommandsChanged {
				changed = true
			}
		default:
			return changed
		}
	}
}
