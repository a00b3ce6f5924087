// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/rigrun-dispatch/internal/commands"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// renderer prints command results. Markdown is rendered only when out is
// a terminal, so piped output stays byte-for-byte what the handler returned.
type renderer struct {
	out      io.Writer
	markdown *glamour.TermRenderer
}

func newRenderer(out io.Writer) *renderer {
	r := &renderer{out: out}
	if !isTerminal(out) {
		return r
	}
	md, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(terminalWidth(out)-2),
	)
	if err == nil {
		r.markdown = md
	}
	return r
}

func (r *renderer) renderMarkdown(content string) string {
	if r.markdown == nil {
		return content
	}
	rendered, err := r.markdown.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// Result prints one command result.
func (r *renderer) Result(result any) {
	if resp, ok := result.(*commands.Response); ok && resp.Error {
		fmt.Fprintln(r.out, WarningStyle.Render("["+resp.Type+"]"))
	}
	text := FormatResult(result)
	if text == "" {
		return
	}
	if _, ok := result.(*commands.Response); ok {
		text = r.renderMarkdown(text)
	}
	fmt.Fprint(r.out, text)
	if !strings.HasSuffix(text, "\n") {
		fmt.Fprintln(r.out)
	}
}

// Error prints a command error.
func (r *renderer) Error(err error) {
	fmt.Fprintf(r.out, "%s %v\n", ErrorStyle.Render("[Error]"), err)
}

// FormatResult renders a handler result as text. Responses yield their
// content, strings are returned as is, anything else is shown as JSON.
func FormatResult(result any) string {
	switch v := result.(type) {
	case nil:
		return ""
	case *commands.Response:
		return v.Content
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}

// =============================================================================
// SYNTAX HIGHLIGHTING
// =============================================================================

// highlightCode colors code for a 256-color terminal. The input is
// returned unchanged for unknown languages or when formatting fails.
func highlightCode(code, language string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		return code
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get("monokai")
	if style == nil {
		style = chromaStyles.Fallback
	}

	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}

	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return buf.String()
}
