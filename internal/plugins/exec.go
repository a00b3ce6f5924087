// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package plugins

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/rigrun-dispatch/internal/commands"
)

// DefaultTimeout bounds a manifest command that sets no timeout.
const DefaultTimeout = 60 * time.Second

// maxOutput caps captured stdout and stderr per stream.
const maxOutput = 1 << 20

// ExecPlugin runs manifest commands as external processes.
// Positional args are appended to the command's argv, then flags as
// "--name=value" in name order. Trimmed stdout is the result.
type ExecPlugin struct {
	manifest *Manifest
	path     string
	byName   map[string]CommandDescriptor

	// lookupEnv is os.LookupEnv outside tests
	lookupEnv func(string) (string, bool)
}

// NewExecPlugin wraps a parsed manifest. path is informational.
func NewExecPlugin(m *Manifest, path string) *ExecPlugin {
	p := &ExecPlugin{
		manifest:  m,
		path:      path,
		byName:    make(map[string]CommandDescriptor, len(m.Commands)),
		lookupEnv: os.LookupEnv,
	}
	for _, c := range m.Commands {
		p.byName[c.Name] = c
	}
	return p
}

func (p *ExecPlugin) ID() string { return p.manifest.ID }

func (p *ExecPlugin) Enabled() bool { return p.manifest.Enabled }

// Path returns the manifest file the plugin was loaded from.
func (p *ExecPlugin) Path() string { return p.path }

// Initialized reports whether every requires_env variable is set and non-empty.
func (p *ExecPlugin) Initialized() bool {
	return len(p.missingEnv()) == 0
}

func (p *ExecPlugin) Commands() []commands.CommandSpec {
	specs := make([]commands.CommandSpec, len(p.manifest.Commands))
	for i, c := range p.manifest.Commands {
		specs[i] = c.CommandSpec
	}
	return specs
}

func (p *ExecPlugin) Guide() commands.Guide { return p.manifest.Guide }

func (p *ExecPlugin) missingEnv() []string {
	var missing []string
	for _, name := range p.manifest.RequiresEnv {
		if v, ok := p.lookupEnv(name); !ok || v == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// Execute runs the named command.
func (p *ExecPlugin) Execute(ctx context.Context, command string, args []any, flags map[string]any) (any, error) {
	desc, ok := p.byName[command]
	if !ok {
		return nil, &commands.DispatchError{Kind: commands.ErrCommandNotFound, AgentID: p.ID(), Command: command}
	}
	if missing := p.missingEnv(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s:%s needs %s",
			commands.ErrAuthRequired, p.ID(), command, strings.Join(missing, ", "))
	}

	timeout := DefaultTimeout
	if p.manifest.Timeout > 0 {
		timeout = time.Duration(p.manifest.Timeout) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	argv := BuildArgv(desc.Argv, args, flags)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = p.manifest.WorkDir
	cmd.Env = p.environ()

	stdout := &cappedBuffer{limit: maxOutput}
	stderr := &cappedBuffer{limit: maxOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%s:%s timed out after %s", p.ID(), command, timeout)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s:%s failed: %w: %s", p.ID(), command, err, msg)
		}
		return nil, fmt.Errorf("%s:%s failed: %w", p.ID(), command, err)
	}

	return strings.TrimRight(stdout.String(), "\r\n"), nil
}

func (p *ExecPlugin) environ() []string {
	env := os.Environ()
	keys := make([]string, 0, len(p.manifest.Env))
	for k := range p.manifest.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+os.ExpandEnv(p.manifest.Env[k]))
	}
	return env
}

// =============================================================================
// ARGV RENDERING
// =============================================================================

// BuildArgv appends positional args and flags to base.
// Boolean true flags render as "--name", everything else as "--name=value".
func BuildArgv(base []string, args []any, flags map[string]any) []string {
	argv := append([]string(nil), base...)
	for _, a := range args {
		argv = append(argv, renderValue(a))
	}

	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if b, ok := flags[name].(bool); ok && b {
			argv = append(argv, "--"+name)
			continue
		}
		argv = append(argv, "--"+name+"="+renderValue(flags[name]))
	}
	return argv
}

func renderValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}

// cappedBuffer keeps the first limit bytes written and drops the rest.
type cappedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string { return b.buf.String() }
