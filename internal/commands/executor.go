// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// =============================================================================
// GUIDES
// =============================================================================

// Guide holds remediation text an integration shows instead of a hard error.
// NotConfigured is returned when no plugin with AgentID is registered;
// AuthRequired when the plugin exists but is not initialized.
// Empty text disables the corresponding soft failure.
type Guide struct {
	AgentID       string
	NotConfigured string
	AuthRequired  string
}

// DefaultGuides returns the guides shipped with the dispatcher.
func DefaultGuides() []Guide {
	return []Guide{jiraGuide}
}

var jiraGuide = Guide{
	AgentID: "jira",
	NotConfigured: `**Jira is not configured.**

To use ` + "`@jira`" + ` commands:

1. Add a ` + "`jira.toml`" + ` manifest to your plugins directory.
2. Set ` + "`JIRA_URL`" + `, ` + "`JIRA_EMAIL`" + ` and ` + "`JIRA_API_TOKEN`" + ` in your environment.
3. Run ` + "`/help jira`" + ` to see the available commands.`,
	AuthRequired: `**Jira authentication required.**

The Jira plugin is installed but has no credentials yet.

1. Create an API token in your Atlassian account settings.
2. Export ` + "`JIRA_EMAIL`" + ` and ` + "`JIRA_API_TOKEN`" + `, then reload plugins.`,
}

// =============================================================================
// EXECUTION RECORDS
// =============================================================================

// Execution describes one finished Execute call.
type Execution struct {
	ID        string
	Command   *Command
	StartedAt time.Time
	Elapsed   time.Duration
	Err       error
}

// Recorder persists executions. Recording failures never affect the result.
type Recorder interface {
	Record(ctx context.Context, exec Execution) error
}

// =============================================================================
// EXECUTOR
// =============================================================================

// Executor routes parsed commands to plugins (@) or the registry (/).
// It performs no retries; handler and plugin errors are returned unchanged.
type Executor struct {
	registry *Registry
	plugins  PluginLookup
	logger   *zap.Logger
	guides   map[string]Guide
	recorder Recorder

	// per-agent limiter for the plugin path, nil when unlimited
	limit    rate.Limit
	burst    int
	limitMu  sync.Mutex
	limiters map[string]*rate.Limiter
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithGuides registers soft-failure guides, replacing any for the same agent.
func WithGuides(guides ...Guide) ExecutorOption {
	return func(e *Executor) {
		for _, g := range guides {
			e.guides[g.AgentID] = g
		}
	}
}

// WithRecorder persists every execution through rec.
func WithRecorder(rec Recorder) ExecutorOption {
	return func(e *Executor) { e.recorder = rec }
}

// WithRateLimit caps plugin invocations per agent. perSecond <= 0 disables it.
func WithRateLimit(perSecond float64, burst int) ExecutorOption {
	return func(e *Executor) {
		if perSecond <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		e.limit = rate.Limit(perSecond)
		e.burst = burst
		e.limiters = make(map[string]*rate.Limiter)
	}
}

// NewExecutor creates an executor. The default guides are always installed;
// WithGuides can override them.
func NewExecutor(registry *Registry, plugins PluginLookup, logger *zap.Logger, opts ...ExecutorOption) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		registry: registry,
		plugins:  plugins,
		logger:   logger,
		guides:   make(map[string]Guide),
	}
	WithGuides(DefaultGuides()...)(e)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs cmd and returns its result. Every call is timed and logged;
// failures are logged before being returned to the caller.
func (e *Executor) Execute(ctx context.Context, cmd *Command) (any, error) {
	if cmd == nil {
		return nil, dispatchError(ErrNotACommand, "", "")
	}

	id := uuid.NewString()
	start := time.Now()
	result, err := e.dispatch(ctx, cmd)
	elapsed := time.Since(start)

	fields := []zap.Field{
		zap.String("execution_id", id),
		zap.String("command", cmd.QualifiedName()),
		zap.Int64("elapsed_ms", elapsed.Milliseconds()),
	}
	if err != nil {
		e.logger.Error("COMMAND_FAILED", append(fields, zap.Error(err))...)
	} else {
		if resp, ok := result.(*Response); ok && resp.Error {
			fields = append(fields, zap.String("soft_failure", resp.Type))
		}
		e.logger.Info("COMMAND_COMPLETE", fields...)
	}

	if e.recorder != nil {
		rec := Execution{ID: id, Command: cmd, StartedAt: start, Elapsed: elapsed, Err: err}
		if recErr := e.recorder.Record(ctx, rec); recErr != nil {
			e.logger.Warn("HISTORY_RECORD_FAILED", zap.String("execution_id", id), zap.Error(recErr))
		}
	}

	return result, err
}

// ExecuteString splits raw into prefix, agent and command without tokenizing
// and executes it with the given args and flags.
func (e *Executor) ExecuteString(ctx context.Context, raw string, args []any, flags map[string]any) (any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, dispatchError(ErrNotACommand, "", "")
	}

	prefix := PrefixNone
	rest := trimmed
	switch trimmed[0] {
	case '@':
		prefix = PrefixAt
		rest = trimmed[1:]
	case '/':
		prefix = PrefixSlash
		rest = trimmed[1:]
	}

	agentID, name, found := strings.Cut(rest, ":")
	if !found {
		if prefix == PrefixAt {
			return nil, dispatchError(ErrNotACommand, "", "")
		}
		agentID, name = CoreAgent, rest
	}
	agentID = strings.TrimSpace(agentID)
	name = strings.TrimSpace(name)
	if agentID == "" || name == "" {
		return nil, dispatchError(ErrNotACommand, agentID, name)
	}

	if args == nil {
		args = []any{}
	}
	if flags == nil {
		flags = map[string]any{}
	}

	return e.Execute(ctx, &Command{
		Prefix:   prefix,
		Kind:     prefix,
		AgentID:  agentID,
		Name:     name,
		Args:     args,
		Flags:    flags,
		RawInput: trimmed,
	})
}

type rawArgsKey struct{}

func withRawArgs(ctx context.Context, cmd *Command) context.Context {
	if len(cmd.RawArgs) != len(cmd.Args) {
		return ctx
	}
	return context.WithValue(ctx, rawArgsKey{}, cmd.RawArgs)
}

// RawArgs returns the positional arguments of the command being executed
// exactly as they were typed. ok is false when the command was built
// without source text.
func RawArgs(ctx context.Context) (raw []string, ok bool) {
	raw, ok = ctx.Value(rawArgsKey{}).([]string)
	return raw, ok
}

// dispatch picks the route for cmd.
func (e *Executor) dispatch(ctx context.Context, cmd *Command) (any, error) {
	flags := cmd.Flags
	if flags == nil {
		flags = map[string]any{}
	}

	switch cmd.Prefix {
	case PrefixAt:
		return e.executePlugin(ctx, cmd, flags)
	case PrefixSlash:
		h, ok := e.registry.Handler(cmd.AgentID, cmd.Name)
		if !ok {
			return nil, dispatchError(ErrCommandNotFound, cmd.AgentID, cmd.Name)
		}
		return h(withRawArgs(ctx, cmd), cmd.Args, flags)
	default:
		return nil, dispatchError(ErrUnsupportedPrefix, cmd.AgentID, cmd.Name)
	}
}

// executePlugin runs the @-path state machine.
func (e *Executor) executePlugin(ctx context.Context, cmd *Command, flags map[string]any) (any, error) {
	var p Plugin
	found := false
	if e.plugins != nil {
		p, found = e.plugins.Plugin(cmd.AgentID)
	}

	if !found {
		if g, ok := e.guides[cmd.AgentID]; ok && g.NotConfigured != "" {
			return softFailure(ResponsePluginNotFound, g.NotConfigured), nil
		}
		return nil, dispatchError(ErrAgentNotFound, cmd.AgentID, "")
	}

	if !p.Enabled() {
		return nil, dispatchError(ErrPluginDisabled, cmd.AgentID, "")
	}

	if !p.Initialized() {
		if text := e.authGuide(p); text != "" {
			return softFailure(ResponseAuthRequired, text), nil
		}
	}

	if !e.allow(cmd.AgentID) {
		return nil, dispatchError(ErrRateLimited, cmd.AgentID, cmd.Name)
	}

	return p.Execute(ctx, cmd.Name, cmd.Args, flags)
}

// authGuide prefers the plugin's own guide over a registered one.
func (e *Executor) authGuide(p Plugin) string {
	if gp, ok := p.(GuideProvider); ok {
		if text := gp.Guide().AuthRequired; text != "" {
			return text
		}
	}
	return e.guides[p.ID()].AuthRequired
}

func (e *Executor) allow(agentID string) bool {
	if e.limiters == nil {
		return true
	}

	e.limitMu.Lock()
	limiter, ok := e.limiters[agentID]
	if !ok {
		limiter = rate.NewLimiter(e.limit, e.burst)
		e.limiters[agentID] = limiter
	}
	e.limitMu.Unlock()

	return limiter.Allow()
}

func softFailure(kind, content string) *Response {
	return &Response{Role: "assistant", Content: content, Error: true, Type: kind}
}
