// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package app wires the dispatcher together and exposes the surface a chat
// UI talks to: parse input, execute commands, list usages, watch for
// command set changes and complete partial input.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-dispatch/internal/commands"
	"github.com/jeranaias/rigrun-dispatch/internal/config"
	"github.com/jeranaias/rigrun-dispatch/internal/history"
	"github.com/jeranaias/rigrun-dispatch/internal/plugins"
)

// ErrAlreadyStarted is returned by a second Start call.
var ErrAlreadyStarted = errors.New("app already started")

// Option configures New.
type Option func(*options)

type options struct {
	configPath string
	watch      *bool
	plugins    []commands.Plugin
	guides     []commands.Guide
}

// WithConfigPath persists /model changes to path.
func WithConfigPath(path string) Option {
	return func(o *options) { o.configPath = path }
}

// WithWatch overrides plugins.watch without touching the configuration.
func WithWatch(enabled bool) Option {
	return func(o *options) { o.watch = &enabled }
}

// WithPlugins registers host plugins in addition to the manifest plugins.
func WithPlugins(ps ...commands.Plugin) Option {
	return func(o *options) { o.plugins = append(o.plugins, ps...) }
}

// WithGuides adds or overrides soft-failure guides.
func WithGuides(gs ...commands.Guide) Option {
	return func(o *options) { o.guides = append(o.guides, gs...) }
}

// App is the wired dispatcher.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	plugins   *plugins.Registry
	registry  *commands.Registry
	executor  *commands.Executor
	completer *commands.Completer
	models    *config.ModelStore
	watcher   *plugins.Watcher
	history   *history.Store

	ctx       context.Context
	cancel    context.CancelFunc
	startOnce sync.Once
	watch     bool
	watching  bool
}

// New builds an App from cfg. Nothing is loaded or watched until Start.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		watch:  cfg.Plugins.Watch,
	}
	if o.watch != nil {
		a.watch = *o.watch
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	a.plugins = plugins.NewRegistry(logger.Named("plugins"), cfg.Plugins.Disabled...)
	a.models = config.NewModelStore(cfg, o.configPath)
	a.registry = commands.NewRegistry(logger.Named("commands"),
		commands.WithPluginSource(a.plugins),
		commands.WithModelStore(a.models))

	execOpts := []commands.ExecutorOption{
		commands.WithRateLimit(cfg.Plugins.RateLimit, cfg.Plugins.RateBurst),
		commands.WithGuides(o.guides...),
	}
	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		a.history = store
		execOpts = append(execOpts, commands.WithRecorder(store))
	}
	a.executor = commands.NewExecutor(a.registry, a.plugins, logger.Named("executor"), execOpts...)

	a.completer = commands.NewCompleter(a.registry)
	a.completer.ModelsFn = a.models.AvailableModels

	hosts := append(a.hostPlugins(), o.plugins...)
	for _, p := range hosts {
		if err := a.plugins.Register(p); err != nil {
			a.closeHistory()
			return nil, fmt.Errorf("register plugin %s: %w", p.ID(), err)
		}
	}

	a.watcher = plugins.NewWatcher(cfg.Plugins.Dir, a.plugins, logger.Named("watcher"),
		time.Duration(cfg.Plugins.DebounceMs)*time.Millisecond)

	return a, nil
}

// Start loads manifest plugins, builds the command tables and, when
// configured, starts watching the plugin directory. Plugin changes after
// Start trigger a registry refresh.
func (a *App) Start(ctx context.Context) error {
	err := ErrAlreadyStarted
	a.startOnce.Do(func() {
		err = a.start(ctx)
	})
	return err
}

func (a *App) start(ctx context.Context) error {
	a.pruneHistory(ctx)

	loaded := a.watcher.Sync()
	a.logger.Info("PLUGINS_SYNCED", zap.Int("manifests", loaded), zap.String("dir", a.cfg.Plugins.Dir))

	if _, err := a.registry.Refresh(ctx); err != nil {
		return err
	}

	a.plugins.OnChange(func(ev plugins.ChangeEvent) {
		if _, err := a.registry.Refresh(a.ctx); err != nil {
			a.logger.Warn("REFRESH_AFTER_CHANGE_FAILED",
				zap.String("plugin", ev.PluginID),
				zap.String("change", string(ev.Type)),
				zap.Error(err))
		}
	})

	if a.watch {
		if err := a.watcher.Watch(); err != nil {
			return fmt.Errorf("watch plugins: %w", err)
		}
		a.watching = true
	}
	return nil
}

// Close stops watching and closes the history database.
func (a *App) Close() error {
	a.cancel()
	var errs []error
	if a.watching {
		errs = append(errs, a.watcher.Close())
	}
	errs = append(errs, a.closeHistory())
	return errors.Join(errs...)
}

func (a *App) closeHistory() error {
	if a.history == nil {
		return nil
	}
	return a.history.Close()
}

func (a *App) pruneHistory(ctx context.Context) {
	if a.history == nil || a.cfg.History.RetentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -a.cfg.History.RetentionDays)
	n, err := a.history.Prune(ctx, cutoff)
	if err != nil {
		a.logger.Warn("HISTORY_PRUNE_FAILED", zap.Error(err))
		return
	}
	if n > 0 {
		a.logger.Info("HISTORY_PRUNED", zap.Int64("removed", n))
	}
}

// =============================================================================
// UI SURFACE
// =============================================================================

// Parse returns the command in input, or nil for conversation.
func (a *App) Parse(input string) *commands.Command {
	return commands.Parse(input)
}

// Execute runs a parsed command.
func (a *App) Execute(ctx context.Context, cmd *commands.Command) (any, error) {
	return a.executor.Execute(ctx, cmd)
}

// ExecuteString runs "@agent:cmd" or "/cmd" with pre-parsed args and flags.
func (a *App) ExecuteString(ctx context.Context, raw string, args []any, flags map[string]any) (any, error) {
	return a.executor.ExecuteString(ctx, raw, args, flags)
}

// Submit parses input and executes it when it is a command. The boolean
// is false for plain conversation.
func (a *App) Submit(ctx context.Context, input string) (any, bool, error) {
	cmd := commands.Parse(input)
	if cmd == nil {
		return nil, false, nil
	}
	result, err := a.executor.Execute(ctx, cmd)
	return result, true, err
}

// Register adds a handler directly. It is dropped by the next refresh
// unless it belongs to a registered plugin.
func (a *App) Register(agentID, name string, h commands.Handler) bool {
	return a.registry.Register(agentID, name, h)
}

// RegisterUsage adds or replaces help metadata.
func (a *App) RegisterUsage(u commands.Usage) bool {
	return a.registry.RegisterUsage(u)
}

// Usages returns all usage entries.
func (a *App) Usages() []commands.Usage {
	return a.registry.Usages()
}

// AgentUsages returns the usage entries of one agent.
func (a *App) AgentUsages(agentID string) []commands.Usage {
	return a.registry.AgentUsages(agentID)
}

// Subscribe streams registry events until cancel is called.
func (a *App) Subscribe(buffer int) (<-chan commands.Event, func()) {
	return a.registry.Subscribe(buffer)
}

// Complete returns palette suggestions for input up to cursor.
func (a *App) Complete(input string, cursor int) []commands.Completion {
	return a.completer.Complete(input, cursor)
}

// Refresh rebuilds the command tables from the current plugins.
func (a *App) Refresh(ctx context.Context) (commands.RefreshResult, error) {
	return a.registry.Refresh(ctx)
}

// Plugins returns the plugin registry.
func (a *App) Plugins() *plugins.Registry {
	return a.plugins
}

// History returns the execution log, nil when disabled.
func (a *App) History() *history.Store {
	return a.history
}
