// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package plugins

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// =============================================================================
// MANIFEST WATCHER
// =============================================================================

// Watcher keeps the registry in sync with the manifests in a directory.
// File events are debounced per path; a burst of writes to one manifest
// produces a single reload.
type Watcher struct {
	dir      string
	registry *Registry
	logger   *zap.Logger
	debounce time.Duration

	watcher *fsnotify.Watcher
	mu      sync.Mutex
	pending map[string]time.Time // manifest path -> last event time
	owned   map[string]string    // manifest path -> plugin id
	waiting map[string]string    // manifest path -> id claimed by another path
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewWatcher creates a watcher for dir. Call Sync to load the current
// manifests and Watch to follow changes.
func NewWatcher(dir string, registry *Registry, logger *zap.Logger, debounce time.Duration) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		dir:      dir,
		registry: registry,
		logger:   logger,
		debounce: debounce,
		pending:  make(map[string]time.Time),
		owned:    make(map[string]string),
		waiting:  make(map[string]string),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Sync loads every manifest in the directory into the registry and returns
// the number loaded. Broken manifests are logged and skipped.
func (w *Watcher) Sync() int {
	loaded, errs := LoadDir(w.dir)
	for _, err := range errs {
		w.logger.Warn("PLUGIN_LOAD_FAILED", zap.String("dir", w.dir), zap.Error(err))
	}

	count := 0
	for _, p := range loaded {
		if w.install(p.Path(), p) {
			count++
		}
	}
	return count
}

// Watch starts following the directory, creating it if needed.
func (w *Watcher) Watch() error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("failed to create plugin directory: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(w.dir); err != nil {
		fw.Close()
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.watcher = fw

	w.wg.Add(2)
	go w.processEvents()
	go w.processPending()

	w.logger.Info("PLUGIN_WATCH_STARTED", zap.String("dir", w.dir))
	return nil
}

// Close stops watching and waits for the background goroutines.
func (w *Watcher) Close() error {
	w.cancel()
	var err error
	if w.watcher != nil {
		err = w.watcher.Close()
	}
	w.wg.Wait()
	return err
}

// processEvents records manifest events for debounced handling.
func (w *Watcher) processEvents() {
	defer w.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("PLUGIN_WATCH_PANIC", zap.Any("panic", r))
		}
	}()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isManifest(filepath.Base(event.Name)) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.mu.Lock()
				w.pending[event.Name] = time.Now()
				w.mu.Unlock()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("PLUGIN_WATCH_ERROR", zap.Error(err))
		}
	}
}

// processPending reloads manifests whose last event is older than the debounce.
func (w *Watcher) processPending() {
	defer w.wg.Done()

	tick := w.debounce / 2
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case <-ticker.C:
			now := time.Now()

			w.mu.Lock()
			var ready []string
			for path, at := range w.pending {
				if now.Sub(at) >= w.debounce {
					ready = append(ready, path)
					delete(w.pending, path)
				}
			}
			w.mu.Unlock()

			for _, path := range ready {
				w.reload(path)
			}
		}
	}
}

// reload applies the current state of one manifest path.
func (w *Watcher) reload(path string) {
	if _, err := os.Stat(path); err != nil {
		w.remove(path)
		return
	}

	p, err := LoadManifest(path)
	if err != nil {
		w.logger.Warn("PLUGIN_LOAD_FAILED", zap.String("path", path), zap.Error(err))
		return
	}
	w.install(path, p)
}

// install puts p into the registry on behalf of path. A manifest never
// replaces a plugin that some other source or another manifest registered;
// such a path waits until the id is released.
func (w *Watcher) install(path string, p *ExecPlugin) bool {
	id := p.ID()

	w.mu.Lock()
	previous, hadPrevious := w.owned[path]
	owner, claimed := w.ownerLocked(id)
	w.mu.Unlock()

	if claimed && owner != path {
		w.release(path, previous, hadPrevious && previous != id)
		w.conflict(path, id, owner)
		return false
	}
	if existing, ok := w.registry.Plugin(id); ok && !claimed {
		if _, fromManifest := unwrap(existing).(*ExecPlugin); !fromManifest {
			w.release(path, previous, hadPrevious && previous != id)
			w.conflict(path, id, "")
			return false
		}
	}

	if err := w.registry.Put(p); err != nil {
		w.logger.Warn("PLUGIN_LOAD_FAILED", zap.String("path", path), zap.Error(err))
		return false
	}

	w.mu.Lock()
	w.owned[path] = id
	delete(w.waiting, path)
	w.mu.Unlock()

	if hadPrevious && previous != id {
		w.registry.Unregister(previous)
		w.promote(previous)
	}
	return true
}

// release unregisters the id path used to declare when the file now
// declares a different one.
func (w *Watcher) release(path, id string, stale bool) {
	if !stale {
		return
	}
	w.mu.Lock()
	delete(w.owned, path)
	w.mu.Unlock()
	w.registry.Unregister(id)
	w.promote(id)
}

func (w *Watcher) conflict(path, id, owner string) {
	w.mu.Lock()
	w.waiting[path] = id
	w.mu.Unlock()

	w.logger.Warn("PLUGIN_CONFLICT",
		zap.String("plugin", id),
		zap.String("path", path),
		zap.String("owner", owner))
}

func (w *Watcher) remove(path string) {
	w.mu.Lock()
	id, ok := w.owned[path]
	delete(w.owned, path)
	delete(w.waiting, path)
	w.mu.Unlock()

	if ok {
		w.registry.Unregister(id)
		w.promote(id)
	}
}

// promote installs the first manifest, by path, that was waiting for id.
func (w *Watcher) promote(id string) {
	w.mu.Lock()
	var candidates []string
	for path, wanted := range w.waiting {
		if wanted == id {
			candidates = append(candidates, path)
		}
	}
	w.mu.Unlock()
	sort.Strings(candidates)

	for _, path := range candidates {
		p, err := LoadManifest(path)
		if err != nil {
			w.mu.Lock()
			delete(w.waiting, path)
			w.mu.Unlock()
			w.logger.Warn("PLUGIN_LOAD_FAILED", zap.String("path", path), zap.Error(err))
			continue
		}
		if w.install(path, p) && p.ID() == id {
			return
		}
	}
}

// ownerLocked returns the manifest path that owns id. w.mu must be held.
func (w *Watcher) ownerLocked(id string) (string, bool) {
	for path, owned := range w.owned {
		if owned == id {
			return path, true
		}
	}
	return "", false
}
