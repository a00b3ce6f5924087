// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"sync"
)

// ModelStore exposes the model section of a Config to the /model commands.
// When path is set, every successful switch is persisted there.
type ModelStore struct {
	mu   sync.RWMutex
	cfg  *Config
	path string
}

// NewModelStore wraps cfg. An empty path keeps changes in memory only.
func NewModelStore(cfg *Config, path string) *ModelStore {
	return &ModelStore{cfg: cfg, path: path}
}

// ActiveModel returns the active model identifier.
func (s *ModelStore) ActiveModel() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Model.Active
}

// AvailableModels returns a copy of the selectable models.
func (s *ModelStore) AvailableModels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.cfg.Model.Available...)
}

// SetActiveModel switches the active model. Names outside a non-empty
// model.available list are rejected. A failed save rolls the change back.
func (s *ModelStore) SetActiveModel(name string) error {
	if name == "" {
		return fmt.Errorf("model name must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.cfg.Model.Available) > 0 && !containsString(s.cfg.Model.Available, name) {
		return fmt.Errorf("unknown model '%s', run /models to list available models", name)
	}

	previous := s.cfg.Model.Active
	s.cfg.Model.Active = name

	if s.path == "" {
		return nil
	}
	if err := SaveToPath(s.cfg, s.path); err != nil {
		s.cfg.Model.Active = previous
		return fmt.Errorf("save model selection: %w", err)
	}
	return nil
}

// Get reads a configuration value by dotted key. Reads go through the
// store so they never overlap a model switch.
func (s *ModelStore) Get(key string) (interface{}, error) {
	s.mu.RLock()
	snapshot := s.cfg.Clone()
	s.mu.RUnlock()
	return snapshot.Get(key)
}
