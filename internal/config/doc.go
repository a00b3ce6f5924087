// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - ModelConfig: active model and the models /model may switch to
//   - PluginsConfig: manifest directory, watching, rate limits
//   - ModelStore: the model section exposed to the /model commands
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (DISPATCH_*)
//   - ~/.dispatch/config.toml
//   - ~/.dispatch/config.json
//   - Built-in defaults
//
// # Usage
//
//	cfg, path, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	models := config.NewModelStore(cfg, path)
package config
