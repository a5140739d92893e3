// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading for equitydesk.
//
// TOML with sensible defaults, environment variable overrides, and
// validation. Locations in order of precedence:
//   - path given explicitly on the command line
//   - ~/.equitydesk/config.toml
//   - built-in defaults
//
// A Watcher reloads the file on change so theme and backend tweaks apply
// without a restart.
package config
