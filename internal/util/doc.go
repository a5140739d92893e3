// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across equitydesk: UTF-8 safe
// string truncation for terminal display and crash-safe file writing.
package util
