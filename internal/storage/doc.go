// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage keeps local history in SQLite: finalized chat turns per
// symbol and the last completed brief per symbol. The backend remains the
// source of truth for agent conversations; this store only serves the
// offline history view and is always written best-effort.
package storage
