// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for analysis conversations.
//
// This package defines the core domain types used throughout the application
// for representing chat turns, tool invocations, and generated analysis
// briefs.
//
// # Key Types
//
//   - Message: Single finalized turn with role, content, sources and tool calls
//   - ToolCall: One structured action taken by the agent during a turn
//   - Role: Message role enumeration (user, assistant, error)
//   - Brief: A generated analysis brief for a ticker symbol
//
// Messages are immutable once created. Streaming state (the text still
// growing on screen) lives in the stream package's Assembler, never here.
package model
