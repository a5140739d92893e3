// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api provides the HTTP client for the analysis backend.
//
// Three collaborator surfaces live behind one client:
//
//   - the generation endpoint: cache-only brief probe plus the streaming
//     brief generation
//   - the chat endpoint: normal Q&A and agent-mode conversations, both
//     returning the framed event stream decoded by the stream package
//   - the conversation store: list/create conversations and mirror
//     finalized messages (never read mid-stream)
//
// Non-streaming calls share a politeness rate limiter; streaming calls use
// a client without a timeout, relying on context cancellation instead.
package api
