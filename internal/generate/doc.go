// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package generate drives a symbol's analysis brief: a synchronous
// cache-only probe on open, then a streaming generation on demand.
//
// The flow is simpler than a chat session. The generation vocabulary has
// no terminal record, so completion is simply the end of the stream; a
// metadata record updates the cached/generated-at bookkeeping exactly
// once and never touches the text.
package generate
