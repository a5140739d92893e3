// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"log/slog"
	"time"

	"github.com/jeranaias/equitydesk/internal/model"
)

// =============================================================================
// CHAT DISPATCH
// =============================================================================

// ChatHandler receives chat events in arrival order.
//
// Handler errors never abort the stream: dispatch logs them and treats the
// frame as a no-op. Two cross-event rules belong to whoever implements this
// interface (the Assembler honors both): a token clears any pending thinking
// status, and a tool call both appends to the turn's tool-call log and sets
// a "Calling <tool>..." status so there is continuous feedback between the
// invocation and the next token.
type ChatHandler interface {
	OnConversationID(id string) error
	OnSources(sources []string) error
	OnToken(text string) error
	OnThinking(status string) error
	OnToolCall(call model.ToolCall) error
	OnDone(messageID string) error
	OnStreamError(message string) error
}

// DispatchChat routes one decoded frame to the handler. Malformed payloads
// and handler failures are logged and dropped; unknown type tags are ignored
// for forward compatibility. Dispatch never panics or returns an error.
func DispatchChat(f Frame, h ChatHandler) {
	ev, err := ParseChatEvent(f)
	if err != nil {
		slog.Debug("dropping undecodable chat frame", "type", f.Type, "error", err)
		return
	}
	if ev == nil {
		return
	}

	switch e := ev.(type) {
	case ConversationIDEvent:
		err = h.OnConversationID(e.ID)
	case SourcesEvent:
		err = h.OnSources(e.Sources)
	case TokenEvent:
		err = h.OnToken(e.Text)
	case ThinkingEvent:
		err = h.OnThinking(e.Status)
	case ToolCallEvent:
		err = h.OnToolCall(e.Call)
	case DoneEvent:
		err = h.OnDone(e.MessageID)
	case ChatErrorEvent:
		err = h.OnStreamError(e.Message)
	}

	if err != nil {
		slog.Warn("chat event handler failed", "type", f.Type, "error", err)
	}
}

// =============================================================================
// GENERATION DISPATCH
// =============================================================================

// GenerationHandler receives generation events in arrival order.
type GenerationHandler interface {
	OnMetadata(cached bool, generatedAt time.Time) error
	OnContent(content string) error
	OnStreamError(message string) error
}

// DispatchGeneration routes one decoded frame to the handler, with the same
// failure semantics as DispatchChat.
func DispatchGeneration(f Frame, h GenerationHandler) {
	ev, err := ParseGenerationEvent(f)
	if err != nil {
		slog.Debug("dropping undecodable generation frame", "type", f.Type, "error", err)
		return
	}
	if ev == nil {
		return
	}

	switch e := ev.(type) {
	case MetadataEvent:
		err = h.OnMetadata(e.Cached, e.GeneratedAt)
	case ContentEvent:
		err = h.OnContent(e.Content)
	case GenerationErrorEvent:
		err = h.OnStreamError(e.Message)
	}

	if err != nil {
		slog.Warn("generation event handler failed", "type", f.Type, "error", err)
	}
}
