// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jeranaias/equitydesk/internal/model"
)

// Two vocabularies share the frame format: the conversational chat stream
// and the (simpler) analysis generation stream. Each is a closed sum type so
// adding an event is a compile-time-visible change everywhere it matters.

// =============================================================================
// CHAT VOCABULARY
// =============================================================================

// ChatEvent is one typed event from the chat stream.
type ChatEvent interface {
	chatEvent()
}

// ConversationIDEvent assigns or confirms the conversation identifier.
type ConversationIDEvent struct {
	ID string
}

// SourcesEvent lists citation identifiers backing the forthcoming answer.
// A stream emits it at most once, typically before the first token.
type SourcesEvent struct {
	Sources []string
}

// TokenEvent carries one incremental text fragment.
type TokenEvent struct {
	Text string
}

// ThinkingEvent carries a transient status string describing agent progress.
// It is presentation-only and never part of the final message.
type ThinkingEvent struct {
	Status string
}

// ToolCallEvent records one structured action the agent took.
type ToolCallEvent struct {
	Call model.ToolCall
}

// DoneEvent signals successful completion; the server may assign the
// finished message an id.
type DoneEvent struct {
	MessageID string
}

// ChatErrorEvent is a terminal failure reported inside the stream.
type ChatErrorEvent struct {
	Message string
}

func (ConversationIDEvent) chatEvent() {}
func (SourcesEvent) chatEvent()        {}
func (TokenEvent) chatEvent()          {}
func (ThinkingEvent) chatEvent()       {}
func (ToolCallEvent) chatEvent()       {}
func (DoneEvent) chatEvent()           {}
func (ChatErrorEvent) chatEvent()      {}

// ParseChatEvent decodes a frame against the chat vocabulary. Unrecognized
// type tags return (nil, nil) so new server events pass through harmlessly.
// Chat payloads nest under the record's "data" field.
func ParseChatEvent(f Frame) (ChatEvent, error) {
	switch f.Type {
	case "conversation_id":
		var rec struct {
			Data string `json:"data"`
		}
		if err := json.Unmarshal(f.Raw, &rec); err != nil {
			return nil, fmt.Errorf("conversation_id payload: %w", err)
		}
		return ConversationIDEvent{ID: rec.Data}, nil

	case "sources":
		var rec struct {
			Data []string `json:"data"`
		}
		if err := json.Unmarshal(f.Raw, &rec); err != nil {
			return nil, fmt.Errorf("sources payload: %w", err)
		}
		return SourcesEvent{Sources: rec.Data}, nil

	case "token":
		var rec struct {
			Data string `json:"data"`
		}
		if err := json.Unmarshal(f.Raw, &rec); err != nil {
			return nil, fmt.Errorf("token payload: %w", err)
		}
		return TokenEvent{Text: rec.Data}, nil

	case "thinking":
		var rec struct {
			Data string `json:"data"`
		}
		if err := json.Unmarshal(f.Raw, &rec); err != nil {
			return nil, fmt.Errorf("thinking payload: %w", err)
		}
		return ThinkingEvent{Status: rec.Data}, nil

	case "tool_call":
		var rec struct {
			Data struct {
				Tool      string         `json:"tool"`
				Arguments map[string]any `json:"arguments"`
			} `json:"data"`
		}
		if err := json.Unmarshal(f.Raw, &rec); err != nil {
			return nil, fmt.Errorf("tool_call payload: %w", err)
		}
		return ToolCallEvent{Call: model.ToolCall{
			Tool:      rec.Data.Tool,
			Arguments: rec.Data.Arguments,
		}}, nil

	case "done":
		var rec struct {
			Data struct {
				MessageID string `json:"message_id"`
			} `json:"data"`
		}
		if err := json.Unmarshal(f.Raw, &rec); err != nil {
			return nil, fmt.Errorf("done payload: %w", err)
		}
		return DoneEvent{MessageID: rec.Data.MessageID}, nil

	case "error":
		return ChatErrorEvent{Message: parseErrorPayload(f.Raw)}, nil

	default:
		return nil, nil
	}
}

// parseErrorPayload accepts both shapes the backend has emitted for errors:
// a bare string under "data", or an object with a "message" field.
func parseErrorPayload(raw json.RawMessage) string {
	var asString struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(raw, &asString); err == nil && asString.Data != "" {
		return asString.Data
	}

	var asObject struct {
		Data struct {
			Message string `json:"message"`
		} `json:"data"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &asObject); err == nil {
		if asObject.Data.Message != "" {
			return asObject.Data.Message
		}
		if asObject.Message != "" {
			return asObject.Message
		}
	}

	return "unknown stream error"
}

// =============================================================================
// GENERATION VOCABULARY
// =============================================================================

// GenerationEvent is one typed event from the analysis generation stream.
// This vocabulary has no done record; completion is signaled by stream end.
type GenerationEvent interface {
	generationEvent()
}

// MetadataEvent reports whether the result was served from cache and when
// it was generated. Emitted once, before content.
type MetadataEvent struct {
	Cached      bool
	GeneratedAt time.Time
}

// ContentEvent carries one incremental fragment of brief text.
type ContentEvent struct {
	Content string
}

// GenerationErrorEvent is a terminal failure reported inside the stream.
type GenerationErrorEvent struct {
	Message string
}

func (MetadataEvent) generationEvent()        {}
func (ContentEvent) generationEvent()         {}
func (GenerationErrorEvent) generationEvent() {}

// ParseGenerationEvent decodes a frame against the generation vocabulary.
// Unlike chat, this vocabulary flattens its payload onto the event object
// itself (cached, generated_at, content, message).
func ParseGenerationEvent(f Frame) (GenerationEvent, error) {
	switch f.Type {
	case "metadata":
		var rec struct {
			Cached      bool      `json:"cached"`
			GeneratedAt time.Time `json:"generated_at"`
		}
		if err := json.Unmarshal(f.Raw, &rec); err != nil {
			return nil, fmt.Errorf("metadata payload: %w", err)
		}
		return MetadataEvent{Cached: rec.Cached, GeneratedAt: rec.GeneratedAt}, nil

	case "chunk":
		var rec struct {
			Content string `json:"content"`
		}
		if err := json.Unmarshal(f.Raw, &rec); err != nil {
			return nil, fmt.Errorf("chunk payload: %w", err)
		}
		return ContentEvent{Content: rec.Content}, nil

	case "error":
		var rec struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(f.Raw, &rec); err != nil {
			return nil, fmt.Errorf("error payload: %w", err)
		}
		if rec.Message == "" {
			rec.Message = "unknown stream error"
		}
		return GenerationErrorEvent{Message: rec.Message}, nil

	default:
		return nil, nil
	}
}
