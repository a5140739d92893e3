// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for analysis conversations.
package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleError marks a turn that ended in a protocol or transport failure.
	// Error messages render as a distinct bubble but live in the same log.
	RoleError Role = "error"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Analyst"
	case RoleError:
		return "Error"
	default:
		return string(r)
	}
}

// =============================================================================
// TOOL CALL TYPE
// =============================================================================

// ToolCall records one structured action the agent took during a turn.
type ToolCall struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single finalized turn in a conversation.
//
// A Message is created exactly once per turn (user submission, stream
// completion, or stream failure) and is never mutated afterwards.
type Message struct {
	// Identity. ID is locally generated; for assistant messages the server
	// may assign its own id on completion, which replaces the local one.
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`

	// Content is the complete assembled text of the turn.
	Content string `json:"content"`

	// Sources lists citation identifiers backing an assistant answer.
	Sources []string `json:"sources,omitempty"`

	// ToolCalls records the agent's actions during the turn, in order.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewErrorMessage creates a message representing a failed turn.
func NewErrorMessage(content string) Message {
	return NewMessage(RoleError, content)
}

// HasToolCalls returns true if the message recorded any agent actions.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// IsError returns true for error-role messages.
func (m Message) IsError() bool {
	return m.Role == RoleError
}
