// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"

	"github.com/jeranaias/equitydesk/internal/model"
	"github.com/jeranaias/equitydesk/internal/stream"
)

// =============================================================================
// CHAT ENDPOINT
// =============================================================================

// chatRequest is the wire body for normal-mode chat: the backend keeps the
// conversation server-side and threads it by id.
type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	Context        string `json:"context,omitempty"`
}

// agentChatRequest is the wire body for agent mode: the client supplies the
// prior turns explicitly so the agent can plan over them.
type agentChatRequest struct {
	Message string        `json:"message"`
	History []chatHistory `json:"history"`
}

// chatHistory is the reduced message shape the agent endpoint accepts.
type chatHistory struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamChat sends a normal-mode chat question and dispatches every decoded
// chat event to the handler in arrival order. conversationID may be empty
// for the first turn; the stream assigns one via a conversation_id event.
// contextText carries symbol-specific grounding for the question.
//
// Returns nil at stream end, the context error on cancellation, or a
// ClientError for transport failures. Terminal protocol errors arrive as
// error events through the handler, not as a return value.
func (c *Client) StreamChat(ctx context.Context, message, conversationID, contextText string, h stream.ChatHandler) error {
	reqBody := chatRequest{
		Message:        message,
		ConversationID: conversationID,
		Context:        contextText,
	}
	return c.streamChatBody(ctx, reqBody, h)
}

// StreamAgentChat sends an agent-mode question with explicit history. The
// returned stream may interleave thinking and tool_call events with tokens.
func (c *Client) StreamAgentChat(ctx context.Context, message string, history []model.Message, h stream.ChatHandler) error {
	reqBody := agentChatRequest{
		Message: message,
		History: make([]chatHistory, 0, len(history)),
	}
	for _, m := range history {
		// Error bubbles are presentation state, not conversation content.
		if m.Role == model.RoleError {
			continue
		}
		reqBody.History = append(reqBody.History, chatHistory{
			Role:    m.Role.String(),
			Content: m.Content,
		})
	}
	return c.streamChatBody(ctx, reqBody, h)
}

func (c *Client) streamChatBody(ctx context.Context, reqBody any, h stream.ChatHandler) error {
	resp, err := c.openStream(ctx, "/api/chat", reqBody)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return stream.Scan(ctx, resp.Body, func(f stream.Frame) {
		stream.DispatchChat(f, h)
	})
}
