// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"net/url"
	"time"

	"github.com/jeranaias/equitydesk/internal/model"
)

// =============================================================================
// CONVERSATION STORE
// =============================================================================

// RemoteConversation is one stored conversation as the backend reports it.
type RemoteConversation struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Messages  []model.Message `json:"messages,omitempty"`
}

// ListConversations returns the stored conversations for a symbol, most
// recently updated first (backend ordering).
func (c *Client) ListConversations(ctx context.Context, symbol string) ([]RemoteConversation, error) {
	var result struct {
		Conversations []RemoteConversation `json:"conversations"`
	}
	path := "/api/conversations?symbol=" + url.QueryEscape(symbol)
	if err := c.getJSON(ctx, path, &result); err != nil {
		return nil, err
	}
	return result.Conversations, nil
}

// CreateConversation creates a new remote conversation for a symbol and
// returns its id.
func (c *Client) CreateConversation(ctx context.Context, symbol string) (string, error) {
	reqBody := struct {
		Symbol string `json:"symbol"`
	}{Symbol: symbol}

	var result struct {
		ID string `json:"id"`
	}
	if err := c.postJSON(ctx, "/api/conversations", reqBody, &result); err != nil {
		return "", err
	}
	return result.ID, nil
}

// AppendMessage mirrors one finalized message into a remote conversation.
// The store is write-only during a session; it is never read mid-stream.
func (c *Client) AppendMessage(ctx context.Context, conversationID string, msg model.Message) error {
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
	return c.postJSON(ctx, path, msg, nil)
}
