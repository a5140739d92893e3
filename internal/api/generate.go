// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"time"

	"github.com/jeranaias/equitydesk/internal/model"
	"github.com/jeranaias/equitydesk/internal/stream"
)

// =============================================================================
// GENERATION ENDPOINT
// =============================================================================

// analysisRequest is the wire body for both probe and streaming generation.
type analysisRequest struct {
	Symbol string `json:"symbol"`
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
	Force  bool   `json:"force,omitempty"`
}

// analysisProbeResponse is the synchronous cache-only probe response.
type analysisProbeResponse struct {
	Analysis    string    `json:"analysis"`
	GeneratedAt time.Time `json:"generated_at"`
	Cached      bool      `json:"cached"`
}

// FetchCachedBrief asks the backend for a cached brief without triggering
// generation. A symbol that has never been analyzed returns an empty brief,
// not an error.
func (c *Client) FetchCachedBrief(ctx context.Context, symbol string) (*model.Brief, error) {
	reqBody := analysisRequest{
		Symbol: symbol,
		Model:  c.config.Model,
		Stream: false,
	}

	var probe analysisProbeResponse
	if err := c.postJSON(ctx, "/api/analysis", reqBody, &probe); err != nil {
		return nil, err
	}

	return &model.Brief{
		Symbol:      symbol,
		Content:     probe.Analysis,
		GeneratedAt: probe.GeneratedAt,
		Cached:      probe.Cached,
	}, nil
}

// StreamBrief runs a streaming brief generation, dispatching every decoded
// generation event to the handler in arrival order. force requests a fresh
// generation even when the backend holds a cached brief.
//
// Returns nil at natural stream end (this vocabulary has no done record),
// the context error on cancellation, or a ClientError for transport
// failures before or during the stream.
func (c *Client) StreamBrief(ctx context.Context, symbol string, force bool, h stream.GenerationHandler) error {
	reqBody := analysisRequest{
		Symbol: symbol,
		Model:  c.config.Model,
		Stream: true,
		Force:  force,
	}

	resp, err := c.openStream(ctx, "/api/analysis", reqBody)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return stream.Scan(ctx, resp.Body, func(f stream.Frame) {
		stream.DispatchGeneration(f, h)
	})
}
