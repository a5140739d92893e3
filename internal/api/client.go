// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the backend client.
type ClientConfig struct {
	// BaseURL is the analysis backend base URL (default: http://127.0.0.1:8084)
	// Note: explicit IPv4 address avoids IPv6 resolution issues on Windows.
	BaseURL string

	// Timeout for non-streaming requests (default: 30s)
	Timeout time.Duration

	// Model is the generation model selector sent with analysis requests
	// (default: "research-std")
	Model string

	// RequestsPerSecond throttles non-streaming calls; the conversation
	// mirror fires once per finalized turn and must not hammer the store
	// (default: 4)
	RequestsPerSecond float64
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:           "http://127.0.0.1:8084",
		Timeout:           30 * time.Second,
		Model:             "research-std",
		RequestsPerSecond: 4,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the analysis backend.
//
// The Client is safe for concurrent use; each streaming call owns its own
// decode loop and response body.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	// streamClient has no timeout; streaming lifetimes are governed by the
	// caller's context, not a wall clock.
	streamClient *http.Client
	limiter      *rate.Limiter
}

// NewClient creates a new backend client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new backend client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	// Fill in defaults for any zero values
	if config.BaseURL == "" {
		config.BaseURL = "http://127.0.0.1:8084"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Model == "" {
		config.Model = "research-std"
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 4
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		streamClient: &http.Client{},
		limiter:      rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1),
	}
}

// GetConfig returns the client configuration.
func (c *Client) GetConfig() *ClientConfig {
	return c.config
}

// SetModel updates the generation model selector.
func (c *Client) SetModel(model string) {
	c.config.Model = model
}

// =============================================================================
// REQUEST HELPERS
// =============================================================================

// postJSON performs a rate-limited, non-streaming POST and decodes the
// response into out (which may be nil for calls without a body).
func (c *Client) postJSON(ctx context.Context, path string, reqBody, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ErrUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return c.errorFromResponse(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	return nil
}

// getJSON performs a rate-limited GET and decodes the response into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+path, nil)
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ErrUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return c.errorFromResponse(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	return nil
}

// openStream starts a streaming POST and returns the open response. The
// caller owns the body.
func (c *Client) openStream(ctx context.Context, path string, reqBody any) (*http.Response, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, ErrUnavailable
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, c.errorFromResponse(resp)
	}

	return resp, nil
}

// backendError is the JSON error body the backend returns on non-2xx.
type backendError struct {
	Error string `json:"error"`
}

// errorFromResponse converts a non-2xx response into a ClientError, reading
// the backend's error message when one is present.
func (c *Client) errorFromResponse(resp *http.Response) error {
	var be backendError
	if err := json.NewDecoder(resp.Body).Decode(&be); err == nil && be.Error != "" {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: be.Error}
	}
	return &ClientError{
		Type:    ErrTypeInvalidResponse,
		Message: "request failed: " + resp.Status,
	}
}
