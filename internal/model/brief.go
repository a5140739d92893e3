// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"
)

// =============================================================================
// ANALYSIS BRIEF
// =============================================================================

// Brief is a generated analysis brief for a single ticker symbol.
type Brief struct {
	Symbol  string `json:"symbol"`
	Content string `json:"content"`

	// GeneratedAt is the server-reported generation timestamp.
	GeneratedAt time.Time `json:"generated_at"`

	// Cached is true when the server answered from its cache rather than
	// running a fresh generation.
	Cached bool `json:"cached"`
}

// IsEmpty returns true when the brief carries no content.
// A cache-only probe for a never-analyzed symbol produces an empty brief.
func (b Brief) IsEmpty() bool {
	return strings.TrimSpace(b.Content) == ""
}

// Age returns how long ago the brief was generated.
func (b Brief) Age() time.Duration {
	if b.GeneratedAt.IsZero() {
		return 0
	}
	return time.Since(b.GeneratedAt)
}
