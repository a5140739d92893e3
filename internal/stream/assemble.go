// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jeranaias/equitydesk/internal/model"
)

// =============================================================================
// DEBUG MARKER FILTER
// =============================================================================

// The backend's instrumentation occasionally leaks bracketed timing markers
// into production payloads, e.g. "[Prompt: 0.02s, 100 chars]". Strip any
// bracketed run opening with one of the known keywords before the fragment
// reaches the transcript. This is a compatibility shim for a server-side
// leak, not a feature; do not extend the keyword list without a sighting.
var debugMarkerPattern = regexp.MustCompile(`\[(?:Prompt|Timing|Tokens|Debug)\b[^\]]*\]`)

// StripDebugMarkers removes leaked instrumentation from a text fragment.
// Both stream vocabularies can leak markers, so the filter is shared by
// every consumer of fragment text, not just the chat assembler.
func StripDebugMarkers(s string) string {
	if !strings.Contains(s, "[") {
		return s
	}
	return debugMarkerPattern.ReplaceAllString(s, "")
}

// =============================================================================
// ASSEMBLER
// =============================================================================

// Assembler accumulates one in-flight turn: the growing answer text, the
// citation sources, the agent's tool-call log and the transient thinking
// status. Exactly one Message is produced per turn, no matter which of the
// three finalize paths fires (done record, error record, or stream end with
// a non-empty buffer); a finalized guard makes the paths mutually exclusive
// and is reset only when a new turn starts.
//
// Assembler is not safe for concurrent use; the owning controller serializes
// access under its own lock.
type Assembler struct {
	// PERFORMANCE: strings.Builder avoids quadratic allocations
	text      strings.Builder
	sources   []string
	toolCalls []model.ToolCall
	thinking  string
	finalized bool
}

// NewAssembler creates an assembler ready for the first turn.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Reset clears all accumulator state for a new turn.
func (a *Assembler) Reset() {
	a.text.Reset()
	a.sources = nil
	a.toolCalls = nil
	a.thinking = ""
	a.finalized = false
}

// AddToken appends a text fragment, stripping leaked debug markers first.
// Once real content arrives any progress narration is stale, so the pending
// thinking status is cleared. Frames arriving after finalization (a server
// that keeps talking past done) are no-ops.
func (a *Assembler) AddToken(text string) {
	if a.finalized {
		return
	}
	a.text.WriteString(StripDebugMarkers(text))
	a.thinking = ""
}

// SetSources replaces the source list wholesale. The stream emits sources at
// most once, so there is nothing to merge.
func (a *Assembler) SetSources(sources []string) {
	if a.finalized {
		return
	}
	a.sources = sources
}

// AddToolCall appends one agent action to the turn's log and narrates it so
// the caller has feedback between the invocation and the next token.
func (a *Assembler) AddToolCall(call model.ToolCall) {
	if a.finalized {
		return
	}
	a.toolCalls = append(a.toolCalls, call)
	a.thinking = fmt.Sprintf("Calling %s...", call.Tool)
}

// SetThinking records a transient progress status. It is presentation-only
// and is never part of the finalized message.
func (a *Assembler) SetThinking(status string) {
	if a.finalized {
		return
	}
	a.thinking = status
}

// ClearTransient drops the live preview state once the turn's message has
// been appended, keeping the finalized guard so late frames stay inert.
func (a *Assembler) ClearTransient() {
	a.text.Reset()
	a.sources = nil
	a.toolCalls = nil
	a.thinking = ""
}

// =============================================================================
// LIVE STATE
// =============================================================================

// Text returns the running preview of the answer so far.
func (a *Assembler) Text() string {
	return a.text.String()
}

// Sources returns the citation identifiers received for this turn.
func (a *Assembler) Sources() []string {
	return a.sources
}

// ToolCalls returns the agent actions recorded so far.
func (a *Assembler) ToolCalls() []model.ToolCall {
	return a.toolCalls
}

// Thinking returns the current progress status, or "" when none is pending.
func (a *Assembler) Thinking() string {
	return a.thinking
}

// Finalized reports whether this turn has already produced its message.
func (a *Assembler) Finalized() bool {
	return a.finalized
}

// =============================================================================
// FINALIZATION
// =============================================================================

// FinalizeDone converts the accumulated state into the turn's assistant
// message. A non-empty server-assigned id replaces the local one. Returns
// false if the turn was already finalized.
func (a *Assembler) FinalizeDone(messageID string) (model.Message, bool) {
	if a.finalized {
		return model.Message{}, false
	}
	a.finalized = true

	msg := model.NewMessage(model.RoleAssistant, a.text.String())
	msg.Sources = a.sources
	msg.ToolCalls = a.toolCalls
	if messageID != "" {
		msg.ID = messageID
	}
	return msg, true
}

// FinalizeError converts the turn into an error-role message wrapping the
// failure for display. Returns false if the turn was already finalized.
func (a *Assembler) FinalizeError(message string) (model.Message, bool) {
	if a.finalized {
		return model.Message{}, false
	}
	a.finalized = true

	return model.NewErrorMessage("analysis failed: " + message), true
}

// FinalizeEOF handles a stream that ended without a done or error record.
// The remote is known to close the connection without a terminal record on
// occasion; if text accumulated, treat it exactly like done but without a
// server-assigned id. An empty buffer finalizes nothing.
func (a *Assembler) FinalizeEOF() (model.Message, bool) {
	if a.finalized || a.text.Len() == 0 {
		return model.Message{}, false
	}
	return a.FinalizeDone("")
}
