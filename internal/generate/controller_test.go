// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package generate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/equitydesk/internal/model"
	"github.com/jeranaias/equitydesk/internal/stream"
)

// =============================================================================
// FAKE BACKEND
// =============================================================================

type scriptedEvent struct {
	kind        string // "metadata", "content" or "error"
	cached      bool
	generatedAt time.Time
	text        string
}

func metaEvent(cached bool, generatedAt time.Time) scriptedEvent {
	return scriptedEvent{kind: "metadata", cached: cached, generatedAt: generatedAt}
}

func contentEvent(text string) scriptedEvent {
	return scriptedEvent{kind: "content", text: text}
}

func errorEvent(message string) scriptedEvent {
	return scriptedEvent{kind: "error", text: message}
}

// fakeBriefBackend scripts the probe response and one generation stream.
type fakeBriefBackend struct {
	mu sync.Mutex

	probe    *model.Brief
	probeErr error

	events    []scriptedEvent
	finishErr error
	block     bool

	lastForce bool
}

func (b *fakeBriefBackend) FetchCachedBrief(ctx context.Context, symbol string) (*model.Brief, error) {
	if b.probeErr != nil {
		return nil, b.probeErr
	}
	if b.probe != nil {
		return b.probe, nil
	}
	return &model.Brief{Symbol: symbol}, nil
}

func (b *fakeBriefBackend) StreamBrief(ctx context.Context, symbol string, force bool, h stream.GenerationHandler) error {
	b.mu.Lock()
	b.lastForce = force
	events := b.events
	finishErr := b.finishErr
	block := b.block
	b.mu.Unlock()

	for _, ev := range events {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		switch ev.kind {
		case "metadata":
			h.OnMetadata(ev.cached, ev.generatedAt)
		case "error":
			h.OnStreamError(ev.text)
		default:
			h.OnContent(ev.text)
		}
	}

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return finishErr
}

func waitState(t *testing.T, c *Controller, want State) Snapshot {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.Snapshot().State == want
	}, 2*time.Second, 5*time.Millisecond, "controller should reach state %d", want)
	return c.Snapshot()
}

// =============================================================================
// CACHE PROBE
// =============================================================================

func TestLoad_CacheHitCompletesImmediately(t *testing.T) {
	when := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	backend := &fakeBriefBackend{probe: &model.Brief{
		Symbol:      "NVDA",
		Content:     "Strong datacenter demand.",
		GeneratedAt: when,
		Cached:      true,
	}}
	c := New(backend, Config{Symbol: "NVDA"})

	require.NoError(t, c.Load(context.Background()))

	snap := c.Snapshot()
	assert.Equal(t, StateComplete, snap.State)
	assert.Equal(t, "Strong datacenter demand.", snap.Text)
	assert.True(t, snap.Cached)
	assert.Equal(t, when, snap.GeneratedAt)
}

func TestLoad_CacheMissStaysIdle(t *testing.T) {
	c := New(&fakeBriefBackend{}, Config{Symbol: "NVDA"})

	require.NoError(t, c.Load(context.Background()))

	snap := c.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Empty(t, snap.Text)
}

func TestLoad_ProbeErrorSurfaces(t *testing.T) {
	backend := &fakeBriefBackend{probeErr: errors.New("backend down")}
	c := New(backend, Config{Symbol: "NVDA"})

	err := c.Load(context.Background())
	assert.ErrorContains(t, err, "backend down")
	assert.Equal(t, StateIdle, c.Snapshot().State)
}

// =============================================================================
// STREAMING GENERATION
// =============================================================================

func TestGenerate_AccumulatesAndCompletes(t *testing.T) {
	when := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	backend := &fakeBriefBackend{events: []scriptedEvent{
		metaEvent(false, when),
		contentEvent("Revenue grew "),
		contentEvent("40% YoY."),
	}}
	c := New(backend, Config{Symbol: "NVDA"})

	require.NoError(t, c.Generate(false))
	snap := waitState(t, c, StateComplete)

	assert.Equal(t, "Revenue grew 40% YoY.", snap.Text)
	assert.False(t, snap.Cached)
	assert.Equal(t, when, snap.GeneratedAt)
}

func TestGenerate_DebugMarkerStripped(t *testing.T) {
	backend := &fakeBriefBackend{events: []scriptedEvent{
		contentEvent("[Prompt: 0.02s, 100 chars]Revenue grew "),
		contentEvent("40% YoY. [Timing: 1.2s]"),
	}}
	c := New(backend, Config{Symbol: "NVDA"})

	require.NoError(t, c.Generate(false))
	snap := waitState(t, c, StateComplete)

	assert.Equal(t, "Revenue grew 40% YoY. ", snap.Text,
		"leaked instrumentation must not reach the brief")
}

func TestGenerate_DuplicateMetadataIgnored(t *testing.T) {
	first := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	second := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	backend := &fakeBriefBackend{events: []scriptedEvent{
		metaEvent(true, first),
		metaEvent(false, second),
		contentEvent("text"),
	}}
	c := New(backend, Config{Symbol: "NVDA"})

	require.NoError(t, c.Generate(false))
	snap := waitState(t, c, StateComplete)

	assert.True(t, snap.Cached, "first metadata record wins")
	assert.Equal(t, first, snap.GeneratedAt)
}

func TestGenerate_ResetsPreviousBrief(t *testing.T) {
	backend := &fakeBriefBackend{
		probe:  &model.Brief{Symbol: "NVDA", Content: "stale brief", Cached: true},
		events: []scriptedEvent{contentEvent("fresh brief")},
	}
	c := New(backend, Config{Symbol: "NVDA"})
	require.NoError(t, c.Load(context.Background()))

	require.NoError(t, c.Generate(true))
	snap := waitState(t, c, StateComplete)

	assert.Equal(t, "fresh brief", snap.Text, "old text must not bleed into the new stream")
	backend.mu.Lock()
	assert.True(t, backend.lastForce)
	backend.mu.Unlock()
}

func TestGenerate_RejectedWhileStreaming(t *testing.T) {
	backend := &fakeBriefBackend{block: true}
	c := New(backend, Config{Symbol: "NVDA"})
	defer c.Close()

	require.NoError(t, c.Generate(false))
	require.Eventually(t, func() bool {
		return c.Snapshot().State == StateStreaming
	}, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, c.Generate(false), ErrGenerationActive)
}

// =============================================================================
// ERRORS AND CANCELLATION
// =============================================================================

func TestGenerate_ProtocolError(t *testing.T) {
	backend := &fakeBriefBackend{events: []scriptedEvent{
		contentEvent("partial"),
		errorEvent("model overloaded"),
	}}
	c := New(backend, Config{Symbol: "NVDA"})

	require.NoError(t, c.Generate(false))
	snap := waitState(t, c, StateError)

	assert.Equal(t, "model overloaded", snap.Err)
}

func TestGenerate_ContentAfterErrorIsInert(t *testing.T) {
	backend := &fakeBriefBackend{events: []scriptedEvent{
		contentEvent("partial"),
		errorEvent("model overloaded"),
		contentEvent(" stray tail"),
	}}
	c := New(backend, Config{Symbol: "NVDA"})

	require.NoError(t, c.Generate(false))
	snap := waitState(t, c, StateError)

	assert.Equal(t, "model overloaded", snap.Err)
	assert.Equal(t, "partial", snap.Text, "the error record ends the turn")
}

func TestGenerate_TransportError(t *testing.T) {
	backend := &fakeBriefBackend{finishErr: errors.New("connection reset")}
	c := New(backend, Config{Symbol: "NVDA"})

	require.NoError(t, c.Generate(false))
	snap := waitState(t, c, StateError)

	assert.Contains(t, snap.Err, "connection reset")
}

func TestGenerate_ErrorThenRetrySucceeds(t *testing.T) {
	backend := &fakeBriefBackend{finishErr: errors.New("transient")}
	c := New(backend, Config{Symbol: "NVDA"})

	require.NoError(t, c.Generate(false))
	waitState(t, c, StateError)

	backend.mu.Lock()
	backend.finishErr = nil
	backend.events = []scriptedEvent{contentEvent("recovered")}
	backend.mu.Unlock()

	require.NoError(t, c.Generate(false))
	snap := waitState(t, c, StateComplete)
	assert.Equal(t, "recovered", snap.Text)
	assert.Empty(t, snap.Err, "retry clears the previous failure")
}

func TestCancel_DropsPartialText(t *testing.T) {
	backend := &fakeBriefBackend{
		events: []scriptedEvent{contentEvent("partial")},
		block:  true,
	}
	c := New(backend, Config{Symbol: "NVDA"})

	require.NoError(t, c.Generate(false))
	require.Eventually(t, func() bool {
		return c.Snapshot().Text == "partial"
	}, time.Second, 5*time.Millisecond)

	c.Cancel()

	require.Eventually(t, func() bool {
		snap := c.Snapshot()
		return snap.State == StateIdle && snap.Text == ""
	}, time.Second, 5*time.Millisecond)
}

// =============================================================================
// LOCAL CACHE
// =============================================================================

type recordingBriefStore struct {
	mu     sync.Mutex
	briefs []model.Brief
}

func (s *recordingBriefStore) SaveBrief(b model.Brief) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.briefs = append(s.briefs, b)
	return nil
}

func TestGenerate_CompletedBriefIsStored(t *testing.T) {
	store := &recordingBriefStore{}
	backend := &fakeBriefBackend{events: []scriptedEvent{contentEvent("brief text")}}
	c := New(backend, Config{Symbol: "NVDA", Store: store})

	require.NoError(t, c.Generate(false))
	waitState(t, c, StateComplete)

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.briefs) == 1
	}, time.Second, 5*time.Millisecond)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, "NVDA", store.briefs[0].Symbol)
	assert.Equal(t, "brief text", store.briefs[0].Content)
	assert.False(t, store.briefs[0].GeneratedAt.IsZero())
}

func TestGenerate_FailedBriefIsNotStored(t *testing.T) {
	store := &recordingBriefStore{}
	backend := &fakeBriefBackend{finishErr: errors.New("boom")}
	c := New(backend, Config{Symbol: "NVDA", Store: store})

	require.NoError(t, c.Generate(false))
	waitState(t, c, StateError)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Empty(t, store.briefs)
}
