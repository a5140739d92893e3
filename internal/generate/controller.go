// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package generate

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/equitydesk/internal/model"
	"github.com/jeranaias/equitydesk/internal/stream"
)

// =============================================================================
// STATES
// =============================================================================

// State is the brief lifecycle position.
type State int

const (
	// StateIdle has no brief and no generation running.
	StateIdle State = iota
	// StateStreaming is receiving generated content.
	StateStreaming
	// StateComplete holds a finished brief.
	StateComplete
	// StateError holds a failed generation; the message is in Snapshot.Err.
	StateError
)

// ErrGenerationActive rejects a Generate call while a stream is running.
var ErrGenerationActive = errors.New("a generation is already active")

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// BriefBackend is the slice of the api client the controller consumes.
type BriefBackend interface {
	FetchCachedBrief(ctx context.Context, symbol string) (*model.Brief, error)
	StreamBrief(ctx context.Context, symbol string, force bool, h stream.GenerationHandler) error
}

// BriefStore persists completed briefs locally so the history view works
// offline. Write failures are logged, never surfaced.
type BriefStore interface {
	SaveBrief(brief model.Brief) error
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Config holds construction-time options for a brief controller.
type Config struct {
	// Symbol is the ticker this controller generates briefs for.
	Symbol string

	// Store, when set, receives every completed brief.
	Store BriefStore

	// OnUpdate, when set, is invoked after every state change so a
	// presentation layer can re-render. Called without the lock held.
	OnUpdate func()
}

// Controller owns one symbol's brief generation. All fields are guarded by
// mu; stream callbacks arrive on the transport goroutine and take the lock.
type Controller struct {
	mu sync.Mutex

	symbol string
	state  State

	text        strings.Builder
	cached      bool
	generatedAt time.Time
	// metadataSeen keeps a duplicate metadata record from clobbering the
	// first one's bookkeeping.
	metadataSeen bool
	errMsg       string

	// turn invalidates callbacks from a cancelled stream, same discipline
	// as the chat session.
	turn   uint64
	cancel context.CancelFunc

	backend  BriefBackend
	store    BriefStore
	onUpdate func()
	logger   *slog.Logger
}

// New creates a brief controller for one symbol.
func New(backend BriefBackend, cfg Config) *Controller {
	return &Controller{
		symbol:   cfg.Symbol,
		backend:  backend,
		store:    cfg.Store,
		onUpdate: cfg.OnUpdate,
		logger:   slog.Default().With("symbol", cfg.Symbol),
	}
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is the live view the presentation layer renders from.
type Snapshot struct {
	Symbol      string
	State       State
	Text        string
	Cached      bool
	GeneratedAt time.Time
	Err         string
}

// Snapshot returns a consistent copy of the generation state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		Symbol:      c.symbol,
		State:       c.state,
		Text:        c.text.String(),
		Cached:      c.cached,
		GeneratedAt: c.generatedAt,
		Err:         c.errMsg,
	}
}

// SetOnUpdate installs the update hook after construction, mirroring the
// session controller.
func (c *Controller) SetOnUpdate(fn func()) {
	c.mu.Lock()
	c.onUpdate = fn
	c.mu.Unlock()
}

func (c *Controller) notify() {
	c.mu.Lock()
	fn := c.onUpdate
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// =============================================================================
// CACHE PROBE
// =============================================================================

// Load asks the backend for a cached brief without triggering generation.
// A hit populates the controller and moves it to Complete; a miss leaves it
// Idle so the caller can decide whether to Generate. The probe goes to the
// remote endpoint; the local store only serves the history view.
func (c *Controller) Load(ctx context.Context) error {
	brief, err := c.backend.FetchCachedBrief(ctx, c.symbol)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.state == StateStreaming {
		// A generation started while the probe was in flight; its result
		// supersedes the stale probe.
		c.mu.Unlock()
		return nil
	}
	if brief.IsEmpty() {
		c.state = StateIdle
	} else {
		c.text.Reset()
		c.text.WriteString(brief.Content)
		c.cached = brief.Cached
		c.generatedAt = brief.GeneratedAt
		c.state = StateComplete
	}
	c.mu.Unlock()

	c.notify()
	return nil
}

// =============================================================================
// GENERATION
// =============================================================================

// Generate starts a streaming generation, replacing whatever brief is
// currently held. force requests a fresh generation even when the backend
// holds a cached one. Completion is asynchronous; observe progress through
// Snapshot or the OnUpdate hook.
func (c *Controller) Generate(force bool) error {
	c.mu.Lock()
	if c.state == StateStreaming {
		c.mu.Unlock()
		return ErrGenerationActive
	}

	c.turn++
	myTurn := c.turn
	c.text.Reset()
	c.cached = false
	c.generatedAt = time.Time{}
	c.metadataSeen = false
	c.errMsg = ""
	c.state = StateStreaming

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	c.notify()

	go c.runStream(ctx, myTurn, force)
	return nil
}

func (c *Controller) runStream(ctx context.Context, myTurn uint64, force bool) {
	h := &generationHandler{c: c, turn: myTurn}
	err := c.backend.StreamBrief(ctx, c.symbol, force, h)
	c.finishStream(myTurn, ctx, err)
}

// finishStream resolves the generation once the transport read returns.
// The vocabulary has no terminal record, so a clean return is completion.
func (c *Controller) finishStream(myTurn uint64, ctx context.Context, err error) {
	c.mu.Lock()
	if myTurn != c.turn {
		c.mu.Unlock()
		return
	}
	c.cancel = nil

	var completed *model.Brief

	switch {
	case ctx.Err() != nil:
		// Deliberate cancellation: drop the partial text.
		c.text.Reset()
		c.state = StateIdle

	case err != nil:
		c.errMsg = err.Error()
		c.state = StateError

	case c.state == StateError:
		// A protocol-level error record already resolved the generation;
		// the clean transport return does not override it.

	default:
		c.state = StateComplete
		if c.generatedAt.IsZero() {
			c.generatedAt = time.Now()
		}
		completed = &model.Brief{
			Symbol:      c.symbol,
			Content:     c.text.String(),
			GeneratedAt: c.generatedAt,
			Cached:      c.cached,
		}
	}
	c.mu.Unlock()

	if completed != nil && c.store != nil {
		if err := c.store.SaveBrief(*completed); err != nil {
			c.logger.Warn("failed to cache brief locally", "error", err)
		}
	}
	c.notify()
}

// Cancel aborts the in-flight generation, if any. Safe to call when idle.
func (c *Controller) Cancel() {
	c.mu.Lock()
	if c.state != StateStreaming {
		c.mu.Unlock()
		return
	}
	c.turn++
	cancel := c.cancel
	c.cancel = nil
	c.text.Reset()
	c.state = StateIdle
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.notify()
}

// Close aborts any in-flight generation; call on view unmount.
func (c *Controller) Close() {
	c.Cancel()
}

// =============================================================================
// EVENT HANDLING
// =============================================================================

// generationHandler binds one generation's stream callbacks to the
// controller, made inert when the turn is superseded or once an error
// record has resolved it.
type generationHandler struct {
	c    *Controller
	turn uint64
}

func (h *generationHandler) apply(fn func(c *Controller)) error {
	h.c.mu.Lock()
	if h.turn != h.c.turn || h.c.state != StateStreaming {
		h.c.mu.Unlock()
		return nil
	}
	fn(h.c)
	h.c.mu.Unlock()

	h.c.notify()
	return nil
}

func (h *generationHandler) OnMetadata(cached bool, generatedAt time.Time) error {
	return h.apply(func(c *Controller) {
		if c.metadataSeen {
			return
		}
		c.metadataSeen = true
		c.cached = cached
		c.generatedAt = generatedAt
	})
}

func (h *generationHandler) OnContent(text string) error {
	return h.apply(func(c *Controller) {
		c.text.WriteString(stream.StripDebugMarkers(text))
	})
}

func (h *generationHandler) OnStreamError(message string) error {
	return h.apply(func(c *Controller) {
		c.errMsg = message
		c.state = StateError
	})
}
