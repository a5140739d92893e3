// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/jeranaias/equitydesk/internal/api"
	"github.com/jeranaias/equitydesk/internal/model"
	"github.com/jeranaias/equitydesk/internal/stream"
)

// =============================================================================
// MODES AND STATES
// =============================================================================

// Mode selects the chat variant for the session.
type Mode string

const (
	// ModeNormal is single-shot Q&A threaded by a server-side conversation.
	ModeNormal Mode = "normal"
	// ModeAgent lets the assistant invoke tools and narrate progress; the
	// client supplies history explicitly and mirrors turns to the store.
	ModeAgent Mode = "agent"
)

// State is the turn lifecycle position.
type State int

const (
	// StateIdle accepts submissions.
	StateIdle State = iota
	// StateAwaitingFirstByte has sent the request but seen no frame yet.
	StateAwaitingFirstByte
	// StateStreaming is receiving frames.
	StateStreaming
	// StateFinalized has produced the turn's message; it transitions back
	// to StateIdle immediately, so it is observable only inside the lock.
	StateFinalized
)

// Validation errors, rejected synchronously before any network activity.
// The submit control treats both as a silent no-op.
var (
	ErrEmptySubmission = errors.New("submission is empty")
	ErrStreamActive    = errors.New("a stream is already active")
	ErrNotIdle         = errors.New("operation only permitted while idle")
)

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// ChatBackend is the slice of the api client the controller consumes.
type ChatBackend interface {
	StreamChat(ctx context.Context, message, conversationID, contextText string, h stream.ChatHandler) error
	StreamAgentChat(ctx context.Context, message string, history []model.Message, h stream.ChatHandler) error
	ListConversations(ctx context.Context, symbol string) ([]api.RemoteConversation, error)
	CreateConversation(ctx context.Context, symbol string) (string, error)
	AppendMessage(ctx context.Context, conversationID string, msg model.Message) error
}

// TranscriptRecorder mirrors finalized turns into local history. Recording
// failures are logged, never surfaced; history is best-effort.
type TranscriptRecorder interface {
	RecordTurn(symbol string, mode string, msg model.Message) error
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config holds construction-time options for a session controller. The mode
// is an explicit injected value, not ambient state shared across sessions.
type Config struct {
	// Symbol is the ticker this session analyzes.
	Symbol string

	// Mode is the initial chat variant (default: ModeNormal).
	Mode Mode

	// Context carries symbol-specific grounding sent with normal-mode
	// questions (fundamentals, recent filings summary).
	Context string

	// Recorder, when set, receives every finalized turn.
	Recorder TranscriptRecorder

	// OnUpdate, when set, is invoked after every state change so a
	// presentation layer can re-render. Called without the lock held.
	OnUpdate func()
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller owns the per-symbol conversation state. All fields are guarded
// by mu; handler callbacks arrive on the stream goroutine and take the lock
// before touching anything.
type Controller struct {
	mu sync.Mutex

	symbol      string
	mode        Mode
	contextText string

	state          State
	conversationID string
	messages       []model.Message
	asm            *stream.Assembler

	// turn increments on every submit and cancel; stale stream callbacks
	// compare against it and become no-ops, so an aborted stream can never
	// finalize a message.
	turn uint64

	cancel context.CancelFunc

	backend  ChatBackend
	recorder TranscriptRecorder
	onUpdate func()
	logger   *slog.Logger
}

// New creates a controller for one symbol's session.
func New(backend ChatBackend, cfg Config) *Controller {
	mode := cfg.Mode
	if mode == "" {
		mode = ModeNormal
	}
	return &Controller{
		symbol:      cfg.Symbol,
		mode:        mode,
		contextText: cfg.Context,
		asm:         stream.NewAssembler(),
		backend:     backend,
		recorder:    cfg.Recorder,
		onUpdate:    cfg.OnUpdate,
		logger:      slog.Default().With("symbol", cfg.Symbol),
	}
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is the live view the presentation layer renders from.
type Snapshot struct {
	Symbol         string
	Mode           Mode
	ConversationID string
	Messages       []model.Message
	LiveText       string
	LiveSources    []string
	ThinkingStatus string
	IsStreaming    bool
}

// Snapshot returns a consistent copy of the session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs := make([]model.Message, len(c.messages))
	copy(msgs, c.messages)

	return Snapshot{
		Symbol:         c.symbol,
		Mode:           c.mode,
		ConversationID: c.conversationID,
		Messages:       msgs,
		LiveText:       c.asm.Text(),
		LiveSources:    c.asm.Sources(),
		ThinkingStatus: c.asm.Thinking(),
		IsStreaming:    c.streamingLocked(),
	}
}

func (c *Controller) streamingLocked() bool {
	return c.state == StateAwaitingFirstByte || c.state == StateStreaming
}

// SetOnUpdate installs the update hook after construction. The hook often
// needs a handle to something built after the controller (the running UI
// program), so it cannot always be passed in Config.
func (c *Controller) SetOnUpdate(fn func()) {
	c.mu.Lock()
	c.onUpdate = fn
	c.mu.Unlock()
}

// notify invokes the update hook outside the lock.
func (c *Controller) notify() {
	c.mu.Lock()
	fn := c.onUpdate
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// =============================================================================
// SUBMIT
// =============================================================================

// SubmitOptions adjusts a single submission.
type SubmitOptions struct {
	// SuppressEcho skips appending the user message to the log, for
	// programmatic submissions that already rendered their own prompt.
	SuppressEcho bool
}

// Submit starts a new turn. It validates synchronously (empty text and
// concurrent streams are rejected before any network activity), echoes the
// user message, and launches the stream. The turn completes asynchronously;
// observe progress through Snapshot or the OnUpdate hook.
func (c *Controller) Submit(text string, opts SubmitOptions) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ErrEmptySubmission
	}

	c.mu.Lock()
	if c.streamingLocked() {
		c.mu.Unlock()
		return ErrStreamActive
	}

	c.turn++
	myTurn := c.turn
	c.asm.Reset()
	c.state = StateAwaitingFirstByte

	userMsg := model.NewUserMessage(trimmed)
	if !opts.SuppressEcho {
		c.messages = append(c.messages, userMsg)
	}

	mode := c.mode
	convID := c.conversationID
	history := make([]model.Message, len(c.messages))
	copy(history, c.messages)

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	c.notify()
	c.recordTurn(mode, userMsg)

	go c.runStream(ctx, myTurn, trimmed, mode, convID, history, userMsg)
	return nil
}

// runStream drives one turn's transport read on its own goroutine.
func (c *Controller) runStream(ctx context.Context, myTurn uint64, text string, mode Mode, convID string, history []model.Message, userMsg model.Message) {
	// Mirror the user turn before streaming so the store sees turns in
	// conversation order.
	if mode == ModeAgent && convID != "" {
		if err := c.backend.AppendMessage(ctx, convID, userMsg); err != nil {
			c.logger.Warn("failed to mirror user turn", "error", err)
		}
	}

	h := &turnHandler{c: c, turn: myTurn}

	var err error
	if mode == ModeAgent {
		err = c.backend.StreamAgentChat(ctx, text, history, h)
	} else {
		err = c.backend.StreamChat(ctx, text, convID, c.contextText, h)
	}

	c.finishStream(myTurn, ctx, err)
}

// finishStream resolves the turn once the transport read returns.
func (c *Controller) finishStream(myTurn uint64, ctx context.Context, err error) {
	c.mu.Lock()
	if myTurn != c.turn {
		// Cancelled and superseded; the cancel path already cleaned up.
		c.mu.Unlock()
		return
	}
	c.cancel = nil

	switch {
	case ctx.Err() != nil:
		// Deliberate cancellation: no message at all.
		c.asm.Reset()
		c.state = StateIdle
		c.mu.Unlock()

	case err != nil:
		// Transport failure: error-role message, session stays usable.
		msg, ok := c.asm.FinalizeError(err.Error())
		c.finalizeLocked(msg, ok)

	default:
		// Natural stream end. If done already fired this is a no-op;
		// otherwise the non-empty buffer becomes the message (the remote
		// sometimes closes without a terminal record).
		msg, ok := c.asm.FinalizeEOF()
		c.finalizeLocked(msg, ok)
	}

	c.notify()
}

// finalizeLocked appends a finalized message and returns to idle. Expects
// the lock held; releases it.
func (c *Controller) finalizeLocked(msg model.Message, produced bool) {
	var mirror bool
	var convID string
	// Captured under the lock; the recorder runs after release and a mode
	// switch may land as soon as the session is idle again.
	mode := c.mode

	if produced {
		c.messages = append(c.messages, msg)
		mirror = c.mode == ModeAgent && c.conversationID != "" && !msg.IsError()
		convID = c.conversationID
	}
	// Finalized is transient; the session returns to idle for the next
	// turn in the same critical section. The assembler keeps its finalized
	// guard so frames still buffered from the transport stay inert.
	c.state = StateIdle
	c.asm.ClearTransient()
	c.mu.Unlock()

	if produced {
		c.recordTurn(mode, msg)
		if mirror {
			if err := c.backend.AppendMessage(context.Background(), convID, msg); err != nil {
				c.logger.Warn("failed to mirror assistant turn", "error", err)
			}
		}
	}
}

// recordTurn writes one finalized turn to local history, best-effort. The
// mode is passed in rather than read from the controller; callers run off
// the lock.
func (c *Controller) recordTurn(mode Mode, msg model.Message) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.RecordTurn(c.symbol, string(mode), msg); err != nil {
		c.logger.Warn("failed to record turn locally", "error", err)
	}
}

// =============================================================================
// EVENT HANDLING
// =============================================================================

// turnHandler binds one turn's stream callbacks to the controller. The turn
// number makes callbacks from an aborted stream inert.
type turnHandler struct {
	c    *Controller
	turn uint64
}

// apply runs fn under the lock if this turn is still current, marking the
// stream live on the first frame.
func (h *turnHandler) apply(fn func(c *Controller)) error {
	h.c.mu.Lock()
	if h.turn != h.c.turn {
		h.c.mu.Unlock()
		return nil
	}
	if h.c.state == StateAwaitingFirstByte {
		h.c.state = StateStreaming
	}
	fn(h.c)
	h.c.mu.Unlock()

	h.c.notify()
	return nil
}

func (h *turnHandler) OnConversationID(id string) error {
	return h.apply(func(c *Controller) {
		c.conversationID = id
	})
}

func (h *turnHandler) OnSources(sources []string) error {
	return h.apply(func(c *Controller) {
		c.asm.SetSources(sources)
	})
}

func (h *turnHandler) OnToken(text string) error {
	return h.apply(func(c *Controller) {
		c.asm.AddToken(text)
	})
}

func (h *turnHandler) OnThinking(status string) error {
	return h.apply(func(c *Controller) {
		c.asm.SetThinking(status)
	})
}

func (h *turnHandler) OnToolCall(call model.ToolCall) error {
	return h.apply(func(c *Controller) {
		c.asm.AddToolCall(call)
	})
}

func (h *turnHandler) OnDone(messageID string) error {
	h.c.mu.Lock()
	if h.turn != h.c.turn {
		h.c.mu.Unlock()
		return nil
	}

	msg, ok := h.c.asm.FinalizeDone(messageID)
	h.c.finalizeLocked(msg, ok)

	h.c.notify()
	return nil
}

func (h *turnHandler) OnStreamError(message string) error {
	h.c.mu.Lock()
	if h.turn != h.c.turn {
		h.c.mu.Unlock()
		return nil
	}

	msg, ok := h.c.asm.FinalizeError(message)
	h.c.finalizeLocked(msg, ok)

	h.c.notify()
	return nil
}

// =============================================================================
// CANCELLATION
// =============================================================================

// Cancel aborts the in-flight stream, if any. No further frames are
// dispatched and no message is finalized from the aborted turn. Safe to
// call when idle.
func (c *Controller) Cancel() {
	c.mu.Lock()
	if !c.streamingLocked() {
		c.mu.Unlock()
		return
	}

	// Invalidate the turn first so buffered frames already decoded become
	// no-ops, then stop the transport read.
	c.turn++
	cancel := c.cancel
	c.cancel = nil
	c.asm.Reset()
	c.state = StateIdle
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.notify()
}

// =============================================================================
// MODE AND LIFECYCLE
// =============================================================================

// Mode returns the current chat variant.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SwitchMode replaces the session wholesale with one in the given mode.
// Only permitted while idle; the control surface disables the toggle while
// streaming. Enabling agent mode resumes the symbol's most recent remote
// conversation or creates a new one, as a one-time side effect of the
// transition.
func (c *Controller) SwitchMode(ctx context.Context, mode Mode) error {
	c.mu.Lock()
	if c.streamingLocked() {
		c.mu.Unlock()
		return ErrNotIdle
	}
	if mode == c.mode {
		c.mu.Unlock()
		return nil
	}
	symbol := c.symbol
	c.mu.Unlock()

	var convID string
	var resumed []model.Message

	if mode == ModeAgent {
		convs, err := c.backend.ListConversations(ctx, symbol)
		if err != nil {
			return err
		}
		if len(convs) > 0 {
			convID = convs[0].ID
			resumed = convs[0].Messages
		} else {
			convID, err = c.backend.CreateConversation(ctx, symbol)
			if err != nil {
				return err
			}
		}
	}

	c.mu.Lock()
	if c.streamingLocked() {
		c.mu.Unlock()
		return ErrNotIdle
	}
	c.mode = mode
	c.conversationID = convID
	c.messages = resumed
	c.asm.Reset()
	c.mu.Unlock()

	c.notify()
	return nil
}

// NewChat tears the session down for a fresh exchange: aborts any in-flight
// stream, clears the log and conversation identity. In agent mode a new
// remote conversation is created so the next turn has somewhere to mirror.
func (c *Controller) NewChat(ctx context.Context) error {
	c.Cancel()

	c.mu.Lock()
	mode := c.mode
	symbol := c.symbol
	c.conversationID = ""
	c.messages = nil
	c.asm.Reset()
	c.mu.Unlock()

	if mode == ModeAgent {
		convID, err := c.backend.CreateConversation(ctx, symbol)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.conversationID = convID
		c.mu.Unlock()
	}

	c.notify()
	return nil
}

// Close aborts any in-flight stream; call on view unmount.
func (c *Controller) Close() {
	c.Cancel()
}
