// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/equitydesk/internal/api"
	"github.com/jeranaias/equitydesk/internal/generate"
	"github.com/jeranaias/equitydesk/internal/model"
	"github.com/jeranaias/equitydesk/internal/session"
	"github.com/jeranaias/equitydesk/internal/stream"
	"github.com/jeranaias/equitydesk/internal/ui/styles"
)

// stubBackend satisfies both controller backends with canned responses.
type stubBackend struct {
	tokens []string
}

func (b *stubBackend) StreamChat(ctx context.Context, message, conversationID, contextText string, h stream.ChatHandler) error {
	for _, tok := range b.tokens {
		h.OnToken(tok)
	}
	h.OnDone("m1")
	return nil
}

func (b *stubBackend) StreamAgentChat(ctx context.Context, message string, history []model.Message, h stream.ChatHandler) error {
	return b.StreamChat(ctx, message, "", "", h)
}

func (b *stubBackend) ListConversations(ctx context.Context, symbol string) ([]api.RemoteConversation, error) {
	return nil, nil
}

func (b *stubBackend) CreateConversation(ctx context.Context, symbol string) (string, error) {
	return "c1", nil
}

func (b *stubBackend) AppendMessage(ctx context.Context, conversationID string, msg model.Message) error {
	return nil
}

func (b *stubBackend) FetchCachedBrief(ctx context.Context, symbol string) (*model.Brief, error) {
	return &model.Brief{Symbol: symbol}, nil
}

func (b *stubBackend) StreamBrief(ctx context.Context, symbol string, force bool, h stream.GenerationHandler) error {
	h.OnContent("brief text")
	return nil
}

func newTestModel(backend *stubBackend) Model {
	sess := session.New(backend, session.Config{Symbol: "NVDA"})
	brief := generate.New(backend, generate.Config{Symbol: "NVDA"})
	return New(styles.NewTheme("dark"), sess, brief, false)
}

func sized(m Model) Model {
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return updated.(Model)
}

// =============================================================================
// RENDERING
// =============================================================================

func TestView_BeforeSizeIsPlaceholder(t *testing.T) {
	m := newTestModel(&stubBackend{})
	if got := m.View(); got != "loading..." {
		t.Errorf("View = %q before first WindowSizeMsg", got)
	}
}

func TestRenderMessage_RolesAndContent(t *testing.T) {
	m := sized(newTestModel(&stubBackend{}))

	user := m.renderMessage(model.NewUserMessage("what is the P/E?"))
	if !strings.Contains(user, "You") || !strings.Contains(user, "what is the P/E?") {
		t.Errorf("user message render missing label or content: %q", user)
	}

	asst := model.NewMessage(model.RoleAssistant, "P/E is 18.")
	asst.Sources = []string{"10-K"}
	asst.ToolCalls = []model.ToolCall{{Tool: "lookup_peer"}}
	got := m.renderMessage(asst)
	for _, want := range []string{"Analyst", "P/E is 18.", "lookup_peer", "sources: 10-K"} {
		if !strings.Contains(got, want) {
			t.Errorf("assistant render missing %q:\n%s", want, got)
		}
	}

	errMsg := m.renderMessage(model.NewErrorMessage("analysis failed: boom"))
	if !strings.Contains(errMsg, "Error") || !strings.Contains(errMsg, "boom") {
		t.Errorf("error render: %q", errMsg)
	}
}

func TestRenderStatusBar_TruncatesConversationID(t *testing.T) {
	m := sized(newTestModel(&stubBackend{}))
	long := strings.Repeat("c", 64)

	bar := m.renderStatusBar(session.Snapshot{ConversationID: long})
	if strings.Contains(bar, long) {
		t.Error("long conversation id should be truncated in the status bar")
	}
	if !strings.Contains(bar, "conv ") {
		t.Errorf("status bar missing conversation marker:\n%s", bar)
	}
}

func TestClampLines(t *testing.T) {
	in := "a\nb\nc\nd"
	if got := clampLines(in, 2); got != "a\nb …" {
		t.Errorf("clampLines = %q", got)
	}
	if got := clampLines(in, 10); got != in {
		t.Errorf("clampLines should pass short text through, got %q", got)
	}
	if got := clampLines(in, 0); got != "" {
		t.Errorf("clampLines(0) = %q", got)
	}
}

// =============================================================================
// INTERACTION
// =============================================================================

func TestUpdate_EnterSubmitsAndClearsInput(t *testing.T) {
	m := sized(newTestModel(&stubBackend{tokens: []string{"P/E is 18."}}))
	m.input.SetValue("what is the P/E?")

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(Model)

	if m.input.Value() != "" {
		t.Errorf("input not cleared after submit: %q", m.input.Value())
	}

	// The scripted stream finishes almost immediately; wait for the turn.
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap := m.session.Snapshot()
		if !snap.IsStreaming && len(snap.Messages) == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("turn did not complete: %+v", snap)
		}
		time.Sleep(5 * time.Millisecond)
	}

	updated, _ = m.Update(RefreshMsg{})
	m = updated.(Model)
	view := m.View()
	if !strings.Contains(view, "P/E is 18.") {
		t.Error("view does not show the finalized answer")
	}
}

func TestUpdate_EmptyEnterIsNoOp(t *testing.T) {
	m := sized(newTestModel(&stubBackend{}))
	m.input.SetValue("   ")

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(Model)

	if len(m.session.Snapshot().Messages) != 0 {
		t.Error("empty submission must not add messages")
	}
	if m.input.Value() != "" {
		t.Error("whitespace-only input should clear")
	}
}

func TestUpdate_CtrlCQuits(t *testing.T) {
	m := sized(newTestModel(&stubBackend{}))

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("ctrl+c must produce a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("ctrl+c must quit")
	}
}

func TestUpdate_ModeToggle(t *testing.T) {
	m := sized(newTestModel(&stubBackend{}))

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlA})
	m = updated.(Model)
	if m.session.Mode() != session.ModeAgent {
		t.Error("ctrl+a should enable agent mode")
	}

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlA})
	m = updated.(Model)
	if m.session.Mode() != session.ModeNormal {
		t.Error("second ctrl+a should return to normal mode")
	}
}
