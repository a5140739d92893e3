// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/equitydesk/internal/model"
)

// collectHandler implements both event handler interfaces for tests.
type collectHandler struct {
	tokens   []string
	content  []string
	sources  []string
	calls    []model.ToolCall
	doneID   string
	errMsg   string
	cached   bool
	genAt    time.Time
	metadata int
}

func (h *collectHandler) OnConversationID(id string) error { return nil }
func (h *collectHandler) OnSources(s []string) error       { h.sources = s; return nil }
func (h *collectHandler) OnToken(t string) error           { h.tokens = append(h.tokens, t); return nil }
func (h *collectHandler) OnThinking(s string) error        { return nil }
func (h *collectHandler) OnToolCall(c model.ToolCall) error {
	h.calls = append(h.calls, c)
	return nil
}
func (h *collectHandler) OnDone(id string) error { h.doneID = id; return nil }
func (h *collectHandler) OnStreamError(m string) error {
	h.errMsg = m
	return nil
}
func (h *collectHandler) OnMetadata(cached bool, at time.Time) error {
	h.metadata++
	h.cached = cached
	h.genAt = at
	return nil
}
func (h *collectHandler) OnContent(c string) error {
	h.content = append(h.content, c)
	return nil
}

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.RequestsPerSecond = 1000 // don't throttle tests
	return NewClientWithConfig(cfg)
}

// =============================================================================
// GENERATION ENDPOINT
// =============================================================================

func TestFetchCachedBrief(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/analysis" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"analysis":"NVDA brief","generated_at":"2026-08-20T14:00:00Z","cached":true}`))
	})

	brief, err := client.FetchCachedBrief(context.Background(), "NVDA")
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if brief.Content != "NVDA brief" || !brief.Cached {
		t.Errorf("brief = %+v", brief)
	}
	if brief.Symbol != "NVDA" {
		t.Errorf("Symbol = %q", brief.Symbol)
	}
}

func TestFetchCachedBrief_EmptyCache(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"analysis":"","cached":false}`))
	})

	brief, err := client.FetchCachedBrief(context.Background(), "NVDA")
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if !brief.IsEmpty() {
		t.Error("never-analyzed symbol should yield an empty brief")
	}
}

func TestStreamBrief_DispatchesEvents(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data: {\"type\":\"metadata\",\"cached\":false,\"generated_at\":\"2026-08-20T14:00:00Z\"}\n" +
			"data: {\"type\":\"chunk\",\"content\":\"Revenue \"}\n" +
			"data: {\"type\":\"chunk\",\"content\":\"grew 12%.\"}\n"))
	})

	h := &collectHandler{}
	if err := client.StreamBrief(context.Background(), "NVDA", false, h); err != nil {
		t.Fatalf("error: %v", err)
	}

	if h.metadata != 1 {
		t.Errorf("metadata events = %d, want 1", h.metadata)
	}
	if got := strings.Join(h.content, ""); got != "Revenue grew 12%." {
		t.Errorf("content = %q", got)
	}
}

func TestStreamBrief_NonOKStatus(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"generation backend down"}`))
	})

	err := client.StreamBrief(context.Background(), "NVDA", false, &collectHandler{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "generation backend down") {
		t.Errorf("error = %v, want backend message", err)
	}
}

// =============================================================================
// CHAT ENDPOINT
// =============================================================================

func TestStreamChat_DispatchesEvents(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q", r.URL.Path)
		}
		// Terminal record deliberately lacks a trailing newline; the
		// decoder must still deliver it.
		w.Write([]byte("data: {\"type\":\"conversation_id\",\"data\":\"c1\"}\n" +
			"data: {\"type\":\"sources\",\"data\":[\"10-K\"]}\n" +
			"data: {\"type\":\"token\",\"data\":\"P/E \"}\n" +
			"data: {\"type\":\"token\",\"data\":\"is 18.\"}\n" +
			"data: {\"type\":\"done\",\"data\":{\"message_id\":\"m1\"}}"))
	})

	h := &collectHandler{}
	err := client.StreamChat(context.Background(), "What's the P/E?", "", "ctx", h)
	if err != nil {
		t.Fatalf("error: %v", err)
	}

	if got := strings.Join(h.tokens, ""); got != "P/E is 18." {
		t.Errorf("tokens = %q", got)
	}
	if h.doneID != "m1" {
		t.Errorf("doneID = %q, want 'm1'", h.doneID)
	}
	if len(h.sources) != 1 {
		t.Errorf("sources = %v", h.sources)
	}
}

func TestStreamAgentChat_FiltersErrorTurns(t *testing.T) {
	var gotBody string
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = string(buf)
		w.Write([]byte("data: {\"type\":\"done\",\"data\":{}}\n"))
	})

	history := []model.Message{
		model.NewUserMessage("hello"),
		model.NewErrorMessage("transient failure"),
		model.NewMessage(model.RoleAssistant, "hi"),
	}
	err := client.StreamAgentChat(context.Background(), "next question", history, &collectHandler{})
	if err != nil {
		t.Fatalf("error: %v", err)
	}

	if strings.Contains(gotBody, "transient failure") {
		t.Error("error-role turns must not be sent as agent history")
	}
	if !strings.Contains(gotBody, "\"history\"") {
		t.Errorf("body = %q, want history field", gotBody)
	}
}

func TestStreamChat_CancelledContext(t *testing.T) {
	release := make(chan struct{})
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data: {\"type\":\"token\",\"data\":\"a\"}\n"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := client.StreamChat(ctx, "q", "", "", &collectHandler{})
	if err == nil {
		t.Fatal("cancelled stream must return an error")
	}
}

// =============================================================================
// CONVERSATION STORE
// =============================================================================

func TestConversationStoreRoundTrip(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/conversations":
			if r.URL.Query().Get("symbol") != "NVDA" {
				t.Errorf("symbol = %q", r.URL.Query().Get("symbol"))
			}
			w.Write([]byte(`{"conversations":[{"id":"c1","symbol":"NVDA"}]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/conversations":
			w.Write([]byte(`{"id":"c2"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/conversations/c2/messages":
			w.Write([]byte(`{}`))
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	ctx := context.Background()

	convs, err := client.ListConversations(ctx, "NVDA")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(convs) != 1 || convs[0].ID != "c1" {
		t.Errorf("conversations = %+v", convs)
	}

	id, err := client.CreateConversation(ctx, "NVDA")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != "c2" {
		t.Errorf("id = %q", id)
	}

	if err := client.AppendMessage(ctx, "c2", model.NewUserMessage("hi")); err != nil {
		t.Fatalf("append: %v", err)
	}
}

func TestAppendMessage_NotFound(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	err := client.AppendMessage(context.Background(), "missing", model.NewUserMessage("hi"))
	if !IsNotFound(err) {
		t.Errorf("err = %v, want not-found", err)
	}
}
