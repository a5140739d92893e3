// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/equitydesk/internal/generate"
	"github.com/jeranaias/equitydesk/internal/model"
	"github.com/jeranaias/equitydesk/internal/session"
	"github.com/jeranaias/equitydesk/internal/ui/styles"
	"github.com/jeranaias/equitydesk/internal/util"
)

// =============================================================================
// MESSAGES
// =============================================================================

// RefreshMsg tells the view to re-read the controller snapshots. The
// controllers send it through the program from their OnUpdate hooks.
type RefreshMsg struct{}

// ConfigReloadedMsg applies presentation settings from a live config
// reload without restarting the program.
type ConfigReloadedMsg struct {
	Theme          *styles.Theme
	ShowTimestamps bool
}

// flashMsg shows a transient status line notice.
type flashMsg struct{ text string }

// clearFlashMsg removes the notice.
type clearFlashMsg struct{}

// =============================================================================
// MODEL
// =============================================================================

const (
	inputCharLimit = 4000
	briefPaneLines = 10
)

// Model is the top-level Bubble Tea model for one symbol's desk view.
type Model struct {
	theme *styles.Theme

	session *session.Controller
	brief   *generate.Controller

	input    textinput.Model
	spin     spinner.Model
	viewport viewport.Model

	width  int
	height int
	ready  bool
	flash  string

	showTimestamps bool
}

// New creates the desk view. The controllers are owned by the caller; the
// model only reads snapshots and forwards key presses.
func New(theme *styles.Theme, sess *session.Controller, brief *generate.Controller, showTimestamps bool) Model {
	ti := textinput.New()
	ti.Placeholder = "Ask about this company..."
	ti.CharLimit = inputCharLimit
	ti.Prompt = theme.InputPrompt.Render("> ")
	ti.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	return Model{
		theme:          theme,
		session:        sess,
		brief:          brief,
		input:          ti,
		spin:           sp,
		showTimestamps: showTimestamps,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spin.Tick)
}

// =============================================================================
// UPDATE
// =============================================================================

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		transcriptHeight := m.height - briefPaneLines - 6
		if transcriptHeight < 3 {
			transcriptHeight = 3
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, transcriptHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = transcriptHeight
		}
		m.refreshTranscript()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case RefreshMsg:
		m.refreshTranscript()
		return m, nil

	case ConfigReloadedMsg:
		m.theme = msg.Theme
		m.showTimestamps = msg.ShowTimestamps
		m.input.Prompt = m.theme.InputPrompt.Render("> ")
		m.refreshTranscript()
		return m, nil

	case flashMsg:
		m.flash = msg.text
		return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg {
			return clearFlashMsg{}
		})

	case clearFlashMsg:
		m.flash = ""
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {

	case "ctrl+c":
		return m, tea.Quit

	case "esc":
		// Abort whichever stream is running; a no-op otherwise.
		m.session.Cancel()
		m.brief.Cancel()
		return m, nil

	case "enter":
		text := m.input.Value()
		if err := m.session.Submit(text, session.SubmitOptions{}); err != nil {
			// Empty submissions and mid-stream submissions are silent
			// no-ops; the input keeps its text for the latter.
			if errors.Is(err, session.ErrEmptySubmission) {
				m.input.SetValue("")
			}
			return m, nil
		}
		m.input.SetValue("")
		m.refreshTranscript()
		m.viewport.GotoBottom()
		return m, nil

	case "ctrl+a":
		return m.toggleMode()

	case "ctrl+n":
		if err := m.session.NewChat(context.Background()); err != nil {
			return m, func() tea.Msg {
				return flashMsg{text: "new chat failed: " + err.Error()}
			}
		}
		m.refreshTranscript()
		return m, nil

	case "ctrl+g":
		if err := m.brief.Generate(true); err != nil {
			return m, nil
		}
		return m, nil

	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) toggleMode() (tea.Model, tea.Cmd) {
	target := session.ModeAgent
	if m.session.Mode() == session.ModeAgent {
		target = session.ModeNormal
	}
	if err := m.session.SwitchMode(context.Background(), target); err != nil {
		return m, func() tea.Msg {
			return flashMsg{text: "mode switch failed: " + err.Error()}
		}
	}
	m.refreshTranscript()
	return m, nil
}

// refreshTranscript re-renders the viewport content from the session
// snapshot, following the tail while a stream is live.
func (m *Model) refreshTranscript() {
	if !m.ready {
		return
	}
	wasAtBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderTranscript())
	if wasAtBottom {
		m.viewport.GotoBottom()
	}
}

// =============================================================================
// VIEW
// =============================================================================

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "loading..."
	}

	snap := m.session.Snapshot()

	var b strings.Builder
	b.WriteString(m.renderHeader(snap))
	b.WriteString("\n")
	b.WriteString(m.renderBriefPane())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.renderActivityLine(snap))
	b.WriteString(m.theme.InputContainer.Width(m.width).Render(m.input.View()))
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar(snap))
	return b.String()
}

func (m Model) renderHeader(snap session.Snapshot) string {
	title := m.theme.Header.Render("equitydesk " + snap.Symbol)

	var mode string
	if snap.Mode == session.ModeAgent {
		mode = m.theme.ModeAgent.Render("AGENT")
	} else {
		mode = m.theme.ModeNormal.Render("NORMAL")
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, title, m.theme.HeaderMode.Render(mode))
}

func (m Model) renderBriefPane() string {
	snap := m.brief.Snapshot()

	var body string
	switch snap.State {
	case generate.StateStreaming:
		body = snap.Text
		if body == "" {
			body = m.spin.View() + " generating brief..."
		}
	case generate.StateComplete:
		body = snap.Text
	case generate.StateError:
		body = m.theme.ErrorBody.Render("brief failed: " + snap.Err)
	default:
		body = m.theme.BriefMeta.Render("no brief yet; press ctrl+g to generate")
	}

	title := m.theme.BriefTitle.Render("Analysis Brief")
	if snap.State == generate.StateComplete {
		meta := snap.GeneratedAt.Format("Jan 2 15:04")
		if snap.Cached {
			meta += " " + m.theme.BriefCached.Render("(cached)")
		}
		title += " " + m.theme.BriefMeta.Render(meta)
	}

	width := m.width - 4
	if width < 10 {
		width = 10
	}
	content := title + "\n" + clampLines(body, briefPaneLines-3)
	return m.theme.BriefPane.Width(width).Render(content)
}

func (m Model) renderTranscript() string {
	snap := m.session.Snapshot()

	var b strings.Builder
	for i, msg := range snap.Messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.renderMessage(msg))
	}

	// Live preview of the in-flight answer.
	if snap.IsStreaming && snap.LiveText != "" {
		if len(snap.Messages) > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.theme.AssistantLabel.Render(model.RoleAssistant.DisplayName()))
		b.WriteString("\n")
		b.WriteString(m.theme.MessageBody.Render(snap.LiveText))
	}
	return b.String()
}

func (m Model) renderMessage(msg model.Message) string {
	var b strings.Builder

	var label string
	switch {
	case msg.IsError():
		label = m.theme.ErrorLabel.Render(msg.Role.DisplayName())
	case msg.Role == model.RoleUser:
		label = m.theme.UserLabel.Render(msg.Role.DisplayName())
	default:
		label = m.theme.AssistantLabel.Render(msg.Role.DisplayName())
	}
	b.WriteString(label)

	if m.showTimestamps && !msg.Timestamp.IsZero() {
		b.WriteString(" ")
		b.WriteString(m.theme.Timestamp.Render(msg.Timestamp.Format("15:04:05")))
	}
	b.WriteString("\n")

	if msg.IsError() {
		b.WriteString(m.theme.ErrorBody.Render(msg.Content))
	} else {
		b.WriteString(m.theme.MessageBody.Render(msg.Content))
	}

	for _, call := range msg.ToolCalls {
		b.WriteString("\n")
		b.WriteString(m.theme.ToolCall.Render("⚙ " + call.Tool))
	}

	if len(msg.Sources) > 0 {
		b.WriteString("\n")
		b.WriteString(m.theme.Sources.Render("sources: " + strings.Join(msg.Sources, ", ")))
	}
	return b.String()
}

// renderActivityLine shows the spinner with the thinking status while a
// stream is live, or the transient flash notice.
func (m Model) renderActivityLine(snap session.Snapshot) string {
	switch {
	case snap.IsStreaming && snap.ThinkingStatus != "":
		return m.spin.View() + " " + m.theme.Thinking.Render(snap.ThinkingStatus) + "\n"
	case snap.IsStreaming:
		return m.spin.View() + " " + m.theme.Thinking.Render("analyzing...") + "\n"
	case m.flash != "":
		// Backend error text can run long; keep the notice to one line.
		return m.theme.ErrorBody.Render(util.TruncateRunes(m.flash, 120)) + "\n"
	}
	return "\n"
}

func (m Model) renderStatusBar(snap session.Snapshot) string {
	parts := []string{
		m.theme.StatusKey.Render("enter") + m.theme.StatusDesc.Render(" send"),
		m.theme.StatusKey.Render("esc") + m.theme.StatusDesc.Render(" cancel"),
		m.theme.StatusKey.Render("^a") + m.theme.StatusDesc.Render(" mode"),
		m.theme.StatusKey.Render("^n") + m.theme.StatusDesc.Render(" new chat"),
		m.theme.StatusKey.Render("^g") + m.theme.StatusDesc.Render(" regenerate"),
		m.theme.StatusKey.Render("^c") + m.theme.StatusDesc.Render(" quit"),
	}
	line := strings.Join(parts, "  ")
	if snap.ConversationID != "" {
		line += "  " + m.theme.StatusDesc.Render(
			util.TruncateWidth(fmt.Sprintf("conv %s", snap.ConversationID), 24))
	}
	return m.theme.StatusBar.Width(m.width).Render(line)
}

// clampLines caps text to maxLines, appending a truncation mark.
func clampLines(s string, maxLines int) string {
	if maxLines <= 0 {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) <= maxLines {
		return s
	}
	return strings.Join(lines[:maxLines], "\n") + " …"
}
