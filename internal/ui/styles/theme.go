// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the equitydesk TUI.
package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// =============================================================================
// PALETTE
// =============================================================================

var (
	Cyan    = lipgloss.Color("#00B4D8")
	Green   = lipgloss.Color("#52B788")
	Red     = lipgloss.Color("#E63946")
	Amber   = lipgloss.Color("#F4A261")
	Purple  = lipgloss.Color("#9D4EDD")
	Text    = lipgloss.Color("#E0E0E0")
	TextDim = lipgloss.Color("#808080")
	Surface = lipgloss.Color("#1E1E2E")

	lightText    = lipgloss.Color("#1A1A2E")
	lightTextDim = lipgloss.Color("#6A6A7A")
	lightSurface = lipgloss.Color("#F0F0F5")
)

// =============================================================================
// THEME
// =============================================================================

// Theme holds the styled components for the application. It detects the
// terminal's color capability and adjusts accordingly.
type Theme struct {
	IsDark       bool
	ColorProfile termenv.Profile

	// Header and status bar
	Header      lipgloss.Style
	HeaderMode  lipgloss.Style
	StatusBar   lipgloss.Style
	StatusKey   lipgloss.Style
	StatusDesc  lipgloss.Style
	ModeNormal  lipgloss.Style
	ModeAgent   lipgloss.Style

	// Transcript
	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	ErrorLabel     lipgloss.Style
	MessageBody    lipgloss.Style
	ErrorBody      lipgloss.Style
	Timestamp      lipgloss.Style
	Sources        lipgloss.Style
	ToolCall       lipgloss.Style
	Thinking       lipgloss.Style

	// Brief pane
	BriefPane   lipgloss.Style
	BriefTitle  lipgloss.Style
	BriefMeta   lipgloss.Style
	BriefCached lipgloss.Style

	// Input
	InputContainer lipgloss.Style
	InputPrompt    lipgloss.Style
}

// NewTheme creates a theme with all styles configured. name selects the
// configured variant; "auto" background detection decides light text colors.
func NewTheme(name string) *Theme {
	colorProfile := termenv.ColorProfile()
	isDark := name != "light"

	t := &Theme{
		IsDark:       isDark,
		ColorProfile: colorProfile,
	}
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	text := Text
	textDim := TextDim
	surface := Surface
	if !t.IsDark {
		text = lightText
		textDim = lightTextDim
		surface = lightSurface
	}

	t.Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan).
		Padding(0, 1)
	t.HeaderMode = lipgloss.NewStyle().
		Foreground(textDim).
		Padding(0, 1)

	t.StatusBar = lipgloss.NewStyle().
		Foreground(textDim).
		Background(surface).
		Padding(0, 1)
	t.StatusKey = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)
	t.StatusDesc = lipgloss.NewStyle().
		Foreground(textDim)
	t.ModeNormal = lipgloss.NewStyle().
		Bold(true).
		Foreground(Green)
	t.ModeAgent = lipgloss.NewStyle().
		Bold(true).
		Foreground(Purple)

	t.UserLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(Green)
	t.AssistantLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)
	t.ErrorLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(Red)
	t.MessageBody = lipgloss.NewStyle().
		Foreground(text)
	t.ErrorBody = lipgloss.NewStyle().
		Foreground(Red)
	t.Timestamp = lipgloss.NewStyle().
		Foreground(textDim)
	t.Sources = lipgloss.NewStyle().
		Foreground(textDim).
		Italic(true)
	t.ToolCall = lipgloss.NewStyle().
		Foreground(Amber)
	t.Thinking = lipgloss.NewStyle().
		Foreground(Purple).
		Italic(true)

	t.BriefPane = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(textDim).
		Padding(0, 1)
	t.BriefTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)
	t.BriefMeta = lipgloss.NewStyle().
		Foreground(textDim)
	t.BriefCached = lipgloss.NewStyle().
		Foreground(Amber)

	t.InputContainer = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderTop(true).
		BorderForeground(textDim)
	t.InputPrompt = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)
}
