// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds the styled components of the chat screen.
type Theme struct {
	IsDark       bool
	ColorProfile termenv.Profile

	Width  int
	Height int

	// Header
	Header         lipgloss.Style
	HeaderTitle    lipgloss.Style
	HeaderSubtitle lipgloss.Style
	EmergencyBadge lipgloss.Style
	TokenBadge     lipgloss.Style

	// Messages
	UserLabel       lipgloss.Style
	AssistantLabel  lipgloss.Style
	UserBubble      lipgloss.Style
	AssistantBubble lipgloss.Style
	Timestamp       lipgloss.Style
	Thinking        lipgloss.Style
	Cursor          lipgloss.Style
	Meta            lipgloss.Style

	// Solution cards
	SolutionCard  lipgloss.Style
	SolutionTitle lipgloss.Style
	SolutionStep  lipgloss.Style
	Source        lipgloss.Style

	// Banner
	ErrorBanner   lipgloss.Style
	WarningBanner lipgloss.Style
	BannerHint    lipgloss.Style

	// Input and status bar
	InputContainer lipgloss.Style
	InputPrompt    lipgloss.Style
	StatusBar      lipgloss.Style
	StatusText     lipgloss.Style
	Muted          lipgloss.Style
	Empty          lipgloss.Style
}

// NewTheme creates a theme for the current terminal.
func NewTheme() *Theme {
	return NewThemeWithProfile(termenv.ColorProfile(), termenv.HasDarkBackground())
}

// NewThemeWithProfile creates a theme for an explicit profile, which tests
// use to get stable output.
func NewThemeWithProfile(profile termenv.Profile, dark bool) *Theme {
	lipgloss.SetColorProfile(profile)
	lipgloss.SetHasDarkBackground(dark)

	t := &Theme{IsDark: dark, ColorProfile: profile}
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		Padding(0, 1)
	t.HeaderTitle = lipgloss.NewStyle().Bold(true).Foreground(Navy)
	t.HeaderSubtitle = lipgloss.NewStyle().Foreground(TextSecondary).Italic(true)
	t.EmergencyBadge = lipgloss.NewStyle().
		Bold(true).
		Foreground(TextInverse).
		Background(Signal).
		Padding(0, 1)
	t.TokenBadge = lipgloss.NewStyle().Foreground(TextSecondary)

	t.UserLabel = lipgloss.NewStyle().Bold(true).Foreground(Teal)
	t.AssistantLabel = lipgloss.NewStyle().Bold(true).Foreground(Navy)
	t.UserBubble = lipgloss.NewStyle().
		Foreground(TextPrimary).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(UserBubbleBorder).
		Padding(0, 1).
		MarginLeft(4)
	t.AssistantBubble = lipgloss.NewStyle().
		Foreground(TextPrimary).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(AssistantBubbleBorder).
		Padding(0, 1).
		MarginRight(4)
	t.Timestamp = lipgloss.NewStyle().Foreground(TextMuted)
	t.Thinking = lipgloss.NewStyle().Foreground(TextSecondary).Italic(true)
	t.Cursor = lipgloss.NewStyle().Foreground(Teal).Bold(true)
	t.Meta = lipgloss.NewStyle().Foreground(TextMuted).Italic(true)

	t.SolutionCard = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderTop(false).
		BorderRight(false).
		BorderBottom(false).
		BorderForeground(SolutionBorder).
		PaddingLeft(1).
		MarginTop(1)
	t.SolutionTitle = lipgloss.NewStyle().Bold(true).Foreground(TextPrimary)
	t.SolutionStep = lipgloss.NewStyle().Foreground(TextSecondary)
	t.Source = lipgloss.NewStyle().Foreground(Teal).Underline(true)

	t.ErrorBanner = lipgloss.NewStyle().
		Foreground(Signal).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(Signal).
		Padding(0, 1)
	t.WarningBanner = t.ErrorBanner.
		Foreground(Amber).
		BorderForeground(Amber)
	t.BannerHint = lipgloss.NewStyle().Foreground(TextMuted)

	t.InputContainer = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay).
		Padding(0, 1)
	t.InputPrompt = lipgloss.NewStyle().Foreground(Teal).Bold(true)
	t.StatusBar = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextSecondary).
		Padding(0, 1)
	t.StatusText = lipgloss.NewStyle().Foreground(TextPrimary)
	t.Muted = lipgloss.NewStyle().Foreground(TextMuted)
	t.Empty = lipgloss.NewStyle().Foreground(TextSecondary).Italic(true).Padding(1, 2)
}

// SetSize updates the theme dimensions for responsive layouts.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// BubbleWidth is the width available to a message bubble.
func (t *Theme) BubbleWidth() int {
	w := t.Width - 8
	switch {
	case w < 20:
		return 20
	case w > 100:
		return 100
	}
	return w
}

// GetLayoutMode returns the current layout mode based on width.
func (t *Theme) GetLayoutMode() LayoutMode {
	if t.Width < 60 {
		return LayoutNarrow
	}
	if t.Width < 100 {
		return LayoutMedium
	}
	return LayoutWide
}

// LayoutMode represents the current responsive layout mode.
type LayoutMode int

const (
	LayoutNarrow LayoutMode = iota // < 60 columns
	LayoutMedium                   // 60-100 columns
	LayoutWide                     // > 100 columns
)
