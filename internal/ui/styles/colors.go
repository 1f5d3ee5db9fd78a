// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import "github.com/charmbracelet/lipgloss"

// =============================================================================
// ACCENT COLORS
// =============================================================================

// Navy - primary accent, headers and the assistant label
var Navy = lipgloss.AdaptiveColor{Light: "#1B4F72", Dark: "#5DADE2"}

// Teal - user highlights, prompts and links
var Teal = lipgloss.AdaptiveColor{Light: "#117A65", Dark: "#48C9B0"}

// Signal - emergency mode and critical alerts
var Signal = lipgloss.AdaptiveColor{Light: "#C0392B", Dark: "#FF6B5B"}

// Amber - warnings and rate-limit countdowns
var Amber = lipgloss.AdaptiveColor{Light: "#B9770E", Dark: "#F5B041"}

// Green - success
var Green = lipgloss.AdaptiveColor{Light: "#1E8449", Dark: "#58D68D"}

// =============================================================================
// SURFACES AND TEXT
// =============================================================================

var (
	SurfaceDim    = lipgloss.AdaptiveColor{Light: "#EEF3F7", Dark: "#0F1A24"}
	Overlay       = lipgloss.AdaptiveColor{Light: "#C9D6E1", Dark: "#29455E"}
	TextPrimary   = lipgloss.AdaptiveColor{Light: "#1C2833", Dark: "#D8E3EC"}
	TextSecondary = lipgloss.AdaptiveColor{Light: "#5F7485", Dark: "#9DB2C3"}
	TextMuted     = lipgloss.AdaptiveColor{Light: "#8A9BA8", Dark: "#6B8193"}
	TextInverse   = lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#0F1A24"}
)

// =============================================================================
// MESSAGE BUBBLES
// =============================================================================

var (
	UserBubbleBorder      = lipgloss.AdaptiveColor{Light: "#48A9A6", Dark: "#48C9B0"}
	AssistantBubbleBorder = lipgloss.AdaptiveColor{Light: "#5499C7", Dark: "#2E86C1"}
	SolutionBorder        = lipgloss.AdaptiveColor{Light: "#A9CCE3", Dark: "#21618C"}
)

// =============================================================================
// STATUS INDICATORS
// =============================================================================

// StatusIndicatorSet contains text markers for status states.
type StatusIndicatorSet struct {
	Success string
	Error   string
	Warning string
	Info    string
	Pending string
}

// StatusIndicators are ASCII-only so they survive any terminal.
var StatusIndicators = StatusIndicatorSet{
	Success: "[OK]",
	Error:   "[X]",
	Warning: "[!]",
	Info:    "[i]",
	Pending: "[ ]",
}

// RenderSuccess renders message with the success marker.
func RenderSuccess(message string) string {
	return lipgloss.NewStyle().Foreground(Green).Bold(true).Render(StatusIndicators.Success + " " + message)
}

// RenderError renders message with the error marker.
func RenderError(message string) string {
	return lipgloss.NewStyle().Foreground(Signal).Bold(true).Render(StatusIndicators.Error + " " + message)
}

// RenderWarning renders message with the warning marker.
func RenderWarning(message string) string {
	return lipgloss.NewStyle().Foreground(Amber).Bold(true).Render(StatusIndicators.Warning + " " + message)
}

// RenderInfo renders message with the info marker.
func RenderInfo(message string) string {
	return lipgloss.NewStyle().Foreground(Navy).Bold(true).Render(StatusIndicators.Info + " " + message)
}

// RenderLink renders text underlined.
func RenderLink(text string) string {
	return lipgloss.NewStyle().Foreground(Teal).Underline(true).Render(text)
}
