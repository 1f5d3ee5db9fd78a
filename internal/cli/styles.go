// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jeranaias/bridgechat/internal/ui/styles"
)

func init() {
	lipgloss.SetColorProfile(ColorProfile())
}

// Shared styles for the line-based commands. The palette comes from the
// chat screen so both surfaces look alike.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(styles.Navy)

	labelStyle = lipgloss.NewStyle().
			Foreground(styles.TextSecondary).
			Width(18)

	valueStyle = lipgloss.NewStyle().
			Foreground(styles.TextPrimary)

	promptStyle = lipgloss.NewStyle().
			Foreground(styles.Teal).
			Bold(true)

	assistantStyle = lipgloss.NewStyle().
			Foreground(styles.Navy).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(styles.Green).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(styles.Signal).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(styles.Amber)

	dimStyle = lipgloss.NewStyle().
			Foreground(styles.TextMuted)

	emergencyStyle = lipgloss.NewStyle().
			Foreground(styles.TextInverse).
			Background(styles.Signal).
			Bold(true).
			Padding(0, 1)
)

// separator renders a rule of the given width.
func separator(width int) string {
	if width <= 0 {
		width = 60
	}
	return dimStyle.Render(strings.Repeat("-", width))
}

// labelled renders "label   value".
func labelled(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value)
}
