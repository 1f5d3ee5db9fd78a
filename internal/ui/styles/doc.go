// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles holds the colors and Lip Gloss styles of the chat TUI.

Colors are lipgloss.AdaptiveColor values so the same palette works on light
and dark terminals. Theme detects the terminal profile through termenv and
degrades to plain ASCII markers when color is unavailable.

# Usage

	theme := styles.NewTheme()
	theme.SetSize(msg.Width, msg.Height)
	fmt.Println(theme.UserBubble.Render(text))

Status helpers (RenderSuccess, RenderError, RenderWarning, RenderInfo) pair
each color with an ASCII marker so state is readable without color.
*/
package styles
