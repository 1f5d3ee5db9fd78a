// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"testing"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
)

func TestLayoutMode(t *testing.T) {
	theme := NewThemeWithProfile(termenv.Ascii, true)

	theme.SetSize(40, 20)
	assert.Equal(t, LayoutNarrow, theme.GetLayoutMode())
	theme.SetSize(80, 20)
	assert.Equal(t, LayoutMedium, theme.GetLayoutMode())
	theme.SetSize(140, 20)
	assert.Equal(t, LayoutWide, theme.GetLayoutMode())
}

func TestBubbleWidth_Clamped(t *testing.T) {
	theme := NewThemeWithProfile(termenv.Ascii, true)

	theme.SetSize(10, 10)
	assert.Equal(t, 20, theme.BubbleWidth())
	theme.SetSize(80, 10)
	assert.Equal(t, 72, theme.BubbleWidth())
	theme.SetSize(300, 10)
	assert.Equal(t, 100, theme.BubbleWidth())
}

func TestStatusHelpers_CarryMarkers(t *testing.T) {
	NewThemeWithProfile(termenv.Ascii, true)

	assert.Equal(t, "[OK] saved", RenderSuccess("saved"))
	assert.Equal(t, "[X] failed", RenderError("failed"))
	assert.Equal(t, "[!] slow", RenderWarning("slow"))
	assert.Equal(t, "[i] note", RenderInfo("note"))
}
