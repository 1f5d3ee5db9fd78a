// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jeranaias/bridgechat/internal/export"
	"github.com/jeranaias/bridgechat/internal/model"
	"github.com/jeranaias/bridgechat/internal/ui/styles"
	"github.com/jeranaias/bridgechat/internal/util"
)

const welcomeText = "Ask about an alarm, a fault or a maintenance procedure.\n" +
	"Type /help for commands."

// View renders the chat screen.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	parts := []string{m.renderHeader(), m.viewport.View()}
	if m.panel != "" {
		parts = append(parts, m.theme.Muted.Render(m.panel))
	}
	if m.banner != nil {
		parts = append(parts, m.renderBanner())
	}
	parts = append(parts, m.theme.InputContainer.Width(m.width-2).Render(m.input.View()), m.renderStatusBar())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// refresh re-renders the active conversation into the viewport, keeping the
// scroll pinned to the bottom when it already was.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderConversation())
	if atBottom {
		m.viewport.GotoBottom()
	}
}

// =============================================================================
// HEADER AND STATUS BAR
// =============================================================================

func (m Model) renderHeader() string {
	title := "bridgechat"
	if conv, err := m.store.Conversation(m.activeConversation()); err == nil {
		title = conv.Title
	}
	left := m.theme.HeaderTitle.Render("bridgechat") + "  " +
		m.theme.HeaderSubtitle.Render(util.TruncateWidth(title, m.width/2))

	var right []string
	if m.emergency() {
		right = append(right, m.theme.EmergencyBadge.Render("EMERGENCY"))
	}
	if tokens, ok := m.svc.Tokens(); ok {
		right = append(right, m.theme.TokenBadge.Render(fmt.Sprintf("%d tokens left", tokens.Remaining)))
	}
	r := strings.Join(right, " ")

	gap := m.width - 2 - lipgloss.Width(left) - lipgloss.Width(r)
	if gap < 1 {
		gap = 1
	}
	return m.theme.Header.Width(m.width).Render(left + strings.Repeat(" ", gap) + r)
}

func (m Model) renderStatusBar() string {
	left := m.notice
	if left == "" {
		if m.store.Degraded() {
			left = styles.RenderWarning("History is not being saved")
		} else if m.waiting[m.activeConversation()] {
			left = m.spinner.View() + " waiting for the assistant"
		}
	}
	var hints []string
	for _, b := range m.keys.ShortHelp() {
		h := b.Help()
		hints = append(hints, h.Key+" "+h.Desc)
	}
	right := m.theme.Muted.Render(strings.Join(hints, "  "))

	gap := m.width - 2 - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		return m.theme.StatusBar.Width(m.width).Render(left)
	}
	return m.theme.StatusBar.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

func (m Model) renderBanner() string {
	b := m.banner
	text := b.text
	if !b.until.IsZero() {
		if left := b.until.Sub(m.now()); left > 0 {
			text += fmt.Sprintf(" Retry in %ds.", int(left.Seconds()+0.999))
		}
	}
	hint := "esc to dismiss"
	if b.retryable {
		hint = "C-r to retry, " + hint
	}
	style := m.theme.ErrorBanner
	if b.warning {
		style = m.theme.WarningBanner
	}
	return style.Width(m.width - 2).Render(text + "  " + m.theme.BannerHint.Render(hint))
}

// =============================================================================
// CONVERSATION
// =============================================================================

func (m Model) renderConversation() string {
	conv, err := m.store.Conversation(m.activeConversation())
	if err != nil || len(conv.Messages) == 0 {
		return m.theme.Empty.Render(welcomeText)
	}

	width := m.theme.BubbleWidth()
	var b strings.Builder
	for _, msg := range conv.Messages {
		b.WriteString(m.renderMessage(msg, width))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderMessage(msg *model.Message, width int) string {
	stamp := m.theme.Timestamp.Render(msg.Timestamp.Format("15:04"))
	if msg.IsUser {
		label := m.theme.UserLabel.Render("You") + " " + stamp
		return label + "\n" + m.theme.UserBubble.Width(width).Render(msg.Text)
	}

	label := m.theme.AssistantLabel.Render("Assistant") + " " + stamp
	switch {
	case msg.IsThinking:
		return label + "\n" + m.theme.Thinking.Render(m.spinner.View()+" Consulting the knowledge base...")
	case msg.IsStreaming:
		return label + "\n" + m.theme.AssistantBubble.Width(width).Render(msg.Text+m.theme.Cursor.Render(" _"))
	}

	body := msg.Text
	if body == "" && len(msg.Solutions) == 0 {
		// Stopped before any word arrived.
		return label + "\n" + m.theme.Muted.Render("(stopped)")
	}
	if extra := m.renderDetails(msg, width-4); extra != "" {
		body += "\n" + extra
	}
	return label + "\n" + m.theme.AssistantBubble.Width(width).Render(body)
}

// renderDetails draws category, solution cards and sources of a settled
// reply.
func (m Model) renderDetails(msg *model.Message, width int) string {
	var parts []string
	if msg.Category != "" || msg.Confidence > 0 {
		var meta []string
		if msg.Category != "" {
			meta = append(meta, "Category: "+msg.Category)
		}
		if msg.Confidence > 0 {
			meta = append(meta, "Confidence: "+export.FormatConfidence(msg.Confidence))
		}
		parts = append(parts, m.theme.Meta.Render(strings.Join(meta, " | ")))
	}

	for i, s := range msg.Solutions {
		var card strings.Builder
		title := fmt.Sprintf("%d. %s", i+1, s.Title)
		if s.Confidence > 0 {
			title += " (" + export.FormatConfidence(s.Confidence) + ")"
		}
		card.WriteString(m.theme.SolutionTitle.Render(title))
		for _, step := range s.Steps {
			card.WriteString("\n" + m.theme.SolutionStep.Render("- "+step))
		}
		if len(s.Parts) > 0 {
			card.WriteString("\n" + m.theme.SolutionStep.Render("Parts: "+strings.Join(s.Parts, ", ")))
		}
		parts = append(parts, m.theme.SolutionCard.Width(width).Render(card.String()))
	}

	if len(msg.Sources) > 0 {
		lines := []string{m.theme.Meta.Render("Sources")}
		for _, src := range msg.Sources {
			line := src.Title
			if link := m.sourceLink(src); link != "" {
				line += " " + m.theme.Source.Render(link)
			}
			lines = append(lines, "- "+line)
		}
		parts = append(parts, strings.Join(lines, "\n"))
	}
	return strings.Join(parts, "\n")
}

// sourceLink prefers the local document server over the source URL.
func (m Model) sourceLink(src model.Source) string {
	if m.opts.DocsBaseURL != "" && src.Table != "" && src.ID != "" {
		return strings.TrimRight(m.opts.DocsBaseURL, "/") + "/" + src.Table + "/" + src.ID
	}
	return src.URL
}
