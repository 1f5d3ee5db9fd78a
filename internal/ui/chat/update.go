// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/jeranaias/bridgechat/internal/assistant"
	"github.com/jeranaias/bridgechat/internal/dispatch"
	"github.com/jeranaias/bridgechat/internal/webhook"
)

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg), nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case storeChangedMsg:
		m.refresh()
		return m, m.waitForChange()

	case exchangeDoneMsg:
		return m.handleExchangeDone(msg)

	case countdownMsg:
		if m.banner == nil || m.banner.until.IsZero() {
			return m, nil
		}
		if !m.now().Before(m.banner.until) {
			m.banner.until = time.Time{}
			return m, nil
		}
		return m, countdown()

	case copyDoneMsg:
		if msg.Err != nil {
			m.notice = "Copy failed: " + msg.Err.Error()
		} else {
			m.notice = fmt.Sprintf("Copied reply (%d chars)", msg.Chars)
		}
		return m, nil
	}

	// Spinner ticks and cursor blinks.
	var spinCmd, inputCmd tea.Cmd
	m.spinner, spinCmd = m.spinner.Update(msg)
	m.input, inputCmd = m.input.Update(msg)
	if m.anyWaiting() {
		m.refresh()
	}
	return m, tea.Batch(spinCmd, inputCmd)
}

func (m Model) handleResize(msg tea.WindowSizeMsg) Model {
	m.width, m.height = msg.Width, msg.Height
	m.theme.SetSize(msg.Width, msg.Height)
	m.input.Width = msg.Width - 8
	m.viewport.Width = msg.Width
	m.layout()
	m.ready = true
	m.refresh()
	m.viewport.GotoBottom()
	return m
}

// layout sizes the viewport around the fixed chrome.
func (m *Model) layout() {
	// header 1, input box 3, status bar 1
	h := m.height - 5
	if m.banner != nil {
		h -= 3
	}
	if m.panel != "" {
		h -= strings.Count(m.panel, "\n") + 1
	}
	if h < 3 {
		h = 3
	}
	m.viewport.Height = h
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.panel = ""
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.svc.Close()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Submit):
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		m.input.Reset()
		if strings.HasPrefix(text, "/") {
			return m.runCommand(text)
		}
		return m.submit(text)

	case key.Matches(msg, m.keys.Cancel):
		if m.banner != nil {
			m.banner = nil
			m.layout()
			return m, nil
		}
		return m.stop()

	case key.Matches(msg, m.keys.Retry):
		return m.retry()

	case key.Matches(msg, m.keys.NewChat):
		return m.newChat()

	case key.Matches(msg, m.keys.Copy):
		return m.copyLastReply()

	case key.Matches(msg, m.keys.Emergency):
		return m.setEmergency(!m.emergency())

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil

	case key.Matches(msg, m.keys.Up) && m.input.Value() == "":
		m.viewport.LineUp(1)
		return m, nil

	case key.Matches(msg, m.keys.Down) && m.input.Value() == "":
		m.viewport.LineDown(1)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// =============================================================================
// EXCHANGES
// =============================================================================

func (m Model) submit(text string) (tea.Model, tea.Cmd) {
	convID := m.activeConversation()
	if convID == "" {
		convID = m.store.CreateConversation().ID
	}
	if m.waiting[convID] {
		m.notice = "Wait for the current reply or press Esc to stop it"
		return m, nil
	}
	m.banner = nil
	m.notice = ""
	m.waiting[convID] = true
	m.layout()
	m.refresh()

	svc, ctx := m.svc, m.ctx
	return m, func() tea.Msg {
		out, err := svc.Submit(ctx, convID, text)
		return exchangeDoneMsg{ConversationID: convID, Outcome: out, Err: err}
	}
}

func (m Model) retry() (tea.Model, tea.Cmd) {
	convID := m.activeConversation()
	if m.banner != nil && m.banner.convID != "" {
		convID = m.banner.convID
	}
	if convID == "" {
		return m, nil
	}
	if m.waiting[convID] {
		m.notice = "A reply is already in progress"
		return m, nil
	}
	if m.banner != nil && m.banner.until.After(m.now()) {
		m.notice = "Rate limited, wait for the countdown"
		return m, nil
	}
	m.banner = nil
	m.notice = ""
	m.waiting[convID] = true
	m.layout()
	m.refresh()

	svc, ctx := m.svc, m.ctx
	return m, func() tea.Msg {
		out, err := svc.Regenerate(ctx, convID)
		return exchangeDoneMsg{ConversationID: convID, Outcome: out, Err: err}
	}
}

func (m Model) stop() (tea.Model, tea.Cmd) {
	convID := m.activeConversation()
	if convID == "" {
		return m, nil
	}
	m.svc.Stop(convID)
	m.notice = "Stopped"
	return m, nil
}

func (m Model) handleExchangeDone(msg exchangeDoneMsg) (tea.Model, tea.Cmd) {
	delete(m.waiting, msg.ConversationID)

	var cmd tea.Cmd
	if msg.Err == nil {
		if msg.Outcome != nil && msg.Outcome.Result != nil && msg.Outcome.Result.Emergency {
			m.notice = "Emergency mode: canned guidance shown"
		}
	} else {
		cmd = m.showError(msg.ConversationID, msg.Err)
	}
	m.layout()
	m.refresh()
	return m, cmd
}

// showError sets the banner for a failed exchange.
func (m *Model) showError(convID string, err error) tea.Cmd {
	var (
		failure   *webhook.Failure
		transport *dispatch.TransportError
	)
	switch {
	case dispatch.IsAborted(err):
		// Stopped by the user; the partial reply stays and no banner is shown.
	case errors.Is(err, assistant.ErrBusy):
		m.notice = "A reply is already in progress"
	case errors.As(err, &failure):
		m.banner = &banner{
			text:      failure.UserMessage(),
			warning:   failure.Kind == webhook.FailureRateLimited || failure.Kind == webhook.FailureTokenLimit,
			retryable: true,
			convID:    convID,
		}
		if wait := failure.RetryAfter(m.now()); wait > 0 {
			m.banner.until = m.now().Add(wait)
			return countdown()
		}
	case errors.As(err, &transport):
		m.banner = &banner{
			text:      "Could not reach the assistant. Check the connection and retry.",
			retryable: true,
			convID:    convID,
		}
	default:
		m.banner = &banner{text: err.Error(), convID: convID}
	}
	return nil
}

func countdown() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg { return countdownMsg{} })
}

func (m Model) anyWaiting() bool {
	return len(m.waiting) > 0
}
