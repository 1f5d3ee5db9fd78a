// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jeranaias/bridgechat/internal/export"
	"github.com/jeranaias/bridgechat/internal/util"
)

const helpText = `/new              start a new conversation
/list             list conversations
/open N           switch to conversation N from /list
/delete           delete the current conversation
/retry            ask the last question again
/stop             stop the current reply
/copy             copy the last reply
/emergency on|off canned replies without network
/export [fmt]     export as md, json or html
/quit             leave`

// runCommand executes a slash command typed into the input.
func (m Model) runCommand(line string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(line)
	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case "/new":
		return m.newChat()
	case "/list", "/history":
		m.panel = m.listConversations()
	case "/open":
		if len(args) != 1 {
			m.notice = "Usage: /open N"
			break
		}
		m.openConversation(args[0])
	case "/delete":
		m.deleteConversation()
	case "/retry", "/regenerate":
		return m.retry()
	case "/stop":
		return m.stop()
	case "/copy":
		return m.copyLastReply()
	case "/emergency":
		on := !m.emergency()
		if len(args) > 0 {
			switch strings.ToLower(args[0]) {
			case "on":
				on = true
			case "off":
				on = false
			default:
				m.notice = "Usage: /emergency [on|off]"
				return m, nil
			}
		}
		return m.setEmergency(on)
	case "/export":
		format := "md"
		if len(args) > 0 {
			format = args[0]
		}
		m.exportConversation(format)
	case "/help", "/?":
		m.panel = helpText
	case "/quit", "/exit", "/q":
		m.svc.Close()
		return m, tea.Quit
	default:
		m.notice = fmt.Sprintf("Unknown command %s (try /help)", name)
	}
	m.layout()
	m.refresh()
	return m, nil
}

func (m Model) newChat() (tea.Model, tea.Cmd) {
	m.store.CreateConversation()
	m.banner = nil
	m.notice = "New conversation"
	m.layout()
	m.refresh()
	return m, nil
}

func (m Model) listConversations() string {
	summaries := m.store.Summaries()
	if len(summaries) == 0 {
		return "No conversations yet"
	}
	active := m.activeConversation()
	var b strings.Builder
	for i, s := range summaries {
		marker := " "
		if s.ID == active {
			marker = "*"
		}
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s %2d  %s  %s  (%d)", marker, i+1,
			util.PadWidth(util.TruncateWidth(s.Title, 34), 34),
			s.Timestamp.Format("Jan 2 15:04"),
			s.MessageCount)
	}
	return b.String()
}

func (m *Model) openConversation(arg string) {
	n, err := strconv.Atoi(arg)
	summaries := m.store.Summaries()
	if err != nil || n < 1 || n > len(summaries) {
		m.notice = fmt.Sprintf("No conversation %s", arg)
		return
	}
	if err := m.store.SetActive(summaries[n-1].ID); err != nil {
		m.notice = err.Error()
		return
	}
	m.banner = nil
	m.notice = "Opened " + summaries[n-1].Title
	m.viewport.GotoBottom()
}

func (m *Model) deleteConversation() {
	convID := m.activeConversation()
	if convID == "" {
		m.notice = "No conversation selected"
		return
	}
	m.svc.Stop(convID)
	if err := m.store.DeleteConversation(convID); err != nil {
		m.notice = err.Error()
		return
	}
	m.banner = nil
	m.notice = "Conversation deleted"
}

func (m Model) copyLastReply() (tea.Model, tea.Cmd) {
	conv, err := m.store.Conversation(m.activeConversation())
	if err != nil {
		m.notice = "No conversation to copy from"
		return m, nil
	}
	last := conv.LastAssistantMessage()
	if last == nil || last.Text == "" {
		m.notice = "No reply to copy"
		return m, nil
	}
	text, write := last.Text, m.opts.Clipboard
	return m, func() tea.Msg {
		return copyDoneMsg{Chars: util.RuneLen(text), Err: write(text)}
	}
}

func (m Model) setEmergency(on bool) (tea.Model, tea.Cmd) {
	if m.opts.Emergency == nil {
		m.notice = "Emergency mode is not available"
		return m, nil
	}
	m.opts.Emergency.SetEmergencyMode(on)
	if on {
		m.notice = "Emergency mode ON: replies are canned guidance, no network"
	} else {
		m.notice = "Emergency mode off"
	}
	return m, nil
}

func (m *Model) exportConversation(format string) {
	conv, err := m.store.Conversation(m.activeConversation())
	if err != nil {
		m.notice = "No conversation to export"
		return
	}
	exporter, err := export.ForFormat(format, m.opts.Export)
	if err != nil {
		m.notice = err.Error()
		return
	}
	path, err := export.ExportToFile(conv, exporter, m.opts.Export)
	if err != nil {
		m.notice = "Export failed: " + err.Error()
		return
	}
	m.notice = "Exported to " + path
}
