// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"testing"
)

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestNewThinkingMessage(t *testing.T) {
	m := NewThinkingMessage()
	if m.ID == "" {
		t.Fatal("expected generated ID")
	}
	if m.IsUser || !m.IsThinking || m.IsStreaming {
		t.Errorf("unexpected flags: user=%v thinking=%v streaming=%v", m.IsUser, m.IsThinking, m.IsStreaming)
	}
	if m.Settled() {
		t.Error("thinking message should not be settled")
	}
}

func TestNewUserMessage_UniqueIDs(t *testing.T) {
	a, b := NewUserMessage("a"), NewUserMessage("b")
	if a.ID == b.ID {
		t.Errorf("IDs collided: %s", a.ID)
	}
	if !a.IsUser || !a.Settled() {
		t.Error("user messages are settled at creation")
	}
}

func TestMessage_Preview(t *testing.T) {
	m := NewUserMessage("Main engine overheating at low RPM")
	if got := m.Preview(100); got != m.Text {
		t.Errorf("Preview(100) = %q", got)
	}
	if got := m.Preview(10); got != "Main en..." {
		t.Errorf("Preview(10) = %q", got)
	}
}

func TestPatch_AppliesOnlySetFields(t *testing.T) {
	m := &Message{Text: "old", IsThinking: true, Category: "engine"}

	Patch{Text: String("new"), IsThinking: Bool(false)}.Apply(m)

	if m.Text != "new" || m.IsThinking {
		t.Errorf("patch not applied: %+v", m)
	}
	if m.Category != "engine" {
		t.Errorf("unset field changed: category=%q", m.Category)
	}
}

func TestSettlePatch_KeepsText(t *testing.T) {
	m := &Message{Text: "Check the", IsStreaming: true}

	SettlePatch().Apply(m)

	if !m.Settled() || m.Text != "Check the" {
		t.Errorf("settle patch: %+v", m)
	}
}

func TestMessage_CloneIsDeep(t *testing.T) {
	m := &Message{
		Text:      "x",
		Solutions: []Solution{{Title: "Bleed fuel line", Steps: []string{"open valve"}}},
		Sources:   []Source{{Title: "Manual"}},
	}
	c := m.Clone()
	c.Solutions[0].Steps[0] = "changed"
	c.Sources[0].Title = "changed"

	if m.Solutions[0].Steps[0] != "open valve" || m.Sources[0].Title != "Manual" {
		t.Error("clone shares slices with original")
	}
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestNewConversation_Defaults(t *testing.T) {
	c := NewConversation()
	if c.Title != DefaultTitle {
		t.Errorf("Title = %q, want %q", c.Title, DefaultTitle)
	}
	if c.Messages == nil || len(c.Messages) != 0 {
		t.Error("expected empty, non-nil message list")
	}
}

func TestConversation_LastMessages(t *testing.T) {
	c := NewConversation()
	if c.LastUserMessage() != nil || c.LastAssistantMessage() != nil {
		t.Fatal("empty conversation has no last messages")
	}
	u := NewUserMessage("q")
	a := NewThinkingMessage()
	c.Messages = append(c.Messages, u, a)

	if c.LastUserMessage() != u {
		t.Error("wrong last user message")
	}
	if c.LastAssistantMessage() != a {
		t.Error("wrong last assistant message")
	}
}

func TestConversation_Clone(t *testing.T) {
	c := NewConversation()
	c.Messages = append(c.Messages, NewUserMessage("q"))
	cp := c.Clone()
	cp.Messages[0].Text = "changed"
	cp.Messages = append(cp.Messages, NewThinkingMessage())

	if c.Messages[0].Text != "q" || len(c.Messages) != 1 {
		t.Error("clone mutated original")
	}
}
