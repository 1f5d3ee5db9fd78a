// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single chat entry. User messages are fixed at creation;
// assistant messages start empty and are filled in place while revealed.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	IsUser    bool      `json:"isUser"`
	Timestamp time.Time `json:"timestamp"`

	// IsThinking and IsStreaming are never both true.
	IsStreaming bool `json:"isStreaming"`
	IsThinking  bool `json:"isThinking"`

	// Carried through from the webhook reply, not interpreted here.
	Category   string     `json:"category,omitempty"`
	Confidence float64    `json:"confidence,omitempty"`
	Solutions  []Solution `json:"solutions,omitempty"`
	Sources    []Source   `json:"sources,omitempty"`
}

// Solution is one suggested remedy within a reply (a "solution card").
type Solution struct {
	Title      string   `json:"title"`
	Confidence float64  `json:"confidence,omitempty"`
	Steps      []string `json:"steps,omitempty"`
	Parts      []string `json:"parts,omitempty"`
}

// Source references a document the reply was grounded on.
type Source struct {
	Title string `json:"title"`
	Table string `json:"table,omitempty"`
	ID    string `json:"id,omitempty"`
	URL   string `json:"url,omitempty"`
}

// NewUserMessage creates a user message with a fresh ID.
func NewUserMessage(text string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Text:      text,
		IsUser:    true,
		Timestamp: time.Now(),
	}
}

// NewThinkingMessage creates the empty assistant placeholder shown while a
// request is in flight.
func NewThinkingMessage() *Message {
	return &Message{
		ID:         uuid.NewString(),
		Timestamp:  time.Now(),
		IsThinking: true,
	}
}

// Preview returns at most maxLen runes of the text.
func (m *Message) Preview(maxLen int) string {
	runes := []rune(m.Text)
	if len(runes) <= maxLen {
		return m.Text
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// Settled reports whether the message will no longer change.
func (m *Message) Settled() bool {
	return !m.IsStreaming && !m.IsThinking
}

// Clone returns a deep copy.
func (m *Message) Clone() *Message {
	c := *m
	if m.Solutions != nil {
		c.Solutions = make([]Solution, len(m.Solutions))
		for i, s := range m.Solutions {
			s.Steps = append([]string(nil), s.Steps...)
			s.Parts = append([]string(nil), s.Parts...)
			c.Solutions[i] = s
		}
	}
	if m.Sources != nil {
		c.Sources = append([]Source(nil), m.Sources...)
	}
	return &c
}

// =============================================================================
// PATCH
// =============================================================================

// Patch is a shallow update for a message. Only non-nil fields are applied.
type Patch struct {
	Text        *string
	IsStreaming *bool
	IsThinking  *bool
	Category    *string
	Confidence  *float64
	Solutions   []Solution
	Sources     []Source
}

// SettlePatch ends a reveal in place: the text stays as it is and both
// progress flags are cleared.
func SettlePatch() Patch {
	return Patch{IsStreaming: Bool(false), IsThinking: Bool(false)}
}

// Apply merges p into m.
func (p Patch) Apply(m *Message) {
	if p.Text != nil {
		m.Text = *p.Text
	}
	if p.IsStreaming != nil {
		m.IsStreaming = *p.IsStreaming
	}
	if p.IsThinking != nil {
		m.IsThinking = *p.IsThinking
	}
	if p.Category != nil {
		m.Category = *p.Category
	}
	if p.Confidence != nil {
		m.Confidence = *p.Confidence
	}
	if p.Solutions != nil {
		m.Solutions = p.Solutions
	}
	if p.Sources != nil {
		m.Sources = p.Sources
	}
}

// String returns a pointer to s for building patches inline.
func String(s string) *string { return &s }

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

// Float returns a pointer to f.
func Float(f float64) *float64 { return &f }
