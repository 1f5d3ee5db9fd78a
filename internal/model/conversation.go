// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
)

// DefaultTitle is shown until the first message names the conversation.
const DefaultTitle = "New chat"

// Conversation is an ordered list of messages with a title derived from the
// first one.
type Conversation struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Messages  []*Message `json:"messages"`
	Timestamp time.Time  `json:"timestamp"`
}

// NewConversation creates an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{
		ID:        uuid.NewString(),
		Title:     DefaultTitle,
		Messages:  []*Message{},
		Timestamp: time.Now(),
	}
}

// LastUserMessage returns the most recent user message, or nil.
func (c *Conversation) LastUserMessage() *Message {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].IsUser {
			return c.Messages[i]
		}
	}
	return nil
}

// LastAssistantMessage returns the most recent assistant message, or nil.
func (c *Conversation) LastAssistantMessage() *Message {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if !c.Messages[i].IsUser {
			return c.Messages[i]
		}
	}
	return nil
}

// Clone returns a deep copy safe to hand outside the store lock.
func (c *Conversation) Clone() *Conversation {
	out := *c
	out.Messages = make([]*Message, len(c.Messages))
	for i, m := range c.Messages {
		out.Messages[i] = m.Clone()
	}
	return &out
}
