// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

// =============================================================================
// ERRORS
// =============================================================================

// ErrConversationNotFound is returned when a conversation doesn't exist.
// Use errors.Is(err, ErrConversationNotFound) to check for this error.
var ErrConversationNotFound = &NotFoundError{Message: "conversation not found"}

// ErrMessageNotFound is returned when a message id is unknown within an
// existing conversation.
var ErrMessageNotFound = &NotFoundError{Message: "message not found"}

// NotFoundError is a lookup failure carrying the id that missed.
type NotFoundError struct {
	Message string
	ID      string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Message
	}
	return e.Message + ": " + e.ID
}

// Is matches on Message so errors carrying an ID still compare equal to the
// sentinels.
func (e *NotFoundError) Is(target error) bool {
	t, ok := target.(*NotFoundError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

func conversationNotFound(id string) error {
	return &NotFoundError{Message: ErrConversationNotFound.Message, ID: id}
}

func messageNotFound(id string) error {
	return &NotFoundError{Message: ErrMessageNotFound.Message, ID: id}
}
