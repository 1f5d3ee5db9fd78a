// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package webhook defines the wire contract with the assistant webhook: the
// request body, the tolerated reply shapes and the error bodies.
//
// Every reply shape the backend has been seen to emit is normalised by
// ParseReply into one Reply; nothing past this package inspects raw JSON.
package webhook

import (
	"encoding/json"
	"time"
)

// Request is the JSON body posted to every webhook endpoint.
type Request struct {
	UserID    string
	UserName  string
	Message   string
	ChatID    string
	SessionID string
	Timestamp time.Time

	// Extras are merged into the body. They never replace the fields above.
	Extras map[string]any
}

// MarshalJSON flattens Extras into the top-level object.
func (r Request) MarshalJSON() ([]byte, error) {
	body := make(map[string]any, len(r.Extras)+6)
	for k, v := range r.Extras {
		body[k] = v
	}
	body["userId"] = r.UserID
	body["userName"] = r.UserName
	body["message"] = r.Message
	body["chatId"] = r.ChatID
	body["sessionId"] = r.SessionID
	body["timestamp"] = r.Timestamp.UTC().Format(time.RFC3339Nano)
	return json.Marshal(body)
}
