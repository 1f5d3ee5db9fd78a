// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"time"

	"github.com/jeranaias/bridgechat/internal/model"
)

// JSONResponse is the envelope every --json command prints.
type JSONResponse struct {
	Success   bool    `json:"success"`
	Data      any     `json:"data"`
	Error     *string `json:"error"`
	Timestamp string  `json:"timestamp"`
	Command   string  `json:"command,omitempty"`
}

// NewJSONResponse wraps data from a successful command.
func NewJSONResponse(command string, data any) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// NewJSONErrorResponse wraps a failed command.
func NewJSONErrorResponse(command string, err error) *JSONResponse {
	msg := describe(err)
	return &JSONResponse{
		Error:     &msg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Print writes the envelope to stdout, indented.
func (r *JSONResponse) Print() error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// =============================================================================
// PAYLOADS
// =============================================================================

// VersionData is printed by version --json.
type VersionData struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
}

// AskData is printed by ask --json.
type AskData struct {
	ConversationID string           `json:"conversationId"`
	MessageID      string           `json:"messageId"`
	Reply          string           `json:"reply"`
	Category       string           `json:"category,omitempty"`
	Confidence     float64          `json:"confidence,omitempty"`
	Solutions      []model.Solution `json:"solutions,omitempty"`
	Sources        []model.Source   `json:"sources,omitempty"`
	Attempts       int              `json:"attempts"`
	Emergency      bool             `json:"emergency,omitempty"`
	DurationMs     int64            `json:"durationMs"`
}

// HistoryEntry is one row of history list --json.
type HistoryEntry struct {
	Index        int       `json:"index"`
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Messages     int       `json:"messages"`
	LastActivity time.Time `json:"lastActivity"`
}
