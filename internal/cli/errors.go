// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error types and exit codes for bridgechat commands.
//
// Handlers return errors and never exit. main prints them with
// DisplayError and exits with ExitCode.

package cli

import (
	"errors"
	"fmt"

	"github.com/jeranaias/bridgechat/internal/assistant"
	"github.com/jeranaias/bridgechat/internal/config"
	"github.com/jeranaias/bridgechat/internal/dispatch"
	"github.com/jeranaias/bridgechat/internal/webhook"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitUsageError   = 2
	ExitConfigError  = 3
	ExitNetworkError = 5
	ExitNotFound     = 7
	// ExitRejected means the webhook answered with an error body.
	ExitRejected = 9
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// UsageError is bad command-line input.
type UsageError struct {
	Field   string
	Value   string
	Reason  string
	Example string
}

func (e *UsageError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	if e.Example != "" {
		msg += "\nExample: " + e.Example
	}
	return msg
}

// NotFoundError names a resource that does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrMissingArgument builds a UsageError for a required argument.
func ErrMissingArgument(name, example string) error {
	return &UsageError{Field: name, Reason: "is required", Example: example}
}

// =============================================================================
// DISPLAY
// =============================================================================

// ExitCode maps an error to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usage *UsageError
	var notFound *NotFoundError
	var transport *dispatch.TransportError
	var failure *webhook.Failure
	var invalid config.ValidateErrors

	switch {
	case errors.As(err, &usage), errors.Is(err, assistant.ErrEmptyMessage):
		return ExitUsageError
	case errors.As(err, &notFound):
		return ExitNotFound
	case errors.As(err, &invalid):
		return ExitConfigError
	case errors.As(err, &transport):
		return ExitNetworkError
	case errors.As(err, &failure):
		return ExitRejected
	default:
		return ExitGeneralError
	}
}

// DisplayError prints err for a person, or as a JSON envelope.
func DisplayError(command string, err error, jsonMode bool) {
	if err == nil {
		return
	}
	if jsonMode {
		NewJSONErrorResponse(command, err).Print()
		return
	}
	fmt.Fprintln(stderr, errorStyle.Render("Error: "+describe(err)))
}

// describe prefers the text written for users over the wrapped chain.
func describe(err error) string {
	var failure *webhook.Failure
	if errors.As(err, &failure) {
		return failure.UserMessage()
	}
	var transport *dispatch.TransportError
	if errors.As(err, &transport) {
		return fmt.Sprintf("could not reach the assistant after %d attempt(s): %v", transport.Attempts, transport.Err)
	}
	return err.Error()
}
