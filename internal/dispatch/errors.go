// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dispatch

import (
	"errors"
	"fmt"
)

// ErrAborted is returned when the caller's context is cancelled. It takes
// priority over every other outcome and is never retried.
var ErrAborted = errors.New("request aborted")

// TransportError is returned after the last attempt failed without ever
// getting an HTTP response.
type TransportError struct {
	Endpoint string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("webhook %s unreachable after %d attempt(s): %v", e.Endpoint, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsAborted reports whether err is a cancellation outcome.
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted)
}

func aborted(cause error) error {
	if cause == nil {
		return ErrAborted
	}
	return fmt.Errorf("%w: %w", ErrAborted, cause)
}
