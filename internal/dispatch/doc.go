// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package dispatch sends requests to the assistant webhook.
//
// A Queue bounds how many HTTP attempts are in flight; excess attempts wait
// in FIFO order. A Dispatcher wraps one logical request with a per-attempt
// timeout and bounded retries at a fixed delay, admitting every attempt
// through the queue. Retries therefore re-enter the queue and may interleave
// with unrelated requests.
//
// Outcomes of Send:
//
//	(*Result, nil)           got an HTTP response; check Result.Success
//	(nil, *TransportError)   every attempt failed before a response
//	(nil, ErrAborted)        ctx was cancelled
//
// Retry behaviour per endpoint comes from an ordered PolicyTable, so chat
// endpoints can be held to a single attempt in one auditable place.
package dispatch
