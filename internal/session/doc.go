// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session provides a session-scoped key/value cache.
//
// Values live in a small SQLite database and are keyed by the session id
// generated at startup. They hold transient state such as the remaining
// token allowance or the last reply per conversation, nothing that must
// survive the session.
//
// # Usage
//
//	cache, err := session.Open(path, uuid.NewString(), logger)
//	defer cache.Close()
//
//	err = cache.Put("tokens", stats)
//	ok, err := cache.Get("tokens", &stats)
//
// Rows left behind by sessions that did not shut down cleanly are purged
// after StaleAfter.
package session
