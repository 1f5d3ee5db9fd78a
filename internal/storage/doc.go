// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage holds the conversation state store.
//
// The Store keeps every conversation of one user in memory, most recent
// first, and writes each mutation through to a Backend. Two backends exist:
//
//   - FileBackend: one JSON file per conversation under a per-user directory
//   - BoltBackend: one bbolt bucket per user, JSON values keyed by id
//
// A failing backend never surfaces an error to callers. The store logs the
// failure, stops writing and keeps serving from memory for the rest of the
// session (see Store.Degraded).
//
// # Usage
//
//	backend, err := storage.NewFileBackend(dir, logger)
//	store := storage.Open("crew-1", backend, logger)
//	conv := store.CreateConversation()
//	err = store.AppendMessage(conv.ID, model.NewUserMessage("Bilge alarm"))
//
// There is no cross-process synchronisation; the last writer wins.
package storage
