// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the conversation and message types shared by the
// dispatcher, the streaming emulator, storage and the UI.
//
// Assistant messages move through three states:
//
//	thinking  (IsThinking, empty Text)
//	streaming (IsStreaming, Text grows word by word)
//	settled   (neither flag, Text final)
//
// Updates are expressed as a Patch so the store can apply them under its own
// lock:
//
//	model.Patch{Text: model.String("Check the"), IsStreaming: model.Bool(true)}.Apply(msg)
package model
