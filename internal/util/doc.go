// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small helpers shared across bridgechat.
//
// String helpers are rune- and display-width aware so titles and table
// columns never split a multi-byte character:
//
//	title := util.Ellipsize(util.SingleLine(text), 30)
//	cell := util.PadWidth(title, 24)
//
// AtomicWriteFile is used for every file the client persists:
//
//	err := util.AtomicWriteFile(path, data, 0600)
package util
