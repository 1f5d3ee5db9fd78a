// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import "github.com/jeranaias/bridgechat/internal/assistant"

// storeChangedMsg is sent when the store reports a change.
type storeChangedMsg struct {
	ConversationID string
}

// exchangeDoneMsg carries the result of Submit or Regenerate.
type exchangeDoneMsg struct {
	ConversationID string
	Outcome        *assistant.Outcome
	Err            error
}

// countdownMsg ticks the rate-limit banner.
type countdownMsg struct{}

// copyDoneMsg reports a clipboard write.
type copyDoneMsg struct {
	Chars int
	Err   error
}
