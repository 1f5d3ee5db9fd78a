// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"

	"github.com/jeranaias/bridgechat/internal/ui/chat"
)

// HandleChat runs the full-screen chat. Without a terminal it points the
// user at repl instead.
func HandleChat(ctx context.Context, args Args) error {
	if !IsTTY() || !IsStdoutTTY() {
		return &UsageError{
			Field:   "terminal",
			Reason:  "the chat screen needs an interactive terminal",
			Example: `bridgechat repl   or   bridgechat ask "question"`,
		}
	}

	app, err := Boot(ctx, args, BootOptions{})
	if err != nil {
		return err
	}
	defer app.Close()

	if app.Store.Degraded() {
		fmt.Fprintln(stderr, warningStyle.Render("History is not being saved this session."))
	}
	return chat.Run(ctx, app.Service, chat.Options{
		Emergency:   app.Dispatcher,
		DocsBaseURL: docsBaseURL(app),
	})
}
