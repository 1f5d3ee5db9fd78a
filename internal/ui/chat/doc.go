// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat is the Bubble Tea chat screen.

The screen never owns conversation state. It submits input through
assistant.Service, subscribes to storage.Store change notifications and
re-renders the active conversation from the store on every change, so
replies being revealed by the streaming emulator show up word by word.

# Keys

	Enter      send
	Esc        dismiss banner, otherwise stop the current reply
	Ctrl+R     retry / regenerate the last reply
	Ctrl+N     new conversation
	Ctrl+Y     copy the last reply
	Ctrl+E     toggle emergency mode
	PgUp/PgDn  scroll
	Ctrl+C     quit

# Commands

	/new  /list  /open N  /delete  /retry  /stop  /copy
	/emergency [on|off]  /export [md|json|html]  /help  /quit
*/
package chat
