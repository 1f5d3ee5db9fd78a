// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli parses the bridgechat command line and runs each command.
//
// # Commands
//
//	bridgechat                      Full-screen chat (default)
//	bridgechat ask "question"       Ask once and print the reply
//	bridgechat repl                 Line-based chat for plain terminals
//	bridgechat history [subcommand] List, show, delete or export conversations
//	bridgechat config [subcommand]  Show or change settings
//	bridgechat docs serve           Serve manuals, procedures and parts
//	bridgechat version              Print version information
//
// Every command except config, version and help boots an App, which wires
// the dispatcher, conversation store, streaming emulator and session cache
// from the loaded configuration.
package cli
