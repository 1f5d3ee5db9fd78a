// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
)

// Version information (set at build time)
var (
	Version   = "0.4.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Output streams. Tests swap these.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// Command is the top-level command to run.
type Command int

const (
	CmdChat Command = iota
	CmdAsk
	CmdRepl
	CmdHistory
	CmdConfig
	CmdDocs
	CmdVersion
	CmdHelp
)

var commandNames = map[Command]string{
	CmdChat:    "chat",
	CmdAsk:     "ask",
	CmdRepl:    "repl",
	CmdHistory: "history",
	CmdConfig:  "config",
	CmdDocs:    "docs",
	CmdVersion: "version",
	CmdHelp:    "help",
}

func (c Command) String() string {
	if n, ok := commandNames[c]; ok {
		return n
	}
	return "unknown"
}

// Args holds parsed command-line arguments.
type Args struct {
	// Global flags
	JSON      bool
	Quiet     bool
	Verbose   bool
	Emergency bool

	// Query is the question for ask.
	Query string

	// Unknown names an unrecognised command; Parse returns CmdHelp with it
	// set.
	Unknown string

	// Sub parses everything after the command word.
	Sub *ArgParser
}

// boolFlagNames never take a value, wherever they appear.
var boolFlagNames = []string{
	"json", "quiet", "q", "verbose", "v", "emergency",
	"open", "yes", "y", "help", "h",
}

const usageText = `bridgechat - maritime troubleshooting assistant

Usage:
  bridgechat                       Start the full-screen chat (default)
  bridgechat ask "question"        Ask a single question and print the reply
  bridgechat repl                  Line-based chat for plain terminals
  bridgechat history [subcommand]  Conversation history
  bridgechat config [subcommand]   Configuration
  bridgechat docs serve            Serve manuals, procedures and parts over HTTP
  bridgechat version               Show version information
  bridgechat help                  Show this help

History:
  bridgechat history list                     List conversations, newest first
  bridgechat history show N|ID                Print one conversation
  bridgechat history delete N|ID              Delete a conversation
  bridgechat history export N|ID [flags]      Write a conversation to a file
    --format md|json|html                     Output format (default md)
    --output DIR                              Directory to write to (default .)
    --open                                    Open the file afterwards

Config:
  bridgechat config show                      Print the effective config
  bridgechat config get KEY                   Print one value (e.g. queue.max_concurrent)
  bridgechat config set KEY VALUE             Change and save one value
  bridgechat config keys                      List settable keys
  bridgechat config path                      Print the config file location

Docs:
  bridgechat docs serve [--addr HOST:PORT] [--db PATH]

Global flags:
  --emergency         Answer from the built-in emergency playbook, no network
  --json              Machine-readable output where supported
  -q, --quiet         Print only the reply
  -v, --verbose       Debug logging

Environment:
  BRIDGECHAT_HOME     Config and data directory (default ~/.bridgechat)
  BRIDGECHAT_*        Overrides for individual settings, see 'config keys'

Version %s
`

// PrintUsage writes the help text.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// PrintVersion writes version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "bridgechat version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
	fmt.Fprintf(w, "  Go:         %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Parse maps argv (without the program name) to a command.
func Parse(argv []string) (Command, Args) {
	var args Args
	remaining := make([]string, 0, len(argv))
	for _, a := range argv {
		switch a {
		case "--json":
			args.JSON = true
		case "-q", "--quiet":
			args.Quiet = true
		case "-v", "--verbose":
			args.Verbose = true
		case "--emergency":
			args.Emergency = true
		case "-h", "--help":
			return CmdHelp, args
		case "-V", "--version":
			return CmdVersion, args
		default:
			remaining = append(remaining, a)
		}
	}

	if len(remaining) == 0 {
		args.Sub = NewArgParser(nil, boolFlagNames...)
		return CmdChat, args
	}

	word := strings.ToLower(remaining[0])
	args.Sub = NewArgParser(remaining[1:], boolFlagNames...)

	switch word {
	case "chat", "tui":
		return CmdChat, args
	case "ask", "a":
		args.Query = args.Sub.JoinPositional(0)
		return CmdAsk, args
	case "repl":
		return CmdRepl, args
	case "history", "hist":
		return CmdHistory, args
	case "config", "cfg":
		return CmdConfig, args
	case "docs":
		return CmdDocs, args
	case "version":
		return CmdVersion, args
	case "help":
		return CmdHelp, args
	}

	// A bare question is treated as ask.
	if strings.Contains(remaining[0], " ") {
		args.Sub = NewArgParser(remaining, boolFlagNames...)
		args.Query = args.Sub.JoinPositional(0)
		return CmdAsk, args
	}
	args.Unknown = remaining[0]
	return CmdHelp, args
}

// HandleHelp prints usage, with a complaint first for an unknown command.
func HandleHelp(args Args) error {
	if args.Unknown != "" {
		fmt.Fprintln(stderr, errorStyle.Render(fmt.Sprintf("Unknown command: %s", args.Unknown)))
		fmt.Fprintln(stderr)
		PrintUsage(stderr)
		return &UsageError{Field: "command", Value: args.Unknown, Reason: "not recognised"}
	}
	PrintUsage(stdout)
	return nil
}

// HandleVersion prints version information, as JSON with --json.
func HandleVersion(args Args) error {
	if args.JSON {
		return NewJSONResponse("version", VersionData{
			Version:   Version,
			GitCommit: GitCommit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
		}).Print()
	}
	PrintVersion(stdout)
	return nil
}
