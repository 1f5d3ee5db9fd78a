// bridgechat - terminal client for the maritime troubleshooting assistant.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeranaias/bridgechat/internal/cli"
)

// Version information (set at build time)
var (
	Version   = "0.4.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse(os.Args[1:])

	// The repl turns Ctrl+C into "stop this reply" itself.
	signals := []os.Signal{syscall.SIGTERM}
	if cmd != cli.CmdRepl {
		signals = append(signals, os.Interrupt)
	}
	ctx, stop := signal.NotifyContext(context.Background(), signals...)

	var err error
	switch cmd {
	case cli.CmdChat:
		err = cli.HandleChat(ctx, args)
	case cli.CmdAsk:
		err = cli.HandleAsk(ctx, args)
	case cli.CmdRepl:
		err = cli.HandleRepl(ctx, args)
	case cli.CmdHistory:
		err = cli.HandleHistory(ctx, args)
	case cli.CmdConfig:
		err = cli.HandleConfig(args)
	case cli.CmdDocs:
		err = cli.HandleDocs(ctx, args)
	case cli.CmdVersion:
		err = cli.HandleVersion(args)
	default:
		err = cli.HandleHelp(args)
	}
	interrupted := ctx.Err() != nil
	stop()

	if err != nil {
		if interrupted {
			os.Exit(130)
		}
		if args.Unknown == "" {
			cli.DisplayError(cmd.String(), err, args.JSON)
		}
		os.Exit(cli.ExitCode(err))
	}
}
