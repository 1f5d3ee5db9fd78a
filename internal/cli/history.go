// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// history.go - Conversation history handler.
//
// Conversations are addressed by their position in "history list" (1 is
// the most recent) or by id. Any unambiguous id prefix works.

package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jeranaias/bridgechat/internal/export"
	"github.com/jeranaias/bridgechat/internal/model"
	"github.com/jeranaias/bridgechat/internal/storage"
	"github.com/jeranaias/bridgechat/internal/util"
)

// HandleHistory routes history subcommands.
func HandleHistory(ctx context.Context, args Args) error {
	app, err := Boot(ctx, args, BootOptions{})
	if err != nil {
		return err
	}
	defer app.Close()

	sub := args.Sub.Subcommand()
	ref := args.Sub.Positional(1)

	switch sub {
	case "", "list", "ls":
		return historyList(app, args.JSON)
	case "show", "view":
		if ref == "" {
			return ErrMissingArgument("conversation", "bridgechat history show 1")
		}
		return historyShow(app, ref, args.JSON)
	case "delete", "rm":
		if ref == "" {
			return ErrMissingArgument("conversation", "bridgechat history delete 1 --yes")
		}
		return historyDelete(app, ref, args.Sub.BoolFlag("yes", "y"), os.Stdin)
	case "export":
		if ref == "" {
			return ErrMissingArgument("conversation", "bridgechat history export 1 --format html")
		}
		return historyExport(app, ref, args)
	default:
		return &UsageError{
			Field:   "history subcommand",
			Value:   sub,
			Reason:  "expected list, show, delete or export",
			Example: "bridgechat history list",
		}
	}
}

// resolveConversation finds a conversation by list position, id, or id
// prefix.
func resolveConversation(app *App, ref string) (*model.Conversation, error) {
	summaries := app.Store.Summaries()

	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(summaries) {
			return nil, &NotFoundError{Resource: "conversation", ID: ref}
		}
		return app.Store.Conversation(summaries[n-1].ID)
	}

	var match string
	for _, s := range summaries {
		if s.ID == ref {
			return app.Store.Conversation(s.ID)
		}
		if strings.HasPrefix(s.ID, ref) {
			if match != "" {
				return nil, &UsageError{Field: "conversation", Value: ref, Reason: "matches more than one conversation"}
			}
			match = s.ID
		}
	}
	if match == "" {
		return nil, &NotFoundError{Resource: "conversation", ID: ref}
	}
	return app.Store.Conversation(match)
}

// =============================================================================
// LIST
// =============================================================================

func historyList(app *App, jsonMode bool) error {
	summaries := app.Store.Summaries()

	if jsonMode {
		entries := make([]HistoryEntry, 0, len(summaries))
		for i, s := range summaries {
			entries = append(entries, HistoryEntry{
				Index:        i + 1,
				ID:           s.ID,
				Title:        s.Title,
				Messages:     s.MessageCount,
				LastActivity: s.Timestamp,
			})
		}
		return NewJSONResponse("history list", entries).Print()
	}

	if len(summaries) == 0 {
		fmt.Fprintln(stdout, dimStyle.Render("No conversations yet. Start one with 'bridgechat' or 'bridgechat ask'."))
		return nil
	}
	writeHistoryTable(stdout, summaries, TerminalWidth())
	return nil
}

// writeHistoryTable prints one row per conversation, titles padded by
// display width so wide characters keep the columns aligned.
func writeHistoryTable(w io.Writer, summaries []storage.Summary, width int) {
	const fixed = 4 + 2 + 8 + 2 + 2 + 6 + 2 + 16
	titleWidth := width - fixed
	if titleWidth < 16 {
		titleWidth = 16
	}

	header := fmt.Sprintf("%4s  %-8s  %s  %6s  %s",
		"#", "ID", util.PadWidth("TITLE", titleWidth), "MSGS", "LAST ACTIVITY")
	fmt.Fprintln(w, titleStyle.Render(header))
	for i, s := range summaries {
		fmt.Fprintf(w, "%4d  %-8s  %s  %6d  %s\n",
			i+1,
			shortID(s.ID),
			util.PadWidth(util.SingleLine(s.Title), titleWidth),
			s.MessageCount,
			s.Timestamp.Local().Format("2006-01-02 15:04"),
		)
	}
}

// =============================================================================
// SHOW
// =============================================================================

func historyShow(app *App, ref string, jsonMode bool) error {
	conv, err := resolveConversation(app, ref)
	if err != nil {
		return err
	}
	if jsonMode {
		return NewJSONResponse("history show", conv).Print()
	}

	base := docsBaseURL(app)
	rich := IsStdoutTTY()

	fmt.Fprintln(stdout, titleStyle.Render(conv.Title))
	fmt.Fprintln(stdout, dimStyle.Render(fmt.Sprintf("%s | %d messages | %s",
		conv.ID, len(conv.Messages), conv.Timestamp.Local().Format("2006-01-02 15:04"))))
	fmt.Fprintln(stdout, separator(TerminalWidth()-4))

	for _, msg := range conv.Messages {
		label := assistantStyle.Render("Assistant")
		if msg.IsUser {
			label = promptStyle.Render("You")
		}
		fmt.Fprintf(stdout, "%s %s\n", label, dimStyle.Render(msg.Timestamp.Local().Format("15:04:05")))

		md := export.MessageMarkdown(withDocLinks(msg, base))
		if msg.IsUser || !rich {
			fmt.Fprintln(stdout, strings.TrimRight(md, "\n"))
		} else {
			fmt.Fprint(stdout, renderMarkdown(md))
		}
		fmt.Fprintln(stdout)
	}
	return nil
}

// =============================================================================
// DELETE
// =============================================================================

func historyDelete(app *App, ref string, confirmed bool, in io.Reader) error {
	conv, err := resolveConversation(app, ref)
	if err != nil {
		return err
	}
	if !confirmed {
		if !IsTTY() {
			return &UsageError{Field: "confirmation", Reason: "pass --yes to delete without a terminal",
				Example: "bridgechat history delete " + ref + " --yes"}
		}
		if !confirm(in, fmt.Sprintf("Delete %q (%d messages)?", conv.Title, len(conv.Messages))) {
			fmt.Fprintln(stdout, dimStyle.Render("Cancelled."))
			return nil
		}
	}
	if err := app.Store.DeleteConversation(conv.ID); err != nil {
		return err
	}
	fmt.Fprintln(stdout, successStyle.Render("Deleted "+conv.Title))
	return nil
}

// confirm asks a yes/no question on stdout and reads the answer from in.
func confirm(in io.Reader, question string) bool {
	fmt.Fprint(stdout, warningStyle.Render(question)+" [y/N] ")
	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// =============================================================================
// EXPORT
// =============================================================================

func historyExport(app *App, ref string, args Args) error {
	conv, err := resolveConversation(app, ref)
	if err != nil {
		return err
	}

	opts := export.DefaultOptions()
	opts.OutputDir = args.Sub.FlagOrDefault("output", ".")
	opts.OpenAfterExport = args.Sub.BoolFlag("open")
	if theme := args.Sub.Flag("theme"); theme != "" {
		opts.Theme = theme
	}

	exporter, err := export.ForFormat(args.Sub.FlagOrDefault("format", "md"), opts)
	if err != nil {
		return &UsageError{Field: "--format", Value: args.Sub.Flag("format"), Reason: err.Error()}
	}
	path, err := export.ExportToFile(conv, exporter, opts)
	if err != nil {
		return err
	}

	if args.JSON {
		return NewJSONResponse("history export", map[string]string{
			"conversationId": conv.ID,
			"path":           path,
			"mimeType":       exporter.MimeType(),
		}).Print()
	}
	fmt.Fprintln(stdout, successStyle.Render("Exported to "+path))
	return nil
}
