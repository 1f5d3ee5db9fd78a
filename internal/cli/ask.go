// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot question handler.
//
// Examples:
//   bridgechat ask "Main engine exhaust temperature high on cylinder 3"
//   bridgechat ask --conversation 2 "What torque for the injector clamp?"
//   echo "Bilge pump cycling" | bridgechat ask --json

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/jeranaias/bridgechat/internal/export"
	"github.com/jeranaias/bridgechat/internal/model"
)

// maxStdinQuestion caps a question piped on stdin.
const maxStdinQuestion = 16 * 1024

var (
	markdownRenderer     *glamour.TermRenderer
	markdownRendererOnce sync.Once
)

// renderMarkdown renders md for the terminal, or returns it unchanged when
// rendering is unavailable.
func renderMarkdown(md string) string {
	markdownRendererOnce.Do(func() {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(renderWidth()),
		)
		if err == nil {
			markdownRenderer = r
		}
	})
	if markdownRenderer == nil {
		return md
	}
	out, err := markdownRenderer.Render(md)
	if err != nil {
		return md
	}
	return out
}

// HandleAsk sends one question and prints the reply once it is fully
// revealed.
func HandleAsk(ctx context.Context, args Args) error {
	question := strings.TrimSpace(args.Query)
	if question == "" && !IsTTY() {
		data, err := io.ReadAll(io.LimitReader(os.Stdin, maxStdinQuestion))
		if err != nil {
			return fmt.Errorf("read question from stdin: %w", err)
		}
		question = strings.TrimSpace(string(data))
	}
	if question == "" {
		return ErrMissingArgument("question", `bridgechat ask "Fuel oil purifier alarm"`)
	}

	// One-shot output has nobody watching the typing effect.
	app, err := Boot(ctx, args, BootOptions{StreamInterval: time.Millisecond})
	if err != nil {
		return err
	}
	defer app.Close()

	convID := ""
	if ref := args.Sub.Flag("conversation", "c"); ref != "" {
		conv, err := resolveConversation(app, ref)
		if err != nil {
			return err
		}
		convID = conv.ID
	}

	interactive := IsStdoutTTY() && !args.JSON && !args.Quiet
	if interactive {
		fmt.Fprintln(stderr, dimStyle.Render("Consulting the knowledge base..."))
	}

	start := time.Now()
	out, err := app.Service.Submit(ctx, convID, question)
	if err != nil {
		return err
	}
	select {
	case <-out.Revealed:
	case <-ctx.Done():
		app.Service.Stop(out.ConversationID)
		return ctx.Err()
	}

	msg, err := app.Store.Message(out.ConversationID, out.ReplyMessageID)
	if err != nil {
		return err
	}
	msg = withDocLinks(msg, docsBaseURL(app))

	if args.JSON {
		return NewJSONResponse("ask", AskData{
			ConversationID: out.ConversationID,
			MessageID:      msg.ID,
			Reply:          msg.Text,
			Category:       msg.Category,
			Confidence:     msg.Confidence,
			Solutions:      msg.Solutions,
			Sources:        msg.Sources,
			Attempts:       out.Result.Attempts,
			Emergency:      out.Result.Emergency,
			DurationMs:     time.Since(start).Milliseconds(),
		}).Print()
	}
	if args.Quiet {
		fmt.Fprintln(stdout, msg.Text)
		return nil
	}

	if out.Result.Emergency {
		fmt.Fprintln(stdout, emergencyStyle.Render("EMERGENCY PLAYBOOK"))
	}
	md := export.MessageMarkdown(msg)
	if interactive {
		fmt.Fprint(stdout, renderMarkdown(md))
	} else {
		fmt.Fprint(stdout, md)
	}

	footer := fmt.Sprintf("%s | %d attempt(s) | conversation %s",
		time.Since(start).Round(time.Millisecond), out.Result.Attempts, shortID(out.ConversationID))
	if tokens, ok := app.Service.Tokens(); ok {
		footer += fmt.Sprintf(" | %d tokens left", tokens.Remaining)
	}
	fmt.Fprintln(stderr, dimStyle.Render(footer))
	return nil
}

// docsBaseURL is where the local document server answers.
func docsBaseURL(app *App) string {
	if app.Config.Docs.ListenAddr == "" {
		return ""
	}
	return "http://" + app.Config.Docs.ListenAddr
}

// withDocLinks fills in document server links for sources that name a
// table and id but carry no URL of their own.
func withDocLinks(msg *model.Message, base string) *model.Message {
	if base == "" || len(msg.Sources) == 0 {
		return msg
	}
	out := msg.Clone()
	for i, src := range out.Sources {
		if src.URL == "" && src.Table != "" && src.ID != "" {
			out.Sources[i].URL = strings.TrimRight(base, "/") + "/" + src.Table + "/" + src.ID
		}
	}
	return out
}

// shortID abbreviates a conversation id for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
