// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// repl.go - Line-based chat for terminals where the full-screen UI does
// not fit (serial consoles, ssh over satellite links).
//
// Interactive commands:
//   /help             Show commands
//   /new              Start a new conversation
//   /list             List conversations
//   /open N           Continue conversation N
//   /retry            Ask the last question again
//   /emergency on|off Toggle the emergency playbook
//   /export [FORMAT]  Export the conversation (md, json, html)
//   /quit             Exit
//   Ctrl+C            Stop the reply in progress
//   Ctrl+D            Exit

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jeranaias/bridgechat/internal/assistant"
	"github.com/jeranaias/bridgechat/internal/config"
	"github.com/jeranaias/bridgechat/internal/export"
	"github.com/peterh/liner"
	"go.uber.org/zap"
)

const replHistoryFile = "repl_history"

// HandleRepl runs the line-based chat until /quit, Ctrl+D or ctx ends.
func HandleRepl(ctx context.Context, args Args) error {
	app, err := Boot(ctx, args, BootOptions{})
	if err != nil {
		return err
	}
	defer app.Close()

	r := newRepl(app, stdout)
	defer r.close()

	r.banner()
	for {
		if ctx.Err() != nil {
			return nil
		}
		input, err := r.line.Prompt(r.prompt())
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if err == io.EOF {
			fmt.Fprintln(r.out)
			return nil
		}
		if err != nil {
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		r.line.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			if quit := r.command(ctx, input); quit {
				return nil
			}
			continue
		}
		r.ask(ctx, func(ctx context.Context) (*assistant.Outcome, error) {
			return app.Service.Submit(ctx, r.currentConversation(), input)
		})
	}
}

// repl prints revealed words as the emulator writes them to the store.
type repl struct {
	app         *App
	out         io.Writer
	line        *liner.State
	historyPath string
	convID      string

	mu      sync.Mutex
	target  string // reply being printed
	printed string // text of target already written
}

func newRepl(app *App, out io.Writer) *repl {
	r := &repl{app: app, out: out, line: liner.NewLiner()}
	r.line.SetCtrlCAborts(true)
	r.line.SetCompleter(completeSlash)

	if dir, err := config.ConfigDir(); err == nil {
		r.historyPath = filepath.Join(dir, replHistoryFile)
		if f, err := os.Open(r.historyPath); err == nil {
			r.line.ReadHistory(f)
			f.Close()
		}
	}

	app.Store.OnChange(func(convID string) {
		if convID == r.currentConversation() {
			r.flush()
		}
	})
	return r
}

func (r *repl) close() {
	if r.historyPath != "" {
		if f, err := os.OpenFile(r.historyPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			if _, err := r.line.WriteHistory(f); err != nil {
				r.app.Logger.Debug("could not save repl history", zap.Error(err))
			}
			f.Close()
		}
	}
	r.line.Close()
}

func (r *repl) currentConversation() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.convID
}

func (r *repl) setConversation(id string) {
	r.mu.Lock()
	r.convID = id
	r.target, r.printed = "", ""
	r.mu.Unlock()
}

func (r *repl) prompt() string {
	if r.app.Dispatcher.EmergencyMode() {
		return "EMERGENCY> "
	}
	return "bridge> "
}

func (r *repl) banner() {
	fmt.Fprintln(r.out, titleStyle.Render("bridgechat "+Version))
	fmt.Fprintln(r.out, dimStyle.Render("Describe the fault. /help for commands, Ctrl+D to exit."))
	if r.app.Store.Degraded() {
		fmt.Fprintln(r.out, warningStyle.Render("History is not being saved this session."))
	}
	fmt.Fprintln(r.out)
}

// =============================================================================
// EXCHANGES
// =============================================================================

// ask runs one exchange. Ctrl+C while it runs stops the reply rather than
// the program.
func (r *repl) ask(ctx context.Context, send func(context.Context) (*assistant.Outcome, error)) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)
	go func() {
		select {
		case <-interrupts:
			if id := r.currentConversation(); id != "" {
				r.app.Service.Stop(id)
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Fprintln(r.out, dimStyle.Render("Consulting the knowledge base..."))
	out, err := send(ctx)
	if out != nil && out.ConversationID != r.currentConversation() {
		r.setConversation(out.ConversationID)
	}
	if out == nil && r.currentConversation() == "" {
		// A first question that failed still created its conversation.
		r.setConversation(r.app.Store.Active())
	}
	if err != nil {
		fmt.Fprintln(r.out, errorStyle.Render(describe(err)))
		if !errors.Is(err, assistant.ErrBusy) {
			fmt.Fprintln(r.out, dimStyle.Render("Type /retry to ask again."))
		}
		return
	}

	fmt.Fprint(r.out, assistantStyle.Render("Assistant")+" ")
	r.mu.Lock()
	r.target, r.printed = out.ReplyMessageID, ""
	r.mu.Unlock()
	r.flush()

	select {
	case <-out.Revealed:
	case <-ctx.Done():
		r.app.Service.Stop(out.ConversationID)
	}
	r.flush()

	r.mu.Lock()
	r.target = ""
	r.mu.Unlock()
	fmt.Fprintln(r.out)
	r.details(out)
}

// flush writes whatever part of the target reply has not been printed.
func (r *repl) flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.target == "" {
		return
	}
	msg, err := r.app.Store.Message(r.convID, r.target)
	if err != nil || !strings.HasPrefix(msg.Text, r.printed) {
		return
	}
	fmt.Fprint(r.out, msg.Text[len(r.printed):])
	r.printed = msg.Text
}

// details prints the structured part of a reply after its text.
func (r *repl) details(out *assistant.Outcome) {
	msg, err := r.app.Store.Message(out.ConversationID, out.ReplyMessageID)
	if err != nil {
		return
	}
	msg = withDocLinks(msg, docsBaseURL(r.app))
	msg.Text = ""
	md := strings.TrimSpace(export.MessageMarkdown(msg))
	if md == "" {
		return
	}
	if IsStdoutTTY() {
		fmt.Fprint(r.out, renderMarkdown(md))
	} else {
		fmt.Fprintln(r.out, md)
	}
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

var slashCommands = []string{"/help", "/new", "/list", "/open", "/retry", "/emergency", "/export", "/quit"}

func completeSlash(line string) []string {
	if !strings.HasPrefix(line, "/") {
		return nil
	}
	var out []string
	for _, c := range slashCommands {
		if strings.HasPrefix(c, line) {
			out = append(out, c)
		}
	}
	return out
}

// command runs a slash command and reports whether to exit.
func (r *repl) command(ctx context.Context, input string) bool {
	fields := strings.Fields(input)
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch strings.ToLower(fields[0]) {
	case "/quit", "/exit", "/q":
		return true
	case "/help", "/h", "/?":
		for _, c := range slashCommands {
			fmt.Fprintln(r.out, "  "+c)
		}
	case "/new":
		r.setConversation(r.app.Store.CreateConversation().ID)
		fmt.Fprintln(r.out, successStyle.Render("New conversation"))
	case "/list", "/history":
		summaries := r.app.Store.Summaries()
		if len(summaries) == 0 {
			fmt.Fprintln(r.out, dimStyle.Render("No conversations yet."))
			break
		}
		writeHistoryTable(r.out, summaries, TerminalWidth())
	case "/open":
		if arg == "" {
			fmt.Fprintln(r.out, warningStyle.Render("Usage: /open N"))
			break
		}
		conv, err := resolveConversation(r.app, arg)
		if err != nil {
			fmt.Fprintln(r.out, errorStyle.Render(err.Error()))
			break
		}
		r.setConversation(conv.ID)
		if err := r.app.Store.SetActive(conv.ID); err != nil {
			r.app.Logger.Debug("could not activate conversation", zap.Error(err))
		}
		fmt.Fprintln(r.out, successStyle.Render(fmt.Sprintf("Continuing %q (%d messages)", conv.Title, len(conv.Messages))))
	case "/retry", "/regenerate":
		id := r.currentConversation()
		if id == "" {
			fmt.Fprintln(r.out, warningStyle.Render("Nothing to retry yet."))
			break
		}
		r.ask(ctx, func(ctx context.Context) (*assistant.Outcome, error) {
			return r.app.Service.Regenerate(ctx, id)
		})
	case "/emergency":
		on := !r.app.Dispatcher.EmergencyMode()
		switch strings.ToLower(arg) {
		case "on":
			on = true
		case "off":
			on = false
		}
		r.app.Dispatcher.SetEmergencyMode(on)
		if on {
			fmt.Fprintln(r.out, emergencyStyle.Render("EMERGENCY MODE ON")+" "+dimStyle.Render("replies come from the built-in playbook"))
		} else {
			fmt.Fprintln(r.out, successStyle.Render("Emergency mode off"))
		}
	case "/export":
		r.export(arg)
	default:
		fmt.Fprintln(r.out, warningStyle.Render("Unknown command "+fields[0]+". Type /help."))
	}
	return false
}

func (r *repl) export(format string) {
	id := r.currentConversation()
	if id == "" {
		fmt.Fprintln(r.out, warningStyle.Render("No conversation to export."))
		return
	}
	conv, err := r.app.Store.Conversation(id)
	if err != nil {
		fmt.Fprintln(r.out, errorStyle.Render(err.Error()))
		return
	}
	if format == "" {
		format = "md"
	}
	exporter, err := export.ForFormat(format, nil)
	if err != nil {
		fmt.Fprintln(r.out, errorStyle.Render(err.Error()))
		return
	}
	path, err := export.ExportToFile(conv, exporter, nil)
	if err != nil {
		fmt.Fprintln(r.out, errorStyle.Render(err.Error()))
		return
	}
	fmt.Fprintln(r.out, successStyle.Render("Exported to "+path))
}
