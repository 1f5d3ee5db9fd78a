// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/jeranaias/bridgechat/internal/assistant"
	"github.com/jeranaias/bridgechat/internal/export"
	"github.com/jeranaias/bridgechat/internal/storage"
	"github.com/jeranaias/bridgechat/internal/ui/styles"
)

// EmergencySwitch toggles canned replies. The dispatcher implements it.
type EmergencySwitch interface {
	SetEmergencyMode(on bool)
	EmergencyMode() bool
}

// Options configures the chat screen.
type Options struct {
	Emergency EmergencySwitch
	// Clipboard writes text to the system clipboard. Defaults to
	// clipboard.WriteAll.
	Clipboard func(string) error
	// DocsBaseURL turns reply sources into document server links.
	DocsBaseURL string
	// Export configures /export.
	Export *export.Options
}

// banner is the dismissible error shown above the input.
type banner struct {
	text      string
	warning   bool
	retryable bool
	convID    string
	until     time.Time
}

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	ctx   context.Context
	svc   *assistant.Service
	store *storage.Store
	opts  Options
	theme *styles.Theme
	keys  KeyMap

	width  int
	height int
	ready  bool

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	// changes is fed by the store observer and drained by waitForChange.
	changes chan string
	// waiting holds conversations with a request in flight.
	waiting map[string]bool

	banner *banner
	panel  string
	notice string
	now    func() time.Time
}

// New creates the chat screen. ctx bounds every exchange started from it.
func New(ctx context.Context, svc *assistant.Service, theme *styles.Theme, opts Options) Model {
	if opts.Clipboard == nil {
		opts.Clipboard = clipboard.WriteAll
	}
	if opts.Export == nil {
		opts.Export = export.DefaultOptions()
	}

	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Describe the fault, alarm or procedure..."
	ti.CharLimit = 4000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}

	m := Model{
		ctx:      ctx,
		svc:      svc,
		store:    svc.Store(),
		opts:     opts,
		theme:    theme,
		keys:     DefaultKeyMap(),
		viewport: viewport.New(80, 20),
		input:    ti,
		spinner:  sp,
		changes:  make(chan string, 1),
		waiting:  make(map[string]bool),
		now:      time.Now,
	}

	changes := m.changes
	m.store.OnChange(func(convID string) {
		// Coalesce: one pending notification is enough to trigger a redraw.
		select {
		case changes <- convID:
		default:
		}
	})
	return m
}

// Init starts the cursor blink, the spinner and the store subscription.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.waitForChange())
}

func (m Model) waitForChange() tea.Cmd {
	changes := m.changes
	return func() tea.Msg {
		return storeChangedMsg{ConversationID: <-changes}
	}
}

// activeConversation returns the id of the conversation on screen.
func (m Model) activeConversation() string {
	return m.store.Active()
}

// emergency reports whether canned replies are on.
func (m Model) emergency() bool {
	return m.opts.Emergency != nil && m.opts.Emergency.EmergencyMode()
}

// Run starts the chat screen in the alternate screen buffer and blocks until
// the user quits or ctx is cancelled.
func Run(ctx context.Context, svc *assistant.Service, opts Options) error {
	m := New(ctx, svc, styles.NewTheme(), opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	svc.Close()
	if ctx.Err() != nil {
		return nil
	}
	return err
}
