// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jeranaias/bridgechat/internal/assistant"
	"github.com/jeranaias/bridgechat/internal/config"
	"github.com/jeranaias/bridgechat/internal/dispatch"
	"github.com/jeranaias/bridgechat/internal/export"
	"github.com/jeranaias/bridgechat/internal/model"
	"github.com/jeranaias/bridgechat/internal/storage"
	"github.com/jeranaias/bridgechat/internal/stream"
	"github.com/jeranaias/bridgechat/internal/ui/styles"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testScreen struct {
	m          Model
	store      *storage.Store
	dispatcher *dispatch.Dispatcher
	hits       *atomic.Int32
	copied     *string
}

func newScreen(t *testing.T, handler http.HandlerFunc) *testScreen {
	t.Helper()
	hits := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	d, err := dispatch.New(dispatch.Config{
		BaseURL:    srv.URL,
		MaxRetries: 2,
		Timeout:    2 * time.Second,
		RetryDelay: 10 * time.Millisecond,
		Policies:   config.DefaultPolicies(),
	}, dispatch.NewQueue(2))
	require.NoError(t, err)
	d.WithHTTPClient(srv.Client())

	store := storage.Open("crew-1", nil, nil)
	emu := stream.New(store, 2*time.Millisecond, nil)
	svc := assistant.New(d, store, emu, nil, assistant.Options{
		Endpoint: "/maritime-chat",
		Identity: assistant.Identity{UserID: "crew-1", SessionID: "s1"},
	}, nil)
	t.Cleanup(svc.Close)

	var copied string
	exportOpts := export.DefaultOptions()
	exportOpts.OutputDir = filepath.Join(t.TempDir(), "exports")
	m := New(context.Background(), svc, styles.NewThemeWithProfile(termenv.Ascii, true), Options{
		Emergency:   d,
		Clipboard:   func(s string) error { copied = s; return nil },
		DocsBaseURL: "http://127.0.0.1:8088/",
		Export:      exportOpts,
	})
	s := &testScreen{m: m, store: store, dispatcher: d, hits: hits, copied: &copied}
	s.send(t, tea.WindowSizeMsg{Width: 100, Height: 40})
	return s
}

func (s *testScreen) send(t *testing.T, msg tea.Msg) tea.Cmd {
	t.Helper()
	next, cmd := s.m.Update(msg)
	s.m = next.(Model)
	return cmd
}

func (s *testScreen) typeLine(t *testing.T, text string) tea.Cmd {
	t.Helper()
	s.m.input.SetValue(text)
	return s.send(t, tea.KeyMsg{Type: tea.KeyEnter})
}

// finish runs an exchange command, waits for its reveal and feeds the
// results back into the model.
func (s *testScreen) finish(t *testing.T, cmd tea.Cmd) exchangeDoneMsg {
	t.Helper()
	require.NotNil(t, cmd)
	done, ok := cmd().(exchangeDoneMsg)
	require.True(t, ok)
	if done.Err == nil {
		select {
		case <-done.Outcome.Revealed:
		case <-time.After(2 * time.Second):
			t.Fatal("reply was not revealed")
		}
	}
	s.send(t, done)
	s.send(t, storeChangedMsg{ConversationID: done.ConversationID})
	return done
}

func reply(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) { io.WriteString(w, body) }
}

// =============================================================================
// EXCHANGES
// =============================================================================

func TestSubmit_RendersRevealedReply(t *testing.T) {
	s := newScreen(t, reply(`{"response":{"message":"Clean the sea water strainer.",
		"solutions":[{"title":"Strainer","confidence":0.8,"steps":["Isolate the pump"]}],
		"sources":[{"title":"Cooling manual","table":"manuals","id":"m-7"}]},
		"metadata":{"category":"engine","confidence":0.8,"tokensRemaining":42}}`))

	cmd := s.typeLine(t, "Engine running hot")
	assert.Empty(t, s.m.input.Value())
	assert.Contains(t, s.m.View(), "waiting for the assistant")

	done := s.finish(t, cmd)
	require.NoError(t, done.Err)
	assert.Empty(t, s.m.waiting)

	view := s.m.View()
	assert.Contains(t, view, "Engine running hot")
	assert.Contains(t, view, "Clean the sea water strainer.")
	assert.Contains(t, view, "Category: engine | Confidence: 80%")
	assert.Contains(t, view, "1. Strainer (80%)")
	assert.Contains(t, view, "- Isolate the pump")
	assert.Contains(t, view, "http://127.0.0.1:8088/manuals/m-7")
	assert.Nil(t, s.m.banner)
}

func TestSubmit_ThinkingRowUntilStopped(t *testing.T) {
	arrived := make(chan struct{}, 1)
	s := newScreen(t, func(w http.ResponseWriter, r *http.Request) {
		arrived <- struct{}{}
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	})

	cmd := s.typeLine(t, "Fuel filter alarm")
	require.NotNil(t, cmd)
	results := make(chan tea.Msg, 1)
	go func() { results <- cmd() }()
	<-arrived

	convID := s.m.activeConversation()
	s.send(t, storeChangedMsg{ConversationID: convID})
	assert.Contains(t, s.m.View(), "Consulting the knowledge base...")

	s.send(t, tea.KeyMsg{Type: tea.KeyEsc})
	var done exchangeDoneMsg
	select {
	case msg := <-results:
		done = msg.(exchangeDoneMsg)
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not end the exchange")
	}
	require.True(t, dispatch.IsAborted(done.Err))
	s.send(t, done)
	s.send(t, storeChangedMsg{ConversationID: convID})

	view := s.m.View()
	assert.NotContains(t, view, "Consulting the knowledge base...")
	assert.Contains(t, view, "(stopped)")
	assert.Nil(t, s.m.banner)
}

func TestSubmit_EmptyInputIgnored(t *testing.T) {
	s := newScreen(t, reply(`"x"`))
	assert.Nil(t, s.typeLine(t, "   "))
	assert.Empty(t, s.store.Conversations())
}

func TestSubmit_RateLimitBannerWithCountdown(t *testing.T) {
	reset := time.Now().Add(30 * time.Second).Unix()
	s := newScreen(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprintf(w, `{"success":false,"error":{"code":"RATE_LIMIT_EXCEEDED","message":"Slow down","resetTime":%d}}`, reset)
	})

	done := s.finish(t, s.typeLine(t, "Gyro drift"))
	require.Error(t, done.Err)

	require.NotNil(t, s.m.banner)
	assert.True(t, s.m.banner.warning)
	view := s.m.View()
	assert.Contains(t, view, "Slow down")
	assert.Contains(t, view, "Retry in")
	assert.Contains(t, view, "C-r to retry")

	// Retry is held back until the countdown ends.
	assert.Nil(t, s.send(t, tea.KeyMsg{Type: tea.KeyCtrlR}))
	assert.Equal(t, int32(1), s.hits.Load())

	s.send(t, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Nil(t, s.m.banner)
	assert.NotContains(t, s.m.View(), "Slow down")
}

func TestSubmit_TransportFailureThenRetry(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	s := newScreen(t, func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		io.WriteString(w, `"Radar restored."`)
	})

	done := s.finish(t, s.typeLine(t, "Radar blank"))
	require.Error(t, done.Err)
	require.NotNil(t, s.m.banner)
	assert.True(t, s.m.banner.retryable)
	assert.Contains(t, s.m.View(), "Could not reach the assistant")

	fail.Store(false)
	done = s.finish(t, s.send(t, tea.KeyMsg{Type: tea.KeyCtrlR}))
	require.NoError(t, done.Err)
	assert.Nil(t, s.m.banner)

	conv, err := s.store.Conversation(done.ConversationID)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "Radar restored.", conv.Messages[1].Text)
}

func TestEmergencyMode_Toggle(t *testing.T) {
	s := newScreen(t, reply(`"should not be called"`))

	assert.Nil(t, s.typeLine(t, "/emergency on"))
	assert.True(t, s.dispatcher.EmergencyMode())
	assert.Contains(t, s.m.View(), "EMERGENCY")

	done := s.finish(t, s.typeLine(t, "Fire in the engine room"))
	require.NoError(t, done.Err)
	assert.Equal(t, int32(0), s.hits.Load())
	assert.Contains(t, s.m.notice, "Emergency mode")

	s.send(t, tea.KeyMsg{Type: tea.KeyCtrlE})
	assert.False(t, s.dispatcher.EmergencyMode())
	assert.NotContains(t, s.m.View(), "EMERGENCY")
}

// =============================================================================
// COMMANDS
// =============================================================================

func TestCommands_ListAndOpen(t *testing.T) {
	s := newScreen(t, reply(`"x"`))
	first := s.store.CreateConversation()
	require.NoError(t, s.store.AppendMessage(first.ID, model.NewUserMessage("Bilge pump cycling")))
	second := s.store.CreateConversation()
	require.NoError(t, s.store.AppendMessage(second.ID, model.NewUserMessage("Anchor winch stuck")))

	s.typeLine(t, "/list")
	assert.Contains(t, s.m.View(), "Bilge pump cycling")
	assert.Contains(t, s.m.View(), "Anchor winch stuck")

	s.typeLine(t, "/open 2")
	assert.Equal(t, first.ID, s.store.Active())
	assert.Contains(t, s.m.View(), "Bilge pump cycling")

	s.typeLine(t, "/open 9")
	assert.Equal(t, "No conversation 9", s.m.notice)
}

func TestCommands_NewAndDelete(t *testing.T) {
	s := newScreen(t, reply(`"x"`))

	s.send(t, tea.KeyMsg{Type: tea.KeyCtrlN})
	active := s.store.Active()
	require.NotEmpty(t, active)

	s.typeLine(t, "/delete")
	assert.Empty(t, s.store.Conversations())
	assert.Empty(t, s.store.Active())
	assert.Contains(t, s.m.View(), "Ask about an alarm")
}

func TestCommands_CopyLastReply(t *testing.T) {
	s := newScreen(t, reply(`"Bleed the fuel filter."`))
	s.finish(t, s.typeLine(t, "Generator will not start"))

	cmd := s.send(t, tea.KeyMsg{Type: tea.KeyCtrlY})
	require.NotNil(t, cmd)
	s.send(t, cmd())
	assert.Equal(t, "Bleed the fuel filter.", *s.copied)
	assert.Equal(t, "Copied reply (22 chars)", s.m.notice)
}

func TestCommands_Export(t *testing.T) {
	s := newScreen(t, reply(`"Bleed the fuel filter."`))
	s.finish(t, s.typeLine(t, "Generator will not start"))

	s.typeLine(t, "/export json")
	assert.Contains(t, s.m.notice, "Exported to ")
	assert.Contains(t, s.m.notice, ".json")
}

func TestCommands_Unknown(t *testing.T) {
	s := newScreen(t, reply(`"x"`))
	s.typeLine(t, "/launch")
	assert.Equal(t, "Unknown command /launch (try /help)", s.m.notice)

	s.typeLine(t, "/help")
	assert.Contains(t, s.m.View(), "/emergency on|off")
}

func TestStoreChange_RefreshesView(t *testing.T) {
	s := newScreen(t, reply(`"x"`))
	c := s.store.CreateConversation()
	require.NoError(t, s.store.AppendMessage(c.ID, model.NewUserMessage("Steering gear alarm")))

	cmd := s.send(t, storeChangedMsg{ConversationID: c.ID})
	assert.NotNil(t, cmd, "subscription is renewed")
	assert.Contains(t, s.m.View(), "Steering gear alarm")
}
