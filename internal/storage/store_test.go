// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jeranaias/bridgechat/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingBackend loads nothing and fails every write.
type failingBackend struct {
	mu    sync.Mutex
	saves int
}

func (f *failingBackend) Load(string) ([]*model.Conversation, error) { return nil, nil }
func (f *failingBackend) Name() string { return "failing" }
func (f *failingBackend) Close() error { return nil }

func (f *failingBackend) Save(string, *model.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	return errors.New("disk full")
}

func (f *failingBackend) Delete(string, string) error {
	return errors.New("disk full")
}

func newFileStore(t *testing.T, dir string) *Store {
	t.Helper()
	backend, err := NewFileBackend(dir, nil)
	require.NoError(t, err)
	s := Open("crew-1", backend, nil)
	s.now = steppingClock()
	return s
}

// steppingClock advances one second per call so ordering never depends on
// timer resolution.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

// =============================================================================
// TITLES
// =============================================================================

func TestAppendMessage_TitleFromFirstMessage(t *testing.T) {
	s := Open("u", nil, nil)

	long := s.CreateConversation()
	text := strings.Repeat("x", 45)
	require.NoError(t, s.AppendMessage(long.ID, model.NewUserMessage(text)))

	short := s.CreateConversation()
	require.NoError(t, s.AppendMessage(short.ID, model.NewUserMessage("Fuel leak?")))

	got, err := s.Conversation(long.ID)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", 30)+"...", got.Title)

	got, err = s.Conversation(short.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fuel leak?", got.Title)
}

func TestAppendMessage_LaterMessagesKeepTitle(t *testing.T) {
	s := Open("u", nil, nil)
	c := s.CreateConversation()
	require.NoError(t, s.AppendMessage(c.ID, model.NewUserMessage("Steering\npump noise")))
	require.NoError(t, s.AppendMessage(c.ID, model.NewUserMessage("something else")))

	got, err := s.Conversation(c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Steering pump noise", got.Title)
	assert.Len(t, got.Messages, 2)
}

func TestAppendMessage_BlankTextKeepsDefaultTitle(t *testing.T) {
	s := Open("u", nil, nil)
	c := s.CreateConversation()
	require.NoError(t, s.AppendMessage(c.ID, model.NewThinkingMessage()))

	got, err := s.Conversation(c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultTitle, got.Title)
}

// =============================================================================
// MUTATIONS
// =============================================================================

func TestCreateConversation_PrependsAndActivates(t *testing.T) {
	s := Open("u", nil, nil)
	a := s.CreateConversation()
	b := s.CreateConversation()

	assert.Equal(t, b.ID, s.Active())
	convs := s.Conversations()
	require.Len(t, convs, 2)
	assert.Equal(t, b.ID, convs[0].ID)
	assert.Equal(t, a.ID, convs[1].ID)
}

func TestMutateMessage(t *testing.T) {
	s := Open("u", nil, nil)
	c := s.CreateConversation()
	m := model.NewThinkingMessage()
	require.NoError(t, s.AppendMessage(c.ID, m))

	require.NoError(t, s.MutateMessage(c.ID, m.ID, model.Patch{
		Text:       model.String("Check the impeller"),
		IsThinking: model.Bool(false),
	}))

	got, err := s.Message(c.ID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "Check the impeller", got.Text)
	assert.False(t, got.IsThinking)

	err = s.MutateMessage(c.ID, "nope", model.Patch{})
	assert.ErrorIs(t, err, ErrMessageNotFound)
	err = s.MutateMessage("nope", m.ID, model.Patch{})
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestAppendMessage_StoresCopy(t *testing.T) {
	s := Open("u", nil, nil)
	c := s.CreateConversation()
	m := model.NewUserMessage("original")
	require.NoError(t, s.AppendMessage(c.ID, m))

	m.Text = "changed by caller"

	got, err := s.Message(c.ID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", got.Text)
}

func TestRemoveMessage_ReindexesRemaining(t *testing.T) {
	s := Open("u", nil, nil)
	c := s.CreateConversation()
	a, b, d := model.NewUserMessage("a"), model.NewUserMessage("b"), model.NewUserMessage("d")
	for _, m := range []*model.Message{a, b, d} {
		require.NoError(t, s.AppendMessage(c.ID, m))
	}

	require.NoError(t, s.RemoveMessage(c.ID, a.ID))
	require.NoError(t, s.MutateMessage(c.ID, d.ID, model.Patch{Text: model.String("d2")}))

	got, err := s.Conversation(c.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "b", got.Messages[0].Text)
	assert.Equal(t, "d2", got.Messages[1].Text)
	assert.ErrorIs(t, s.RemoveMessage(c.ID, a.ID), ErrMessageNotFound)
}

func TestDeleteConversation_ClearsActive(t *testing.T) {
	s := Open("u", nil, nil)
	keep := s.CreateConversation()
	gone := s.CreateConversation()
	require.Equal(t, gone.ID, s.Active())

	require.NoError(t, s.DeleteConversation(gone.ID))
	assert.Equal(t, "", s.Active())
	assert.Len(t, s.Summaries(), 1)

	require.NoError(t, s.SetActive(keep.ID))
	assert.Equal(t, keep.ID, s.Active())
}

func TestDeleteConversation_Unknown(t *testing.T) {
	s := Open("u", nil, nil)
	assert.ErrorIs(t, s.DeleteConversation("missing"), ErrConversationNotFound)
	assert.ErrorIs(t, s.SetActive("missing"), ErrConversationNotFound)
}

func TestOnChange_CalledOutsideLock(t *testing.T) {
	s := Open("u", nil, nil)
	var seen []string
	s.OnChange(func(id string) {
		// Reading back inside the callback would deadlock if the lock were held.
		_, _ = s.Conversation(id)
		seen = append(seen, id)
	})

	c := s.CreateConversation()
	require.NoError(t, s.AppendMessage(c.ID, model.NewUserMessage("q")))
	assert.Equal(t, []string{c.ID, c.ID}, seen)
}

// =============================================================================
// PERSISTENCE
// =============================================================================

func TestFailingBackend_NeverSurfacesErrors(t *testing.T) {
	backend := &failingBackend{}
	s := Open("u", backend, nil)

	c := s.CreateConversation()
	m := model.NewUserMessage("Bilge alarm on deck 2")
	require.NoError(t, s.AppendMessage(c.ID, m))
	require.NoError(t, s.MutateMessage(c.ID, m.ID, model.Patch{Category: model.String("bilge")}))
	require.NoError(t, s.DeleteConversation(c.ID))

	assert.True(t, s.Degraded())
	// Only the first write is attempted; later ones stay in memory.
	assert.Equal(t, 1, backend.saves)
}

func TestFailingBackend_StateStillServed(t *testing.T) {
	s := Open("u", &failingBackend{}, nil)
	c := s.CreateConversation()
	require.NoError(t, s.AppendMessage(c.ID, model.NewUserMessage("Radar blank")))

	got, err := s.Conversation(c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Radar blank", got.Title)
}

func TestFileBackend_ReloadRestoresState(t *testing.T) {
	dir := t.TempDir()
	s := newFileStore(t, dir)
	older := s.CreateConversation()
	require.NoError(t, s.AppendMessage(older.ID, model.NewUserMessage("first")))
	newer := s.CreateConversation()
	require.NoError(t, s.AppendMessage(newer.ID, model.NewUserMessage("second")))
	require.False(t, s.Degraded())

	reopened := newFileStore(t, dir)
	convs := reopened.Conversations()
	require.Len(t, convs, 2)
	assert.Equal(t, newer.ID, convs[0].ID)
	assert.Equal(t, "second", convs[0].Messages[0].Text)

	// Index is rebuilt on load.
	msgID := convs[1].Messages[0].ID
	require.NoError(t, reopened.MutateMessage(older.ID, msgID, model.Patch{Text: model.String("edited")}))
}

func TestFileBackend_ReloadSettlesInterruptedReveal(t *testing.T) {
	dir := t.TempDir()
	s := newFileStore(t, dir)
	conv := s.CreateConversation()
	require.NoError(t, s.AppendMessage(conv.ID, model.NewUserMessage("bilge alarm")))
	reply := model.NewThinkingMessage()
	require.NoError(t, s.AppendMessage(conv.ID, reply))
	require.NoError(t, s.MutateMessage(conv.ID, reply.ID, model.Patch{
		Text:        model.String("Check the"),
		IsThinking:  model.Bool(false),
		IsStreaming: model.Bool(true),
	}))

	reopened := newFileStore(t, dir)
	got, err := reopened.Message(conv.ID, reply.ID)
	require.NoError(t, err)
	assert.True(t, got.Settled())
	assert.Equal(t, "Check the", got.Text)
}

func TestFileBackend_UsersAreSeparated(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewFileBackend(dir, nil)
	require.NoError(t, err)

	a := Open("alice", backend, nil)
	a.CreateConversation()

	b := Open("bob", backend, nil)
	assert.Empty(t, b.Conversations())
}

func TestFileBackend_SkipsCorruptedFiles(t *testing.T) {
	dir := t.TempDir()
	s := newFileStore(t, dir)
	good := s.CreateConversation()

	userDir := filepath.Join(dir, userKey("crew-1"))
	require.NoError(t, os.WriteFile(filepath.Join(userDir, "broken.json"), []byte("{not json"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(userDir, "notes.txt"), []byte("ignored"), 0600))

	reopened := newFileStore(t, dir)
	convs := reopened.Conversations()
	require.Len(t, convs, 1)
	assert.Equal(t, good.ID, convs[0].ID)
}

func TestFileBackend_DeleteRemovesFile(t *testing.T) {
	dir := t.TempDir()
	s := newFileStore(t, dir)
	c := s.CreateConversation()
	require.NoError(t, s.DeleteConversation(c.ID))

	reopened := newFileStore(t, dir)
	assert.Empty(t, reopened.Conversations())
}

func TestFileBackend_RejectsPathIDs(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir(), nil)
	require.NoError(t, err)
	err = backend.Save("u", &model.Conversation{ID: "../escape"})
	assert.Error(t, err)
}

func TestBoltBackend_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conversations.db")
	backend, err := NewBoltBackend(path, nil)
	require.NoError(t, err)

	s := Open("crew-1", backend, nil)
	c := s.CreateConversation()
	require.NoError(t, s.AppendMessage(c.ID, model.NewUserMessage("Anchor winch stuck")))
	gone := s.CreateConversation()
	require.NoError(t, s.DeleteConversation(gone.ID))
	require.NoError(t, s.Close())

	backend, err = NewBoltBackend(path, nil)
	require.NoError(t, err)
	reopened := Open("crew-1", backend, nil)
	defer reopened.Close()

	convs := reopened.Conversations()
	require.Len(t, convs, 1)
	assert.Equal(t, "Anchor winch stuck", convs[0].Title)
	assert.Empty(t, Open("someone-else", backend, nil).Conversations())
}
