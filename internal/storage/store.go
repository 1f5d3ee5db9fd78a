// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/jeranaias/bridgechat/internal/logging"
	"github.com/jeranaias/bridgechat/internal/metrics"
	"github.com/jeranaias/bridgechat/internal/model"
	"github.com/jeranaias/bridgechat/internal/util"
	"go.uber.org/zap"
)

// TitleMaxRunes is the title length before an ellipsis is added.
const TitleMaxRunes = 30

// Summary is the lightweight listing form of a conversation.
type Summary struct {
	ID           string
	Title        string
	Timestamp    time.Time
	MessageCount int
}

type entry struct {
	conv  *model.Conversation
	index map[string]int // message id -> position in conv.Messages
}

func newEntry(conv *model.Conversation) *entry {
	e := &entry{conv: conv}
	e.reindex()
	return e
}

func (e *entry) reindex() {
	e.index = make(map[string]int, len(e.conv.Messages))
	for i, m := range e.conv.Messages {
		e.index[m.ID] = i
	}
}

// Store is the in-memory conversation state of one user with write-through
// persistence.
type Store struct {
	mu       sync.Mutex
	userID   string
	backend  Backend
	order    []string // conversation ids, most recent first
	entries  map[string]*entry
	active   string
	degraded bool

	obsMu     sync.RWMutex
	observers []func(convID string)

	logger *zap.Logger
	now    func() time.Time
}

// Open loads the user's conversations from backend and returns a ready
// store. A nil backend gives a memory-only store. A backend that cannot be
// read leaves the store empty; it never fails.
func Open(userID string, backend Backend, logger *zap.Logger) *Store {
	s := &Store{
		userID:  userID,
		backend: backend,
		entries: make(map[string]*entry),
		logger:  logging.OrNop(logger).Named("store"),
		now:     time.Now,
	}
	if backend == nil {
		return s
	}

	convs, err := backend.Load(userID)
	if err != nil {
		s.logger.Warn("could not load conversations, starting empty",
			zap.String("backend", backend.Name()), zap.Error(err))
		return s
	}
	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].Timestamp.After(convs[j].Timestamp)
	})
	for _, c := range convs {
		if _, dup := s.entries[c.ID]; dup {
			continue
		}
		if c.Messages == nil {
			c.Messages = []*model.Message{}
		}
		// A previous session may have exited mid-reveal.
		for _, m := range c.Messages {
			if !m.Settled() {
				model.SettlePatch().Apply(m)
			}
		}
		s.entries[c.ID] = newEntry(c)
		s.order = append(s.order, c.ID)
	}
	return s
}

// UserID returns the owner of the store.
func (s *Store) UserID() string { return s.userID }

// OnChange registers fn to run after every mutation with the id of the
// conversation that changed. Callbacks run outside the store lock.
func (s *Store) OnChange(fn func(convID string)) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *Store) notify(convID string) {
	s.obsMu.RLock()
	obs := append([]func(string){}, s.observers...)
	s.obsMu.RUnlock()
	for _, fn := range obs {
		fn(convID)
	}
}

// =============================================================================
// MUTATIONS
// =============================================================================

// CreateConversation adds an empty conversation at the top of the list and
// makes it active.
func (s *Store) CreateConversation() *model.Conversation {
	conv := model.NewConversation()
	conv.Timestamp = s.now()

	s.mu.Lock()
	s.entries[conv.ID] = newEntry(conv)
	s.order = append([]string{conv.ID}, s.order...)
	s.active = conv.ID
	s.persistLocked(conv)
	out := conv.Clone()
	s.mu.Unlock()

	s.notify(conv.ID)
	return out
}

// AppendMessage adds a copy of msg to the conversation. The first message
// names the conversation.
func (s *Store) AppendMessage(convID string, msg *model.Message) error {
	s.mu.Lock()
	e, ok := s.entries[convID]
	if !ok {
		s.mu.Unlock()
		return conversationNotFound(convID)
	}
	if len(e.conv.Messages) == 0 {
		if title := Title(msg.Text); title != "" {
			e.conv.Title = title
		}
	}
	e.index[msg.ID] = len(e.conv.Messages)
	e.conv.Messages = append(e.conv.Messages, msg.Clone())
	e.conv.Timestamp = s.now()
	s.persistLocked(e.conv)
	s.mu.Unlock()

	s.notify(convID)
	return nil
}

// MutateMessage applies patch to one message.
func (s *Store) MutateMessage(convID, msgID string, patch model.Patch) error {
	s.mu.Lock()
	e, ok := s.entries[convID]
	if !ok {
		s.mu.Unlock()
		return conversationNotFound(convID)
	}
	i, ok := e.index[msgID]
	if !ok {
		s.mu.Unlock()
		return messageNotFound(msgID)
	}
	patch.Apply(e.conv.Messages[i])
	s.persistLocked(e.conv)
	s.mu.Unlock()

	s.notify(convID)
	return nil
}

// RemoveMessage deletes one message. Used when a reply is regenerated or a
// placeholder is withdrawn.
func (s *Store) RemoveMessage(convID, msgID string) error {
	s.mu.Lock()
	e, ok := s.entries[convID]
	if !ok {
		s.mu.Unlock()
		return conversationNotFound(convID)
	}
	i, ok := e.index[msgID]
	if !ok {
		s.mu.Unlock()
		return messageNotFound(msgID)
	}
	e.conv.Messages = append(e.conv.Messages[:i], e.conv.Messages[i+1:]...)
	e.reindex()
	s.persistLocked(e.conv)
	s.mu.Unlock()

	s.notify(convID)
	return nil
}

// DeleteConversation removes the conversation and clears the active
// selection if it pointed at it.
func (s *Store) DeleteConversation(convID string) error {
	s.mu.Lock()
	if _, ok := s.entries[convID]; !ok {
		s.mu.Unlock()
		return conversationNotFound(convID)
	}
	delete(s.entries, convID)
	for i, id := range s.order {
		if id == convID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.active == convID {
		s.active = ""
	}
	if s.writable() {
		if err := s.backend.Delete(s.userID, convID); err != nil {
			s.degradeLocked(err)
		}
	}
	s.mu.Unlock()

	s.notify(convID)
	return nil
}

// SetActive selects a conversation. An empty id clears the selection.
func (s *Store) SetActive(convID string) error {
	s.mu.Lock()
	if convID != "" {
		if _, ok := s.entries[convID]; !ok {
			s.mu.Unlock()
			return conversationNotFound(convID)
		}
	}
	s.active = convID
	s.mu.Unlock()

	s.notify(convID)
	return nil
}

// =============================================================================
// READS
// =============================================================================

// Active returns the selected conversation id, or "".
func (s *Store) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Conversation returns a snapshot of one conversation.
func (s *Store) Conversation(convID string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[convID]
	if !ok {
		return nil, conversationNotFound(convID)
	}
	return e.conv.Clone(), nil
}

// Message returns a snapshot of one message.
func (s *Store) Message(convID, msgID string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[convID]
	if !ok {
		return nil, conversationNotFound(convID)
	}
	i, ok := e.index[msgID]
	if !ok {
		return nil, messageNotFound(msgID)
	}
	return e.conv.Messages[i].Clone(), nil
}

// Conversations returns snapshots of every conversation, most recent first.
func (s *Store) Conversations() []*model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Conversation, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.entries[id].conv.Clone())
	}
	return out
}

// Summaries lists conversations without copying messages.
func (s *Store) Summaries() []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Summary, 0, len(s.order))
	for _, id := range s.order {
		c := s.entries[id].conv
		out = append(out, Summary{
			ID:           c.ID,
			Title:        c.Title,
			Timestamp:    c.Timestamp,
			MessageCount: len(c.Messages),
		})
	}
	return out
}

// Degraded reports whether persistence has been abandoned for this session.
func (s *Store) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// Close releases the backend.
func (s *Store) Close() error {
	if s.backend == nil {
		return nil
	}
	return s.backend.Close()
}

// =============================================================================
// PERSISTENCE
// =============================================================================

func (s *Store) writable() bool {
	return s.backend != nil && !s.degraded
}

// persistLocked writes conv through to the backend. Errors never reach the
// caller.
func (s *Store) persistLocked(conv *model.Conversation) {
	if !s.writable() {
		return
	}
	if err := s.backend.Save(s.userID, conv); err != nil {
		s.degradeLocked(err)
	}
}

func (s *Store) degradeLocked(err error) {
	s.degraded = true
	metrics.StoreWriteFailures.WithLabelValues(s.backend.Name()).Inc()
	s.logger.Error("conversation persistence failed, continuing in memory only",
		zap.String("backend", s.backend.Name()),
		zap.String("user", s.userID),
		zap.Error(err))
}

// Title derives a conversation title from message text: whitespace
// collapsed, NFC-normalised, at most TitleMaxRunes runes plus an ellipsis.
func Title(text string) string {
	return util.Ellipsize(util.SingleLine(text), TitleMaxRunes)
}
