// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package assistant runs one question/answer exchange against the webhook:
// it records the user message, dispatches the request, and reveals the
// reply into the conversation store.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/bridgechat/internal/dispatch"
	"github.com/jeranaias/bridgechat/internal/logging"
	"github.com/jeranaias/bridgechat/internal/model"
	"github.com/jeranaias/bridgechat/internal/session"
	"github.com/jeranaias/bridgechat/internal/storage"
	"github.com/jeranaias/bridgechat/internal/stream"
	"github.com/jeranaias/bridgechat/internal/tracing"
	"github.com/jeranaias/bridgechat/internal/webhook"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Cache keys written to the session cache.
const (
	KeyTokens          = "tokens"
	KeyLastReplyPrefix = "last_reply:"
)

var (
	// ErrEmptyMessage is returned for blank input.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrBusy is returned when the conversation already has an exchange in
	// flight.
	ErrBusy = errors.New("a reply is already in progress for this conversation")
	// ErrNothingToRegenerate means the conversation has no user message.
	ErrNothingToRegenerate = errors.New("no question to regenerate")
	// ErrClosed is returned once Close has been called.
	ErrClosed = errors.New("assistant is shutting down")
)

// Sender is the part of the dispatcher the service uses.
type Sender interface {
	Send(ctx context.Context, endpoint string, payload any, opts dispatch.Options) (*dispatch.Result, error)
}

// Identity is attached to every outgoing request.
type Identity struct {
	UserID    string
	UserName  string
	SessionID string
}

// Options configures a Service.
type Options struct {
	Endpoint string
	Identity Identity
	// Extras are merged into every request body.
	Extras map[string]any
}

// TokenStats is the last token allowance reported by the backend.
type TokenStats struct {
	Remaining int       `json:"remaining"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LastReply summarises the latest reply of a conversation.
type LastReply struct {
	MessageID string    `json:"messageId"`
	Category  string    `json:"category,omitempty"`
	CacheHit  bool      `json:"cacheHit,omitempty"`
	Emergency bool      `json:"emergency,omitempty"`
	At        time.Time `json:"at"`
}

// Outcome describes a completed exchange. ReplyMessageID is empty when the
// webhook answered with an error.
type Outcome struct {
	ConversationID string
	UserMessageID  string
	ReplyMessageID string
	Result         *dispatch.Result
	// Revealed closes when the reply text is fully shown or the reveal is
	// stopped.
	Revealed <-chan struct{}
}

// Service coordinates one chat surface.
type Service struct {
	sender   Sender
	store    *storage.Store
	revealer stream.Revealer
	cache    *session.Cache
	opts     Options
	logger   *zap.Logger

	mu        sync.Mutex
	inflight  map[string]context.CancelFunc
	exchanges sync.WaitGroup
	closed    bool
}

// New creates a service. cache may be nil.
func New(sender Sender, store *storage.Store, revealer stream.Revealer, cache *session.Cache, opts Options, logger *zap.Logger) *Service {
	return &Service{
		sender:   sender,
		store:    store,
		revealer: revealer,
		cache:    cache,
		opts:     opts,
		logger:   logging.OrNop(logger).Named("assistant"),
		inflight: make(map[string]context.CancelFunc),
	}
}

// Store returns the conversation store the service writes to.
func (s *Service) Store() *storage.Store { return s.store }

// =============================================================================
// EXCHANGES
// =============================================================================

// Submit records text as a user message in convID and asks the webhook for
// a reply. An empty convID starts a new conversation.
//
// Errors: *webhook.Failure for an error response (the Outcome is still
// returned with its Result), *dispatch.TransportError when the webhook
// could not be reached, dispatch.ErrAborted (wrapped) when ctx was
// cancelled or Stop was called.
func (s *Service) Submit(ctx context.Context, convID, text string) (*Outcome, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if convID == "" {
		convID = s.store.CreateConversation().ID
	} else if _, err := s.store.Conversation(convID); err != nil {
		return nil, err
	}

	ctx, release, err := s.begin(ctx, convID)
	if err != nil {
		return nil, err
	}
	defer release()

	user := model.NewUserMessage(text)
	if err := s.store.AppendMessage(convID, user); err != nil {
		return nil, err
	}
	out, err := s.exchange(ctx, convID, text)
	if out != nil {
		out.UserMessageID = user.ID
	}
	return out, err
}

// Regenerate drops the latest reply (if it follows the latest question)
// and asks again. It is also the retry path after a failed Submit, where
// there is no reply to drop.
func (s *Service) Regenerate(ctx context.Context, convID string) (*Outcome, error) {
	conv, err := s.store.Conversation(convID)
	if err != nil {
		return nil, err
	}
	question := conv.LastUserMessage()
	if question == nil {
		return nil, ErrNothingToRegenerate
	}

	ctx, release, err := s.begin(ctx, convID)
	if err != nil {
		return nil, err
	}
	defer release()

	if last := conv.Messages[len(conv.Messages)-1]; !last.IsUser {
		s.revealer.Stop(last.ID)
		if err := s.store.RemoveMessage(convID, last.ID); err != nil {
			return nil, err
		}
	}
	out, err := s.exchange(ctx, convID, question.Text)
	if out != nil {
		out.UserMessageID = question.ID
	}
	return out, err
}

// exchange appends a thinking placeholder, sends text and reveals the reply
// into the placeholder. A failed request removes the placeholder again; an
// aborted one leaves it settled and empty.
func (s *Service) exchange(ctx context.Context, convID, text string) (*Outcome, error) {
	ctx, span := tracing.Tracer().Start(ctx, "assistant.exchange")
	span.SetAttributes(attribute.String("conversation.id", convID))
	defer span.End()

	msg := model.NewThinkingMessage()
	if err := s.store.AppendMessage(convID, msg); err != nil {
		return nil, err
	}

	req := webhook.Request{
		UserID:    s.opts.Identity.UserID,
		UserName:  s.opts.Identity.UserName,
		Message:   text,
		ChatID:    convID,
		SessionID: s.opts.Identity.SessionID,
		Timestamp: time.Now(),
		Extras:    s.opts.Extras,
	}

	res, err := s.sender.Send(ctx, s.opts.Endpoint, req, dispatch.Options{})
	if err == nil && ctx.Err() != nil {
		// Stopped after the answer arrived but before it was shown.
		err = fmt.Errorf("%w: %w", dispatch.ErrAborted, ctx.Err())
	}
	if err != nil {
		if dispatch.IsAborted(err) {
			s.logger.Debug("exchange aborted", zap.String("conversation", convID))
			s.settle(convID, msg.ID)
		} else {
			s.logger.Warn("exchange failed", zap.String("conversation", convID), zap.Error(err))
			s.discard(convID, msg.ID)
		}
		return nil, err
	}
	if !res.Success {
		s.logger.Info("webhook returned an error",
			zap.String("conversation", convID),
			zap.Int("status", res.Status),
			zap.String("kind", res.Failure.Kind.String()))
		s.discard(convID, msg.ID)
		return &Outcome{ConversationID: convID, Result: res}, res.Failure
	}

	reply := res.Reply
	err = s.store.MutateMessage(convID, msg.ID, model.Patch{
		Category:   model.String(reply.Metadata.Category),
		Confidence: model.Float(reply.Metadata.Confidence),
		Solutions:  reply.Solutions,
		Sources:    reply.Sources,
	})
	if err != nil {
		return nil, err
	}

	revealed := s.revealer.Reveal(stream.Target{ConversationID: convID, MessageID: msg.ID}, reply.Text)
	s.remember(convID, msg.ID, res)

	return &Outcome{
		ConversationID: convID,
		ReplyMessageID: msg.ID,
		Result:         res,
		Revealed:       revealed,
	}, nil
}

// =============================================================================
// CANCELLATION
// =============================================================================

// begin registers an exchange for convID and returns its cancellable
// context.
func (s *Service) begin(ctx context.Context, convID string) (context.Context, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, ErrClosed
	}
	if _, busy := s.inflight[convID]; busy {
		return nil, nil, ErrBusy
	}
	ctx, cancel := context.WithCancel(ctx)
	s.inflight[convID] = cancel
	s.exchanges.Add(1)
	release := func() {
		s.mu.Lock()
		delete(s.inflight, convID)
		s.mu.Unlock()
		cancel()
		s.exchanges.Done()
	}
	return ctx, release, nil
}

// Busy reports whether convID has a request in flight.
func (s *Service) Busy(convID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[convID]
	return ok
}

// Stop aborts the request in flight for convID and halts the reveal of its
// latest reply. Text already revealed stays in place.
func (s *Service) Stop(convID string) {
	s.mu.Lock()
	cancel := s.inflight[convID]
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	conv, err := s.store.Conversation(convID)
	if err != nil {
		return
	}
	if last := conv.LastAssistantMessage(); last != nil && !last.Settled() {
		s.revealer.Stop(last.ID)
		s.settle(convID, last.ID)
	}
}

// Close aborts everything in flight, waits for those exchanges to return
// and settles every reply that was still thinking or streaming. Later
// Submit and Regenerate calls fail with ErrClosed.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	for _, cancel := range s.inflight {
		cancel()
	}
	s.mu.Unlock()

	s.exchanges.Wait()
	s.revealer.StopAll()

	for _, conv := range s.store.Conversations() {
		for _, m := range conv.Messages {
			if !m.IsUser && !m.Settled() {
				s.settle(conv.ID, m.ID)
			}
		}
	}
}

func (s *Service) settle(convID, msgID string) {
	if err := s.store.MutateMessage(convID, msgID, model.SettlePatch()); err != nil {
		s.logger.Debug("could not settle reply", zap.String("message", msgID), zap.Error(err))
	}
}

// discard removes a placeholder whose request failed.
func (s *Service) discard(convID, msgID string) {
	if err := s.store.RemoveMessage(convID, msgID); err != nil {
		s.logger.Debug("could not remove placeholder", zap.String("message", msgID), zap.Error(err))
	}
}

// =============================================================================
// SESSION CACHE
// =============================================================================

func (s *Service) remember(convID, msgID string, res *dispatch.Result) {
	if s.cache == nil {
		return
	}
	now := time.Now()
	if n := res.Reply.Metadata.TokensRemaining; n != nil {
		if err := s.cache.Put(KeyTokens, TokenStats{Remaining: *n, UpdatedAt: now}); err != nil {
			s.logger.Warn("could not cache token stats", zap.Error(err))
		}
	}
	last := LastReply{
		MessageID: msgID,
		Category:  res.Reply.Metadata.Category,
		CacheHit:  res.Reply.Metadata.CacheHit,
		Emergency: res.Emergency,
		At:        now,
	}
	if err := s.cache.Put(KeyLastReplyPrefix+convID, last); err != nil {
		s.logger.Warn("could not cache last reply", zap.Error(err))
	}
}

// Tokens returns the last reported token allowance.
func (s *Service) Tokens() (TokenStats, bool) {
	var stats TokenStats
	if s.cache == nil {
		return stats, false
	}
	ok, err := s.cache.Get(KeyTokens, &stats)
	if err != nil {
		s.logger.Warn("could not read token stats", zap.Error(err))
		return stats, false
	}
	return stats, ok
}

// LastReply returns what is known about the latest reply in convID.
func (s *Service) LastReply(convID string) (LastReply, bool) {
	var last LastReply
	if s.cache == nil {
		return last, false
	}
	ok, err := s.cache.Get(KeyLastReplyPrefix+convID, &last)
	if err != nil {
		s.logger.Warn("could not read last reply", zap.Error(err))
		return last, false
	}
	return last, ok
}
