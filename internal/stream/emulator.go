// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream reveals a complete reply word by word so it reads as if it
// were being typed.
package stream

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/bridgechat/internal/logging"
	"github.com/jeranaias/bridgechat/internal/metrics"
	"github.com/jeranaias/bridgechat/internal/model"
	"go.uber.org/zap"
)

// DefaultInterval is the delay between words.
const DefaultInterval = 45 * time.Millisecond

// Target names the message being revealed.
type Target struct {
	ConversationID string
	MessageID      string
}

// Sink receives the progressive updates. The conversation store satisfies
// it. A Sink must not call back into the Emulator.
type Sink interface {
	MutateMessage(convID, msgID string, patch model.Patch) error
}

// Revealer is what the chat service needs from an emulator.
type Revealer interface {
	// Reveal starts revealing text into target, replacing any run already
	// active for the same message. The returned channel closes when the run
	// finishes or is stopped.
	Reveal(target Target, text string) <-chan struct{}
	Stop(messageID string)
	StopAll()
}

// =============================================================================
// EMULATOR
// =============================================================================

// Emulator is the ticker-driven Revealer.
type Emulator struct {
	sink     Sink
	interval time.Duration
	logger   *zap.Logger

	mu   sync.Mutex
	runs map[string]*run
	wg   sync.WaitGroup
}

type run struct {
	target Target
	stop   chan struct{}
	done   chan struct{}

	mu      sync.Mutex
	stopped bool
}

// halt marks the run stopped. Once halt returns the run makes no further
// mutations.
func (r *run) halt() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.stopped {
		r.stopped = true
		close(r.stop)
	}
}

// settle halts the run and clears the progress flags on its message, so the
// text revealed so far becomes final.
func (r *run) settle(sink Sink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return errStopped
	}
	r.stopped = true
	close(r.stop)
	return sink.MutateMessage(r.target.ConversationID, r.target.MessageID, model.SettlePatch())
}

// apply forwards patch unless the run has been stopped.
func (r *run) apply(sink Sink, patch model.Patch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return errStopped
	}
	return sink.MutateMessage(r.target.ConversationID, r.target.MessageID, patch)
}

var errStopped = errors.New("run stopped")

// New creates an emulator writing into sink. A non-positive interval uses
// DefaultInterval.
func New(sink Sink, interval time.Duration, logger *zap.Logger) *Emulator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Emulator{
		sink:     sink,
		interval: interval,
		logger:   logging.OrNop(logger).Named("stream"),
		runs:     make(map[string]*run),
	}
}

// Interval returns the per-word delay.
func (e *Emulator) Interval() time.Duration { return e.interval }

// Reveal implements Revealer.
func (e *Emulator) Reveal(target Target, text string) <-chan struct{} {
	r := &run{
		target: target,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	words := strings.Fields(text)

	e.mu.Lock()
	prev := e.runs[target.MessageID]
	e.runs[target.MessageID] = r
	if len(words) > 0 {
		e.wg.Add(1)
	}
	e.mu.Unlock()
	if prev != nil {
		prev.halt()
	}

	if len(words) == 0 {
		if err := r.apply(e.sink, model.SettlePatch()); err != nil {
			e.logger.Debug("empty reveal not applied", zap.String("message", target.MessageID), zap.Error(err))
		}
		e.forget(r)
		close(r.done)
		return r.done
	}

	go e.play(r, words)
	return r.done
}

func (e *Emulator) play(r *run, words []string) {
	defer e.wg.Done()
	defer close(r.done)
	defer e.forget(r)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for i := 1; i <= len(words); i++ {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
		}

		patch := model.Patch{
			Text:        model.String(strings.Join(words[:i], " ")),
			IsThinking:  model.Bool(false),
			IsStreaming: model.Bool(i < len(words)),
		}
		if err := r.apply(e.sink, patch); err != nil {
			if !errors.Is(err, errStopped) {
				e.logger.Debug("reveal abandoned", zap.String("message", r.target.MessageID), zap.Error(err))
			}
			return
		}
		metrics.StreamTicks.Inc()
	}
}

// forget drops r from the registry unless it was already replaced.
func (e *Emulator) forget(r *run) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.runs[r.target.MessageID] == r {
		delete(e.runs, r.target.MessageID)
	}
}

// Stop halts the run for messageID. The text revealed so far stays and the
// message is marked as no longer streaming.
func (e *Emulator) Stop(messageID string) {
	e.mu.Lock()
	r := e.runs[messageID]
	delete(e.runs, messageID)
	e.mu.Unlock()
	if r != nil {
		e.settle(r)
	}
}

// StopAll stops every active run the way Stop does.
func (e *Emulator) StopAll() {
	e.mu.Lock()
	runs := e.runs
	e.runs = make(map[string]*run)
	e.mu.Unlock()
	for _, r := range runs {
		e.settle(r)
	}
}

func (e *Emulator) settle(r *run) {
	err := r.settle(e.sink)
	if err != nil && !errors.Is(err, errStopped) {
		e.logger.Debug("stopped reveal not settled", zap.String("message", r.target.MessageID), zap.Error(err))
	}
}

// Active returns the number of runs in progress.
func (e *Emulator) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.runs)
}

// Wait blocks until every run goroutine has exited.
func (e *Emulator) Wait() {
	e.wg.Wait()
}
