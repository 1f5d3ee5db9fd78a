// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dispatch

import (
	"fmt"
	"sync"
	"time"

	"github.com/jeranaias/bridgechat/internal/metrics"
)

// =============================================================================
// REQUEST QUEUE
// =============================================================================

// Unit is one piece of admitted work, typically a single HTTP attempt.
type Unit func() error

type entry struct {
	unit     Unit
	done     chan error
	enqueued time.Time
}

// Queue admits at most maxConcurrent units at a time. Everything else waits
// in FIFO order. There is no depth limit and no cancellation at this level;
// units handle their own.
type Queue struct {
	mu            sync.Mutex
	pending       []*entry
	running       int
	maxConcurrent int
}

// NewQueue creates a queue. maxConcurrent below 1 is treated as 1.
func NewQueue(maxConcurrent int) *Queue {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Queue{maxConcurrent: maxConcurrent}
}

// Add enqueues unit and returns a channel that receives exactly one value:
// the unit's error, or nil. A panicking unit is reported as an error.
func (q *Queue) Add(unit Unit) <-chan error {
	e := &entry{unit: unit, done: make(chan error, 1), enqueued: time.Now()}

	q.mu.Lock()
	q.pending = append(q.pending, e)
	q.drainLocked()
	q.mu.Unlock()

	return e.done
}

// drainLocked starts waiting units while slots are free. Caller holds q.mu.
func (q *Queue) drainLocked() {
	for q.running < q.maxConcurrent && len(q.pending) > 0 {
		e := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.running++
		metrics.QueueWait.Observe(time.Since(e.enqueued).Seconds())
		go q.run(e)
	}
	metrics.QueueRunning.Set(float64(q.running))
	metrics.QueuePending.Set(float64(len(q.pending)))
}

func (q *Queue) run(e *entry) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("queued unit panicked: %v", r)
		}
		q.mu.Lock()
		q.running--
		q.drainLocked()
		q.mu.Unlock()
		e.done <- err
	}()
	err = e.unit()
}

// Running returns the number of units holding a slot.
func (q *Queue) Running() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Pending returns the number of units waiting for a slot.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// MaxConcurrent returns the admission bound.
func (q *Queue) MaxConcurrent() int {
	return q.maxConcurrent
}

// Summary returns a one-line status for the UI footer.
func (q *Queue) Summary() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return fmt.Sprintf("Running: %d/%d | Queued: %d", q.running, q.maxConcurrent, len(q.pending))
}
