// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dispatch

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueue_NeverExceedsMaxConcurrent(t *testing.T) {
	for _, k := range []int{1, 2, 3, 5} {
		q := NewQueue(k)

		var running, peak atomic.Int32
		var results []<-chan error
		for i := 0; i < 4*k+3; i++ {
			results = append(results, q.Add(func() error {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				running.Add(-1)
				return nil
			}))
		}
		for _, ch := range results {
			require.NoError(t, <-ch)
		}
		require.LessOrEqual(t, int(peak.Load()), k, "k=%d", k)
		require.Equal(t, int32(k), peak.Load(), "queue should saturate, k=%d", k)
		require.Equal(t, 0, q.Running())
		require.Equal(t, 0, q.Pending())
	}
}

func TestQueue_StartsInFIFOOrder(t *testing.T) {
	q := NewQueue(1)
	release := make(chan struct{})
	first := q.Add(func() error {
		<-release
		return nil
	})

	var mu sync.Mutex
	var order []int
	var results []<-chan error
	for i := 0; i < 10; i++ {
		i := i
		results = append(results, q.Add(func() error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}))
	}
	require.Equal(t, 10, q.Pending())

	close(release)
	require.NoError(t, <-first)
	for _, ch := range results {
		require.NoError(t, <-ch)
	}
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestQueue_ThirdUnitWaitsForASlot(t *testing.T) {
	q := NewQueue(2)
	var mu sync.Mutex
	var finished1, finished2, started3 time.Time

	r1 := q.Add(func() error {
		time.Sleep(100 * time.Millisecond)
		mu.Lock()
		finished1 = time.Now()
		mu.Unlock()
		return nil
	})
	r2 := q.Add(func() error {
		time.Sleep(100 * time.Millisecond)
		mu.Lock()
		finished2 = time.Now()
		mu.Unlock()
		return nil
	})
	r3 := q.Add(func() error {
		mu.Lock()
		started3 = time.Now()
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		return nil
	})

	require.NoError(t, <-r1)
	require.NoError(t, <-r2)
	require.NoError(t, <-r3)

	earliest := finished1
	if finished2.Before(earliest) {
		earliest = finished2
	}
	require.False(t, started3.Before(earliest), "unit 3 started before any slot was released")
}

func TestQueue_FailingUnitReleasesSlot(t *testing.T) {
	q := NewQueue(1)
	boom := errors.New("connection refused")

	require.ErrorIs(t, <-q.Add(func() error { return boom }), boom)
	require.NoError(t, <-q.Add(func() error { return nil }))
	require.Equal(t, 0, q.Running())
}

func TestQueue_RecoversPanics(t *testing.T) {
	q := NewQueue(1)

	err := <-q.Add(func() error { panic("nil map") })
	require.Error(t, err)
	require.Contains(t, err.Error(), "nil map")
	require.NoError(t, <-q.Add(func() error { return nil }))
}

func TestQueue_ClampsMaxConcurrent(t *testing.T) {
	require.Equal(t, 1, NewQueue(0).MaxConcurrent())
	require.Equal(t, 1, NewQueue(-4).MaxConcurrent())
}

func TestQueue_Summary(t *testing.T) {
	q := NewQueue(1)
	release := make(chan struct{})
	a := q.Add(func() error { <-release; return nil })
	b := q.Add(func() error { return nil })

	require.Eventually(t, func() bool { return q.Running() == 1 }, time.Second, time.Millisecond)
	require.Equal(t, "Running: 1/1 | Queued: 1", q.Summary())

	close(release)
	<-a
	<-b
}
