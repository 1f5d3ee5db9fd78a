// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jeranaias/bridgechat/internal/config"
	"github.com/jeranaias/bridgechat/internal/webhook"
	"github.com/stretchr/testify/require"
)

const testDelay = 50 * time.Millisecond

// dropConnection closes the TCP connection without writing a response, which
// the client sees as a transport failure.
func dropConnection(t *testing.T, w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	require.True(t, ok)
	conn, _, err := hj.Hijack()
	require.NoError(t, err)
	conn.Close()
}

func newTestDispatcher(t *testing.T, srv *httptest.Server, maxConcurrent int) *Dispatcher {
	t.Helper()
	d, err := New(Config{
		BaseURL:    srv.URL,
		MaxRetries: 3,
		Timeout:    2 * time.Second,
		RetryDelay: testDelay,
		Policies:   config.DefaultPolicies(),
	}, NewQueue(maxConcurrent))
	require.NoError(t, err)
	return d.WithHTTPClient(srv.Client())
}

func chatRequest(msg string) webhook.Request {
	return webhook.Request{UserID: "u1", UserName: "Chief", Message: msg, ChatID: "c1", SessionID: "s1", Timestamp: time.Now()}
}

// =============================================================================
// RESPONSES
// =============================================================================

func TestSend_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/maritime-chat", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "Winch motor hums but won't turn", body["message"])
		require.Equal(t, "c1", body["chatId"])

		io.WriteString(w, `{"success":true,"response":{"message":"Check the brake release.","solutions":[{"title":"Brake solenoid"}]},"metadata":{"tokensRemaining":900}}`)
	}))
	defer srv.Close()

	d := newTestDispatcher(t, srv, 3)
	res, err := d.Send(context.Background(), "/maritime-chat", chatRequest("Winch motor hums but won't turn"), Options{})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, 1, res.Attempts)
	require.Equal(t, webhook.KindStructured, res.Reply.Kind)
	require.Equal(t, "Check the brake release.", res.Reply.Text)
	require.Equal(t, 900, *res.Reply.Metadata.TokensRemaining)
}

func TestSend_ErrorStatusIsResultNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"success":false,"error":{"code":"RATE_LIMIT_EXCEEDED","message":"Slow down"}}`)
	}))
	defer srv.Close()

	d := newTestDispatcher(t, srv, 3)
	res, err := d.Send(context.Background(), "/status", map[string]string{"q": "x"}, Options{MaxRetries: 3})
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, http.StatusTooManyRequests, res.Status)
	require.Equal(t, webhook.FailureRateLimited, res.Failure.Kind)
	require.Equal(t, "Slow down", res.Failure.UserMessage())
	require.Equal(t, int32(1), hits.Load())
}

func TestSend_BadBodiesAreFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
		kind webhook.FailureKind
	}{
		{"empty", "", webhook.FailureEmptyBody},
		{"whitespace", "  \n", webhook.FailureEmptyBody},
		{"html", "<html>Bad Gateway</html>", webhook.FailureMalformed},
		{"truncated", `{"response": "cut`, webhook.FailureMalformed},
		{"success false", `{"success":false,"message":"Workflow disabled"}`, webhook.FailureApplication},
		{"wrapped success false", `[{"success":false,"message":"Workflow disabled"}]`, webhook.FailureApplication},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			res, err := newTestDispatcher(t, srv, 3).Send(context.Background(), "/status", nil, Options{})
			require.NoError(t, err)
			require.False(t, res.Success)
			require.Equal(t, tt.kind, res.Failure.Kind)
			require.Equal(t, int32(1), hits.Load())
		})
	}
}

func TestSend_WrappedFailureKeepsServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, ` [[{"success":false,"message":"Workflow disabled"}]]`)
	}))
	defer srv.Close()

	res, err := newTestDispatcher(t, srv, 3).Send(context.Background(), "/maritime-chat", nil, Options{})
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Nil(t, res.Reply)
	require.Equal(t, "Workflow disabled", res.Failure.UserMessage())
}

// =============================================================================
// RETRIES
// =============================================================================

func TestSend_ChatEndpointNeverRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		dropConnection(t, w)
	}))
	defer srv.Close()

	start := time.Now()
	_, err := newTestDispatcher(t, srv, 3).Send(context.Background(), "/maritime-chat", chatRequest("hi"), Options{MaxRetries: 5})

	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	require.Equal(t, 1, terr.Attempts)
	require.Equal(t, int32(1), hits.Load())
	require.Less(t, time.Since(start), testDelay, "no retry delay expected")
}

func TestSend_RetryExhaustion(t *testing.T) {
	var hits atomic.Int32
	var mu sync.Mutex
	var stamps []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()
		dropConnection(t, w)
	}))
	defer srv.Close()

	_, err := newTestDispatcher(t, srv, 3).Send(context.Background(), "/vessel-status", nil, Options{MaxRetries: 3})

	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	require.Equal(t, 3, terr.Attempts)
	require.Equal(t, "/vessel-status", terr.Endpoint)
	require.Contains(t, err.Error(), terr.Err.Error())
	require.False(t, IsAborted(err))
	require.Equal(t, int32(3), hits.Load())
	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(stamps); i++ {
		require.GreaterOrEqual(t, stamps[i].Sub(stamps[i-1]), testDelay)
	}
}

func TestSend_SucceedsOnThirdAttempt(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			dropConnection(t, w)
			return
		}
		io.WriteString(w, `{"success":true,"response":"third time lucky"}`)
	}))
	defer srv.Close()

	start := time.Now()
	res, err := newTestDispatcher(t, srv, 3).Send(context.Background(), "/vessel-status", nil, Options{MaxRetries: 3})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, "third time lucky", res.Reply.Text)
	require.Equal(t, 3, res.Attempts)
	require.Equal(t, int32(3), hits.Load())
	require.GreaterOrEqual(t, time.Since(start), 2*testDelay)
}

func TestSend_TimeoutIsRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := newTestDispatcher(t, srv, 3).Send(context.Background(), "/vessel-status", nil, Options{
		MaxRetries: 2,
		Timeout:    50 * time.Millisecond,
	})

	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	require.Equal(t, 2, terr.Attempts)
	require.False(t, IsAborted(err))
	require.Equal(t, int32(2), hits.Load())
}

// =============================================================================
// CANCELLATION
// =============================================================================

func TestSend_AbortMidAttemptSuppressesRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := newTestDispatcher(t, srv, 3).Send(ctx, "/vessel-status", nil, Options{MaxRetries: 3})
	require.ErrorIs(t, err, ErrAborted)
	require.ErrorIs(t, err, context.Canceled)

	time.Sleep(3 * testDelay)
	require.Equal(t, int32(1), hits.Load())
}

func TestSend_AbortDuringRetryDelay(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		dropConnection(t, w)
	}))
	defer srv.Close()

	d, err := New(Config{BaseURL: srv.URL, MaxRetries: 3, RetryDelay: 5 * time.Second}, NewQueue(1))
	require.NoError(t, err)
	d.WithHTTPClient(srv.Client())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	_, err = d.Send(ctx, "/vessel-status", nil, Options{})
	require.True(t, IsAborted(err))
	require.Less(t, time.Since(start), time.Second)
	require.Equal(t, int32(1), hits.Load())
}

func TestSend_AlreadyCancelled(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestDispatcher(t, srv, 3).Send(ctx, "/maritime-chat", chatRequest("x"), Options{})
	require.True(t, IsAborted(err))
	require.Equal(t, int32(0), hits.Load())
}

func TestSend_AbortWhileQueued(t *testing.T) {
	release := make(chan struct{})
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		io.WriteString(w, `{"response":"ok"}`)
	}))
	defer srv.Close()
	defer close(release)

	d := newTestDispatcher(t, srv, 1)
	go d.Send(context.Background(), "/status", nil, Options{})
	require.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := d.Send(ctx, "/status", nil, Options{})
		done <- err
	}()
	require.Eventually(t, func() bool { return d.Queue().Pending() == 1 }, time.Second, time.Millisecond)
	cancel()

	require.True(t, IsAborted(<-done))
	require.Equal(t, int32(1), hits.Load())
}

// =============================================================================
// ADMISSION AND MODES
// =============================================================================

func TestSend_RespectsQueueBound(t *testing.T) {
	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		io.WriteString(w, `{"response":"ok"}`)
	}))
	defer srv.Close()

	d := newTestDispatcher(t, srv, 2)
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			_, err := d.Send(context.Background(), "/status", nil, Options{})
			errs <- err
		}()
	}
	for i := 0; i < 8; i++ {
		require.NoError(t, <-errs)
	}
	require.LessOrEqual(t, peak.Load(), int32(2))
}

func TestSend_EmergencyModeSkipsNetwork(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	d := newTestDispatcher(t, srv, 3)
	d.SetEmergencyMode(true)
	require.True(t, d.EmergencyMode())

	res, err := d.Send(context.Background(), "/maritime-chat", chatRequest("bilge alarm keeps sounding"), Options{})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.True(t, res.Emergency)
	require.Equal(t, webhook.EmergencyCategory, res.Reply.Metadata.Category)
	require.True(t, strings.Contains(res.Reply.Text, "water ingress"))
	require.Equal(t, int32(0), hits.Load())
}

func TestNew_RejectsBadPolicy(t *testing.T) {
	_, err := New(Config{Policies: []config.PolicyConfig{{Pattern: " "}}}, NewQueue(1))
	require.Error(t, err)
}
