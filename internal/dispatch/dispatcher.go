// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jeranaias/bridgechat/internal/config"
	"github.com/jeranaias/bridgechat/internal/metrics"
	"github.com/jeranaias/bridgechat/internal/tracing"
	"github.com/jeranaias/bridgechat/internal/webhook"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// MaxResponseSize bounds how much of a reply body is read.
	MaxResponseSize = 10 * 1024 * 1024

	// DefaultTimeout is used when neither Options nor Config set one.
	DefaultTimeout = 30 * time.Second
)

// =============================================================================
// TYPES
// =============================================================================

// Config is everything the dispatcher needs. It is passed in explicitly;
// the dispatcher reads no globals.
type Config struct {
	BaseURL       string
	MaxRetries    int
	Timeout       time.Duration
	RetryDelay    time.Duration
	Policies      []config.PolicyConfig
	EmergencyMode bool
	Debug         bool
}

// ConfigFrom maps the file configuration onto a dispatcher Config.
func ConfigFrom(c *config.Config) Config {
	return Config{
		BaseURL:       c.Webhook.BaseURL,
		MaxRetries:    c.Dispatch.MaxRetries,
		Timeout:       c.Dispatch.Timeout(),
		RetryDelay:    c.Dispatch.RetryDelay(),
		Policies:      c.Dispatch.Policies,
		EmergencyMode: c.Webhook.EmergencyMode,
		Debug:         c.Webhook.Debug,
	}
}

// Options tune a single Send. Zero values fall back to the dispatcher
// config. Cancellation comes from the context passed to Send.
type Options struct {
	MaxRetries int
	Timeout    time.Duration
}

// Result is the outcome of a send that got an HTTP response. Exactly one of
// Reply and Failure is set.
type Result struct {
	Success   bool
	Status    int
	Reply     *webhook.Reply
	Failure   *webhook.Failure
	Attempts  int
	Duration  time.Duration
	Emergency bool
}

// Dispatcher sends webhook requests with per-attempt timeouts and bounded
// fixed-delay retries. Every attempt is admitted through the Queue.
type Dispatcher struct {
	baseURL    string
	maxRetries int
	timeout    time.Duration
	retryDelay time.Duration
	policies   *PolicyTable
	queue      *Queue
	httpClient *http.Client
	logger     *zap.Logger
	tracer     trace.Tracer

	emergency atomic.Bool
	debug     atomic.Bool
}

// New creates a dispatcher that admits attempts through queue.
func New(cfg Config, queue *Queue) (*Dispatcher, error) {
	policies, err := NewPolicyTable(cfg.Policies)
	if err != nil {
		return nil, err
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	d := &Dispatcher{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		maxRetries: cfg.MaxRetries,
		timeout:    cfg.Timeout,
		retryDelay: cfg.RetryDelay,
		policies:   policies,
		queue:      queue,
		httpClient: &http.Client{Transport: http.DefaultTransport},
		logger:     zap.NewNop(),
		tracer:     tracing.Tracer(),
	}
	d.emergency.Store(cfg.EmergencyMode)
	d.debug.Store(cfg.Debug)
	return d, nil
}

// WithHTTPClient replaces the HTTP client. Its Timeout should be zero;
// attempts carry their own deadline.
func (d *Dispatcher) WithHTTPClient(c *http.Client) *Dispatcher {
	d.httpClient = c
	return d
}

// WithLogger sets the logger.
func (d *Dispatcher) WithLogger(l *zap.Logger) *Dispatcher {
	if l != nil {
		d.logger = l.Named("dispatch")
	}
	return d
}

// SetEmergencyMode toggles canned replies. Safe to call at any time.
func (d *Dispatcher) SetEmergencyMode(on bool) {
	if d.emergency.Swap(on) != on {
		d.logger.Warn("emergency mode changed", zap.Bool("enabled", on))
	}
}

// EmergencyMode reports whether canned replies are being served.
func (d *Dispatcher) EmergencyMode() bool {
	return d.emergency.Load()
}

// SetDebug toggles request/response body logging.
func (d *Dispatcher) SetDebug(on bool) {
	d.debug.Store(on)
}

// Queue returns the admission queue.
func (d *Dispatcher) Queue() *Queue {
	return d.queue
}

// Policy returns the policy that applies to endpoint.
func (d *Dispatcher) Policy(endpoint string) *Policy {
	return d.policies.Match(endpoint)
}

// =============================================================================
// SEND
// =============================================================================

// Send posts payload to endpoint.
//
//   - Any HTTP response ends the send: a *Result is returned, successful or
//     not, and is never retried.
//   - Transport failures (connect, timeout, truncated read) are retried after
//     the policy delay while attempts remain; the last one is returned as a
//     *TransportError.
//   - Cancelling ctx returns ErrAborted at once, whatever else happened.
func (d *Dispatcher) Send(ctx context.Context, endpoint string, payload any, opts Options) (*Result, error) {
	start := time.Now()

	if d.emergency.Load() {
		metrics.RecordDispatch(endpoint, "emergency", time.Since(start))
		return &Result{
			Success:   true,
			Status:    http.StatusOK,
			Reply:     webhook.EmergencyReply(questionOf(payload)),
			Emergency: true,
		}, nil
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordDispatch(endpoint, "aborted", time.Since(start))
		return nil, aborted(err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload for %s: %w", endpoint, err)
	}

	policy := d.policies.Match(endpoint)
	maxRetries := opts.MaxRetries
	if maxRetries < 1 {
		maxRetries = d.maxRetries
	}
	attempts := policy.Attempts(maxRetries)
	delay := policy.Delay(d.retryDelay)
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = d.timeout
	}

	ctx, span := d.tracer.Start(ctx, "webhook.send", trace.WithAttributes(
		attribute.String("webhook.endpoint", endpoint),
		attribute.Int("webhook.max_attempts", attempts),
	))
	defer span.End()

	var (
		result  *Result
		attempt int
	)
	op := func() error {
		if policy.limiter != nil {
			if err := policy.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(aborted(ctx.Err()))
			}
		}
		attempt++
		n := attempt
		var res *Result
		done := d.queue.Add(func() error {
			r, err := d.attempt(ctx, endpoint, body, timeout, n)
			res = r
			return err
		})
		select {
		case err := <-done:
			if ctx.Err() != nil {
				return backoff.Permanent(aborted(ctx.Err()))
			}
			if err != nil {
				return err
			}
			result = res
			return nil
		case <-ctx.Done():
			// Stop waiting for a slot; the unit sees the cancellation
			// when admitted and returns without touching the network.
			return backoff.Permanent(aborted(ctx.Err()))
		}
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(attempts-1)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		d.logger.Info("retrying webhook",
			zap.String("endpoint", endpoint),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Duration("delay", wait),
			zap.Error(err),
		)
	}
	err = backoff.RetryNotify(op, b, notify)

	elapsed := time.Since(start)
	switch {
	case ctx.Err() != nil:
		// Cancellation wins even if an attempt completed meanwhile.
		span.SetStatus(codes.Error, "aborted")
		metrics.RecordDispatch(endpoint, "aborted", elapsed)
		d.logger.Info("webhook aborted", zap.String("endpoint", endpoint), zap.Int("attempts", attempt))
		return nil, aborted(ctx.Err())

	case err != nil:
		terr := &TransportError{Endpoint: endpoint, Attempts: attempt, Err: err}
		span.RecordError(terr)
		span.SetStatus(codes.Error, "transport")
		metrics.RecordDispatch(endpoint, "transport_error", elapsed)
		d.logger.Warn("webhook unreachable", zap.String("endpoint", endpoint), zap.Int("attempts", attempt), zap.Error(err))
		return nil, terr
	}

	result.Attempts = attempt
	result.Duration = elapsed
	outcome := "success"
	if !result.Success {
		outcome = "failure"
		span.SetStatus(codes.Error, result.Failure.Kind.String())
	}
	span.SetAttributes(attribute.Int("http.status_code", result.Status))
	metrics.RecordDispatch(endpoint, outcome, elapsed)
	return result, nil
}

// attempt performs one HTTP round trip. A returned error is a transport
// failure; any response, good or bad, comes back as a Result.
func (d *Dispatcher) attempt(ctx context.Context, endpoint string, body []byte, timeout time.Duration, n int) (*Result, error) {
	// The caller may have given up while this unit waited for a slot.
	if err := ctx.Err(); err != nil {
		metrics.RecordAttempt(endpoint, "aborted")
		return nil, err
	}

	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	actx, span := d.tracer.Start(actx, "webhook.attempt", trace.WithAttributes(attribute.Int("webhook.attempt", n)))
	defer span.End()

	req, err := http.NewRequestWithContext(actx, http.MethodPost, d.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "bridgechat")

	if d.debug.Load() {
		d.logger.Debug("webhook request", zap.String("url", req.URL.String()), zap.Int("attempt", n), zap.ByteString("body", body))
	}

	started := time.Now()
	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.recordTransport(ctx, endpoint, span, err)
		return nil, err
	}
	defer resp.Body.Close()

	data, err := readResponse(resp)
	if errors.Is(err, errResponseTooLarge) {
		metrics.RecordAttempt(endpoint, "response")
		d.logger.Warn("webhook response too large", zap.String("endpoint", endpoint), zap.Int("status", resp.StatusCode))
		return &Result{Status: resp.StatusCode, Failure: webhook.Malformed(resp.StatusCode)}, nil
	}
	if err != nil {
		d.recordTransport(ctx, endpoint, span, err)
		return nil, err
	}

	metrics.RecordAttempt(endpoint, "response")
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	d.logger.Debug("webhook response",
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(data)),
		zap.Duration("duration", time.Since(started)),
	)
	if d.debug.Load() {
		d.logger.Debug("webhook response body", zap.ByteString("body", data))
	}

	return interpret(resp.StatusCode, data), nil
}

func (d *Dispatcher) recordTransport(ctx context.Context, endpoint string, span trace.Span, err error) {
	if ctx.Err() != nil {
		metrics.RecordAttempt(endpoint, "aborted")
		return
	}
	metrics.RecordAttempt(endpoint, "transport_error")
	span.RecordError(err)
	d.logger.Debug("webhook attempt failed", zap.String("endpoint", endpoint), zap.Error(err))
}

var errResponseTooLarge = fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)

// readResponse reads at most MaxResponseSize bytes of the body.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) > MaxResponseSize {
		return nil, errResponseTooLarge
	}
	return body, nil
}

// interpret turns a received response into a Result.
func interpret(status int, data []byte) *Result {
	res := &Result{Status: status}
	trimmed := bytes.TrimSpace(data)

	switch {
	case len(trimmed) == 0:
		res.Failure = webhook.EmptyBody(status)
	case !json.Valid(trimmed):
		res.Failure = webhook.Malformed(status)
	case status < 200 || status > 299:
		res.Failure = webhook.ParseFailure(status, trimmed)
	case reportsFailure(trimmed):
		res.Failure = webhook.ParseFailure(status, trimmed)
	default:
		res.Success = true
		res.Reply = webhook.ParseReply(trimmed)
	}
	return res
}

// reportsFailure detects a 2xx body carrying "success": false, also when
// the object is wrapped in an array.
func reportsFailure(data []byte) bool {
	var envelope struct {
		Success *bool `json:"success"`
	}
	data = bytes.TrimSpace(webhook.FirstItem(data))
	if len(data) == 0 || data[0] != '{' || json.Unmarshal(data, &envelope) != nil {
		return false
	}
	return envelope.Success != nil && !*envelope.Success
}

func questionOf(payload any) string {
	switch p := payload.(type) {
	case webhook.Request:
		return p.Message
	case *webhook.Request:
		return p.Message
	case string:
		return p
	}
	return ""
}
