// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics provides Prometheus instrumentation for the dispatch core
// and the document server.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	// QueueRunning is the number of units currently holding a slot.
	QueueRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bridgechat_queue_running",
			Help: "Request queue units currently running",
		},
	)

	// QueuePending is the number of units waiting for a slot.
	QueuePending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bridgechat_queue_pending",
			Help: "Request queue units waiting for a slot",
		},
	)

	// QueueWait tracks time from Add to start.
	QueueWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bridgechat_queue_wait_seconds",
			Help:    "Time a unit waited for a queue slot",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
		},
	)

	// DispatchAttempts counts HTTP attempts by endpoint and outcome.
	DispatchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridgechat_dispatch_attempts_total",
			Help: "Webhook attempts by outcome (response, transport_error, aborted)",
		},
		[]string{"endpoint", "outcome"},
	)

	// DispatchResults counts logical sends by final result.
	DispatchResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridgechat_dispatch_results_total",
			Help: "Logical webhook sends by result (success, failure, transport_error, aborted, emergency)",
		},
		[]string{"endpoint", "result"},
	)

	// DispatchDuration tracks logical send duration including retries.
	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridgechat_dispatch_duration_seconds",
			Help:    "Logical webhook send duration including retries",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"endpoint", "result"},
	)

	// StreamTicks counts words revealed by the streaming emulator.
	StreamTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bridgechat_stream_ticks_total",
			Help: "Words revealed by the streaming emulator",
		},
	)

	// StoreWriteFailures counts swallowed persistence failures.
	StoreWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridgechat_store_write_failures_total",
			Help: "Conversation persistence failures (state kept in memory)",
		},
		[]string{"backend"},
	)

	// DocRequests counts document server responses.
	DocRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridgechat_docs_requests_total",
			Help: "Document display requests by table and status",
		},
		[]string{"table", "status"},
	)
)

// RecordDispatch records one logical send.
func RecordDispatch(endpoint, result string, d time.Duration) {
	DispatchResults.WithLabelValues(endpoint, result).Inc()
	DispatchDuration.WithLabelValues(endpoint, result).Observe(d.Seconds())
}

// RecordAttempt records one HTTP attempt.
func RecordAttempt(endpoint, outcome string) {
	DispatchAttempts.WithLabelValues(endpoint, outcome).Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
