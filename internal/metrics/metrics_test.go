// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHandler_ExposesRecordedSeries(t *testing.T) {
	RecordDispatch("/maritime-chat", "success", 120*time.Millisecond)
	RecordAttempt("/maritime-chat", "response")
	QueueRunning.Set(2)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	out := string(body)
	require.Contains(t, out, `bridgechat_dispatch_results_total{endpoint="/maritime-chat",result="success"}`)
	require.Contains(t, out, `bridgechat_dispatch_attempts_total{endpoint="/maritime-chat",outcome="response"}`)
	require.Contains(t, out, "bridgechat_queue_running 2")
}
