// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	require.Equal(t, zapcore.WarnLevel, ParseLevel("warning"))
	require.Equal(t, zapcore.ErrorLevel, ParseLevel(" error "))
	require.Equal(t, zapcore.InfoLevel, ParseLevel("nonsense"))
}

func TestNew_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "bridgechat.log")

	logger, level, err := New(Options{Level: "info", File: path})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("dispatch complete", zap.String("endpoint", "/chat"))
	level.SetLevel(zapcore.DebugLevel)
	logger.Debug("now visible")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, `"endpoint":"/chat"`)
	require.Contains(t, out, "now visible")
	require.Equal(t, 2, strings.Count(out, "\n"))
}

func TestNew_DebugOverridesLevel(t *testing.T) {
	_, level, err := New(Options{Level: "error", File: filepath.Join(t.TempDir(), "x.log"), Debug: true})
	require.NoError(t, err)
	require.Equal(t, zapcore.DebugLevel, level.Level())
}

func TestOrNop(t *testing.T) {
	require.NotNil(t, OrNop(nil))
	l := zap.NewExample()
	require.Same(t, l, OrNop(l))
}
