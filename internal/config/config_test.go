// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

func TestDefault_IsValid(t *testing.T) {
	t.Setenv("BRIDGECHAT_HOME", t.TempDir())

	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 3, cfg.Queue.MaxConcurrent)
	require.Equal(t, 2*time.Second, cfg.Dispatch.RetryDelay())
	require.Equal(t, 45*time.Millisecond, cfg.Stream.Interval())
	require.Equal(t, "*chat*", cfg.Dispatch.Policies[0].Pattern)
	require.Equal(t, 1, cfg.Dispatch.Policies[0].MaxAttempts)
}

func TestConfigDir_HonoursEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BRIDGECHAT_HOME", dir)

	got, err := ConfigDir()
	require.NoError(t, err)
	require.Equal(t, dir, got)
}

func TestLoadFromPath_TOMLFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BRIDGECHAT_HOME", dir)
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, `
[webhook]
base_url = "https://hooks.example.com/webhook"

[queue]
max_concurrent = 5

[[dispatch.policies]]
pattern = "*status*"
max_attempts = 2
`)

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	require.Equal(t, "https://hooks.example.com/webhook", cfg.Webhook.BaseURL)
	require.Equal(t, 5, cfg.Queue.MaxConcurrent)
	require.Equal(t, 3, cfg.Dispatch.MaxRetries)
	require.Len(t, cfg.Dispatch.Policies, 1)
	require.Equal(t, "*status*", cfg.Dispatch.Policies[0].Pattern)
	require.Equal(t, "file", cfg.Storage.Backend)
}

func TestLoadFromPath_JSONAndYAML(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BRIDGECHAT_HOME", dir)

	jsonPath := filepath.Join(dir, "config.json")
	writeFile(t, jsonPath, `{"user": {"id": "bosun", "name": "Bosun"}, "stream": {"interval_ms": 40}}`)
	cfg, err := LoadFromPath(jsonPath)
	require.NoError(t, err)
	require.Equal(t, "bosun", cfg.User.ID)
	require.Equal(t, 40, cfg.Stream.IntervalMs)

	yamlPath := filepath.Join(dir, "config.yaml")
	writeFile(t, yamlPath, "storage:\n  backend: bolt\nwebhook:\n  emergency_mode: true\n")
	cfg, err = LoadFromPath(yamlPath)
	require.NoError(t, err)
	require.Equal(t, "bolt", cfg.Storage.Backend)
	require.True(t, cfg.Webhook.EmergencyMode)
}

func TestLoadFromPath_InvalidReportsFields(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BRIDGECHAT_HOME", dir)
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, `
[webhook]
base_url = "ftp://example.com"

[storage]
backend = "postgres"
`)

	_, err := LoadFromPath(path)
	require.Error(t, err)

	var verrs ValidateErrors
	require.True(t, errors.As(err, &verrs))
	fields := map[string]bool{}
	for _, e := range verrs {
		fields[e.Field] = true
	}
	require.True(t, fields["webhook.base_url"])
	require.True(t, fields["storage.backend"])
}

func TestLoad_FallsBackToDefaultsOnBrokenFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BRIDGECHAT_HOME", dir)
	writeFile(t, filepath.Join(dir, "config.toml"), "this is not = = toml")

	cfg, path, err := Load()
	require.Error(t, err)
	require.Equal(t, filepath.Join(dir, "config.toml"), path)
	require.NotNil(t, cfg)
	require.Equal(t, 3, cfg.Queue.MaxConcurrent)
}

func TestFindConfigFile_Precedence(t *testing.T) {
	dir := t.TempDir()
	require.Equal(t, "", FindConfigFile(dir))

	writeFile(t, filepath.Join(dir, "config.yaml"), "")
	require.Equal(t, filepath.Join(dir, "config.yaml"), FindConfigFile(dir))

	writeFile(t, filepath.Join(dir, "config.toml"), "")
	require.Equal(t, filepath.Join(dir, "config.toml"), FindConfigFile(dir))
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("BRIDGECHAT_HOME", t.TempDir())
	t.Setenv("BRIDGECHAT_WEBHOOK_URL", "https://override.example.com")
	t.Setenv("BRIDGECHAT_EMERGENCY", "yes")
	t.Setenv("BRIDGECHAT_MAX_CONCURRENT", "7")
	t.Setenv("BRIDGECHAT_OTLP_ENDPOINT", "collector:4318")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	require.Equal(t, "https://override.example.com", cfg.Webhook.BaseURL)
	require.True(t, cfg.Webhook.EmergencyMode)
	require.Equal(t, 7, cfg.Queue.MaxConcurrent)
	require.True(t, cfg.Tracing.Enabled)
	require.Equal(t, "collector:4318", cfg.Tracing.Endpoint)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	writeFile(t, path, "BRIDGECHAT_TEST_DOTENV=from-file\n")
	t.Cleanup(func() { os.Unsetenv("BRIDGECHAT_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(path))
	require.Equal(t, "from-file", os.Getenv("BRIDGECHAT_TEST_DOTENV"))

	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestGetSet(t *testing.T) {
	t.Setenv("BRIDGECHAT_HOME", t.TempDir())
	cfg := Default()

	require.NoError(t, cfg.Set("queue.max_concurrent", "4"))
	v, err := cfg.Get("queue.max_concurrent")
	require.NoError(t, err)
	require.Equal(t, 4, v)

	require.NoError(t, cfg.Set("webhook.emergency_mode", "true"))
	require.True(t, cfg.Webhook.EmergencyMode)

	require.Error(t, cfg.Set("queue.max_concurrent", "many"))
	require.Error(t, cfg.Set("queue.nope", "1"))
	require.Error(t, cfg.Set("dispatch.policies", "x"))
	_, err = cfg.Get("queue")
	require.Error(t, err)

	require.Contains(t, Keys(), "stream.interval_ms")
	require.NotContains(t, Keys(), "dispatch.policies")
}

func TestSave_RoundTripsThroughLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BRIDGECHAT_HOME", dir)
	path := filepath.Join(dir, "config.toml")

	cfg := Default()
	cfg.User.ID = "chief-engineer"
	require.NoError(t, Save(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	require.Equal(t, "chief-engineer", loaded.User.ID)
	require.Equal(t, len(cfg.Dispatch.Policies), len(loaded.Dispatch.Policies))
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BRIDGECHAT_HOME", dir)
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, "[webhook]\nemergency_mode = false\n")

	got := make(chan *Config, 4)
	w, err := NewWatcher(path, func(c *Config) { got <- c }, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	writeFile(t, path, "[webhook]\nemergency_mode = true\n")

	select {
	case cfg := <-got:
		require.True(t, cfg.Webhook.EmergencyMode)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not deliver reloaded config")
	}
}

func TestGlobal_SetAndReset(t *testing.T) {
	t.Setenv("BRIDGECHAT_HOME", t.TempDir())
	ResetGlobalForTesting()
	t.Cleanup(ResetGlobalForTesting)

	require.Equal(t, 3, Global().Queue.MaxConcurrent)

	cfg := Default()
	cfg.Queue.MaxConcurrent = 9
	SetGlobal(cfg)
	require.Equal(t, 9, Global().Queue.MaxConcurrent)
}
