// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads KEY=value pairs from path into the environment. Variables
// already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return godotenv.Load(path)
}

// ApplyEnvOverrides applies BRIDGECHAT_* environment variables:
//   - BRIDGECHAT_WEBHOOK_URL: webhook.base_url
//   - BRIDGECHAT_EMERGENCY: webhook.emergency_mode
//   - BRIDGECHAT_DEBUG: webhook.debug
//   - BRIDGECHAT_USER_ID, BRIDGECHAT_USER_NAME: user.id, user.name
//   - BRIDGECHAT_MAX_CONCURRENT: queue.max_concurrent
//   - BRIDGECHAT_STORAGE: storage.backend
//   - BRIDGECHAT_LOG_LEVEL: logging.level
//   - BRIDGECHAT_METRICS_ADDR: metrics.listen_addr
//   - BRIDGECHAT_OTLP_ENDPOINT: tracing.endpoint (and enables tracing)
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("BRIDGECHAT_WEBHOOK_URL"); v != "" {
		c.Webhook.BaseURL = v
	}
	if v := os.Getenv("BRIDGECHAT_EMERGENCY"); v != "" {
		c.Webhook.EmergencyMode = parseBool(v)
	}
	if v := os.Getenv("BRIDGECHAT_DEBUG"); v != "" {
		c.Webhook.Debug = parseBool(v)
	}
	if v := os.Getenv("BRIDGECHAT_USER_ID"); v != "" {
		c.User.ID = v
	}
	if v := os.Getenv("BRIDGECHAT_USER_NAME"); v != "" {
		c.User.Name = v
	}
	if v := os.Getenv("BRIDGECHAT_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Queue.MaxConcurrent = n
		}
	}
	if v := os.Getenv("BRIDGECHAT_STORAGE"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("BRIDGECHAT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("BRIDGECHAT_METRICS_ADDR"); v != "" {
		c.Metrics.ListenAddr = v
	}
	if v := os.Getenv("BRIDGECHAT_OTLP_ENDPOINT"); v != "" {
		c.Tracing.Endpoint = v
		c.Tracing.Enabled = true
	}
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
