// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and validates bridgechat configuration.
//
// Configuration file locations (in order of precedence):
//   - ~/.bridgechat/config.toml
//   - ~/.bridgechat/config.json
//   - ~/.bridgechat/config.yaml
//   - Built-in defaults
//
// A .env file in the working directory and BRIDGECHAT_* environment
// variables are applied on top. Set BRIDGECHAT_HOME to relocate the
// directory.
//
// Durations are stored as integer milliseconds (timeout_ms, retry_delay_ms,
// interval_ms) and exposed as time.Duration through accessor methods.
//
// The dispatch policy table is ordered; the first pattern matching an
// endpoint wins:
//
//	[[dispatch.policies]]
//	pattern = "*chat*"
//	max_attempts = 1
package config
