// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError describes one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is every problem found by Validate.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration and returns ValidateErrors, or nil.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if u, err := url.Parse(c.Webhook.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		add("webhook.base_url", "must be an absolute URL, got %q", c.Webhook.BaseURL)
	} else if u.Scheme != "http" && u.Scheme != "https" {
		add("webhook.base_url", "scheme must be http or https, got %q", u.Scheme)
	}
	if !strings.HasPrefix(c.Webhook.ChatEndpoint, "/") {
		add("webhook.chat_endpoint", "must start with '/'")
	}

	if strings.TrimSpace(c.User.ID) == "" {
		add("user.id", "must not be empty")
	}

	if c.Queue.MaxConcurrent < 1 || c.Queue.MaxConcurrent > 64 {
		add("queue.max_concurrent", "must be between 1 and 64, got %d", c.Queue.MaxConcurrent)
	}

	if c.Dispatch.MaxRetries < 1 {
		add("dispatch.max_retries", "must be at least 1, got %d", c.Dispatch.MaxRetries)
	}
	if c.Dispatch.TimeoutMs < 100 {
		add("dispatch.timeout_ms", "must be at least 100, got %d", c.Dispatch.TimeoutMs)
	}
	if c.Dispatch.RetryDelayMs < 0 {
		add("dispatch.retry_delay_ms", "must not be negative")
	}
	for i, p := range c.Dispatch.Policies {
		field := fmt.Sprintf("dispatch.policies[%d]", i)
		if strings.TrimSpace(p.Pattern) == "" {
			add(field+".pattern", "must not be empty")
		}
		if p.MaxAttempts < 0 {
			add(field+".max_attempts", "must not be negative")
		}
		if p.RetryDelayMs < 0 {
			add(field+".retry_delay_ms", "must not be negative")
		}
		if p.RatePerSecond < 0 {
			add(field+".rate_per_second", "must not be negative")
		}
	}

	if c.Stream.IntervalMs < 1 {
		add("stream.interval_ms", "must be positive, got %d", c.Stream.IntervalMs)
	}

	switch c.Storage.Backend {
	case "file", "bolt":
	default:
		add("storage.backend", "must be one of: file, bolt; got %q", c.Storage.Backend)
	}

	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		add("tracing.endpoint", "required when tracing is enabled")
	}

	if c.Docs.RateLimit < 0 {
		add("docs.rate_limit", "must not be negative")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
