// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package webhook

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// FailureKind classifies an error response.
type FailureKind int

const (
	// FailureApplication is a readable error body without special handling.
	FailureApplication FailureKind = iota
	// FailureRateLimited carries a reset time for a countdown.
	FailureRateLimited
	// FailureTokenLimit means the user's token allowance is spent.
	FailureTokenLimit
	// FailureEmptyBody is a response with no body at all.
	FailureEmptyBody
	// FailureMalformed is a body that is not JSON.
	FailureMalformed
)

func (k FailureKind) String() string {
	switch k {
	case FailureRateLimited:
		return "rate_limited"
	case FailureTokenLimit:
		return "token_limit"
	case FailureEmptyBody:
		return "empty_body"
	case FailureMalformed:
		return "malformed"
	default:
		return "application"
	}
}

// Limits describes a quota the request ran into.
type Limits struct {
	Limit     int
	Used      int
	Remaining int
}

// Failure is a response that arrived but did not succeed.
type Failure struct {
	Status  int
	Kind    FailureKind
	Code    string
	Message string // server-supplied, user-facing; may be empty
	ResetAt time.Time
	Limits  *Limits
}

func (f *Failure) Error() string {
	if f.Message != "" {
		return fmt.Sprintf("webhook %s (HTTP %d): %s", f.Kind, f.Status, f.Message)
	}
	return fmt.Sprintf("webhook %s (HTTP %d)", f.Kind, f.Status)
}

// UserMessage is the text to show in the error banner.
func (f *Failure) UserMessage() string {
	if f.Message != "" {
		return f.Message
	}
	switch f.Kind {
	case FailureRateLimited:
		return "Too many requests. Please wait a moment and try again."
	case FailureTokenLimit:
		return "You have used your message allowance for now."
	case FailureEmptyBody, FailureMalformed:
		return "The assistant returned an unreadable response. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}

// RetryAfter returns how long until ResetAt, or zero.
func (f *Failure) RetryAfter(now time.Time) time.Duration {
	if f.ResetAt.IsZero() || !f.ResetAt.After(now) {
		return 0
	}
	return f.ResetAt.Sub(now)
}

// EmptyBody builds the failure for a zero-length response.
func EmptyBody(status int) *Failure {
	return &Failure{Status: status, Kind: FailureEmptyBody}
}

// Malformed builds the failure for a non-JSON response.
func Malformed(status int) *Failure {
	return &Failure{Status: status, Kind: FailureMalformed}
}

// ParseFailure reads an error body. data must already be known to be JSON;
// unknown shapes yield a FailureApplication with no message.
func ParseFailure(status int, data []byte) *Failure {
	f := &Failure{Status: status, Kind: FailureApplication}
	data = FirstItem(data)

	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		// Valid JSON but not an object, e.g. a bare error string.
		var s string
		if json.Unmarshal(data, &s) == nil {
			f.Message = s
		}
		f.Kind = classify(status, "", f.Message)
		return f
	}

	switch e := obj["error"].(type) {
	case string:
		f.Message = e
	case map[string]any:
		f.Code = firstString(e, "code", "type")
		f.Message = firstString(e, "message", "details")
		f.ResetAt = parseTime(e["resetTime"], e["resetAt"])
		f.Limits = parseLimits(e)
	}
	if f.Code == "" {
		f.Code = firstString(obj, "code", "errorCode")
	}
	if m := firstString(obj, "userMessage"); m != "" {
		f.Message = m
	} else if f.Message == "" {
		f.Message = firstString(obj, "message")
	}
	if f.ResetAt.IsZero() {
		f.ResetAt = parseTime(obj["resetTime"], obj["resetAt"], obj["retryAt"])
	}
	if f.Limits == nil {
		f.Limits = parseLimits(obj)
	}

	f.Kind = classify(status, f.Code, f.Message)
	return f
}

func classify(status int, code, message string) FailureKind {
	c := strings.ToLower(code)
	m := strings.ToLower(message)
	switch {
	case strings.Contains(c, "token") || strings.Contains(m, "token limit"):
		return FailureTokenLimit
	case status == http.StatusTooManyRequests || strings.Contains(c, "rate"):
		return FailureRateLimited
	}
	return FailureApplication
}

// parseTime accepts RFC 3339 strings or unix seconds/milliseconds.
func parseTime(candidates ...any) time.Time {
	for _, v := range candidates {
		switch t := v.(type) {
		case string:
			if ts, err := time.Parse(time.RFC3339, t); err == nil {
				return ts
			}
			if n, err := strconv.ParseInt(t, 10, 64); err == nil {
				return unixish(n)
			}
		case float64:
			return unixish(int64(t))
		}
	}
	return time.Time{}
}

func unixish(n int64) time.Time {
	if n > 1e12 {
		return time.UnixMilli(n)
	}
	return time.Unix(n, 0)
}

func parseLimits(obj map[string]any) *Limits {
	src := obj
	if inner, ok := obj["limits"].(map[string]any); ok {
		src = inner
	}
	limit, okL := firstInt(src, "limit", "daily", "tokenLimit", "max")
	used, okU := firstInt(src, "used", "tokensUsed", "current")
	if !okL && !okU {
		return nil
	}
	l := &Limits{Limit: limit, Used: used}
	if rem, ok := firstInt(src, "remaining", "tokensRemaining"); ok {
		l.Remaining = rem
	} else if okL {
		l.Remaining = max(limit-used, 0)
	}
	return l
}

func firstInt(obj map[string]any, keys ...string) (int, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			if n, ok := toInt(v); ok {
				return n, true
			}
		}
	}
	return 0, false
}
