// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dispatch

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jeranaias/bridgechat/internal/config"
	"golang.org/x/time/rate"
)

// Policy is the retry behaviour for endpoints matching Pattern.
type Policy struct {
	Pattern string

	// MaxAttempts caps the caller's MaxRetries. Zero means no cap.
	MaxAttempts int

	// RetryDelay overrides the dispatcher default when non-zero.
	RetryDelay time.Duration

	// limiter spaces out attempts to endpoints that must not be hammered.
	limiter *rate.Limiter
	re      *regexp.Regexp
}

// Attempts returns how many attempts a send with the requested retry count
// gets under this policy.
func (p *Policy) Attempts(requested int) int {
	if requested < 1 {
		requested = 1
	}
	if p.MaxAttempts > 0 && p.MaxAttempts < requested {
		return p.MaxAttempts
	}
	return requested
}

// Delay returns the wait between attempts.
func (p *Policy) Delay(fallback time.Duration) time.Duration {
	if p.RetryDelay > 0 {
		return p.RetryDelay
	}
	return fallback
}

// Limited reports whether attempts are rate limited.
func (p *Policy) Limited() bool {
	return p.limiter != nil
}

// PolicyTable is the ordered endpoint policy list. The first pattern that
// matches an endpoint wins; an endpoint nothing matches gets defaults.
type PolicyTable struct {
	policies []*Policy
}

// NewPolicyTable compiles the configured patterns. Patterns are globs where
// '*' matches any run of characters, '/' included, and '?' matches one.
func NewPolicyTable(cfgs []config.PolicyConfig) (*PolicyTable, error) {
	t := &PolicyTable{}
	for i, c := range cfgs {
		re, err := compileGlob(c.Pattern)
		if err != nil {
			return nil, fmt.Errorf("policy %d (%q): %w", i, c.Pattern, err)
		}
		p := &Policy{
			Pattern:     c.Pattern,
			MaxAttempts: c.MaxAttempts,
			RetryDelay:  time.Duration(c.RetryDelayMs) * time.Millisecond,
			re:          re,
		}
		if c.RatePerSecond > 0 {
			p.limiter = rate.NewLimiter(rate.Limit(c.RatePerSecond), 1)
		}
		t.policies = append(t.policies, p)
	}
	return t, nil
}

// Match returns the policy for endpoint.
func (t *PolicyTable) Match(endpoint string) *Policy {
	for _, p := range t.policies {
		if p.re.MatchString(endpoint) {
			return p
		}
	}
	return &Policy{Pattern: "*"}
}

// Policies returns the table in match order.
func (t *PolicyTable) Policies() []*Policy {
	return append([]*Policy(nil), t.policies...)
}

func compileGlob(pattern string) (*regexp.Regexp, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, fmt.Errorf("empty pattern")
	}
	var b strings.Builder
	b.WriteString("(?i)^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}
