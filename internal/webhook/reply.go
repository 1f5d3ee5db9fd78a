// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jeranaias/bridgechat/internal/model"
)

// FallbackText is shown when a reply arrives in a shape we cannot read.
const FallbackText = "I received a response but couldn't read it. Please try rephrasing your question."

// maxUnwrapDepth bounds recursion into nested arrays and n8n item wrappers.
const maxUnwrapDepth = 4

// Kind tags which reply shape was recognised.
type Kind int

const (
	// KindFallback means nothing recognisable was found.
	KindFallback Kind = iota
	// KindText is a plain answer string.
	KindText
	// KindStructured carries a message plus solution cards and sources.
	KindStructured
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindStructured:
		return "structured"
	default:
		return "fallback"
	}
}

// Reply is the canonical form of every successful webhook answer.
type Reply struct {
	Kind      Kind
	Text      string
	Solutions []model.Solution
	Sources   []model.Source
	Metadata  Metadata
}

// Metadata is optional bookkeeping the backend attaches to replies.
type Metadata struct {
	TokensRemaining *int
	Category        string
	Confidence      float64
	ResponseTimeMs  float64
	CacheHit        bool
}

// ParseReply normalises a 2xx body. It never fails: anything unrecognised
// becomes a KindFallback reply carrying FallbackText.
//
// Shapes are tried in this order:
//  1. array: the first element, recursively
//  2. bare JSON string
//  3. {"response": "..."}
//  4. {"response": {"message", "solutions", "sources"}}
//  5. {"message"|"output"|"text": "..."} at the top level
//  6. {"json": {...}} item wrappers, recursively
func ParseReply(data []byte) *Reply {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fallbackReply()
	}
	if r := parseValue(v, 0); r != nil {
		return r
	}
	return fallbackReply()
}

// FirstItem strips array wrappers from a JSON body the way ParseReply does
// and returns the first element. Other bodies are returned unchanged.
func FirstItem(data []byte) []byte {
	for depth := 0; depth <= maxUnwrapDepth; depth++ {
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) == 0 || trimmed[0] != '[' {
			return data
		}
		var items []json.RawMessage
		if json.Unmarshal(trimmed, &items) != nil || len(items) == 0 {
			return data
		}
		data = items[0]
	}
	return data
}

func fallbackReply() *Reply {
	return &Reply{Kind: KindFallback, Text: FallbackText}
}

func parseValue(v any, depth int) *Reply {
	if depth > maxUnwrapDepth {
		return nil
	}

	switch val := v.(type) {
	case []any:
		if len(val) == 0 {
			return nil
		}
		return parseValue(val[0], depth+1)

	case string:
		if strings.TrimSpace(val) == "" {
			return nil
		}
		return &Reply{Kind: KindText, Text: val}

	case map[string]any:
		return parseObject(val, depth)
	}
	return nil
}

func parseObject(obj map[string]any, depth int) *Reply {
	meta := parseMetadata(obj)

	switch resp := obj["response"].(type) {
	case string:
		if strings.TrimSpace(resp) != "" {
			return &Reply{Kind: KindText, Text: resp, Metadata: meta}
		}
	case map[string]any:
		if r := parseStructured(resp); r != nil {
			r.Metadata = mergeMetadata(meta, parseMetadata(resp))
			return r
		}
	case []any:
		if r := parseValue(resp, depth+1); r != nil {
			r.Metadata = mergeMetadata(meta, r.Metadata)
			return r
		}
	}

	if _, ok := obj["solutions"]; ok {
		if r := parseStructured(obj); r != nil {
			r.Metadata = meta
			return r
		}
	}

	for _, key := range []string{"message", "output", "text", "answer"} {
		if s, ok := obj[key].(string); ok && strings.TrimSpace(s) != "" {
			return &Reply{Kind: KindText, Text: s, Metadata: meta}
		}
	}

	if inner, ok := obj["json"]; ok {
		return parseValue(inner, depth+1)
	}
	return nil
}

func parseStructured(obj map[string]any) *Reply {
	msg, _ := obj["message"].(string)
	solutions := parseSolutions(obj["solutions"])
	sources := parseSources(obj["sources"])
	if strings.TrimSpace(msg) == "" && len(solutions) == 0 {
		return nil
	}
	return &Reply{
		Kind:      KindStructured,
		Text:      msg,
		Solutions: solutions,
		Sources:   sources,
	}
}

func parseSolutions(v any) []model.Solution {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []model.Solution
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		s := model.Solution{
			Title:      firstString(obj, "title", "name", "solution"),
			Confidence: number(obj["confidence"]),
			Steps:      stringList(obj["steps"], "description", "text", "step"),
			Parts:      stringList(obj["parts"], "name", "partNumber", "part"),
		}
		if s.Title == "" && len(s.Steps) == 0 {
			continue
		}
		out = append(out, s)
	}
	return out
}

func parseSources(v any) []model.Source {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []model.Source
	for _, item := range items {
		switch src := item.(type) {
		case string:
			if src != "" {
				out = append(out, model.Source{Title: src})
			}
		case map[string]any:
			s := model.Source{
				Title: firstString(src, "title", "name", "document"),
				Table: firstString(src, "table", "type"),
				ID:    scalarString(src["id"]),
				URL:   firstString(src, "url", "link"),
			}
			if s.Title == "" && s.ID == "" && s.URL == "" {
				continue
			}
			out = append(out, s)
		}
	}
	return out
}

func parseMetadata(obj map[string]any) Metadata {
	var meta Metadata
	if m, ok := obj["metadata"].(map[string]any); ok {
		if v, ok := m["tokensRemaining"]; ok {
			if n, ok := toInt(v); ok {
				meta.TokensRemaining = &n
			}
		}
		meta.Category, _ = m["category"].(string)
		meta.Confidence = number(m["confidence"])
		meta.ResponseTimeMs = number(m["responseTime"])
		meta.CacheHit, _ = m["cacheHit"].(bool)
	}
	if b, ok := obj["cacheHit"].(bool); ok && b {
		meta.CacheHit = true
	}
	if b, ok := obj["cached"].(bool); ok && b {
		meta.CacheHit = true
	}
	return meta
}

// mergeMetadata fills zero fields of a from b.
func mergeMetadata(a, b Metadata) Metadata {
	if a.TokensRemaining == nil {
		a.TokensRemaining = b.TokensRemaining
	}
	if a.Category == "" {
		a.Category = b.Category
	}
	if a.Confidence == 0 {
		a.Confidence = b.Confidence
	}
	if a.ResponseTimeMs == 0 {
		a.ResponseTimeMs = b.ResponseTimeMs
	}
	a.CacheHit = a.CacheHit || b.CacheHit
	return a
}

// =============================================================================
// LOOSE JSON HELPERS
// =============================================================================

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// stringList accepts a list of strings, a list of objects (reading the first
// present key), or a single newline-separated string.
func stringList(v any, keys ...string) []string {
	switch val := v.(type) {
	case string:
		var out []string
		for _, line := range strings.Split(val, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				out = append(out, line)
			}
		}
		return out
	case []any:
		var out []string
		for _, item := range val {
			switch it := item.(type) {
			case string:
				if it != "" {
					out = append(out, it)
				}
			case map[string]any:
				if s := firstString(it, keys...); s != "" {
					out = append(out, s)
				}
			}
		}
		return out
	}
	return nil
}

// number reads a JSON number or a numeric string such as "85" or "85%".
func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(n), "%"), 64)
		if err == nil {
			return f
		}
	}
	return 0
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}

func scalarString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}
