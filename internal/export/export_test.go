// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/bridgechat/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleConversation() *model.Conversation {
	ts := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	return &model.Conversation{
		ID:        "c1",
		Title:     "Main engine: high exhaust temp",
		Timestamp: ts,
		Messages: []*model.Message{
			{ID: "m1", Text: "Exhaust temp on cylinder 3 is high", IsUser: true, Timestamp: ts},
			{
				ID:         "m2",
				Text:       "Likely a **fouled injector**. <script>alert(1)</script>",
				Timestamp:  ts.Add(time.Minute),
				Category:   "engine",
				Confidence: 0.82,
				Solutions: []model.Solution{{
					Title:      "Replace injector",
					Confidence: 82,
					Steps:      []string{"Isolate fuel", "Remove injector"},
					Parts:      []string{"Injector nozzle"},
				}},
				Sources: []model.Source{{Title: "Engine manual ch. 4", URL: "http://docs.local/manuals/4"}},
			},
		},
	}
}

func TestForFormat(t *testing.T) {
	for _, f := range []string{"md", "markdown", "json", "html", "HTML"} {
		e, err := ForFormat(f, nil)
		require.NoError(t, err, f)
		require.NotNil(t, e)
	}
	_, err := ForFormat("pdf", nil)
	assert.Error(t, err)
}

func TestMarkdownExporter(t *testing.T) {
	out, err := NewMarkdownExporter(nil).Export(sampleConversation())
	require.NoError(t, err)
	md := string(out)

	assert.Contains(t, md, `title: "Main engine: high exhaust temp"`)
	assert.Contains(t, md, "# Main engine: high exhaust temp")
	assert.Contains(t, md, "### Crew <sub>09:30:00</sub>")
	assert.Contains(t, md, "*Category: engine | Confidence: 82%*")
	assert.Contains(t, md, "1. Replace injector (82%)")
	assert.Contains(t, md, "    - Remove injector")
	assert.Contains(t, md, "    - *Parts:* Injector nozzle")
	assert.Contains(t, md, "- [Engine manual ch. 4](http://docs.local/manuals/4)")
}

func TestMarkdownExporter_NoMetadata(t *testing.T) {
	opts := DefaultOptions()
	opts.IncludeMetadata = false
	opts.IncludeTimestamps = false

	out, err := NewMarkdownExporter(opts).Export(sampleConversation())
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(string(out), "---"))
	assert.Contains(t, string(out), "### Assistant\n")
}

func TestHTMLExporter_EscapesRawHTML(t *testing.T) {
	out, err := NewHTMLExporter(nil).Export(sampleConversation())
	require.NoError(t, err)
	page := string(out)

	assert.Contains(t, page, "<title>Main engine: high exhaust temp</title>")
	assert.Contains(t, page, `class="dark-theme"`)
	assert.Contains(t, page, "<strong>fouled injector</strong>")
	assert.NotContains(t, page, "<script>alert(1)</script>")
	assert.Contains(t, page, "Replace injector")
}

func TestJSONExporter_ReadsBack(t *testing.T) {
	out, err := NewJSONExporter(nil).Export(sampleConversation())
	require.NoError(t, err)

	var conv model.Conversation
	require.NoError(t, json.Unmarshal(out, &conv))
	assert.Equal(t, "c1", conv.ID)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "Injector nozzle", conv.Messages[1].Solutions[0].Parts[0])
}

func TestExport_RejectsEmpty(t *testing.T) {
	_, err := NewMarkdownExporter(nil).Export(&model.Conversation{ID: "x"})
	assert.Error(t, err)
	_, err = NewHTMLExporter(nil).Export(nil)
	assert.Error(t, err)
	_, err = NewJSONExporter(nil).Export(nil)
	assert.Error(t, err)
}

func TestExportToFile(t *testing.T) {
	opts := DefaultOptions()
	opts.OutputDir = filepath.Join(t.TempDir(), "exports")

	path, err := ExportToFile(sampleConversation(), NewMarkdownExporter(opts), opts)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "chat_Main_engine-_high_exhaust_temp_"))
	assert.Equal(t, ".md", filepath.Ext(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "fouled injector")
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "conversation", sanitizeFilename(""))
	assert.Equal(t, "a-b-c_d", sanitizeFilename("a/b:c d"))
}

func TestFormatConfidence(t *testing.T) {
	assert.Equal(t, "85%", FormatConfidence(0.85))
	assert.Equal(t, "85%", FormatConfidence(85))
}
