// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/jeranaias/bridgechat/internal/model"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports conversations to a standalone HTML page with
// embedded CSS. Message bodies go through goldmark, which drops raw HTML.
type HTMLExporter struct {
	options *Options
	md      goldmark.Markdown
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{
		options: opts,
		md:      goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

type htmlMessage struct {
	Role  string
	Class string
	Time  string
	Body  template.HTML
}

type htmlPage struct {
	Title    string
	Theme    string
	Metadata bool
	Updated  string
	Count    int
	Messages []htmlMessage
	Exported string
}

// Export converts a conversation to HTML format.
func (e *HTMLExporter) Export(conv *model.Conversation) ([]byte, error) {
	if err := validate(conv); err != nil {
		return nil, err
	}

	theme := e.options.Theme
	if theme != "light" {
		theme = "dark"
	}
	page := htmlPage{
		Title:    conv.Title,
		Theme:    theme,
		Metadata: e.options.IncludeMetadata,
		Updated:  formatTimestamp(conv.Timestamp),
		Count:    len(conv.Messages),
		Exported: time.Now().Format("January 2, 2006 at 3:04 PM"),
	}

	for _, msg := range conv.Messages {
		var body bytes.Buffer
		if err := e.md.Convert([]byte(MessageMarkdown(msg)), &body); err != nil {
			return nil, fmt.Errorf("render message %s: %w", msg.ID, err)
		}
		hm := htmlMessage{
			Role:  roleLabel(msg),
			Class: "assistant",
			Body:  template.HTML(body.String()),
		}
		if msg.IsUser {
			hm.Class = "user"
		}
		if e.options.IncludeTimestamps && !msg.Timestamp.IsZero() {
			hm.Time = formatShortTimestamp(msg.Timestamp)
		}
		page.Messages = append(page.Messages, hm)
	}

	var out bytes.Buffer
	if err := pageTemplate.Execute(&out, page); err != nil {
		return nil, fmt.Errorf("render page: %w", err)
	}
	return out.Bytes(), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string {
	return "text/html"
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <meta name="generator" content="bridgechat">
    <title>{{.Title}}</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        .dark-theme {
            --bg: #0f1a24; --panel: #16283a; --text: #d8e3ec; --muted: #7d93a6;
            --user: #1d3650; --assistant: #16283a; --accent: #4fb3d9; --border: #29455e;
        }
        .light-theme {
            --bg: #f4f7fa; --panel: #ffffff; --text: #1c2833; --muted: #5f7485;
            --user: #e3eef7; --assistant: #ffffff; --accent: #1b6f99; --border: #c9d6e1;
        }
        body { background: var(--bg); color: var(--text); font: 15px/1.6 -apple-system, "Segoe UI", Roboto, sans-serif; }
        .container { max-width: 860px; margin: 0 auto; padding: 32px 20px; }
        header h1 { font-size: 1.6em; margin-bottom: 6px; }
        .metadata { color: var(--muted); font-size: 0.9em; margin-bottom: 24px; }
        .message { background: var(--assistant); border: 1px solid var(--border); border-radius: 8px; padding: 14px 18px; margin-bottom: 14px; }
        .message.user { background: var(--user); }
        .role { font-weight: 600; color: var(--accent); }
        .time { color: var(--muted); font-size: 0.8em; margin-left: 8px; }
        .body p, .body ol, .body ul { margin-top: 8px; }
        .body ol, .body ul { padding-left: 22px; }
        .body code { font-family: "SF Mono", Consolas, monospace; }
        footer { color: var(--muted); font-size: 0.8em; text-align: center; margin-top: 28px; }
        @media print { body { background: #fff; color: #000; } .message { break-inside: avoid; } }
    </style>
</head>
<body class="{{.Theme}}-theme">
    <div class="container">
        <header>
            <h1>{{.Title}}</h1>
            {{- if .Metadata}}
            <div class="metadata">Last activity {{.Updated}} &middot; {{.Count}} messages</div>
            {{- end}}
        </header>
        <main>
            {{- range .Messages}}
            <section class="message {{.Class}}">
                <div><span class="role">{{.Role}}</span>{{if .Time}}<span class="time">{{.Time}}</span>{{end}}</div>
                <div class="body">{{.Body}}</div>
            </section>
            {{- end}}
        </main>
        <footer>Exported from bridgechat on {{.Exported}}</footer>
    </div>
</body>
</html>
`))
