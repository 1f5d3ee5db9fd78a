// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/bridgechat/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports conversations to Markdown format.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts a conversation to Markdown format.
func (e *MarkdownExporter) Export(conv *model.Conversation) ([]byte, error) {
	if err := validate(conv); err != nil {
		return nil, err
	}

	var sb strings.Builder

	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		fmt.Fprintf(&sb, "title: %s\n", escapeYAML(conv.Title))
		fmt.Fprintf(&sb, "id: %s\n", conv.ID)
		fmt.Fprintf(&sb, "updated: %s\n", conv.Timestamp.Format(time.RFC3339))
		fmt.Fprintf(&sb, "messages: %d\n", len(conv.Messages))
		fmt.Fprintf(&sb, "exported: %s\n", time.Now().Format(time.RFC3339))
		sb.WriteString("generator: bridgechat\n")
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(conv.Title))

	for i, msg := range conv.Messages {
		if e.options.IncludeTimestamps && !msg.Timestamp.IsZero() {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", roleLabel(msg), formatShortTimestamp(msg.Timestamp))
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", roleLabel(msg))
		}
		sb.WriteString(MessageMarkdown(msg))
		sb.WriteString("\n")

		if i < len(conv.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	sb.WriteString("\n---\n\n")
	fmt.Fprintf(&sb, "*Exported from bridgechat on %s*\n", time.Now().Format("January 2, 2006 at 3:04 PM"))

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

// MessageMarkdown renders the body of one message: text, then the
// structured parts of an assistant reply.
func MessageMarkdown(m *model.Message) string {
	var sb strings.Builder

	if text := strings.TrimSpace(m.Text); text != "" {
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}

	if m.Category != "" || m.Confidence > 0 {
		var parts []string
		if m.Category != "" {
			parts = append(parts, "Category: "+m.Category)
		}
		if m.Confidence > 0 {
			parts = append(parts, "Confidence: "+FormatConfidence(m.Confidence))
		}
		fmt.Fprintf(&sb, "*%s*\n\n", strings.Join(parts, " | "))
	}

	if len(m.Solutions) > 0 {
		sb.WriteString("**Suggested fixes**\n\n")
		for i, s := range m.Solutions {
			title := escapeMarkdown(s.Title)
			if s.Confidence > 0 {
				title += " (" + FormatConfidence(s.Confidence) + ")"
			}
			fmt.Fprintf(&sb, "%d. %s\n", i+1, title)
			for _, step := range s.Steps {
				fmt.Fprintf(&sb, "    - %s\n", step)
			}
			if len(s.Parts) > 0 {
				fmt.Fprintf(&sb, "    - *Parts:* %s\n", strings.Join(s.Parts, ", "))
			}
		}
		sb.WriteString("\n")
	}

	if len(m.Sources) > 0 {
		sb.WriteString("**Sources**\n\n")
		for _, src := range m.Sources {
			label := escapeMarkdown(src.Title)
			if label == "" {
				label = src.Table + " " + src.ID
			}
			if src.URL != "" {
				fmt.Fprintf(&sb, "- [%s](%s)\n", label, src.URL)
			} else {
				fmt.Fprintf(&sb, "- %s\n", label)
			}
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// FormatConfidence renders a confidence given either as a fraction or as a
// percentage.
func FormatConfidence(c float64) string {
	if c <= 1 {
		c *= 100
	}
	return fmt.Sprintf("%.0f%%", c)
}

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

// escapeMarkdown escapes special Markdown characters in plain text.
func escapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "#", "\\#")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "[", "\\[")
	s = strings.ReplaceAll(s, "]", "\\]")
	return s
}

// escapeYAML escapes special YAML characters in values.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		s = strings.ReplaceAll(s, "\\", "\\\\")
		s = strings.ReplaceAll(s, "\"", "\\\"")
		s = strings.ReplaceAll(s, "\n", "\\n")
		s = strings.ReplaceAll(s, "\r", "\\r")
		return fmt.Sprintf("\"%s\"", s)
	}
	return s
}
