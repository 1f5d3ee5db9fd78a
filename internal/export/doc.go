// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes conversations out as Markdown, JSON or HTML.
//
// # Supported Formats
//
//   - Markdown: transcript with suggested fixes and sources
//   - JSON: the stored conversation as-is
//   - HTML: self-contained page, message bodies rendered with goldmark
//
// # Usage
//
//	exporter, err := export.ForFormat("md", export.DefaultOptions())
//	path, err := export.ExportToFile(conv, exporter, opts)
package export
