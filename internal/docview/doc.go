// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package docview serves reference documents (manuals, procedures, parts)
// from a local SQLite database as printable HTML pages.
//
// Routes:
//
//	GET /{table}/{id}              render one row
//	GET /{table}/{id}?export=pdf   same page with print styling and a PDF filename hint
//	GET /health                    liveness probe
//	GET /metrics                   Prometheus scrape
//
// Errors are JSON objects of the form {"error": "..."}.
package docview
