// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package docview

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Tables lists the tables that may be served.
var Tables = []string{"manuals", "procedures", "parts"}

var (
	// ErrUnknownTable is returned for a table outside Tables.
	ErrUnknownTable = errors.New("unknown table")
	// ErrInvalidID is returned for ids that are empty or contain unexpected characters.
	ErrInvalidID = errors.New("invalid document id")
	// ErrNotFound is returned when no row matches.
	ErrNotFound = errors.New("document not found")
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

const schema = `
CREATE TABLE IF NOT EXISTS manuals (
    id         TEXT PRIMARY KEY,
    title      TEXT NOT NULL,
    system     TEXT,
    revision   TEXT,
    content    TEXT
);
CREATE TABLE IF NOT EXISTS procedures (
    id         TEXT PRIMARY KEY,
    title      TEXT NOT NULL,
    category   TEXT,
    steps      TEXT,
    warnings   TEXT
);
CREATE TABLE IF NOT EXISTS parts (
    id          TEXT PRIMARY KEY,
    title       TEXT NOT NULL,
    part_number TEXT,
    location    TEXT,
    quantity    INTEGER,
    notes       TEXT
);
`

// Field is one column of a document, in table order.
type Field struct {
	Name  string
	Value string
}

// Document is a single row rendered as ordered fields.
type Document struct {
	Table  string
	ID     string
	Title  string
	Fields []Field
}

// Finder looks up documents.
type Finder interface {
	Find(ctx context.Context, table, id string) (*Document, error)
}

// Library is a Finder backed by SQLite.
type Library struct {
	db *sql.DB
}

// OpenLibrary opens (or creates) the document database at path.
func OpenLibrary(path string) (*Library, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Library{db: db}, nil
}

// NewLibrary wraps an already open database.
func NewLibrary(db *sql.DB) *Library {
	return &Library{db: db}
}

// DB exposes the underlying handle for seeding.
func (l *Library) DB() *sql.DB { return l.db }

// Close closes the database.
func (l *Library) Close() error { return l.db.Close() }

// Find returns the row of table with the given id.
func (l *Library) Find(ctx context.Context, table, id string) (*Document, error) {
	if err := validate(table, id); err != nil {
		return nil, err
	}

	// table is allow-listed above, so it is safe to splice into the query.
	rows, err := l.db.QueryContext(ctx, "SELECT * FROM "+table+" WHERE id = ? LIMIT 1", id)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns %s: %w", table, err)
	}
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("query %s: %w", table, err)
		}
		return nil, ErrNotFound
	}

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("scan %s: %w", table, err)
	}

	doc := &Document{Table: table, ID: id}
	for i, col := range cols {
		value := columnString(values[i])
		if col == "title" {
			doc.Title = value
		}
		doc.Fields = append(doc.Fields, Field{Name: col, Value: value})
	}
	if doc.Title == "" {
		doc.Title = fmt.Sprintf("%s %s", strings.TrimSuffix(table, "s"), id)
	}
	return doc, nil
}

func validate(table, id string) error {
	known := false
	for _, t := range Tables {
		if t == table {
			known = true
			break
		}
	}
	if !known {
		return ErrUnknownTable
	}
	if !idPattern.MatchString(id) {
		return ErrInvalidID
	}
	return nil
}

func columnString(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(v)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
