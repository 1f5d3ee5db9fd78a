// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jeranaias/bridgechat/internal/logging"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// StaleAfter is how long rows of other sessions are kept.
const StaleAfter = 24 * time.Hour

const schema = `
CREATE TABLE IF NOT EXISTS session_cache (
    session_id TEXT NOT NULL,
    key        TEXT NOT NULL,
    value      TEXT NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (session_id, key)
);
CREATE INDEX IF NOT EXISTS idx_session_cache_updated ON session_cache(updated_at);
`

// Cache is a key/value store scoped to one session id.
type Cache struct {
	db        *sql.DB
	sessionID string
	logger    *zap.Logger
	now       func() time.Time
}

// Open opens (or creates) the cache database at path and purges stale rows
// left by other sessions.
func Open(path, sessionID string, logger *zap.Logger) (*Cache, error) {
	if sessionID == "" {
		return nil, errors.New("session id cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA synchronous=NORMAL"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	c := &Cache{
		db:        db,
		sessionID: sessionID,
		logger:    logging.OrNop(logger).Named("session"),
		now:       time.Now,
	}
	if n, err := c.purgeStale(); err != nil {
		c.logger.Warn("stale session purge failed", zap.Error(err))
	} else if n > 0 {
		c.logger.Debug("purged stale session rows", zap.Int64("rows", n))
	}
	return c, nil
}

// SessionID returns the id this cache is scoped to.
func (c *Cache) SessionID() string { return c.sessionID }

// Put stores value as JSON under key.
func (c *Cache) Put(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	_, err = c.db.Exec(`INSERT INTO session_cache (session_id, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		c.sessionID, key, string(data), c.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

// Get decodes the value stored under key into dst. It reports false when
// the key is absent or the stored value cannot be decoded; the latter is
// logged, never returned.
func (c *Cache) Get(key string, dst any) (bool, error) {
	var raw string
	err := c.db.QueryRow(`SELECT value FROM session_cache WHERE session_id = ? AND key = ?`,
		c.sessionID, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		c.logger.Warn("discarding unreadable cache entry", zap.String("key", key), zap.Error(err))
		return false, nil
	}
	return true, nil
}

// Delete removes key. A missing key is not an error.
func (c *Cache) Delete(key string) error {
	_, err := c.db.Exec(`DELETE FROM session_cache WHERE session_id = ? AND key = ?`, c.sessionID, key)
	return err
}

// Keys lists this session's keys in name order.
func (c *Cache) Keys() ([]string, error) {
	rows, err := c.db.Query(`SELECT key FROM session_cache WHERE session_id = ? ORDER BY key`, c.sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close clears this session's rows and closes the database.
func (c *Cache) Close() error {
	_, clearErr := c.db.Exec(`DELETE FROM session_cache WHERE session_id = ?`, c.sessionID)
	closeErr := c.db.Close()
	return errors.Join(clearErr, closeErr)
}

func (c *Cache) purgeStale() (int64, error) {
	cutoff := c.now().Add(-StaleAfter).UnixMilli()
	res, err := c.db.Exec(`DELETE FROM session_cache WHERE session_id != ? AND updated_at < ?`,
		c.sessionID, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
