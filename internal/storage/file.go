// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/bridgechat/internal/logging"
	"github.com/jeranaias/bridgechat/internal/model"
	"github.com/jeranaias/bridgechat/internal/util"
	"go.uber.org/zap"
)

// FileBackend stores one JSON file per conversation:
//
//	<BaseDir>/<user key>/<conversation id>.json
type FileBackend struct {
	BaseDir string
	logger  *zap.Logger
}

// NewFileBackend creates the base directory if needed.
func NewFileBackend(baseDir string, logger *zap.Logger) (*FileBackend, error) {
	if baseDir == "" {
		return nil, errors.New("file backend: empty directory")
	}
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create conversations directory: %w", err)
	}
	return &FileBackend{BaseDir: baseDir, logger: logging.OrNop(logger)}, nil
}

// Name implements Backend.
func (b *FileBackend) Name() string { return "file" }

// Close implements Backend.
func (b *FileBackend) Close() error { return nil }

// Save writes conv atomically so a crash never leaves a half-written file.
func (b *FileBackend) Save(userID string, conv *model.Conversation) error {
	if err := checkID(conv.ID); err != nil {
		return err
	}
	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}
	return util.AtomicWriteFileWithDir(b.path(userID, conv.ID), data, 0600, 0700)
}

// Delete removes the conversation file. A missing file is not an error.
func (b *FileBackend) Delete(userID, convID string) error {
	if err := checkID(convID); err != nil {
		return err
	}
	err := os.Remove(b.path(userID, convID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Load reads every conversation file of the user, skipping corrupted ones.
func (b *FileBackend) Load(userID string) ([]*model.Conversation, error) {
	dir := b.userDir(userID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read conversations directory: %w", err)
	}

	var convs []*model.Conversation
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			b.logger.Warn("skipping unreadable conversation", zap.String("path", path), zap.Error(err))
			continue
		}
		var conv model.Conversation
		if err := json.Unmarshal(data, &conv); err != nil || conv.ID == "" {
			b.logger.Warn("skipping corrupted conversation", zap.String("path", path), zap.Error(err))
			continue
		}
		convs = append(convs, &conv)
	}
	return convs, nil
}

func (b *FileBackend) userDir(userID string) string {
	return filepath.Join(b.BaseDir, userKey(userID))
}

func (b *FileBackend) path(userID, convID string) string {
	return filepath.Join(b.userDir(userID), convID+".json")
}
