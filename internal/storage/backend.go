// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/jeranaias/bridgechat/internal/config"
	"github.com/jeranaias/bridgechat/internal/model"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

// Backend persists conversations keyed by user id.
type Backend interface {
	// Load returns every readable conversation of the user. Entries that
	// fail to parse are logged and skipped.
	Load(userID string) ([]*model.Conversation, error)
	Save(userID string, conv *model.Conversation) error
	Delete(userID, convID string) error
	Name() string
	Close() error
}

var validID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// checkID rejects ids that could escape the user directory.
func checkID(id string) error {
	if !validID.MatchString(id) {
		return fmt.Errorf("invalid conversation id %q", id)
	}
	return nil
}

// userKey maps a user id to a fixed-length name safe for paths and bucket
// keys.
func userKey(userID string) string {
	sum := blake2b.Sum256([]byte(userID))
	return hex.EncodeToString(sum[:16])
}

// NewBackend builds the backend selected by cfg.Storage.Backend.
func NewBackend(cfg *config.Config, logger *zap.Logger) (Backend, error) {
	switch cfg.Storage.Backend {
	case "", "file":
		return NewFileBackend(cfg.Storage.Dir, logger)
	case "bolt":
		return NewBoltBackend(cfg.Storage.Dir+".db", logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
