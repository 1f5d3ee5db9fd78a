// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jeranaias/bridgechat/internal/logging"
	"github.com/jeranaias/bridgechat/internal/model"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var rootBucket = []byte("conversations")

// BoltBackend keeps conversations in a single bbolt file with a nested
// bucket per user.
type BoltBackend struct {
	db     *bbolt.DB
	logger *zap.Logger
}

// NewBoltBackend opens (or creates) the database at path.
func NewBoltBackend(path string, logger *zap.Logger) (*BoltBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rootBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}
	return &BoltBackend{db: db, logger: logging.OrNop(logger)}, nil
}

// Name implements Backend.
func (b *BoltBackend) Name() string { return "bolt" }

// Close implements Backend.
func (b *BoltBackend) Close() error { return b.db.Close() }

// Save implements Backend.
func (b *BoltBackend) Save(userID string, conv *model.Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.Bucket(rootBucket).CreateBucketIfNotExists([]byte(userKey(userID)))
		if err != nil {
			return err
		}
		return bucket.Put([]byte(conv.ID), data)
	})
}

// Delete implements Backend.
func (b *BoltBackend) Delete(userID, convID string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(rootBucket).Bucket([]byte(userKey(userID)))
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(convID))
	})
}

// Load implements Backend.
func (b *BoltBackend) Load(userID string) ([]*model.Conversation, error) {
	var convs []*model.Conversation
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(rootBucket).Bucket([]byte(userKey(userID)))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var conv model.Conversation
			if err := json.Unmarshal(v, &conv); err != nil || conv.ID == "" {
				b.logger.Warn("skipping corrupted conversation", zap.ByteString("id", k), zap.Error(err))
				return nil
			}
			convs = append(convs, &conv)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read conversations: %w", err)
	}
	return convs, nil
}
