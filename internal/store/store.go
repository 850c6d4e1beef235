// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package store persists detection reports. Every backend is best effort:
// callers bound Save with a timeout and log failures instead of failing the pass.
package store

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/smo-cookie/detect-and-match2/internal/config"
	"github.com/smo-cookie/detect-and-match2/internal/logger"
)

// Store saves detection records
type Store interface {
	Name() string
	Save(ctx context.Context, record *Record) error
	Close() error
}

// New builds the backend selected by cfg
func New(ctx context.Context, cfg config.StoreConfig, log *logger.Logger) (Store, error) {
	if log == nil {
		log = logger.Nop()
	}
	log = log.WithComponent("store")

	switch cfg.Backend {
	case "", config.StoreNone:
		return NopStore{}, nil
	case config.StoreFile:
		return NewFileStore(cfg.FilePath)
	case config.StorePostgres:
		return NewPostgresStore(ctx, cfg.PostgresDSN, log)
	case config.StoreRedis:
		return NewRedisStore(ctx, cfg.RedisURL, cfg.RedisTTL, log)
	case config.StoreS3:
		return NewS3Store(ctx, cfg.S3Bucket, cfg.S3Prefix, cfg.S3Region, log)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// NopStore discards records
type NopStore struct{}

// Name implements Store
func (NopStore) Name() string { return config.StoreNone }

// Save implements Store
func (NopStore) Save(context.Context, *Record) error { return nil }

// Close implements Store
func (NopStore) Close() error { return nil }

// FileStore appends records as JSON lines
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store appending to path
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("file store path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	return &FileStore{path: filepath.Clean(path)}, nil
}

// Name implements Store
func (s *FileStore) Name() string { return config.StoreFile }

// Save implements Store
func (s *FileStore) Save(ctx context.Context, record *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := record.Validate(); err != nil {
		return err
	}
	data, err := record.ToJSON()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open store file: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("failed to append record: %w", err)
	}
	return f.Close()
}

// Close implements Store
func (s *FileStore) Close() error { return nil }

// SaveWithTimeout saves record under the store timeout and logs instead of
// returning failures. It reports whether the record was saved.
func SaveWithTimeout(ctx context.Context, s Store, record *Record, cfg config.StoreConfig, log *logger.Logger) bool {
	if s == nil {
		return false
	}
	if _, ok := s.(NopStore); ok {
		return false
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.Default().Store.Timeout
	}
	saveCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.Save(saveCtx, record); err != nil {
		if log != nil {
			log.Warn("failed to store detection report",
				zap.String("backend", s.Name()),
				zap.String("file", record.File.Path),
				zap.Error(err))
		}
		return false
	}
	return true
}

// maskURL hides credentials in connection strings for logging
func maskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
