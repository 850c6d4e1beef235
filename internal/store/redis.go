// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/smo-cookie/detect-and-match2/internal/config"
	"github.com/smo-cookie/detect-and-match2/internal/logger"
)

// historyLimit bounds the per-document history list
const historyLimit = 100

// RedisStore keeps the latest record per document path and a bounded history
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

// NewRedisStore connects to redisURL. A zero ttl keeps keys forever.
func NewRedisStore(ctx context.Context, redisURL string, ttl time.Duration, log *logger.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("detection store initialized",
		zap.String("backend", config.StoreRedis),
		zap.String("redis_url", maskURL(redisURL)),
		zap.Duration("ttl", ttl))

	return &RedisStore{client: client, ttl: ttl, logger: log}, nil
}

// latestKey holds the most recent record of a document
func latestKey(path string) string {
	return "docmask:latest:" + pathKey(path)
}

// historyKey holds the record history of a document, newest first
func historyKey(path string) string {
	return "docmask:history:" + pathKey(path)
}

// Name implements Store
func (s *RedisStore) Name() string { return config.StoreRedis }

// Save implements Store
func (s *RedisStore) Save(ctx context.Context, record *Record) error {
	if err := record.Validate(); err != nil {
		return err
	}
	data, err := record.ToJSON()
	if err != nil {
		return err
	}

	latest, history := latestKey(record.File.Path), historyKey(record.File.Path)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, latest, data, s.ttl)
		pipe.LPush(ctx, history, data)
		pipe.LTrim(ctx, history, 0, historyLimit-1)
		if s.ttl > 0 {
			pipe.Expire(ctx, history, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store record: %w", err)
	}

	s.logger.Debug("detection record cached", zap.String("key", latest))
	return nil
}

// Close implements Store
func (s *RedisStore) Close() error {
	return s.client.Close()
}
