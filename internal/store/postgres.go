// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/smo-cookie/detect-and-match2/internal/config"
	"github.com/smo-cookie/detect-and-match2/internal/logger"
)

const createDetectionsTable = `
CREATE TABLE IF NOT EXISTS docmask_detections (
	document_id     UUID PRIMARY KEY,
	processed_at    TIMESTAMPTZ NOT NULL,
	version         TEXT NOT NULL,
	status          TEXT NOT NULL,
	file_name       TEXT NOT NULL,
	file_path       TEXT NOT NULL,
	sha256          TEXT NOT NULL,
	file_metadata   JSONB NOT NULL,
	detected_info   JSONB NOT NULL,
	additional_info JSONB NOT NULL
)`

const insertDetection = `
INSERT INTO docmask_detections
	(document_id, processed_at, version, status, file_name, file_path, sha256, file_metadata, detected_info, additional_info)
VALUES
	(:document_id, :processed_at, :version, :status, :file_name, :file_path, :sha256, :file_metadata, :detected_info, :additional_info)`

// detectionRow is the table layout of a Record
type detectionRow struct {
	DocumentID     string    `db:"document_id"`
	ProcessedAt    time.Time `db:"processed_at"`
	Version        string    `db:"version"`
	Status         string    `db:"status"`
	FileName       string    `db:"file_name"`
	FilePath       string    `db:"file_path"`
	SHA256         string    `db:"sha256"`
	FileMetadata   string    `db:"file_metadata"`
	DetectedInfo   string    `db:"detected_info"`
	AdditionalInfo string    `db:"additional_info"`
}

func newDetectionRow(record *Record) (*detectionRow, error) {
	fileMetadata, err := json.Marshal(record.File)
	if err != nil {
		return nil, err
	}
	detected, err := json.Marshal(record.Detected)
	if err != nil {
		return nil, err
	}
	additional, err := json.Marshal(record.Additional)
	if err != nil {
		return nil, err
	}

	return &detectionRow{
		DocumentID:     record.DocumentID,
		ProcessedAt:    record.ProcessedAt,
		Version:        record.Version,
		Status:         record.Status,
		FileName:       record.File.Name,
		FilePath:       record.File.Path,
		SHA256:         record.File.SHA256,
		FileMetadata:   string(fileMetadata),
		DetectedInfo:   string(detected),
		AdditionalInfo: string(additional),
	}, nil
}

// PostgresStore writes records to a JSONB table
type PostgresStore struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// NewPostgresStore connects to dsn and ensures the table exists
func NewPostgresStore(ctx context.Context, dsn string, log *logger.Logger) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := db.ExecContext(ctx, createDetectionsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create detections table: %w", err)
	}

	log.Info("detection store initialized",
		zap.String("backend", config.StorePostgres),
		zap.String("database_url", maskURL(dsn)))

	return &PostgresStore{db: db, logger: log}, nil
}

// Name implements Store
func (s *PostgresStore) Name() string { return config.StorePostgres }

// Save implements Store
func (s *PostgresStore) Save(ctx context.Context, record *Record) error {
	if err := record.Validate(); err != nil {
		return err
	}
	row, err := newDetectionRow(record)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	if _, err := s.db.NamedExecContext(ctx, insertDetection, row); err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}

	s.logger.Debug("detection record inserted",
		zap.String("document_id", record.DocumentID),
		zap.Int("findings", record.TotalFindings()))
	return nil
}

// Close implements Store
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
