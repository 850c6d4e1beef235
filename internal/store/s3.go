// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/smo-cookie/detect-and-match2/internal/config"
	"github.com/smo-cookie/detect-and-match2/internal/logger"
)

// putObjectAPI is the part of the S3 client the store needs
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store writes each record as a JSON object
type S3Store struct {
	client putObjectAPI
	bucket string
	prefix string
	logger *logger.Logger
}

// NewS3Store loads the default AWS configuration and targets bucket
func NewS3Store(ctx context.Context, bucket, prefix, region string, log *logger.Logger) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	log.Info("detection store initialized",
		zap.String("backend", config.StoreS3),
		zap.String("bucket", bucket),
		zap.String("prefix", prefix))

	return newS3Store(s3.NewFromConfig(cfg), bucket, prefix, log), nil
}

func newS3Store(client putObjectAPI, bucket, prefix string, log *logger.Logger) *S3Store {
	if log == nil {
		log = logger.Nop()
	}
	return &S3Store{client: client, bucket: bucket, prefix: prefix, logger: log}
}

// objectKey is <prefix><yyyy>/<mm>/<dd>/<document id>.json
func (s *S3Store) objectKey(record *Record) string {
	day := record.ProcessedAt.UTC().Format("2006/01/02")
	key := path.Join(day, record.DocumentID+".json")
	if s.prefix == "" {
		return key
	}
	return strings.TrimSuffix(s.prefix, "/") + "/" + key
}

// Name implements Store
func (s *S3Store) Name() string { return config.StoreS3 }

// Save implements Store
func (s *S3Store) Save(ctx context.Context, record *Record) error {
	if err := record.Validate(); err != nil {
		return err
	}
	data, err := record.ToJSON()
	if err != nil {
		return err
	}

	key := s.objectKey(record)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"sha256": record.File.SHA256,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload record: %w", err)
	}

	s.logger.Debug("detection record uploaded", zap.String("key", key))
	return nil
}

// Close implements Store
func (s *S3Store) Close() error { return nil }
