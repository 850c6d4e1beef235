// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/smo-cookie/detect-and-match2/internal/detector"
)

// Record statuses
const (
	StatusMasked = "masked"
	StatusDryRun = "dry_run"
	StatusFailed = "failed"
)

// Record is the detection report of one masking pass. It is written once the
// rewrite has finished; a failed rewrite is recorded with StatusFailed and no
// output path so the findings still leave a trace.
type Record struct {
	// DocumentID is a unique identifier for this pass
	DocumentID string `json:"document_id"`

	// ProcessedAt is when detection finished
	ProcessedAt time.Time `json:"processed_at"`

	// Version is the docmask version that produced the record
	Version string `json:"version"`

	// Status is the outcome of the pass
	Status string `json:"status"`

	// File describes the input document
	File FileMetadata `json:"file_metadata"`

	// Detected holds the merged findings by category
	Detected detector.Result `json:"detected_info"`

	// Additional holds the caller's extra terms and what the semantic detector reported for them
	Additional AdditionalInfo `json:"additional_info"`

	// Sources lists the detectors that contributed
	Sources []string `json:"sources"`
}

// FileMetadata describes the input document
type FileMetadata struct {
	Name       string `json:"file_name"`
	Path       string `json:"file_path"`
	Kind       string `json:"kind"`
	Size       int64  `json:"size"`
	SHA256     string `json:"sha256"`
	OutputPath string `json:"output_path,omitempty"`
}

// AdditionalInfo records the caller supplied extra terms
type AdditionalInfo struct {
	ExtraTerms []string        `json:"extra_terms"`
	Echoed     detector.Result `json:"detected,omitempty"`
}

// NewRecord creates a record for the document at path
func NewRecord(path, kind, version string) *Record {
	return &Record{
		DocumentID:  uuid.NewString(),
		ProcessedAt: time.Now().UTC(),
		Version:     version,
		Status:      StatusMasked,
		File: FileMetadata{
			Name: filepath.Base(path),
			Path: path,
			Kind: kind,
		},
		Detected: detector.Result{},
	}
}

// SetFileInfo fills size and content hash from the file at File.Path
func (r *Record) SetFileInfo() error {
	f, err := os.Open(r.File.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	hash := sha256.New()
	size, err := io.Copy(hash, f)
	if err != nil {
		return fmt.Errorf("failed to hash %s: %w", r.File.Path, err)
	}
	r.File.Size = size
	r.File.SHA256 = hex.EncodeToString(hash.Sum(nil))
	return nil
}

// TotalFindings returns the number of distinct detected literals
func (r *Record) TotalFindings() int {
	return r.Detected.Count()
}

// ToJSON serializes the record
func (r *Record) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON parses a record
func FromJSON(data []byte) (*Record, error) {
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &record, nil
}

// Validate validates the record for completeness
func (r *Record) Validate() error {
	if r.DocumentID == "" {
		return fmt.Errorf("document_id cannot be empty")
	}
	if _, err := uuid.Parse(r.DocumentID); err != nil {
		return fmt.Errorf("document_id must be a UUID: %w", err)
	}
	if r.File.Path == "" {
		return fmt.Errorf("file_metadata.file_path cannot be empty")
	}
	if r.ProcessedAt.IsZero() {
		return fmt.Errorf("processed_at cannot be zero")
	}
	switch r.Status {
	case StatusMasked, StatusDryRun, StatusFailed:
	default:
		return fmt.Errorf("status %q is not one of %s, %s, %s", r.Status, StatusMasked, StatusDryRun, StatusFailed)
	}
	if r.Status != StatusMasked && r.File.OutputPath != "" {
		return fmt.Errorf("file_metadata.output_path is only set for %s records", StatusMasked)
	}
	for category, literals := range r.Detected {
		if category == "" {
			return fmt.Errorf("detected_info has an empty category")
		}
		for i, literal := range literals {
			if literal == "" {
				return fmt.Errorf("detected_info[%s][%d] cannot be empty", category, i)
			}
		}
	}
	return nil
}

// GenerateDocumentHash generates a hash for document content
func GenerateDocumentHash(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

// pathKey is a short stable key derived from a document path
func pathKey(path string) string {
	hash := sha256.Sum256([]byte(path))
	return hex.EncodeToString(hash[:8])
}
