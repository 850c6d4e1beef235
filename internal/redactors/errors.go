// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package redactors

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Sentinels matched with errors.Is against any RedactionError of the same type
var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrExtractionFailure = errors.New("extraction failure")
	ErrDetectionFailure  = errors.New("detection failure")
	ErrRewriteFailure    = errors.New("rewrite failure")
	ErrConfiguration     = errors.New("configuration error")
)

// RedactionErrorType defines the type of redaction error
type RedactionErrorType int

const (
	// ErrorUnsupportedFormat indicates an unknown document type or an extension mismatch
	ErrorUnsupportedFormat RedactionErrorType = iota

	// ErrorExtraction indicates the package could not be opened or parsed
	ErrorExtraction

	// ErrorDetection indicates a detector failed after all attempts
	ErrorDetection

	// ErrorRewrite indicates the masked package could not be written
	ErrorRewrite

	// ErrorConfiguration indicates a configuration error
	ErrorConfiguration
)

// String returns the string representation of the error type
func (ret RedactionErrorType) String() string {
	switch ret {
	case ErrorUnsupportedFormat:
		return "unsupported_format"
	case ErrorExtraction:
		return "extraction"
	case ErrorDetection:
		return "detection"
	case ErrorRewrite:
		return "rewrite"
	case ErrorConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// Sentinel returns the sentinel error for the type
func (ret RedactionErrorType) Sentinel() error {
	switch ret {
	case ErrorUnsupportedFormat:
		return ErrUnsupportedFormat
	case ErrorExtraction:
		return ErrExtractionFailure
	case ErrorDetection:
		return ErrDetectionFailure
	case ErrorRewrite:
		return ErrRewriteFailure
	case ErrorConfiguration:
		return ErrConfiguration
	default:
		return nil
	}
}

// ExitCode returns the process exit code for the type
func (ret RedactionErrorType) ExitCode() int {
	switch ret {
	case ErrorUnsupportedFormat:
		return 2
	case ErrorExtraction:
		return 3
	case ErrorDetection:
		return 4
	case ErrorRewrite:
		return 5
	default:
		return 1
	}
}

// RedactionError represents an error that occurred during a masking pass
type RedactionError struct {
	// Type is the type of error
	Type RedactionErrorType

	// Message is the error message
	Message string

	// FilePath is the path to the file being processed when the error occurred
	FilePath string

	// Component is the component that generated the error
	Component string

	// Timestamp is when the error occurred
	Timestamp time.Time

	// Cause is the underlying error that caused this error
	Cause error
}

// Error implements the error interface
func (re *RedactionError) Error() string {
	if re.FilePath != "" {
		return fmt.Sprintf("[%s] %s (file: %s, component: %s): %s",
			re.Type.String(), re.Message, re.FilePath, re.Component, re.getCauseMessage())
	}
	return fmt.Sprintf("[%s] %s (component: %s): %s",
		re.Type.String(), re.Message, re.Component, re.getCauseMessage())
}

// getCauseMessage returns the cause error message if available
func (re *RedactionError) getCauseMessage() string {
	if re.Cause != nil {
		return re.Cause.Error()
	}
	return ""
}

// Unwrap returns the underlying error for error unwrapping
func (re *RedactionError) Unwrap() error {
	return re.Cause
}

// Is matches the sentinel of the error type
func (re *RedactionError) Is(target error) bool {
	return target != nil && target == re.Type.Sentinel()
}

// NewRedactionError creates a new RedactionError
func NewRedactionError(errorType RedactionErrorType, message, filePath, component string, cause error) *RedactionError {
	return &RedactionError{
		Type:      errorType,
		Message:   message,
		FilePath:  filePath,
		Component: component,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// ExitCode maps an error to the process exit code: 0 for nil, the type's
// code for a RedactionError and 1 otherwise
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var re *RedactionError
	if errors.As(err, &re) {
		return re.Type.ExitCode()
	}
	return 1
}

// RedactionErrorCollection gathers per-document failures of a batch. It is safe
// for concurrent use.
type RedactionErrorCollection struct {
	mu     sync.Mutex
	errors []*RedactionError
}

// NewRedactionErrorCollection creates a new error collection
func NewRedactionErrorCollection() *RedactionErrorCollection {
	return &RedactionErrorCollection{}
}

// Add adds an error to the collection. Errors that are not a RedactionError
// are recorded as configuration errors.
func (rec *RedactionErrorCollection) Add(filePath string, err error) {
	if err == nil {
		return
	}
	var re *RedactionError
	if !errors.As(err, &re) {
		re = NewRedactionError(ErrorConfiguration, "masking failed", filePath, "engine", err)
	}
	rec.mu.Lock()
	rec.errors = append(rec.errors, re)
	rec.mu.Unlock()
}

// GetErrors returns all errors in the collection
func (rec *RedactionErrorCollection) GetErrors() []*RedactionError {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]*RedactionError(nil), rec.errors...)
}

// HasErrors returns true if the collection contains any errors
func (rec *RedactionErrorCollection) HasErrors() bool {
	return rec.Count() > 0
}

// GetErrorsByType returns all errors of the specified type
func (rec *RedactionErrorCollection) GetErrorsByType(errorType RedactionErrorType) []*RedactionError {
	var result []*RedactionError
	for _, err := range rec.GetErrors() {
		if err.Type == errorType {
			result = append(result, err)
		}
	}
	return result
}

// Count returns the number of errors in the collection
func (rec *RedactionErrorCollection) Count() int {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return len(rec.errors)
}

// ExitCode returns the exit code of the first recorded error, or 0
func (rec *RedactionErrorCollection) ExitCode() int {
	errs := rec.GetErrors()
	if len(errs) == 0 {
		return 0
	}
	return errs[0].Type.ExitCode()
}
