// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package redactors

import (
	"time"

	"github.com/smo-cookie/detect-and-match2/internal/detector"
	"github.com/smo-cookie/detect-and-match2/internal/ooxml"
)

// Redactor interface defines the contract for package rewriters
type Redactor interface {
	// GetName returns the name of the redactor
	GetName() string

	// GetSupportedTypes returns the file types this redactor can handle
	GetSupportedTypes() []string

	// Rewrite writes a copy of pkg to outputPath with every occurrence of the
	// mask set's literals in text-bearing parts replaced by placeholder
	Rewrite(pkg *ooxml.Package, masks detector.MaskSet, placeholder, outputPath string) (*RewriteResult, error)

	// GetComponentName returns the component name for observability
	GetComponentName() string
}

// RewriteResult contains the results of a rewrite
type RewriteResult struct {
	// OutputPath is the path to the masked document
	OutputPath string

	// ModifiedParts lists parts whose content changed, in archive order
	ModifiedParts []string

	// Replacements is the number of literal occurrences replaced
	Replacements int

	// PartReplacements counts replacements per modified part
	PartReplacements map[string]int

	// CopiedParts is the number of parts copied without change
	CopiedParts int

	// ProcessingTime is the time taken to rewrite the package
	ProcessingTime time.Duration
}
