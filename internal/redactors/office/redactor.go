// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package office

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/smo-cookie/detect-and-match2/internal/detector"
	"github.com/smo-cookie/detect-and-match2/internal/observability"
	"github.com/smo-cookie/detect-and-match2/internal/ooxml"
	"github.com/smo-cookie/detect-and-match2/internal/redactors"
)

var _ redactors.Redactor = (*OfficeRedactor)(nil)

// OfficeRedactor rewrites text nodes of Word and Excel packages in place and
// repackages the archive with every other part copied raw
type OfficeRedactor struct {
	// observer handles observability and metrics
	observer *observability.StandardObserver

	// outputManager handles file system operations
	outputManager *redactors.OutputStructureManager
}

// NewOfficeRedactor creates a new OfficeRedactor
func NewOfficeRedactor(outputManager *redactors.OutputStructureManager, observer *observability.StandardObserver) *OfficeRedactor {
	if observer == nil {
		observer = observability.NewStandardObserver(observability.ObservabilityMetrics, nil)
	}
	if outputManager == nil {
		outputManager, _ = redactors.NewOutputStructureManager("", redactors.DefaultMarker, observer)
	}

	return &OfficeRedactor{
		observer:      observer,
		outputManager: outputManager,
	}
}

// GetName returns the name of the redactor
func (or *OfficeRedactor) GetName() string {
	return "office_redactor"
}

// GetSupportedTypes returns the file types this redactor can handle
func (or *OfficeRedactor) GetSupportedTypes() []string {
	return []string{"docx", ".docx", "xlsx", ".xlsx"}
}

// Rewrite writes a masked copy of pkg to outputPath. Parts without a
// replacement are copied with their original compressed bytes and headers;
// changed parts keep their name, method, times and extra fields. Archive
// order and comment are preserved. Nothing is left at outputPath on failure.
func (or *OfficeRedactor) Rewrite(pkg *ooxml.Package, masks detector.MaskSet, placeholder, outputPath string) (*redactors.RewriteResult, error) {
	if pkg == nil {
		return nil, fmt.Errorf("package cannot be nil")
	}
	if outputPath == "" {
		return nil, fmt.Errorf("output path cannot be empty")
	}

	finishTiming := or.observer.StartTiming("office_redactor", "rewrite", pkg.Path)
	tracer := or.observer.Tracer()
	var finishStep func(bool, string)
	if tracer != nil {
		finishStep = tracer.StartStep("office_redactor", "rewrite", pkg.Path)
	}

	result, err := or.rewrite(pkg, masks, placeholder, outputPath)

	metadata := map[string]interface{}{
		"output_path": outputPath,
		"literals":    masks.Len(),
	}
	if result != nil {
		metadata["replacements"] = result.Replacements
		metadata["modified_parts"] = len(result.ModifiedParts)
	}
	if err != nil {
		metadata["error"] = err.Error()
	}
	finishTiming(err == nil, metadata)
	if finishStep != nil {
		if err != nil {
			finishStep(false, err.Error())
		} else {
			for _, name := range result.ModifiedParts {
				tracer.LogDetail("office_redactor", fmt.Sprintf("%s: %d replacement(s)", name, result.PartReplacements[name]))
			}
			tracer.LogMetric("office_redactor", "replacements", result.Replacements)
			tracer.LogMetric("office_redactor", "modified_parts", len(result.ModifiedParts))
			finishStep(true, fmt.Sprintf("%d replacement(s) in %d part(s)", result.Replacements, len(result.ModifiedParts)))
		}
	}

	return result, err
}

func (or *OfficeRedactor) rewrite(pkg *ooxml.Package, masks detector.MaskSet, placeholder, outputPath string) (*redactors.RewriteResult, error) {
	startTime := time.Now()

	textParts := pkg.TextParts()
	if len(textParts) == 0 {
		return nil, ooxml.ErrNoTextParts
	}
	if !pkg.HasPrimary() {
		or.observer.Logger().Warn("primary part missing, masking secondary parts only",
			zap.String("file", pkg.Path),
			zap.String("part", ooxml.PrimaryPart(pkg.Kind)),
		)
	}

	result := &redactors.RewriteResult{
		OutputPath:       outputPath,
		PartReplacements: make(map[string]int),
	}

	modified := make(map[*ooxml.Part][]byte)
	matcher := newLiteralMatcher(masks.Ordered(), placeholder)

	if !matcher.empty() {
		for _, part := range textParts {
			data, err := part.Read()
			if err != nil {
				return nil, err
			}
			paragraphs, err := ooxml.ScanParagraphs(pkg.Kind, part.Name(), data)
			if err != nil {
				return nil, err
			}

			masked, count := maskPart(data, paragraphs, matcher, placeholder)
			if count == 0 || bytes.Equal(masked, data) {
				continue
			}
			modified[part] = masked
			result.PartReplacements[part.Name()] += count
			result.Replacements += count
		}
	}

	for _, part := range pkg.Parts {
		if _, ok := modified[part]; ok {
			result.ModifiedParts = append(result.ModifiedParts, part.Name())
		} else {
			result.CopiedParts++
		}
	}

	err := or.outputManager.WriteAtomic(outputPath, pkg.Path, func(w io.Writer) error {
		return writePackage(w, pkg, modified)
	})
	if err != nil {
		return nil, err
	}

	result.ProcessingTime = time.Since(startTime)
	return result, nil
}

// writePackage writes every part of pkg in archive order, substituting the
// content of modified parts
func writePackage(w io.Writer, pkg *ooxml.Package, modified map[*ooxml.Part][]byte) error {
	zw := zip.NewWriter(w)

	if pkg.Comment != "" {
		if err := zw.SetComment(pkg.Comment); err != nil {
			return fmt.Errorf("failed to set archive comment: %w", err)
		}
	}

	for _, part := range pkg.Parts {
		data, ok := modified[part]
		if !ok {
			if err := zw.Copy(part.File()); err != nil {
				return fmt.Errorf("failed to copy %s: %w", part.Name(), err)
			}
			continue
		}

		header := part.Header
		// Keep the stored MS-DOS time and extra fields as they are. The writer
		// emits its own zip64 record when the new sizes need one.
		header.Modified = time.Time{}
		header.Extra = stripZip64Extra(header.Extra)
		fw, err := zw.CreateHeader(&header)
		if err != nil {
			return fmt.Errorf("failed to create ZIP entry for %s: %w", part.Name(), err)
		}
		if _, err := fw.Write(data); err != nil {
			return fmt.Errorf("failed to write content for %s: %w", part.Name(), err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return nil
}

// zip64ExtraID is the header ID of the zip64 extended information record
const zip64ExtraID = 0x0001

// stripZip64Extra returns extra without zip64 records. The sizes a zip64
// record carries describe the original content, not the rewritten one.
// Malformed trailing bytes are dropped.
func stripZip64Extra(extra []byte) []byte {
	if len(extra) == 0 {
		return extra
	}
	out := make([]byte, 0, len(extra))
	for len(extra) >= 4 {
		id := binary.LittleEndian.Uint16(extra[0:2])
		size := int(binary.LittleEndian.Uint16(extra[2:4]))
		if 4+size > len(extra) {
			break
		}
		if id != zip64ExtraID {
			out = append(out, extra[:4+size]...)
		}
		extra = extra[4+size:]
	}
	return out
}

// GetComponentName returns the component name for observability
func (or *OfficeRedactor) GetComponentName() string {
	return "office_redactor"
}
