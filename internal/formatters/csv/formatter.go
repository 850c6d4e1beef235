// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package csv

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/smo-cookie/detect-and-match2/internal/core"
	"github.com/smo-cookie/detect-and-match2/internal/formatters"
	"github.com/smo-cookie/detect-and-match2/internal/formatters/shared"
)

// Formatter implements CSV output formatting
type Formatter struct{}

// NewFormatter creates a new CSV formatter
func NewFormatter() *Formatter {
	return &Formatter{}
}

func (f *Formatter) Name() string {
	return "csv"
}

func (f *Formatter) Description() string {
	return "Comma-separated values for spreadsheet import"
}

func (f *Formatter) FileExtension() string {
	return ".csv"
}

func (f *Formatter) Format(results []core.BatchResult, options formatters.FormatterOptions) (string, error) {
	response := shared.ConvertResults(results, options)

	headers := []string{"Input", "Status", "Output", "Kind", "Categories", "Literals", "Replacements", "Stored", "Error"}
	if options.Verbose {
		headers = append(headers, "Modified Parts")
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(headers); err != nil {
		return "", fmt.Errorf("error formatting CSV: %w", err)
	}

	for _, doc := range response.Documents {
		row := []string{
			doc.Input,
			doc.Status,
			doc.Output,
			doc.Kind,
			categoryCounts(doc.Categories),
			strconv.Itoa(doc.Literals),
			strconv.Itoa(doc.Replacements),
			strconv.FormatBool(doc.Stored),
			doc.Error,
		}
		if options.Verbose {
			row = append(row, strings.Join(doc.ModifiedParts, ";"))
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("error formatting CSV: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("error formatting CSV: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// categoryCounts renders "CATEGORY=n" pairs sorted by category
func categoryCounts(categories map[string]int) string {
	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, len(names))
	for i, name := range names {
		pairs[i] = fmt.Sprintf("%s=%d", name, categories[name])
	}
	return strings.Join(pairs, ";")
}

// Register the formatter during package initialization
func init() {
	formatters.Register(NewFormatter())
}
