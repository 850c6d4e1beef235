// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package text

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/smo-cookie/detect-and-match2/internal/core"
	"github.com/smo-cookie/detect-and-match2/internal/formatters"
	"github.com/smo-cookie/detect-and-match2/internal/formatters/shared"
)

// Formatter implements text-based output formatting
type Formatter struct {
	colors map[string]*color.Color
}

// NewFormatter creates a new text formatter
func NewFormatter() *Formatter {
	return &Formatter{
		colors: map[string]*color.Color{
			"green":   color.New(color.FgGreen),
			"yellow":  color.New(color.FgYellow),
			"red":     color.New(color.FgRed),
			"cyan":    color.New(color.FgCyan),
			"magenta": color.New(color.FgMagenta),
			"blue":    color.New(color.FgBlue),
			"white":   color.New(color.FgWhite, color.Bold),
		},
	}
}

func (f *Formatter) Name() string {
	return "text"
}

func (f *Formatter) Description() string {
	return "Human-readable text output with colors"
}

func (f *Formatter) FileExtension() string {
	return ".txt"
}

func (f *Formatter) Format(results []core.BatchResult, options formatters.FormatterOptions) (string, error) {
	// Disable colors if requested
	if options.NoColor {
		color.NoColor = true
	}

	if len(results) == 0 {
		return "No documents processed.", nil
	}

	response := shared.ConvertResults(results, options)

	var builder strings.Builder
	f.appendHeaders(&builder, options)
	for i, doc := range response.Documents {
		f.appendSummaryLine(&builder, doc, options)
		if options.Verbose {
			f.appendDetails(&builder, doc, options)
		}
		if options.ShowMatch && results[i].Result != nil {
			f.appendLiterals(&builder, doc, options)
		}
	}
	f.appendTotals(&builder, response.Summary, options)

	return strings.TrimSuffix(builder.String(), "\n"), nil
}

func (f *Formatter) sprintf(name string, options formatters.FormatterOptions, format string, args ...interface{}) string {
	if options.NoColor {
		return fmt.Sprintf(format, args...)
	}
	return f.colors[name].Sprintf(format, args...)
}

// appendHeaders adds column headers to the string builder
func (f *Formatter) appendHeaders(builder *strings.Builder, options formatters.FormatterOptions) {
	header := fmt.Sprintf("%-9s %-5s %8s %6s  %s", "STATUS", "KIND", "LITERALS", "REPL", "OUTPUT")
	builder.WriteString(f.sprintf("white", options, "%s\n", header))
	builder.WriteString(f.sprintf("white", options, "%s\n", strings.Repeat("-", len(header)+20)))
}

// appendSummaryLine adds a single line summary of one document
func (f *Formatter) appendSummaryLine(builder *strings.Builder, doc shared.Document, options formatters.FormatterOptions) {
	var levelColor string
	switch doc.Status {
	case shared.StatusMasked:
		levelColor = "green"
	case shared.StatusDryRun:
		levelColor = "yellow"
	default:
		levelColor = "red"
	}
	statusStr := f.sprintf(levelColor, options, "[%-7s]", strings.ToUpper(strings.ReplaceAll(doc.Status, "_", " ")))

	if doc.Status == shared.StatusFailed {
		fmt.Fprintf(builder, "%s %-5s %8s %6s  %s\n", statusStr, "-", "-", "-", doc.Input)
		builder.WriteString(f.sprintf("red", options, "          %s (exit %d)\n", doc.Error, doc.ExitCode))
		return
	}

	target := doc.Output
	if target == "" {
		target = doc.Input
	}
	kindStr := f.sprintf("cyan", options, "%-5s", doc.Kind)
	literalStr := f.sprintf("blue", options, "%8d", doc.Literals)
	replStr := f.sprintf("magenta", options, "%6d", doc.Replacements)
	fmt.Fprintf(builder, "%s %s %s %s  %s\n", statusStr, kindStr, literalStr, replStr, target)
}

// appendDetails adds categories, modified parts and sources
func (f *Formatter) appendDetails(builder *strings.Builder, doc shared.Document, options formatters.FormatterOptions) {
	if doc.Status == shared.StatusFailed {
		return
	}
	for _, category := range sortedKeys(doc.Categories) {
		fmt.Fprintf(builder, "          %s %d\n", f.sprintf("cyan", options, "%-30s", category), doc.Categories[category])
	}
	if len(doc.ModifiedParts) > 0 {
		fmt.Fprintf(builder, "          parts:   %s\n", strings.Join(doc.ModifiedParts, ", "))
	}
	if len(doc.Sources) > 0 {
		fmt.Fprintf(builder, "          sources: %s\n", strings.Join(doc.Sources, ", "))
	}
	fmt.Fprintf(builder, "          stored:  %t, %d ms\n", doc.Stored, doc.DurationMs)
}

// appendLiterals prints the detected values per category
func (f *Formatter) appendLiterals(builder *strings.Builder, doc shared.Document, options formatters.FormatterOptions) {
	categories := make([]string, 0, len(doc.Detected))
	for category := range doc.Detected {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	for _, category := range categories {
		fmt.Fprintf(builder, "          %s %s\n",
			f.sprintf("cyan", options, "%s:", category),
			strings.Join(doc.Detected[category], ", "))
	}
}

// appendTotals adds the closing summary line
func (f *Formatter) appendTotals(builder *strings.Builder, summary shared.Summary, options formatters.FormatterOptions) {
	parts := []string{fmt.Sprintf("%d document(s)", summary.Total)}
	if summary.Masked > 0 {
		parts = append(parts, f.sprintf("green", options, "%d masked", summary.Masked))
	}
	if summary.DryRun > 0 {
		parts = append(parts, f.sprintf("yellow", options, "%d dry run", summary.DryRun))
	}
	if summary.Failed > 0 {
		parts = append(parts, f.sprintf("red", options, "%d failed", summary.Failed))
	}
	fmt.Fprintf(builder, "\n%s\n", strings.Join(parts, ", "))
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
