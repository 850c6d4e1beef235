// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package shared

import (
	"errors"

	"github.com/smo-cookie/detect-and-match2/internal/core"
	"github.com/smo-cookie/detect-and-match2/internal/formatters"
	"github.com/smo-cookie/detect-and-match2/internal/redactors"
)

// Document statuses
const (
	StatusMasked = "masked"
	StatusDryRun = "dry_run"
	StatusFailed = "failed"
)

// Response is the top-level structure for JSON/YAML output
type Response struct {
	Documents []Document `json:"documents" yaml:"documents"`
	Summary   Summary    `json:"summary" yaml:"summary"`
}

// Summary counts documents per status
type Summary struct {
	Total  int `json:"total" yaml:"total"`
	Masked int `json:"masked" yaml:"masked"`
	DryRun int `json:"dry_run" yaml:"dry_run"`
	Failed int `json:"failed" yaml:"failed"`
}

// Document is one input document in JSON/YAML form
type Document struct {
	Input         string              `json:"input" yaml:"input"`
	Output        string              `json:"output,omitempty" yaml:"output,omitempty"`
	Kind          string              `json:"kind,omitempty" yaml:"kind,omitempty"`
	Status        string              `json:"status" yaml:"status"`
	Categories    map[string]int      `json:"categories,omitempty" yaml:"categories,omitempty"`
	Detected      map[string][]string `json:"detected,omitempty" yaml:"detected,omitempty"`
	Literals      int                 `json:"literals" yaml:"literals"`
	Replacements  int                 `json:"replacements" yaml:"replacements"`
	ModifiedParts []string            `json:"modified_parts,omitempty" yaml:"modified_parts,omitempty"`
	Sources       []string            `json:"sources,omitempty" yaml:"sources,omitempty"`
	Stored        bool                `json:"stored" yaml:"stored"`
	DurationMs    int64               `json:"duration_ms" yaml:"duration_ms"`
	Error         string              `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorType     string              `json:"error_type,omitempty" yaml:"error_type,omitempty"`
	ExitCode      int                 `json:"exit_code" yaml:"exit_code"`
}

// ConvertResults converts batch results into the shared output structure.
// Literals are only included with ShowMatch since they are the sensitive values.
func ConvertResults(results []core.BatchResult, options formatters.FormatterOptions) Response {
	response := Response{Documents: make([]Document, 0, len(results))}

	for _, r := range results {
		doc := Document{Input: r.Request.Path}

		if r.Err != nil {
			doc.Status = StatusFailed
			doc.Error = r.Err.Error()
			doc.ExitCode = redactors.ExitCode(r.Err)
			var re *redactors.RedactionError
			if errors.As(r.Err, &re) {
				doc.ErrorType = re.Type.String()
			}
			response.Summary.Failed++
		} else if r.Result != nil {
			res := r.Result
			doc.Status = StatusMasked
			if res.DryRun {
				doc.Status = StatusDryRun
				response.Summary.DryRun++
			} else {
				response.Summary.Masked++
			}
			doc.Output = res.OutputPath
			doc.Kind = res.Kind.String()
			doc.Literals = len(res.Literals)
			doc.Replacements = res.Replacements
			doc.Stored = res.Stored
			doc.DurationMs = res.Duration.Milliseconds()
			if len(res.Detected) > 0 {
				doc.Categories = make(map[string]int, len(res.Detected))
				for category, literals := range res.Detected {
					doc.Categories[category] = len(literals)
				}
			}
			if options.ShowMatch && len(res.Detected) > 0 {
				doc.Detected = res.Detected
			}
			if options.Verbose {
				doc.ModifiedParts = res.ModifiedParts
				doc.Sources = res.Sources
			}
		}

		response.Documents = append(response.Documents, doc)
	}

	response.Summary.Total = len(results)
	return response
}
