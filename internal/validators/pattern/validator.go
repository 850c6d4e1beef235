// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package pattern

import (
	"context"

	"github.com/smo-cookie/detect-and-match2/internal/detector"
	"github.com/smo-cookie/detect-and-match2/internal/observability"
)

// Name is the detector name reported in logs, metrics and stored reports
const Name = "pattern"

// Validator runs every catalog pattern over plain text
type Validator struct {
	catalog *Catalog

	// Observability
	observer *observability.StandardObserver
}

// NewValidator creates a pattern validator over catalog, or the built-in
// catalog when nil
func NewValidator(catalog *Catalog) *Validator {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Validator{catalog: catalog}
}

// SetObserver sets the observability component
func (v *Validator) SetObserver(observer *observability.StandardObserver) {
	v.observer = observer
}

// Catalog returns the catalog the validator runs
func (v *Validator) Catalog() *Catalog {
	return v.catalog
}

// Name implements detector.Detector
func (v *Validator) Name() string {
	return Name
}

// Find returns every non-overlapping match per category. Categories without
// matches are absent.
func (v *Validator) Find(text string) detector.Result {
	var hits []detector.Hit
	for _, p := range v.catalog.patterns {
		for _, match := range p.Regex.FindAllString(text, -1) {
			hits = append(hits, detector.Hit{Category: p.Category, Literal: match})
		}
	}
	return detector.NewResult(hits)
}

// Detect implements detector.Detector. Pattern detection never fails; extra
// terms are not interpreted here.
func (v *Validator) Detect(ctx context.Context, text string, extraTerms []string) (*detector.Detection, error) {
	var finishTiming func(bool, map[string]interface{})
	var finishStep func(bool, string)
	if v.observer != nil {
		finishTiming = v.observer.StartTiming("pattern_validator", "detect", "")
		if v.observer.DebugObserver != nil {
			finishStep = v.observer.DebugObserver.StartStep("pattern_validator", "detect", "")
		}
	}

	if err := ctx.Err(); err != nil {
		if finishTiming != nil {
			finishTiming(false, map[string]interface{}{"error": err.Error()})
		}
		if finishStep != nil {
			finishStep(false, err.Error())
		}
		return nil, err
	}

	result := v.Find(text)

	if finishTiming != nil {
		finishTiming(true, map[string]interface{}{
			"match_count":    result.Count(),
			"category_count": len(result),
			"pattern_count":  v.catalog.Len(),
		})
	}
	if finishStep != nil {
		finishStep(true, "")
	}

	return &detector.Detection{Source: Name, Findings: result}, nil
}
