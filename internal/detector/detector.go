// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package detector

import (
	"context"
	"sort"
	"strings"
)

// Detector is implemented by every detection source the masking engine runs
type Detector interface {
	// Name identifies the detector in logs, metrics and stored reports
	Name() string

	// Detect inspects plain document text. extraTerms are caller supplied
	// literals the detector may echo back under Detection.ExtraTerms.
	Detect(ctx context.Context, text string, extraTerms []string) (*Detection, error)
}

// Hit is one detected literal and the category that produced it
type Hit struct {
	Category string
	Literal  string
}

// Detection is the output of a single detector run
type Detection struct {
	Source     string
	Findings   Result
	ExtraTerms Result
}

// Results returns the non-empty results carried by the detection
func (d *Detection) Results() []Result {
	if d == nil {
		return nil
	}
	var out []Result
	for _, r := range []Result{d.Findings, d.ExtraTerms} {
		if len(r) > 0 {
			out = append(out, r)
		}
	}
	return out
}

// Result maps a category to its sorted, deduplicated literals.
// Empty literals are never stored and categories without literals are absent.
type Result map[string][]string

// NewResult groups hits into a Result
func NewResult(hits []Hit) Result {
	r := make(Result)
	for _, h := range hits {
		r.add(h.Category, h.Literal)
	}
	r.normalize()
	return r
}

// Normalize copies r into canonical form, dropping empty literals and categories
func Normalize(r Result) Result {
	out := make(Result, len(r))
	for category, literals := range r {
		for _, literal := range literals {
			out.add(category, literal)
		}
	}
	out.normalize()
	return out
}

// Merge unions results per category. The outcome does not depend on argument order.
func Merge(results ...Result) Result {
	out := make(Result)
	for _, r := range results {
		for category, literals := range r {
			for _, literal := range literals {
				out.add(category, literal)
			}
		}
	}
	out.normalize()
	return out
}

// Categories returns the category names in sorted order
func (r Result) Categories() []string {
	categories := make([]string, 0, len(r))
	for category := range r {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	return categories
}

// Count returns the number of literals across all categories
func (r Result) Count() int {
	n := 0
	for _, literals := range r {
		n += len(literals)
	}
	return n
}

func (r Result) add(category, literal string) {
	if literal == "" {
		return
	}
	r[category] = append(r[category], literal)
}

func (r Result) normalize() {
	for category, literals := range r {
		if len(literals) == 0 {
			delete(r, category)
			continue
		}
		r[category] = dedupe(literals)
	}
}

func dedupe(literals []string) []string {
	sorted := append([]string(nil), literals...)
	sort.Strings(sorted)
	out := sorted[:0]
	for i, literal := range sorted {
		if i > 0 && literal == sorted[i-1] {
			continue
		}
		out = append(out, literal)
	}
	return out
}

// MaskSet is the flattened set of literals to replace in a document
type MaskSet struct {
	literals []string
}

// NewMaskSet flattens results and caller extra terms into one set.
// The empty string and the placeholder itself are never members.
func NewMaskSet(placeholder string, results []Result, extraTerms []string) MaskSet {
	var all []string
	for _, r := range results {
		for _, literals := range r {
			all = append(all, literals...)
		}
	}
	for _, term := range extraTerms {
		all = append(all, strings.TrimSpace(term))
	}

	kept := all[:0]
	for _, literal := range all {
		if literal == "" || literal == placeholder {
			continue
		}
		kept = append(kept, literal)
	}
	if len(kept) == 0 {
		return MaskSet{}
	}
	return MaskSet{literals: dedupe(kept)}
}

// Literals returns the members in lexicographic order
func (m MaskSet) Literals() []string {
	return append([]string(nil), m.literals...)
}

// Ordered returns the members longest first, ties broken lexicographically
func (m MaskSet) Ordered() []string {
	ordered := m.Literals()
	sort.SliceStable(ordered, func(i, j int) bool {
		li, lj := len([]rune(ordered[i])), len([]rune(ordered[j]))
		if li != lj {
			return li > lj
		}
		return ordered[i] < ordered[j]
	})
	return ordered
}

// Len returns the number of literals
func (m MaskSet) Len() int {
	return len(m.literals)
}

// IsEmpty reports whether there is nothing to mask
func (m MaskSet) IsEmpty() bool {
	return len(m.literals) == 0
}

// Contains reports whether literal is a member
func (m MaskSet) Contains(literal string) bool {
	i := sort.SearchStrings(m.literals, literal)
	return i < len(m.literals) && m.literals[i] == literal
}
