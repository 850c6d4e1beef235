// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package pattern

import (
	"fmt"
	"regexp"
	"strings"
)

// Built-in categories
const (
	CategoryResidentRegistration = "RESIDENT_REGISTRATION_NUMBER"
	CategoryPhone                = "PHONE"
	CategoryBirthDate            = "BIRTH_DATE"
	CategoryAccountNumber        = "ACCOUNT_NUMBER"
	CategoryPassport             = "PASSPORT"
	CategoryEmail                = "EMAIL"
	CategoryCardNumber           = "CARD_NUMBER"
)

// Definition is the uncompiled form of a pattern, as read from configuration
type Definition struct {
	Category string
	Label    string
	Expr     string
}

// Pattern is a compiled detection rule. Category is unique within a Catalog.
type Pattern struct {
	Category string
	Label    string
	Regex    *regexp.Regexp
}

// Catalog is an ordered, immutable set of patterns
type Catalog struct {
	patterns []Pattern
}

// DefaultDefinitions returns the built-in Korean PII rules.
// Go's \d and \b are ASCII only, so matching does not depend on locale.
func DefaultDefinitions() []Definition {
	return []Definition{
		{CategoryResidentRegistration, "주민등록번호", `\b\d{6}-\d{7}\b`},
		{CategoryPhone, "연락처", `\b010-\d{4}-\d{4}\b`},
		{CategoryBirthDate, "생년월일", `\b\d{4}[-/]\d{2}[-/]\d{2}\b`},
		{CategoryAccountNumber, "계좌번호", `\b\d{2,4}-\d{2,4}-\d{2,4}\b`},
		{CategoryPassport, "여권번호", `\b[A-Z]\d{8}\b`},
		{CategoryEmail, "이메일", `\b[A-Za-z0-9._%+-]+@(?:[A-Za-z0-9-]+\.)+[A-Za-z]{2,}\b`},
		{CategoryCardNumber, "카드번호", `\b\d{4}-\d{4}-\d{4}-\d{4}\b`},
	}
}

// NewCatalog compiles definitions. An invalid expression or a repeated
// category is a configuration error.
func NewCatalog(defs []Definition) (*Catalog, error) {
	seen := make(map[string]bool, len(defs))
	patterns := make([]Pattern, 0, len(defs))

	for _, def := range defs {
		category := strings.TrimSpace(def.Category)
		if category == "" {
			return nil, fmt.Errorf("pattern with empty category")
		}
		if seen[category] {
			return nil, fmt.Errorf("duplicate pattern category %q", category)
		}
		seen[category] = true

		re, err := regexp.Compile(def.Expr)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: invalid regex: %w", category, err)
		}

		label := def.Label
		if label == "" {
			label = category
		}
		patterns = append(patterns, Pattern{Category: category, Label: label, Regex: re})
	}

	return &Catalog{patterns: patterns}, nil
}

// DefaultCatalog returns the compiled built-in catalog
func DefaultCatalog() *Catalog {
	catalog, err := NewCatalog(DefaultDefinitions())
	if err != nil {
		panic(fmt.Sprintf("built-in pattern catalog: %v", err))
	}
	return catalog
}

// BuildCatalog starts from the built-in rules, drops disabled categories and
// applies overrides. An override with a built-in category replaces that rule
// in place; other overrides are appended in the order given.
func BuildCatalog(disabled []string, overrides []Definition) (*Catalog, error) {
	defs := DefaultDefinitions()

	known := make(map[string]bool, len(defs))
	for _, def := range defs {
		known[def.Category] = true
	}

	overridden := make(map[string]bool, len(overrides))
	for _, o := range overrides {
		category := strings.TrimSpace(o.Category)
		if overridden[category] {
			return nil, fmt.Errorf("duplicate pattern category %q", category)
		}
		overridden[category] = true
		o.Category = category

		replaced := false
		for i := range defs {
			if defs[i].Category == category {
				defs[i] = o
				replaced = true
				break
			}
		}
		if !replaced {
			defs = append(defs, o)
			known[category] = true
		}
	}

	off := make(map[string]bool, len(disabled))
	for _, category := range disabled {
		if !known[category] {
			return nil, fmt.Errorf("unknown pattern category %q in disabled list", category)
		}
		off[category] = true
	}

	kept := defs[:0]
	for _, def := range defs {
		if !off[def.Category] {
			kept = append(kept, def)
		}
	}

	return NewCatalog(kept)
}

// Patterns returns the patterns in catalog order
func (c *Catalog) Patterns() []Pattern {
	return append([]Pattern(nil), c.patterns...)
}

// Categories returns the category names in catalog order
func (c *Catalog) Categories() []string {
	categories := make([]string, len(c.patterns))
	for i, p := range c.patterns {
		categories[i] = p.Category
	}
	return categories
}

// Label returns the display label of a category, or the category itself
func (c *Catalog) Label(category string) string {
	for _, p := range c.patterns {
		if p.Category == category {
			return p.Label
		}
	}
	return category
}

// Len returns the number of patterns
func (c *Catalog) Len() int {
	return len(c.patterns)
}
