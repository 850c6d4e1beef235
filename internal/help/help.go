// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package help

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/smo-cookie/detect-and-match2/internal/validators/pattern"
)

// System prints usage and detection category help
type System struct {
	out     io.Writer
	catalog *pattern.Catalog
	noColor bool
	colors  map[string]*color.Color
}

// NewSystem creates a new help system over the active pattern catalog
func NewSystem(out io.Writer, catalog *pattern.Catalog, noColor bool) *System {
	// Disable colors if requested
	if noColor {
		color.NoColor = true
	}
	if catalog == nil {
		catalog = pattern.DefaultCatalog()
	}

	return &System{
		out:     out,
		catalog: catalog,
		noColor: noColor,
		colors: map[string]*color.Color{
			"title":   color.New(color.FgWhite, color.Bold),
			"header":  color.New(color.FgBlue, color.Bold),
			"item":    color.New(color.FgCyan),
			"warning": color.New(color.FgYellow),
			"example": color.New(color.FgMagenta),
		},
	}
}

func (h *System) println(name, text string) {
	if h.noColor {
		fmt.Fprintln(h.out, text)
		return
	}
	h.colors[name].Fprintln(h.out, text)
}

// ShowGeneralHelp displays general help information
func (h *System) ShowGeneralHelp() {
	h.println("title", "docmask - PII masking for Word and Excel documents")
	fmt.Fprintln(h.out, "===================================================")
	fmt.Fprintln(h.out)
	h.println("header", "USAGE:")
	fmt.Fprintln(h.out, "  docmask [options] <file>...")
	fmt.Fprintln(h.out, "  docmask --file <path> --type word --extra '[\"Project Alpha\"]'")
	fmt.Fprintln(h.out)

	h.println("header", "OPTIONS:")
	w := tabwriter.NewWriter(h.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  --file\t<path>\tDocument to mask; further documents may follow as arguments")
	fmt.Fprintln(w, "  --type\t<type>\tDeclared document type: word or excel (default: from extension)")
	fmt.Fprintln(w, "  --extra\t<terms>\tExtra terms to mask, as a JSON list or comma separated")
	fmt.Fprintln(w, "  --config\t<path>\tPath to configuration file (YAML)")
	fmt.Fprintln(w, "  --pattern-only\t\tSkip the semantic detector and mask pattern matches only")
	fmt.Fprintln(w, "  --placeholder\t<text>\tReplacement text for every masked value (default: ****)")
	fmt.Fprintln(w, "  --output-dir\t<path>\tDirectory for masked copies (default: next to the input)")
	fmt.Fprintln(w, "  --dry-run\t\tRun detection and report without writing masked copies")
	fmt.Fprintln(w, "  --format\t<format>\tOutput format: text, json, csv, yaml (default: text)")
	fmt.Fprintln(w, "  --json\t\tShorthand for --format json")
	fmt.Fprintln(w, "  --show-match\t\tPrint detected values in the report")
	fmt.Fprintln(w, "  --verbose\t\tList categories, modified parts and detectors per document")
	fmt.Fprintln(w, "  --debug\t\tEnable debug logging and step tracing")
	fmt.Fprintln(w, "  --quiet\t\tOnly print masked file paths")
	fmt.Fprintln(w, "  --no-color\t\tDisable colored output")
	fmt.Fprintln(w, "  --metrics-file\t<path>\tWrite prometheus metrics in text format after the run")
	fmt.Fprintln(w, "  --version\t\tShow version information")
	fmt.Fprintln(w, "  --help\t\tShow this help message")
	fmt.Fprintln(w, "  --help categories\t\tList the pattern categories")
	w.Flush()

	fmt.Fprintln(h.out)
	h.println("header", "EXIT CODES:")
	w = tabwriter.NewWriter(h.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  0\tall documents masked")
	fmt.Fprintln(w, "  1\tconfiguration or usage error")
	fmt.Fprintln(w, "  2\tunsupported format or type mismatch")
	fmt.Fprintln(w, "  3\tdocument could not be read")
	fmt.Fprintln(w, "  4\tdetection failed")
	fmt.Fprintln(w, "  5\tmasked copy could not be written")
	w.Flush()

	fmt.Fprintln(h.out)
	h.println("header", "EXAMPLES:")
	h.println("example", "  docmask contract.docx")
	h.println("example", "  docmask --type excel --extra 'Project Alpha,김철수' staff.xlsx")
	h.println("example", "  docmask --pattern-only --output-dir ./masked --json *.docx")
}

// ShowCategoriesHelp lists every pattern category of the catalog
func (h *System) ShowCategoriesHelp() {
	h.println("header", "PATTERN CATEGORIES:")
	w := tabwriter.NewWriter(h.out, 0, 0, 2, ' ', 0)
	for _, p := range h.catalog.Patterns() {
		fmt.Fprintf(w, "  %s\t%s\n", p.Category, p.Label)
	}
	w.Flush()
	fmt.Fprintln(h.out)
	h.println("warning", "Names, addresses and extra terms come from the semantic detector unless --pattern-only is set.")
}

// ShowCategoryHelp shows one category, reporting whether it exists
func (h *System) ShowCategoryHelp(name string) bool {
	for _, p := range h.catalog.Patterns() {
		if !strings.EqualFold(p.Category, name) {
			continue
		}
		h.println("title", p.Category)
		w := tabwriter.NewWriter(h.out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "  Label:\t%s\n", p.Label)
		fmt.Fprintf(w, "  Pattern:\t%s\n", p.Regex.String())
		w.Flush()
		return true
	}
	return false
}
