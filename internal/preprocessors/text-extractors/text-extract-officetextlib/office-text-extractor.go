// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package textextractofficetextlib

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/smo-cookie/detect-and-match2/internal/ooxml"
)

// ErrNoTextParts is returned when a package has none of the text-bearing parts
var ErrNoTextParts = ooxml.ErrNoTextParts

// TextContent represents the extracted text content from a document
type TextContent struct {
	Filename   string
	Text       string
	Format     string
	PageCount  int
	WordCount  int
	CharCount  int
	LineCount  int
	Paragraphs int
	Parts      []string // text-bearing parts that contributed, in extraction order
}

// ExtractText extracts text from the Office document at filePath
func ExtractText(filePath string) (*TextContent, error) {
	if _, err := os.Stat(filePath); err != nil {
		return nil, fmt.Errorf("file error: %w", err)
	}

	kind, err := ooxml.KindFromPath(filePath)
	if err != nil {
		return nil, err
	}

	pkg, err := ooxml.OpenPackage(filePath, kind)
	if err != nil {
		return nil, err
	}
	defer pkg.Close()

	return ExtractPackageText(pkg, kind, filepath.Base(filePath))
}

// ExtractPackageText extracts plain text from an opened package. The result
// is deterministic and the archive is only read.
func ExtractPackageText(archive ooxml.Archive, kind ooxml.Kind, filename string) (*TextContent, error) {
	content := &TextContent{
		Filename: filename,
		Format:   kind.Format(),
	}

	names := archive.PartNames()

	var err error
	switch kind {
	case ooxml.KindDocx:
		err = extractDocxText(archive, names, content)
	case ooxml.KindXlsx:
		err = extractXlsxText(archive, names, content)
	default:
		return nil, fmt.Errorf("%w: %s", ooxml.ErrUnsupportedKind, kind)
	}
	if err != nil {
		return nil, err
	}

	if appData, err := archive.ReadPart(ooxml.DocumentAppProps); err == nil {
		extractAppProps(appData, content)
	}

	content.CharCount = len([]rune(content.Text))
	if content.WordCount == 0 {
		content.WordCount = countWords(content.Text)
	}
	content.LineCount = strings.Count(content.Text, "\n")
	if content.Text != "" && !strings.HasSuffix(content.Text, "\n") {
		content.LineCount++
	}

	return content, nil
}

// textPartsInOrder returns the text-bearing parts with the primary part first
// and the remaining parts sorted by name
func textPartsInOrder(kind ooxml.Kind, names []string) []string {
	var primary string
	var secondary []string
	seen := make(map[string]bool, len(names))

	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true

		switch ooxml.Classify(kind, name) {
		case ooxml.RolePrimary:
			primary = name
		case ooxml.RoleText:
			secondary = append(secondary, name)
		}
	}

	sort.Strings(secondary)
	if primary != "" {
		return append([]string{primary}, secondary...)
	}
	return secondary
}

// extractDocxText joins the paragraphs of the body and then of headers,
// footers, notes and comments with newlines
func extractDocxText(archive ooxml.Archive, names []string, content *TextContent) error {
	parts := textPartsInOrder(ooxml.KindDocx, names)
	if len(parts) == 0 {
		return ErrNoTextParts
	}

	var lines []string
	for _, name := range parts {
		data, err := archive.ReadPart(name)
		if err != nil {
			return err
		}
		paragraphs, err := ooxml.ScanParagraphs(ooxml.KindDocx, name, data)
		if err != nil {
			return err
		}
		for _, p := range paragraphs {
			lines = append(lines, p.Text())
		}
		content.Parts = append(content.Parts, name)
	}

	content.Paragraphs = len(lines)
	content.Text = strings.Join(lines, "\n")
	return nil
}

// extractXlsxText renders every worksheet row as its cells joined by a single
// space, one line per row, followed by comment text
func extractXlsxText(archive ooxml.Archive, names []string, content *TextContent) error {
	parts := textPartsInOrder(ooxml.KindXlsx, names)
	if len(parts) == 0 {
		return ErrNoTextParts
	}

	var sharedStrings []string
	var comments []string
	var worksheets []string

	for _, name := range parts {
		switch {
		case ooxml.Classify(ooxml.KindXlsx, name) == ooxml.RolePrimary:
			data, err := archive.ReadPart(name)
			if err != nil {
				return err
			}
			paragraphs, err := ooxml.ScanParagraphs(ooxml.KindXlsx, name, data)
			if err != nil {
				return err
			}
			for _, p := range paragraphs {
				sharedStrings = append(sharedStrings, p.Text())
			}
			content.Parts = append(content.Parts, name)
		case ooxml.IsWorksheet(name):
			worksheets = append(worksheets, name)
		default:
			comments = append(comments, name)
		}
	}

	var allText strings.Builder

	for _, name := range orderWorksheets(archive, worksheets) {
		data, err := archive.ReadPart(name)
		if err != nil {
			return err
		}
		sheetText, err := extractWorksheetText(data, sharedStrings)
		if err != nil {
			return fmt.Errorf("worksheet %s: %w", name, err)
		}
		allText.WriteString(sheetText)
		content.Parts = append(content.Parts, name)
		content.PageCount++
	}

	for _, name := range comments {
		data, err := archive.ReadPart(name)
		if err != nil {
			return err
		}
		paragraphs, err := ooxml.ScanParagraphs(ooxml.KindXlsx, name, data)
		if err != nil {
			return err
		}
		for _, p := range paragraphs {
			allText.WriteString(p.Text())
			allText.WriteString("\n")
		}
		content.Parts = append(content.Parts, name)
	}

	content.Text = allText.String()
	content.Paragraphs = strings.Count(content.Text, "\n")
	return nil
}

// orderWorksheets returns worksheets in workbook declaration order. Sheets the
// workbook does not reference follow in numeric order.
func orderWorksheets(archive ooxml.Archive, worksheets []string) []string {
	remaining := make(map[string]bool, len(worksheets))
	for _, name := range worksheets {
		remaining[name] = true
	}

	var ordered []string
	for _, name := range workbookSheetOrder(archive) {
		if remaining[name] {
			ordered = append(ordered, name)
			delete(remaining, name)
		}
	}

	var rest []string
	for _, name := range worksheets {
		if remaining[name] {
			rest = append(rest, name)
		}
	}
	sortWorksheets(rest)
	return append(ordered, rest...)
}

// workbookSheetOrder resolves the sheet declarations of xl/workbook.xml
// through its relationships. It returns nil when either part is unusable.
func workbookSheetOrder(archive ooxml.Archive) []string {
	workbook, err := archive.ReadPart(ooxml.SheetWorkbook)
	if err != nil {
		return nil
	}
	rels, err := archive.ReadPart(ooxml.SheetWorkbookRels)
	if err != nil {
		return nil
	}

	targets := make(map[string]string)
	decoder := xml.NewDecoder(bytes.NewReader(rels))
	for {
		token, err := decoder.Token()
		if err != nil {
			break
		}
		if se, ok := token.(xml.StartElement); ok && se.Name.Local == "Relationship" {
			targets[attrValue(se, "Id")] = attrValue(se, "Target")
		}
	}

	var order []string
	decoder = xml.NewDecoder(bytes.NewReader(workbook))
	for {
		token, err := decoder.Token()
		if err != nil {
			break
		}
		se, ok := token.(xml.StartElement)
		if !ok || se.Name.Local != "sheet" {
			continue
		}
		for _, a := range se.Attr {
			if a.Name.Local == "id" && strings.Contains(a.Name.Space, "relationships") {
				if target, ok := targets[a.Value]; ok {
					order = append(order, resolveTarget(target))
				}
			}
		}
	}
	return order
}

// resolveTarget turns a workbook relationship target into a part name
func resolveTarget(target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	return path.Join("xl", target)
}

// sortWorksheets sorts worksheets by sheet number
func sortWorksheets(worksheets []string) {
	sheetNumberRe := regexp.MustCompile(`sheet(\d+)\.xml$`)
	getSheetNumber := func(name string) int {
		matches := sheetNumberRe.FindStringSubmatch(strings.ToLower(name))
		if len(matches) >= 2 {
			if num, err := strconv.Atoi(matches[1]); err == nil {
				return num
			}
		}
		return 1 << 30 // Non-standard sheet names sort last
	}

	sort.SliceStable(worksheets, func(i, j int) bool {
		return getSheetNumber(worksheets[i]) < getSheetNumber(worksheets[j])
	})
}

type cellPos struct {
	row, col int
}

// extractWorksheetText renders rows from the first to the last used row and
// cells from the first to the last used column. Missing cells render empty.
func extractWorksheetText(data []byte, sharedStrings []string) (string, error) {
	values := make(map[cellPos]string)
	minRow, maxRow, minCol, maxCol := 0, 0, 0, 0
	track := func(p cellPos) {
		if minRow == 0 || p.row < minRow {
			minRow = p.row
		}
		if p.row > maxRow {
			maxRow = p.row
		}
		if minCol == 0 || p.col < minCol {
			minCol = p.col
		}
		if p.col > maxCol {
			maxCol = p.col
		}
	}

	var (
		row, col      int
		cellType      string
		inCell        bool
		inValue       bool
		inInline      bool
		inPhonetic    bool
		value, inline strings.Builder
	)

	decoder := xml.NewDecoder(bytes.NewReader(data))
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("XML parsing error: %w", err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "row":
				if r, err := strconv.Atoi(attrValue(t, "r")); err == nil && r > 0 {
					row = r
				} else {
					row++
				}
				col = 0
			case "c":
				inCell = true
				cellType = attrValue(t, "t")
				value.Reset()
				inline.Reset()
				if r, c, ok := parseCellRef(attrValue(t, "r")); ok {
					row, col = r, c
				} else {
					col++
				}
			case "v":
				inValue = inCell
			case "is":
				inInline = inCell
			case "rPh":
				inPhonetic = true
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "c":
				if row > 0 && col > 0 {
					pos := cellPos{row: row, col: col}
					track(pos)
					values[pos] = cellText(cellType, value.String(), inline.String(), sharedStrings)
				}
				inCell = false
			case "v":
				inValue = false
			case "is":
				inInline = false
			case "rPh":
				inPhonetic = false
			}

		case xml.CharData:
			switch {
			case inValue:
				value.Write(t)
			case inInline && !inPhonetic:
				inline.Write(t)
			}
		}
	}

	if maxRow == 0 {
		return "", nil
	}

	var result strings.Builder
	cells := make([]string, 0, maxCol-minCol+1)
	for r := minRow; r <= maxRow; r++ {
		cells = cells[:0]
		for c := minCol; c <= maxCol; c++ {
			cells = append(cells, values[cellPos{row: r, col: c}])
		}
		result.WriteString(strings.Join(cells, " "))
		result.WriteString("\n")
	}
	return result.String(), nil
}

// cellText renders a cell value the way a spreadsheet reader shows it as a string
func cellText(cellType, value, inline string, sharedStrings []string) string {
	switch cellType {
	case "s":
		index, err := strconv.Atoi(strings.TrimSpace(value))
		if err == nil && index >= 0 && index < len(sharedStrings) {
			return sharedStrings[index]
		}
		return value
	case "inlineStr":
		return inline
	case "b":
		switch strings.TrimSpace(value) {
		case "1", "true":
			return "True"
		case "0", "false":
			return "False"
		}
		return value
	default:
		return value
	}
}

// parseCellRef parses an A1 style reference into 1-based row and column
func parseCellRef(ref string) (row, col int, ok bool) {
	i := 0
	for i < len(ref) && ref[i] >= 'A' && ref[i] <= 'Z' {
		col = col*26 + int(ref[i]-'A'+1)
		i++
	}
	if i == 0 || i == len(ref) {
		return 0, 0, false
	}
	row, err := strconv.Atoi(ref[i:])
	if err != nil || row <= 0 {
		return 0, 0, false
	}
	return row, col, true
}

func attrValue(se xml.StartElement, local string) string {
	for _, a := range se.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// extractAppProps reads page and word counts from docProps/app.xml
func extractAppProps(xmlContent []byte, content *TextContent) {
	pageCountRe := regexp.MustCompile(`<Pages>(\d+)</Pages>`)
	if match := pageCountRe.FindSubmatch(xmlContent); len(match) > 1 {
		content.PageCount, _ = strconv.Atoi(string(match[1]))
	}

	wordCountRe := regexp.MustCompile(`<Words>(\d+)</Words>`)
	if match := wordCountRe.FindSubmatch(xmlContent); len(match) > 1 {
		if wordCount, _ := strconv.Atoi(string(match[1])); wordCount > 0 {
			content.WordCount = wordCount
		}
	}
}

// countWords counts the number of words in a text
func countWords(text string) int {
	return len(strings.Fields(text))
}
