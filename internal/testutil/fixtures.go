// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package testutil builds small DOCX and XLSX packages for tests.
package testutil

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// WordNS is the transitional WordprocessingML namespace
const WordNS = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

// SheetNS is the transitional SpreadsheetML namespace
const SheetNS = "http://schemas.openxmlformats.org/spreadsheetml/2006/main"

// Entry is one archive member
type Entry struct {
	Name     string
	Data     []byte
	Method   uint16
	Modified time.Time
	Extra    []byte
}

// FixedTime is the modification time given to fixture entries
var FixedTime = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

// PNG is an opaque binary payload standing in for an embedded image
var PNG = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR010-1234-5678 not text")

// Escape escapes s for XML character data
func Escape(s string) string {
	var b bytes.Buffer
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// Para renders a Word paragraph with one run per argument
func Para(runs ...string) string {
	var b strings.Builder
	b.WriteString("<w:p>")
	for _, run := range runs {
		fmt.Fprintf(&b, `<w:r><w:rPr><w:b/></w:rPr><w:t xml:space="preserve">%s</w:t></w:r>`, Escape(run))
	}
	b.WriteString("</w:p>")
	return b.String()
}

// DocumentXML wraps body markup in a Word document part
func DocumentXML(body string) string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\r\n" +
		`<w:document xmlns:w="` + WordNS + `" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">` +
		`<w:body>` + body + `<w:sectPr><w:pgSz w:w="11906" w:h="16838"/></w:sectPr></w:body></w:document>`
}

// PartXML wraps paragraphs in a Word header, footer, comments or notes part
func PartXML(root, body string) string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\r\n" +
		`<w:` + root + ` xmlns:w="` + WordNS + `">` + body + `</w:` + root + `>`
}

// DocxEntries returns a minimal Word package whose body holds the given paragraph markup
func DocxEntries(body string) []Entry {
	return []Entry{
		{Name: "[Content_Types].xml", Data: []byte(`<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="xml" ContentType="application/xml"/><Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`), Method: zip.Deflate},
		{Name: "_rels/.rels", Data: []byte(`<?xml version="1.0" encoding="UTF-8"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/></Relationships>`), Method: zip.Deflate},
		{Name: "word/document.xml", Data: []byte(DocumentXML(body)), Method: zip.Deflate},
		{Name: "word/media/image1.png", Data: PNG, Method: zip.Store},
		{Name: "docProps/core.xml", Data: []byte(`<?xml version="1.0" encoding="UTF-8"?><cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:creator>홍길동</dc:creator></cp:coreProperties>`), Method: zip.Deflate},
	}
}

// Cell is one worksheet cell
type Cell struct {
	Ref    string // e.g. "B2"
	Type   string // "s", "inlineStr", "b", "n", "str" or ""
	Value  string // raw <v> content or inline text
	Styled bool   // emit a style attribute only
}

// SheetXML renders a worksheet from rows of cells
func SheetXML(rows [][]Cell) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\r\n")
	b.WriteString(`<worksheet xmlns="` + SheetNS + `" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"><sheetData>`)
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		fmt.Fprintf(&b, `<row r="%s">`, rowOf(row[0].Ref))
		for _, c := range row {
			switch {
			case c.Styled:
				fmt.Fprintf(&b, `<c r="%s" s="1"/>`, c.Ref)
			case c.Type == "inlineStr":
				fmt.Fprintf(&b, `<c r="%s" t="inlineStr"><is><t>%s</t></is></c>`, c.Ref, Escape(c.Value))
			case c.Type == "":
				fmt.Fprintf(&b, `<c r="%s"><v>%s</v></c>`, c.Ref, Escape(c.Value))
			default:
				fmt.Fprintf(&b, `<c r="%s" t="%s"><v>%s</v></c>`, c.Ref, c.Type, Escape(c.Value))
			}
		}
		b.WriteString(`</row>`)
	}
	b.WriteString(`</sheetData></worksheet>`)
	return b.String()
}

func rowOf(ref string) string {
	return strings.TrimLeft(ref, "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
}

// SharedStringsXML renders a shared string table, one plain <si> per string
func SharedStringsXML(strs ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\r\n")
	fmt.Fprintf(&b, `<sst xmlns="%s" count="%d" uniqueCount="%d">`, SheetNS, len(strs), len(strs))
	for _, s := range strs {
		fmt.Fprintf(&b, `<si><t xml:space="preserve">%s</t></si>`, Escape(s))
	}
	b.WriteString(`</sst>`)
	return b.String()
}

// Sheet names a worksheet and its content
type Sheet struct {
	Name string
	Part string // e.g. "sheet1.xml"
	XML  string
}

// XlsxEntries returns a workbook package. Sheets are declared in the given
// order while parts are stored in reverse to exercise ordering.
func XlsxEntries(sharedStrings string, sheets ...Sheet) []Entry {
	var wb, rels strings.Builder
	wb.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?><workbook xmlns="` + SheetNS + `" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"><sheets>`)
	rels.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`)
	for i, s := range sheets {
		fmt.Fprintf(&wb, `<sheet name="%s" sheetId="%d" r:id="rId%d"/>`, Escape(s.Name), i+1, i+1)
		fmt.Fprintf(&rels, `<Relationship Id="rId%d" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet" Target="worksheets/%s"/>`, i+1, s.Part)
	}
	wb.WriteString(`</sheets></workbook>`)
	rels.WriteString(`</Relationships>`)

	entries := []Entry{
		{Name: "[Content_Types].xml", Data: []byte(`<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="xml" ContentType="application/xml"/></Types>`), Method: zip.Deflate},
		{Name: "xl/workbook.xml", Data: []byte(wb.String()), Method: zip.Deflate},
		{Name: "xl/_rels/workbook.xml.rels", Data: []byte(rels.String()), Method: zip.Deflate},
	}
	if sharedStrings != "" {
		entries = append(entries, Entry{Name: "xl/sharedStrings.xml", Data: []byte(sharedStrings), Method: zip.Deflate})
	}
	for i := len(sheets) - 1; i >= 0; i-- {
		entries = append(entries, Entry{Name: "xl/worksheets/" + sheets[i].Part, Data: []byte(sheets[i].XML), Method: zip.Deflate})
	}
	entries = append(entries, Entry{Name: "xl/media/image1.png", Data: PNG, Method: zip.Store})
	return entries
}

// WriteZip writes entries to path with the given archive comment
func WriteZip(t testing.TB, path string, entries []Entry, comment string) string {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		modified := e.Modified
		if modified.IsZero() {
			modified = FixedTime
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.Name, Method: e.Method, Modified: modified, Extra: e.Extra})
		require.NoError(t, err)
		_, err = w.Write(e.Data)
		require.NoError(t, err)
	}
	if comment != "" {
		require.NoError(t, zw.SetComment(comment))
	}
	require.NoError(t, zw.Close())

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

// NewDocx writes a Word package holding the given paragraph markup
func NewDocx(t testing.TB, dir, name, body string) string {
	t.Helper()
	return WriteZip(t, filepath.Join(dir, name), DocxEntries(body), "")
}

// ZipMember is a read-back archive member
type ZipMember struct {
	Header zip.FileHeader
	Data   []byte
	Raw    []byte
}

// ReadZip returns the members of the archive at path in archive order
// together with the archive comment
func ReadZip(t testing.TB, path string) ([]ZipMember, string) {
	t.Helper()

	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	members := make([]ZipMember, 0, len(r.File))
	for _, f := range r.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)

		raw, err := f.OpenRaw()
		require.NoError(t, err)
		rawData, err := io.ReadAll(raw)
		require.NoError(t, err)

		members = append(members, ZipMember{Header: f.FileHeader, Data: data, Raw: rawData})
	}
	return members, r.Comment
}

// Member returns the named member's decompressed content
func Member(t testing.TB, path, name string) string {
	t.Helper()
	members, _ := ReadZip(t, path)
	for _, m := range members {
		if m.Header.Name == name {
			return string(m.Data)
		}
	}
	t.Fatalf("member %s not found in %s", name, path)
	return ""
}
