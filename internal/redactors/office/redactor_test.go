// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package office

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smo-cookie/detect-and-match2/internal/detector"
	"github.com/smo-cookie/detect-and-match2/internal/observability"
	"github.com/smo-cookie/detect-and-match2/internal/ooxml"
	textextract "github.com/smo-cookie/detect-and-match2/internal/preprocessors/text-extractors/text-extract-officetextlib"
	"github.com/smo-cookie/detect-and-match2/internal/redactors"
	"github.com/smo-cookie/detect-and-match2/internal/testutil"
)

func openPackage(t *testing.T, path string) *ooxml.Package {
	t.Helper()
	kind, err := ooxml.KindFromPath(path)
	require.NoError(t, err)
	pkg, err := ooxml.OpenPackage(path, kind)
	require.NoError(t, err)
	t.Cleanup(func() { pkg.Close() })
	return pkg
}

func masksOf(literals ...string) detector.MaskSet {
	return detector.NewMaskSet(placeholder, []detector.Result{{"TEST": literals}}, nil)
}

func rewrite(t *testing.T, input string, masks detector.MaskSet) (string, *redactors.RewriteResult) {
	t.Helper()
	output := redactors.MaskedOutputPath(input, "", redactors.DefaultMarker)
	result, err := NewOfficeRedactor(nil, nil).Rewrite(openPackage(t, input), masks, placeholder, output)
	require.NoError(t, err)
	return output, result
}

func extractText(t *testing.T, path string) string {
	t.Helper()
	content, err := textextract.ExtractText(path)
	require.NoError(t, err)
	return content.Text
}

func TestRewrite_DocxPhoneAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	input := testutil.NewDocx(t, dir, "memo.docx",
		testutil.Para("연락처: ", "010-", "1234-5678", " (mobile)")+
			testutil.Para("no personal data here"))

	output, result := rewrite(t, input, masksOf("010-1234-5678"))

	assert.Equal(t, filepath.Join(dir, "memo(masked).docx"), output)
	assert.Equal(t, 1, result.Replacements)
	assert.Equal(t, []string{"word/document.xml"}, result.ModifiedParts)
	assert.Equal(t, "연락처: **** (mobile)\nno personal data here", extractText(t, output))
}

func TestRewrite_DebugTraceReportsReplacements(t *testing.T) {
	dir := t.TempDir()
	input := testutil.NewDocx(t, dir, "memo.docx",
		testutil.Para("담당 ", "홍길동")+testutil.Para("부담당 홍길동"))

	var buf bytes.Buffer
	debug := observability.NewDebugObserver(&buf, nil)
	output := redactors.MaskedOutputPath(input, "", redactors.DefaultMarker)
	_, err := NewOfficeRedactor(nil, debug.StandardObserver).Rewrite(openPackage(t, input), masksOf("홍길동"), placeholder, output)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "office_redactor: replacements = 2")
	assert.Contains(t, buf.String(), "office_redactor: modified_parts = 1")
	assert.Contains(t, buf.String(), "office_redactor: word/document.xml: 2 replacement(s)")
}

func TestRewrite_LongestLiteralFirst(t *testing.T) {
	dir := t.TempDir()
	input := testutil.NewDocx(t, dir, "card.docx", testutil.Para("card 1234-5678-9012-3456"))

	output, _ := rewrite(t, input, masksOf("1234-5678-9012", "1234-5678-9012-3456"))
	assert.Equal(t, "card ****", extractText(t, output))
}

func TestRewrite_OpaquePartsByteIdentical(t *testing.T) {
	dir := t.TempDir()
	entries := testutil.DocxEntries(testutil.Para("email a@b.com"))
	entries = append(entries, testutil.Entry{Name: "customXml/item1.xml", Data: []byte(`<root>a@b.com</root>`), Method: zip.Deflate})
	input := testutil.WriteZip(t, filepath.Join(dir, "in.docx"), entries, "archive comment")

	output, result := rewrite(t, input, masksOf("a@b.com"))
	require.Equal(t, []string{"word/document.xml"}, result.ModifiedParts)
	assert.Equal(t, len(entries)-1, result.CopiedParts)

	before, beforeComment := testutil.ReadZip(t, input)
	after, afterComment := testutil.ReadZip(t, output)
	assert.Equal(t, beforeComment, afterComment)
	require.Len(t, after, len(before))

	for i := range before {
		b, a := before[i], after[i]
		assert.Equal(t, b.Header.Name, a.Header.Name, "archive order")
		assert.Equal(t, b.Header.Method, a.Header.Method, b.Header.Name)
		assert.Equal(t, b.Header.ModifiedDate, a.Header.ModifiedDate, b.Header.Name)
		assert.Equal(t, b.Header.ModifiedTime, a.Header.ModifiedTime, b.Header.Name)
		assert.True(t, b.Header.Modified.Equal(a.Header.Modified), b.Header.Name)

		if b.Header.Name == "word/document.xml" {
			assert.NotEqual(t, b.Data, a.Data)
			continue
		}
		assert.Equal(t, b.Raw, a.Raw, b.Header.Name)
		assert.Equal(t, b.Header.CRC32, a.Header.CRC32, b.Header.Name)
		assert.Equal(t, b.Header.Extra, a.Header.Extra, b.Header.Name)
	}

	// Outside the paragraph the document part is untouched
	doc := testutil.Member(t, output, "word/document.xml")
	assert.Contains(t, doc, `<w:pgSz w:w="11906" w:h="16838"/>`)
	assert.Contains(t, doc, `<w:t xml:space="preserve">email ****</w:t>`)
	assert.Equal(t, `<root>a@b.com</root>`, testutil.Member(t, output, "customXml/item1.xml"))
}

func TestRewrite_Idempotent(t *testing.T) {
	dir := t.TempDir()
	input := testutil.NewDocx(t, dir, "doc.docx",
		testutil.Para("홍길동 ", "010-1234-5678")+testutil.Para("****홍길동"))
	masks := masksOf("홍길동", "010-1234-5678")

	once, result := rewrite(t, input, masks)
	assert.Equal(t, 3, result.Replacements)

	twice, result := rewrite(t, once, masks)
	assert.Zero(t, result.Replacements)
	assert.Empty(t, result.ModifiedParts)
	assert.Equal(t, testutil.Member(t, once, "word/document.xml"), testutil.Member(t, twice, "word/document.xml"))
}

func TestRewrite_HeadersFootersAndComments(t *testing.T) {
	dir := t.TempDir()
	entries := testutil.DocxEntries(testutil.Para("body"))
	entries = append(entries,
		testutil.Entry{Name: "word/header1.xml", Data: []byte(testutil.PartXML("hdr", testutil.Para("작성자 홍길동"))), Method: zip.Deflate},
		testutil.Entry{Name: "word/footer1.xml", Data: []byte(testutil.PartXML("ftr", testutil.Para("page"))), Method: zip.Deflate},
		testutil.Entry{Name: "word/comments.xml", Data: []byte(testutil.PartXML("comments", `<w:comment w:id="1">`+testutil.Para("call 홍길동")+`</w:comment>`)), Method: zip.Deflate},
	)
	input := testutil.WriteZip(t, filepath.Join(dir, "parts.docx"), entries, "")

	output, result := rewrite(t, input, masksOf("홍길동"))
	assert.Equal(t, []string{"word/header1.xml", "word/comments.xml"}, result.ModifiedParts)
	assert.Equal(t, "body\ncall ****\npage\n작성자 ****", extractText(t, output))
}

func TestRewrite_Xlsx(t *testing.T) {
	dir := t.TempDir()
	shared := testutil.SharedStringsXML("이름", "홍길동", "a@b.com 담당")
	sheet := testutil.SheetXML([][]testutil.Cell{
		{{Ref: "A1", Type: "s", Value: "0"}, {Ref: "B1", Type: "s", Value: "2"}},
		{{Ref: "A2", Type: "s", Value: "1"}, {Ref: "B2", Type: "inlineStr", Value: "홍길동 010-1234-5678"}},
		{{Ref: "A3", Value: "01012345678"}},
	})
	entries := testutil.XlsxEntries(shared, testutil.Sheet{Name: "Sheet1", Part: "sheet1.xml", XML: sheet})
	entries = append(entries, testutil.Entry{
		Name:   "xl/comments1.xml",
		Data:   []byte(`<comments xmlns="` + testutil.SheetNS + `"><commentList><comment ref="A1"><text><r><t>ask 홍길동</t></r></text></comment></commentList></comments>`),
		Method: zip.Deflate,
	})
	input := testutil.WriteZip(t, filepath.Join(dir, "book.xlsx"), entries, "")

	output, result := rewrite(t, input, masksOf("홍길동", "a@b.com", "010-1234-5678"))

	assert.Equal(t, 5, result.Replacements)
	assert.ElementsMatch(t, []string{"xl/sharedStrings.xml", "xl/worksheets/sheet1.xml", "xl/comments1.xml"}, result.ModifiedParts)
	assert.Equal(t, "이름 **** 담당\n**** **** ****\n01012345678 \nask ****\n", extractText(t, output))
}

func TestRewrite_EmptyMaskSetCopiesEverything(t *testing.T) {
	dir := t.TempDir()
	input := testutil.NewDocx(t, dir, "plain.docx", testutil.Para("nothing to hide"))

	output, result := rewrite(t, input, detector.MaskSet{})
	assert.Zero(t, result.Replacements)
	assert.Empty(t, result.ModifiedParts)

	before, _ := testutil.ReadZip(t, input)
	after, _ := testutil.ReadZip(t, output)
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].Raw, after[i].Raw)
	}
}

func TestRewrite_NoTextParts(t *testing.T) {
	dir := t.TempDir()
	input := testutil.WriteZip(t, filepath.Join(dir, "empty.docx"), []testutil.Entry{
		{Name: "word/media/image1.png", Data: testutil.PNG},
	}, "")
	output := filepath.Join(dir, "empty(masked).docx")

	_, err := NewOfficeRedactor(nil, nil).Rewrite(openPackage(t, input), masksOf("x"), placeholder, output)
	assert.ErrorIs(t, err, ooxml.ErrNoTextParts)
	assert.NoFileExists(t, output)
}

func TestRewrite_MissingPrimaryStillMasksSecondary(t *testing.T) {
	dir := t.TempDir()
	input := testutil.WriteZip(t, filepath.Join(dir, "nobody.docx"), []testutil.Entry{
		{Name: "word/footer1.xml", Data: []byte(testutil.PartXML("ftr", testutil.Para("홍길동"))), Method: zip.Deflate},
	}, "")

	output, result := rewrite(t, input, masksOf("홍길동"))
	assert.Equal(t, 1, result.Replacements)
	assert.Equal(t, "****", extractText(t, output))
}

func TestRewrite_FailureLeavesNoOutput(t *testing.T) {
	dir := t.TempDir()
	input := testutil.NewDocx(t, dir, "doc.docx", testutil.Para("홍길동"))

	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("file"), 0o600))
	output := filepath.Join(blocker, "doc(masked).docx")

	_, err := NewOfficeRedactor(nil, nil).Rewrite(openPackage(t, input), masksOf("홍길동"), placeholder, output)
	require.Error(t, err)
	assert.NoFileExists(t, output)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-")
	}
}

func TestRewrite_InputUnchanged(t *testing.T) {
	dir := t.TempDir()
	input := testutil.NewDocx(t, dir, "keep.docx", testutil.Para("홍길동"))
	original, err := os.ReadFile(input)
	require.NoError(t, err)

	rewrite(t, input, masksOf("홍길동"))

	after, err := os.ReadFile(input)
	require.NoError(t, err)
	assert.Equal(t, original, after)
}

func extraIDs(extra []byte) []uint16 {
	var ids []uint16
	for len(extra) >= 4 {
		ids = append(ids, binary.LittleEndian.Uint16(extra[0:2]))
		extra = extra[4+int(binary.LittleEndian.Uint16(extra[2:4])):]
	}
	return ids
}

func TestRewrite_DropsStaleZip64Extra(t *testing.T) {
	zip64 := []byte{0x01, 0x00, 0x08, 0x00, 1, 2, 3, 4, 5, 6, 7, 8}
	custom := []byte{0xfe, 0xca, 0x02, 0x00, 'o', 'k'}

	entries := testutil.DocxEntries(testutil.Para("담당 홍길동"))
	for i := range entries {
		if entries[i].Name == ooxml.WordDocument {
			entries[i].Extra = append(append([]byte(nil), zip64...), custom...)
		}
	}
	input := testutil.WriteZip(t, filepath.Join(t.TempDir(), "big.docx"), entries, "")

	output, _ := rewrite(t, input, masksOf("홍길동"))
	assert.Equal(t, "담당 ****", extractText(t, output))

	zr, err := zip.OpenReader(output)
	require.NoError(t, err)
	defer zr.Close()
	for _, f := range zr.File {
		if f.Name != ooxml.WordDocument {
			continue
		}
		ids := extraIDs(f.Extra)
		assert.NotContains(t, ids, uint16(0x0001))
		assert.Contains(t, ids, uint16(0xcafe))
	}
}

func TestStripZip64Extra(t *testing.T) {
	tests := []struct {
		name  string
		extra []byte
		want  []byte
	}{
		{"empty", nil, nil},
		{"only zip64", []byte{0x01, 0x00, 0x08, 0x00, 0, 0, 0, 0, 0, 0, 0, 0}, []byte{}},
		{"zip64 between others",
			[]byte{0x55, 0x54, 0x01, 0x00, 0x07, 0x01, 0x00, 0x04, 0x00, 9, 9, 9, 9, 0xfe, 0xca, 0x00, 0x00},
			[]byte{0x55, 0x54, 0x01, 0x00, 0x07, 0xfe, 0xca, 0x00, 0x00}},
		{"truncated tail dropped", []byte{0xfe, 0xca, 0x00, 0x00, 0x01, 0x00, 0x08}, []byte{0xfe, 0xca, 0x00, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripZip64Extra(tt.extra))
		})
	}
}
