// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package ooxml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smo-cookie/detect-and-match2/internal/testutil"
)

func paragraphTexts(paragraphs []Paragraph) []string {
	texts := make([]string, len(paragraphs))
	for i, p := range paragraphs {
		texts[i] = p.Text()
	}
	return texts
}

func TestScanParagraphs_Word(t *testing.T) {
	body := testutil.Para("연락처 ", "010-1234", "-5678 감사합니다") +
		`<w:tbl><w:tr><w:tc>` + testutil.Para("표 안의 a&b <값>") + `</w:tc></w:tr></w:tbl>` +
		`<w:p><w:pPr><w:tabs><w:tab w:val="left" w:pos="720"/></w:tabs></w:pPr>` +
		`<w:r><w:t>A</w:t><w:tab/><w:t>B</w:t><w:br/><w:t>C</w:t></w:r>` +
		`<w:r><w:instrText> HYPERLINK </w:instrText></w:r>` +
		`<w:del><w:r><w:delText>삭제됨</w:delText></w:r></w:del></w:p>`

	data := []byte(testutil.DocumentXML(body))
	paragraphs, err := ScanParagraphs(KindDocx, WordDocument, data)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"연락처 010-1234-5678 감사합니다",
		"표 안의 a&b <값>",
		"A\tB\nC삭제됨",
	}, paragraphTexts(paragraphs))

	// Editable segments point at their raw character data
	for _, p := range paragraphs {
		for _, s := range p.Segments {
			if !s.Editable() {
				continue
			}
			raw := string(data[s.Start:s.End])
			assert.Equal(t, testutil.Escape(s.Text), raw)
		}
	}
	assert.Len(t, paragraphs[0].Segments, 3)
}

func TestScanParagraphs_NestedTextBox(t *testing.T) {
	body := `<w:p><w:r><w:t>outer</w:t></w:r><w:r><w:txbxContent>` + testutil.Para("inner") +
		`</w:txbxContent></w:r><w:r><w:t> tail</w:t></w:r></w:p>`

	paragraphs, err := ScanParagraphs(KindDocx, WordDocument, []byte(testutil.DocumentXML(body)))
	require.NoError(t, err)
	assert.Equal(t, []string{"outer tail", "inner"}, paragraphTexts(paragraphs))
}

func TestScanParagraphs_IgnoresForeignNamespaces(t *testing.T) {
	data := `<w:document xmlns:w="` + testutil.WordNS + `" xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main">` +
		`<w:body><w:p><w:r><w:t>visible</w:t></w:r></w:p><a:p><a:r><a:t>drawing</a:t></a:r></a:p></w:body></w:document>`

	paragraphs, err := ScanParagraphs(KindDocx, WordDocument, []byte(data))
	require.NoError(t, err)
	assert.Equal(t, []string{"visible"}, paragraphTexts(paragraphs))
}

func TestScanParagraphs_SharedStrings(t *testing.T) {
	data := `<sst xmlns="` + testutil.SheetNS + `"><si><t>plain</t></si><si/>` +
		`<si><r><rPr><b/></rPr><t>rich </t></r><r><t>text</t></r><rPh sb="0" eb="1"><t>ふりがな</t></rPh></si></sst>`

	paragraphs, err := ScanParagraphs(KindXlsx, SheetSharedStrings, []byte(data))
	require.NoError(t, err)
	assert.Equal(t, []string{"plain", "", "rich text"}, paragraphTexts(paragraphs))
}

func TestScanParagraphs_WorksheetInlineStrings(t *testing.T) {
	data := testutil.SheetXML([][]testutil.Cell{{
		{Ref: "A1", Type: "inlineStr", Value: "hong@example.com"},
		{Ref: "B1", Value: "42"},
	}})

	paragraphs, err := ScanParagraphs(KindXlsx, "xl/worksheets/sheet1.xml", []byte(data))
	require.NoError(t, err)
	assert.Equal(t, []string{"hong@example.com"}, paragraphTexts(paragraphs))
}

func TestScanParagraphs_SheetComments(t *testing.T) {
	data := `<comments xmlns="` + testutil.SheetNS + `"><authors><author>kim</author></authors><commentList>` +
		`<comment ref="A1" authorId="0"><text><r><t>연락처 </t></r><r><t>010-1234-5678</t></r></text></comment>` +
		`</commentList></comments>`

	paragraphs, err := ScanParagraphs(KindXlsx, "xl/comments1.xml", []byte(data))
	require.NoError(t, err)
	assert.Equal(t, []string{"연락처 010-1234-5678"}, paragraphTexts(paragraphs))
}

func TestScanParagraphs_CDATA(t *testing.T) {
	data := []byte(`<w:document xmlns:w="` + testutil.WordNS + `"><w:body><w:p><w:r><w:t><![CDATA[a<b]]></w:t></w:r></w:p></w:body></w:document>`)
	paragraphs, err := ScanParagraphs(KindDocx, WordDocument, data)
	require.NoError(t, err)
	require.Len(t, paragraphs, 1)
	assert.Equal(t, "a<b", paragraphs[0].Text())
	s := paragraphs[0].Segments[0]
	assert.Equal(t, "<![CDATA[a<b]]>", string(data[s.Start:s.End]))
}

func TestScanParagraphs_MalformedXML(t *testing.T) {
	_, err := ScanParagraphs(KindDocx, WordDocument, []byte(`<w:document><w:body><w:p>`+"\x00"))
	assert.Error(t, err)
}

func TestScanParagraphs_UnsupportedKind(t *testing.T) {
	_, err := ScanParagraphs(KindUnknown, "content.xml", []byte(`<a/>`))
	assert.ErrorIs(t, err, ErrUnsupportedKind)
}

func TestScanParagraphs_TruncatedXML(t *testing.T) {
	_, err := ScanParagraphs(KindDocx, WordDocument, []byte(`<w:document xmlns:w="`+testutil.WordNS+`"><w:body><w:p>`))
	assert.ErrorContains(t, err, "unexpected EOF")
}
