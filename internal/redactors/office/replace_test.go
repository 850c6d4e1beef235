// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package office

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smo-cookie/detect-and-match2/internal/detector"
	"github.com/smo-cookie/detect-and-match2/internal/ooxml"
)

const placeholder = "****"

func matcherFor(literals ...string) *literalMatcher {
	masks := detector.NewMaskSet(placeholder, nil, literals)
	return newLiteralMatcher(masks.Ordered(), placeholder)
}

// maskText applies matches to plain text
func maskText(text string, matches []span) string {
	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(text[last:m.start])
		b.WriteString(placeholder)
		last = m.end
	}
	b.WriteString(text[last:])
	return b.String()
}

func TestLiteralMatcher_Find(t *testing.T) {
	tests := []struct {
		name     string
		literals []string
		text     string
		expected []span
	}{
		{
			name:     "longest literal wins at a position",
			literals: []string{"1234-5678-9012", "1234-5678-9012-3456"},
			text:     "card 1234-5678-9012-3456",
			expected: []span{{5, 24}},
		},
		{
			name:     "longer literal claims text before an earlier shorter one",
			literals: []string{"ab", "bcd"},
			text:     "abcd",
			expected: []span{{1, 4}},
		},
		{
			name:     "shorter literal still masks unclaimed occurrences",
			literals: []string{"ab", "bcd"},
			text:     "ab bcd",
			expected: []span{{0, 2}, {3, 6}},
		},
		{
			name:     "repeated occurrences",
			literals: []string{"aa"},
			text:     "aaaaa",
			expected: []span{{0, 2}, {2, 4}},
		},
		{
			name:     "multibyte text",
			literals: []string{"홍길동"},
			text:     "이름 홍길동 님",
			expected: []span{{7, 16}},
		},
		{
			name:     "placeholder is never matched into",
			literals: []string{"**12", "*1"},
			text:     "****12",
			expected: nil,
		},
		{
			name:     "match may not run into a placeholder",
			literals: []string{"x*"},
			text:     "x****",
			expected: nil,
		},
		{
			name:     "no literals",
			literals: nil,
			text:     "anything",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, matcherFor(tt.literals...).find(tt.text))
		})
	}
}

func TestLiteralMatcher_LongestFirstExample(t *testing.T) {
	m := matcherFor("1234-5678-9012", "1234-5678-9012-3456")
	text := "card 1234-5678-9012-3456"
	assert.Equal(t, "card ****", maskText(text, m.find(text)))
}

func TestLiteralMatcher_ShorterLiteralNeverSplitsLonger(t *testing.T) {
	tests := []struct {
		literals []string
		text     string
		expected string
	}{
		{[]string{"bcab", "ab"}, "abcab", "a****"},
		{[]string{"5678", "1234-5678-9012-3456"}, "card 1234-5678-9012-3456", "card ****"},
		{[]string{"ab", "bcab"}, "abcab", "a****"},
		{[]string{"5678-9012", "1234-5678"}, "1234-5678-9012", "****-9012"},
		{[]string{"길동", "홍길동"}, "김길동 홍길동", "김**** ****"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			m := matcherFor(tt.literals...)
			assert.Equal(t, tt.expected, maskText(tt.text, m.find(tt.text)))
		})
	}
}

// rawParagraph lays segments out back to back so raw offsets equal text offsets
func rawParagraph(pieces ...string) (ooxml.Paragraph, []byte) {
	var p ooxml.Paragraph
	var raw []byte
	for _, piece := range pieces {
		if piece == "\t" {
			p.Segments = append(p.Segments, ooxml.Segment{Text: piece, Start: -1, End: -1})
			continue
		}
		start := int64(len(raw))
		raw = append(raw, piece...)
		p.Segments = append(p.Segments, ooxml.Segment{Text: piece, Start: start, End: int64(len(raw))})
	}
	return p, raw
}

func TestMaskParagraph_CrossRun(t *testing.T) {
	p, raw := rawParagraph("phone 010-", "1234-", "5678 end")
	m := matcherFor("010-1234-5678")

	edits, count := maskParagraph(p, m.find(p.Text()), placeholder)
	require.Equal(t, 1, count)
	require.Len(t, edits, 3)
	assert.Equal(t, "phone ****", edits[0].text)
	assert.Equal(t, "", edits[1].text)
	assert.Equal(t, " end", edits[2].text)

	assert.Equal(t, "phone **** end", string(splice(raw, edits)))
}

func TestMaskParagraph_SeparatorStays(t *testing.T) {
	p, _ := rawParagraph("a-", "\t", "-b")
	m := matcherFor("-\t-")

	edits, count := maskParagraph(p, m.find(p.Text()), placeholder)
	assert.Equal(t, 1, count)
	require.Len(t, edits, 2)
	assert.Equal(t, "a****", edits[0].text)
	assert.Equal(t, "b", edits[1].text)
}

func TestMaskParagraph_OnlySeparatorMatched(t *testing.T) {
	p, _ := rawParagraph("a", "\t", "b")
	m := newLiteralMatcher([]string{"\t"}, placeholder)

	edits, count := maskParagraph(p, m.find(p.Text()), placeholder)
	assert.Zero(t, count)
	assert.Empty(t, edits)
}

func TestSplice_EscapesAndKeepsSurroundings(t *testing.T) {
	data := []byte(`<w:t>A&amp;B 010</w:t><w:t>x</w:t>`)
	start := int64(strings.Index(string(data), "A&amp;B"))
	end := start + int64(len("A&amp;B 010"))

	out := splice(data, []edit{{start: start, end: end, text: "A&B ****"}})
	assert.Equal(t, `<w:t>A&amp;B ****</w:t><w:t>x</w:t>`, string(out))
}

func genPieces() gopter.Gen {
	return gen.SliceOf(gen.RegexMatch(`[ab1-]{0,4}`))
}

func genLiterals() gopter.Gen {
	return gen.SliceOf(gen.RegexMatch(`[ab1-]{1,3}`))
}

func TestMaskingProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("segmented masking equals masking the joined text", prop.ForAll(
		func(pieces, literals []string) bool {
			p, raw := rawParagraph(pieces...)
			m := matcherFor(literals...)
			matches := m.find(p.Text())

			edits, _ := maskParagraph(p, matches, placeholder)
			return string(splice(raw, edits)) == maskText(p.Text(), matches)
		},
		genPieces(), genLiterals(),
	))

	properties.Property("no literal survives masking", prop.ForAll(
		func(pieces, literals []string) bool {
			text := strings.Join(pieces, "")
			m := matcherFor(literals...)
			masked := maskText(text, m.find(text))
			for _, part := range strings.Split(masked, placeholder) {
				for _, literal := range literals {
					if literal != "" && strings.Contains(part, literal) {
						return false
					}
				}
			}
			return true
		},
		genPieces(), genLiterals(),
	))

	properties.Property("masking is idempotent", prop.ForAll(
		func(pieces, literals []string) bool {
			text := strings.Join(pieces, "")
			m := matcherFor(literals...)
			once := maskText(text, m.find(text))
			return maskText(once, m.find(once)) == once
		},
		genPieces(), genLiterals(),
	))

	properties.TestingRun(t)
}
