// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package office

import (
	"bytes"
	"encoding/xml"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/smo-cookie/detect-and-match2/internal/ooxml"
)

// span is a half-open byte range of paragraph text
type span struct {
	start, end int
}

// literalMatcher finds mask literals in text. Literals claim text longest
// first, so a shorter literal never splits a longer one; placeholder
// occurrences are never matched into.
type literalMatcher struct {
	placeholder string
	literals    []string // longest first, then lexicographic
}

func newLiteralMatcher(ordered []string, placeholder string) *literalMatcher {
	m := &literalMatcher{placeholder: placeholder}
	for _, literal := range ordered {
		if literal == "" || literal == placeholder {
			continue
		}
		m.literals = append(m.literals, literal)
	}
	return m
}

// empty reports whether the matcher can never match
func (m *literalMatcher) empty() bool {
	return len(m.literals) == 0
}

// find returns the non-overlapping matches of text sorted by position. Each
// literal, longest first, claims its occurrences that do not overlap text
// already claimed by a longer literal or a placeholder.
func (m *literalMatcher) find(text string) []span {
	if m.empty() || text == "" {
		return nil
	}

	claimed := m.placeholderSpans(text)
	reserved := make(map[span]bool, len(claimed))
	for _, r := range claimed {
		reserved[r] = true
	}

	for _, literal := range m.literals {
		offset := 0
		for offset < len(text) {
			idx := strings.Index(text[offset:], literal)
			if idx < 0 {
				break
			}
			candidate := span{start: offset + idx, end: offset + idx + len(literal)}
			pos, free := freeAt(claimed, candidate)
			if !free {
				_, size := utf8.DecodeRuneInString(text[candidate.start:])
				offset = candidate.start + size
				continue
			}
			claimed = append(claimed, span{})
			copy(claimed[pos+1:], claimed[pos:])
			claimed[pos] = candidate
			offset = candidate.end
		}
	}

	var matches []span
	for _, c := range claimed {
		if !reserved[c] {
			matches = append(matches, c)
		}
	}
	return matches
}

// freeAt reports whether s overlaps none of the sorted, disjoint spans and
// returns the index at which s would be inserted
func freeAt(spans []span, s span) (int, bool) {
	pos := sort.Search(len(spans), func(i int) bool { return spans[i].end > s.start })
	if pos < len(spans) && spans[pos].start < s.end {
		return pos, false
	}
	return pos, true
}

// placeholderSpans returns the leftmost non-overlapping placeholder occurrences
func (m *literalMatcher) placeholderSpans(text string) []span {
	if m.placeholder == "" {
		return nil
	}
	var spans []span
	offset := 0
	for {
		idx := strings.Index(text[offset:], m.placeholder)
		if idx < 0 {
			return spans
		}
		start := offset + idx
		spans = append(spans, span{start: start, end: start + len(m.placeholder)})
		offset = start + len(m.placeholder)
	}
}

// edit replaces the raw byte range [start, end) of a part
type edit struct {
	start, end int64
	text       string
}

// maskParagraph applies matches to the paragraph's segments. The placeholder
// is written into the first editable segment a match touches; the matched
// characters of every other editable segment are removed. Separators stay.
// The count covers matches that touched at least one editable segment.
func maskParagraph(p ooxml.Paragraph, matches []span, placeholder string) ([]edit, int) {
	if len(matches) == 0 {
		return nil, 0
	}

	var edits []edit
	offset := 0
	anchored := make([]bool, len(matches))

	for _, seg := range p.Segments {
		segStart, segEnd := offset, offset+len(seg.Text)
		offset = segEnd
		if !seg.Editable() || segStart == segEnd {
			continue
		}

		var b strings.Builder
		cursor := segStart
		changed := false
		for mi, m := range matches {
			if m.end <= segStart || m.start >= segEnd {
				continue
			}
			from, to := max(m.start, segStart), min(m.end, segEnd)
			b.WriteString(seg.Text[cursor-segStart : from-segStart])
			if !anchored[mi] {
				b.WriteString(placeholder)
				anchored[mi] = true
			}
			cursor = to
			changed = true
		}
		if !changed {
			continue
		}
		b.WriteString(seg.Text[cursor-segStart:])
		edits = append(edits, edit{start: seg.Start, end: seg.End, text: b.String()})
	}

	count := 0
	for _, ok := range anchored {
		if ok {
			count++
		}
	}
	return edits, count
}

// maskPart finds and replaces literals across all paragraphs of a part and
// returns the new content with the number of replacements. Bytes outside the
// edited character data are kept exactly.
func maskPart(data []byte, paragraphs []ooxml.Paragraph, matcher *literalMatcher, placeholder string) ([]byte, int) {
	var edits []edit
	replacements := 0

	for _, p := range paragraphs {
		paragraphEdits, count := maskParagraph(p, matcher.find(p.Text()), placeholder)
		replacements += count
		edits = append(edits, paragraphEdits...)
	}

	if len(edits) == 0 {
		return data, replacements
	}
	return splice(data, edits), replacements
}

// splice rewrites the raw ranges of data with escaped edit text
func splice(data []byte, edits []edit) []byte {
	sort.Slice(edits, func(i, j int) bool { return edits[i].start < edits[j].start })

	var out bytes.Buffer
	out.Grow(len(data))
	var last int64
	for _, e := range edits {
		out.Write(data[last:e.start])
		_ = xml.EscapeText(&out, []byte(e.text))
		last = e.end
	}
	out.Write(data[last:])
	return out.Bytes()
}
