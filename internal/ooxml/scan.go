// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package ooxml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Namespaces of the text markup, transitional and strict
var (
	wordNamespaces = map[string]bool{
		"http://schemas.openxmlformats.org/wordprocessingml/2006/main": true,
		"http://purl.oclc.org/ooxml/wordprocessingml/main":             true,
		"": true,
	}
	sheetNamespaces = map[string]bool{
		"http://schemas.openxmlformats.org/spreadsheetml/2006/main": true,
		"http://purl.oclc.org/ooxml/spreadsheetml/main":             true,
		"": true,
	}
)

// Segment is a piece of paragraph text. Editable segments carry the byte
// range of their character data within the part; separators synthesized from
// tab and break elements have Start and End of -1.
type Segment struct {
	Text  string
	Start int64
	End   int64
}

// Editable reports whether the segment maps to character data in the part
func (s Segment) Editable() bool {
	return s.Start >= 0
}

// Paragraph is the text of one paragraph container in document order
type Paragraph struct {
	Segments []Segment
}

// Text returns the concatenated paragraph text
func (p Paragraph) Text() string {
	var b strings.Builder
	for _, s := range p.Segments {
		b.WriteString(s.Text)
	}
	return b.String()
}

// markup describes which elements group text and which hold it
type markup struct {
	namespaces map[string]bool
	container  string
	leaves     map[string]bool
	separators map[string]string // element -> text, only inside separatorParent
	sepParent  string
	excluded   map[string]bool // subtrees whose text is never shown
}

func markupFor(kind Kind, name string) (markup, error) {
	lower := strings.ToLower(name)

	switch kind {
	case KindDocx:
		return markup{
			namespaces: wordNamespaces,
			container:  "p",
			leaves:     map[string]bool{"t": true, "delText": true},
			separators: map[string]string{"tab": "\t", "br": "\n", "cr": "\n"},
			sepParent:  "r",
		}, nil

	case KindXlsx:
		m := markup{
			namespaces: sheetNamespaces,
			leaves:     map[string]bool{"t": true},
			excluded:   map[string]bool{"rPh": true},
		}
		switch {
		case lower == strings.ToLower(SheetSharedStrings):
			m.container = "si"
		case IsWorksheet(lower):
			m.container = "is"
		default:
			m.container = "text"
		}
		return m, nil
	}

	return markup{}, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
}

type frame struct {
	local    string
	space    string
	prefixes map[string]string
}

// ScanParagraphs streams the part and returns its paragraphs in the order
// their containers open. Nested containers form their own paragraphs.
func ScanParagraphs(kind Kind, name string, data []byte) ([]Paragraph, error) {
	m, err := markupFor(kind, name)
	if err != nil {
		return nil, err
	}

	type open struct {
		index int
		depth int
	}

	var (
		paragraphs   []Paragraph
		stack        []frame
		containers   []open
		leafDepth    = -1
		excludeDepth = -1
	)

	decoder := xml.NewDecoder(bytes.NewReader(data))
	for {
		start := decoder.InputOffset()
		token, err := decoder.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("XML parsing error in %s: %w", name, err)
		}
		end := decoder.InputOffset()

		switch t := token.(type) {
		case xml.StartElement:
			f := frame{local: t.Name.Local, prefixes: declaredPrefixes(t.Attr)}
			stack = append(stack, f)
			stack[len(stack)-1].space = resolvePrefix(stack, t.Name.Space)
			depth := len(stack)
			inMarkup := m.namespaces[stack[depth-1].space]

			if excludeDepth >= 0 || !inMarkup {
				continue
			}
			if m.excluded[t.Name.Local] {
				excludeDepth = depth
				continue
			}

			switch {
			case t.Name.Local == m.container:
				paragraphs = append(paragraphs, Paragraph{})
				containers = append(containers, open{index: len(paragraphs) - 1, depth: depth})
			case m.leaves[t.Name.Local] && len(containers) > 0:
				leafDepth = depth
			case len(containers) > 0 && depth >= 2 && stack[depth-2].local == m.sepParent:
				if sep, ok := m.separators[t.Name.Local]; ok {
					p := &paragraphs[containers[len(containers)-1].index]
					p.Segments = append(p.Segments, Segment{Text: sep, Start: -1, End: -1})
				}
			}

		case xml.EndElement:
			depth := len(stack)
			if depth == 0 {
				return nil, fmt.Errorf("XML parsing error in %s: unexpected end element </%s>", name, t.Name.Local)
			}
			if depth == excludeDepth {
				excludeDepth = -1
			}
			if depth == leafDepth {
				leafDepth = -1
			}
			if n := len(containers); n > 0 && containers[n-1].depth == depth {
				containers = containers[:n-1]
			}
			stack = stack[:depth-1]

		case xml.CharData:
			if leafDepth < 0 || excludeDepth >= 0 || len(containers) == 0 {
				continue
			}
			p := &paragraphs[containers[len(containers)-1].index]
			p.Segments = append(p.Segments, Segment{Text: string(t), Start: start, End: end})
		}
	}

	if len(stack) > 0 {
		return nil, fmt.Errorf("XML parsing error in %s: unexpected EOF inside <%s>", name, stack[len(stack)-1].local)
	}

	return paragraphs, nil
}

// declaredPrefixes collects xmlns declarations of an element
func declaredPrefixes(attrs []xml.Attr) map[string]string {
	var prefixes map[string]string
	for _, a := range attrs {
		switch {
		case a.Name.Space == "xmlns":
			if prefixes == nil {
				prefixes = make(map[string]string)
			}
			prefixes[a.Name.Local] = a.Value
		case a.Name.Space == "" && a.Name.Local == "xmlns":
			if prefixes == nil {
				prefixes = make(map[string]string)
			}
			prefixes[""] = a.Value
		}
	}
	return prefixes
}

// resolvePrefix finds the namespace bound to prefix in the element stack
func resolvePrefix(stack []frame, prefix string) string {
	if prefix == "xml" {
		return "http://www.w3.org/XML/1998/namespace"
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if ns, ok := stack[i].prefixes[prefix]; ok {
			return ns
		}
	}
	return ""
}
