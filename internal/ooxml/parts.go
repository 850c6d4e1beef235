// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package ooxml

import (
	"path"
	"regexp"
	"strings"
)

// Role classifies a part for masking
type Role int

const (
	// RoleOpaque parts are copied unchanged
	RoleOpaque Role = iota
	// RolePrimary is the main text part of the package
	RolePrimary
	// RoleText parts carry secondary text such as headers or comments
	RoleText
)

// String returns the string representation of the role
func (r Role) String() string {
	switch r {
	case RolePrimary:
		return "primary"
	case RoleText:
		return "text"
	default:
		return "opaque"
	}
}

// Well-known part names
const (
	WordDocument       = "word/document.xml"
	WordComments       = "word/comments.xml"
	WordFootnotes      = "word/footnotes.xml"
	WordEndnotes       = "word/endnotes.xml"
	SheetSharedStrings = "xl/sharedStrings.xml"
	SheetWorkbook      = "xl/workbook.xml"
	SheetWorkbookRels  = "xl/_rels/workbook.xml.rels"
	DocumentAppProps   = "docProps/app.xml"
)

var (
	headerFooterRe = regexp.MustCompile(`^(header|footer)\d*\.xml$`)
	worksheetRe    = regexp.MustCompile(`^sheet\d+\.xml$`)
	sheetCommentRe = regexp.MustCompile(`^comments\d*\.xml$`)
)

// PrimaryPart returns the name of the primary text part for kind
func PrimaryPart(kind Kind) string {
	switch kind {
	case KindDocx:
		return WordDocument
	case KindXlsx:
		return SheetSharedStrings
	default:
		return ""
	}
}

// Classify determines whether a part carries text that may be masked.
// Part names are compared case-insensitively.
func Classify(kind Kind, name string) Role {
	lower := strings.ToLower(name)
	dir, base := path.Split(lower)

	switch kind {
	case KindDocx:
		switch {
		case lower == WordDocument:
			return RolePrimary
		case lower == WordComments, lower == WordFootnotes, lower == WordEndnotes:
			return RoleText
		case dir == "word/" && headerFooterRe.MatchString(base):
			return RoleText
		}

	case KindXlsx:
		switch {
		case lower == strings.ToLower(SheetSharedStrings):
			return RolePrimary
		case dir == "xl/worksheets/" && worksheetRe.MatchString(base):
			return RoleText
		case dir == "xl/" && sheetCommentRe.MatchString(base):
			return RoleText
		}
	}

	return RoleOpaque
}

// IsWorksheet reports whether name is a worksheet part
func IsWorksheet(name string) bool {
	dir, base := path.Split(strings.ToLower(name))
	return dir == "xl/worksheets/" && worksheetRe.MatchString(base)
}
