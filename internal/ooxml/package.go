// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package ooxml

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// ErrUnsupportedKind is returned for document types other than DOCX and XLSX
var ErrUnsupportedKind = errors.New("unsupported document kind")

// ErrNoTextParts is returned when a package has none of the text-bearing parts
var ErrNoTextParts = errors.New("no text-bearing parts found")

// Kind is the type of Office package
type Kind int

const (
	// KindUnknown represents an unknown package type
	KindUnknown Kind = iota
	// KindDocx represents a Word document
	KindDocx
	// KindXlsx represents an Excel workbook
	KindXlsx
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindDocx:
		return "docx"
	case KindXlsx:
		return "xlsx"
	default:
		return "unknown"
	}
}

// Extension returns the file extension expected for the kind
func (k Kind) Extension() string {
	switch k {
	case KindDocx:
		return ".docx"
	case KindXlsx:
		return ".xlsx"
	default:
		return ""
	}
}

// Format returns a human readable format name
func (k Kind) Format() string {
	switch k {
	case KindDocx:
		return "Word Document"
	case KindXlsx:
		return "Excel Spreadsheet"
	default:
		return "Unknown"
	}
}

// KindFromPath infers the kind from the file extension
func KindFromPath(path string) (Kind, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".docx":
		return KindDocx, nil
	case ".xlsx":
		return KindXlsx, nil
	default:
		return KindUnknown, fmt.Errorf("%w: %q", ErrUnsupportedKind, filepath.Ext(path))
	}
}

// ParseKind maps a caller supplied document type to a kind. Both the short
// application names ("word", "excel") and extensions are accepted.
func ParseKind(docType string) (Kind, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(docType), ".")) {
	case "word", "docx":
		return KindDocx, nil
	case "excel", "xlsx":
		return KindXlsx, nil
	default:
		return KindUnknown, fmt.Errorf("%w: %q", ErrUnsupportedKind, docType)
	}
}

// ResolveKind checks a declared type against the file extension. An empty
// declared type is inferred from the extension.
func ResolveKind(path, docType string) (Kind, error) {
	fromPath, err := KindFromPath(path)
	if err != nil {
		return KindUnknown, err
	}
	if strings.TrimSpace(docType) == "" {
		return fromPath, nil
	}
	declared, err := ParseKind(docType)
	if err != nil {
		return KindUnknown, err
	}
	if declared != fromPath {
		return KindUnknown, fmt.Errorf("%w: type %q requires %s, got %q",
			ErrUnsupportedKind, docType, declared.Extension(), filepath.Ext(path))
	}
	return declared, nil
}

// Archive is read access to the parts of a package
type Archive interface {
	PartNames() []string
	ReadPart(name string) ([]byte, error)
}

// Part is one entry of a package. Header is a copy of the original zip header.
type Part struct {
	Header zip.FileHeader
	Role   Role

	file *zip.File
	data []byte
	read bool
}

// Name returns the part name
func (p *Part) Name() string {
	return p.Header.Name
}

// File returns the underlying archive entry for raw copying
func (p *Part) File() *zip.File {
	return p.file
}

// Read returns the decompressed part content. The result is cached.
func (p *Part) Read() ([]byte, error) {
	if p.read {
		return p.data, nil
	}
	rc, err := p.file.Open()
	if err != nil {
		return nil, fmt.Errorf("open part %s: %w", p.Name(), err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read part %s: %w", p.Name(), err)
	}
	p.data = data
	p.read = true
	return data, nil
}

// Package is an opened Office document: its parts in archive order, their
// headers and the archive comment. A Package is not safe for concurrent use.
type Package struct {
	Path    string
	Kind    Kind
	Comment string
	Parts   []*Part

	reader *zip.ReadCloser
	index  map[string]*Part
}

// OpenPackage opens the archive at path. Close releases it.
func OpenPackage(path string, kind Kind) (*Package, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open package: %w", err)
	}

	pkg := &Package{
		Path:    path,
		Kind:    kind,
		Comment: reader.Comment,
		Parts:   make([]*Part, 0, len(reader.File)),
		reader:  reader,
		index:   make(map[string]*Part, len(reader.File)),
	}

	for _, f := range reader.File {
		part := &Part{Header: f.FileHeader, Role: Classify(kind, f.Name), file: f}
		pkg.Parts = append(pkg.Parts, part)
		if _, exists := pkg.index[f.Name]; !exists {
			pkg.index[f.Name] = part
		}
	}

	return pkg, nil
}

// Close releases the archive
func (p *Package) Close() error {
	if p.reader == nil {
		return nil
	}
	err := p.reader.Close()
	p.reader = nil
	return err
}

// Part returns the part with the given name, or nil
func (p *Package) Part(name string) *Part {
	return p.index[name]
}

// PartNames returns part names in archive order
func (p *Package) PartNames() []string {
	names := make([]string, len(p.Parts))
	for i, part := range p.Parts {
		names[i] = part.Name()
	}
	return names
}

// ReadPart implements Archive
func (p *Package) ReadPart(name string) ([]byte, error) {
	part := p.Part(name)
	if part == nil {
		return nil, fmt.Errorf("part %s not found", name)
	}
	return part.Read()
}

// TextParts returns the text-bearing parts in archive order
func (p *Package) TextParts() []*Part {
	var parts []*Part
	for _, part := range p.Parts {
		if part.Role != RoleOpaque {
			parts = append(parts, part)
		}
	}
	return parts
}

// HasPrimary reports whether a part classified as primary is present. Part
// names are matched case-insensitively, as Classify does.
func (p *Package) HasPrimary() bool {
	for _, part := range p.Parts {
		if part.Role == RolePrimary {
			return true
		}
	}
	return false
}
