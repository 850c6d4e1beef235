// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package redactors

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/smo-cookie/detect-and-match2/internal/observability"
	"github.com/smo-cookie/detect-and-match2/internal/paths"
)

// DefaultMarker is inserted between the stem and the extension of a masked copy
const DefaultMarker = "(masked)"

// OutputStructureManager decides where masked copies go and writes them atomically
type OutputStructureManager struct {
	// baseOutputDir is the directory for masked copies; empty means next to the input
	baseOutputDir string

	// marker is inserted between stem and extension
	marker string

	// observer handles observability and metrics
	observer *observability.StandardObserver
}

// NewOutputStructureManager creates a new OutputStructureManager
func NewOutputStructureManager(baseOutputDir, marker string, observer *observability.StandardObserver) (*OutputStructureManager, error) {
	if err := paths.ValidatePath(baseOutputDir); err != nil {
		return nil, err
	}
	if marker == "" {
		marker = DefaultMarker
	}
	if strings.ContainsAny(marker, `/\`) {
		return nil, fmt.Errorf("output marker %q must not contain path separators", marker)
	}

	cleanPath := baseOutputDir
	if cleanPath != "" {
		cleanPath = filepath.Clean(cleanPath)
	}

	if observer == nil {
		observer = observability.NewStandardObserver(observability.ObservabilityMetrics, nil)
	}

	return &OutputStructureManager{
		baseOutputDir: cleanPath,
		marker:        marker,
		observer:      observer,
	}, nil
}

// MaskedOutputPath returns <dir>/<stem><marker><ext> where dir is outputDir or
// the directory of inputPath
func MaskedOutputPath(inputPath, outputDir, marker string) string {
	base := filepath.Base(inputPath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	dir := outputDir
	if dir == "" {
		dir = filepath.Dir(inputPath)
	}
	return filepath.Join(dir, stem+marker+ext)
}

// OutputPath returns the masked copy path for originalPath
func (osm *OutputStructureManager) OutputPath(originalPath string) (string, error) {
	if originalPath == "" {
		return "", fmt.Errorf("original path cannot be empty")
	}
	return MaskedOutputPath(filepath.Clean(originalPath), osm.baseOutputDir, osm.marker), nil
}

// EnsureDirectoryExists creates the directory structure for the given path if it doesn't exist
func (osm *OutputStructureManager) EnsureDirectoryExists(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	dir := filepath.Dir(path)

	if info, err := os.Stat(dir); err == nil {
		if !info.IsDir() {
			return fmt.Errorf("path exists but is not a directory: %s", dir)
		}
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	return nil
}

// WriteAtomic streams write into a temporary file next to destPath and renames
// it into place once write and sync succeed. On any failure the temporary
// file is removed and destPath is left untouched. sourcePath, when set,
// supplies the file mode.
func (osm *OutputStructureManager) WriteAtomic(destPath, sourcePath string, write func(w io.Writer) error) (err error) {
	finishTiming := osm.observer.StartTiming("output_manager", "write_atomic", destPath)
	defer func() {
		metadata := map[string]interface{}{"source_path": sourcePath}
		if err != nil {
			metadata["error"] = err.Error()
		}
		finishTiming(err == nil, metadata)
	}()

	if err := osm.EnsureDirectoryExists(destPath); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(destPath), "."+filepath.Base(destPath)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()

	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err = write(tmp); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temporary file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	// the masked copy keeps the input's permission bits
	if sourcePath != "" {
		if info, statErr := os.Stat(sourcePath); statErr == nil {
			if err = os.Chmod(tmpPath, info.Mode().Perm()); err != nil {
				return fmt.Errorf("failed to set file mode: %w", err)
			}
		}
	}

	if err = os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to move masked file into place: %w", err)
	}
	return nil
}

// GetComponentName returns the component name for observability
func (osm *OutputStructureManager) GetComponentName() string {
	return "output_manager"
}
