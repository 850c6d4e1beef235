// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package paths

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetConfigDir_EnvOverride(t *testing.T) {
	t.Setenv("DOCMASK_CONFIG_DIR", "/opt/docmask")
	if got := GetConfigDir(); got != "/opt/docmask" {
		t.Errorf("expected override, got %q", got)
	}
	if got := GetConfigFile(); got != filepath.Join("/opt/docmask", "config.yaml") {
		t.Errorf("unexpected config file %q", got)
	}
}

func TestResolvePath_FollowsSymlinks(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "report.docx")
	if err := os.WriteFile(target, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link.docx")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	a, err := ResolvePath(target)
	if err != nil {
		t.Fatal(err)
	}
	b, err := ResolvePath(link)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("expected same resolved path, got %q and %q", a, b)
	}
}

func TestResolvePath_MissingFileResolvesDirectory(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	if err := os.Mkdir(out, 0o755); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link")
	if err := os.Symlink(out, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	a, err := ResolvePath(filepath.Join(out, "memo(masked).docx"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := ResolvePath(filepath.Join(link, "memo(masked).docx"))
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("expected same resolved path, got %q and %q", a, b)
	}
}

func TestValidatePath(t *testing.T) {
	if err := ValidatePath(""); err != nil {
		t.Errorf("empty path should be valid: %v", err)
	}
	if err := ValidatePath("out\x00dir"); err == nil {
		t.Error("expected null byte to be rejected")
	}
}
