// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package volume

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolve_CreatesMissingVolume(t *testing.T) {
	base := t.TempDir()
	m := NewLocalManager(base)

	root, err := m.Resolve("comfy-model", true)
	if err != nil {
		t.Fatalf("Resolve() unexpected error: %v", err)
	}
	if root != filepath.Join(base, "comfy-model") {
		t.Errorf("root = %q, want under base dir", root)
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		t.Fatalf("volume directory was not created: %v", err)
	}
}

func TestResolve_MissingVolumeWithoutCreate(t *testing.T) {
	m := NewLocalManager(t.TempDir())
	if _, err := m.Resolve("nope", false); err == nil {
		t.Error("expected error for missing volume")
	}
}

func TestResolve_ExistingVolumeIsReused(t *testing.T) {
	base := t.TempDir()
	m := NewLocalManager(base)

	first, err := m.Resolve("weights", true)
	if err != nil {
		t.Fatalf("first Resolve() error: %v", err)
	}
	// Lookup without create must find the same root.
	second, err := m.Resolve("weights", false)
	if err != nil {
		t.Fatalf("second Resolve() error: %v", err)
	}
	if first != second {
		t.Errorf("resolved roots differ: %q vs %q", first, second)
	}
}

func TestResolve_RejectsInvalidNames(t *testing.T) {
	m := NewLocalManager(t.TempDir())
	for _, name := range []string{"", "a/b", `a\b`, ".", ".."} {
		if _, err := m.Resolve(name, true); err == nil {
			t.Errorf("Resolve(%q) expected error", name)
		}
	}
}

func TestResolve_FileCollision(t *testing.T) {
	base := t.TempDir()
	if err := os.WriteFile(filepath.Join(base, "taken"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	m := NewLocalManager(base)
	if _, err := m.Resolve("taken", true); err == nil {
		t.Error("expected error when volume path is a regular file")
	}
}

func TestCommit(t *testing.T) {
	base := t.TempDir()
	m := NewLocalManager(base)
	root, err := m.Resolve("v", true)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Commit(root); err != nil {
		t.Errorf("Commit() unexpected error: %v", err)
	}
}

func TestNewLocalManager_EnvFallback(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(BaseDirEnvVar, dir)
	m := NewLocalManager("")
	if m.BaseDir() != dir {
		t.Errorf("BaseDir() = %q, want %q from env", m.BaseDir(), dir)
	}
}
