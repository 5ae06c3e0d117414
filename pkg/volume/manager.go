// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package volume manages named shared storage volumes.

A volume is a durable directory tree owned by the compute platform and
mounted read/write into running jobs, usually by several jobs at once.
This package maps logical volume names onto directories under a single
base directory and provides the durability commit used by the placement
engine after an artifact lands.

Volumes are created lazily on first reference and never deleted here;
removal is an explicit operator action outside this tool.
*/
package volume

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidName marks volume names that are not a single path component.
// Callers use errors.Is to distinguish bad input from filesystem failures.
var ErrInvalidName = errors.New("invalid volume name")

const (
	// DefaultBaseDir is where volumes are mounted when no base directory
	// is configured. Matches the platform's default mount layout.
	DefaultBaseDir = "/volumes"

	// BaseDirEnvVar overrides the base directory, useful inside jobs
	// where the platform mounts volumes somewhere else.
	BaseDirEnvVar = "MODELVAULT_VOLUME_BASE"

	dirPerm = 0o755
)

// Manager resolves logical volume names to mounted directory roots.
type Manager interface {
	// Resolve returns the root directory for the named volume,
	// creating it when createIfMissing is true.
	Resolve(name string, createIfMissing bool) (string, error)

	// Commit flushes the volume's directory metadata so files renamed
	// into place are visible to subsequently scheduled jobs.
	Commit(root string) error
}

// LocalManager implements Manager over a base directory on the local
// (or platform-mounted) filesystem.
type LocalManager struct {
	baseDir string
}

// NewLocalManager creates a Manager rooted at baseDir.
// An empty baseDir falls back to MODELVAULT_VOLUME_BASE, then DefaultBaseDir.
func NewLocalManager(baseDir string) *LocalManager {
	if baseDir == "" {
		baseDir = os.Getenv(BaseDirEnvVar)
	}
	if baseDir == "" {
		baseDir = DefaultBaseDir
	}
	return &LocalManager{baseDir: baseDir}
}

// BaseDir returns the directory under which volumes live.
func (m *LocalManager) BaseDir() string {
	return m.baseDir
}

// Resolve returns the root directory for the named volume.
//
// # Description
//
// Validates the volume name, maps it under the base directory, and
// optionally provisions it. A missing volume with createIfMissing=false
// is an error, mirroring the platform's lookup semantics.
//
// # Inputs
//
//   - name: Logical volume name (single path component, no separators)
//   - createIfMissing: Provision the volume directory when absent
//
// # Outputs
//
//   - string: Absolute root path of the volume
//   - error: Invalid name, missing volume, or filesystem failure
func (m *LocalManager) Resolve(name string, createIfMissing bool) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}

	root := filepath.Join(m.baseDir, name)
	info, err := os.Stat(root)
	switch {
	case err == nil:
		if !info.IsDir() {
			return "", fmt.Errorf("volume path %s exists but is not a directory", root)
		}
		return root, nil
	case os.IsNotExist(err):
		if !createIfMissing {
			return "", fmt.Errorf("volume %q does not exist", name)
		}
		if mkErr := os.MkdirAll(root, dirPerm); mkErr != nil {
			return "", fmt.Errorf("failed to create volume %q: %w", name, mkErr)
		}
		return root, nil
	default:
		return "", fmt.Errorf("failed to stat volume %q: %w", name, err)
	}
}

// Commit fsyncs the volume root so completed renames are durable.
func (m *LocalManager) Commit(root string) error {
	dir, err := os.Open(root)
	if err != nil {
		return fmt.Errorf("failed to open volume root for commit: %w", err)
	}
	defer dir.Close()

	if err := dir.Sync(); err != nil {
		return fmt.Errorf("failed to sync volume root: %w", err)
	}
	return nil
}

// validateName rejects names that would escape the base directory.
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidName)
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("%w: %q must be a single path component", ErrInvalidName, name)
	}
	return nil
}

// SyncDir fsyncs an arbitrary directory. Used after renaming an artifact
// into a subdirectory so the directory entry itself is durable.
func SyncDir(path string) error {
	dir, err := os.Open(path)
	if err != nil {
		return err
	}
	defer dir.Close()
	return dir.Sync()
}
