// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that end up
// in URLs and filesystem paths. Using these validators prevents path
// traversal out of the destination volume and malformed repository
// references reaching the hub.
package validation

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// repoIDPattern matches "<namespace>/<name>" repository ids.
// Each segment allows letters, digits, dots, hyphens and underscores,
// the character set the hub accepts for organization and model names.
var repoIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]*/[A-Za-z0-9][A-Za-z0-9._\-]*$`)

// ValidateRepoID validates a model repository id.
//
// Valid ids have exactly two slash-separated segments, each starting
// with an alphanumeric character:
//
//	Comfy-Org/Qwen-Image_ComfyUI
//	stabilityai/stable-diffusion-3.5-large
//
// Returns an error if the id is empty or malformed.
func ValidateRepoID(repoID string) error {
	if repoID == "" {
		return fmt.Errorf("repository id is empty")
	}
	if !repoIDPattern.MatchString(repoID) {
		return fmt.Errorf("invalid repository id %q: expected '<namespace>/<name>'", repoID)
	}
	return nil
}

// ValidateFilename validates a file path within a repository.
//
// The filename later becomes a relative path beneath a shared volume,
// so anything that could escape the volume root is rejected:
//   - empty paths
//   - absolute paths
//   - "." or ".." path elements
//   - backslashes (never valid in hub paths, avoids Windows surprises)
func ValidateFilename(filename string) error {
	if filename == "" {
		return fmt.Errorf("filename is empty")
	}
	if strings.HasPrefix(filename, "/") {
		return fmt.Errorf("invalid filename %q: absolute paths are not allowed", filename)
	}
	if strings.Contains(filename, "\\") {
		return fmt.Errorf("invalid filename %q: backslashes are not allowed", filename)
	}
	for _, element := range strings.Split(filename, "/") {
		if element == "" {
			return fmt.Errorf("invalid filename %q: empty path element", filename)
		}
		if element == "." || element == ".." {
			return fmt.Errorf("invalid filename %q: relative path elements are not allowed", filename)
		}
	}
	if cleaned := path.Clean(filename); cleaned != filename {
		return fmt.Errorf("invalid filename %q: not a clean path", filename)
	}
	return nil
}

// ValidateRevision validates a repository revision (branch, tag, or
// commit). An empty revision is fine; the caller substitutes the
// default branch.
func ValidateRevision(revision string) error {
	if revision == "" {
		return nil
	}
	if strings.ContainsAny(revision, "/\\ ") {
		return fmt.Errorf("invalid revision %q: must not contain slashes or spaces", revision)
	}
	return nil
}
