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
Package placement preserves remote model artifacts into shared volumes.

# Problem Statement

Model files for the image-generation stack are multi-gigabyte artifacts
hosted on the Hugging Face Hub. They must land at deterministic paths
inside shared volumes that several concurrent jobs mount read/write, and
they must never be re-downloaded when a valid copy is already present.
The same preserve call is reachable from three entry points (one-shot
CLI, the deployed placement service, and the web form), any of which may
race a retry of itself.

# Solution

The engine treats the filesystem as the only record of placement state:

	Preserve(ref, dest)
	    │
	    ├── resolve volume root (create volume if missing)
	    ├── resolve destination path: root/subdir/basename(filename)
	    ├── stat destination
	    │     ├── directory        → CONFIGURATION_INVALID
	    │     └── file, size match → reuse, zero payload transfer
	    ├── download into a temp file in the destination directory
	    ├── fsync + atomic rename onto the final path
	    └── commit the volume before reporting success

Because the temp file lives in the destination directory, the final move
is a same-filesystem rename. Two racing preservations of the same
artifact each download into distinct temp files and the loser's rename
simply replaces an identical file; no reader ever observes a partial
artifact at the final path. A killed job leaves at most a stray
.*.partial file.

The engine performs no retries of its own. A failed invocation is safe
to rerun: the size check makes the whole operation idempotent.

# Destination Categories

Artifacts are filed under the category subdirectories the inference
stack loads from (checkpoints, loras, text_encoders, ...). An explicit
subdir must be one of these; when omitted, the category is inferred from
the path components of the remote filename.
*/
package placement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/ModelVault/pkg/hub"
	"github.com/AleutianAI/ModelVault/pkg/volume"
)

// ModelSubdirs are the category directories the inference stack loads
// models from. Preserved artifacts must land in one of these.
var ModelSubdirs = map[string]bool{
	"checkpoints":      true,
	"diffusion_models": true,
	"loras":            true,
	"text_encoders":    true,
	"audio_encoders":   true,
	"clip":             true,
	"clip_vision":      true,
	"controlnet":       true,
	"vae":              true,
	"embeddings":       true,
	"upscale_models":   true,
}

// SortedModelSubdirs returns the category names in stable order for
// error messages and UI dropdowns.
func SortedModelSubdirs() []string {
	names := make([]string, 0, len(ModelSubdirs))
	for name := range ModelSubdirs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// -----------------------------------------------------------------------------
// Data Types
// -----------------------------------------------------------------------------

// Destination names where an artifact should live.
type Destination struct {
	// VolumeName is the logical name of the shared storage volume.
	VolumeName string

	// Subdir is the category directory under the volume root. Empty
	// means infer the category from the remote filename.
	Subdir string
}

// Request is the wire form of a preserve call, shared by every
// invocation adapter. All adapters expose exactly these parameters.
type Request struct {
	RepoID            string `json:"repo_id" binding:"required"`
	Filename          string `json:"filename" binding:"required"`
	Revision          string `json:"revision,omitempty"`
	DestinationSubdir string `json:"destination_subdir,omitempty"`
	Volume            string `json:"volume,omitempty"`
}

// ModelReference converts the request into a hub reference.
func (r Request) ModelReference() hub.ModelReference {
	return hub.ModelReference{
		RepoID:   r.RepoID,
		Filename: r.Filename,
		Revision: r.Revision,
	}
}

// Destination converts the request into a placement destination,
// falling back to defaultVolume when none is named.
func (r Request) Destination(defaultVolume string) Destination {
	name := r.Volume
	if name == "" {
		name = defaultVolume
	}
	return Destination{VolumeName: name, Subdir: r.DestinationSubdir}
}

// Result reports the outcome of a successful preserve call.
type Result struct {
	// Path is the final artifact path inside the volume.
	Path string `json:"destination"`

	// SizeBytes is the size of the artifact at Path.
	SizeBytes int64 `json:"size_bytes"`

	// Reused is true when a valid copy was already present and no
	// payload was transferred.
	Reused bool `json:"reused"`

	// CompletedAt is when the placement finished, UTC.
	CompletedAt time.Time `json:"completed_at"`
}

// -----------------------------------------------------------------------------
// Interface Definition
// -----------------------------------------------------------------------------

// Engine is the placement contract every invocation adapter calls.
//
// Implementations must be safe for concurrent use: multiple jobs may
// preserve the same artifact at once.
type Engine interface {
	// Preserve ensures the referenced artifact exists at its
	// deterministic path inside the destination volume, fetching only
	// when absent or stale.
	Preserve(ctx context.Context, ref hub.ModelReference, dest Destination) (*Result, error)

	// SetProgressCallback sets the transfer progress callback.
	// Pass nil to disable progress reporting.
	SetProgressCallback(callback hub.ProgressFunc)
}

// -----------------------------------------------------------------------------
// Struct Definition
// -----------------------------------------------------------------------------

// DefaultEngine implements Engine against a hub client and a volume manager.
type DefaultEngine struct {
	hub     hub.Client
	volumes volume.Manager

	mu       sync.RWMutex
	progress hub.ProgressFunc
}

// NewEngine creates a placement engine with the given dependencies.
//
// # Description
//
// Both dependencies are injected so tests can run against a fake hub
// and a temp-directory volume manager. Production wiring uses
// hub.NewClient and volume.NewLocalManager.
//
// # Inputs
//
//   - hubClient: Fetch boundary for remote artifacts
//   - volumes: Resolver for named shared volumes
//
// # Outputs
//
//   - *DefaultEngine: Ready-to-use engine
func NewEngine(hubClient hub.Client, volumes volume.Manager) *DefaultEngine {
	return &DefaultEngine{
		hub:     hubClient,
		volumes: volumes,
	}
}

// SetProgressCallback sets the callback receiving transfer progress.
func (e *DefaultEngine) SetProgressCallback(callback hub.ProgressFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.progress = callback
}

// -----------------------------------------------------------------------------
// Interface Methods
// -----------------------------------------------------------------------------

// Preserve ensures the artifact exists at its destination path.
//
// # Description
//
// Implements the placement discipline described in the package comment.
// The metadata size check runs before any payload transfer, so a repeat
// call for an already-preserved artifact costs one HEAD request.
//
// # Inputs
//
//   - ctx: Context for cancellation; a cancelled transfer leaves only a
//     temporary file, never a partial final artifact
//   - ref: The remote artifact to preserve
//   - dest: Target volume and category subdirectory
//
// # Outputs
//
//   - *Result: Final path, size, and whether an existing copy was reused
//   - error: *Error typed NOT_FOUND, TRANSFER_FAILED, STORAGE_FAILED,
//     or CONFIGURATION_INVALID
func (e *DefaultEngine) Preserve(ctx context.Context, ref hub.ModelReference, dest Destination) (*Result, error) {
	if err := ref.Validate(); err != nil {
		return nil, &Error{Type: ErrorConfiguration, Message: err.Error()}
	}

	root, err := e.resolveVolume(dest.VolumeName)
	if err != nil {
		return nil, err
	}

	destPath, err := e.resolveDestination(root, ref.Filename, dest.Subdir)
	if err != nil {
		return nil, err
	}

	reused, size, err := e.checkExisting(ctx, ref, destPath)
	if err != nil {
		return nil, err
	}
	if reused {
		slog.Info("Artifact already preserved, skipping download",
			"ref", ref.String(), "path", destPath, "size", size)
		return &Result{
			Path:        destPath,
			SizeBytes:   size,
			Reused:      true,
			CompletedAt: time.Now().UTC(),
		}, nil
	}

	written, err := e.downloadAndCommit(ctx, ref, root, destPath)
	if err != nil {
		return nil, err
	}

	slog.Info("Artifact preserved", "ref", ref.String(), "path", destPath, "size", written)
	return &Result{
		Path:        destPath,
		SizeBytes:   written,
		Reused:      false,
		CompletedAt: time.Now().UTC(),
	}, nil
}

// -----------------------------------------------------------------------------
// Private Methods
// -----------------------------------------------------------------------------

// resolveVolume maps the volume name to its root, creating it if missing.
func (e *DefaultEngine) resolveVolume(name string) (string, error) {
	root, err := e.volumes.Resolve(name, true)
	if err != nil {
		if errors.Is(err, volume.ErrInvalidName) {
			return "", &Error{Type: ErrorConfiguration, Message: err.Error()}
		}
		return "", &Error{
			Type:    ErrorStorage,
			Message: fmt.Sprintf("could not resolve volume %q", name),
			Wrapped: err,
		}
	}
	return root, nil
}

// resolveDestination computes root/subdir/basename(filename). The remote
// filename's own subpath is discarded. The category directory is created
// later, only when a download actually happens, so a preserve call that
// fails its remote lookup leaves the volume untouched.
func (e *DefaultEngine) resolveDestination(root, filename, subdir string) (string, error) {
	base := path.Base(filename)
	if base == "" || base == "." || base == "/" {
		return "", &Error{
			Type:    ErrorConfiguration,
			Message: fmt.Sprintf("filename %q has no usable base name", filename),
		}
	}

	if subdir == "" {
		subdir = inferSubdir(filename)
		if subdir == "" {
			return "", &Error{
				Type: ErrorConfiguration,
				Message: fmt.Sprintf(
					"could not infer a model category from %q; pass one of %v explicitly",
					filename, SortedModelSubdirs()),
			}
		}
	} else if !ModelSubdirs[subdir] {
		return "", &Error{
			Type: ErrorConfiguration,
			Message: fmt.Sprintf("destination subdir must be one of %v, got %q",
				SortedModelSubdirs(), subdir),
		}
	}

	return filepath.Join(root, subdir, base), nil
}

// inferSubdir returns the first path component of filename that names a
// known model category, or "".
func inferSubdir(filename string) string {
	dir := path.Dir(filename)
	if dir == "." || dir == "/" {
		return ""
	}
	for _, part := range strings.Split(dir, "/") {
		if ModelSubdirs[part] {
			return part
		}
	}
	return ""
}

// checkExisting decides whether a valid copy is already at destPath.
// Returns (true, size, nil) when the existing file matches the remote
// size and no transfer is needed.
func (e *DefaultEngine) checkExisting(ctx context.Context, ref hub.ModelReference, destPath string) (bool, int64, error) {
	// Metadata lookup happens before anything touches the volume: a
	// reference that does not resolve must leave it unmodified.
	meta, err := e.hub.FileInfo(ctx, ref)
	if err != nil {
		return false, 0, e.mapHubError(ref, destPath, err)
	}

	info, err := os.Stat(destPath)
	if os.IsNotExist(err) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, &Error{
			Type:    ErrorStorage,
			Path:    destPath,
			Message: "could not stat destination path",
			Wrapped: err,
		}
	}
	if info.IsDir() {
		return false, 0, &Error{
			Type:      ErrorConfiguration,
			Reference: ref.String(),
			Path:      destPath,
			Message:   "destination path collides with a directory",
		}
	}

	if info.Size() == meta.Size {
		return true, info.Size(), nil
	}

	slog.Warn("Existing artifact size mismatch, re-downloading",
		"ref", ref.String(), "path", destPath,
		"local_size", info.Size(), "remote_size", meta.Size)
	return false, 0, nil
}

// downloadAndCommit transfers the payload into a temp file next to the
// destination and atomically renames it into place.
func (e *DefaultEngine) downloadAndCommit(ctx context.Context, ref hub.ModelReference, root, destPath string) (int64, error) {
	destDir := filepath.Dir(destPath)
	base := filepath.Base(destPath)

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return 0, &Error{
			Type:    ErrorStorage,
			Path:    destDir,
			Message: "could not create destination directory",
			Wrapped: err,
		}
	}

	tmp, err := os.CreateTemp(destDir, "."+base+".*.partial")
	if err != nil {
		return 0, &Error{
			Type:    ErrorStorage,
			Path:    destDir,
			Message: "could not create temporary download file",
			Wrapped: err,
		}
	}
	tmpPath := tmp.Name()

	e.mu.RLock()
	progress := e.progress
	e.mu.RUnlock()

	written, err := e.hub.Download(ctx, ref, tmp, progress)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return 0, e.mapHubError(ref, destPath, err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return 0, &Error{Type: ErrorStorage, Path: tmpPath, Message: "could not flush download", Wrapped: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, &Error{Type: ErrorStorage, Path: tmpPath, Message: "could not close download", Wrapped: err}
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return 0, &Error{Type: ErrorStorage, Path: destPath, Message: "could not move artifact into place", Wrapped: err}
	}

	if err := volume.SyncDir(destDir); err != nil {
		return 0, &Error{Type: ErrorStorage, Path: destDir, Message: "could not sync destination directory", Wrapped: err}
	}
	if err := e.volumes.Commit(root); err != nil {
		return 0, &Error{Type: ErrorStorage, Path: root, Message: "could not commit volume", Wrapped: err}
	}

	return written, nil
}

// mapHubError folds hub and IO errors into the placement taxonomy.
func (e *DefaultEngine) mapHubError(ref hub.ModelReference, destPath string, err error) error {
	var hubErr *hub.Error
	if errors.As(err, &hubErr) {
		errType := ErrorTransfer
		switch hubErr.Type {
		case hub.ErrorNotFound:
			errType = ErrorNotFound
		case hub.ErrorInvalidReference:
			errType = ErrorConfiguration
		}
		return &Error{
			Type:      errType,
			Reference: ref.String(),
			Path:      destPath,
			Message:   hubErr.Message,
			Wrapped:   hubErr,
		}
	}

	// Anything else came from the write side: ENOSPC, EROFS, permission
	// problems. Cancellation is the one exception worth distinguishing.
	errType := ErrorStorage
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		errType = ErrorTransfer
	}
	return &Error{
		Type:      errType,
		Reference: ref.String(),
		Path:      destPath,
		Message:   "download failed",
		Wrapped:   err,
	}
}
