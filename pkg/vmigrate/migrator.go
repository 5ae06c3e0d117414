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
Package vmigrate copies the contents of one shared volume into another.

This is the bulk variant of the placement discipline: every file in the
source volume is copied to the same relative path in the destination
volume via a temp file and an atomic rename, and entries whose size
already matches are skipped. Copying gigabytes between volumes is
expensive and irreversible enough that the operation is gated behind an
operator confirmation unless explicitly bypassed.

Per-entry failures do not abort the run; they are collected and reported
at the end. Rerunning a partially failed migration retries only what is
missing.
*/
package vmigrate

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/ModelVault/pkg/volume"
)

// DefaultWorkers is the number of parallel entry copies.
const DefaultWorkers = 4

// -----------------------------------------------------------------------------
// Data Types
// -----------------------------------------------------------------------------

// Prompter gates expensive operations behind operator confirmation.
//
// The migration core talks to a Prompter instead of stdin so it stays
// testable without a terminal; cmd wires in an interactive or an
// auto-confirming implementation.
type Prompter interface {
	// Confirm presents the message and returns the operator's decision.
	Confirm(ctx context.Context, message string) (bool, error)
}

// PrompterFunc adapts a function to the Prompter interface.
type PrompterFunc func(ctx context.Context, message string) (bool, error)

// Confirm implements Prompter.
func (f PrompterFunc) Confirm(ctx context.Context, message string) (bool, error) {
	return f(ctx, message)
}

// AutoConfirm is a Prompter that approves everything. Used for --yes.
var AutoConfirm = PrompterFunc(func(ctx context.Context, message string) (bool, error) {
	return true, nil
})

// EntryFailure records why a single entry could not be copied.
type EntryFailure struct {
	// Path is the entry's path relative to the volume root.
	Path string `json:"path"`

	// Reason is the failure description.
	Reason string `json:"reason"`
}

// Report summarizes a migration run.
type Report struct {
	// Copied lists entries written to the destination, relative paths.
	Copied []string `json:"copied"`

	// Skipped lists entries already present with identical size.
	Skipped []string `json:"skipped"`

	// Failed lists entries that could not be copied, with reasons.
	Failed []EntryFailure `json:"failed"`

	// TotalBytes is the payload size of all copied entries.
	TotalBytes int64 `json:"total_bytes"`

	// Cancelled is true when the operator declined the confirmation;
	// no copies were performed.
	Cancelled bool `json:"cancelled"`
}

// entry is one file discovered in the source volume.
type entry struct {
	relPath string
	size    int64
}

// -----------------------------------------------------------------------------
// Struct Definition
// -----------------------------------------------------------------------------

// Migrator copies volume contents with the placement discipline.
type Migrator struct {
	volumes  volume.Manager
	prompter Prompter
	workers  int
}

// NewMigrator creates a Migrator.
//
// prompter gates unconfirmed runs; workers bounds parallel copies
// (<= 0 selects DefaultWorkers).
func NewMigrator(volumes volume.Manager, prompter Prompter, workers int) *Migrator {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Migrator{
		volumes:  volumes,
		prompter: prompter,
		workers:  workers,
	}
}

// -----------------------------------------------------------------------------
// Public Methods
// -----------------------------------------------------------------------------

// Migrate copies every entry of the source volume into the destination.
//
// # Description
//
// Enumerates the source volume, presents the plan (entry count, total
// size) for confirmation unless confirmed is already true, then copies
// entries in parallel. Each entry follows the size-skip and
// temp-then-rename discipline, so a rerun after partial failure only
// touches what is missing.
//
// # Inputs
//
//   - ctx: Context for cancellation
//   - source: Name of the source volume (must exist)
//   - dest: Name of the destination volume (created if absent)
//   - confirmed: Skip the confirmation prompt (--yes)
//
// # Outputs
//
//   - *Report: Copied, skipped, and failed entries. Per-entry failures
//     are in the report, not the error
//   - error: Fatal problems only: missing source volume, enumeration
//     failure, declined or failed confirmation
func (m *Migrator) Migrate(ctx context.Context, source, dest string, confirmed bool) (*Report, error) {
	sourceRoot, err := m.volumes.Resolve(source, false)
	if err != nil {
		return nil, fmt.Errorf("source volume: %w", err)
	}
	destRoot, err := m.volumes.Resolve(dest, true)
	if err != nil {
		return nil, fmt.Errorf("destination volume: %w", err)
	}

	entries, planBytes, err := enumerate(sourceRoot)
	if err != nil {
		return nil, fmt.Errorf("could not enumerate source volume %q: %w", source, err)
	}

	if !confirmed {
		message := fmt.Sprintf(
			"Copy all data from volume %q to %q?\n  %d entries, %s total\nThe destination volume will be created if it doesn't exist.",
			source, dest, len(entries), humanize.IBytes(uint64(planBytes)))
		ok, promptErr := m.prompter.Confirm(ctx, message)
		if promptErr != nil {
			return nil, fmt.Errorf("confirmation failed: %w", promptErr)
		}
		if !ok {
			slog.Info("Migration cancelled by operator", "source", source, "dest", dest)
			return &Report{Cancelled: true}, nil
		}
	}

	report := m.copyEntries(ctx, sourceRoot, destRoot, entries)

	if err := m.volumes.Commit(destRoot); err != nil {
		slog.Warn("Could not commit destination volume", "dest", dest, "error", err)
	}

	slog.Info("Migration finished",
		"source", source, "dest", dest,
		"copied", len(report.Copied), "skipped", len(report.Skipped),
		"failed", len(report.Failed), "bytes", report.TotalBytes)
	return report, nil
}

// -----------------------------------------------------------------------------
// Private Methods
// -----------------------------------------------------------------------------

// enumerate walks the source volume and returns all regular files.
func enumerate(root string) ([]entry, int64, error) {
	var entries []entry
	var total int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		entries = append(entries, entry{relPath: rel, size: info.Size()})
		total += info.Size()
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].relPath < entries[j].relPath })
	return entries, total, nil
}

// copyEntries copies entries with bounded parallelism, isolating
// per-entry failures into the report.
func (m *Migrator) copyEntries(ctx context.Context, sourceRoot, destRoot string, entries []entry) *Report {
	report := &Report{
		Copied:  []string{},
		Skipped: []string{},
		Failed:  []EntryFailure{},
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)

	for _, ent := range entries {
		g.Go(func() error {
			copied, err := copyEntry(gctx, sourceRoot, destRoot, ent)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				slog.Warn("Could not copy entry", "entry", ent.relPath, "error", err)
				report.Failed = append(report.Failed, EntryFailure{Path: ent.relPath, Reason: err.Error()})
			case copied:
				report.Copied = append(report.Copied, ent.relPath)
				report.TotalBytes += ent.size
			default:
				report.Skipped = append(report.Skipped, ent.relPath)
			}
			// Entry failures never abort the batch.
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(report.Copied)
	sort.Strings(report.Skipped)
	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].Path < report.Failed[j].Path })
	return report
}

// copyEntry copies one file using the temp-then-rename discipline.
// Returns (false, nil) when the destination already matches by size.
func copyEntry(ctx context.Context, sourceRoot, destRoot string, ent entry) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	srcPath := filepath.Join(sourceRoot, ent.relPath)
	destPath := filepath.Join(destRoot, ent.relPath)

	if info, err := os.Stat(destPath); err == nil {
		if info.IsDir() {
			return false, fmt.Errorf("destination path is a directory")
		}
		if info.Size() == ent.size {
			return false, nil
		}
	}

	destDir := filepath.Dir(destPath)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return false, err
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return false, err
	}
	defer src.Close()

	tmp, err := os.CreateTemp(destDir, "."+filepath.Base(destPath)+".*.partial")
	if err != nil {
		return false, err
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return false, err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return false, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return false, err
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return false, err
	}
	return true, volume.SyncDir(destDir)
}
