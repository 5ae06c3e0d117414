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
Package placement contains unit tests for the placement engine.

# Testing Strategy

A fake hub client serves artifacts from memory and counts metadata and
payload calls, so idempotence can be asserted as "second call transfers
zero payload". Volumes are temp directories, which makes the atomicity
and no-partial-write properties observable through the real filesystem.
*/
package placement

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/AleutianAI/ModelVault/pkg/hub"
	"github.com/AleutianAI/ModelVault/pkg/volume"
)

// -----------------------------------------------------------------------------
// Fake hub client
// -----------------------------------------------------------------------------

// fakeHub serves artifacts from memory and counts calls.
type fakeHub struct {
	mu            sync.Mutex
	files         map[string][]byte // keyed by ref.String()
	infoCalls     int
	downloadCalls int

	// failAfter, when > 0, aborts a download after that many bytes.
	failAfter int
}

func newFakeHub() *fakeHub {
	return &fakeHub{files: map[string][]byte{}}
}

func (f *fakeHub) put(ref hub.ModelReference, payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[ref.String()] = payload
}

func (f *fakeHub) FileInfo(ctx context.Context, ref hub.ModelReference) (*hub.FileMeta, error) {
	f.mu.Lock()
	f.infoCalls++
	payload, ok := f.files[ref.String()]
	f.mu.Unlock()
	if !ok {
		return nil, &hub.Error{Type: hub.ErrorNotFound, Reference: ref.String(), Message: "repository, file, or revision not found"}
	}
	return &hub.FileMeta{Size: int64(len(payload))}, nil
}

func (f *fakeHub) Download(ctx context.Context, ref hub.ModelReference, w io.Writer, progress hub.ProgressFunc) (int64, error) {
	f.mu.Lock()
	f.downloadCalls++
	payload, ok := f.files[ref.String()]
	failAfter := f.failAfter
	f.mu.Unlock()
	if !ok {
		return 0, &hub.Error{Type: hub.ErrorNotFound, Reference: ref.String(), Message: "repository, file, or revision not found"}
	}

	if failAfter > 0 && failAfter < len(payload) {
		n, _ := w.Write(payload[:failAfter])
		return int64(n), &hub.Error{Type: hub.ErrorTransfer, Reference: ref.String(), Message: "connection reset"}
	}

	n, err := w.Write(payload)
	if err != nil {
		return int64(n), err
	}
	if progress != nil {
		progress("downloading", int64(n), int64(len(payload)))
	}
	return int64(n), nil
}

func (f *fakeHub) counts() (info, download int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.infoCalls, f.downloadCalls
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

var qwenRef = hub.ModelReference{
	RepoID:   "Comfy-Org/Qwen-Image_ComfyUI",
	Filename: "split_files/text_encoders/qwen_2.5_vl_7b_fp8_scaled.safetensors",
}

func newTestEngine(t *testing.T) (*DefaultEngine, *fakeHub, string) {
	t.Helper()
	base := t.TempDir()
	fake := newFakeHub()
	engine := NewEngine(fake, volume.NewLocalManager(base))
	return engine, fake, base
}

// entriesUnder lists every file and directory below root, for asserting
// that a failed call left the volume untouched.
func entriesUnder(t *testing.T, root string) []string {
	t.Helper()
	var entries []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != root {
			entries = append(entries, path)
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	return entries
}

// -----------------------------------------------------------------------------
// Path Determinism
// -----------------------------------------------------------------------------

func TestPreserve_PathDeterminism(t *testing.T) {
	engine, fake, base := newTestEngine(t)
	fake.put(qwenRef, []byte("weights"))

	result, err := engine.Preserve(context.Background(), qwenRef,
		Destination{VolumeName: "comfy-model", Subdir: "text_encoders"})
	if err != nil {
		t.Fatalf("Preserve() unexpected error: %v", err)
	}

	want := filepath.Join(base, "comfy-model", "text_encoders", "qwen_2.5_vl_7b_fp8_scaled.safetensors")
	if result.Path != want {
		t.Errorf("Path = %q, want %q (basename only, subpath discarded)", result.Path, want)
	}
	if result.Reused {
		t.Error("first preservation must not report Reused")
	}
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("artifact missing at destination: %v", err)
	}
	if string(data) != "weights" {
		t.Error("artifact content mismatch")
	}
}

func TestPreserve_InfersSubdirFromFilename(t *testing.T) {
	engine, fake, base := newTestEngine(t)
	fake.put(qwenRef, []byte("weights"))

	result, err := engine.Preserve(context.Background(), qwenRef,
		Destination{VolumeName: "comfy-model"})
	if err != nil {
		t.Fatalf("Preserve() unexpected error: %v", err)
	}
	want := filepath.Join(base, "comfy-model", "text_encoders", "qwen_2.5_vl_7b_fp8_scaled.safetensors")
	if result.Path != want {
		t.Errorf("Path = %q, want category inferred from filename", result.Path)
	}
}

func TestInferSubdir_FirstMatchingComponent(t *testing.T) {
	cases := []struct {
		filename string
		want     string
	}{
		{"split_files/text_encoders/qwen_2.5_vl_7b_fp8_scaled.safetensors", "text_encoders"},
		// Two known categories: the leftmost wins.
		{"text_encoders/clip/model.safetensors", "text_encoders"},
		{"clip/text_encoders/model.safetensors", "clip"},
		{"vae/model.safetensors", "vae"},
		{"split_files/other/model.safetensors", ""},
		{"plain.safetensors", ""},
	}
	for _, tc := range cases {
		if got := inferSubdir(tc.filename); got != tc.want {
			t.Errorf("inferSubdir(%q) = %q, want %q", tc.filename, got, tc.want)
		}
	}
}

func TestPreserve_RejectsUnknownSubdir(t *testing.T) {
	engine, fake, _ := newTestEngine(t)
	fake.put(qwenRef, []byte("weights"))

	_, err := engine.Preserve(context.Background(), qwenRef,
		Destination{VolumeName: "v", Subdir: "not_a_category"})
	if !IsConfiguration(err) {
		t.Fatalf("expected CONFIGURATION_INVALID, got %v", err)
	}
}

func TestPreserve_UninferrableSubdir(t *testing.T) {
	engine, fake, _ := newTestEngine(t)
	ref := hub.ModelReference{RepoID: "a/b", Filename: "plain.safetensors"}
	fake.put(ref, []byte("x"))

	_, err := engine.Preserve(context.Background(), ref, Destination{VolumeName: "v"})
	if !IsConfiguration(err) {
		t.Fatalf("expected CONFIGURATION_INVALID, got %v", err)
	}
}

// -----------------------------------------------------------------------------
// Idempotence
// -----------------------------------------------------------------------------

func TestPreserve_Idempotence(t *testing.T) {
	engine, fake, _ := newTestEngine(t)
	fake.put(qwenRef, []byte("large payload"))
	dest := Destination{VolumeName: "comfy-model", Subdir: "text_encoders"}

	first, err := engine.Preserve(context.Background(), qwenRef, dest)
	if err != nil {
		t.Fatalf("first Preserve() error: %v", err)
	}
	second, err := engine.Preserve(context.Background(), qwenRef, dest)
	if err != nil {
		t.Fatalf("second Preserve() error: %v", err)
	}

	if second.Path != first.Path || second.SizeBytes != first.SizeBytes {
		t.Errorf("results diverge: %+v vs %+v", first, second)
	}
	if !second.Reused {
		t.Error("second call must report Reused")
	}

	_, downloads := fake.counts()
	if downloads != 1 {
		t.Errorf("payload transferred %d times, want exactly 1", downloads)
	}
}

func TestPreserve_SizeMismatchRedownloads(t *testing.T) {
	engine, fake, base := newTestEngine(t)
	fake.put(qwenRef, []byte("the full artifact"))
	dest := Destination{VolumeName: "comfy-model", Subdir: "text_encoders"}

	// A stale copy with the wrong size is already on the volume.
	destDir := filepath.Join(base, "comfy-model", "text_encoders")
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(destDir, "qwen_2.5_vl_7b_fp8_scaled.safetensors")
	if err := os.WriteFile(stale, []byte("truncated"), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := engine.Preserve(context.Background(), qwenRef, dest)
	if err != nil {
		t.Fatalf("Preserve() error: %v", err)
	}
	if result.Reused {
		t.Error("stale copy must not be reused")
	}
	data, _ := os.ReadFile(stale)
	if string(data) != "the full artifact" {
		t.Error("stale copy was not replaced")
	}
}

// -----------------------------------------------------------------------------
// No Partial Writes
// -----------------------------------------------------------------------------

func TestPreserve_NoPartialWriteOnInterruptedTransfer(t *testing.T) {
	engine, fake, base := newTestEngine(t)
	fake.put(qwenRef, bytes.Repeat([]byte("x"), 1000))
	fake.failAfter = 100
	dest := Destination{VolumeName: "comfy-model", Subdir: "text_encoders"}

	_, err := engine.Preserve(context.Background(), qwenRef, dest)
	if err == nil {
		t.Fatal("expected transfer error")
	}
	if TypeOf(err) != ErrorTransfer {
		t.Errorf("error type = %v, want TRANSFER_FAILED", TypeOf(err))
	}

	// The final path must not exist, and the failed temp file must be gone.
	destDir := filepath.Join(base, "comfy-model", "text_encoders")
	listing, readErr := os.ReadDir(destDir)
	if readErr != nil {
		t.Fatal(readErr)
	}
	for _, entry := range listing {
		t.Errorf("unexpected entry after failed transfer: %s", entry.Name())
	}

	// A retry of the identical invocation succeeds.
	fake.failAfter = 0
	result, err := engine.Preserve(context.Background(), qwenRef, dest)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if result.SizeBytes != 1000 {
		t.Errorf("retry size = %d, want 1000", result.SizeBytes)
	}
}

// -----------------------------------------------------------------------------
// Unknown Reference
// -----------------------------------------------------------------------------

func TestPreserve_UnknownReference(t *testing.T) {
	engine, fake, base := newTestEngine(t)

	_, err := engine.Preserve(context.Background(), hub.ModelReference{
		RepoID:   "nobody/no-such-repo",
		Filename: "split_files/vae/missing.safetensors",
	}, Destination{VolumeName: "comfy-model"})
	if !IsNotFound(err) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}

	// The volume exists (lazy creation) but contains nothing; the
	// lookup must fail before any directory or temp file is created.
	if entries := entriesUnder(t, filepath.Join(base, "comfy-model")); len(entries) != 0 {
		t.Errorf("volume modified by failed lookup: %v", entries)
	}
	if _, downloads := fake.counts(); downloads != 0 {
		t.Errorf("transfer attempted %d times for unknown reference, want 0", downloads)
	}
}

func TestMapHubError_InvalidReferenceIsNotRetryable(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	err := engine.mapHubError(qwenRef, "/v/p", &hub.Error{
		Type:    hub.ErrorInvalidReference,
		Message: "filename must be a clean relative path",
	})
	if !IsConfiguration(err) {
		t.Fatalf("expected CONFIGURATION_INVALID, got %v", err)
	}
}

func TestPreserve_DirectoryCollision(t *testing.T) {
	engine, fake, base := newTestEngine(t)
	fake.put(qwenRef, []byte("weights"))

	// A directory squats on the artifact's final path.
	collision := filepath.Join(base, "comfy-model", "text_encoders", "qwen_2.5_vl_7b_fp8_scaled.safetensors")
	if err := os.MkdirAll(collision, 0o755); err != nil {
		t.Fatal(err)
	}

	_, err := engine.Preserve(context.Background(), qwenRef,
		Destination{VolumeName: "comfy-model", Subdir: "text_encoders"})
	if !IsConfiguration(err) {
		t.Fatalf("expected CONFIGURATION_INVALID, got %v", err)
	}
}

// -----------------------------------------------------------------------------
// Concurrency
// -----------------------------------------------------------------------------

func TestPreserve_ConcurrentSameReference(t *testing.T) {
	engine, fake, _ := newTestEngine(t)
	payload := bytes.Repeat([]byte("w"), 4096)
	fake.put(qwenRef, payload)
	dest := Destination{VolumeName: "comfy-model", Subdir: "text_encoders"}

	const callers = 4
	results := make([]*Result, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = engine.Preserve(context.Background(), qwenRef, dest)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if results[i].SizeBytes != int64(len(payload)) {
			t.Errorf("caller %d size = %d, want %d", i, results[i].SizeBytes, len(payload))
		}
		if results[i].Path != results[0].Path {
			t.Errorf("callers disagree on path: %q vs %q", results[i].Path, results[0].Path)
		}
	}

	data, err := os.ReadFile(results[0].Path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, payload) {
		t.Error("final artifact corrupted by concurrent preservation")
	}
}

// -----------------------------------------------------------------------------
// Progress
// -----------------------------------------------------------------------------

func TestPreserve_ProgressCallback(t *testing.T) {
	engine, fake, _ := newTestEngine(t)
	fake.put(qwenRef, []byte("weights"))

	var called bool
	engine.SetProgressCallback(func(status string, completed, total int64) {
		called = true
		if status != "downloading" {
			t.Errorf("status = %q", status)
		}
	})

	if _, err := engine.Preserve(context.Background(), qwenRef,
		Destination{VolumeName: "v", Subdir: "text_encoders"}); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Error("progress callback was not invoked")
	}
}

func TestRequest_Conversions(t *testing.T) {
	req := Request{
		RepoID:            "a/b",
		Filename:          "split_files/vae/v.safetensors",
		Revision:          "refs/pr/1",
		DestinationSubdir: "vae",
	}
	ref := req.ModelReference()
	if ref.RepoID != "a/b" || ref.Revision != "refs/pr/1" {
		t.Errorf("unexpected reference: %+v", ref)
	}
	dest := req.Destination("fallback-vol")
	if dest.VolumeName != "fallback-vol" || dest.Subdir != "vae" {
		t.Errorf("unexpected destination: %+v", dest)
	}
	req.Volume = "explicit"
	if got := req.Destination("fallback-vol").VolumeName; got != "explicit" {
		t.Errorf("explicit volume ignored: %q", got)
	}
}

func TestErrorType_RoundTrip(t *testing.T) {
	for _, errType := range []ErrorType{ErrorNotFound, ErrorTransfer, ErrorStorage, ErrorConfiguration} {
		if got := ParseErrorType(errType.String()); got != errType {
			t.Errorf("ParseErrorType(%q) = %v, want %v", errType.String(), got, errType)
		}
	}
}

func TestError_FullError(t *testing.T) {
	err := &Error{
		Type:      ErrorStorage,
		Reference: "a/b@main:f",
		Path:      "/volumes/v/vae/f",
		Message:   "could not move artifact into place",
		Wrapped:   fmt.Errorf("no space left on device"),
	}
	full := err.FullError()
	for _, want := range []string{"could not move artifact", "a/b@main:f", "/volumes/v/vae/f", "no space left"} {
		if !bytes.Contains([]byte(full), []byte(want)) {
			t.Errorf("FullError() missing %q:\n%s", want, full)
		}
	}
}
