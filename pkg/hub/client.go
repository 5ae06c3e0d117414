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
Package hub provides a read-only client for the Hugging Face Hub.

The client covers exactly the two operations the placement engine needs:

 1. FileInfo: a metadata-only size lookup (HEAD request), used to decide
    whether a multi-gigabyte download can be skipped entirely.
 2. Download: a streamed transfer of the file payload with progress
    callbacks, used when the artifact is absent or stale.

Both operations address files by a ModelReference (repository, path within
the repository, revision). Unknown references fail with a typed NOT_FOUND
error so callers can distinguish a bad reference from a network fault.

# Authentication

When the HF_TOKEN environment variable is set, requests carry it as a
Bearer token. Gated or private repositories are otherwise reported as
not found, matching the hub's own behavior for anonymous access.
*/
package hub

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/ModelVault/pkg/validation"
)

const (
	// DefaultEndpoint is the public Hugging Face Hub endpoint.
	DefaultEndpoint = "https://huggingface.co"

	// DefaultRevision is used when a ModelReference has no revision.
	DefaultRevision = "main"

	// TokenEnvVar holds an optional hub access token for gated repositories.
	TokenEnvVar = "HF_TOKEN"

	// downloadBufferSize is the copy buffer for streamed transfers.
	downloadBufferSize = 1 << 20 // 1MiB

	// linkedSizeHeader reports the size of LFS-backed files on HEAD responses.
	linkedSizeHeader = "X-Linked-Size"
)

// -----------------------------------------------------------------------------
// Data Types
// -----------------------------------------------------------------------------

// ModelReference identifies a remote artifact on the hub.
//
// A reference is immutable once constructed and fully determines the
// source of truth for a fetch.
type ModelReference struct {
	// RepoID is the namespace/name of the repository
	// (e.g. "Comfy-Org/Qwen-Image_ComfyUI").
	RepoID string

	// Filename is the path of the file within the repository. It may
	// contain subdirectories (e.g. "split_files/text_encoders/x.safetensors").
	Filename string

	// Revision is a branch, tag, or commit. Empty means DefaultRevision.
	Revision string
}

// String returns the reference in repo@revision:filename form for logs.
func (r ModelReference) String() string {
	return fmt.Sprintf("%s@%s:%s", r.RepoID, r.EffectiveRevision(), r.Filename)
}

// EffectiveRevision returns the revision, defaulting to DefaultRevision.
func (r ModelReference) EffectiveRevision() string {
	if r.Revision == "" {
		return DefaultRevision
	}
	return r.Revision
}

// Validate checks that the reference is well formed and that the
// filename cannot escape the destination it will be placed under.
func (r ModelReference) Validate() error {
	if err := validation.ValidateRepoID(r.RepoID); err != nil {
		return err
	}
	if err := validation.ValidateFilename(r.Filename); err != nil {
		return err
	}
	return validation.ValidateRevision(r.Revision)
}

// FileMeta describes a remote file without transferring its payload.
type FileMeta struct {
	// Size is the file size in bytes as reported by the hub.
	Size int64

	// ETag is the hub's entity tag for the file (may be empty).
	ETag string

	// ContentType is the reported content type (may be empty).
	ContentType string
}

// ProgressFunc receives transfer progress updates.
//
// status is a short human-readable phase ("downloading"), completed is
// bytes received so far, and total is the expected size (0 if unknown).
type ProgressFunc func(status string, completed, total int64)

// -----------------------------------------------------------------------------
// Interface Definition
// -----------------------------------------------------------------------------

// HTTPClient allows injecting mock HTTP clients for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client defines the fetch boundary used by the placement engine.
//
// Implementations must be safe for concurrent use.
type Client interface {
	// FileInfo returns metadata for the referenced file without
	// downloading its payload.
	FileInfo(ctx context.Context, ref ModelReference) (*FileMeta, error)

	// Download streams the referenced file into w, reporting progress
	// through the optional callback. Returns the number of bytes written.
	Download(ctx context.Context, ref ModelReference, w io.Writer, progress ProgressFunc) (int64, error)
}

// -----------------------------------------------------------------------------
// Struct Definition
// -----------------------------------------------------------------------------

// HubClient implements Client against a Hugging Face compatible endpoint.
type HubClient struct {
	endpoint   string
	token      string
	httpClient HTTPClient
}

// NewClient creates a hub client for the given endpoint.
//
// # Description
//
// Creates a Client addressing a Hugging Face compatible endpoint. An
// empty endpoint selects the public hub. The access token is read from
// the HF_TOKEN environment variable at construction time.
//
// # Inputs
//
//   - endpoint: Hub base URL, or "" for https://huggingface.co
//
// # Outputs
//
//   - *HubClient: Configured client instance
//
// # Examples
//
//	client := hub.NewClient("")
//	meta, err := client.FileInfo(ctx, ref)
func NewClient(endpoint string) *HubClient {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &HubClient{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		token:    os.Getenv(TokenEnvVar),
		httpClient: &http.Client{
			// No overall timeout: transfers of multi-gigabyte artifacts
			// are bounded by the caller's context instead.
			Transport: &http.Transport{
				ResponseHeaderTimeout: 60 * time.Second,
			},
		},
	}
}

// NewClientWithHTTP creates a hub client with an injected HTTP client.
// Used by tests to avoid real network access.
func NewClientWithHTTP(endpoint string, httpClient HTTPClient) *HubClient {
	c := NewClient(endpoint)
	c.httpClient = httpClient
	return c
}

// -----------------------------------------------------------------------------
// Interface Methods
// -----------------------------------------------------------------------------

// FileInfo returns metadata for the referenced file without downloading it.
//
// # Description
//
// Issues a HEAD request against the hub's resolve URL. For LFS-backed
// files the hub reports the true payload size in the X-Linked-Size
// header; Content-Length is used as a fallback. Redirects to the CDN
// are followed by the underlying HTTP client.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeout control
//   - ref: The artifact to describe
//
// # Outputs
//
//   - *FileMeta: Size, ETag, and content type of the remote file
//   - error: *Error with type NOT_FOUND for unknown references,
//     INVALID_REFERENCE for malformed ones, TRANSFER_FAILED for
//     network faults
func (c *HubClient) FileInfo(ctx context.Context, ref ModelReference) (*FileMeta, error) {
	if err := ref.Validate(); err != nil {
		return nil, &Error{Type: ErrorInvalidReference, Reference: ref.String(), Message: err.Error()}
	}

	req, err := c.newRequest(ctx, http.MethodHead, ref)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, ref, "metadata request failed", err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp, ref); err != nil {
		return nil, err
	}

	meta := &FileMeta{
		Size:        resp.ContentLength,
		ETag:        strings.Trim(resp.Header.Get("ETag"), `"`),
		ContentType: resp.Header.Get("Content-Type"),
	}
	if linked := resp.Header.Get(linkedSizeHeader); linked != "" {
		if size, parseErr := strconv.ParseInt(linked, 10, 64); parseErr == nil {
			meta.Size = size
		}
	}
	if meta.Size < 0 {
		return nil, &Error{
			Type:      ErrorInvalidResponse,
			Reference: ref.String(),
			Message:   "hub did not report a file size",
		}
	}

	slog.Debug("Resolved hub file metadata",
		"ref", ref.String(), "size", meta.Size, "etag", meta.ETag)
	return meta, nil
}

// Download streams the referenced file into w.
//
// # Description
//
// Issues a GET request against the resolve URL and copies the payload
// into w in fixed-size chunks, invoking the progress callback after each
// chunk. The write destination is typically a temporary file on the
// target volume; this function never touches final artifact paths.
//
// # Inputs
//
//   - ctx: Context for cancellation; aborting leaves w partially written
//   - ref: The artifact to download
//   - w: Destination for the payload bytes
//   - progress: Optional progress callback (may be nil)
//
// # Outputs
//
//   - int64: Bytes written to w (also valid on error, for diagnostics)
//   - error: *Error typed NOT_FOUND, INVALID_REFERENCE, TRANSFER_FAILED,
//     or CONTEXT_CANCELLED
func (c *HubClient) Download(ctx context.Context, ref ModelReference, w io.Writer, progress ProgressFunc) (int64, error) {
	if err := ref.Validate(); err != nil {
		return 0, &Error{Type: ErrorInvalidReference, Reference: ref.String(), Message: err.Error()}
	}

	req, err := c.newRequest(ctx, http.MethodGet, ref)
	if err != nil {
		return 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, c.transportError(ctx, ref, "download request failed", err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp, ref); err != nil {
		return 0, err
	}

	total := resp.ContentLength
	if total < 0 {
		total = 0
	}

	var written int64
	buf := make([]byte, downloadBufferSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			wn, writeErr := w.Write(buf[:n])
			written += int64(wn)
			if writeErr != nil {
				// Writer failures are storage problems, not hub problems;
				// surface them unwrapped so the caller can classify.
				return written, writeErr
			}
			if progress != nil {
				progress("downloading", written, total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return written, c.transportError(ctx, ref, "download interrupted", readErr)
		}
	}

	if total > 0 && written != total {
		return written, &Error{
			Type:      ErrorTransfer,
			Reference: ref.String(),
			Message:   "download truncated",
			Detail:    fmt.Sprintf("expected %d bytes, received %d", total, written),
		}
	}

	slog.Debug("Download complete", "ref", ref.String(), "bytes", written)
	return written, nil
}

// -----------------------------------------------------------------------------
// Private Methods
// -----------------------------------------------------------------------------

// resolveURL builds the hub resolve URL for a reference.
func (c *HubClient) resolveURL(ref ModelReference) string {
	return fmt.Sprintf("%s/%s/resolve/%s/%s",
		c.endpoint,
		ref.RepoID,
		url.PathEscape(ref.EffectiveRevision()),
		ref.Filename,
	)
}

func (c *HubClient) newRequest(ctx context.Context, method string, ref ModelReference) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.resolveURL(ref), nil)
	if err != nil {
		return nil, &Error{
			Type:      ErrorInvalidResponse,
			Reference: ref.String(),
			Message:   "could not build hub request",
			Wrapped:   err,
		}
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// checkStatus maps HTTP status codes onto the error taxonomy.
func (c *HubClient) checkStatus(resp *http.Response, ref ModelReference) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		// The hub answers 401/403 for gated repos on anonymous access;
		// from the caller's perspective the reference is unreachable.
		return &Error{
			Type:      ErrorNotFound,
			Reference: ref.String(),
			Message:   "repository, file, or revision not found",
			Detail:    fmt.Sprintf("hub returned HTTP %d", resp.StatusCode),
		}
	default:
		return &Error{
			Type:      ErrorTransfer,
			Reference: ref.String(),
			Message:   fmt.Sprintf("hub returned unexpected status %d", resp.StatusCode),
		}
	}
}

func (c *HubClient) transportError(ctx context.Context, ref ModelReference, msg string, cause error) *Error {
	errType := ErrorTransfer
	if ctx.Err() != nil {
		errType = ErrorContextCancelled
	}
	return &Error{
		Type:      errType,
		Reference: ref.String(),
		Message:   msg,
		Wrapped:   cause,
	}
}
