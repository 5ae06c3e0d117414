// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hub

import (
	"bytes"
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Error Types
// -----------------------------------------------------------------------------

// ErrorType categorizes hub operation failures for programmatic handling.
type ErrorType int

const (
	// ErrorNotFound indicates the repository, file, or revision does not exist.
	ErrorNotFound ErrorType = iota

	// ErrorTransfer indicates a network or IO failure during download.
	ErrorTransfer

	// ErrorInvalidResponse indicates the hub returned unexpected data.
	ErrorInvalidResponse

	// ErrorContextCancelled indicates the operation was cancelled.
	ErrorContextCancelled

	// ErrorInvalidReference indicates a malformed model reference.
	// Retrying cannot help; the caller must fix the reference.
	ErrorInvalidReference
)

// String returns the error type as a string for logging.
func (t ErrorType) String() string {
	switch t {
	case ErrorNotFound:
		return "NOT_FOUND"
	case ErrorTransfer:
		return "TRANSFER_FAILED"
	case ErrorInvalidResponse:
		return "INVALID_RESPONSE"
	case ErrorContextCancelled:
		return "CONTEXT_CANCELLED"
	case ErrorInvalidReference:
		return "INVALID_REFERENCE"
	default:
		return "UNKNOWN"
	}
}

// Error provides structured error information for hub operations.
type Error struct {
	// Type categorizes the error for programmatic handling.
	Type ErrorType

	// Reference identifies the artifact that caused the error.
	Reference string

	// Message is a human-readable error description.
	Message string

	// Detail provides technical information for debugging.
	Detail string

	// Wrapped is the underlying error (may be nil).
	Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// FullError returns a detailed error message including the reference and detail.
func (e *Error) FullError() string {
	var buf bytes.Buffer
	buf.WriteString(e.Message)
	if e.Reference != "" {
		buf.WriteString(fmt.Sprintf(" (ref: %s)", e.Reference))
	}
	if e.Detail != "" {
		buf.WriteString("\n\nDetails: ")
		buf.WriteString(e.Detail)
	}
	return buf.String()
}

// IsNotFound reports whether err is a hub not-found error.
func IsNotFound(err error) bool {
	var hubErr *Error
	return errors.As(err, &hubErr) && hubErr.Type == ErrorNotFound
}
