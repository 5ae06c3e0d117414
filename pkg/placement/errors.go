// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package placement

import (
	"bytes"
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Error Types
// -----------------------------------------------------------------------------

// ErrorType categorizes placement failures for programmatic handling.
type ErrorType int

const (
	// ErrorNotFound indicates the remote repository, file, or revision
	// does not exist. Not retried; surfaced verbatim to the caller.
	ErrorNotFound ErrorType = iota

	// ErrorTransfer indicates a network or IO failure mid-download.
	// The whole invocation is idempotent, so callers may retry it.
	ErrorTransfer

	// ErrorStorage indicates the destination volume is full or unwritable.
	ErrorStorage

	// ErrorConfiguration indicates an invalid destination: an unknown
	// category subdirectory, or a path collision with a directory.
	ErrorConfiguration
)

// String returns the error type as a string for logging and wire transport.
func (t ErrorType) String() string {
	switch t {
	case ErrorNotFound:
		return "NOT_FOUND"
	case ErrorTransfer:
		return "TRANSFER_FAILED"
	case ErrorStorage:
		return "STORAGE_FAILED"
	case ErrorConfiguration:
		return "CONFIGURATION_INVALID"
	default:
		return "UNKNOWN"
	}
}

// ParseErrorType maps a wire string back onto an ErrorType.
// Unknown strings map to ErrorTransfer, the only retryable class.
func ParseErrorType(s string) ErrorType {
	switch s {
	case "NOT_FOUND":
		return ErrorNotFound
	case "STORAGE_FAILED":
		return ErrorStorage
	case "CONFIGURATION_INVALID":
		return ErrorConfiguration
	default:
		return ErrorTransfer
	}
}

// Error provides structured error information for placement operations.
type Error struct {
	// Type categorizes the error for programmatic handling.
	Type ErrorType

	// Reference identifies the artifact being placed (may be empty).
	Reference string

	// Path is the destination path involved (may be empty).
	Path string

	// Message is a human-readable error description.
	Message string

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

// FullError returns a detailed message including reference and path context.
func (e *Error) FullError() string {
	var buf bytes.Buffer
	buf.WriteString(e.Message)
	if e.Reference != "" {
		buf.WriteString(fmt.Sprintf(" (ref: %s)", e.Reference))
	}
	if e.Path != "" {
		buf.WriteString(fmt.Sprintf(" (path: %s)", e.Path))
	}
	if e.Wrapped != nil {
		buf.WriteString("\n\nDetails: ")
		buf.WriteString(e.Wrapped.Error())
	}
	return buf.String()
}

// TypeOf returns the placement error type of err, or ErrorTransfer when
// err carries no placement classification.
func TypeOf(err error) ErrorType {
	var pErr *Error
	if errors.As(err, &pErr) {
		return pErr.Type
	}
	return ErrorTransfer
}

// IsNotFound reports whether err is a placement NOT_FOUND error.
func IsNotFound(err error) bool {
	var pErr *Error
	return errors.As(err, &pErr) && pErr.Type == ErrorNotFound
}

// IsStorage reports whether err is a placement STORAGE_FAILED error.
func IsStorage(err error) bool {
	var pErr *Error
	return errors.As(err, &pErr) && pErr.Type == ErrorStorage
}

// IsConfiguration reports whether err is a CONFIGURATION_INVALID error.
func IsConfiguration(err error) bool {
	var pErr *Error
	return errors.As(err, &pErr) && pErr.Type == ErrorConfiguration
}
