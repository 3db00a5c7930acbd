// Package errors provides structured error types for the Hab application.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the CLI and the resolver
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Each failure mode the resolver distinguishes gets its own code, so the
// CLI can map it to a stable exit status and tests can assert on the kind
// of failure rather than on message text.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeURIUnresolved, "cannot map %q to a config", uri)
//	if errors.Is(err, errors.ErrCodeURIUnresolved) {
//	    // Handle resolution failure
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeSiteLoad, origErr, "failed to read %s", path)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Forest loading errors
	ErrCodeDuplicateJson  Code = "DUPLICATE_JSON"
	ErrCodeInvalidVersion Code = "INVALID_VERSION"
	ErrCodeSiteLoad       Code = "SITE_LOAD"

	// Resolution errors
	ErrCodeURIUnresolved      Code = "URI_UNRESOLVED"
	ErrCodeInvalidRequirement Code = "INVALID_REQUIREMENT"
	ErrCodeMaxRedirect        Code = "MAX_REDIRECT"

	// Composition errors
	ErrCodeReservedEnvVar   Code = "RESERVED_ENV_VAR"
	ErrCodeReservedVariable Code = "RESERVED_VARIABLE"

	// Freeze/cache errors
	ErrCodeFreezeDecode Code = "FREEZE_DECODE"
	ErrCodeCacheStale   Code = "CACHE_STALE"

	// Input validation errors
	ErrCodeInvalidInput Code = "INVALID_INPUT"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var re *ResolveError
	if errors.As(err, &re) {
		// The "Error resolving <uri>" form is the message.
		return re.Error()
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// exitCodes maps error codes to process exit statuses. Stable across
// releases so wrapper scripts can branch on them.
var exitCodes = map[Code]int{
	ErrCodeSiteLoad:           2,
	ErrCodeDuplicateJson:      3,
	ErrCodeURIUnresolved:      4,
	ErrCodeInvalidRequirement: 5,
	ErrCodeMaxRedirect:        5,
	ErrCodeReservedEnvVar:     6,
	ErrCodeReservedVariable:   7,
	ErrCodeFreezeDecode:       8,
	ErrCodeInvalidVersion:     9,
}

// ExitCode returns the process exit status for an error. Unrecognized
// errors (including plain errors) map to 1; nil maps to 0.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if code, ok := exitCodes[GetCode(err)]; ok {
		return code
	}
	return 1
}

// ResolveError annotates an error with the URI whose resolution failed.
// The resulting message is the canonical "Error resolving <uri>: <msg>"
// form stored on error nodes and printed by the CLI.
type ResolveError struct {
	URI   string
	Cause error
}

// Error implements the error interface.
func (e *ResolveError) Error() string {
	return fmt.Sprintf("Error resolving %s: %s", e.URI, UserMessage(e.Cause))
}

// Unwrap returns the underlying cause so code-based predicates still work.
func (e *ResolveError) Unwrap() error {
	return e.Cause
}
