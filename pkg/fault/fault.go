// Package fault defines the error vocabulary shared by the gateway services
// and the HTTP layer. Every user-facing failure maps onto one of six codes
// regardless of transport.
package fault

import (
	"errors"
	"fmt"
)

// Code classifies a failure.
type Code string

const (
	Unauthenticated   Code = "UNAUTHENTICATED"
	InvalidArgument   Code = "INVALID_ARGUMENT"
	NotFound          Code = "NOT_FOUND"
	PermissionDenied  Code = "PERMISSION_DENIED"
	ResourceExhausted Code = "RESOURCE_EXHAUSTED"
	Internal          Code = "INTERNAL"
)

// Error is a coded application error. Err carries the internal cause for
// logging and is never serialized to callers.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a coded error around an internal cause.
func Wrap(code Code, err error, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the code from err, defaulting to Internal for errors that
// did not originate in this package.
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return Internal
}

// MessageOf extracts the caller-safe message from err. Internal causes are
// replaced with a generic message so they never leak to clients.
func MessageOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Message
	}
	return "An unexpected error occurred"
}
