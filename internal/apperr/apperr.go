// Package apperr provides the coordinator's tagged error type. Callers
// dispatch on the code, never on message text.
package apperr

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeSessionNotFound   Code = "SESSION_NOT_FOUND"
	CodeSessionClosed     Code = "SESSION_CLOSED"
	CodeSessionFull       Code = "SESSION_FULL"
	CodeAlreadyJoined     Code = "ALREADY_JOINED"
	CodeInvalidJoinCode   Code = "INVALID_JOIN_CODE"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeMaxActiveSessions Code = "MAX_ACTIVE_SESSIONS"
	CodeUnknown           Code = "UNKNOWN"
)

// Error is a code-tagged error.
type Error struct {
	Code    Code
	Message string
	cause   error
}

// New creates a tagged error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a tagged error preserving the underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// CodeOf extracts the code from an error chain. Errors that carry no tag
// report CodeUnknown.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}
