// Package apperr defines the error taxonomy shared by the CLI, the MCP server and the HTTP API.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = fmt.Errorf("already exists: %w", ErrConflict)
	ErrLockTimeout   = errors.New("lock timeout")
	ErrCorrupt       = errors.New("storage corrupted")
)

// Machine-readable codes surfaced to CLI and MCP callers.
const (
	CodeInvalidInput   = "INVALID_INPUT"
	CodeEmptyContent   = "EMPTY_CONTENT"
	CodeEmptyQuery     = "EMPTY_QUERY"
	CodeThreadNotFound = "THREAD_NOT_FOUND"
	CodeThreadExists   = "THREAD_EXISTS"
	CodeFileNotLinked  = "FILE_NOT_LINKED"
	CodeIndexNotFound  = "INDEX_NOT_FOUND"
	CodeLockTimeout    = "LOCK_TIMEOUT"
)

// Error is a structured error carrying a stable code. It unwraps to one of
// the sentinel errors above so callers can use errors.Is.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// Validation returns a validation error with the given message.
func Validation(code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: ErrValidation}
}

// NotFound returns a not-found error with the given message.
func NotFound(code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: ErrNotFound}
}

// Conflict returns a conflict error with the given message.
func Conflict(code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: ErrAlreadyExists}
}

// Code extracts the machine code from err, falling back to a code derived
// from the sentinel it wraps.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	switch {
	case errors.Is(err, ErrLockTimeout):
		return CodeLockTimeout
	case errors.Is(err, ErrValidation):
		return CodeInvalidInput
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, ErrCorrupt):
		return "STORAGE_CORRUPTED"
	}
	return "INTERNAL"
}
