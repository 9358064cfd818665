package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies failures in the output and checkpoint layer
type ErrorType string

const (
	// ErrorTypeContention means a file lock could not be acquired within
	// the retry budget. The whole write can be retried later.
	ErrorTypeContention ErrorType = "contention"

	// ErrorTypeIO covers disk and permission failures. Not retried here.
	ErrorTypeIO ErrorType = "io"

	// ErrorTypeCorruptState marks an unreadable lock or checkpoint file.
	// Treated as absence by callers, never fatal.
	ErrorTypeCorruptState ErrorType = "corrupt_state"

	// ErrorTypeRender marks a terminal display failure. Always swallowed.
	ErrorTypeRender ErrorType = "render"

	ErrorTypeUnknown ErrorType = "unknown"
)

// Error carries the failure class plus the file path it relates to
type Error struct {
	Type    ErrorType
	Message string
	Path    string
	Err     error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s error: %s (path: %s)", e.Type, e.Message, e.Path)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewContention builds the error returned when the lock retry budget runs out
func NewContention(path string, retries int) *Error {
	return &Error{
		Type:    ErrorTypeContention,
		Message: fmt.Sprintf("lock not acquired after %d retries", retries),
		Path:    path,
	}
}

// NewIO wraps a filesystem failure with its target path
func NewIO(path string, err error) *Error {
	return &Error{
		Type:    ErrorTypeIO,
		Message: err.Error(),
		Path:    path,
		Err:     err,
	}
}

// NewCorruptState wraps a parse failure on a state file
func NewCorruptState(path string, err error) *Error {
	return &Error{
		Type:    ErrorTypeCorruptState,
		Message: err.Error(),
		Path:    path,
		Err:     err,
	}
}

// TypeOf extracts the error type, or ErrorTypeUnknown for foreign errors
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsContention reports whether err is a lock acquisition failure
func IsContention(err error) bool {
	return TypeOf(err) == ErrorTypeContention
}

// IsRecoverable checks if an error type should be retried by the caller
func IsRecoverable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeContention, ErrorTypeRender:
		return true
	case ErrorTypeIO, ErrorTypeCorruptState:
		return false
	default:
		return false
	}
}
