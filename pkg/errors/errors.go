package errors

import (
	"errors"
	"fmt"
)

// Standard error codes shared across packages. Domain packages define their
// own codes in their errors.go and reuse these for generic situations.
const (
	CodeInternal   = "INTERNAL"
	CodeNotFound   = "NOT_FOUND"
	CodeInvalid    = "INVALID_ARGUMENT"
	CodeTimeout    = "TIMEOUT"
	CodeUnavailable = "UNAVAILABLE"
)

// AppError is the standard error type for the system.
type AppError struct {
	// Code is a stable machine-readable identifier (e.g. NOT_FOUND).
	Code string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates an AppError with the given code, message and cause.
func New(code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Newf creates an AppError with a formatted message and no cause.
func Newf(code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err with a message under CodeInternal.
// Returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{Code: CodeInternal, Message: message, Err: err}
}

// Code extracts the code from err, or CodeInternal for non-AppError values.
func Code(err error) string {
	var app *AppError
	if errors.As(err, &app) {
		return app.Code
	}
	return CodeInternal
}

// HasCode reports whether any error in err's chain carries the given code.
func HasCode(err error, code string) bool {
	var app *AppError
	if errors.As(err, &app) {
		if app.Code == code {
			return true
		}
		return HasCode(app.Err, code)
	}
	return false
}

// Is delegates to the standard library for sentinel comparison.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As delegates to the standard library for type assertion over chains.
func As(err error, target any) bool {
	return errors.As(err, target)
}
