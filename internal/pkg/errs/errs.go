/*
Package errs provides custom error types and application-level error code constants.

This file defines the CustomError struct, which implements the standard Go error interface
and carries a business code, a user-facing message, an HTTP status code and, optionally,
the underlying cause.
*/
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"hzbot/internal/pkg/logx"
)

// CustomError is the custom error structure used throughout the application.
type CustomError struct {
	// Code is the business error code (see constants definition).
	Code int

	// Message is the user-facing error description.
	Message string

	// Status is the standard HTTP status code corresponding to this error.
	Status int

	// Cause is the wrapped lower-level error, if any.
	Cause error
}

// Error implements the standard Go error interface.
func (e *CustomError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("error code %d: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("error code %d: %s", e.Code, e.Message)
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *CustomError) Unwrap() error {
	return e.Cause
}

// NewError constructs a *CustomError from a predefined error code.
// The optional details fill the printf verbs of the message template.
// If an unknown code is provided, it falls back to ErrUnknown.
func NewError(code int, details ...any) *CustomError {
	templateErr, ok := errorMap[code]

	if !ok {
		logx.Error(
			fmt.Errorf("attempted to create an error with an unknown code in errorMap"),
			"Unknown error code requested",
			"requested_code", code,
		)

		unknownErr := errorMap[ErrUnknown]
		return &unknownErr
	}

	customErr := templateErr

	if customErr.Status == 0 {
		customErr.Status = http.StatusOK
	}

	if code == ErrUnknown && len(details) > 0 {
		if originalErr, ok := details[0].(error); ok {
			customErr.Cause = originalErr
		}
	} else if strings.Contains(customErr.Message, "%") {
		if len(details) == 0 {
			details = []any{"unknown"}
		}
		customErr.Message = fmt.Sprintf(customErr.Message, details...)
	} else if len(details) > 0 {
		logx.Warn(
			"Details provided for error, but message template has no formatting placeholders. Details ignored.",
			"code", code,
		)
	}

	return &customErr
}

// Wrap constructs a *CustomError like NewError and records cause as its underlying error.
// For ErrStore the cause's text becomes the message detail when no details are given.
func Wrap(code int, cause error, details ...any) *CustomError {
	if len(details) == 0 && cause != nil && code != ErrUnknown {
		details = []any{cause.Error()}
	}

	customErr := NewError(code, details...)
	customErr.Cause = cause
	return customErr
}

// As extracts a *CustomError from err. When err is not coded, it returns nil.
func As(err error) *CustomError {
	var customErr *CustomError
	if errors.As(err, &customErr) {
		return customErr
	}
	return nil
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code int) bool {
	customErr := As(err)
	return customErr != nil && customErr.Code == code
}

// UserMessage returns the text shown to a chat user for err.
func UserMessage(err error) string {
	if customErr := As(err); customErr != nil {
		return customErr.Message
	}
	return err.Error()
}
