/*
Package errs provides custom error types and application-level error code constants.

This file defines CustomError, which carries a business code, a client-safe message,
an HTTP status and optional field-level validation details.
*/
package errs

import (
	"errors"
	"fmt"
	"net/http"

	"duochat/internal/pkg/logx"
)

// FieldError describes one failing input field of a validation error.
type FieldError struct {
	Field string `json:"param"`
	Msg   string `json:"msg"`
}

// CustomError is the custom error structure used throughout the application.
type CustomError struct {
	// Code is the business error code (see constants definition).
	Code int

	// Message is the user-friendly error description.
	Message string

	// Status is the HTTP status code corresponding to this error.
	Status int

	// Fields lists per-field problems for validation errors.
	Fields []FieldError
}

// Error implements the error interface.
func (e *CustomError) Error() string {
	return fmt.Sprintf("Error Code %d (HTTP %d): %s", e.Code, e.Status, e.Message)
}

// NewError constructs a *CustomError from a predefined error code.
// Unknown codes collapse to ErrUnknown. Business errors without an explicit
// status answer with 400 Bad Request.
func NewError(code int) *CustomError {
	templateErr, ok := errorMap[code]
	if !ok {
		logx.Error(
			fmt.Errorf("attempted to create an error with an unknown code in errorMap"),
			"Unknown error code requested",
			"requested_code", code,
		)
		templateErr = errorMap[ErrUnknown]
	}

	customErr := templateErr
	if customErr.Status == 0 {
		customErr.Status = http.StatusBadRequest
	}

	return &customErr
}

// NewValidationError builds an ErrInvalidParams error carrying field details.
func NewValidationError(fields ...FieldError) *CustomError {
	customErr := NewError(ErrInvalidParams)
	customErr.Fields = fields
	return customErr
}

// From converts any error into a *CustomError. Errors that are not already
// a *CustomError are logged and hidden behind ErrUnknown.
func From(err error) *CustomError {
	if err == nil {
		return nil
	}

	var customErr *CustomError
	if errors.As(err, &customErr) {
		return customErr
	}

	logx.Error(err, "Unexpected failure converted to internal fault")
	return NewError(ErrUnknown)
}

// HasCode reports whether err is a *CustomError with the given code.
func HasCode(err error, code int) bool {
	var customErr *CustomError
	if errors.As(err, &customErr) {
		return customErr.Code == code
	}
	return false
}
