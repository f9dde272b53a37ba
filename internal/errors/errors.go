package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a coreheart error code.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrInternal       ErrorCode = "INTERNAL"        // 500
)

// CoreError represents a structured error with code, status, and details.
type CoreError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *CoreError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *CoreError {
	return &CoreError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewMissingField creates a 400 error naming the required field that was empty.
func NewMissingField(field string) *CoreError {
	return &CoreError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: fmt.Sprintf("%s is required", field),
		Details: map[string]any{"field": field},
	}
}

// NewNotFound creates a 404 error for a record absent from a store.
// kind names the store ("breath", "purify item", "meeting").
func NewNotFound(kind, identifier string) *CoreError {
	return &CoreError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *CoreError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &CoreError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if err (or anything it wraps) is a CoreError with the given code.
func Is(err error, code ErrorCode) bool {
	var cErr *CoreError
	if stderrors.As(err, &cErr) {
		return cErr.Code == code
	}
	return false
}

// As returns the CoreError carried by err, if any.
func As(err error) (*CoreError, bool) {
	var cErr *CoreError
	if stderrors.As(err, &cErr) {
		return cErr, true
	}
	return nil, false
}
