package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeInternal            = "INTERNAL_ERROR"
	ErrCodeBadRequest          = "BAD_REQUEST"
	ErrCodeConflict            = "CONFLICT"
	ErrCodeLayoutUnsatisfiable = "LAYOUT_UNSATISFIABLE"
	ErrCodeStorageWriteFailed  = "STORAGE_WRITE_FAILED"
	ErrCodeSessionAborted      = "SESSION_ABORTED"
	ErrCodeForbidden           = "FORBIDDEN"
)

// AppError represents an application error with HTTP status code and error code
type AppError struct {
	Code    string // Error code (e.g., "NOT_FOUND", "LAYOUT_UNSATISFIABLE")
	Message string // Human-readable error message
	Status  int    // HTTP status code
	Err     error  // Wrapped underlying error (optional)
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for error wrapping support
func (e *AppError) Unwrap() error {
	return e.Err
}

// As extracts an *AppError from err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// NewNotFoundError creates a new NOT_FOUND error
func NewNotFoundError(resource string, id any) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found: %v", resource, id),
		Status:  http.StatusNotFound,
	}
}

// NewValidationError creates a new VALIDATION_ERROR
func NewValidationError(field string, reason string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: fmt.Sprintf("validation failed for %s: %s", field, reason),
		Status:  http.StatusBadRequest,
	}
}

// NewInternalError creates a new INTERNAL_ERROR
func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: "internal server error",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// NewBadRequestError creates a new BAD_REQUEST error
func NewBadRequestError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

// NewConflictError reports an operation the session's current state rejects.
func NewConflictError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeConflict,
		Message: message,
		Status:  http.StatusConflict,
		Err:     err,
	}
}

// NewLayoutUnsatisfiableError is returned when a round's stimuli cannot be
// placed; the caller may shrink items or enlarge the container and retry.
func NewLayoutUnsatisfiableError(err error) *AppError {
	return &AppError{
		Code:    ErrCodeLayoutUnsatisfiable,
		Message: "stimuli do not fit in the container; reduce item size or enlarge the container",
		Status:  http.StatusUnprocessableEntity,
		Err:     err,
	}
}

func NewStorageWriteFailedError(err error) *AppError {
	return &AppError{
		Code:    ErrCodeStorageWriteFailed,
		Message: "storage write failed after retries",
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

func NewSessionAbortedError(id string) *AppError {
	return &AppError{
		Code:    ErrCodeSessionAborted,
		Message: fmt.Sprintf("session %s was aborted", id),
		Status:  http.StatusConflict,
	}
}

// NewForbiddenError is used for rejected signed URLs.
func NewForbiddenError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeForbidden,
		Message: message,
		Status:  http.StatusForbidden,
	}
}
