package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes for programmatic handling. The taxonomy mirrors how the
// pipeline treats failures: validation and capability errors surface,
// transport and parse failures are contained upstream and never reach
// the caller as errors.
const (
	ErrCodeValidation  = "VALIDATION_ERROR"
	ErrCodeFetchFailed = "FETCH_FAILED"
	ErrCodeEnrichment  = "ENRICHMENT_FAILED"
	ErrCodeExternalAPI = "EXTERNAL_API_ERROR"
	ErrCodeTimeout     = "TIMEOUT_ERROR"
	ErrCodeInternal    = "INTERNAL_ERROR"
)

// AppError is the base error type for surfaced failures.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Cause      error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a validation error (caller input rejected
// before any I/O).
func NewValidationError(message string, cause error) *AppError {
	return &AppError{
		Code:       ErrCodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Cause:      cause,
	}
}

// NewCapabilityError creates an error for a generation backend that is
// unavailable. No safe default substitutes for "we could not even
// attempt enrichment".
func NewCapabilityError(message string, cause error) *AppError {
	return &AppError{
		Code:       ErrCodeExternalAPI,
		Message:    message,
		HTTPStatus: http.StatusBadGateway,
		Cause:      cause,
	}
}

// NewInternalError creates a generic internal error.
func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Code:       ErrCodeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// AsAppError extracts an *AppError from an error chain, or wraps the
// error as an internal error.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError("unexpected error", err)
}
