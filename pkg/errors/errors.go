package errors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
)

// Error codes shared by the service layer and the HTTP surface
const (
	CodeNotFound        = "NOT_FOUND"
	CodeValidation      = "VALIDATION_FAILED"
	CodeGatewayFailure  = "GATEWAY_FAILURE"
	CodeStorageFailure  = "STORAGE_FAILURE"
	CodeRateLimited     = "RATE_LIMIT_EXCEEDED"
	CodeInternal        = "INTERNAL_ERROR"
	CodeUnavailable     = "SERVICE_UNAVAILABLE"
	CodeCanceled        = "CANCELED"
	CodeInvalidArgument = "INVALID_ARGUMENT"
)

// AppError represents an application error with HTTP status code and error code
type AppError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
	Stack      string `json:"-"`
	Cause      error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is / errors.As
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// Wrap attaches an underlying cause
func (e *AppError) Wrap(cause error) *AppError {
	e.Cause = cause
	return e
}

// NewError creates a new application error
func NewError(statusCode int, code string, message string) *AppError {
	return &AppError{
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
		Stack:      string(debug.Stack()),
	}
}

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(code string, message string) *AppError {
	return NewError(http.StatusBadRequest, code, message)
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(code string, message string) *AppError {
	return NewError(http.StatusNotFound, code, message)
}

// NewTooManyRequestsError creates a 429 error
func NewTooManyRequestsError(code string, message string) *AppError {
	return NewError(http.StatusTooManyRequests, code, message)
}

// NewInternalServerError creates a 500 Internal Server Error
func NewInternalServerError(code string, message string) *AppError {
	return NewError(http.StatusInternalServerError, code, message)
}

// NewBadGatewayError creates a 502 error for upstream failures
func NewBadGatewayError(code string, message string) *AppError {
	return NewError(http.StatusBadGateway, code, message)
}

// NotFound reports a missing user, character or tracker
func NotFound(message string) *AppError {
	return NewNotFoundError(CodeNotFound, message)
}

// Validation reports malformed input rejected before any write
func Validation(message string) *AppError {
	return NewBadRequestError(CodeValidation, message)
}

// Gateway reports a failed or timed out remote completion call
func Gateway(cause error) *AppError {
	return NewBadGatewayError(CodeGatewayFailure, "remote completion failed").Wrap(cause)
}

// Storage reports an unavailable record store
func Storage(cause error) *AppError {
	return NewInternalServerError(CodeStorageFailure, "record store unavailable").Wrap(cause)
}

// HasCode reports whether err is, or wraps, an AppError with the given code
func HasCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// Canceled reports a request abandoned by its caller before any write
func Canceled(cause error) *AppError {
	return NewError(http.StatusRequestTimeout, CodeCanceled, "request canceled").Wrap(cause)
}
