package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents application-specific error codes
type ErrorCode string

const (
	// ErrCodeInvalidArgument is returned for missing or malformed required fields
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"

	// ErrCodeNotFound is returned for unknown call/chat/message/meeting/user ids
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeForbidden is returned when the actor is not a participant of the resource
	ErrCodeForbidden ErrorCode = "FORBIDDEN"

	// ErrCodeInternal covers persistence and push-notification failures
	ErrCodeInternal ErrorCode = "INTERNAL"

	// Transport level errors
	ErrCodeUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrCodeServiceUnavail ErrorCode = "SERVICE_UNAVAILABLE"
)

// ErrNotFound is the sentinel returned by repositories when a row does not exist.
// Services translate it into a NOT_FOUND AppError.
var ErrNotFound = stderrors.New("record not found")

// ErrConflict is returned by repositories when a conditional update did not match.
var ErrConflict = stderrors.New("conditional update did not apply")

// AppError represents a structured application error with code, message, and HTTP status
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
	Err        error     `json:"-"`
}

// Error implements the error interface, returning a formatted error message
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewWithStatus creates a new AppError with a specific HTTP status code
func NewWithStatus(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WrapWithStatus wraps an existing error with an AppError and specific status code
func WrapWithStatus(code ErrorCode, message string, statusCode int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

func InvalidArgument(message string) *AppError {
	return NewWithStatus(ErrCodeInvalidArgument, message, http.StatusBadRequest)
}

func MissingField(field string) *AppError {
	return NewWithStatus(ErrCodeInvalidArgument, fmt.Sprintf("missing required field: %s", field), http.StatusBadRequest)
}

func NotFound(resource string) *AppError {
	return NewWithStatus(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func Forbidden(message string) *AppError {
	return NewWithStatus(ErrCodeForbidden, message, http.StatusForbidden)
}

// Internal wraps a persistence or downstream failure. The cause is kept for logs
// and never serialized to clients.
func Internal(message string, err error) *AppError {
	return WrapWithStatus(ErrCodeInternal, message, http.StatusInternalServerError, err)
}

func Unauthorized(message string) *AppError {
	return NewWithStatus(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

func ServiceUnavailable(message string) *AppError {
	return NewWithStatus(ErrCodeServiceUnavail, message, http.StatusServiceUnavailable)
}

// FromRepo maps a repository error onto an error kind: ErrNotFound becomes
// NOT_FOUND for the given resource, anything else INTERNAL.
func FromRepo(resource string, err error) *AppError {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, ErrNotFound) {
		return NotFound(resource)
	}
	return Internal(fmt.Sprintf("failed to access %s", resource), err)
}

// As extracts an AppError from err's chain
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetAppError extracts AppError from an error, wrapping non-AppErrors as INTERNAL
func GetAppError(err error) *AppError {
	if appErr, ok := As(err); ok {
		return appErr
	}
	return Internal("internal error", err)
}

// CodeOf returns the error kind of err, INTERNAL for plain errors
func CodeOf(err error) ErrorCode {
	return GetAppError(err).Code
}

// Is reports whether err carries the given error kind
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}
