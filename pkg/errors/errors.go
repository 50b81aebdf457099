// Package errors defines the application error type shared by the storefront
// packages and its mapping to HTTP status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors classifying failures. Wrap one to pick the HTTP status.
var (
	ErrNotFound        = errors.New("resource not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInternal        = errors.New("internal error")
	ErrConflict        = errors.New("conflict")
	ErrServiceUnavail  = errors.New("service unavailable")
	ErrGone            = errors.New("resource gone")
	ErrTooManyRequests = errors.New("too many requests")
)

// kind maps a sentinel to its status and code. An empty message means the
// error text is safe to show to the client.
type kind struct {
	sentinel error
	status   int
	code     string
	message  string
}

var kinds = []kind{
	{ErrNotFound, http.StatusNotFound, "NOT_FOUND", "resource not found"},
	{ErrGone, http.StatusGone, "GONE", ""},
	{ErrInvalidInput, http.StatusBadRequest, "INVALID_INPUT", ""},
	{ErrConflict, http.StatusConflict, "CONFLICT", ""},
	{ErrTooManyRequests, http.StatusTooManyRequests, "RATE_LIMITED", ""},
	{ErrServiceUnavail, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "an upstream service is unavailable"},
}

var internal = kind{ErrInternal, http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred"}

func kindOf(err error) kind {
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k
		}
	}
	return internal
}

// AppError represents a structured application error with HTTP status mapping.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
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

func newAppError(sentinel error, message string) *AppError {
	k := kindOf(sentinel)
	return &AppError{Code: k.code, Message: message, Status: k.status, Err: sentinel}
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return newAppError(ErrNotFound, fmt.Sprintf("%s with id %s not found", resource, id))
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return newAppError(ErrInvalidInput, message)
}

// Conflict creates a 409 error.
func Conflict(message string) *AppError {
	return newAppError(ErrConflict, message)
}

// Gone creates a 410 error.
func Gone(message string) *AppError {
	return newAppError(ErrGone, message)
}

// TooManyRequests creates a 429 error.
func TooManyRequests(message string) *AppError {
	return newAppError(ErrTooManyRequests, message)
}

// ServiceUnavailable creates a 503 error for an unreachable upstream.
func ServiceUnavailable(message string) *AppError {
	return newAppError(ErrServiceUnavail, message)
}

// Internal creates a 500 error. The wrapped error is logged, never shown.
func Internal(err error) *AppError {
	return &AppError{
		Code:    internal.code,
		Message: internal.message,
		Status:  internal.status,
		Err:     fmt.Errorf("%w: %w", ErrInternal, err),
	}
}

// Classify returns the HTTP status, error code and client-facing message for
// err. An AppError anywhere in the chain is used as is; otherwise the first
// matching sentinel decides, and anything else is an internal error whose
// text is never exposed.
func Classify(err error) (status int, code, message string) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status, appErr.Code, appErr.Message
	}

	k := kindOf(err)
	message = k.message
	if message == "" {
		message = err.Error()
	}
	return k.status, k.code, message
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	status, _, _ := Classify(err)
	return status
}
