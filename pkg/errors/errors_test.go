package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_ErrorString(t *testing.T) {
	withCause := &AppError{Code: "NOT_FOUND", Message: "cart with id c1 not found", Err: ErrNotFound}
	assert.Equal(t, "NOT_FOUND: cart with id c1 not found: resource not found", withCause.Error())

	bare := &AppError{Code: "CONFLICT", Message: "line busy"}
	assert.Equal(t, "CONFLICT: line busy", bare.Error())
	assert.Nil(t, bare.Unwrap())
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		code   string
		status int
		is     error
	}{
		{"not found", NotFound("cart", "c1"), "NOT_FOUND", http.StatusNotFound, ErrNotFound},
		{"invalid input", InvalidInput("session id is required"), "INVALID_INPUT", http.StatusBadRequest, ErrInvalidInput},
		{"conflict", Conflict("a remove is already pending"), "CONFLICT", http.StatusConflict, ErrConflict},
		{"gone", Gone("cart was checked out"), "GONE", http.StatusGone, ErrGone},
		{"too many requests", TooManyRequests("slow down"), "RATE_LIMITED", http.StatusTooManyRequests, ErrTooManyRequests},
		{"service unavailable", ServiceUnavailable("redis down"), "SERVICE_UNAVAILABLE", http.StatusServiceUnavailable, ErrServiceUnavail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.Status)
			assert.ErrorIs(t, tt.err, tt.is)
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
		})
	}
}

func TestInternal_HidesCause(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.1:6379: connection refused")

	err := Internal(cause)

	assert.Equal(t, "an internal error occurred", err.Message)
	assert.NotContains(t, err.Message, "10.0.0.1")
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrInternal)
}

func TestHTTPStatus_WrappedSentinels(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("remote cart: %w", ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("persist: %w", ErrConflict), http.StatusConflict},
		{fmt.Errorf("decode: %w", ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("checkout: %w", ErrGone), http.StatusGone},
		{fmt.Errorf("breaker open: %w", ErrServiceUnavail), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestHTTPStatus_AppErrorWins(t *testing.T) {
	err := fmt.Errorf("outer: %w", &AppError{Code: "THROTTLED", Status: http.StatusServiceUnavailable, Err: ErrNotFound})

	require.Equal(t, http.StatusServiceUnavailable, HTTPStatus(err))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"app error", Conflict("line busy"), http.StatusConflict, "CONFLICT", "line busy"},
		{"wrapped app error", fmt.Errorf("submit: %w", InvalidInput("bad kind")), http.StatusBadRequest, "INVALID_INPUT", "bad kind"},
		{"not found hides detail", fmt.Errorf("redis key storefront:session:s1:cart: %w", ErrNotFound), http.StatusNotFound, "NOT_FOUND", "resource not found"},
		{"invalid input shows text", fmt.Errorf("decode body: %w", ErrInvalidInput), http.StatusBadRequest, "INVALID_INPUT", "decode body: invalid input"},
		{"gone shows text", fmt.Errorf("cart was completed: %w", ErrGone), http.StatusGone, "GONE", "cart was completed: resource gone"},
		{"unavailable hides detail", fmt.Errorf("dial 10.0.0.7:443: %w", ErrServiceUnavail), http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "an upstream service is unavailable"},
		{"unknown is internal", errors.New("nil map write"), http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code, message := Classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.message, message)
		})
	}
}
