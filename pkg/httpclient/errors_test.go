package httpclient

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	apperrors "github.com/utafrali/storefront/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeResponse creates an *http.Response with the given status code and body string.
func makeResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestParseResponseError_Mapping(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantIs     error
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "envelope not found",
			status:     http.StatusNotFound,
			body:       `{"error":{"code":"NOT_FOUND","message":"cart not found"}}`,
			wantIs:     apperrors.ErrNotFound,
			wantStatus: http.StatusNotFound,
			wantMsg:    "cart not found",
		},
		{
			name:       "bad request",
			status:     http.StatusBadRequest,
			body:       `{"errors":[{"message":"Parse error on \"}\""}]}`,
			wantIs:     apperrors.ErrInvalidInput,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Parse error",
		},
		{
			name:       "throttled",
			status:     http.StatusTooManyRequests,
			body:       `{"errors":"Throttled"}`,
			wantIs:     apperrors.ErrServiceUnavail,
			wantStatus: http.StatusServiceUnavailable,
			wantMsg:    "Throttled",
		},
		{
			name:       "shop frozen",
			status:     http.StatusPaymentRequired,
			body:       `{"errors":"Unavailable Shop"}`,
			wantIs:     apperrors.ErrServiceUnavail,
			wantStatus: http.StatusServiceUnavailable,
			wantMsg:    "Unavailable Shop",
		},
		{
			name:       "shop locked",
			status:     http.StatusLocked,
			body:       ``,
			wantIs:     apperrors.ErrServiceUnavail,
			wantStatus: http.StatusServiceUnavailable,
			wantMsg:    "Locked",
		},
		{
			name:       "bad gateway html",
			status:     http.StatusBadGateway,
			body:       `<html><body>Bad Gateway</body></html>`,
			wantIs:     apperrors.ErrServiceUnavail,
			wantStatus: http.StatusServiceUnavailable,
			wantMsg:    "Bad Gateway",
		},
		{
			name:       "bad token",
			status:     http.StatusUnauthorized,
			body:       `{"errors":"[API] Invalid API key or access token (unrecognized login or wrong password)"}`,
			wantIs:     apperrors.ErrInternal,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "gone",
			status:     http.StatusGone,
			body:       `{"errors":"API version retired"}`,
			wantIs:     apperrors.ErrGone,
			wantStatus: http.StatusGone,
			wantMsg:    "API version retired",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ParseResponseError(makeResponse(tt.status, tt.body), "storefront-api")
			require.Error(t, err)

			var appErr *apperrors.AppError
			require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
			assert.ErrorIs(t, err, tt.wantIs)
			assert.Equal(t, tt.wantStatus, appErr.Status)
			if tt.wantMsg != "" {
				assert.Contains(t, appErr.Message, tt.wantMsg)
			}
		})
	}
}

func TestParseResponseError_KeepsEnvelopeCode(t *testing.T) {
	resp := makeResponse(http.StatusServiceUnavailable, `{"error":{"code":"MAINTENANCE","message":"back soon"}}`)

	err := ParseResponseError(resp, "storefront-api")

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "MAINTENANCE", appErr.Code)
	assert.Equal(t, "storefront-api: back soon", appErr.Message)
}

func TestParseResponseError_UnknownStatusKeepsIt(t *testing.T) {
	err := ParseResponseError(makeResponse(430, "Security Rejection"), "storefront-api")

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 430, appErr.Status)
	assert.Contains(t, appErr.Message, "Security Rejection")
}

func TestParseResponseError_ClosesBody(t *testing.T) {
	body := &closeTracker{Reader: strings.NewReader(`{}`)}
	resp := &http.Response{StatusCode: http.StatusInternalServerError, Body: body}

	_ = ParseResponseError(resp, "storefront-api")

	assert.True(t, body.closed)
}

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}
