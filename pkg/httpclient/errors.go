package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// maxResponseBody bounds how much of an error body is read.
const maxResponseBody = 1 << 20

// DownstreamErrorResponse covers the two error body shapes seen downstream:
// the httputil envelope {"error":{"code","message"}} and the GraphQL
// endpoint's {"errors": "..."} or {"errors":[{"message"}]}.
type DownstreamErrorResponse struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Errors json.RawMessage `json:"errors"`
}

// message extracts a human-readable message, or "" if the body has none.
func (d DownstreamErrorResponse) message() (code, message string) {
	if d.Error != nil {
		return d.Error.Code, d.Error.Message
	}
	if len(d.Errors) == 0 {
		return "", ""
	}
	var text string
	if json.Unmarshal(d.Errors, &text) == nil {
		return "", text
	}
	var list []struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(d.Errors, &list) == nil {
		msgs := make([]string, 0, len(list))
		for _, e := range list {
			msgs = append(msgs, e.Message)
		}
		return "", strings.Join(msgs, "; ")
	}
	return "", ""
}

// ParseResponseError reads the body of a non-2xx HTTP response and translates
// it into an AppError. The response body is fully consumed and closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	var downstream DownstreamErrorResponse
	code, message := "", ""
	if json.Unmarshal(bodyBytes, &downstream) == nil {
		code, message = downstream.message()
	}
	if message == "" {
		message = strings.TrimSpace(string(bodyBytes))
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return mapDownstreamError(resp.StatusCode, code, message, serviceName)
}

// mapDownstreamError translates a downstream status code into an AppError.
// Anything that means "try again later" maps to ErrServiceUnavail.
func mapDownstreamError(status int, code, message, serviceName string) error {
	qualifiedMsg := fmt.Sprintf("%s: %s", serviceName, message)

	switch {
	case status == http.StatusNotFound:
		return apperrors.NotFound(serviceName, message)
	case status == http.StatusBadRequest:
		return apperrors.InvalidInput(qualifiedMsg)
	case status == http.StatusConflict:
		return apperrors.Conflict(qualifiedMsg)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		// A rejected access token is a deployment problem, not the shopper's.
		return apperrors.Internal(fmt.Errorf("%s rejected credentials (%d): %s", serviceName, status, message))
	case status == http.StatusGone:
		return apperrors.Gone(qualifiedMsg)
	case status == http.StatusPaymentRequired, status == http.StatusLocked,
		status == http.StatusTooManyRequests, status >= 500:
		// 402 and 423: the shop is frozen or locked. 429: throttled.
		return &apperrors.AppError{
			Code:    codeOr(code, "SERVICE_UNAVAILABLE"),
			Message: qualifiedMsg,
			Status:  http.StatusServiceUnavailable,
			Err:     apperrors.ErrServiceUnavail,
		}
	default:
		return &apperrors.AppError{
			Code:    code,
			Message: qualifiedMsg,
			Status:  status,
		}
	}
}

func codeOr(code, fallback string) string {
	if code == "" {
		return fallback
	}
	return code
}
