package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/validator"
)

// Response is the JSON envelope of every API response. A failed mutation may
// carry both: the rolled-back cart in Data and the failure in Error.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse is the error half of the envelope. RequestID echoes the
// correlation ID so a shopper's report can be matched to the logs.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// WriteJSON writes v as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err to a status and code with apperrors.Classify and writes
// the error envelope. Internal errors are logged with the request-scoped
// logger when the RequestLogger middleware is mounted, else with fallback;
// their text never reaches the client.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	status, code, message := apperrors.Classify(err)

	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		l := logger.FromContext(r.Context())
		if l == slog.Default() && fallback != nil {
			l = fallback
		}
		l.ErrorContext(r.Context(), "internal error",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	WriteErrorCode(w, r, status, code, message)
}

// WriteErrorCode writes an error envelope with an explicit status and code.
func WriteErrorCode(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	WriteJSON(w, status, Response{Error: errorBody(r, code, message)})
}

// WriteValidationError writes a 400. Field-level messages are included when
// err is a *validator.ValidationError; any other error is a malformed body.
func WriteValidationError(w http.ResponseWriter, r *http.Request, err error) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		body := errorBody(r, "VALIDATION_ERROR", "request validation failed")
		body.Fields = valErr.Fields()
		WriteJSON(w, http.StatusBadRequest, Response{Error: body})
		return
	}
	WriteErrorCode(w, r, http.StatusBadRequest, "INVALID_INPUT", err.Error())
}

func errorBody(r *http.Request, code, message string) *ErrorResponse {
	body := &ErrorResponse{Code: code, Message: message}
	if r != nil {
		body.RequestID = logger.CorrelationIDFromContext(r.Context())
	}
	return body
}
