package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sessionRequest(sessionID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/mutations", nil)
	return req.WithContext(WithSessionID(req.Context(), sessionID))
}

func TestRateLimit_RequestsWithinLimit_Pass(t *testing.T) {
	handler := RateLimit(RateLimitConfig{RPS: 10, Burst: 10}, quietLogger())(okHandler())

	for i := 0; i < 5; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, sessionRequest("sess-a"))
		assert.Equal(t, http.StatusOK, rr.Code, "request %d should pass", i+1)
	}
}

func TestRateLimit_ExceedingBurst_Returns429(t *testing.T) {
	handler := RateLimit(RateLimitConfig{RPS: 0.001, Burst: 3}, quietLogger())(okHandler())

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, sessionRequest("sess-a"))
		codes = append(codes, rr.Code)
		if rr.Code == http.StatusTooManyRequests {
			assert.Contains(t, rr.Body.String(), "RATE_LIMITED")
			retryAfter, err := strconv.Atoi(rr.Header().Get("Retry-After"))
			require.NoError(t, err)
			assert.InDelta(t, 1000, retryAfter, 1, "one token per 1000s")
		}
	}

	assert.Equal(t, []int{200, 200, 200, 429}, codes)
}

func TestRateLimit_SessionsAreIndependent(t *testing.T) {
	handler := RateLimit(RateLimitConfig{RPS: 0.001, Burst: 1}, quietLogger())(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, sessionRequest("sess-a"))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, sessionRequest("sess-a"))
	require.Equal(t, http.StatusTooManyRequests, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, sessionRequest("sess-b"))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRateLimit_FallsBackToClientIP(t *testing.T) {
	handler := RateLimit(RateLimitConfig{RPS: 0.001, Burst: 1}, quietLogger())(okHandler())

	send := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:1234"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:5678"))
	assert.Equal(t, http.StatusOK, send("10.0.0.2:1234"))
}

func TestRateLimit_RetryAfterIsAtLeastOneSecond(t *testing.T) {
	handler := RateLimit(RateLimitConfig{RPS: 50, Burst: 1}, quietLogger())(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), sessionRequest("sess-fast"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, sessionRequest("sess-fast"))

	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
}

func TestLimiterStore_RejectedRequestKeepsToken(t *testing.T) {
	store := newLimiterStore(0.001, 1, 10, time.Minute)

	ok, _ := store.allow("a")
	require.True(t, ok)
	for range 3 {
		ok, wait := store.allow("a")
		assert.False(t, ok)
		assert.Greater(t, wait, 900*time.Second, "cancelled reservations do not push the wait out")
		assert.LessOrEqual(t, wait, 1000*time.Second)
	}
}

func TestLimiterStore_BoundedByMaxClients(t *testing.T) {
	store := newLimiterStore(1, 1, 2, time.Minute)

	store.get("a")
	store.get("b")
	store.get("c")

	assert.Equal(t, 2, store.len())
}

func TestRateLimit_RotatingSessionsShareClientBudget(t *testing.T) {
	handler := Session(SessionConfig{})(RateLimit(RateLimitConfig{RPS: 1, Burst: 1, ClientRPS: 0.001, ClientBurst: 3}, quietLogger())(okHandler()))

	allowed := 0
	for range 50 {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/mutations", nil)
		req.RemoteAddr = "203.0.113.9:4000"
		req.Header.Set(SessionHeader, uuid.NewString())
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code == http.StatusOK {
			allowed++
		}
	}

	assert.Equal(t, 3, allowed)
}

func TestRateLimit_ClientBudgetDefaultsToMultipleOfSession(t *testing.T) {
	handler := RateLimit(RateLimitConfig{RPS: 0.001, Burst: 1}, quietLogger())(okHandler())

	codes := make([]int, 0, 5)
	for i := range 5 {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, sessionRequest("sess-"+strconv.Itoa(i)))
		codes = append(codes, rr.Code)
	}

	assert.Equal(t, []int{200, 200, 200, 200, 429}, codes)
}

func TestRateLimit_SessionRejectionKeepsClientToken(t *testing.T) {
	handler := RateLimit(RateLimitConfig{RPS: 0.001, Burst: 1, ClientRPS: 0.001, ClientBurst: 2}, quietLogger())(okHandler())

	send := func(session string) int {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, sessionRequest(session))
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, send("sess-a"))
	for range 3 {
		assert.Equal(t, http.StatusTooManyRequests, send("sess-a"))
	}
	assert.Equal(t, http.StatusOK, send("sess-b"), "rejected requests do not spend the client budget")
}

func TestRateLimit_IgnoresForwardedForUnlessTrusted(t *testing.T) {
	for _, trusted := range []bool{false, true} {
		handler := RateLimit(RateLimitConfig{RPS: 0.001, Burst: 1, TrustForwardedFor: trusted}, quietLogger())(okHandler())

		allowed := 0
		for i := range 5 {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "10.0.0.1:1234"
			req.Header.Set("X-Forwarded-For", "198.51.100."+strconv.Itoa(i+1))
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code == http.StatusOK {
				allowed++
			}
		}

		if trusted {
			assert.Equal(t, 5, allowed, "each forwarded address has its own bucket")
		} else {
			assert.Equal(t, 1, allowed, "spoofed forwarding headers are ignored")
		}
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		xff     string
		xri     string
		remote  string
		trusted bool
		want    string
	}{
		{name: "forwarded chain", xff: "203.0.113.7, 10.0.0.1", remote: "10.0.0.1:1", trusted: true, want: "203.0.113.7"},
		{name: "real ip", xri: "198.51.100.2", remote: "10.0.0.1:1", trusted: true, want: "198.51.100.2"},
		{name: "untrusted forwarded", xff: "203.0.113.7", remote: "10.0.0.1:1", want: "10.0.0.1"},
		{name: "remote addr", remote: "192.0.2.1:443", want: "192.0.2.1"},
		{name: "garbage forwarded", xff: "nope", remote: "192.0.2.1:443", trusted: true, want: "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			assert.Equal(t, tt.want, clientIP(req, tt.trusted))
		})
	}
}
