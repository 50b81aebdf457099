package httpclient

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// breakerFor returns a breaker that trips after half of three requests
// failed and stays open for openFor.
func breakerFor(t *testing.T, openFor time.Duration) *CircuitBreakerClient {
	t.Helper()
	cfg := CircuitBreakerConfig{
		Name:         t.Name(),
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      openFor,
		FailureRatio: 0.5,
		MinRequests:  3,
	}
	client := New(Config{Timeout: 5 * time.Second, MaxConnsPerHost: 10})
	return NewCircuitBreakerClient(client, cfg, slog.New(slog.DiscardHandler))
}

// statusServer answers every request with *status and counts hits.
func statusServer(t *testing.T, status *atomic.Int32, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(int(status.Load()))
		_, _ = w.Write([]byte(`{"errors":[{"message":"shop unavailable"}]}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func post(t *testing.T, cb *CircuitBreakerClient, ctx context.Context, url string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, http.NoBody)
	require.NoError(t, err)
	resp, err := cb.Do(ctx, req)
	if resp != nil {
		t.Cleanup(func() { _ = resp.Body.Close() })
	}
	return resp, err
}

func TestCircuitBreaker_PassesHealthyResponses(t *testing.T) {
	var status, hits atomic.Int32
	status.Store(http.StatusOK)
	server := statusServer(t, &status, &hits)
	cb := breakerFor(t, time.Second)

	resp, err := post(t, cb, t.Context(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreaker_TripsAndRejects(t *testing.T) {
	for _, code := range []int{http.StatusBadGateway, http.StatusTooManyRequests} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			var status, hits atomic.Int32
			status.Store(int32(code))
			server := statusServer(t, &status, &hits)
			cb := breakerFor(t, time.Minute)

			for range 3 {
				_, err := post(t, cb, t.Context(), server.URL)
				require.Error(t, err)
				assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
				assert.NotErrorIs(t, err, ErrCircuitOpen, "a sent request is not a rejection")
				assert.Contains(t, err.Error(), "shop unavailable")
			}
			require.Equal(t, gobreaker.StateOpen, cb.State())

			sent := hits.Load()
			_, err := post(t, cb, t.Context(), server.URL)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrCircuitOpen)
			assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
			assert.Contains(t, err.Error(), t.Name())
			assert.Equal(t, sent, hits.Load(), "rejected requests never reach the server")
		})
	}
}

func TestCircuitBreaker_ClientErrorsDoNotTrip(t *testing.T) {
	var status, hits atomic.Int32
	status.Store(http.StatusBadRequest)
	server := statusServer(t, &status, &hits)
	cb := breakerFor(t, time.Minute)

	for range 5 {
		resp, err := post(t, cb, t.Context(), server.URL)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "4xx is left to the caller")
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreaker_RecoversThroughHalfOpen(t *testing.T) {
	var status, hits atomic.Int32
	status.Store(http.StatusInternalServerError)
	server := statusServer(t, &status, &hits)
	cb := breakerFor(t, 50*time.Millisecond)

	for range 3 {
		_, _ = post(t, cb, t.Context(), server.URL)
	}
	require.Equal(t, gobreaker.StateOpen, cb.State())

	status.Store(http.StatusOK)
	require.Eventually(t, func() bool {
		return cb.State() == gobreaker.StateHalfOpen
	}, time.Second, 10*time.Millisecond)

	resp, err := post(t, cb, t.Context(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreaker_CanceledRequestsDoNotTrip(t *testing.T) {
	var status, hits atomic.Int32
	status.Store(http.StatusOK)
	server := statusServer(t, &status, &hits)
	cb := breakerFor(t, time.Minute)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	for range 5 {
		_, err := post(t, cb, ctx, server.URL)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreaker_DeadlineCountsAsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	t.Cleanup(server.Close)
	cb := breakerFor(t, time.Minute)

	for range 3 {
		ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
		_, err := post(t, cb, ctx, server.URL)
		cancel()
		require.ErrorIs(t, err, context.DeadlineExceeded)
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State(), "a slow upstream is an unhealthy one")
}

func TestDefaultCircuitBreakerConfig(t *testing.T) {
	assert.Equal(t, CircuitBreakerConfig{
		Name:         "storefront-api",
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}, DefaultCircuitBreakerConfig("storefront-api"))
}
