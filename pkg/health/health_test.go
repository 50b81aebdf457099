package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func up(context.Context) error { return nil }

func down(msg string) Checker {
	return func(context.Context) error { return errors.New(msg) }
}

func ready(t *testing.T, h *Handler) (int, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec.Code, resp
}

func TestLivenessHandler_AlwaysReturns200(t *testing.T) {
	h := NewHandler()
	h.RegisterCritical("redis", down("connection refused"))

	rec := httptest.NewRecorder()
	h.LivenessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, StatusUp, resp.Status)
	assert.Empty(t, resp.Checks, "liveness runs no checks")
}

func TestReadinessHandler(t *testing.T) {
	tests := []struct {
		name        string
		critical    map[string]Checker
		nonCritical map[string]Checker
		wantCode    int
		wantStatus  Status
	}{
		{
			name:       "no checks",
			wantCode:   http.StatusOK,
			wantStatus: StatusUp,
		},
		{
			name:        "all up",
			critical:    map[string]Checker{"redis": up},
			nonCritical: map[string]Checker{"commerce_api": up, "kafka": up},
			wantCode:    http.StatusOK,
			wantStatus:  StatusUp,
		},
		{
			name:        "commerce api down degrades",
			critical:    map[string]Checker{"redis": up},
			nonCritical: map[string]Checker{"commerce_api": down("503 from storefront api")},
			wantCode:    http.StatusOK,
			wantStatus:  StatusDegraded,
		},
		{
			name:        "several non-critical down still degraded",
			nonCritical: map[string]Checker{"commerce_api": down("timeout"), "kafka": down("no brokers")},
			wantCode:    http.StatusOK,
			wantStatus:  StatusDegraded,
		},
		{
			name:       "redis down is not ready",
			critical:   map[string]Checker{"redis": down("connection refused")},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusDown,
		},
		{
			name:        "critical failure wins over degraded",
			critical:    map[string]Checker{"redis": down("connection refused")},
			nonCritical: map[string]Checker{"kafka": down("no brokers")},
			wantCode:    http.StatusServiceUnavailable,
			wantStatus:  StatusDown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler()
			for name, c := range tt.critical {
				h.RegisterCritical(name, c)
			}
			for name, c := range tt.nonCritical {
				h.RegisterNonCritical(name, c)
			}

			code, resp := ready(t, h)

			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Len(t, resp.Checks, len(tt.critical)+len(tt.nonCritical))
			for name := range tt.critical {
				assert.True(t, resp.Checks[name].Critical, name)
			}
			for name := range tt.nonCritical {
				assert.False(t, resp.Checks[name].Critical, name)
			}
		})
	}
}

func TestReadinessHandler_ReportsError(t *testing.T) {
	h := NewHandler()
	h.RegisterCritical("redis", down("connection refused"))

	_, resp := ready(t, h)

	check := resp.Checks["redis"]
	assert.Equal(t, StatusDown, check.Status)
	assert.Equal(t, "connection refused", check.Error)
	assert.False(t, check.CheckedAt.IsZero())
}

func TestRegister_ReplacesExistingCheck(t *testing.T) {
	h := NewHandler()
	h.RegisterCritical("redis", down("old"))
	h.RegisterNonCritical("redis", up)

	code, resp := ready(t, h)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusUp, resp.Checks["redis"].Status)
	assert.False(t, resp.Checks["redis"].Critical)
}

func TestCheck_RunsConcurrently(t *testing.T) {
	h := NewHandler()
	release := make(chan struct{})
	var started atomic.Int32
	slow := func(ctx context.Context) error {
		if started.Add(1) == 2 {
			close(release)
		}
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h.RegisterCritical("redis", slow)
	h.RegisterNonCritical("commerce_api", slow)

	resp := h.Check(context.Background())

	assert.Equal(t, StatusUp, resp.Status, "each check waits for the other to start")
}

func TestCheck_Timeout(t *testing.T) {
	h := NewHandler(WithTimeout(20 * time.Millisecond))
	h.RegisterNonCritical("commerce_api", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	resp := h.Check(context.Background())

	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Equal(t, context.DeadlineExceeded.Error(), resp.Checks["commerce_api"].Error)
}

func TestCheck_CachesResults(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	h := NewHandler(WithCacheTTL(10 * time.Second))
	h.now = func() time.Time { return now }

	var calls atomic.Int32
	h.RegisterNonCritical("commerce_api", func(context.Context) error {
		calls.Add(1)
		return nil
	})

	h.Check(context.Background())
	now = now.Add(5 * time.Second)
	h.Check(context.Background())
	assert.Equal(t, int32(1), calls.Load(), "result reused within the TTL")

	now = now.Add(6 * time.Second)
	h.Check(context.Background())
	assert.Equal(t, int32(2), calls.Load())
}
