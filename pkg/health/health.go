package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Checker reports whether a dependency is usable.
type Checker func(ctx context.Context) error

// Status represents the health status of a component.
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Response is the JSON body of the health endpoints.
type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is the outcome of one dependency check.
type CheckResult struct {
	Status     Status    `json:"status"`
	Critical   bool      `json:"critical"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CheckedAt  time.Time `json:"checked_at"`
}

type registration struct {
	checker  Checker
	critical bool

	mu   sync.Mutex
	last CheckResult
}

// Option configures a Handler.
type Option func(*Handler)

// WithTimeout bounds each readiness run. Defaults to 5s.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) { h.timeout = d }
}

// WithCacheTTL reuses a check's result for d, so frequent probes do not reach
// rate-limited dependencies on every call. Zero disables caching.
func WithCacheTTL(d time.Duration) Option {
	return func(h *Handler) { h.cacheTTL = d }
}

// Handler serves liveness and readiness endpoints.
type Handler struct {
	mu       sync.RWMutex
	checkers map[string]*registration
	timeout  time.Duration
	cacheTTL time.Duration
	now      func() time.Time
}

// NewHandler creates a health handler with no registered checks.
func NewHandler(opts ...Option) *Handler {
	h := &Handler{
		checkers: make(map[string]*registration),
		timeout:  5 * time.Second,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterCritical adds a check whose failure makes the service not ready (503).
func (h *Handler) RegisterCritical(name string, checker Checker) {
	h.register(name, checker, true)
}

// RegisterNonCritical adds a check whose failure only degrades the service:
// readiness keeps answering 200 with status "degraded".
func (h *Handler) RegisterNonCritical(name string, checker Checker) {
	h.register(name, checker, false)
}

func (h *Handler) register(name string, checker Checker, critical bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = &registration{checker: checker, critical: critical}
}

// LivenessHandler answers 200 while the process is running.
func (h *Handler) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, http.StatusOK, Response{
			Status:    StatusUp,
			Timestamp: h.now().UTC(),
		})
	}
}

// ReadinessHandler runs every registered check concurrently and answers 503
// when a critical one fails.
func (h *Handler) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := h.Check(r.Context())

		status := http.StatusOK
		if resp.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		writeResponse(w, status, resp)
	}
}

// Check runs the registered checks and aggregates their results.
func (h *Handler) Check(ctx context.Context) Response {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	h.mu.RLock()
	names := make([]string, 0, len(h.checkers))
	regs := make([]*registration, 0, len(h.checkers))
	for name, reg := range h.checkers {
		names = append(names, name)
		regs = append(regs, reg)
	}
	h.mu.RUnlock()

	results := make([]CheckResult, len(regs))
	var g errgroup.Group
	for i, reg := range regs {
		g.Go(func() error {
			results[i] = h.run(ctx, reg)
			return nil
		})
	}
	_ = g.Wait()

	overall := StatusUp
	checks := make(map[string]CheckResult, len(results))
	for i, res := range results {
		checks[names[i]] = res
		if res.Status == StatusUp {
			continue
		}
		switch {
		case res.Critical:
			overall = StatusDown
		case overall == StatusUp:
			overall = StatusDegraded
		}
	}

	return Response{Status: overall, Timestamp: h.now().UTC(), Checks: checks}
}

func (h *Handler) run(ctx context.Context, reg *registration) CheckResult {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if h.cacheTTL > 0 && !reg.last.CheckedAt.IsZero() && h.now().Sub(reg.last.CheckedAt) < h.cacheTTL {
		return reg.last
	}

	start := h.now()
	err := reg.checker(ctx)
	res := CheckResult{
		Status:     StatusUp,
		Critical:   reg.critical,
		DurationMS: h.now().Sub(start).Milliseconds(),
		CheckedAt:  start,
	}
	if err != nil {
		res.Status = StatusDown
		res.Error = err.Error()
	}
	reg.last = res
	return res
}

func writeResponse(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
