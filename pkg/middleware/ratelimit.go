package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/utafrali/storefront/pkg/httputil"
)

// RateLimitConfig holds configuration for the RateLimit middleware.
type RateLimitConfig struct {
	// RPS is the sustained number of requests per second per session.
	RPS float64
	// Burst is the token bucket size per session.
	Burst int
	// ClientRPS and ClientBurst bound all sessions of one client address
	// together. They default to four times RPS and Burst.
	ClientRPS   float64
	ClientBurst int
	// TrustForwardedFor takes the client address from X-Forwarded-For or
	// X-Real-IP. Enable it only behind a proxy that sets those headers.
	TrustForwardedFor bool
	// MaxClients bounds how many limiters are kept per tier. Defaults to 10000.
	MaxClients int
	// IdleTTL drops the limiter of a client not seen for this long.
	// Defaults to 10 minutes.
	IdleTTL time.Duration
}

func (c RateLimitConfig) withDefaults() RateLimitConfig {
	if c.ClientRPS <= 0 {
		c.ClientRPS = 4 * c.RPS
	}
	if c.ClientBurst <= 0 {
		c.ClientBurst = 4 * c.Burst
	}
	if c.MaxClients <= 0 {
		c.MaxClients = 10000
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = 10 * time.Minute
	}
	return c
}

// limiterStore keeps one token bucket per key in a bounded, expiring cache.
// A key evicted and seen again starts with a full bucket.
type limiterStore struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, *rate.Limiter]
	rps   rate.Limit
	burst int
}

func newLimiterStore(rps float64, burst, size int, ttl time.Duration) *limiterStore {
	return &limiterStore{
		cache: expirable.NewLRU[string, *rate.Limiter](size, nil, ttl),
		rps:   rate.Limit(rps),
		burst: burst,
	}
}

// get returns (or creates) the limiter for key and refreshes its TTL.
func (s *limiterStore) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.cache.Get(key)
	if !ok {
		l = rate.NewLimiter(s.rps, s.burst)
	}
	s.cache.Add(key, l)
	return l
}

// allow takes a token for key. When none is available it returns how long
// until one will be.
func (s *limiterStore) allow(key string) (bool, time.Duration) {
	return admit(time.Now(), s.get(key))
}

func (s *limiterStore) len() int {
	return s.cache.Len()
}

// admit takes one token from every limiter, or from none of them. When any
// limiter is short it returns the longest wait.
func admit(now time.Time, limiters ...*rate.Limiter) (bool, time.Duration) {
	reservations := make([]*rate.Reservation, 0, len(limiters))
	var wait time.Duration
	for _, l := range limiters {
		res := l.ReserveN(now, 1)
		if !res.OK() {
			wait = max(wait, time.Second)
			continue
		}
		reservations = append(reservations, res)
		wait = max(wait, res.DelayFrom(now))
	}
	if wait == 0 {
		return true, 0
	}
	for _, res := range reservations {
		res.CancelAt(now)
	}
	return false, wait
}

// RateLimit returns middleware that enforces token bucket rate limiting per
// storefront session and per client address. A request must fit both
// buckets, so minting new session ids does not raise a client's budget.
// Requests without a session are limited by address at the session rate.
// Returns HTTP 429 Too Many Requests when a limit is exceeded.
func RateLimit(cfg RateLimitConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	cfg = cfg.withDefaults()
	sessions := newLimiterStore(cfg.RPS, cfg.Burst, cfg.MaxClients, cfg.IdleTTL)
	clients := newLimiterStore(cfg.ClientRPS, cfg.ClientBurst, cfg.MaxClients, cfg.IdleTTL)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r, cfg.TrustForwardedFor)
			key := SessionIDFromContext(r.Context())
			if key == "" {
				key = "ip:" + ip
			}

			ok, wait := admit(time.Now(), sessions.get(key), clients.get(ip))
			if !ok {
				logger.WarnContext(r.Context(), "rate limit exceeded",
					slog.String("client", key),
					slog.String("client_ip", ip),
					slog.String("path", r.URL.Path),
					slog.Duration("retry_after", wait),
				)
				w.Header().Set("Retry-After", strconv.Itoa(max(1, int(math.Ceil(wait.Seconds())))))
				httputil.WriteErrorCode(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP returns the client address of r. Forwarding headers are read
// only when trustForwarded is set; otherwise they are client-controlled.
func clientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
				return ip.String()
			}
		}

		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			if ip := net.ParseIP(xri); ip != nil {
				return ip.String()
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
