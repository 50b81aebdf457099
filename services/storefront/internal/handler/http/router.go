package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/middleware"
	"github.com/utafrali/storefront/services/storefront/internal/service"
)

const serviceName = "storefront"

// RouterConfig holds the HTTP surface settings.
type RouterConfig struct {
	RequestTimeout time.Duration
	PprofCIDRs     []string
	CORS           middleware.CORSConfig
	Session        middleware.SessionConfig
	// MutationRateLimit applies to mutation endpoints only. A zero RPS disables it.
	MutationRateLimit middleware.RateLimitConfig
}

// NewRouter creates a chi router with all storefront routes registered.
func NewRouter(
	cartService *service.CartService,
	healthHandler *health.Handler,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.Tracing(serviceName))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	cartHandler := NewCartHandler(cartService, logger)

	mutations := func(next http.Handler) http.Handler { return next }
	if cfg.MutationRateLimit.RPS > 0 {
		mutations = middleware.RateLimit(cfg.MutationRateLimit, logger)
	}

	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Use(middleware.CORS(cfg.CORS))
		r.Use(middleware.Session(cfg.Session))
		r.Use(middleware.RequestLogger(logger))
		r.Use(middleware.NoStore)
		r.Use(ContentTypeJSON)

		r.Get("/", cartHandler.GetCart)

		r.Group(func(r chi.Router) {
			r.Use(mutations)

			r.Post("/mutations", cartHandler.SubmitMutation)
			r.Post("/lines/{lineId}/increment", cartHandler.IncrementLine)
			r.Post("/lines/{lineId}/decrement", cartHandler.DecrementLine)
			r.Delete("/lines/{lineId}", cartHandler.RemoveLine)
			r.Put("/discount-codes", cartHandler.UpdateDiscountCodes)
			r.Put("/gift-card-codes", cartHandler.UpdateGiftCardCodes)
		})
	})

	return r
}
