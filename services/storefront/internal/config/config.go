package config

import (
	"fmt"
	"strings"
	"time"

	pkgconfig "github.com/utafrali/storefront/pkg/config"
)

// API modes select the commerce backend.
const (
	APIModeGraphQL = "graphql"
	APIModeMock    = "mock"
)

// Config holds all configuration for the storefront service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort        int           `env:"STOREFRONT_HTTP_PORT" envDefault:"8080"`
	RequestTimeout  time.Duration `env:"STOREFRONT_REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"STOREFRONT_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Commerce API
	APIMode        string        `env:"STOREFRONT_API_MODE" envDefault:"mock"`
	StoreDomain    string        `env:"PUBLIC_STORE_DOMAIN"`
	APIVersion     string        `env:"PUBLIC_STOREFRONT_API_VERSION" envDefault:"2024-10"`
	APIToken       string        `env:"PUBLIC_STOREFRONT_API_TOKEN"`
	APITimeout     time.Duration `env:"STOREFRONT_API_TIMEOUT" envDefault:"10s"`
	MockAPILatency time.Duration `env:"STOREFRONT_MOCK_LATENCY" envDefault:"0s"`

	// Circuit breaker in front of the Storefront API
	BreakerOpenTimeout  time.Duration `env:"STOREFRONT_API_BREAKER_OPEN_TIMEOUT" envDefault:"30s"`
	BreakerFailureRatio float64       `env:"STOREFRONT_API_BREAKER_FAILURE_RATIO" envDefault:"0.5"`
	BreakerMinRequests  uint32        `env:"STOREFRONT_API_BREAKER_MIN_REQUESTS" envDefault:"5"`

	// Sessions
	SessionCookie    string        `env:"SESSION_COOKIE_NAME" envDefault:"storefront_session"`
	SessionSecure    bool          `env:"SESSION_COOKIE_SECURE" envDefault:"false"`
	SessionTTL       time.Duration `env:"SESSION_TTL" envDefault:"720h"`
	SessionCacheSize int           `env:"SESSION_CACHE_SIZE" envDefault:"10000"`
	SessionIdleTTL   time.Duration `env:"SESSION_IDLE_TTL" envDefault:"30m"`

	// Per-session mutation rate limit; 0 disables it.
	MutationRPS   float64 `env:"MUTATION_RATE_LIMIT_RPS" envDefault:"20"`
	MutationBurst int     `env:"MUTATION_RATE_LIMIT_BURST" envDefault:"40"`
	// Budget shared by every session of one client address.
	MutationClientRPS   float64 `env:"MUTATION_RATE_LIMIT_CLIENT_RPS" envDefault:"80"`
	MutationClientBurst int     `env:"MUTATION_RATE_LIMIT_CLIENT_BURST" envDefault:"160"`
	// Read the client address from X-Forwarded-For; set only behind a proxy.
	TrustForwardedFor bool `env:"TRUST_FORWARDED_FOR" envDefault:"false"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	// Readiness results are reused for this long; the commerce API check
	// counts against the shop's rate limit.
	HealthCacheTTL time.Duration `env:"HEALTH_CACHE_TTL" envDefault:"5s"`

	// Redis
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Pprof debug endpoints (IP allowlist in CIDR notation)
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8,::1/128" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// StoreURL returns the shop origin for the Storefront API.
func (c *Config) StoreURL() string {
	if strings.HasPrefix(c.StoreDomain, "http://") || strings.HasPrefix(c.StoreDomain, "https://") {
		return c.StoreDomain
	}
	return "https://" + c.StoreDomain
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	switch c.APIMode {
	case APIModeMock:
	case APIModeGraphQL:
		if c.StoreDomain == "" {
			return fmt.Errorf("PUBLIC_STORE_DOMAIN is required when STOREFRONT_API_MODE is %q", APIModeGraphQL)
		}
		if c.APIToken == "" {
			return fmt.Errorf("PUBLIC_STOREFRONT_API_TOKEN is required when STOREFRONT_API_MODE is %q", APIModeGraphQL)
		}
	default:
		return fmt.Errorf("STOREFRONT_API_MODE must be %q or %q, got %q", APIModeGraphQL, APIModeMock, c.APIMode)
	}

	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		return fmt.Errorf("STOREFRONT_API_BREAKER_FAILURE_RATIO must be in (0, 1], got %f", c.BreakerFailureRatio)
	}
	if c.BreakerOpenTimeout <= 0 {
		return fmt.Errorf("STOREFRONT_API_BREAKER_OPEN_TIMEOUT must be positive, got %s", c.BreakerOpenTimeout)
	}

	if c.SessionCacheSize < 1 {
		return fmt.Errorf("SESSION_CACHE_SIZE must be positive, got %d", c.SessionCacheSize)
	}
	if c.MutationRPS < 0 {
		return fmt.Errorf("MUTATION_RATE_LIMIT_RPS must not be negative, got %f", c.MutationRPS)
	}
	if c.MutationRPS > 0 && c.MutationBurst < 1 {
		return fmt.Errorf("MUTATION_RATE_LIMIT_BURST must be positive, got %d", c.MutationBurst)
	}
	if c.MutationRPS > 0 && (c.MutationClientRPS < c.MutationRPS || c.MutationClientBurst < c.MutationBurst) {
		return fmt.Errorf("MUTATION_RATE_LIMIT_CLIENT_RPS and MUTATION_RATE_LIMIT_CLIENT_BURST must be at least the per-session limits")
	}
	if c.HealthCacheTTL < 0 {
		return fmt.Errorf("HEALTH_CACHE_TTL must not be negative, got %s", c.HealthCacheTTL)
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is set")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}
