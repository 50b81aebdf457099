package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/storefront/pkg/logger"
)

type contextKeyType string

const sessionIDKey contextKeyType = "session_id"

const (
	// DefaultSessionCookie is the cookie holding the storefront session ID.
	DefaultSessionCookie = "storefront_session"
	// SessionHeader lets API clients without cookies carry the session ID.
	SessionHeader = "X-Session-ID"
)

// SessionConfig holds configuration for the Session middleware.
type SessionConfig struct {
	// CookieName defaults to DefaultSessionCookie.
	CookieName string
	// MaxAge is the cookie lifetime, renewed on every request. Defaults to 30 days.
	MaxAge time.Duration
	// Secure marks the cookie HTTPS-only.
	Secure bool
}

// Session returns middleware that identifies the storefront session of a
// request. The ID is read from the X-Session-ID header or the session cookie;
// requests carrying neither, or a malformed ID, get a fresh one. The ID is
// echoed in the X-Session-ID response header and stored in context.
func Session(cfg SessionConfig) func(http.Handler) http.Handler {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultSessionCookie
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = 30 * 24 * time.Hour
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(SessionHeader)
			if id == "" {
				if c, err := r.Cookie(cfg.CookieName); err == nil {
					id = c.Value
				}
			}
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.New().String()
			}

			http.SetCookie(w, &http.Cookie{
				Name:     cfg.CookieName,
				Value:    id,
				Path:     "/",
				MaxAge:   int(cfg.MaxAge.Seconds()),
				HttpOnly: true,
				Secure:   cfg.Secure,
				SameSite: http.SameSiteLaxMode,
			})
			w.Header().Set(SessionHeader, id)

			next.ServeHTTP(w, r.WithContext(WithSessionID(r.Context(), id)))
		})
	}
}

// WithSessionID returns a context carrying the session ID. Records logged
// with the context carry it as session_id.
func WithSessionID(ctx context.Context, id string) context.Context {
	return logger.WithSessionID(context.WithValue(ctx, sessionIDKey, id), id)
}

// SessionIDFromContext extracts the session ID set by the Session middleware.
func SessionIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(sessionIDKey).(string); ok {
		return id
	}
	return ""
}
