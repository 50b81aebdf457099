package middleware

import (
	"net/http"
)

// NoStore marks responses as uncacheable. Cart responses are per session and
// change with every mutation.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
