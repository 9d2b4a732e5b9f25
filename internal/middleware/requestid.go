// Package middleware provides the HTTP middleware chain for SpendSight:
// request correlation, tenant resolution, per-client rate limiting, and
// idempotent replay of mutating requests.
package middleware

import (
	"net/http"

	"github.com/spendsight/spendsight/internal/logger"
)

const headerRequestID = "X-Request-ID"

// RequestID attaches a correlation ID to every request. A client-supplied
// X-Request-ID is honored so callers can trace a call across systems,
// otherwise a fresh one is minted. The ID is echoed on the response header
// and stored on the context for handlers to log.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = logger.NewRequestID()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}
