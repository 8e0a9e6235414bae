// Package middleware provides HTTP middleware for the spacesaver API.
package middleware

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/jmylchreest/spacesaver/internal/observability"
)

// RequestIDHeader is the HTTP header carrying the request ID.
const RequestIDHeader = "X-Request-ID"

// RequestID injects a request ID into the context and response headers, and
// stores a request-scoped logger carrying that ID for the middleware and
// handlers downstream. A client-supplied X-Request-ID is honoured, otherwise
// a UUID is generated.
func RequestID(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.New().String()
			}

			w.Header().Set(RequestIDHeader, requestID)

			ctx := observability.ContextWithRequestID(r.Context(), requestID)
			ctx = observability.ContextWithLogger(ctx, observability.WithRequestID(base, requestID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
