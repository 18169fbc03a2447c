// Package middleware adapts the teacher's chi middleware stack
// (RequestID/Logger/Recoverer) for the diagnostics HTTP server.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// SlowRequestThreshold is when a request is logged at WARN instead of INFO.
const SlowRequestThreshold = 100 * time.Millisecond

// ContextKey namespaces middleware-set context values.
type ContextKey string

// RequestIDKey is the context key RequestID stores the correlation id under.
const RequestIDKey ContextKey = "request_id"

// RequestID generates or extracts X-Request-ID and threads it through the
// request context, so handlers and logs can correlate a request end to end.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request id stored in ctx, or "" if absent.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// Logger logs one structured line per request, WARN above
// SlowRequestThreshold and INFO otherwise.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		duration := time.Since(start)

		fields := []any{
			"method", r.Method, "path", r.URL.Path, "status", ww.Status(),
			"duration", duration, "request_id", GetRequestID(r.Context()),
		}
		if duration > SlowRequestThreshold {
			slog.Warn("slow http request", fields...)
		} else {
			slog.Info("http request", fields...)
		}
	})
}

// Recoverer recovers panics in handlers into a 500, delegating to chi's
// implementation.
func Recoverer(next http.Handler) http.Handler {
	return chimw.Recoverer(next)
}
