package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// NewSlogLogger returns a middleware that logs each outbound request as one
// structured line via log: method, path, HTTP status, duration and the
// X-Request-Id header. Failed round trips are logged at warn level with
// status 0 and the error.
//
// Wire it inside RequestID so the request ID is already set.
func NewSlogLogger(log *slog.Logger) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			start := time.Now()

			resp, err := next.RoundTrip(r)

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", 0,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", r.Header.Get(RequestIDHeader),
			}
			if err != nil {
				log.WarnContext(r.Context(), "store request failed", append(attrs, "error", err)...)
				return nil, err
			}
			attrs[5] = resp.StatusCode
			log.InfoContext(r.Context(), "store request", attrs...)
			return resp, nil
		})
	}
}
