package middleware

import (
	"net/http"
	"time"

	"github.com/pkordes/change-observer/internal/metrics"
)

// NewMetrics returns a middleware that records the count and latency of each
// outbound request in m.
func NewMetrics(m *metrics.Metrics) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			start := time.Now()
			resp, err := next.RoundTrip(r)
			status := 0
			if err == nil {
				status = resp.StatusCode
			}
			m.ObserveRequest(r.Method, status, time.Since(start))
			return resp, err
		})
	}
}
