package middleware

import (
	"net/http"

	"github.com/google/uuid"
)

// RequestIDHeader is the header carrying the correlation ID. It matches the
// header chi's RequestID middleware reads on the server side.
const RequestIDHeader = "X-Request-Id"

// RequestID sets a random X-Request-Id on requests that do not carry one.
// The caller's request is never modified; a clone is sent instead.
func RequestID(next http.RoundTripper) http.RoundTripper {
	return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		if r.Header.Get(RequestIDHeader) == "" {
			r = r.Clone(r.Context())
			r.Header.Set(RequestIDHeader, uuid.NewString())
		}
		return next.RoundTrip(r)
	})
}
