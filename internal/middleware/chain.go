// Package middleware provides http.RoundTripper decorators for requests sent
// to the remote marker store: request IDs, structured logging, response size
// limits and metrics.
package middleware

import "net/http"

// Middleware decorates a RoundTripper.
type Middleware func(http.RoundTripper) http.RoundTripper

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// Chain wraps base with mws. The first middleware is the outermost, so it sees
// the request first and the response last. A nil base means http.DefaultTransport.
func Chain(base http.RoundTripper, mws ...Middleware) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	for i := len(mws) - 1; i >= 0; i-- {
		base = mws[i](base)
	}
	return base
}
