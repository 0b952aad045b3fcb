package middleware

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrResponseTooLarge is returned when a response body exceeds the configured limit.
var ErrResponseTooLarge = errors.New("response body too large")

// NewMaxBodySize returns a middleware that limits response bodies to limit
// bytes. A response advertising a larger Content-Length is rejected before
// any of its body is read; a streamed body fails with ErrResponseTooLarge
// once the limit is exceeded.
func NewMaxBodySize(limit int64) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			resp, err := next.RoundTrip(r)
			if err != nil {
				return nil, err
			}
			if resp.ContentLength > limit {
				resp.Body.Close()
				return nil, fmt.Errorf("%w: %d > %d bytes", ErrResponseTooLarge, resp.ContentLength, limit)
			}
			resp.Body = &limitedBody{rc: resp.Body, n: limit}
			return resp, nil
		})
	}
}

// limitedBody reads at most n bytes and reports ErrResponseTooLarge if the
// underlying body has more.
type limitedBody struct {
	rc io.ReadCloser
	n  int64
}

func (b *limitedBody) Read(p []byte) (int, error) {
	if b.n <= 0 {
		var probe [1]byte
		n, err := b.rc.Read(probe[:])
		if n > 0 {
			return 0, ErrResponseTooLarge
		}
		return 0, err
	}
	if int64(len(p)) > b.n {
		p = p[:b.n]
	}
	n, err := b.rc.Read(p)
	b.n -= int64(n)
	return n, err
}

func (b *limitedBody) Close() error { return b.rc.Close() }
