package common

import (
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimitTransport spaces outgoing requests with a token bucket. Waiting
// respects the request context.
type RateLimitTransport struct {
	Transport http.RoundTripper
	Limiter   *rate.Limiter
}

func NewRateLimitTransport(transport http.RoundTripper, requestsPerSecond float64, burst int) *RateLimitTransport {
	if transport == nil {
		transport = http.DefaultTransport
	}
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitTransport{Transport: transport, Limiter: rate.NewLimiter(limit, burst)}
}

func (t *RateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.Limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.Transport.RoundTrip(req)
}
