package common

import (
	"log/slog"
	"net/http"
	"time"
)

const DefaultTimeout = 30 * time.Second

// HTTPOptions configures the transport chain every adapter builds on.
type HTTPOptions struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	Logger            *slog.Logger
	// Transport replaces http.DefaultTransport at the bottom of the chain.
	Transport http.RoundTripper
}

// NewHTTPClient wraps the base transport with rate limiting and request logging.
func NewHTTPClient(opts HTTPOptions) *http.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	var rt http.RoundTripper = NewRateLimitTransport(opts.Transport, opts.RequestsPerSecond, opts.Burst)
	rt = NewLoggingTransport(rt, opts.Logger)
	return &http.Client{Transport: rt, Timeout: timeout}
}
