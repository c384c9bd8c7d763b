package common

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// LoggingTransport logs every request and response with sensitive headers redacted.
type LoggingTransport struct {
	Transport http.RoundTripper
	Logger    *slog.Logger
}

func NewLoggingTransport(transport http.RoundTripper, logger *slog.Logger) *LoggingTransport {
	if transport == nil {
		transport = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingTransport{Transport: transport, Logger: logger}
}

func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	start := time.Now()

	t.Logger.DebugContext(ctx, "HTTP request",
		"method", req.Method,
		"url", req.URL.String(),
		"headers", redactHeaders(req.Header))

	resp, err := t.Transport.RoundTrip(req)
	elapsed := time.Since(start)
	if err != nil {
		t.Logger.ErrorContext(ctx, "HTTP request failed",
			"method", req.Method,
			"path", req.URL.Path,
			"error", err,
			"elapsed", elapsed)
		return nil, err
	}

	t.Logger.DebugContext(ctx, "HTTP response",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"elapsed", elapsed,
		"retry_after", resp.Header.Get("Retry-After"))
	return resp, nil
}

func redactHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if isSensitiveHeader(name) {
			out[name] = "[REDACTED]"
			continue
		}
		out[name] = strings.Join(values, ", ")
	}
	return out
}

func isSensitiveHeader(name string) bool {
	switch strings.ToLower(name) {
	case "authorization", "private-token", "x-api-key", "api-key", "x-auth-token", "cookie", "set-cookie":
		return true
	}
	return false
}
