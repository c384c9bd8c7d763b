package common

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/johanforsgren/prdeck/internal/domain"
)

const (
	maxResponseSize  = 10 * 1024 * 1024
	maxErrorBodySize = 1024
)

// RESTClient is a small JSON client shared by the adapters that talk to
// their backend without an SDK.
type RESTClient struct {
	Provider   domain.ProviderType
	BaseURL    string
	HTTPClient *http.Client
	// Authorize decorates every outgoing request with credentials.
	Authorize func(req *http.Request)
	Logger    *slog.Logger
}

// Response carries the parts of an HTTP response adapters need after decoding.
type Response struct {
	StatusCode int
	Header     http.Header
}

func (c *RESTClient) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *RESTClient) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// Do sends a request and returns the raw body of a 2xx response.
func (c *RESTClient) Do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, *Response, error) {
	apiURL := strings.TrimSuffix(c.BaseURL, "/") + path
	if len(query) > 0 {
		apiURL += "?" + query.Encode()
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, reader)
	if err != nil {
		return nil, nil, &domain.ConfigurationError{Field: "base_url", Reason: err.Error()}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Authorize != nil {
		c.Authorize(req)
	}

	start := time.Now()
	resp, err := c.httpClient().Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.logger().ErrorContext(ctx, "API request failed", "provider", c.Provider, "method", method, "path", path, "error", err, "elapsed", elapsed)
		return nil, nil, TransportError(c.Provider, method+" "+path, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger().DebugContext(ctx, "failed to close response body", "error", closeErr, "path", path)
		}
	}()

	c.logger().DebugContext(ctx, "API response received", "provider", c.Provider, "method", method, "path", path, "status", resp.StatusCode, "elapsed", elapsed)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		if readErr != nil {
			errBody = nil
		}
		c.logger().WarnContext(ctx, "API error", "provider", c.Provider, "path", path, "status", resp.StatusCode, "body", string(errBody))
		return nil, &Response{StatusCode: resp.StatusCode, Header: resp.Header}, &domain.ProviderError{
			Provider:   c.Provider,
			StatusCode: resp.StatusCode,
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
			Message:    errorMessage(resp.Status, errBody),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, nil, &domain.NetworkError{Provider: c.Provider, Op: method + " " + path, Err: err}
	}
	if len(data) > maxResponseSize {
		c.logger().WarnContext(ctx, "API response too large", "provider", c.Provider, "path", path, "limit", maxResponseSize)
		return nil, &Response{StatusCode: resp.StatusCode, Header: resp.Header}, &domain.ProviderError{
			Provider:   c.Provider,
			StatusCode: http.StatusRequestEntityTooLarge,
			Message:    fmt.Sprintf("response to %s %s exceeds %d bytes", method, path, maxResponseSize),
		}
	}
	return data, &Response{StatusCode: resp.StatusCode, Header: resp.Header}, nil
}

// Get decodes a JSON response into v and validates it.
func (c *RESTClient) Get(ctx context.Context, path string, query url.Values, v any) (*Response, error) {
	data, resp, err := c.Do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return resp, err
	}
	return resp, DecodePayload(c.Provider, path, data, v)
}

// GetText returns the response body as text, for diff endpoints.
func (c *RESTClient) GetText(ctx context.Context, path string, query url.Values) (string, error) {
	data, _, err := c.Do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Send issues a write. When v is non-nil the response is decoded into it.
func (c *RESTClient) Send(ctx context.Context, method, path string, body, v any) error {
	data, _, err := c.Do(ctx, method, path, nil, body)
	if err != nil {
		return err
	}
	if v == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return DecodePayload(c.Provider, path, data, v)
}

// ParseRetryAfter accepts both delta-seconds and HTTP-date forms.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func errorMessage(status string, body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	if len(body) > 0 && json.Unmarshal(body, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		switch e := payload.Error.(type) {
		case string:
			return e
		case map[string]any:
			if m, ok := e["message"].(string); ok {
				return m
			}
		}
	}
	return status
}
