// Package backoff decides whether a failed read is retried and how long to
// wait before the next attempt.
package backoff

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/johanforsgren/prdeck/internal/domain"
)

const (
	// MaxRetries caps retries regardless of error kind.
	MaxRetries = 3
	BaseDelay  = time.Second
	MaxDelay   = 4 * time.Second

	// MaxRetryAfter is the longest server requested wait a read sits out.
	// A 429 asking for more is returned to the caller instead.
	MaxRetryAfter = time.Minute
)

var nonRetryableStatus = map[int]bool{
	http.StatusBadRequest:            true,
	http.StatusUnauthorized:          true,
	http.StatusForbidden:             true,
	http.StatusNotFound:              true,
	http.StatusRequestEntityTooLarge: true,
	http.StatusUnprocessableEntity:   true,
}

// ShouldRetry reports whether a read that has already failed failureCount
// times should be attempted again after err.
func ShouldRetry(failureCount int, err error) bool {
	if err == nil || failureCount >= MaxRetries {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		var netErr *domain.NetworkError
		if !errors.As(err, &netErr) {
			return false
		}
	}

	var schemaErr *domain.SchemaValidationError
	var cfgErr *domain.ConfigurationError
	var capErr *domain.CapabilityError
	if errors.As(err, &schemaErr) || errors.As(err, &cfgErr) || errors.As(err, &capErr) {
		return false
	}

	var netErr *domain.NetworkError
	if errors.As(err, &netErr) {
		return true
	}

	var provErr *domain.ProviderError
	if errors.As(err, &provErr) {
		if provErr.StatusCode == http.StatusTooManyRequests && provErr.RetryAfter > MaxRetryAfter {
			return false
		}
		return !nonRetryableStatus[provErr.StatusCode]
	}

	return true
}

// Delay returns the wait before retry number attempt (zero based): 1s, 2s, 4s,
// then 4s. A 429 carrying a server supplied Retry-After uses that instead.
func Delay(attempt int, err error) time.Duration {
	var provErr *domain.ProviderError
	if errors.As(err, &provErr) && provErr.StatusCode == http.StatusTooManyRequests && provErr.RetryAfter > 0 {
		return provErr.RetryAfter
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 3 {
		return MaxDelay
	}
	d := BaseDelay << attempt
	if d > MaxDelay {
		return MaxDelay
	}
	return d
}
