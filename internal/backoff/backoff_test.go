package backoff

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/johanforsgren/prdeck/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestShouldRetry(t *testing.T) {
	netErr := &domain.NetworkError{Provider: domain.ProviderGitHub, Op: "GET", Err: errors.New("connection refused")}

	tests := []struct {
		name     string
		failures int
		err      error
		want     bool
	}{
		{name: "network error first failure", failures: 0, err: netErr, want: true},
		{name: "network error after cap", failures: 3, err: netErr, want: false},
		{name: "network error wrapped", failures: 1, err: fmt.Errorf("list: %w", netErr), want: true},
		{name: "404", failures: 0, err: &domain.ProviderError{StatusCode: 404}, want: false},
		{name: "400", failures: 0, err: &domain.ProviderError{StatusCode: 400}, want: false},
		{name: "401", failures: 0, err: &domain.ProviderError{StatusCode: 401}, want: false},
		{name: "403", failures: 0, err: &domain.ProviderError{StatusCode: 403}, want: false},
		{name: "422", failures: 0, err: &domain.ProviderError{StatusCode: 422}, want: false},
		{name: "500", failures: 0, err: &domain.ProviderError{StatusCode: 500}, want: true},
		{name: "503", failures: 2, err: &domain.ProviderError{StatusCode: 503}, want: true},
		{name: "429", failures: 0, err: &domain.ProviderError{StatusCode: 429}, want: true},
		{name: "429 short retry-after", failures: 0, err: &domain.ProviderError{StatusCode: 429, RetryAfter: 30 * time.Second}, want: true},
		{name: "429 retry-after at cap", failures: 0, err: &domain.ProviderError{StatusCode: 429, RetryAfter: MaxRetryAfter}, want: true},
		{name: "429 rate limit reset far away", failures: 0, err: &domain.ProviderError{StatusCode: 429, RetryAfter: 45 * time.Minute}, want: false},
		{name: "413 response too large", failures: 0, err: &domain.ProviderError{StatusCode: 413}, want: false},
		{name: "missing status", failures: 0, err: &domain.ProviderError{Message: "boom"}, want: true},
		{name: "other status", failures: 0, err: &domain.ProviderError{StatusCode: 409}, want: true},
		{name: "schema error", failures: 0, err: &domain.SchemaValidationError{Err: errors.New("bad")}, want: false},
		{name: "configuration error", failures: 0, err: &domain.ConfigurationError{Field: "token"}, want: false},
		{name: "capability error", failures: 0, err: &domain.CapabilityError{Operation: "inline"}, want: false},
		{name: "context canceled", failures: 0, err: context.Canceled, want: false},
		{name: "unknown error", failures: 0, err: errors.New("mystery"), want: true},
		{name: "unknown error after cap", failures: 3, err: errors.New("mystery"), want: false},
		{name: "nil error", failures: 0, err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldRetry(tt.failures, tt.err))
		})
	}
}

func TestDelay(t *testing.T) {
	tests := []struct {
		name    string
		attempt int
		err     error
		want    time.Duration
	}{
		{name: "attempt 0", attempt: 0, want: 1000 * time.Millisecond},
		{name: "attempt 1", attempt: 1, want: 2000 * time.Millisecond},
		{name: "attempt 2", attempt: 2, want: 4000 * time.Millisecond},
		{name: "attempt 3", attempt: 3, want: 4000 * time.Millisecond},
		{name: "attempt 5", attempt: 5, want: 4000 * time.Millisecond},
		{name: "attempt 64", attempt: 64, want: 4000 * time.Millisecond},
		{
			name:    "429 with retry-after",
			attempt: 0,
			err:     &domain.ProviderError{StatusCode: 429, RetryAfter: 30000 * time.Millisecond},
			want:    30000 * time.Millisecond,
		},
		{
			name:    "429 without retry-after",
			attempt: 1,
			err:     &domain.ProviderError{StatusCode: 429},
			want:    2000 * time.Millisecond,
		},
		{
			name:    "503 ignores retry-after",
			attempt: 0,
			err:     &domain.ProviderError{StatusCode: 503, RetryAfter: 10 * time.Second},
			want:    1000 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Delay(tt.attempt, tt.err))
		})
	}
}
