package common

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/johanforsgren/prdeck/internal/domain"
)

func TestExtractErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "GitHub API error with Message field",
			err:      errors.New("POST https://api.github.com/repos/o/r/pulls/6/reviews: 422 Unprocessable Entity [{Resource: Field: Code: Message:Review Can not request changes on your own pull request}]"),
			expected: "Review Can not request changes on your own pull request",
		},
		{
			name:     "Simple error message",
			err:      errors.New("connection timeout"),
			expected: "connection timeout",
		},
		{
			name:     "Nil error",
			err:      nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := ExtractErrorMessage(tt.err); result != tt.expected {
				t.Errorf("ExtractErrorMessage() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestTransportError(t *testing.T) {
	urlErr := &url.Error{Op: "Get", URL: "https://example.com", Err: errors.New("connection refused")}
	var netErr *domain.NetworkError
	if !errors.As(TransportError(domain.ProviderGitHub, "GET", urlErr), &netErr) {
		t.Error("TransportError(url.Error) is not a NetworkError")
	}

	canceled := &url.Error{Op: "Get", URL: "https://example.com", Err: context.Canceled}
	if got := TransportError(domain.ProviderGitHub, "GET", canceled); errors.As(got, &netErr) {
		t.Error("TransportError(canceled) should not be a NetworkError")
	}

	plain := errors.New("boom")
	if got := TransportError(domain.ProviderGitHub, "GET", plain); got != plain {
		t.Errorf("TransportError(plain) = %v, want it unchanged", got)
	}
}
