package domain

import (
	"errors"
	"io"
	"testing"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "provider error with status",
			err:  &ProviderError{Provider: ProviderGitHub, StatusCode: 404, Message: "Not Found"},
			want: "github: HTTP 404: Not Found",
		},
		{
			name: "provider error without message",
			err:  &ProviderError{Provider: ProviderGitLab, StatusCode: 500},
			want: "gitlab: HTTP 500",
		},
		{
			name: "provider error without status",
			err:  &ProviderError{Provider: ProviderAzureDevOps, Message: "service unavailable"},
			want: "azuredevops: service unavailable",
		},
		{
			name: "configuration error",
			err:  &ConfigurationError{Field: "token", Reason: "missing"},
			want: "configuration error: token: missing",
		},
		{
			name: "capability error",
			err:  &CapabilityError{Provider: ProviderGitLab, Operation: "inline comment", Reason: "no diff refs"},
			want: "gitlab does not support inline comment: no diff refs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorsUnwrap(t *testing.T) {
	netErr := &NetworkError{Provider: ProviderBitbucket, Op: "GET", Err: io.ErrUnexpectedEOF}
	if !errors.Is(netErr, io.ErrUnexpectedEOF) {
		t.Error("errors.Is(NetworkError, cause) = false, want true")
	}

	schemaErr := &SchemaValidationError{Provider: ProviderGitHub, Endpoint: "/pulls", Err: io.ErrUnexpectedEOF}
	if !errors.Is(schemaErr, io.ErrUnexpectedEOF) {
		t.Error("errors.Is(SchemaValidationError, cause) = false, want true")
	}
}
