package domain

import (
	"fmt"
	"time"
)

// NetworkError is a transport failure: DNS, refused connection, TLS, timeout.
type NetworkError struct {
	Provider ProviderType
	Op       string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error during %s: %v", e.Provider, e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ProviderError is a non-2xx response. StatusCode is zero when the backend
// reported a failure without an HTTP status.
type ProviderError struct {
	Provider   ProviderType
	StatusCode int
	RetryAfter time.Duration
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	}
	if e.Message == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Message)
}

// SchemaValidationError means a response did not have the shape expected for
// the endpoint. It is never retried.
type SchemaValidationError struct {
	Provider ProviderType
	Endpoint string
	Err      error
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("%s: unexpected response shape from %s: %v", e.Provider, e.Endpoint, e.Err)
}

func (e *SchemaValidationError) Unwrap() error { return e.Err }

type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// CapabilityError is returned when a backend cannot perform the requested
// operation at all for the given target.
type CapabilityError struct {
	Provider  ProviderType
	Operation string
	Reason    string
}

func (e *CapabilityError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s does not support %s", e.Provider, e.Operation)
	}
	return fmt.Sprintf("%s does not support %s: %s", e.Provider, e.Operation, e.Reason)
}
