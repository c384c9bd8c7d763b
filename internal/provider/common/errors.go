package common

import (
	"context"
	"errors"
	"net"
	"net/url"
	"regexp"
	"strings"

	"github.com/johanforsgren/prdeck/internal/domain"
)

var (
	ErrInvalidIdentifierFormat = errors.New("invalid PR identifier format")
	ErrProviderMismatch        = errors.New("provider type mismatch")
)

var apiMessageRegex = regexp.MustCompile(`Message:([^\]}]+)`)

// ExtractErrorMessage pulls the human readable part out of verbose API errors.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if m := apiMessageRegex.FindStringSubmatch(msg); len(m) == 2 {
		return strings.TrimSpace(m[1])
	}
	return msg
}

// TransportError classifies an error returned before any HTTP status was seen.
// Cancellation is passed through untouched; timeouts count as network errors.
func TransportError(provider domain.ProviderType, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return &domain.NetworkError{Provider: provider, Op: op, Err: err}
	}
	return err
}
