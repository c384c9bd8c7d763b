package common

import (
	"log/slog"

	"github.com/johanforsgren/prdeck/internal/domain"
)

// Config is what every adapter constructor receives.
type Config struct {
	Token        string
	Username     string
	Organization string
	BaseURL      string
	HTTP         HTTPOptions
	Logger       *slog.Logger
}

func (c Config) Log() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// RequireToken fails with a ConfigurationError when no token is set.
func (c Config) RequireToken() error {
	if c.Token == "" {
		return &domain.ConfigurationError{Field: "token", Reason: "missing"}
	}
	return nil
}
