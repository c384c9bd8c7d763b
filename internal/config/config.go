// Package config loads runtime settings from ~/.prdeck/config.yaml, a .env
// file and the process environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/johanforsgren/prdeck/internal/cache"
	"github.com/johanforsgren/prdeck/internal/domain"
	"github.com/johanforsgren/prdeck/internal/provider/common"
)

const FileName = "config.yaml"

type Config struct {
	Log  LogConfig  `yaml:"log"`
	HTTP HTTPConfig `yaml:"http"`
	// StaleTimes overrides the stale time per cache kind, e.g. checks: 5s.
	StaleTimes map[string]time.Duration `yaml:"stale_times" validate:"dive,gte=0"`
	// Repository is the owner/repo used when a command names none.
	Repository string `yaml:"repository"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	File  string `yaml:"file"`
}

type HTTPConfig struct {
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
	// RequestsPerSecond is keyed by provider type; zero disables limiting.
	RequestsPerSecond map[string]float64 `yaml:"requests_per_second" validate:"dive,keys,oneof=github gitlab bitbucket azuredevops,endkeys,gte=0"`
	Burst             int                `yaml:"burst" validate:"gte=0"`
}

func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		HTTP: HTTPConfig{
			Timeout: common.DefaultTimeout,
			RequestsPerSecond: map[string]float64{
				string(domain.ProviderGitHub):      10,
				string(domain.ProviderGitLab):      10,
				string(domain.ProviderBitbucket):   5,
				string(domain.ProviderAzureDevOps): 10,
			},
			Burst: 5,
		},
	}
}

var validate = validator.New()

// Load reads path when it exists, applies a .env file from the working
// directory and then the environment, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	_ = godotenv.Load()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultPath is ~/.prdeck/config.yaml.
func DefaultPath(dir string) string {
	return filepath.Join(dir, FileName)
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PRDECK_LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("PRDECK_LOG_FILE"); v != "" {
		c.Log.File = v
	}
	if v := os.Getenv("PRDECK_HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return &domain.ConfigurationError{Field: "PRDECK_HTTP_TIMEOUT", Reason: err.Error()}
		}
		c.HTTP.Timeout = d
	}
	if v := os.Getenv("PRDECK_REPOSITORY"); v != "" {
		c.Repository = v
	}
	return nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &domain.ConfigurationError{Field: verrs[0].Namespace(), Reason: fmt.Sprintf("failed %q check", verrs[0].Tag())}
		}
		return &domain.ConfigurationError{Field: "config", Reason: err.Error()}
	}
	for name := range c.StaleTimes {
		if _, ok := knownKinds[cache.Kind(name)]; !ok {
			return &domain.ConfigurationError{Field: "stale_times." + name, Reason: "unknown cache kind"}
		}
	}
	return nil
}

var knownKinds = map[cache.Kind]struct{}{
	cache.KindPullRequests:         {},
	cache.KindPullRequest:          {},
	cache.KindDiff:                 {},
	cache.KindFiles:                {},
	cache.KindCommits:              {},
	cache.KindComments:             {},
	cache.KindIssueComments:        {},
	cache.KindReviews:              {},
	cache.KindChecks:               {},
	cache.KindMyPullRequests:       {},
	cache.KindReviewRequests:       {},
	cache.KindInvolvedPullRequests: {},
	cache.KindViewer:               {},
}

// StaleTimeOverrides converts the validated overrides for the query engine.
func (c *Config) StaleTimeOverrides() map[cache.Kind]time.Duration {
	out := make(map[cache.Kind]time.Duration, len(c.StaleTimes))
	for name, d := range c.StaleTimes {
		out[cache.Kind(name)] = d
	}
	return out
}

func (c *Config) SlogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// HTTPOptions returns the transport settings for one provider.
func (c *Config) HTTPOptions(p domain.ProviderType, log *slog.Logger) common.HTTPOptions {
	return common.HTTPOptions{
		Timeout:           c.HTTP.Timeout,
		RequestsPerSecond: c.HTTP.RequestsPerSecond[string(p)],
		Burst:             c.HTTP.Burst,
		Logger:            log,
	}
}
