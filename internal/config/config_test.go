package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/johanforsgren/prdeck/internal/cache"
	"github.com/johanforsgren/prdeck/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.HTTP.Timeout != 30*time.Second {
		t.Errorf("HTTP.Timeout = %s", cfg.HTTP.Timeout)
	}
	if got := cfg.HTTPOptions(domain.ProviderBitbucket, nil).RequestsPerSecond; got != 5 {
		t.Errorf("bitbucket rate = %v, want 5", got)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  file: /tmp/prdeck.log
http:
  timeout: 10s
  requests_per_second:
    github: 2.5
stale_times:
  checks: 5s
  diff: 10m
repository: octo/app
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("SlogLevel = %v", cfg.SlogLevel())
	}
	if cfg.HTTP.Timeout != 10*time.Second {
		t.Errorf("HTTP.Timeout = %s", cfg.HTTP.Timeout)
	}
	if got := cfg.HTTPOptions(domain.ProviderGitHub, nil).RequestsPerSecond; got != 2.5 {
		t.Errorf("github rate = %v", got)
	}
	if cfg.Repository != "octo/app" {
		t.Errorf("Repository = %q", cfg.Repository)
	}

	overrides := cfg.StaleTimeOverrides()
	if overrides[cache.KindChecks] != 5*time.Second || overrides[cache.KindDiff] != 10*time.Minute {
		t.Errorf("StaleTimeOverrides = %v", overrides)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown level", "log:\n  level: loud\n"},
		{"negative timeout", "http:\n  timeout: -1s\n"},
		{"unknown provider rate", "http:\n  requests_per_second:\n    gitea: 1\n"},
		{"unknown cache kind", "stale_times:\n  everything: 1s\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			var cfgErr *domain.ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Errorf("expected ConfigurationError, got %v", err)
			}
		})
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "log: [")); err == nil {
		t.Error("expected parse error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PRDECK_LOG_LEVEL", "WARN")
	t.Setenv("PRDECK_HTTP_TIMEOUT", "45s")
	t.Setenv("PRDECK_REPOSITORY", "acme/api")

	cfg, err := Load(writeConfig(t, "log:\n  level: debug\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want warn", cfg.Log.Level)
	}
	if cfg.HTTP.Timeout != 45*time.Second {
		t.Errorf("HTTP.Timeout = %s", cfg.HTTP.Timeout)
	}
	if cfg.Repository != "acme/api" {
		t.Errorf("Repository = %q", cfg.Repository)
	}

	t.Setenv("PRDECK_HTTP_TIMEOUT", "soon")
	if _, err := Load(writeConfig(t, "")); err == nil {
		t.Error("expected error for bad timeout")
	}
}

func TestEnvAccounts(t *testing.T) {
	for _, e := range envAccounts {
		t.Setenv(e.token, "")
	}
	t.Setenv("GITHUB_TOKEN", "ghp_env")
	t.Setenv("BITBUCKET_APP_PASSWORD", "app-pw")
	t.Setenv("BITBUCKET_USERNAME", "jo")
	t.Setenv("AZURE_DEVOPS_PAT", "pat")
	t.Setenv("AZURE_DEVOPS_ORG", "contoso")

	accounts := EnvAccounts()
	if len(accounts) != 3 {
		t.Fatalf("got %d accounts, want 3", len(accounts))
	}

	byProvider := make(map[domain.ProviderType]domain.Account)
	for _, a := range accounts {
		byProvider[a.Provider] = a
	}
	if byProvider[domain.ProviderGitHub].Token != "ghp_env" {
		t.Errorf("github account = %+v", byProvider[domain.ProviderGitHub])
	}
	if byProvider[domain.ProviderBitbucket].Username != "jo" {
		t.Errorf("bitbucket account = %+v", byProvider[domain.ProviderBitbucket])
	}
	if byProvider[domain.ProviderAzureDevOps].Organization != "contoso" {
		t.Errorf("azure account = %+v", byProvider[domain.ProviderAzureDevOps])
	}
	if _, ok := byProvider[domain.ProviderGitLab]; ok {
		t.Error("gitlab has no token and must be skipped")
	}
}
