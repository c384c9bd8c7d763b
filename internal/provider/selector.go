// Package provider picks the adapter for a stored account.
package provider

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/johanforsgren/prdeck/internal/domain"
	"github.com/johanforsgren/prdeck/internal/provider/azuredevops"
	"github.com/johanforsgren/prdeck/internal/provider/bitbucket"
	"github.com/johanforsgren/prdeck/internal/provider/common"
	"github.com/johanforsgren/prdeck/internal/provider/github"
	"github.com/johanforsgren/prdeck/internal/provider/gitlab"
)

type Option func(*common.Config)

func WithLogger(log *slog.Logger) Option {
	return func(c *common.Config) {
		c.Logger = log
		c.HTTP.Logger = log
	}
}

func WithHTTPOptions(opts common.HTTPOptions) Option {
	return func(c *common.Config) {
		logger := c.HTTP.Logger
		c.HTTP = opts
		if c.HTTP.Logger == nil {
			c.HTTP.Logger = logger
		}
	}
}

// New builds the adapter for account.Provider.
func New(account domain.Account, opts ...Option) (domain.Provider, error) {
	cfg := common.Config{
		Token:        account.Token,
		Username:     account.Username,
		Organization: account.Organization,
		BaseURL:      account.BaseURL,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	var (
		p   domain.Provider
		err error
	)
	switch account.Provider {
	case domain.ProviderGitHub:
		p, err = github.NewProvider(cfg)
	case domain.ProviderGitLab:
		p, err = gitlab.NewProvider(cfg)
	case domain.ProviderBitbucket:
		p, err = bitbucket.NewProvider(cfg)
	case domain.ProviderAzureDevOps:
		p, err = azuredevops.NewProvider(cfg)
	default:
		return nil, &domain.ConfigurationError{Field: "provider", Reason: fmt.Sprintf("unsupported provider type %q", account.Provider)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", account.Provider, err)
	}
	return p, nil
}

// Registry keeps one adapter per account so switching accounts reuses
// already built clients.
type Registry struct {
	mu        sync.Mutex
	opts      []Option
	providers map[string]domain.Provider
}

func NewRegistry(opts ...Option) *Registry {
	return &Registry{
		opts:      opts,
		providers: make(map[string]domain.Provider),
	}
}

// For returns the adapter of account, building it on first use.
func (r *Registry) For(account domain.Account) (domain.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.providers[account.ID]; ok {
		return p, nil
	}
	p, err := New(account, r.opts...)
	if err != nil {
		return nil, err
	}
	r.providers[account.ID] = p
	return p, nil
}

// Forget drops the adapter of a removed or edited account.
func (r *Registry) Forget(accountID string) {
	r.mu.Lock()
	delete(r.providers, accountID)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.providers)
}
