package config

import (
	"os"

	"github.com/johanforsgren/prdeck/internal/domain"
)

type envAccount struct {
	provider domain.ProviderType
	token    string
	username string
	baseURL  string
	org      string
}

var envAccounts = []envAccount{
	{provider: domain.ProviderGitHub, token: "GITHUB_TOKEN", baseURL: "GITHUB_BASE_URL"},
	{provider: domain.ProviderGitLab, token: "GITLAB_TOKEN", baseURL: "GITLAB_URL"},
	{provider: domain.ProviderBitbucket, token: "BITBUCKET_APP_PASSWORD", username: "BITBUCKET_USERNAME"},
	{provider: domain.ProviderAzureDevOps, token: "AZURE_DEVOPS_PAT", baseURL: "AZURE_DEVOPS_URL", org: "AZURE_DEVOPS_ORG"},
}

// EnvAccounts returns an account for every provider whose token variable is
// set. They are never written to the account store.
func EnvAccounts() []domain.Account {
	var out []domain.Account
	for _, e := range envAccounts {
		token := os.Getenv(e.token)
		if token == "" {
			continue
		}
		a := domain.Account{
			ID:       "env-" + string(e.provider),
			Name:     "env:" + string(e.provider),
			Provider: e.provider,
			Token:    token,
		}
		if e.username != "" {
			a.Username = os.Getenv(e.username)
		}
		if e.baseURL != "" {
			a.BaseURL = os.Getenv(e.baseURL)
		}
		if e.org != "" {
			a.Organization = os.Getenv(e.org)
		}
		out = append(out, a)
	}
	return out
}
