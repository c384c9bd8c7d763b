package domain

// Account is a stored credential for one backend.
type Account struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Provider     ProviderType `json:"provider"`
	BaseURL      string       `json:"base_url,omitempty"`
	Token        string       `json:"token"`
	Username     string       `json:"username,omitempty"`
	Organization string       `json:"organization,omitempty"`
	IsActive     bool         `json:"is_active"`
}

type AccountRepository interface {
	ListAccounts() ([]Account, error)

	GetAccount(id string) (*Account, error)

	SaveAccount(account Account) error

	DeleteAccount(id string) error

	SetActiveAccount(id string) error

	GetActiveAccount() (*Account, error)
}
