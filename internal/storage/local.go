// Package storage keeps the configured accounts in a JSON file under the
// user's home directory.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/johanforsgren/prdeck/internal/domain"
)

const (
	configDir    = ".prdeck"
	accountsFile = "accounts.json"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrNoActiveAccount = errors.New("no active account set")
)

type accountsFileData struct {
	Accounts      []domain.Account `json:"accounts"`
	ActiveAccount string           `json:"active_account"`
}

type LocalRepository struct {
	path string
	data accountsFileData
	mu   sync.RWMutex
	log  *slog.Logger
}

// DefaultDir is ~/.prdeck.
func DefaultDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, configDir), nil
}

// NewLocalRepository opens the account file in dir, creating dir when needed.
// A missing file is an empty store.
func NewLocalRepository(dir string) (*LocalRepository, error) {
	repo := &LocalRepository{
		path: filepath.Join(dir, accountsFile),
		data: accountsFileData{Accounts: []domain.Account{}},
		log:  slog.Default().With("component", "storage"),
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := repo.load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	return repo, nil
}

func (r *LocalRepository) Path() string {
	return r.path
}

func (r *LocalRepository) load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, &r.data); err != nil {
		r.log.Error("failed to parse accounts file", "path", r.path, "error", err)
		return fmt.Errorf("failed to parse %s: %w", r.path, err)
	}

	r.log.Debug("accounts loaded", "path", r.path, "count", len(r.data.Accounts))
	return nil
}

// save writes through a temp file so a crash never leaves a truncated file.
func (r *LocalRepository) save() error {
	data, err := json.MarshalIndent(r.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal accounts: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		r.log.Error("failed to write accounts file", "path", tmp, "error", err)
		return err
	}
	if err := os.Rename(tmp, r.path); err != nil {
		r.log.Error("failed to replace accounts file", "path", r.path, "error", err)
		return err
	}

	r.log.Debug("accounts saved", "path", r.path, "count", len(r.data.Accounts))
	return nil
}

func (r *LocalRepository) ListAccounts() ([]domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	accounts := make([]domain.Account, len(r.data.Accounts))
	copy(accounts, r.data.Accounts)
	return accounts, nil
}

func (r *LocalRepository) GetAccount(id string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, account := range r.data.Accounts {
		if account.ID == id {
			return &account, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
}

// SaveAccount inserts or replaces by ID. An account without an ID gets a
// fresh UUID; the first account saved becomes the active one.
func (r *LocalRepository) SaveAccount(account domain.Account) error {
	if !account.Provider.Valid() {
		return &domain.ConfigurationError{Field: "provider", Reason: fmt.Sprintf("unknown provider %q", account.Provider)}
	}
	if account.Token == "" {
		return &domain.ConfigurationError{Field: "token", Reason: "missing"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if len(r.data.Accounts) == 0 {
		account.IsActive = true
		r.data.ActiveAccount = account.ID
	} else {
		account.IsActive = account.ID == r.data.ActiveAccount
	}

	found := false
	for i, a := range r.data.Accounts {
		if a.ID == account.ID {
			r.data.Accounts[i] = account
			found = true
			r.log.Info("updating account", "name", account.Name, "provider", account.Provider)
			break
		}
	}

	if !found {
		r.data.Accounts = append(r.data.Accounts, account)
		r.log.Info("adding account", "name", account.Name, "provider", account.Provider)
	}

	return r.save()
}

func (r *LocalRepository) DeleteAccount(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, account := range r.data.Accounts {
		if account.ID == id {
			r.log.Info("deleting account", "name", account.Name, "provider", account.Provider)
			r.data.Accounts = append(r.data.Accounts[:i], r.data.Accounts[i+1:]...)
			if r.data.ActiveAccount == id {
				r.data.ActiveAccount = ""
			}
			return r.save()
		}
	}

	return fmt.Errorf("%w: %s", ErrAccountNotFound, id)
}

func (r *LocalRepository) SetActiveAccount(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, account := range r.data.Accounts {
		if account.ID == id {
			r.log.Info("setting active account", "name", account.Name, "provider", account.Provider)
			for i := range r.data.Accounts {
				r.data.Accounts[i].IsActive = r.data.Accounts[i].ID == id
			}
			r.data.ActiveAccount = id
			return r.save()
		}
	}

	return fmt.Errorf("%w: %s", ErrAccountNotFound, id)
}

func (r *LocalRepository) GetActiveAccount() (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.data.ActiveAccount == "" {
		return nil, ErrNoActiveAccount
	}

	for _, account := range r.data.Accounts {
		if account.ID == r.data.ActiveAccount {
			return &account, nil
		}
	}

	return nil, fmt.Errorf("%w: active account %s", ErrAccountNotFound, r.data.ActiveAccount)
}

// FindAccount resolves an account by ID or by name.
func (r *LocalRepository) FindAccount(idOrName string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, account := range r.data.Accounts {
		if account.ID == idOrName || account.Name == idOrName {
			return &account, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, idOrName)
}

var _ domain.AccountRepository = (*LocalRepository)(nil)
