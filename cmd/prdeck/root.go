package main

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/johanforsgren/prdeck/internal/config"
	"github.com/johanforsgren/prdeck/internal/domain"
	"github.com/johanforsgren/prdeck/internal/logger"
	"github.com/johanforsgren/prdeck/internal/provider"
	"github.com/johanforsgren/prdeck/internal/provider/common"
	"github.com/johanforsgren/prdeck/internal/query"
	"github.com/johanforsgren/prdeck/internal/storage"
	"github.com/johanforsgren/prdeck/internal/ui"
)

const debugLogFile = "debug.log"

// app carries the state shared by every subcommand once the persistent
// flags are parsed.
type app struct {
	debug      bool
	configPath string
	repo       string
	account    string
	provider   string

	dir      string
	cfg      *config.Config
	accounts *storage.LocalRepository
	metrics  *prometheus.Registry
	log      *slog.Logger

	// registries holds one per provider type since transport settings
	// differ between providers.
	registries map[domain.ProviderType]*provider.Registry
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "prdeck",
		Short:         "Review pull requests from GitHub, GitLab, Bitbucket and Azure DevOps",
		Long:          "prdeck lists, inspects, comments on, reviews and merges pull requests\nacross code hosting providers from one terminal.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			a.logMetrics()
			return logger.Close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runUI(cmd, uiFlags{mode: string(ui.ListInvolved), state: string(domain.StateFilterOpen)})
		},
	}

	flags := root.PersistentFlags()
	flags.BoolVar(&a.debug, "debug", false, "write debug logs to ~/.prdeck/debug.log")
	flags.StringVar(&a.configPath, "config", "", "config file (default ~/.prdeck/config.yaml)")
	flags.StringVarP(&a.repo, "repo", "R", "", "repository as owner/repo")
	flags.StringVarP(&a.account, "account", "a", "", "account ID or name (default the active account)")
	flags.StringVar(&a.provider, "provider", "", "require the account to use this provider")

	root.AddCommand(
		newPRsCmd(a, "prs", "List pull requests", ""),
		newPRsCmd(a, "mine", "List pull requests you authored", string(ui.ListMine)),
		newPRsCmd(a, "reviews", "List pull requests awaiting your review", string(ui.ListReviews)),
		newShowCmd(a),
		newDiffCmd(a),
		newCommentCmd(a),
		newApproveCmd(a),
		newRequestChangesCmd(a),
		newMergeCmd(a),
		newAccountsCmd(a),
		newUICmd(a),
	)
	return root
}

func (a *app) setup() error {
	dir, err := storage.DefaultDir()
	if err != nil {
		return err
	}
	a.dir = dir

	path := a.configPath
	if path == "" {
		path = config.DefaultPath(dir)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := cfg.SlogLevel()
	logFile := cfg.Log.File
	if a.debug {
		level = slog.LevelDebug
		if logFile == "" {
			logFile = filepath.Join(dir, debugLogFile)
		}
	}
	accounts, err := storage.NewLocalRepository(dir)
	if err != nil {
		return err
	}
	a.accounts = accounts
	if err := logger.Init(logFile, level); err != nil {
		return err
	}
	a.log = slog.Default().With("component", "cli")

	a.registries = make(map[domain.ProviderType]*provider.Registry)
	a.metrics = prometheus.NewRegistry()
	return nil
}

// accountStore is the slice of storage the CLI resolves accounts through.
type accountStore interface {
	FindAccount(idOrName string) (*domain.Account, error)
	GetActiveAccount() (*domain.Account, error)
}

// resolveAccount picks the explicit account, then the active one, then the
// first account configured through the environment.
func resolveAccount(store accountStore, explicit string, env []domain.Account, want domain.ProviderType) (domain.Account, error) {
	var account *domain.Account
	switch {
	case explicit != "":
		found, err := store.FindAccount(explicit)
		if err != nil {
			for i := range env {
				if env[i].ID == explicit || env[i].Name == explicit {
					found, err = &env[i], nil
					break
				}
			}
		}
		if err != nil {
			return domain.Account{}, err
		}
		account = found
	default:
		active, err := store.GetActiveAccount()
		switch {
		case err == nil && (want == "" || active.Provider == want):
			account = active
		case err != nil && !errors.Is(err, storage.ErrNoActiveAccount):
			return domain.Account{}, err
		}
		if account == nil {
			for i := range env {
				if want == "" || env[i].Provider == want {
					account = &env[i]
					break
				}
			}
		}
		if account == nil && active != nil {
			account = active
		}
	}

	if account == nil {
		return domain.Account{}, fmt.Errorf("%w: add one with `prdeck accounts add` or set a provider token variable", storage.ErrNoActiveAccount)
	}
	if want != "" && account.Provider != want {
		return domain.Account{}, fmt.Errorf("%w: account %q uses %s, not %s", common.ErrProviderMismatch, account.Name, account.Provider, want)
	}
	return *account, nil
}

func (a *app) resolveAccount() (domain.Account, error) {
	want := domain.ProviderType(strings.ToLower(a.provider))
	if want != "" && !want.Valid() {
		return domain.Account{}, &domain.ConfigurationError{Field: "provider", Reason: fmt.Sprintf("unknown provider %q", a.provider)}
	}
	return resolveAccount(a.accounts, a.account, config.EnvAccounts(), want)
}

// engine builds the query engine for the resolved account. Callers close it.
func (a *app) engine() (*query.Engine, domain.Account, error) {
	account, err := a.resolveAccount()
	if err != nil {
		return nil, domain.Account{}, err
	}
	p, err := a.providerFor(account)
	if err != nil {
		return nil, domain.Account{}, err
	}
	a.log.Debug("using account", "name", account.Name, "provider", account.Provider)

	e := query.New(p,
		query.WithLogger(slog.Default()),
		query.WithStaleTimes(a.cfg.StaleTimeOverrides()),
		query.WithMetrics(query.NewMetrics(a.metrics)),
	)
	return e, account, nil
}

func (a *app) providerFor(account domain.Account) (domain.Provider, error) {
	registry, ok := a.registries[account.Provider]
	if !ok {
		registry = provider.NewRegistry(
			provider.WithLogger(slog.Default()),
			provider.WithHTTPOptions(a.cfg.HTTPOptions(account.Provider, slog.Default())),
		)
		a.registries[account.Provider] = registry
	}
	return registry.For(account)
}

func (a *app) forget(accountID string) {
	for _, r := range a.registries {
		r.Forget(accountID)
	}
}

// repository is --repo, falling back to the configured default.
func (a *app) repository() (string, string, error) {
	repo := a.repo
	if repo == "" {
		repo = a.cfg.Repository
	}
	if repo == "" {
		return "", "", &domain.ConfigurationError{Field: "repository", Reason: "pass --repo owner/repo or set repository in the config file"}
	}
	return common.ParseRepository(repo)
}

// target resolves a pull request argument, either owner/repo/number or a
// bare number in the --repo repository.
func (a *app) target(arg string) (string, string, int, error) {
	if n, err := strconv.Atoi(arg); err == nil {
		if n <= 0 {
			return "", "", 0, fmt.Errorf("%w: %s", common.ErrInvalidIdentifierFormat, arg)
		}
		owner, repo, err := a.repository()
		if err != nil {
			return "", "", 0, err
		}
		return owner, repo, n, nil
	}
	return common.ParsePRIdentifier(arg)
}

func (a *app) logMetrics() {
	if !a.debug || a.metrics == nil || a.log == nil {
		return
	}
	families, err := a.metrics.Gather()
	if err != nil {
		a.log.Warn("failed to gather metrics", "error", err)
		return
	}
	for _, mf := range families {
		a.log.Debug("metric", "name", mf.GetName(), "series", len(mf.GetMetric()))
	}
}
