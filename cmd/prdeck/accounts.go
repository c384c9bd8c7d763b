package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/johanforsgren/prdeck/internal/config"
	"github.com/johanforsgren/prdeck/internal/domain"
)

const tokenCheckTimeout = 15 * time.Second

func newAccountsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "accounts",
		Aliases: []string{"account"},
		Short:   "Manage provider accounts",
	}
	cmd.AddCommand(
		newAccountsListCmd(a),
		newAccountsAddCmd(a),
		newAccountsRemoveCmd(a),
		newAccountsUseCmd(a),
	)
	return cmd
}

func newAccountsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored and environment accounts",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stored, err := a.accounts.ListAccounts()
			if err != nil {
				return err
			}
			return writeAccounts(cmd.OutOrStdout(), stored, config.EnvAccounts())
		},
	}
}

func writeAccounts(out io.Writer, stored, env []domain.Account) error {
	if len(stored) == 0 && len(env) == 0 {
		_, err := fmt.Fprintln(out, "No accounts configured")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\tNAME\tPROVIDER\tID\tSOURCE")
	for _, acc := range stored {
		active := ""
		if acc.IsActive {
			active = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\tstored\n", active, acc.Name, acc.Provider, acc.ID)
	}
	for _, acc := range env {
		fmt.Fprintf(w, "\t%s\t%s\t%s\tenvironment\n", acc.Name, acc.Provider, acc.ID)
	}
	return w.Flush()
}

func newAccountsAddCmd(a *app) *cobra.Command {
	var (
		account  domain.Account
		noVerify bool
	)

	cmd := &cobra.Command{
		Use:     "add",
		Short:   "Store a new account",
		Example: "  prdeck accounts add --provider github --token ghp_xxx\n" +
			"  prdeck accounts add --provider bitbucket --username jo --token app-password --name work",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			account.Provider = domain.ProviderType(strings.ToLower(a.provider))
			if !account.Provider.Valid() {
				return &domain.ConfigurationError{Field: "provider", Reason: fmt.Sprintf("pass --provider as one of github, gitlab, bitbucket, azuredevops, got %q", a.provider)}
			}
			if account.Name == "" {
				account.Name = string(account.Provider)
			}
			if _, err := a.accounts.FindAccount(account.Name); err == nil {
				return &domain.ConfigurationError{Field: "name", Reason: fmt.Sprintf("account %q already exists", account.Name)}
			}

			account.ID = uuid.NewString()
			if !noVerify {
				p, err := a.providerFor(account)
				if err != nil {
					return err
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), tokenCheckTimeout)
				defer cancel()
				if !p.ValidateToken(ctx) {
					return &domain.ProviderError{Provider: account.Provider, StatusCode: http.StatusUnauthorized, Message: "credentials rejected"}
				}
			}

			if err := a.accounts.SaveAccount(account); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added account %s (%s)\n", account.Name, account.Provider)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&account.Name, "name", "", "display name (default the provider)")
	f.StringVar(&account.Token, "token", "", "personal access token or app password")
	f.StringVar(&account.Username, "username", "", "username, required for bitbucket")
	f.StringVar(&account.Organization, "org", "", "organization, required for azuredevops")
	f.StringVar(&account.BaseURL, "base-url", "", "API base URL for self-hosted instances")
	f.BoolVar(&noVerify, "no-verify", false, "store the account without checking the token")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func newAccountsRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id | name>",
		Aliases: []string{"rm"},
		Short:   "Delete a stored account",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			acc, err := a.accounts.FindAccount(args[0])
			if err != nil {
				return err
			}
			if err := a.accounts.DeleteAccount(acc.ID); err != nil {
				return err
			}
			a.forget(acc.ID)
			fmt.Fprintf(cmd.OutOrStdout(), "Removed account %s\n", acc.Name)
			return nil
		},
	}
}

func newAccountsUseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "use <id | name>",
		Short: "Make a stored account the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			acc, err := a.accounts.FindAccount(args[0])
			if err != nil {
				return err
			}
			if err := a.accounts.SetActiveAccount(acc.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Active account is now %s\n", acc.Name)
			return nil
		},
	}
}
