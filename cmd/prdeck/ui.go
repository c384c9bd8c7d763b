package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/johanforsgren/prdeck/internal/domain"
	"github.com/johanforsgren/prdeck/internal/ui"
)

type uiFlags struct {
	mode  string
	state string
	limit int
}

func parseListMode(s string) (ui.ListMode, error) {
	switch m := ui.ListMode(s); m {
	case ui.ListMine, ui.ListReviews, ui.ListInvolved, ui.ListAll:
		return m, nil
	default:
		return "", &domain.ConfigurationError{Field: "list", Reason: fmt.Sprintf("%q is not one of mine, reviews, involved, all", s)}
	}
}

func newUICmd(a *app) *cobra.Command {
	flags := uiFlags{}

	cmd := &cobra.Command{
		Use:   "ui",
		Short: "Open the interactive review interface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runUI(cmd, flags)
		},
	}
	cmd.Flags().StringVarP(&flags.mode, "list", "l", string(ui.ListInvolved), "mine, reviews, involved or all")
	cmd.Flags().StringVarP(&flags.state, "state", "s", string(domain.StateFilterOpen), "open, closed or all")
	cmd.Flags().IntVarP(&flags.limit, "limit", "L", defaultLimit, "maximum number of pull requests")
	return cmd
}

func (a *app) runUI(cmd *cobra.Command, flags uiFlags) error {
	mode, err := parseListMode(flags.mode)
	if err != nil {
		return err
	}
	state, err := parseState(flags.state)
	if err != nil {
		return err
	}
	owner, repo, err := a.repository()
	if err != nil {
		return err
	}
	e, account, err := a.engine()
	if err != nil {
		return err
	}
	defer e.Close()

	model := ui.NewModel(e, ui.Options{
		Account: account,
		Owner:   owner,
		Repo:    repo,
		Mode:    mode,
		State:   state,
		Limit:   flags.limit,
	})
	a.log.Info("starting ui", "account", account.Name, "repository", owner+"/"+repo)

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	_, err = p.Run()
	return err
}
