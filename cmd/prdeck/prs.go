package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/johanforsgren/prdeck/internal/domain"
	"github.com/johanforsgren/prdeck/internal/provider/common"
	"github.com/johanforsgren/prdeck/internal/query"
	"github.com/johanforsgren/prdeck/internal/ui"
	"github.com/johanforsgren/prdeck/internal/ui/views"
)

const defaultLimit = 30

func parseState(s string) (domain.StateFilter, error) {
	switch state := domain.StateFilter(strings.ToLower(s)); state {
	case domain.StateFilterOpen, domain.StateFilterClosed, domain.StateFilterAll:
		return state, nil
	default:
		return "", &domain.ConfigurationError{Field: "state", Reason: fmt.Sprintf("%q is not one of open, closed, all", s)}
	}
}

// listPullRequests runs the engine read behind a list mode.
func listPullRequests(ctx context.Context, e *query.Engine, owner, repo string, mode ui.ListMode, state domain.StateFilter, limit int) ([]domain.PullRequest, error) {
	switch mode {
	case ui.ListMine:
		return e.MyPullRequests(ctx, owner, repo, state, limit)
	case ui.ListReviews:
		return e.ReviewRequests(ctx, owner, repo, state, limit)
	case ui.ListInvolved:
		return e.InvolvedPullRequests(ctx, owner, repo, state, limit)
	default:
		return e.PullRequests(ctx, owner, repo, domain.ListOptions{State: state, Limit: limit})
	}
}

func newPRsCmd(a *app, use, short, fixedMode string) *cobra.Command {
	var (
		state string
		limit int
		role  = fixedMode
	)

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := parseListMode(role)
			if err != nil {
				return err
			}
			filter, err := parseState(state)
			if err != nil {
				return err
			}
			owner, repo, err := a.repository()
			if err != nil {
				return err
			}
			e, _, err := a.engine()
			if err != nil {
				return err
			}
			defer e.Close()

			prs, err := listPullRequests(cmd.Context(), e, owner, repo, mode, filter, limit)
			if err != nil {
				return err
			}
			viewer, _ := e.CachedViewer()
			return writePullRequests(cmd.OutOrStdout(), prs, viewer, time.Now())
		},
	}

	cmd.Flags().StringVarP(&state, "state", "s", string(domain.StateFilterOpen), "open, closed or all")
	cmd.Flags().IntVarP(&limit, "limit", "L", defaultLimit, "maximum number of pull requests")
	if fixedMode == "" {
		role = string(ui.ListAll)
		cmd.Flags().StringVar(&role, "role", role, "all, mine, reviews or involved")
	}
	return cmd
}

func writePullRequests(out io.Writer, prs []domain.PullRequest, viewer domain.User, now time.Time) error {
	if len(prs) == 0 {
		_, err := fmt.Fprintln(out, "No pull requests")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\tPR\tSTATE\tAUTHOR\tBRANCH\tUPDATED\tTITLE")
	for _, pr := range prs {
		mark := ""
		if viewer.Login != "" {
			mark = views.RoleIndicator(pr, viewer)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			mark,
			identifier(pr),
			stateLabel(pr),
			pr.Author.Login,
			pr.Head.Ref,
			age(now.Sub(pr.UpdatedAt)),
			pr.Title,
		)
	}
	return w.Flush()
}

func identifier(pr domain.PullRequest) string {
	if pr.Repository.Owner == "" || pr.Repository.Name == "" {
		return fmt.Sprintf("#%d", pr.Number)
	}
	return common.FormatPRIdentifier(pr.Repository.Owner, pr.Repository.Name, pr.Number)
}

func stateLabel(pr domain.PullRequest) string {
	switch {
	case pr.Merged:
		return "merged"
	case pr.State == domain.PRStateClosed:
		return "closed"
	case pr.Draft:
		return "draft"
	default:
		return "open"
	}
}

func age(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <owner/repo/number | number>",
		Short: "Show a pull request with its checks and reviews",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, repo, number, err := a.target(args[0])
			if err != nil {
				return err
			}
			e, _, err := a.engine()
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			if err := e.Prefetch(ctx, owner, repo, number); err != nil {
				a.log.Debug("prefetch incomplete", "error", err)
			}
			pr, err := e.PullRequest(ctx, owner, repo, number)
			if err != nil {
				return err
			}
			checks, err := e.Checks(ctx, owner, repo, number)
			if err != nil {
				return err
			}
			reviews, err := e.Reviews(ctx, owner, repo, number)
			if err != nil {
				return err
			}
			files, err := e.Files(ctx, owner, repo, number)
			if err != nil {
				return err
			}
			return writeDetail(cmd.OutOrStdout(), pr, files, checks, reviews)
		},
	}
}

func writeDetail(out io.Writer, pr domain.PullRequest, files []domain.FileChange, checks []domain.CheckRun, reviews []domain.Review) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "#%d %s\n", pr.Number, pr.Title)
	fmt.Fprintf(w, "Status:\t%s\n", views.StatusText(pr))
	fmt.Fprintf(w, "Author:\t%s\n", pr.Author.Login)
	fmt.Fprintf(w, "Branch:\t%s -> %s\n", pr.Head.Ref, pr.Base.Ref)
	if pr.URL != "" {
		fmt.Fprintf(w, "URL:\t%s\n", pr.URL)
	}
	if body := strings.TrimSpace(pr.Body); body != "" {
		fmt.Fprintf(w, "\n%s\n", body)
	}

	if len(files) > 0 {
		fmt.Fprintf(w, "\nFiles (%d)\n", len(files))
		for _, f := range files {
			fmt.Fprintf(w, "  %s\t+%d -%d\t%s\n", f.Status, f.Additions, f.Deletions, f.Filename)
		}
	}
	if len(checks) > 0 {
		fmt.Fprintln(w, "\nChecks")
		for _, c := range checks {
			result := string(c.Conclusion)
			if c.Status != domain.CheckStatusCompleted {
				result = string(c.Status)
			}
			fmt.Fprintf(w, "  %s\t%s\n", c.Name, result)
		}
	}
	if len(reviews) > 0 {
		fmt.Fprintln(w, "\nReviews")
		for _, r := range reviews {
			fmt.Fprintf(w, "  %s\t%s\n", r.Author.Login, r.State)
		}
	}
	return w.Flush()
}

func newDiffCmd(a *app) *cobra.Command {
	var stat bool

	cmd := &cobra.Command{
		Use:   "diff <owner/repo/number | number>",
		Short: "Print the unified diff of a pull request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, repo, number, err := a.target(args[0])
			if err != nil {
				return err
			}
			e, _, err := a.engine()
			if err != nil {
				return err
			}
			defer e.Close()

			text, err := e.Diff(cmd.Context(), owner, repo, number)
			if err != nil {
				return err
			}
			if stat {
				return writeDiffStat(cmd.OutOrStdout(), text)
			}
			_, err = io.WriteString(cmd.OutOrStdout(), text)
			return err
		},
	}
	cmd.Flags().BoolVar(&stat, "stat", false, "print per-file line counts instead of the diff")
	return cmd
}

func writeDiffStat(out io.Writer, text string) error {
	diff := common.ParseUnifiedDiff(text)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, f := range diff.Files {
		var added, deleted int
		for _, h := range f.Hunks {
			for _, l := range h.Lines {
				switch l.Type {
				case "add":
					added++
				case "delete":
					deleted++
				}
			}
		}
		fmt.Fprintf(w, "%s\t+%d -%d\n", views.FilePath(f), added, deleted)
	}
	return w.Flush()
}
