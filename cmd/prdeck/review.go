package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/johanforsgren/prdeck/internal/domain"
	"github.com/johanforsgren/prdeck/internal/provider/common"
)

func parseSide(s string) (domain.Side, error) {
	switch strings.ToUpper(s) {
	case "", string(domain.SideRight), "NEW":
		return domain.SideRight, nil
	case string(domain.SideLeft), "OLD":
		return domain.SideLeft, nil
	default:
		return "", &domain.ConfigurationError{Field: "side", Reason: fmt.Sprintf("%q is not LEFT or RIGHT", s)}
	}
}

func parseMergeMethod(s string) (domain.MergeMethod, error) {
	switch m := domain.MergeMethod(strings.ToLower(s)); m {
	case domain.MergeMethodMerge, domain.MergeMethodSquash, domain.MergeMethodRebase:
		return m, nil
	default:
		return "", &domain.ConfigurationError{Field: "method", Reason: fmt.Sprintf("%q is not one of merge, squash, rebase", s)}
	}
}

func newCommentCmd(a *app) *cobra.Command {
	var (
		body string
		path string
		line int
		side string
	)

	cmd := &cobra.Command{
		Use:   "comment <owner/repo/number | number>",
		Short: "Comment on a pull request, optionally on a diff line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, repo, number, err := a.target(args[0])
			if err != nil {
				return err
			}
			input := domain.CommentInput{Body: strings.TrimSpace(body), Path: path, Line: line}
			if input.Body == "" {
				return &domain.ConfigurationError{Field: "body", Reason: "missing"}
			}
			if path != "" || line != 0 {
				if input.Side, err = parseSide(side); err != nil {
					return err
				}
			}

			e, _, err := a.engine()
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.PostComment(cmd.Context(), owner, repo, number, input); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Commented on %s\n", common.FormatPRIdentifier(owner, repo, number))
			return nil
		},
	}

	cmd.Flags().StringVarP(&body, "body", "b", "", "comment text")
	cmd.Flags().StringVar(&path, "file", "", "file path for an inline comment")
	cmd.Flags().IntVar(&line, "line", 0, "line number for an inline comment")
	cmd.Flags().StringVar(&side, "side", "RIGHT", "diff side of --line, LEFT or RIGHT")
	return cmd
}

func newApproveCmd(a *app) *cobra.Command {
	var body string

	cmd := &cobra.Command{
		Use:   "approve <owner/repo/number | number>",
		Short: "Approve a pull request",
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

			if err := e.Approve(cmd.Context(), owner, repo, number, strings.TrimSpace(body)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Approved %s\n", common.FormatPRIdentifier(owner, repo, number))
			return nil
		},
	}
	cmd.Flags().StringVarP(&body, "body", "b", "", "optional review comment")
	return cmd
}

func newRequestChangesCmd(a *app) *cobra.Command {
	var body string

	cmd := &cobra.Command{
		Use:   "request-changes <owner/repo/number | number>",
		Short: "Request changes on a pull request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, repo, number, err := a.target(args[0])
			if err != nil {
				return err
			}
			if strings.TrimSpace(body) == "" {
				return &domain.ConfigurationError{Field: "body", Reason: "requesting changes needs a comment"}
			}
			e, _, err := a.engine()
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.RequestChanges(cmd.Context(), owner, repo, number, strings.TrimSpace(body)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Requested changes on %s\n", common.FormatPRIdentifier(owner, repo, number))
			return nil
		},
	}
	cmd.Flags().StringVarP(&body, "body", "b", "", "review comment")
	return cmd
}

func newMergeCmd(a *app) *cobra.Command {
	var (
		method       string
		title        string
		deleteBranch bool
	)

	cmd := &cobra.Command{
		Use:   "merge <owner/repo/number | number>",
		Short: "Merge a pull request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, repo, number, err := a.target(args[0])
			if err != nil {
				return err
			}
			m, err := parseMergeMethod(method)
			if err != nil {
				return err
			}
			e, _, err := a.engine()
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			pr, err := e.PullRequest(ctx, owner, repo, number)
			if err != nil {
				return err
			}
			if pr.State != domain.PRStateOpen {
				return fmt.Errorf("%s is %s", common.FormatPRIdentifier(owner, repo, number), stateLabel(pr))
			}
			input := domain.MergeInput{Method: m, CommitTitle: title, DeleteBranch: deleteBranch}
			if err := e.Merge(ctx, owner, repo, number, input); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Merged %s (%s)\n", common.FormatPRIdentifier(owner, repo, number), m)
			return nil
		},
	}

	cmd.Flags().StringVarP(&method, "method", "m", string(domain.MergeMethodMerge), "merge, squash or rebase")
	cmd.Flags().StringVarP(&title, "title", "t", "", "merge commit title")
	cmd.Flags().BoolVarP(&deleteBranch, "delete-branch", "d", false, "delete the source branch after merging")
	return cmd
}
