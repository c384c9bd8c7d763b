package github

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/go-github/v57/github"
	"github.com/johanforsgren/prdeck/internal/domain"
	"github.com/johanforsgren/prdeck/internal/provider/common"
)

var fileStatuses = map[string]domain.FileStatus{
	"added":     domain.FileStatusAdded,
	"removed":   domain.FileStatusRemoved,
	"modified":  domain.FileStatusModified,
	"changed":   domain.FileStatusModified,
	"unchanged": domain.FileStatusModified,
	"copied":    domain.FileStatusAdded,
	"renamed":   domain.FileStatusRenamed,
}

var reviewStates = map[string]domain.ReviewState{
	"APPROVED":          domain.ReviewStateApproved,
	"CHANGES_REQUESTED": domain.ReviewStateChangesRequested,
	"COMMENTED":         domain.ReviewStateCommented,
	"DISMISSED":         domain.ReviewStateCommented,
}

var checkStatuses = map[string]domain.CheckStatus{
	"queued":      domain.CheckStatusQueued,
	"requested":   domain.CheckStatusQueued,
	"waiting":     domain.CheckStatusQueued,
	"pending":     domain.CheckStatusQueued,
	"in_progress": domain.CheckStatusInProgress,
	"completed":   domain.CheckStatusCompleted,
}

var checkConclusions = map[string]domain.CheckConclusion{
	"success":         domain.CheckConclusionSuccess,
	"failure":         domain.CheckConclusionFailure,
	"neutral":         domain.CheckConclusionNeutral,
	"cancelled":       domain.CheckConclusionCancelled,
	"timed_out":       domain.CheckConclusionTimedOut,
	"skipped":         domain.CheckConclusionSkipped,
	"action_required": domain.CheckConclusionFailure,
	"startup_failure": domain.CheckConclusionFailure,
	"stale":           domain.CheckConclusionNeutral,
}

func schemaError(endpoint, format string, args ...any) error {
	return &domain.SchemaValidationError{
		Provider: domain.ProviderGitHub,
		Endpoint: endpoint,
		Err:      fmt.Errorf(format, args...),
	}
}

func convertUser(u *github.User) domain.User {
	if u == nil {
		return domain.User{Kind: domain.UserKindUnknown}
	}
	kind := domain.UserKindUser
	switch u.GetType() {
	case "Bot":
		kind = domain.UserKindBot
	case "User", "Organization", "":
	default:
		kind = domain.UserKindUnknown
	}
	if kind == domain.UserKindUser && strings.HasSuffix(u.GetLogin(), "[bot]") {
		kind = domain.UserKindBot
	}
	return domain.User{
		Login:      u.GetLogin(),
		ID:         u.GetID(),
		AvatarURL:  u.GetAvatarURL(),
		ProfileURL: u.GetHTMLURL(),
		Kind:       kind,
	}
}

func convertUsers(users []*github.User) []domain.User {
	out := make([]domain.User, 0, len(users))
	for _, u := range users {
		if u != nil {
			out = append(out, convertUser(u))
		}
	}
	return out
}

func convertPullRequest(ghPR *github.PullRequest, owner, repo string) (domain.PullRequest, error) {
	if ghPR == nil || ghPR.Number == nil || ghPR.State == nil {
		return domain.PullRequest{}, schemaError("pulls", "pull request without number or state")
	}

	state := domain.PRStateOpen
	switch ghPR.GetState() {
	case "open":
	case "closed":
		state = domain.PRStateClosed
	default:
		return domain.PullRequest{}, schemaError("pulls", "unknown state %q", ghPR.GetState())
	}

	merged := ghPR.GetMerged() || ghPR.MergedAt != nil
	if merged {
		state = domain.PRStateClosed
	}

	labels := make([]string, 0, len(ghPR.Labels))
	for _, l := range ghPR.Labels {
		labels = append(labels, l.GetName())
	}

	pr := domain.PullRequest{
		ID:                 strconv.FormatInt(ghPR.GetID(), 10),
		Number:             ghPR.GetNumber(),
		Title:              ghPR.GetTitle(),
		Body:               ghPR.GetBody(),
		State:              state,
		Merged:             merged,
		Draft:              ghPR.GetDraft(),
		Author:             convertUser(ghPR.User),
		CreatedAt:          ghPR.GetCreatedAt().Time,
		UpdatedAt:          ghPR.GetUpdatedAt().Time,
		MergedAt:           common.TimePtr(ghPR.GetMergedAt().Time),
		ClosedAt:           common.TimePtr(ghPR.GetClosedAt().Time),
		Labels:             labels,
		RequestedReviewers: convertUsers(ghPR.RequestedReviewers),
		Assignees:          convertUsers(ghPR.Assignees),
		Mergeable:          domain.MergeableFrom(ghPR.Mergeable),
		Repository:         domain.RepoRef{Owner: owner, Name: repo},
		URL:                ghPR.GetHTMLURL(),
	}

	if ghPR.Head != nil {
		pr.Head = domain.BranchRef{Ref: ghPR.Head.GetRef(), SHA: ghPR.Head.GetSHA()}
	}
	if ghPR.Base != nil {
		pr.Base = domain.BranchRef{Ref: ghPR.Base.GetRef(), SHA: ghPR.Base.GetSHA()}
		if ghPR.Base.Repo != nil && ghPR.Base.Repo.GetName() != "" {
			pr.Repository = domain.RepoRef{Owner: ghPR.Base.Repo.GetOwner().GetLogin(), Name: ghPR.Base.Repo.GetName()}
		}
	}

	return pr, pr.Validate()
}

func convertComment(c *github.PullRequestComment) domain.Comment {
	comment := domain.Comment{
		ID:        strconv.FormatInt(c.GetID(), 10),
		Body:      c.GetBody(),
		Author:    convertUser(c.User),
		CreatedAt: c.GetCreatedAt().Time,
		UpdatedAt: c.GetUpdatedAt().Time,
	}
	if c.InReplyTo != nil {
		comment.InReplyToID = strconv.FormatInt(c.GetInReplyTo(), 10)
	}

	line := c.GetLine()
	if line == 0 {
		line = c.GetOriginalLine()
	}
	if c.GetPath() != "" {
		side := domain.SideRight
		if c.GetSide() == "LEFT" {
			side = domain.SideLeft
		}
		comment.Anchor = &domain.Anchor{Path: c.GetPath(), Line: line, Side: side}
	}
	return comment
}

func convertIssueComment(c *github.IssueComment) domain.IssueComment {
	return domain.IssueComment{
		ID:        strconv.FormatInt(c.GetID(), 10),
		Body:      c.GetBody(),
		Author:    convertUser(c.User),
		CreatedAt: c.GetCreatedAt().Time,
		UpdatedAt: c.GetUpdatedAt().Time,
	}
}

// convertReview reports false for reviews that are still pending.
func convertReview(r *github.PullRequestReview) (domain.Review, bool) {
	state, ok := reviewStates[r.GetState()]
	if !ok {
		return domain.Review{}, false
	}
	return domain.Review{
		ID:          strconv.FormatInt(r.GetID(), 10),
		Author:      convertUser(r.User),
		State:       state,
		Body:        common.StringPtr(r.GetBody()),
		SubmittedAt: common.TimePtr(r.GetSubmittedAt().Time),
	}, true
}

func convertFile(f *github.CommitFile) (domain.FileChange, error) {
	status, ok := fileStatuses[f.GetStatus()]
	if !ok || f.GetFilename() == "" {
		return domain.FileChange{}, schemaError("files", "file %q has unknown status %q", f.GetFilename(), f.GetStatus())
	}
	change := domain.FileChange{
		Filename:  f.GetFilename(),
		Status:    status,
		Additions: f.GetAdditions(),
		Deletions: f.GetDeletions(),
	}
	if status == domain.FileStatusRenamed {
		change.PreviousFilename = f.GetPreviousFilename()
	}
	return change, nil
}

func convertCommit(c *github.RepositoryCommit) domain.Commit {
	commit := domain.Commit{
		SHA: c.GetSHA(),
		URL: c.GetHTMLURL(),
	}
	if c.Commit != nil {
		commit.Message = c.Commit.GetMessage()
		if a := c.Commit.Author; a != nil {
			commit.Author = domain.CommitAuthor{Name: a.GetName(), Email: a.GetEmail(), Date: a.GetDate().Time}
		}
	}
	if c.Author != nil {
		u := convertUser(c.Author)
		commit.User = &u
	}
	return commit
}

func convertCheckRun(r *github.CheckRun) (domain.CheckRun, error) {
	status, ok := checkStatuses[r.GetStatus()]
	if !ok {
		return domain.CheckRun{}, schemaError("check-runs", "check run %d has unknown status %q", r.GetID(), r.GetStatus())
	}
	run := domain.CheckRun{
		ID:     strconv.FormatInt(r.GetID(), 10),
		Name:   r.GetName(),
		Status: status,
	}
	if status == domain.CheckStatusCompleted && r.Conclusion != nil {
		conclusion, ok := checkConclusions[r.GetConclusion()]
		if !ok {
			return domain.CheckRun{}, schemaError("check-runs", "check run %d has unknown conclusion %q", r.GetID(), r.GetConclusion())
		}
		run.Conclusion = conclusion
	}
	return run, run.Validate()
}

func stateParam(s domain.StateFilter) string {
	switch s {
	case domain.StateFilterClosed:
		return "closed"
	case domain.StateFilterAll:
		return "all"
	default:
		return "open"
	}
}
