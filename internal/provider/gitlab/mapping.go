package gitlab

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/johanforsgren/prdeck/internal/domain"
	"github.com/johanforsgren/prdeck/internal/provider/common"
)

type pipelineState struct {
	status     domain.CheckStatus
	conclusion domain.CheckConclusion
}

var pipelineStates = map[string]pipelineState{
	"created":              {status: domain.CheckStatusQueued},
	"waiting_for_resource": {status: domain.CheckStatusQueued},
	"preparing":            {status: domain.CheckStatusQueued},
	"pending":              {status: domain.CheckStatusQueued},
	"scheduled":            {status: domain.CheckStatusQueued},
	"manual":               {status: domain.CheckStatusQueued},
	"running":              {status: domain.CheckStatusInProgress},
	"success":              {status: domain.CheckStatusCompleted, conclusion: domain.CheckConclusionSuccess},
	"failed":               {status: domain.CheckStatusCompleted, conclusion: domain.CheckConclusionFailure},
	"canceled":             {status: domain.CheckStatusCompleted, conclusion: domain.CheckConclusionCancelled},
	"skipped":              {status: domain.CheckStatusCompleted, conclusion: domain.CheckConclusionSkipped},
}

var mergeStatuses = map[string]domain.Mergeable{
	"can_be_merged":    domain.MergeableYes,
	"cannot_be_merged": domain.MergeableNo,
	"mergeable":        domain.MergeableYes,
	"not_approved":     domain.MergeableNo,
	"conflict":         domain.MergeableNo,
	"need_rebase":      domain.MergeableNo,
	"broken_status":    domain.MergeableNo,
}

func schemaError(endpoint, format string, args ...any) error {
	return &domain.SchemaValidationError{
		Provider: domain.ProviderGitLab,
		Endpoint: endpoint,
		Err:      fmt.Errorf(format, args...),
	}
}

func convertUser(u glUser) domain.User {
	if u.Username == "" && u.ID == 0 {
		return domain.User{Kind: domain.UserKindUnknown}
	}
	kind := domain.UserKindUser
	if u.Bot {
		kind = domain.UserKindBot
	}
	return domain.User{
		Login:      u.Username,
		ID:         u.ID,
		AvatarURL:  u.AvatarURL,
		ProfileURL: u.WebURL,
		Kind:       kind,
	}
}

func convertUsers(users []glUser) []domain.User {
	out := make([]domain.User, 0, len(users))
	for _, u := range users {
		out = append(out, convertUser(u))
	}
	return out
}

func mergeable(mr glMergeRequest) domain.Mergeable {
	if m, ok := mergeStatuses[mr.DetailedMergeStatus]; ok {
		return m
	}
	if m, ok := mergeStatuses[mr.MergeStatus]; ok {
		return m
	}
	return domain.MergeableUnknown
}

func convertMergeRequest(mr glMergeRequest, owner, repo string) (domain.PullRequest, error) {
	var state domain.PRState
	merged := false
	switch mr.State {
	case "opened", "locked":
		state = domain.PRStateOpen
	case "merged":
		state = domain.PRStateClosed
		merged = true
	case "closed":
		state = domain.PRStateClosed
	default:
		return domain.PullRequest{}, schemaError("merge_requests", "unknown state %q", mr.State)
	}

	labels := make([]string, 0, len(mr.Labels))
	labels = append(labels, mr.Labels...)

	pr := domain.PullRequest{
		ID:                 strconv.FormatInt(mr.ID, 10),
		Number:             mr.IID,
		Title:              mr.Title,
		Body:               mr.Description,
		State:              state,
		Merged:             merged,
		Draft:              mr.Draft || mr.WorkInProgress,
		Author:             convertUser(mr.Author),
		Head:               domain.BranchRef{Ref: mr.SourceBranch, SHA: mr.SHA},
		Base:               domain.BranchRef{Ref: mr.TargetBranch},
		CreatedAt:          mr.CreatedAt,
		UpdatedAt:          mr.UpdatedAt,
		MergedAt:           mr.MergedAt,
		ClosedAt:           mr.ClosedAt,
		Labels:             labels,
		RequestedReviewers: convertUsers(mr.Reviewers),
		Assignees:          convertUsers(mr.Assignees),
		Mergeable:          mergeable(mr),
		Repository:         domain.RepoRef{Owner: owner, Name: repo},
		URL:                mr.WebURL,
	}
	if mr.DiffRefs != nil {
		pr.Base.SHA = mr.DiffRefs.BaseSHA
	}
	if merged && pr.ClosedAt == nil {
		pr.ClosedAt = pr.MergedAt
	}
	return pr, pr.Validate()
}

func changeStatus(c glChange) domain.FileStatus {
	switch {
	case c.NewFile:
		return domain.FileStatusAdded
	case c.DeletedFile:
		return domain.FileStatusRemoved
	case c.RenamedFile:
		return domain.FileStatusRenamed
	default:
		return domain.FileStatusModified
	}
}

// countLines tallies added and removed lines in a hunk fragment.
func countLines(fragment string) (additions, deletions int) {
	for _, line := range strings.Split(fragment, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"):
			additions++
		case strings.HasPrefix(line, "-"):
			deletions++
		}
	}
	return additions, deletions
}

func convertChange(c glChange) domain.FileChange {
	status := changeStatus(c)
	additions, deletions := countLines(c.Diff)
	change := domain.FileChange{
		Filename:  c.NewPath,
		Status:    status,
		Additions: additions,
		Deletions: deletions,
	}
	if status == domain.FileStatusRenamed {
		change.PreviousFilename = c.OldPath
	}
	return change
}

func diffSource(c glChange) common.FileDiffSource {
	return common.FileDiffSource{
		OldPath:  c.OldPath,
		NewPath:  c.NewPath,
		Status:   changeStatus(c),
		Fragment: c.Diff,
	}
}

func convertCommit(c glCommit) domain.Commit {
	message := c.Message
	if message == "" {
		message = c.Title
	}
	return domain.Commit{
		SHA:     c.ID,
		Message: message,
		Author:  domain.CommitAuthor{Name: c.AuthorName, Email: c.AuthorEmail, Date: c.AuthoredAt},
		URL:     c.WebURL,
	}
}

func noteAnchor(p *glPosition) *domain.Anchor {
	if p == nil {
		return nil
	}
	switch {
	case p.NewLine != nil:
		return &domain.Anchor{Path: p.NewPath, Line: *p.NewLine, Side: domain.SideRight}
	case p.OldLine != nil:
		path := p.OldPath
		if path == "" {
			path = p.NewPath
		}
		return &domain.Anchor{Path: path, Line: *p.OldLine, Side: domain.SideLeft}
	}
	return nil
}

// splitDiscussions separates positioned notes from general ones and drops
// system notes. Replies point at the first note of their discussion.
func splitDiscussions(discussions []glDiscussion) ([]domain.Comment, []domain.IssueComment) {
	var inline []domain.Comment
	var general []domain.IssueComment

	for _, d := range discussions {
		rootID := ""
		for _, n := range d.Notes {
			if n.System {
				continue
			}
			id := strconv.FormatInt(n.ID, 10)
			anchor := noteAnchor(n.Position)
			if anchor == nil {
				general = append(general, domain.IssueComment{
					ID:        id,
					Body:      n.Body,
					Author:    convertUser(n.Author),
					CreatedAt: n.CreatedAt,
					UpdatedAt: n.UpdatedAt,
				})
				continue
			}

			comment := domain.Comment{
				ID:        id,
				Body:      n.Body,
				Author:    convertUser(n.Author),
				CreatedAt: n.CreatedAt,
				UpdatedAt: n.UpdatedAt,
				Anchor:    anchor,
			}
			if rootID == "" {
				rootID = id
			} else {
				comment.InReplyToID = rootID
			}
			inline = append(inline, comment)
		}
	}
	return inline, general
}

func convertApprovals(a *glApprovals) []domain.Review {
	reviews := make([]domain.Review, 0, len(a.ApprovedBy))
	for _, entry := range a.ApprovedBy {
		reviews = append(reviews, domain.Review{
			ID:     "approval-" + strconv.FormatInt(entry.User.ID, 10),
			Author: convertUser(entry.User),
			State:  domain.ReviewStateApproved,
		})
	}
	return reviews
}

func convertPipeline(p glPipeline) (domain.CheckRun, error) {
	st, ok := pipelineStates[p.Status]
	if !ok {
		return domain.CheckRun{}, schemaError("pipelines", "pipeline %d has unknown status %q", p.ID, p.Status)
	}
	name := "pipeline"
	if p.Source != "" {
		name += " (" + p.Source + ")"
	}
	run := domain.CheckRun{
		ID:         strconv.FormatInt(p.ID, 10),
		Name:       name,
		Status:     st.status,
		Conclusion: st.conclusion,
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
		return "opened"
	}
}
