package azuredevops

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/johanforsgren/prdeck/internal/domain"
	"github.com/johanforsgren/prdeck/internal/provider/common"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/git"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/webapi"
)

const (
	voteApproved            = 10
	voteApprovedSuggestions = 5
	voteNone                = 0
	voteWaitingForAuthor    = -5
	voteRejected            = -10
)

var voteStates = map[int]domain.ReviewState{
	voteApproved:            domain.ReviewStateApproved,
	voteApprovedSuggestions: domain.ReviewStateApproved,
	voteNone:                domain.ReviewStateCommented,
	voteWaitingForAuthor:    domain.ReviewStateChangesRequested,
	voteRejected:            domain.ReviewStateChangesRequested,
}

type statusState struct {
	status     domain.CheckStatus
	conclusion domain.CheckConclusion
}

var statusStates = map[git.GitStatusState]statusState{
	git.GitStatusStateValues.NotSet:          {status: domain.CheckStatusQueued},
	git.GitStatusStateValues.Pending:         {status: domain.CheckStatusInProgress},
	git.GitStatusStateValues.Succeeded:       {status: domain.CheckStatusCompleted, conclusion: domain.CheckConclusionSuccess},
	git.GitStatusStateValues.Failed:          {status: domain.CheckStatusCompleted, conclusion: domain.CheckConclusionFailure},
	git.GitStatusStateValues.Error:           {status: domain.CheckStatusCompleted, conclusion: domain.CheckConclusionFailure},
	git.GitStatusStateValues.NotApplicable:   {status: domain.CheckStatusCompleted, conclusion: domain.CheckConclusionSkipped},
	git.GitStatusState("partiallySucceeded"): {status: domain.CheckStatusCompleted, conclusion: domain.CheckConclusionNeutral},
}

var mergeStatuses = map[git.PullRequestAsyncStatus]domain.Mergeable{
	git.PullRequestAsyncStatusValues.Succeeded:        domain.MergeableYes,
	git.PullRequestAsyncStatusValues.Conflicts:        domain.MergeableNo,
	git.PullRequestAsyncStatusValues.RejectedByPolicy: domain.MergeableNo,
	git.PullRequestAsyncStatusValues.Failure:          domain.MergeableNo,
}

func schemaError(endpoint, format string, args ...any) error {
	return &domain.SchemaValidationError{
		Provider: domain.ProviderAzureDevOps,
		Endpoint: endpoint,
		Err:      fmt.Errorf(format, args...),
	}
}

func adoTime(t *azuredevops.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.Time
}

// identityID normalizes a GUID string so identities from different
// endpoints hash to the same value.
func identityID(id string) int64 {
	return domain.HashIdentity(strings.ToLower(id))
}

func convertIdentity(identity *webapi.IdentityRef) domain.User {
	if identity == nil || identity.Id == nil {
		return domain.User{Kind: domain.UserKindUnknown}
	}
	login := common.GetString(identity.UniqueName)
	if login == "" {
		login = common.GetString(identity.DisplayName)
	}
	kind := domain.UserKindUser
	if common.GetBool(identity.IsContainer) {
		kind = domain.UserKindUnknown
	}
	return domain.User{
		Login:      login,
		ID:         identityID(*identity.Id),
		AvatarURL:  common.GetString(identity.ImageUrl),
		ProfileURL: common.GetString(identity.Url),
		Kind:       kind,
	}
}

func convertReviewer(r git.IdentityRefWithVote) domain.User {
	return convertIdentity(&webapi.IdentityRef{
		Id:          r.Id,
		UniqueName:  r.UniqueName,
		DisplayName: r.DisplayName,
		ImageUrl:    r.ImageUrl,
		Url:         r.Url,
		IsContainer: r.IsContainer,
	})
}

func convertViewer(id *adoIdentity) domain.User {
	login := id.CustomDisplayName
	if login == "" {
		login = id.ProviderDisplayName
	}
	return domain.User{
		Login: login,
		ID:    identityID(id.ID),
		Kind:  domain.UserKindUser,
	}
}

type prCoordinates struct {
	baseURL      string
	organization string
	project      string
	repo         string
}

// convertPullRequest maps statuses active/completed/abandoned onto
// open, closed and merged, and closed. A completed pull request carries its
// closed date as the merge time.
func convertPullRequest(pr *git.GitPullRequest, at prCoordinates) (domain.PullRequest, error) {
	if pr.PullRequestId == nil {
		return domain.PullRequest{}, schemaError("pullrequests", "pull request without id")
	}
	if pr.Status == nil {
		return domain.PullRequest{}, schemaError("pullrequests", "pull request %d without status", *pr.PullRequestId)
	}
	number := *pr.PullRequestId
	out := domain.PullRequest{
		ID:                 strconv.Itoa(number),
		Number:             number,
		Title:              common.GetString(pr.Title),
		Body:               common.GetString(pr.Description),
		Draft:              common.GetBool(pr.IsDraft),
		Author:             convertIdentity(pr.CreatedBy),
		Head:               domain.BranchRef{Ref: extractBranchName(pr.SourceRefName)},
		Base:               domain.BranchRef{Ref: extractBranchName(pr.TargetRefName)},
		CreatedAt:          adoTime(pr.CreationDate),
		Labels:             []string{},
		RequestedReviewers: []domain.User{},
		Assignees:          []domain.User{},
		Mergeable:          domain.MergeableUnknown,
		Repository:         domain.RepoRef{Owner: at.organization + "/" + at.project, Name: at.repo},
		URL:                buildPRWebURL(pr),
	}
	if out.URL == "" {
		out.URL = buildPRURL(at.baseURL, at.organization, at.project, at.repo, number)
	}
	if pr.LastMergeSourceCommit != nil {
		out.Head.SHA = common.GetString(pr.LastMergeSourceCommit.CommitId)
	}
	if pr.LastMergeTargetCommit != nil {
		out.Base.SHA = common.GetString(pr.LastMergeTargetCommit.CommitId)
	}
	if pr.MergeStatus != nil {
		if m, ok := mergeStatuses[*pr.MergeStatus]; ok {
			out.Mergeable = m
		}
	}
	if pr.Labels != nil {
		for _, l := range *pr.Labels {
			if name := common.GetString(l.Name); name != "" {
				out.Labels = append(out.Labels, name)
			}
		}
	}
	if pr.Reviewers != nil {
		for _, r := range *pr.Reviewers {
			if common.GetInt(r.Vote) == voteNone {
				out.RequestedReviewers = append(out.RequestedReviewers, convertReviewer(r))
			}
		}
	}

	closed := common.TimePtr(adoTime(pr.ClosedDate))
	switch *pr.Status {
	case git.PullRequestStatusValues.Active:
		out.State = domain.PRStateOpen
	case git.PullRequestStatusValues.Completed:
		out.State = domain.PRStateClosed
		out.Merged = true
		out.ClosedAt = closed
		out.MergedAt = closed
	case git.PullRequestStatusValues.Abandoned:
		out.State = domain.PRStateClosed
		out.ClosedAt = closed
	default:
		return domain.PullRequest{}, schemaError("pullrequests", "pull request %d has unknown status %q", number, *pr.Status)
	}

	out.UpdatedAt = out.CreatedAt
	if closed != nil {
		out.UpdatedAt = *closed
	}
	return out, out.Validate()
}

// convertReviewers derives one review per reviewer from the current vote.
func convertReviewers(reviewers *[]git.IdentityRefWithVote) []domain.Review {
	if reviewers == nil {
		return []domain.Review{}
	}
	reviews := make([]domain.Review, 0, len(*reviewers))
	for _, r := range *reviewers {
		state, ok := voteStates[common.GetInt(r.Vote)]
		if !ok {
			continue
		}
		author := convertReviewer(r)
		reviews = append(reviews, domain.Review{
			ID:     "reviewer-" + strconv.FormatInt(author.ID, 10),
			Author: author,
			State:  state,
		})
	}
	return reviews
}

func changeStatus(changeType *git.VersionControlChangeType) domain.FileStatus {
	if changeType == nil {
		return domain.FileStatusModified
	}
	ct := strings.ToLower(string(*changeType))
	switch {
	case strings.Contains(ct, "rename"):
		return domain.FileStatusRenamed
	case strings.Contains(ct, "add"):
		return domain.FileStatusAdded
	case strings.Contains(ct, "delete"):
		return domain.FileStatusRemoved
	default:
		return domain.FileStatusModified
	}
}

// convertChanges skips folder entries. Line counts are not reported by the
// iteration changes endpoint and stay zero.
func convertChanges(entries []git.GitPullRequestChange) []domain.FileChange {
	files := make([]domain.FileChange, 0, len(entries))
	for _, e := range entries {
		path, isFolder := itemPath(e.Item)
		if isFolder || path == "" {
			continue
		}
		change := domain.FileChange{Filename: path, Status: changeStatus(e.ChangeType)}
		if change.Status == domain.FileStatusRenamed {
			change.PreviousFilename = trimRepoPath(common.GetString(e.OriginalPath))
			if change.PreviousFilename == "" {
				change.PreviousFilename = trimRepoPath(common.GetString(e.SourceServerItem))
			}
		}
		files = append(files, change)
	}
	return files
}

func diffSources(files []domain.FileChange) []common.FileDiffSource {
	sources := make([]common.FileDiffSource, 0, len(files))
	for _, f := range files {
		src := common.FileDiffSource{NewPath: f.Filename, Status: f.Status}
		if f.PreviousFilename != "" {
			src.OldPath = f.PreviousFilename
		}
		sources = append(sources, src)
	}
	return sources
}

func convertCommit(c git.GitCommitRef) domain.Commit {
	commit := domain.Commit{
		SHA:     common.GetString(c.CommitId),
		Message: common.GetString(c.Comment),
		URL:     common.GetString(c.RemoteUrl),
	}
	if c.Author != nil {
		commit.Author = domain.CommitAuthor{
			Name:  common.GetString(c.Author.Name),
			Email: common.GetString(c.Author.Email),
			Date:  adoTime(c.Author.Date),
		}
	}
	return commit
}

func threadAnchor(ctx *git.CommentThreadContext) *domain.Anchor {
	if ctx == nil || ctx.FilePath == nil {
		return nil
	}
	path := trimRepoPath(*ctx.FilePath)
	switch {
	case ctx.RightFileStart != nil && ctx.RightFileStart.Line != nil:
		return &domain.Anchor{Path: path, Line: *ctx.RightFileStart.Line, Side: domain.SideRight}
	case ctx.LeftFileStart != nil && ctx.LeftFileStart.Line != nil:
		return &domain.Anchor{Path: path, Line: *ctx.LeftFileStart.Line, Side: domain.SideLeft}
	}
	return nil
}

func commentID(threadID, id int) string {
	return fmt.Sprintf("%d-%d", threadID, id)
}

func isSystemComment(c git.Comment) bool {
	return c.CommentType != nil && *c.CommentType == git.CommentTypeValues.System
}

// splitThreads flattens threads into inline and general comments, dropping
// deleted threads as well as deleted and system comments.
func splitThreads(threads []git.GitPullRequestCommentThread) ([]domain.Comment, []domain.IssueComment) {
	inline := []domain.Comment{}
	general := []domain.IssueComment{}
	for _, t := range threads {
		if common.GetBool(t.IsDeleted) || t.Comments == nil || t.Id == nil {
			continue
		}
		anchor := threadAnchor(t.ThreadContext)
		for _, c := range *t.Comments {
			if common.GetBool(c.IsDeleted) || isSystemComment(c) || c.Id == nil {
				continue
			}
			id := commentID(*t.Id, *c.Id)
			created := adoTime(c.PublishedDate)
			updated := adoTime(c.LastUpdatedDate)
			if updated.IsZero() {
				updated = created
			}
			if anchor == nil {
				general = append(general, domain.IssueComment{
					ID:        id,
					Body:      common.GetString(c.Content),
					Author:    convertIdentity(c.Author),
					CreatedAt: created,
					UpdatedAt: updated,
				})
				continue
			}
			a := *anchor
			comment := domain.Comment{
				ID:        id,
				Body:      common.GetString(c.Content),
				Author:    convertIdentity(c.Author),
				CreatedAt: created,
				UpdatedAt: updated,
				Anchor:    &a,
			}
			if parent := common.GetInt(c.ParentCommentId); parent != 0 {
				comment.InReplyToID = commentID(*t.Id, parent)
			}
			inline = append(inline, comment)
		}
	}
	return inline, general
}

func convertStatus(s git.GitPullRequestStatus) (domain.CheckRun, error) {
	if s.State == nil {
		return domain.CheckRun{}, schemaError("statuses", "status without state")
	}
	st, ok := statusStates[*s.State]
	if !ok {
		return domain.CheckRun{}, schemaError("statuses", "unknown status state %q", *s.State)
	}
	name := common.GetString(s.Description)
	if s.Context != nil {
		genre, ctxName := common.GetString(s.Context.Genre), common.GetString(s.Context.Name)
		switch {
		case genre != "" && ctxName != "":
			name = genre + "/" + ctxName
		case ctxName != "":
			name = ctxName
		}
	}
	run := domain.CheckRun{
		ID:         strconv.Itoa(common.GetInt(s.Id)),
		Name:       name,
		Status:     st.status,
		Conclusion: st.conclusion,
	}
	return run, run.Validate()
}

func statusFilters(s domain.StateFilter) []git.PullRequestStatus {
	switch s {
	case domain.StateFilterClosed:
		return []git.PullRequestStatus{git.PullRequestStatusValues.Completed, git.PullRequestStatusValues.Abandoned}
	case domain.StateFilterAll:
		return []git.PullRequestStatus{git.PullRequestStatusValues.All}
	default:
		return []git.PullRequestStatus{git.PullRequestStatusValues.Active}
	}
}
