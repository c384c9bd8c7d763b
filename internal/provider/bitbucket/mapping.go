package bitbucket

import (
	"fmt"
	"net/mail"
	"strconv"

	"github.com/johanforsgren/prdeck/internal/domain"
)

var fileStatuses = map[string]domain.FileStatus{
	"added":          domain.FileStatusAdded,
	"removed":        domain.FileStatusRemoved,
	"modified":       domain.FileStatusModified,
	"renamed":        domain.FileStatusRenamed,
	"merge conflict": domain.FileStatusModified,
	"local deleted":  domain.FileStatusRemoved,
	"remote deleted": domain.FileStatusRemoved,
}

type statusState struct {
	status     domain.CheckStatus
	conclusion domain.CheckConclusion
}

var buildStates = map[string]statusState{
	"INPROGRESS": {status: domain.CheckStatusInProgress},
	"SUCCESSFUL": {status: domain.CheckStatusCompleted, conclusion: domain.CheckConclusionSuccess},
	"FAILED":     {status: domain.CheckStatusCompleted, conclusion: domain.CheckConclusionFailure},
	"STOPPED":    {status: domain.CheckStatusCompleted, conclusion: domain.CheckConclusionCancelled},
}

var participantStates = map[string]domain.ReviewState{
	"approved":          domain.ReviewStateApproved,
	"changes_requested": domain.ReviewStateChangesRequested,
}

func schemaError(endpoint, format string, args ...any) error {
	return &domain.SchemaValidationError{
		Provider: domain.ProviderBitbucket,
		Endpoint: endpoint,
		Err:      fmt.Errorf(format, args...),
	}
}

// convertUser projects the account UUID through the identity hash since
// Bitbucket has no numeric user ids.
func convertUser(u *bbUser) domain.User {
	if u == nil {
		return domain.User{Kind: domain.UserKindUnknown}
	}
	login := u.Nickname
	if login == "" {
		login = u.DisplayName
	}
	kind := domain.UserKindUnknown
	switch u.Type {
	case "user":
		kind = domain.UserKindUser
	case "app_user":
		kind = domain.UserKindBot
	}
	return domain.User{
		Login:      login,
		ID:         domain.HashIdentity(u.UUID),
		AvatarURL:  u.Links.Avatar.Href,
		ProfileURL: u.Links.HTML.Href,
		Kind:       kind,
	}
}

func convertUsers(users []bbUser) []domain.User {
	out := make([]domain.User, 0, len(users))
	for i := range users {
		out = append(out, convertUser(&users[i]))
	}
	return out
}

// convertPullRequest uses updated_on as the close time of merged and declined
// pull requests; the API exposes no dedicated timestamp.
func convertPullRequest(bb bbPullRequest, workspace, repo string) (domain.PullRequest, error) {
	pr := domain.PullRequest{
		ID:                 strconv.Itoa(bb.ID),
		Number:             bb.ID,
		Title:              bb.Title,
		Body:               bb.Description,
		Draft:              bb.Draft,
		Author:             convertUser(bb.Author),
		Head:               domain.BranchRef{Ref: bb.Source.Branch.Name},
		Base:               domain.BranchRef{Ref: bb.Destination.Branch.Name},
		CreatedAt:          bb.CreatedOn,
		UpdatedAt:          bb.UpdatedOn,
		Labels:             []string{},
		RequestedReviewers: convertUsers(bb.Reviewers),
		Assignees:          []domain.User{},
		Mergeable:          domain.MergeableUnknown,
		Repository:         domain.RepoRef{Owner: workspace, Name: repo},
		URL:                bb.Links.HTML.Href,
	}
	if bb.Source.Commit != nil {
		pr.Head.SHA = bb.Source.Commit.Hash
	}
	if bb.Destination.Commit != nil {
		pr.Base.SHA = bb.Destination.Commit.Hash
	}

	switch bb.State {
	case "OPEN":
		pr.State = domain.PRStateOpen
	case "MERGED":
		pr.State = domain.PRStateClosed
		pr.Merged = true
		closed := bb.UpdatedOn
		pr.ClosedAt = &closed
		merged := bb.UpdatedOn
		pr.MergedAt = &merged
	case "DECLINED", "SUPERSEDED":
		pr.State = domain.PRStateClosed
		closed := bb.UpdatedOn
		pr.ClosedAt = &closed
	default:
		return domain.PullRequest{}, schemaError("pullrequests", "unknown state %q", bb.State)
	}
	return pr, pr.Validate()
}

// convertParticipants turns participants that approved or requested changes
// into reviews. Plain participants carry no review.
func convertParticipants(participants []bbParticipant) []domain.Review {
	reviews := make([]domain.Review, 0, len(participants))
	for _, p := range participants {
		var state domain.ReviewState
		if p.State != nil {
			state = participantStates[*p.State]
		}
		if state == "" && p.Approved {
			state = domain.ReviewStateApproved
		}
		if state == "" {
			continue
		}
		author := convertUser(p.User)
		reviews = append(reviews, domain.Review{
			ID:          "participant-" + strconv.FormatInt(author.ID, 10),
			Author:      author,
			State:       state,
			SubmittedAt: p.ParticipatedOn,
		})
	}
	return reviews
}

func convertDiffStat(d bbDiffStat) (domain.FileChange, error) {
	status, ok := fileStatuses[d.Status]
	if !ok {
		return domain.FileChange{}, schemaError("diffstat", "unknown file status %q", d.Status)
	}
	change := domain.FileChange{
		Status:    status,
		Additions: d.LinesAdded,
		Deletions: d.LinesRemoved,
	}
	switch {
	case d.New != nil:
		change.Filename = d.New.Path
	case d.Old != nil:
		change.Filename = d.Old.Path
	default:
		return domain.FileChange{}, schemaError("diffstat", "entry without paths")
	}
	if status == domain.FileStatusRenamed && d.Old != nil {
		change.PreviousFilename = d.Old.Path
	}
	return change, nil
}

func convertCommit(c bbCommit) domain.Commit {
	commit := domain.Commit{
		SHA:     c.Hash,
		Message: c.Message,
		Author:  domain.CommitAuthor{Name: c.Author.Raw, Date: c.Date},
		URL:     c.Links.HTML.Href,
	}
	if name, email, ok := splitRawAuthor(c.Author.Raw); ok {
		commit.Author.Name = name
		commit.Author.Email = email
	}
	if c.Author.User != nil {
		u := convertUser(c.Author.User)
		commit.User = &u
	}
	return commit
}

// splitRawAuthor parses the "Name <email>" form Bitbucket reports for git authors.
func splitRawAuthor(raw string) (string, string, bool) {
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return "", "", false
	}
	return addr.Name, addr.Address, true
}

func commentAnchor(in *bbInline) *domain.Anchor {
	if in == nil {
		return nil
	}
	switch {
	case in.To != nil:
		return &domain.Anchor{Path: in.Path, Line: *in.To, Side: domain.SideRight}
	case in.From != nil:
		return &domain.Anchor{Path: in.Path, Line: *in.From, Side: domain.SideLeft}
	}
	return nil
}

// splitComments drops deleted comments and separates anchored ones.
func splitComments(comments []bbComment) ([]domain.Comment, []domain.IssueComment) {
	inline := []domain.Comment{}
	general := []domain.IssueComment{}
	for _, c := range comments {
		if c.Deleted {
			continue
		}
		id := strconv.FormatInt(c.ID, 10)
		anchor := commentAnchor(c.Inline)
		if anchor == nil {
			general = append(general, domain.IssueComment{
				ID:        id,
				Body:      c.Content.Raw,
				Author:    convertUser(c.User),
				CreatedAt: c.CreatedOn,
				UpdatedAt: c.UpdatedOn,
			})
			continue
		}
		comment := domain.Comment{
			ID:        id,
			Body:      c.Content.Raw,
			Author:    convertUser(c.User),
			CreatedAt: c.CreatedOn,
			UpdatedAt: c.UpdatedOn,
			Anchor:    anchor,
		}
		if c.Parent != nil {
			comment.InReplyToID = strconv.FormatInt(c.Parent.ID, 10)
		}
		inline = append(inline, comment)
	}
	return inline, general
}

func convertStatus(s bbStatus) (domain.CheckRun, error) {
	st, ok := buildStates[s.State]
	if !ok {
		return domain.CheckRun{}, schemaError("statuses", "status %s has unknown state %q", s.Key, s.State)
	}
	name := s.Name
	if name == "" {
		name = s.Key
	}
	run := domain.CheckRun{
		ID:         s.Key,
		Name:       name,
		Status:     st.status,
		Conclusion: st.conclusion,
	}
	return run, run.Validate()
}

func stateParams(s domain.StateFilter) []string {
	switch s {
	case domain.StateFilterClosed:
		return []string{"MERGED", "DECLINED", "SUPERSEDED"}
	case domain.StateFilterAll:
		return []string{"OPEN", "MERGED", "DECLINED", "SUPERSEDED"}
	default:
		return []string{"OPEN"}
	}
}
