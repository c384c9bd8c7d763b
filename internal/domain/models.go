package domain

import (
	"fmt"
	"time"
)

type ProviderType string

const (
	ProviderGitHub      ProviderType = "github"
	ProviderGitLab      ProviderType = "gitlab"
	ProviderBitbucket   ProviderType = "bitbucket"
	ProviderAzureDevOps ProviderType = "azuredevops"
)

func (p ProviderType) Valid() bool {
	switch p {
	case ProviderGitHub, ProviderGitLab, ProviderBitbucket, ProviderAzureDevOps:
		return true
	}
	return false
}

type PRState string

const (
	PRStateOpen   PRState = "open"
	PRStateClosed PRState = "closed"
)

type UserKind string

const (
	UserKindUser    UserKind = "user"
	UserKindBot     UserKind = "bot"
	UserKindUnknown UserKind = "unknown"
)

type Side string

const (
	SideLeft  Side = "LEFT"
	SideRight Side = "RIGHT"
)

type ReviewState string

const (
	ReviewStateApproved         ReviewState = "APPROVED"
	ReviewStateChangesRequested ReviewState = "CHANGES_REQUESTED"
	ReviewStateCommented        ReviewState = "COMMENTED"
)

type FileStatus string

const (
	FileStatusAdded    FileStatus = "added"
	FileStatusRemoved  FileStatus = "removed"
	FileStatusModified FileStatus = "modified"
	FileStatusRenamed  FileStatus = "renamed"
)

type CheckStatus string

const (
	CheckStatusQueued     CheckStatus = "queued"
	CheckStatusInProgress CheckStatus = "in_progress"
	CheckStatusCompleted  CheckStatus = "completed"
)

type CheckConclusion string

const (
	CheckConclusionNone      CheckConclusion = ""
	CheckConclusionSuccess   CheckConclusion = "success"
	CheckConclusionFailure   CheckConclusion = "failure"
	CheckConclusionNeutral   CheckConclusion = "neutral"
	CheckConclusionCancelled CheckConclusion = "cancelled"
	CheckConclusionTimedOut  CheckConclusion = "timed_out"
	CheckConclusionSkipped   CheckConclusion = "skipped"
)

// Mergeable is a tri-state hint; most backends compute it lazily.
type Mergeable string

const (
	MergeableUnknown Mergeable = "unknown"
	MergeableYes     Mergeable = "true"
	MergeableNo      Mergeable = "false"
)

func MergeableFrom(b *bool) Mergeable {
	if b == nil {
		return MergeableUnknown
	}
	if *b {
		return MergeableYes
	}
	return MergeableNo
}

type User struct {
	Login      string
	ID         int64
	AvatarURL  string
	ProfileURL string
	Kind       UserKind
}

type BranchRef struct {
	Ref string
	SHA string
}

type RepoRef struct {
	Owner string
	Name  string
}

func (r RepoRef) FullName() string {
	return fmt.Sprintf("%s/%s", r.Owner, r.Name)
}

type PullRequest struct {
	ID                 string
	Number             int
	Title              string
	Body               string
	State              PRState
	Merged             bool
	Draft              bool
	Author             User
	Head               BranchRef
	Base               BranchRef
	CreatedAt          time.Time
	UpdatedAt          time.Time
	MergedAt           *time.Time
	ClosedAt           *time.Time
	Labels             []string
	RequestedReviewers []User
	Assignees          []User
	Mergeable          Mergeable
	Repository         RepoRef
	URL                string
}

// Validate reports whether the pull request satisfies the canonical state rules.
func (pr PullRequest) Validate() error {
	switch pr.State {
	case PRStateOpen, PRStateClosed:
	default:
		return fmt.Errorf("pull request %s: unknown state %q", pr.ID, pr.State)
	}
	if pr.Merged && pr.State != PRStateClosed {
		return fmt.Errorf("pull request %s: merged but state is %s", pr.ID, pr.State)
	}
	return nil
}

func (pr PullRequest) IsClosedUnmerged() bool {
	return pr.State == PRStateClosed && !pr.Merged
}

type Anchor struct {
	Path string
	Line int
	Side Side
}

type Comment struct {
	ID          string
	Body        string
	Author      User
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Anchor      *Anchor
	InReplyToID string
}

func (c Comment) IsInline() bool {
	return c.Anchor != nil
}

type IssueComment struct {
	ID        string
	Body      string
	Author    User
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Review struct {
	ID          string
	Author      User
	State       ReviewState
	Body        *string
	SubmittedAt *time.Time
}

type FileChange struct {
	Filename         string
	Status           FileStatus
	Additions        int
	Deletions        int
	PreviousFilename string
}

type CommitAuthor struct {
	Name  string
	Email string
	Date  time.Time
}

type Commit struct {
	SHA     string
	Message string
	Author  CommitAuthor
	User    *User
	URL     string
}

type CheckRun struct {
	ID         string
	Name       string
	Status     CheckStatus
	Conclusion CheckConclusion
}

func (c CheckRun) Validate() error {
	if c.Status != CheckStatusCompleted && c.Conclusion != CheckConclusionNone {
		return fmt.Errorf("check run %s: conclusion %q set while status is %s", c.ID, c.Conclusion, c.Status)
	}
	return nil
}

type DiffLine struct {
	Type    string
	Content string
	OldLine int
	NewLine int
}

type DiffHunk struct {
	Header string
	Lines  []DiffLine
}

// DiffFile is the parsed form of one file section of a unified diff.
type DiffFile struct {
	OldPath   string
	NewPath   string
	IsNew     bool
	IsDeleted bool
	Hunks     []DiffHunk
}

type Diff struct {
	Files []DiffFile
}
