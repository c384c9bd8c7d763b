package domain

import "context"

type Role string

const (
	RoleAny      Role = ""
	RoleAuthor   Role = "author"
	RoleReviewer Role = "reviewer"
	RoleInvolved Role = "involved"
)

type StateFilter string

const (
	StateFilterOpen   StateFilter = "open"
	StateFilterClosed StateFilter = "closed"
	StateFilterAll    StateFilter = "all"
)

type ListOptions struct {
	State StateFilter
	Limit int
	Role  Role
}

// WithDefaults returns a copy with an empty state replaced by open.
func (o ListOptions) WithDefaults() ListOptions {
	if o.State == "" {
		o.State = StateFilterOpen
	}
	return o
}

type CommentInput struct {
	Body string
	Path string
	Line int
	Side Side
}

func (c CommentInput) IsInline() bool {
	return c.Path != "" && c.Line > 0
}

type ReviewEvent string

const (
	ReviewEventApprove        ReviewEvent = "APPROVE"
	ReviewEventRequestChanges ReviewEvent = "REQUEST_CHANGES"
	ReviewEventComment        ReviewEvent = "COMMENT"
)

// State is the review state a submitted event produces.
func (e ReviewEvent) State() ReviewState {
	switch e {
	case ReviewEventApprove:
		return ReviewStateApproved
	case ReviewEventRequestChanges:
		return ReviewStateChangesRequested
	default:
		return ReviewStateCommented
	}
}

type ReviewInput struct {
	Event    ReviewEvent
	Body     string
	Comments []CommentInput
}

type MergeMethod string

const (
	MergeMethodMerge  MergeMethod = "merge"
	MergeMethodSquash MergeMethod = "squash"
	MergeMethodRebase MergeMethod = "rebase"
)

type MergeInput struct {
	Method       MergeMethod
	CommitTitle  string
	DeleteBranch bool
}

type Provider interface {
	Kind() ProviderType

	// ValidateToken reports whether the configured credentials pass an identity probe.
	ValidateToken(ctx context.Context) bool

	CurrentUser(ctx context.Context) (User, error)

	ListPullRequests(ctx context.Context, owner, repo string, opts ListOptions) ([]PullRequest, error)

	GetPullRequest(ctx context.Context, owner, repo string, number int) (PullRequest, error)

	GetPullRequestDiff(ctx context.Context, owner, repo string, number int) (string, error)

	ListFiles(ctx context.Context, owner, repo string, number int) ([]FileChange, error)

	ListCommits(ctx context.Context, owner, repo string, number int) ([]Commit, error)

	ListComments(ctx context.Context, owner, repo string, number int) ([]Comment, error)

	ListIssueComments(ctx context.Context, owner, repo string, number int) ([]IssueComment, error)

	ListReviews(ctx context.Context, owner, repo string, number int) ([]Review, error)

	ListCheckRuns(ctx context.Context, owner, repo string, number int) ([]CheckRun, error)

	CreateComment(ctx context.Context, owner, repo string, number int, input CommentInput) error

	ApproveReview(ctx context.Context, owner, repo string, number int, body string) error

	RequestChanges(ctx context.Context, owner, repo string, number int, body string) error

	CreateReview(ctx context.Context, owner, repo string, number int, input ReviewInput) error

	MergePullRequest(ctx context.Context, owner, repo string, number int, input MergeInput) error
}
