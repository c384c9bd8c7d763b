package query

import (
	"context"
	"sync"
	"time"

	"github.com/johanforsgren/prdeck/internal/domain"
)

type fakeProvider struct {
	mu    sync.Mutex
	calls map[string]int

	user          domain.User
	prs           []domain.PullRequest
	pr            domain.PullRequest
	diff          string
	files         []domain.FileChange
	commits       []domain.Commit
	comments      []domain.Comment
	issueComments []domain.IssueComment
	reviews       []domain.Review
	checks        []domain.CheckRun

	// remote, when set, runs for every write and decides its result.
	remote func(op string) error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		calls: make(map[string]int),
		user:  domain.User{Login: "alice", ID: 1, Kind: domain.UserKindUser},
	}
}

func (f *fakeProvider) record(op string) {
	f.mu.Lock()
	f.calls[op]++
	f.mu.Unlock()
}

func (f *fakeProvider) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeProvider) write(op string) error {
	f.record(op)
	f.mu.Lock()
	remote := f.remote
	f.mu.Unlock()
	if remote != nil {
		return remote(op)
	}
	return nil
}

func (f *fakeProvider) setComments(c []domain.Comment) {
	f.mu.Lock()
	f.comments = c
	f.mu.Unlock()
}

func (f *fakeProvider) Kind() domain.ProviderType { return domain.ProviderGitHub }

func (f *fakeProvider) ValidateToken(context.Context) bool { return true }

func (f *fakeProvider) CurrentUser(context.Context) (domain.User, error) {
	f.record("user")
	return f.user, nil
}

func (f *fakeProvider) ListPullRequests(_ context.Context, _, _ string, opts domain.ListOptions) ([]domain.PullRequest, error) {
	f.record("list")
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.FilterByRole(f.prs, opts.Role, f.user), nil
}

func (f *fakeProvider) GetPullRequest(context.Context, string, string, int) (domain.PullRequest, error) {
	f.record("pr")
	return f.pr, nil
}

func (f *fakeProvider) GetPullRequestDiff(context.Context, string, string, int) (string, error) {
	f.record("diff")
	return f.diff, nil
}

func (f *fakeProvider) ListFiles(context.Context, string, string, int) ([]domain.FileChange, error) {
	f.record("files")
	return f.files, nil
}

func (f *fakeProvider) ListCommits(context.Context, string, string, int) ([]domain.Commit, error) {
	f.record("commits")
	return f.commits, nil
}

func (f *fakeProvider) ListComments(context.Context, string, string, int) ([]domain.Comment, error) {
	f.record("comments")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.comments, nil
}

func (f *fakeProvider) ListIssueComments(context.Context, string, string, int) ([]domain.IssueComment, error) {
	f.record("issue-comments")
	return f.issueComments, nil
}

func (f *fakeProvider) ListReviews(context.Context, string, string, int) ([]domain.Review, error) {
	f.record("reviews")
	return f.reviews, nil
}

func (f *fakeProvider) ListCheckRuns(context.Context, string, string, int) ([]domain.CheckRun, error) {
	f.record("checks")
	return f.checks, nil
}

func (f *fakeProvider) CreateComment(context.Context, string, string, int, domain.CommentInput) error {
	return f.write("create-comment")
}

func (f *fakeProvider) ApproveReview(context.Context, string, string, int, string) error {
	return f.write("approve")
}

func (f *fakeProvider) RequestChanges(context.Context, string, string, int, string) error {
	return f.write("request-changes")
}

func (f *fakeProvider) CreateReview(context.Context, string, string, int, domain.ReviewInput) error {
	return f.write("create-review")
}

func (f *fakeProvider) MergePullRequest(context.Context, string, string, int, domain.MergeInput) error {
	return f.write("merge")
}

var _ domain.Provider = (*fakeProvider)(nil)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
