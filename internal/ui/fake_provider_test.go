package ui

import (
	"context"
	"sync"

	"github.com/johanforsgren/prdeck/internal/domain"
)

type fakeProvider struct {
	mu            sync.Mutex
	viewer        domain.User
	prs           []domain.PullRequest
	diff          string
	comments      []domain.Comment
	issueComments []domain.IssueComment
	writeErr      error
	calls         map[string]int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		viewer: domain.User{Login: "alice", ID: 1},
		calls:  make(map[string]int),
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

func (f *fakeProvider) Kind() domain.ProviderType { return domain.ProviderGitHub }

func (f *fakeProvider) ValidateToken(context.Context) bool { return true }

func (f *fakeProvider) CurrentUser(context.Context) (domain.User, error) {
	f.record("user")
	return f.viewer, nil
}

func (f *fakeProvider) ListPullRequests(_ context.Context, _, _ string, opts domain.ListOptions) ([]domain.PullRequest, error) {
	f.record("list")
	if opts.Role == domain.RoleAny {
		return f.prs, nil
	}
	return domain.FilterByRole(f.prs, opts.Role, f.viewer), nil
}

func (f *fakeProvider) GetPullRequest(_ context.Context, _, _ string, number int) (domain.PullRequest, error) {
	f.record("pr")
	for _, pr := range f.prs {
		if pr.Number == number {
			return pr, nil
		}
	}
	return domain.PullRequest{}, &domain.ProviderError{Provider: domain.ProviderGitHub, StatusCode: 404, Message: "Not Found"}
}

func (f *fakeProvider) GetPullRequestDiff(context.Context, string, string, int) (string, error) {
	f.record("diff")
	return f.diff, nil
}

func (f *fakeProvider) ListFiles(context.Context, string, string, int) ([]domain.FileChange, error) {
	f.record("files")
	return nil, nil
}

func (f *fakeProvider) ListCommits(context.Context, string, string, int) ([]domain.Commit, error) {
	f.record("commits")
	return nil, nil
}

func (f *fakeProvider) ListComments(context.Context, string, string, int) ([]domain.Comment, error) {
	f.record("comments")
	return f.comments, nil
}

func (f *fakeProvider) ListIssueComments(context.Context, string, string, int) ([]domain.IssueComment, error) {
	f.record("issue-comments")
	return f.issueComments, nil
}

func (f *fakeProvider) ListReviews(context.Context, string, string, int) ([]domain.Review, error) {
	f.record("reviews")
	return nil, nil
}

func (f *fakeProvider) ListCheckRuns(context.Context, string, string, int) ([]domain.CheckRun, error) {
	f.record("checks")
	return nil, nil
}

func (f *fakeProvider) CreateComment(context.Context, string, string, int, domain.CommentInput) error {
	f.record("create-comment")
	return f.writeErr
}

func (f *fakeProvider) ApproveReview(context.Context, string, string, int, string) error {
	f.record("approve")
	return f.writeErr
}

func (f *fakeProvider) RequestChanges(context.Context, string, string, int, string) error {
	f.record("request-changes")
	return f.writeErr
}

func (f *fakeProvider) CreateReview(context.Context, string, string, int, domain.ReviewInput) error {
	f.record("create-review")
	return f.writeErr
}

func (f *fakeProvider) MergePullRequest(context.Context, string, string, int, domain.MergeInput) error {
	f.record("merge")
	return f.writeErr
}

var _ domain.Provider = (*fakeProvider)(nil)
