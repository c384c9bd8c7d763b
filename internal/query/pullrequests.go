package query

import (
	"context"
	"net/url"
	"strconv"

	"github.com/johanforsgren/prdeck/internal/cache"
	"github.com/johanforsgren/prdeck/internal/domain"
)

var roleKinds = map[domain.Role]cache.Kind{
	domain.RoleAny:      cache.KindPullRequests,
	domain.RoleAuthor:   cache.KindMyPullRequests,
	domain.RoleReviewer: cache.KindReviewRequests,
	domain.RoleInvolved: cache.KindInvolvedPullRequests,
}

func ViewerKey() cache.Key {
	return cache.Key{Kind: cache.KindViewer}
}

// ListKey is the key of a pull request listing. The role picks the kind; the
// state and limit go into the params.
func ListKey(owner, repo string, opts domain.ListOptions) cache.Key {
	opts = opts.WithDefaults()
	kind, ok := roleKinds[opts.Role]
	if !ok {
		kind = cache.KindPullRequests
	}
	params := url.Values{
		"state": {string(opts.State)},
		"limit": {strconv.Itoa(opts.Limit)},
	}
	return cache.Key{Kind: kind, Owner: owner, Repo: repo, Params: params.Encode()}
}

// ItemKey is the key of a per pull request resource such as its diff.
func ItemKey(kind cache.Kind, owner, repo string, number int) cache.Key {
	return cache.Key{Kind: kind, Owner: owner, Repo: repo, ID: strconv.Itoa(number)}
}

func (e *Engine) Viewer(ctx context.Context) (domain.User, error) {
	return Fetch(ctx, e, ViewerKey(), e.provider.CurrentUser)
}

// CachedViewer returns the viewer if it has been fetched before.
func (e *Engine) CachedViewer() (domain.User, bool) {
	entry, ok := e.store.Get(ViewerKey())
	if !ok {
		return domain.User{}, false
	}
	u, ok := entry.Value.(domain.User)
	return u, ok
}

func (e *Engine) PullRequests(ctx context.Context, owner, repo string, opts domain.ListOptions) ([]domain.PullRequest, error) {
	opts = opts.WithDefaults()
	return Fetch(ctx, e, ListKey(owner, repo, opts), func(ctx context.Context) ([]domain.PullRequest, error) {
		if opts.Role != domain.RoleAny {
			// Role lists are filtered against the viewer; having it cached
			// also lets population fill the sibling lists.
			if _, err := e.Viewer(ctx); err != nil {
				return nil, err
			}
		}
		return e.provider.ListPullRequests(ctx, owner, repo, opts)
	})
}

func (e *Engine) MyPullRequests(ctx context.Context, owner, repo string, state domain.StateFilter, limit int) ([]domain.PullRequest, error) {
	return e.PullRequests(ctx, owner, repo, domain.ListOptions{State: state, Limit: limit, Role: domain.RoleAuthor})
}

func (e *Engine) ReviewRequests(ctx context.Context, owner, repo string, state domain.StateFilter, limit int) ([]domain.PullRequest, error) {
	return e.PullRequests(ctx, owner, repo, domain.ListOptions{State: state, Limit: limit, Role: domain.RoleReviewer})
}

func (e *Engine) InvolvedPullRequests(ctx context.Context, owner, repo string, state domain.StateFilter, limit int) ([]domain.PullRequest, error) {
	return e.PullRequests(ctx, owner, repo, domain.ListOptions{State: state, Limit: limit, Role: domain.RoleInvolved})
}

func (e *Engine) PullRequest(ctx context.Context, owner, repo string, number int) (domain.PullRequest, error) {
	return Fetch(ctx, e, ItemKey(cache.KindPullRequest, owner, repo, number), func(ctx context.Context) (domain.PullRequest, error) {
		return e.provider.GetPullRequest(ctx, owner, repo, number)
	})
}

func (e *Engine) Diff(ctx context.Context, owner, repo string, number int) (string, error) {
	return Fetch(ctx, e, ItemKey(cache.KindDiff, owner, repo, number), func(ctx context.Context) (string, error) {
		return e.provider.GetPullRequestDiff(ctx, owner, repo, number)
	})
}

func (e *Engine) Files(ctx context.Context, owner, repo string, number int) ([]domain.FileChange, error) {
	return Fetch(ctx, e, ItemKey(cache.KindFiles, owner, repo, number), func(ctx context.Context) ([]domain.FileChange, error) {
		return e.provider.ListFiles(ctx, owner, repo, number)
	})
}

func (e *Engine) Commits(ctx context.Context, owner, repo string, number int) ([]domain.Commit, error) {
	return Fetch(ctx, e, ItemKey(cache.KindCommits, owner, repo, number), func(ctx context.Context) ([]domain.Commit, error) {
		return e.provider.ListCommits(ctx, owner, repo, number)
	})
}

func (e *Engine) Comments(ctx context.Context, owner, repo string, number int) ([]domain.Comment, error) {
	return Fetch(ctx, e, ItemKey(cache.KindComments, owner, repo, number), func(ctx context.Context) ([]domain.Comment, error) {
		return e.provider.ListComments(ctx, owner, repo, number)
	})
}

func (e *Engine) IssueComments(ctx context.Context, owner, repo string, number int) ([]domain.IssueComment, error) {
	return Fetch(ctx, e, ItemKey(cache.KindIssueComments, owner, repo, number), func(ctx context.Context) ([]domain.IssueComment, error) {
		return e.provider.ListIssueComments(ctx, owner, repo, number)
	})
}

func (e *Engine) Reviews(ctx context.Context, owner, repo string, number int) ([]domain.Review, error) {
	return Fetch(ctx, e, ItemKey(cache.KindReviews, owner, repo, number), func(ctx context.Context) ([]domain.Review, error) {
		return e.provider.ListReviews(ctx, owner, repo, number)
	})
}

func (e *Engine) Checks(ctx context.Context, owner, repo string, number int) ([]domain.CheckRun, error) {
	return Fetch(ctx, e, ItemKey(cache.KindChecks, owner, repo, number), func(ctx context.Context) ([]domain.CheckRun, error) {
		return e.provider.ListCheckRuns(ctx, owner, repo, number)
	})
}
