package query

import (
	"context"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/johanforsgren/prdeck/internal/cache"
	"github.com/johanforsgren/prdeck/internal/domain"
)

const pendingPrefix = "pending-"

// pendingID marks optimistic entries until the refetch replaces them.
func pendingID() string {
	return pendingPrefix + uuid.NewString()
}

func IsPending(id string) bool {
	return strings.HasPrefix(id, pendingPrefix)
}

func (e *Engine) PostComment(ctx context.Context, owner, repo string, number int, input domain.CommentInput) error {
	if (input.Path != "") != (input.Line > 0) {
		return &domain.ConfigurationError{Field: "comment", Reason: "inline comments need both path and line"}
	}
	viewer, _ := e.CachedViewer()
	now := e.store.Now()

	var update Update
	if input.IsInline() {
		side := input.Side
		if side == "" {
			side = domain.SideRight
		}
		comment := domain.Comment{
			ID:        pendingID(),
			Body:      input.Body,
			Author:    viewer,
			CreatedAt: now,
			UpdatedAt: now,
			Anchor:    &domain.Anchor{Path: input.Path, Line: input.Line, Side: side},
		}
		update = UpdateOf(ItemKey(cache.KindComments, owner, repo, number), appendIfPresent(comment))
	} else {
		comment := domain.IssueComment{
			ID:        pendingID(),
			Body:      input.Body,
			Author:    viewer,
			CreatedAt: now,
			UpdatedAt: now,
		}
		update = UpdateOf(ItemKey(cache.KindIssueComments, owner, repo, number), appendIfPresent(comment))
	}

	return e.Mutate(ctx, Mutation{
		Name:    "comment",
		Updates: []Update{update},
		Remote: func(ctx context.Context) error {
			return e.provider.CreateComment(ctx, owner, repo, number, input)
		},
	})
}

// SubmitReview posts a review with its inline comments in one call.
func (e *Engine) SubmitReview(ctx context.Context, owner, repo string, number int, input domain.ReviewInput) error {
	return e.review(ctx, "review", owner, repo, number, input, func(ctx context.Context) error {
		return e.provider.CreateReview(ctx, owner, repo, number, input)
	})
}

func (e *Engine) Approve(ctx context.Context, owner, repo string, number int, body string) error {
	input := domain.ReviewInput{Event: domain.ReviewEventApprove, Body: body}
	return e.review(ctx, "approve", owner, repo, number, input, func(ctx context.Context) error {
		return e.provider.ApproveReview(ctx, owner, repo, number, body)
	})
}

func (e *Engine) RequestChanges(ctx context.Context, owner, repo string, number int, body string) error {
	input := domain.ReviewInput{Event: domain.ReviewEventRequestChanges, Body: body}
	return e.review(ctx, "request-changes", owner, repo, number, input, func(ctx context.Context) error {
		return e.provider.RequestChanges(ctx, owner, repo, number, body)
	})
}

func (e *Engine) review(ctx context.Context, name, owner, repo string, number int, input domain.ReviewInput, remote func(context.Context) error) error {
	viewer, _ := e.CachedViewer()
	now := e.store.Now()

	review := domain.Review{
		ID:          pendingID(),
		Author:      viewer,
		State:       input.Event.State(),
		SubmittedAt: &now,
	}
	if input.Body != "" {
		body := input.Body
		review.Body = &body
	}
	updates := []Update{UpdateOf(ItemKey(cache.KindReviews, owner, repo, number), appendIfPresent(review))}

	var inline []domain.Comment
	for _, c := range input.Comments {
		if !c.IsInline() {
			continue
		}
		side := c.Side
		if side == "" {
			side = domain.SideRight
		}
		inline = append(inline, domain.Comment{
			ID:        pendingID(),
			Body:      c.Body,
			Author:    viewer,
			CreatedAt: now,
			UpdatedAt: now,
			Anchor:    &domain.Anchor{Path: c.Path, Line: c.Line, Side: side},
		})
	}
	if len(inline) > 0 {
		updates = append(updates, UpdateOf(ItemKey(cache.KindComments, owner, repo, number), appendIfPresent(inline...)))
	}

	invalidate := []cache.Key{
		ItemKey(cache.KindPullRequest, owner, repo, number),
		ItemKey(cache.KindIssueComments, owner, repo, number),
	}
	for _, k := range e.store.Keys() {
		if k.Owner == owner && k.Repo == repo && k.Kind == cache.KindReviewRequests {
			invalidate = append(invalidate, k)
		}
	}

	return e.Mutate(ctx, Mutation{
		Name:       name,
		Updates:    updates,
		Remote:     remote,
		Invalidate: invalidate,
	})
}

// Merge marks the pull request merged in the detail entry and in every cached
// listing of the repository; listings of open pull requests drop it.
func (e *Engine) Merge(ctx context.Context, owner, repo string, number int, input domain.MergeInput) error {
	now := e.store.Now()
	merged := func(pr domain.PullRequest) domain.PullRequest {
		pr.State = domain.PRStateClosed
		pr.Merged = true
		pr.MergedAt = &now
		pr.ClosedAt = &now
		pr.UpdatedAt = now
		return pr
	}

	updates := []Update{
		UpdateOf(ItemKey(cache.KindPullRequest, owner, repo, number), func(pr domain.PullRequest, present bool) (domain.PullRequest, bool) {
			if !present {
				return pr, false
			}
			return merged(pr), true
		}),
	}
	for _, k := range e.store.Keys() {
		if !k.Kind.IsList() || k.Owner != owner || k.Repo != repo {
			continue
		}
		openOnly := listState(k) == domain.StateFilterOpen
		updates = append(updates, UpdateOf(k, func(prs []domain.PullRequest, present bool) ([]domain.PullRequest, bool) {
			if !present {
				return prs, false
			}
			out := make([]domain.PullRequest, 0, len(prs))
			changed := false
			for _, pr := range prs {
				if pr.Number != number {
					out = append(out, pr)
					continue
				}
				changed = true
				if !openOnly {
					out = append(out, merged(pr))
				}
			}
			return out, changed
		}))
	}

	return e.Mutate(ctx, Mutation{
		Name:    "merge",
		Updates: updates,
		Remote: func(ctx context.Context) error {
			return e.provider.MergePullRequest(ctx, owner, repo, number, input)
		},
		Invalidate: []cache.Key{ItemKey(cache.KindCommits, owner, repo, number)},
	})
}

func listState(k cache.Key) domain.StateFilter {
	values, err := url.ParseQuery(k.Params)
	if err != nil {
		return domain.StateFilterOpen
	}
	if s := values.Get("state"); s != "" {
		return domain.StateFilter(s)
	}
	return domain.StateFilterOpen
}

// appendIfPresent adds items to a cached list. A list that was never fetched
// stays absent so a partial one is not mistaken for the full result.
func appendIfPresent[T any](items ...T) func([]T, bool) ([]T, bool) {
	return func(list []T, present bool) ([]T, bool) {
		if !present {
			return list, false
		}
		out := make([]T, 0, len(list)+len(items))
		out = append(out, list...)
		return append(out, items...), true
	}
}
