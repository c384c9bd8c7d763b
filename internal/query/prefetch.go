package query

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Prefetch warms the detail, diff and discussion entries of one pull request
// concurrently, so opening it afterwards is served from cache.
func (e *Engine) Prefetch(ctx context.Context, owner, repo string, number int) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := e.PullRequest(ctx, owner, repo, number)
		return err
	})
	g.Go(func() error {
		_, err := e.Diff(ctx, owner, repo, number)
		return err
	})
	g.Go(func() error {
		_, err := e.Files(ctx, owner, repo, number)
		return err
	})
	g.Go(func() error {
		_, err := e.Comments(ctx, owner, repo, number)
		return err
	})
	g.Go(func() error {
		_, err := e.IssueComments(ctx, owner, repo, number)
		return err
	})
	g.Go(func() error {
		_, err := e.Reviews(ctx, owner, repo, number)
		return err
	})
	g.Go(func() error {
		_, err := e.Checks(ctx, owner, repo, number)
		return err
	})
	return g.Wait()
}
