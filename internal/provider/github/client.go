package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/johanforsgren/prdeck/internal/domain"
	"github.com/johanforsgren/prdeck/internal/provider/common"
	"golang.org/x/oauth2"
)

const maxPageSize = 100

type Client struct {
	client *github.Client
}

func NewClient(cfg common.Config) (*Client, error) {
	if err := cfg.RequireToken(); err != nil {
		return nil, err
	}

	base := common.NewHTTPClient(cfg.HTTP)
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	client := github.NewClient(oauth2.NewClient(ctx, ts))

	if cfg.BaseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(cfg.BaseURL, cfg.BaseURL)
		if err != nil {
			return nil, &domain.ConfigurationError{Field: "base_url", Reason: err.Error()}
		}
	}

	return &Client{client: client}, nil
}

func (c *Client) CurrentUser(ctx context.Context) (*github.User, error) {
	user, _, err := c.client.Users.Get(ctx, "")
	if err != nil {
		return nil, mapError("get user", err)
	}
	return user, nil
}

func (c *Client) ListPullRequests(ctx context.Context, owner, repo, state string, limit int) ([]*github.PullRequest, error) {
	opts := &github.PullRequestListOptions{
		State:       state,
		ListOptions: github.ListOptions{PerPage: limit},
	}
	prs, _, err := c.client.PullRequests.List(ctx, owner, repo, opts)
	if err != nil {
		return nil, mapError("list pull requests", err)
	}
	return prs, nil
}

func (c *Client) GetPullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error) {
	pr, _, err := c.client.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, mapError("get pull request", err)
	}
	return pr, nil
}

func (c *Client) GetDiff(ctx context.Context, owner, repo string, number int) (string, error) {
	diff, _, err := c.client.PullRequests.GetRaw(ctx, owner, repo, number, github.RawOptions{Type: github.Diff})
	if err != nil {
		return "", mapError("get diff", err)
	}
	return diff, nil
}

func (c *Client) ListFiles(ctx context.Context, owner, repo string, number int) ([]*github.CommitFile, error) {
	files, _, err := c.client.PullRequests.ListFiles(ctx, owner, repo, number, &github.ListOptions{PerPage: maxPageSize})
	if err != nil {
		return nil, mapError("list files", err)
	}
	return files, nil
}

func (c *Client) ListCommits(ctx context.Context, owner, repo string, number int) ([]*github.RepositoryCommit, error) {
	commits, _, err := c.client.PullRequests.ListCommits(ctx, owner, repo, number, &github.ListOptions{PerPage: maxPageSize})
	if err != nil {
		return nil, mapError("list commits", err)
	}
	return commits, nil
}

func (c *Client) ListComments(ctx context.Context, owner, repo string, number int) ([]*github.PullRequestComment, error) {
	opts := &github.PullRequestListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: maxPageSize},
	}
	comments, _, err := c.client.PullRequests.ListComments(ctx, owner, repo, number, opts)
	if err != nil {
		return nil, mapError("list comments", err)
	}
	return comments, nil
}

func (c *Client) ListIssueComments(ctx context.Context, owner, repo string, number int) ([]*github.IssueComment, error) {
	opts := &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: maxPageSize},
	}
	comments, _, err := c.client.Issues.ListComments(ctx, owner, repo, number, opts)
	if err != nil {
		return nil, mapError("list issue comments", err)
	}
	return comments, nil
}

func (c *Client) ListReviews(ctx context.Context, owner, repo string, number int) ([]*github.PullRequestReview, error) {
	reviews, _, err := c.client.PullRequests.ListReviews(ctx, owner, repo, number, &github.ListOptions{PerPage: maxPageSize})
	if err != nil {
		return nil, mapError("list reviews", err)
	}
	return reviews, nil
}

func (c *Client) ListCheckRuns(ctx context.Context, owner, repo, ref string) ([]*github.CheckRun, error) {
	opts := &github.ListCheckRunsOptions{ListOptions: github.ListOptions{PerPage: maxPageSize}}
	result, _, err := c.client.Checks.ListCheckRunsForRef(ctx, owner, repo, ref, opts)
	if err != nil {
		return nil, mapError("list check runs", err)
	}
	if result == nil {
		return nil, nil
	}
	return result.CheckRuns, nil
}

func (c *Client) CreateComment(ctx context.Context, owner, repo string, number int, comment *github.PullRequestComment) error {
	_, _, err := c.client.PullRequests.CreateComment(ctx, owner, repo, number, comment)
	if err != nil {
		return mapError("create comment", err)
	}
	return nil
}

func (c *Client) CreateIssueComment(ctx context.Context, owner, repo string, number int, body string) error {
	_, _, err := c.client.Issues.CreateComment(ctx, owner, repo, number, &github.IssueComment{Body: github.String(body)})
	if err != nil {
		return mapError("create issue comment", err)
	}
	return nil
}

func (c *Client) CreateReview(ctx context.Context, owner, repo string, number int, review *github.PullRequestReviewRequest) error {
	_, _, err := c.client.PullRequests.CreateReview(ctx, owner, repo, number, review)
	if err != nil {
		return mapError("create review", err)
	}
	return nil
}

func (c *Client) Merge(ctx context.Context, owner, repo string, number int, method, title string) error {
	opts := &github.PullRequestOptions{MergeMethod: method, CommitTitle: title}
	result, _, err := c.client.PullRequests.Merge(ctx, owner, repo, number, "", opts)
	if err != nil {
		return mapError("merge pull request", err)
	}
	if result != nil && !result.GetMerged() {
		return &domain.ProviderError{Provider: domain.ProviderGitHub, Message: result.GetMessage()}
	}
	return nil
}

func (c *Client) DeleteBranch(ctx context.Context, owner, repo, branch string) error {
	_, err := c.client.Git.DeleteRef(ctx, owner, repo, "heads/"+branch)
	if err != nil {
		return mapError("delete branch", err)
	}
	return nil
}

// mapError turns go-github errors into the shared taxonomy. An exhausted
// primary rate limit arrives as 403 but is treated as 429 so it is retried
// after the reset time.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return &domain.ProviderError{
			Provider:   domain.ProviderGitHub,
			StatusCode: http.StatusTooManyRequests,
			RetryAfter: time.Until(rateErr.Rate.Reset.Time),
			Message:    rateErr.Message,
		}
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		pe := &domain.ProviderError{
			Provider:   domain.ProviderGitHub,
			StatusCode: http.StatusTooManyRequests,
			Message:    abuseErr.Message,
		}
		if abuseErr.RetryAfter != nil {
			pe.RetryAfter = *abuseErr.RetryAfter
		}
		return pe
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) {
		pe := &domain.ProviderError{
			Provider: domain.ProviderGitHub,
			Message:  common.ExtractErrorMessage(err),
		}
		if respErr.Message != "" {
			pe.Message = respErr.Message
			if details := errorDetails(respErr); details != "" {
				pe.Message += ": " + details
			}
		}
		if respErr.Response != nil {
			pe.StatusCode = respErr.Response.StatusCode
			pe.RetryAfter = common.ParseRetryAfter(respErr.Response.Header.Get("Retry-After"), time.Now())
		}
		return pe
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &domain.SchemaValidationError{Provider: domain.ProviderGitHub, Endpoint: op, Err: err}
	}

	return common.TransportError(domain.ProviderGitHub, op, fmt.Errorf("%s: %w", op, err))
}

func errorDetails(resp *github.ErrorResponse) string {
	parts := make([]string, 0, len(resp.Errors))
	for _, e := range resp.Errors {
		if e.Message != "" {
			parts = append(parts, e.Message)
		}
	}
	return strings.Join(parts, "; ")
}
