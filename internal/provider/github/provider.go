package github

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/go-github/v57/github"
	"github.com/johanforsgren/prdeck/internal/domain"
	"github.com/johanforsgren/prdeck/internal/provider/common"
)

type Provider struct {
	client *Client
	log    *slog.Logger

	mu     sync.Mutex
	viewer *domain.User
}

func NewProvider(cfg common.Config) (*Provider, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Provider{
		client: client,
		log:    cfg.Log().With("provider", domain.ProviderGitHub),
	}, nil
}

func (p *Provider) Kind() domain.ProviderType {
	return domain.ProviderGitHub
}

func (p *Provider) ValidateToken(ctx context.Context) bool {
	_, err := p.CurrentUser(ctx)
	if err != nil {
		p.log.WarnContext(ctx, "token validation failed", "error", err)
		return false
	}
	return true
}

func (p *Provider) CurrentUser(ctx context.Context) (domain.User, error) {
	p.mu.Lock()
	if p.viewer != nil {
		defer p.mu.Unlock()
		return *p.viewer, nil
	}
	p.mu.Unlock()

	ghUser, err := p.client.CurrentUser(ctx)
	if err != nil {
		return domain.User{}, err
	}
	if ghUser.GetLogin() == "" {
		return domain.User{}, schemaError("user", "user without login")
	}
	user := convertUser(ghUser)

	p.mu.Lock()
	p.viewer = &user
	p.mu.Unlock()
	return user, nil
}

func (p *Provider) ListPullRequests(ctx context.Context, owner, repo string, opts domain.ListOptions) ([]domain.PullRequest, error) {
	opts = opts.WithDefaults()
	limit := common.ClampLimit(opts.Limit, maxPageSize)
	p.log.DebugContext(ctx, "listing pull requests", "owner", owner, "repo", repo, "state", opts.State, "limit", limit, "role", opts.Role)

	ghPRs, err := p.client.ListPullRequests(ctx, owner, repo, stateParam(opts.State), limit)
	if err != nil {
		p.log.ErrorContext(ctx, "list pull requests failed", "owner", owner, "repo", repo, "error", err)
		return nil, err
	}

	prs := make([]domain.PullRequest, 0, len(ghPRs))
	for _, ghPR := range ghPRs {
		pr, err := convertPullRequest(ghPR, owner, repo)
		if err != nil {
			return nil, err
		}
		prs = append(prs, pr)
	}

	if opts.Role != domain.RoleAny {
		viewer, err := p.CurrentUser(ctx)
		if err != nil {
			return nil, err
		}
		prs = domain.FilterByRole(prs, opts.Role, viewer)
	}
	return prs, nil
}

func (p *Provider) GetPullRequest(ctx context.Context, owner, repo string, number int) (domain.PullRequest, error) {
	ghPR, err := p.client.GetPullRequest(ctx, owner, repo, number)
	if err != nil {
		return domain.PullRequest{}, err
	}
	return convertPullRequest(ghPR, owner, repo)
}

func (p *Provider) GetPullRequestDiff(ctx context.Context, owner, repo string, number int) (string, error) {
	diff, err := p.client.GetDiff(ctx, owner, repo, number)
	if err != nil {
		return "", err
	}
	p.log.DebugContext(ctx, "received diff", "number", number, "bytes", len(diff))
	return diff, nil
}

func (p *Provider) ListFiles(ctx context.Context, owner, repo string, number int) ([]domain.FileChange, error) {
	files, err := p.client.ListFiles(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}
	out := make([]domain.FileChange, 0, len(files))
	for _, f := range files {
		change, err := convertFile(f)
		if err != nil {
			return nil, err
		}
		out = append(out, change)
	}
	return out, nil
}

func (p *Provider) ListCommits(ctx context.Context, owner, repo string, number int) ([]domain.Commit, error) {
	commits, err := p.client.ListCommits(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Commit, 0, len(commits))
	for _, c := range commits {
		if c.GetSHA() == "" {
			return nil, schemaError("commits", "commit without sha")
		}
		out = append(out, convertCommit(c))
	}
	return out, nil
}

func (p *Provider) ListComments(ctx context.Context, owner, repo string, number int) ([]domain.Comment, error) {
	ghComments, err := p.client.ListComments(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}
	comments := make([]domain.Comment, 0, len(ghComments))
	for _, c := range ghComments {
		comments = append(comments, convertComment(c))
	}
	return comments, nil
}

func (p *Provider) ListIssueComments(ctx context.Context, owner, repo string, number int) ([]domain.IssueComment, error) {
	ghComments, err := p.client.ListIssueComments(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}
	comments := make([]domain.IssueComment, 0, len(ghComments))
	for _, c := range ghComments {
		if isBotNoise(c) {
			continue
		}
		comments = append(comments, convertIssueComment(c))
	}
	return comments, nil
}

func (p *Provider) ListReviews(ctx context.Context, owner, repo string, number int) ([]domain.Review, error) {
	ghReviews, err := p.client.ListReviews(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}
	reviews := make([]domain.Review, 0, len(ghReviews))
	for _, r := range ghReviews {
		if review, ok := convertReview(r); ok {
			reviews = append(reviews, review)
		}
	}
	return reviews, nil
}

func (p *Provider) ListCheckRuns(ctx context.Context, owner, repo string, number int) ([]domain.CheckRun, error) {
	pr, err := p.GetPullRequest(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}
	if pr.Head.SHA == "" {
		return nil, nil
	}
	runs, err := p.client.ListCheckRuns(ctx, owner, repo, pr.Head.SHA)
	if err != nil {
		return nil, err
	}
	out := make([]domain.CheckRun, 0, len(runs))
	for _, r := range runs {
		run, err := convertCheckRun(r)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

func (p *Provider) CreateComment(ctx context.Context, owner, repo string, number int, input domain.CommentInput) error {
	if (input.Path == "") != (input.Line <= 0) {
		return &domain.ConfigurationError{Field: "comment", Reason: "inline comments need both path and line"}
	}
	if !input.IsInline() {
		return p.client.CreateIssueComment(ctx, owner, repo, number, input.Body)
	}

	pr, err := p.client.GetPullRequest(ctx, owner, repo, number)
	if err != nil {
		return err
	}
	side := input.Side
	if side == "" {
		side = domain.SideRight
	}
	comment := &github.PullRequestComment{
		Body:     github.String(input.Body),
		CommitID: github.String(pr.GetHead().GetSHA()),
		Path:     github.String(input.Path),
		Line:     github.Int(input.Line),
		Side:     github.String(string(side)),
	}
	p.log.InfoContext(ctx, "creating inline comment", "number", number, "path", input.Path, "line", input.Line)
	return p.client.CreateComment(ctx, owner, repo, number, comment)
}

func (p *Provider) ApproveReview(ctx context.Context, owner, repo string, number int, body string) error {
	return p.CreateReview(ctx, owner, repo, number, domain.ReviewInput{Event: domain.ReviewEventApprove, Body: body})
}

func (p *Provider) RequestChanges(ctx context.Context, owner, repo string, number int, body string) error {
	return p.CreateReview(ctx, owner, repo, number, domain.ReviewInput{Event: domain.ReviewEventRequestChanges, Body: body})
}

func (p *Provider) CreateReview(ctx context.Context, owner, repo string, number int, input domain.ReviewInput) error {
	event := input.Event
	if event == "" {
		event = domain.ReviewEventComment
	}
	review := &github.PullRequestReviewRequest{Event: github.String(string(event))}
	if input.Body != "" {
		review.Body = github.String(input.Body)
	}

	for _, c := range input.Comments {
		if !c.IsInline() {
			return &domain.ConfigurationError{Field: "review.comments", Reason: "review comments need path and line"}
		}
		side := c.Side
		if side == "" {
			side = domain.SideRight
		}
		review.Comments = append(review.Comments, &github.DraftReviewComment{
			Path: github.String(c.Path),
			Line: github.Int(c.Line),
			Side: github.String(string(side)),
			Body: github.String(c.Body),
		})
	}

	p.log.InfoContext(ctx, "submitting review", "number", number, "event", event, "comments", len(review.Comments))
	return p.client.CreateReview(ctx, owner, repo, number, review)
}

func (p *Provider) MergePullRequest(ctx context.Context, owner, repo string, number int, input domain.MergeInput) error {
	method := input.Method
	if method == "" {
		method = domain.MergeMethodMerge
	}
	p.log.InfoContext(ctx, "merging pull request", "number", number, "method", method, "delete_branch", input.DeleteBranch)
	if err := p.client.Merge(ctx, owner, repo, number, string(method), input.CommitTitle); err != nil {
		return err
	}
	if !input.DeleteBranch {
		return nil
	}
	pr, err := p.client.GetPullRequest(ctx, owner, repo, number)
	if err != nil {
		return err
	}
	return p.client.DeleteBranch(ctx, owner, repo, pr.GetHead().GetRef())
}

// isBotNoise drops comments GitHub itself posts for events, which carry no
// author or body.
func isBotNoise(c *github.IssueComment) bool {
	return c.User == nil && c.GetBody() == ""
}

var _ domain.Provider = (*Provider)(nil)
