package bitbucket

import (
	"context"
	"log/slog"
	"sync"

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
		log:    cfg.Log().With("provider", domain.ProviderBitbucket),
	}, nil
}

func (p *Provider) Kind() domain.ProviderType {
	return domain.ProviderBitbucket
}

func (p *Provider) ValidateToken(ctx context.Context) bool {
	if _, err := p.CurrentUser(ctx); err != nil {
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

	bbu, err := p.client.CurrentUser(ctx)
	if err != nil {
		return domain.User{}, err
	}
	user := convertUser(bbu)

	p.mu.Lock()
	p.viewer = &user
	p.mu.Unlock()
	return user, nil
}

func (p *Provider) ListPullRequests(ctx context.Context, owner, repo string, opts domain.ListOptions) ([]domain.PullRequest, error) {
	opts = opts.WithDefaults()
	limit := common.ClampLimit(opts.Limit, maxPageSize)
	p.log.DebugContext(ctx, "listing pull requests", "workspace", owner, "repo", repo, "state", opts.State, "limit", limit)

	bbPRs, err := p.client.ListPullRequests(ctx, owner, repo, stateParams(opts.State), limit)
	if err != nil {
		p.log.ErrorContext(ctx, "list pull requests failed", "workspace", owner, "repo", repo, "error", err)
		return nil, err
	}

	prs := make([]domain.PullRequest, 0, len(bbPRs))
	for _, bb := range bbPRs {
		pr, err := convertPullRequest(bb, owner, repo)
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
	bb, err := p.client.GetPullRequest(ctx, owner, repo, number)
	if err != nil {
		return domain.PullRequest{}, err
	}
	return convertPullRequest(*bb, owner, repo)
}

func (p *Provider) GetPullRequestDiff(ctx context.Context, owner, repo string, number int) (string, error) {
	return p.client.GetDiff(ctx, owner, repo, number)
}

func (p *Provider) ListFiles(ctx context.Context, owner, repo string, number int) ([]domain.FileChange, error) {
	stats, err := p.client.ListDiffStat(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}
	files := make([]domain.FileChange, 0, len(stats))
	for _, s := range stats {
		f, err := convertDiffStat(s)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

func (p *Provider) ListCommits(ctx context.Context, owner, repo string, number int) ([]domain.Commit, error) {
	commits, err := p.client.ListCommits(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Commit, 0, len(commits))
	for _, c := range commits {
		out = append(out, convertCommit(c))
	}
	return out, nil
}

func (p *Provider) ListComments(ctx context.Context, owner, repo string, number int) ([]domain.Comment, error) {
	comments, err := p.client.ListComments(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}
	inline, _ := splitComments(comments)
	return inline, nil
}

func (p *Provider) ListIssueComments(ctx context.Context, owner, repo string, number int) ([]domain.IssueComment, error) {
	comments, err := p.client.ListComments(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}
	_, general := splitComments(comments)
	return general, nil
}

// ListReviews derives reviews from the participant list on the pull request.
func (p *Provider) ListReviews(ctx context.Context, owner, repo string, number int) ([]domain.Review, error) {
	bb, err := p.client.GetPullRequest(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}
	return convertParticipants(bb.Participants), nil
}

func (p *Provider) ListCheckRuns(ctx context.Context, owner, repo string, number int) ([]domain.CheckRun, error) {
	statuses, err := p.client.ListStatuses(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}
	runs := make([]domain.CheckRun, 0, len(statuses))
	for _, s := range statuses {
		run, err := convertStatus(s)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func (p *Provider) CreateComment(ctx context.Context, owner, repo string, number int, input domain.CommentInput) error {
	if (input.Path == "") != (input.Line <= 0) {
		return &domain.ConfigurationError{Field: "comment", Reason: "inline comments need both path and line"}
	}
	comment := newComment{Content: bbContent{Raw: input.Body}}
	if input.IsInline() {
		line := input.Line
		comment.Inline = &bbInline{Path: input.Path}
		if input.Side == domain.SideLeft {
			comment.Inline.From = &line
		} else {
			comment.Inline.To = &line
		}
		p.log.InfoContext(ctx, "creating inline comment", "number", number, "path", input.Path, "line", input.Line)
	}
	return p.client.CreateComment(ctx, owner, repo, number, comment)
}

func (p *Provider) ApproveReview(ctx context.Context, owner, repo string, number int, body string) error {
	if err := p.client.Approve(ctx, owner, repo, number); err != nil {
		return err
	}
	return p.postBody(ctx, owner, repo, number, body)
}

func (p *Provider) RequestChanges(ctx context.Context, owner, repo string, number int, body string) error {
	if err := p.client.RequestChanges(ctx, owner, repo, number); err != nil {
		return err
	}
	return p.postBody(ctx, owner, repo, number, body)
}

func (p *Provider) postBody(ctx context.Context, owner, repo string, number int, body string) error {
	if body == "" {
		return nil
	}
	return p.client.CreateComment(ctx, owner, repo, number, newComment{Content: bbContent{Raw: body}})
}

func (p *Provider) CreateReview(ctx context.Context, owner, repo string, number int, input domain.ReviewInput) error {
	for _, c := range input.Comments {
		if !c.IsInline() {
			return &domain.ConfigurationError{Field: "review.comments", Reason: "review comments need path and line"}
		}
	}
	for _, c := range input.Comments {
		if err := p.CreateComment(ctx, owner, repo, number, c); err != nil {
			return err
		}
	}
	switch input.Event {
	case domain.ReviewEventApprove:
		return p.ApproveReview(ctx, owner, repo, number, input.Body)
	case domain.ReviewEventRequestChanges:
		return p.RequestChanges(ctx, owner, repo, number, input.Body)
	default:
		return p.postBody(ctx, owner, repo, number, input.Body)
	}
}

var mergeStrategies = map[domain.MergeMethod]string{
	"":                       "merge_commit",
	domain.MergeMethodMerge:  "merge_commit",
	domain.MergeMethodSquash: "squash",
	domain.MergeMethodRebase: "fast_forward",
}

func (p *Provider) MergePullRequest(ctx context.Context, owner, repo string, number int, input domain.MergeInput) error {
	strategy, ok := mergeStrategies[input.Method]
	if !ok {
		return &domain.ConfigurationError{Field: "merge.method", Reason: "unknown merge method " + string(input.Method)}
	}
	p.log.InfoContext(ctx, "merging pull request", "number", number, "strategy", strategy)
	return p.client.Merge(ctx, owner, repo, number, mergeRequest{
		MergeStrategy:     strategy,
		Message:           input.CommitTitle,
		CloseSourceBranch: input.DeleteBranch,
	})
}

var _ domain.Provider = (*Provider)(nil)
