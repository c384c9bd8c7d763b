package gitlab

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/johanforsgren/prdeck/internal/domain"
	"github.com/johanforsgren/prdeck/internal/provider/common"
	"golang.org/x/sync/errgroup"
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
		log:    cfg.Log().With("provider", domain.ProviderGitLab),
	}, nil
}

func (p *Provider) Kind() domain.ProviderType {
	return domain.ProviderGitLab
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

	glu, err := p.client.CurrentUser(ctx)
	if err != nil {
		return domain.User{}, err
	}
	user := convertUser(*glu)

	p.mu.Lock()
	p.viewer = &user
	p.mu.Unlock()
	return user, nil
}

// ListPullRequests filters by author and reviewer natively. GitLab's closed
// state excludes merged requests, so a closed listing fetches both and merges
// them by recency.
func (p *Provider) ListPullRequests(ctx context.Context, owner, repo string, opts domain.ListOptions) ([]domain.PullRequest, error) {
	opts = opts.WithDefaults()
	q := MergeRequestQuery{Limit: common.ClampLimit(opts.Limit, maxPageSize)}

	var viewer domain.User
	if opts.Role != domain.RoleAny {
		var err error
		if viewer, err = p.CurrentUser(ctx); err != nil {
			return nil, err
		}
		switch opts.Role {
		case domain.RoleAuthor:
			q.AuthorID = viewer.ID
		case domain.RoleReviewer:
			q.ReviewerID = viewer.ID
		}
	}

	p.log.DebugContext(ctx, "listing merge requests", "project", owner+"/"+repo, "state", opts.State, "limit", q.Limit, "role", opts.Role)

	var mrs []glMergeRequest
	if opts.State == domain.StateFilterClosed {
		var closed, merged []glMergeRequest
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			cq := q
			cq.State = "closed"
			var err error
			closed, err = p.client.ListMergeRequests(gctx, owner, repo, cq)
			return err
		})
		g.Go(func() error {
			mq := q
			mq.State = "merged"
			var err error
			merged, err = p.client.ListMergeRequests(gctx, owner, repo, mq)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		mrs = append(closed, merged...)
		sort.SliceStable(mrs, func(i, j int) bool { return mrs[i].UpdatedAt.After(mrs[j].UpdatedAt) })
		if len(mrs) > q.Limit {
			mrs = mrs[:q.Limit]
		}
	} else {
		q.State = stateParam(opts.State)
		var err error
		if mrs, err = p.client.ListMergeRequests(ctx, owner, repo, q); err != nil {
			p.log.ErrorContext(ctx, "list merge requests failed", "project", owner+"/"+repo, "error", err)
			return nil, err
		}
	}

	prs := make([]domain.PullRequest, 0, len(mrs))
	for _, mr := range mrs {
		pr, err := convertMergeRequest(mr, owner, repo)
		if err != nil {
			return nil, err
		}
		prs = append(prs, pr)
	}

	if opts.Role == domain.RoleInvolved {
		prs = domain.FilterByRole(prs, opts.Role, viewer)
	}
	return prs, nil
}

func (p *Provider) GetPullRequest(ctx context.Context, owner, repo string, number int) (domain.PullRequest, error) {
	mr, err := p.client.GetMergeRequest(ctx, owner, repo, number)
	if err != nil {
		return domain.PullRequest{}, err
	}
	return convertMergeRequest(*mr, owner, repo)
}

func (p *Provider) GetPullRequestDiff(ctx context.Context, owner, repo string, number int) (string, error) {
	changes, err := p.client.ListChanges(ctx, owner, repo, number)
	if err != nil {
		return "", err
	}
	sources := make([]common.FileDiffSource, 0, len(changes))
	for _, c := range changes {
		sources = append(sources, diffSource(c))
	}
	return common.JoinFileDiffs(sources)
}

func (p *Provider) ListFiles(ctx context.Context, owner, repo string, number int) ([]domain.FileChange, error) {
	changes, err := p.client.ListChanges(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}
	files := make([]domain.FileChange, 0, len(changes))
	for _, c := range changes {
		files = append(files, convertChange(c))
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
	discussions, err := p.client.ListDiscussions(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}
	inline, _ := splitDiscussions(discussions)
	if inline == nil {
		inline = []domain.Comment{}
	}
	return inline, nil
}

func (p *Provider) ListIssueComments(ctx context.Context, owner, repo string, number int) ([]domain.IssueComment, error) {
	discussions, err := p.client.ListDiscussions(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}
	_, general := splitDiscussions(discussions)
	if general == nil {
		general = []domain.IssueComment{}
	}
	return general, nil
}

func (p *Provider) ListReviews(ctx context.Context, owner, repo string, number int) ([]domain.Review, error) {
	approvals, err := p.client.GetApprovals(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}
	return convertApprovals(approvals), nil
}

func (p *Provider) ListCheckRuns(ctx context.Context, owner, repo string, number int) ([]domain.CheckRun, error) {
	pipelines, err := p.client.ListPipelines(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}
	runs := make([]domain.CheckRun, 0, len(pipelines))
	for _, pl := range pipelines {
		run, err := convertPipeline(pl)
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
	if !input.IsInline() {
		return p.client.CreateNote(ctx, owner, repo, number, input.Body)
	}

	mr, err := p.client.GetMergeRequest(ctx, owner, repo, number)
	if err != nil {
		return err
	}
	if mr.DiffRefs == nil || mr.DiffRefs.HeadSHA == "" {
		return &domain.CapabilityError{
			Provider:  domain.ProviderGitLab,
			Operation: "inline comment",
			Reason:    "merge request has no diff refs",
		}
	}

	line := input.Line
	position := glPosition{
		PositionType: "text",
		BaseSHA:      mr.DiffRefs.BaseSHA,
		StartSHA:     mr.DiffRefs.StartSHA,
		HeadSHA:      mr.DiffRefs.HeadSHA,
		OldPath:      input.Path,
		NewPath:      input.Path,
	}
	if input.Side == domain.SideLeft {
		position.OldLine = &line
	} else {
		position.NewLine = &line
	}

	p.log.InfoContext(ctx, "creating inline discussion", "number", number, "path", input.Path, "line", input.Line)
	return p.client.CreateDiscussion(ctx, owner, repo, number, input.Body, position)
}

func (p *Provider) ApproveReview(ctx context.Context, owner, repo string, number int, body string) error {
	if err := p.client.Approve(ctx, owner, repo, number); err != nil {
		return err
	}
	if body == "" {
		return nil
	}
	return p.client.CreateNote(ctx, owner, repo, number, body)
}

// RequestChanges withdraws any approval by the viewer and leaves the body as
// a note. GitLab answers 404 when there was nothing to withdraw.
func (p *Provider) RequestChanges(ctx context.Context, owner, repo string, number int, body string) error {
	if err := p.client.Unapprove(ctx, owner, repo, number); err != nil {
		var provErr *domain.ProviderError
		if !errors.As(err, &provErr) || provErr.StatusCode != http.StatusNotFound {
			return err
		}
	}
	if body == "" {
		body = "Changes requested."
	}
	return p.client.CreateNote(ctx, owner, repo, number, body)
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
		if input.Body == "" {
			return nil
		}
		return p.client.CreateNote(ctx, owner, repo, number, input.Body)
	}
}

func (p *Provider) MergePullRequest(ctx context.Context, owner, repo string, number int, input domain.MergeInput) error {
	opts := mergeRequestMerge{ShouldRemoveSourceBranch: input.DeleteBranch}
	switch input.Method {
	case "", domain.MergeMethodMerge:
		opts.MergeCommitMessage = input.CommitTitle
	case domain.MergeMethodSquash:
		opts.Squash = true
		opts.SquashCommitMessage = input.CommitTitle
	default:
		return &domain.CapabilityError{
			Provider:  domain.ProviderGitLab,
			Operation: "merge",
			Reason:    "merge method " + string(input.Method) + " is configured per project",
		}
	}
	p.log.InfoContext(ctx, "merging merge request", "number", number, "method", input.Method)
	return p.client.Merge(ctx, owner, repo, number, opts)
}

var _ domain.Provider = (*Provider)(nil)
