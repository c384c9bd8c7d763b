package azuredevops

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/johanforsgren/prdeck/internal/domain"
	"github.com/johanforsgren/prdeck/internal/provider/common"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/git"
	"golang.org/x/sync/errgroup"
)

const defaultChangesRequestedBody = "Changes requested."

type viewer struct {
	user domain.User
	id   uuid.UUID
}

// Provider adapts Azure DevOps Repos. The owner coordinate is
// "organization/project", or a bare project when an organization is configured.
type Provider struct {
	cfg     common.Config
	baseURL string
	log     *slog.Logger

	identity     *common.RESTClient
	newGitClient GitClientFactory

	mu      sync.Mutex
	clients map[string]GitClient
	viewers map[string]*viewer
}

func NewProvider(cfg common.Config) (*Provider, error) {
	if err := cfg.RequireToken(); err != nil {
		return nil, err
	}
	baseURL, err := normalizeBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	return &Provider{
		cfg:          cfg,
		baseURL:      baseURL,
		log:          cfg.Log().With("provider", domain.ProviderAzureDevOps),
		identity:     newIdentityClient(cfg, baseURL),
		newGitClient: newSDKGitClient,
		clients:      make(map[string]GitClient),
		viewers:      make(map[string]*viewer),
	}, nil
}

func (p *Provider) Kind() domain.ProviderType {
	return domain.ProviderAzureDevOps
}

// gitClient returns the cached SDK client for org, opening one on first use.
func (p *Provider) gitClient(ctx context.Context, org string) (GitClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[org]; ok {
		return c, nil
	}
	c, err := p.newGitClient(ctx, p.baseURL+"/"+org, p.cfg.Token)
	if err != nil {
		return nil, err
	}
	p.log.DebugContext(ctx, "opened git client", "organization", org)
	p.clients[org] = c
	return c, nil
}

func (p *Provider) client(ctx context.Context, owner string) (*Client, string, error) {
	org, project, err := common.SplitOrganizationProject(owner, p.cfg.Organization)
	if err != nil {
		return nil, "", err
	}
	gc, err := p.gitClient(ctx, org)
	if err != nil {
		return nil, "", err
	}
	return &Client{organization: org, project: project, git: gc}, org, nil
}

func (p *Provider) coordinates(c *Client, repo string) prCoordinates {
	return prCoordinates{baseURL: p.baseURL, organization: c.organization, project: c.project, repo: repo}
}

func (p *Provider) viewerFor(ctx context.Context, org string) (*viewer, error) {
	p.mu.Lock()
	if v, ok := p.viewers[org]; ok {
		p.mu.Unlock()
		return v, nil
	}
	p.mu.Unlock()

	id, err := fetchConnectionData(ctx, p.identity, org)
	if err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id.ID)
	if err != nil {
		return nil, schemaError("connectionData", "identity id %q: %v", id.ID, err)
	}
	v := &viewer{user: convertViewer(id), id: parsed}

	p.mu.Lock()
	p.viewers[org] = v
	p.mu.Unlock()
	return v, nil
}

func (p *Provider) ValidateToken(ctx context.Context) bool {
	if _, err := p.CurrentUser(ctx); err != nil {
		p.log.WarnContext(ctx, "token validation failed", "error", err)
		return false
	}
	return true
}

// CurrentUser resolves the identity behind the token within the configured
// organization.
func (p *Provider) CurrentUser(ctx context.Context) (domain.User, error) {
	if p.cfg.Organization == "" {
		return domain.User{}, &domain.ConfigurationError{Field: "organization", Reason: "required to resolve the current user"}
	}
	v, err := p.viewerFor(ctx, p.cfg.Organization)
	if err != nil {
		return domain.User{}, err
	}
	return v.user, nil
}

func (p *Provider) ListPullRequests(ctx context.Context, owner, repo string, opts domain.ListOptions) ([]domain.PullRequest, error) {
	opts = opts.WithDefaults()
	top := common.ClampLimit(opts.Limit, maxPageSize)
	c, org, err := p.client(ctx, owner)
	if err != nil {
		return nil, err
	}
	p.log.DebugContext(ctx, "listing pull requests", "organization", org, "project", c.project, "repo", repo, "state", opts.State, "top", top)

	var criteria git.GitPullRequestSearchCriteria
	var me *viewer
	if opts.Role != domain.RoleAny {
		if me, err = p.viewerFor(ctx, org); err != nil {
			return nil, err
		}
		switch opts.Role {
		case domain.RoleAuthor:
			criteria.CreatorId = &me.id
		case domain.RoleReviewer:
			criteria.ReviewerId = &me.id
		}
	}

	statuses := statusFilters(opts.State)
	results := make([][]git.GitPullRequest, len(statuses))
	g, gctx := errgroup.WithContext(ctx)
	for i, status := range statuses {
		g.Go(func() error {
			prs, err := c.ListPullRequests(gctx, repo, status, criteria, top)
			results[i] = prs
			return err
		})
	}
	if err := g.Wait(); err != nil {
		p.log.ErrorContext(ctx, "list pull requests failed", "organization", org, "repo", repo, "error", err)
		return nil, err
	}

	at := p.coordinates(c, repo)
	prs := []domain.PullRequest{}
	for _, batch := range results {
		for i := range batch {
			pr, err := convertPullRequest(&batch[i], at)
			if err != nil {
				return nil, err
			}
			prs = append(prs, pr)
		}
	}
	if len(statuses) > 1 {
		sort.SliceStable(prs, func(i, j int) bool { return prs[i].UpdatedAt.After(prs[j].UpdatedAt) })
		if len(prs) > top {
			prs = prs[:top]
		}
	}
	if opts.Role == domain.RoleInvolved {
		prs = domain.FilterByRole(prs, opts.Role, me.user)
	}
	return prs, nil
}

func (p *Provider) GetPullRequest(ctx context.Context, owner, repo string, number int) (domain.PullRequest, error) {
	c, _, err := p.client(ctx, owner)
	if err != nil {
		return domain.PullRequest{}, err
	}
	pr, err := c.GetPullRequest(ctx, repo, number)
	if err != nil {
		return domain.PullRequest{}, err
	}
	return convertPullRequest(pr, p.coordinates(c, repo))
}

// GetPullRequestDiff renders headers for every changed file. The service
// exposes no hunks, so each file carries the placeholder line.
func (p *Provider) GetPullRequestDiff(ctx context.Context, owner, repo string, number int) (string, error) {
	files, err := p.ListFiles(ctx, owner, repo, number)
	if err != nil {
		return "", err
	}
	return common.JoinFileDiffs(diffSources(files))
}

func (p *Provider) ListFiles(ctx context.Context, owner, repo string, number int) ([]domain.FileChange, error) {
	c, _, err := p.client(ctx, owner)
	if err != nil {
		return nil, err
	}
	entries, err := c.ListChanges(ctx, repo, number)
	if err != nil {
		return nil, err
	}
	return convertChanges(entries), nil
}

func (p *Provider) ListCommits(ctx context.Context, owner, repo string, number int) ([]domain.Commit, error) {
	c, _, err := p.client(ctx, owner)
	if err != nil {
		return nil, err
	}
	refs, err := c.ListCommits(ctx, repo, number)
	if err != nil {
		return nil, err
	}
	commits := make([]domain.Commit, 0, len(refs))
	for _, r := range refs {
		commits = append(commits, convertCommit(r))
	}
	return commits, nil
}

func (p *Provider) threads(ctx context.Context, owner, repo string, number int) ([]domain.Comment, []domain.IssueComment, error) {
	c, _, err := p.client(ctx, owner)
	if err != nil {
		return nil, nil, err
	}
	threads, err := c.ListThreads(ctx, repo, number)
	if err != nil {
		return nil, nil, err
	}
	inline, general := splitThreads(threads)
	return inline, general, nil
}

func (p *Provider) ListComments(ctx context.Context, owner, repo string, number int) ([]domain.Comment, error) {
	inline, _, err := p.threads(ctx, owner, repo, number)
	return inline, err
}

func (p *Provider) ListIssueComments(ctx context.Context, owner, repo string, number int) ([]domain.IssueComment, error) {
	_, general, err := p.threads(ctx, owner, repo, number)
	return general, err
}

func (p *Provider) ListReviews(ctx context.Context, owner, repo string, number int) ([]domain.Review, error) {
	c, _, err := p.client(ctx, owner)
	if err != nil {
		return nil, err
	}
	pr, err := c.GetPullRequest(ctx, repo, number)
	if err != nil {
		return nil, err
	}
	return convertReviewers(pr.Reviewers), nil
}

func (p *Provider) ListCheckRuns(ctx context.Context, owner, repo string, number int) ([]domain.CheckRun, error) {
	c, _, err := p.client(ctx, owner)
	if err != nil {
		return nil, err
	}
	statuses, err := c.ListStatuses(ctx, repo, number)
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

func newThread(body string) git.GitPullRequestCommentThread {
	commentType := git.CommentTypeValues.Text
	status := git.CommentThreadStatusValues.Active
	parent := 0
	return git.GitPullRequestCommentThread{
		Comments: &[]git.Comment{{
			Content:         &body,
			CommentType:     &commentType,
			ParentCommentId: &parent,
		}},
		Status: &status,
	}
}

func (p *Provider) CreateComment(ctx context.Context, owner, repo string, number int, input domain.CommentInput) error {
	if (input.Path == "") != (input.Line <= 0) {
		return &domain.ConfigurationError{Field: "comment", Reason: "inline comments need both path and line"}
	}
	c, _, err := p.client(ctx, owner)
	if err != nil {
		return err
	}
	thread := newThread(input.Body)
	if input.IsInline() {
		path := repoPath(input.Path)
		start := &git.CommentPosition{Line: &input.Line, Offset: intPtr(1)}
		end := &git.CommentPosition{Line: &input.Line, Offset: intPtr(1)}
		thread.ThreadContext = &git.CommentThreadContext{FilePath: &path}
		if input.Side == domain.SideLeft {
			thread.ThreadContext.LeftFileStart, thread.ThreadContext.LeftFileEnd = start, end
		} else {
			thread.ThreadContext.RightFileStart, thread.ThreadContext.RightFileEnd = start, end
		}
		p.log.InfoContext(ctx, "creating inline comment", "number", number, "path", input.Path, "line", input.Line)
	}
	return c.CreateThread(ctx, repo, number, thread)
}

func intPtr(i int) *int {
	return &i
}

func (p *Provider) vote(ctx context.Context, owner, repo string, number, vote int, body string) error {
	c, org, err := p.client(ctx, owner)
	if err != nil {
		return err
	}
	me, err := p.viewerFor(ctx, org)
	if err != nil {
		return err
	}
	p.log.InfoContext(ctx, "casting vote", "number", number, "vote", vote)
	if err := c.SetVote(ctx, repo, number, me.id.String(), vote); err != nil {
		return err
	}
	if body == "" {
		return nil
	}
	return c.CreateThread(ctx, repo, number, newThread(body))
}

func (p *Provider) ApproveReview(ctx context.Context, owner, repo string, number int, body string) error {
	return p.vote(ctx, owner, repo, number, voteApproved, body)
}

func (p *Provider) RequestChanges(ctx context.Context, owner, repo string, number int, body string) error {
	if body == "" {
		body = defaultChangesRequestedBody
	}
	return p.vote(ctx, owner, repo, number, voteWaitingForAuthor, body)
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
		return p.CreateComment(ctx, owner, repo, number, domain.CommentInput{Body: input.Body})
	}
}

var mergeStrategies = map[domain.MergeMethod]git.GitPullRequestMergeStrategy{
	"":                       git.GitPullRequestMergeStrategyValues.NoFastForward,
	domain.MergeMethodMerge:  git.GitPullRequestMergeStrategyValues.NoFastForward,
	domain.MergeMethodSquash: git.GitPullRequestMergeStrategyValues.Squash,
	domain.MergeMethodRebase: git.GitPullRequestMergeStrategyValues.Rebase,
}

// MergePullRequest completes the pull request against its current source
// commit so a concurrent push fails the completion instead of merging it.
func (p *Provider) MergePullRequest(ctx context.Context, owner, repo string, number int, input domain.MergeInput) error {
	strategy, ok := mergeStrategies[input.Method]
	if !ok {
		return &domain.ConfigurationError{Field: "merge.method", Reason: "unknown merge method " + string(input.Method)}
	}
	c, _, err := p.client(ctx, owner)
	if err != nil {
		return err
	}
	pr, err := c.GetPullRequest(ctx, repo, number)
	if err != nil {
		return err
	}
	if pr.LastMergeSourceCommit == nil {
		return &domain.ProviderError{Provider: domain.ProviderAzureDevOps, Message: "pull request has no merge source commit"}
	}

	deleteBranch := input.DeleteBranch
	options := &git.GitPullRequestCompletionOptions{
		MergeStrategy:      &strategy,
		DeleteSourceBranch: &deleteBranch,
	}
	if input.CommitTitle != "" {
		options.MergeCommitMessage = &input.CommitTitle
	}
	completed := git.PullRequestStatusValues.Completed
	p.log.InfoContext(ctx, "completing pull request", "number", number, "strategy", strategy)
	updated, err := c.UpdatePullRequest(ctx, repo, number, git.GitPullRequest{
		Status:                &completed,
		LastMergeSourceCommit: &git.GitCommitRef{CommitId: pr.LastMergeSourceCommit.CommitId},
		CompletionOptions:     options,
	})
	if err != nil {
		return err
	}
	if updated != nil && updated.MergeStatus != nil && mergeStatuses[*updated.MergeStatus] == domain.MergeableNo {
		return &domain.ProviderError{Provider: domain.ProviderAzureDevOps, Message: "merge rejected: " + string(*updated.MergeStatus)}
	}
	return nil
}

var _ domain.Provider = (*Provider)(nil)
