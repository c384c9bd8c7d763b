package azuredevops

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/johanforsgren/prdeck/internal/domain"
	"github.com/johanforsgren/prdeck/internal/provider/common"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/git"
)

const (
	defaultBaseURL = "https://dev.azure.com"
	// maxPageSize caps $top; the service itself accepts unbounded values.
	maxPageSize = 1000
)

// GitClientFactory opens a git client for one organization URL.
type GitClientFactory func(ctx context.Context, orgURL, token string) (GitClient, error)

func newSDKGitClient(ctx context.Context, orgURL, token string) (GitClient, error) {
	conn := azuredevops.NewPatConnection(orgURL, token)
	client, err := git.NewClient(ctx, conn)
	if err != nil {
		return nil, mapError("connect", err)
	}
	return client, nil
}

type adoIdentity struct {
	ID                  string `json:"id" validate:"required,uuid"`
	ProviderDisplayName string `json:"providerDisplayName"`
	CustomDisplayName   string `json:"customDisplayName"`
}

type connectionData struct {
	AuthenticatedUser adoIdentity `json:"authenticatedUser" validate:"required"`
}

// Client talks to a single organization. Git operations go through the SDK;
// the identity probe uses the plain REST endpoint the SDK does not wrap.
type Client struct {
	organization string
	project      string
	git          GitClient
}

func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var wrapped *azuredevops.WrappedError
	if errors.As(err, &wrapped) {
		return wrappedToProviderError(*wrapped)
	}
	var value azuredevops.WrappedError
	if errors.As(err, &value) {
		return wrappedToProviderError(value)
	}
	return common.TransportError(domain.ProviderAzureDevOps, op, err)
}

func wrappedToProviderError(w azuredevops.WrappedError) error {
	status := 0
	if w.StatusCode != nil {
		status = *w.StatusCode
	}
	msg := common.GetString(w.Message)
	if msg == "" && status != 0 {
		msg = http.StatusText(status)
	}
	return &domain.ProviderError{Provider: domain.ProviderAzureDevOps, StatusCode: status, Message: msg}
}

func (c *Client) prArgs(repo string, number int) (*string, *string, *int) {
	return &repo, &c.project, &number
}

func (c *Client) ListPullRequests(ctx context.Context, repo string, status git.PullRequestStatus, criteria git.GitPullRequestSearchCriteria, top int) ([]git.GitPullRequest, error) {
	criteria.Status = &status
	prs, err := c.git.GetPullRequests(ctx, git.GetPullRequestsArgs{
		RepositoryId:   &repo,
		Project:        &c.project,
		SearchCriteria: &criteria,
		Top:            &top,
	})
	if err != nil {
		return nil, mapError("list pull requests", err)
	}
	if prs == nil {
		return []git.GitPullRequest{}, nil
	}
	return *prs, nil
}

func (c *Client) GetPullRequest(ctx context.Context, repo string, number int) (*git.GitPullRequest, error) {
	repoID, project, id := c.prArgs(repo, number)
	pr, err := c.git.GetPullRequest(ctx, git.GetPullRequestArgs{
		RepositoryId:  repoID,
		Project:       project,
		PullRequestId: id,
	})
	if err != nil {
		return nil, mapError("get pull request", err)
	}
	if pr == nil {
		return nil, schemaError("pullrequests", "empty response for pull request %d", number)
	}
	return pr, nil
}

func (c *Client) ListCommits(ctx context.Context, repo string, number int) ([]git.GitCommitRef, error) {
	repoID, project, id := c.prArgs(repo, number)
	resp, err := c.git.GetPullRequestCommits(ctx, git.GetPullRequestCommitsArgs{
		RepositoryId:  repoID,
		Project:       project,
		PullRequestId: id,
	})
	if err != nil {
		return nil, mapError("list commits", err)
	}
	if resp == nil {
		return []git.GitCommitRef{}, nil
	}
	return resp.Value, nil
}

// ListChanges returns the change entries of the latest iteration.
func (c *Client) ListChanges(ctx context.Context, repo string, number int) ([]git.GitPullRequestChange, error) {
	repoID, project, id := c.prArgs(repo, number)
	iterations, err := c.git.GetPullRequestIterations(ctx, git.GetPullRequestIterationsArgs{
		RepositoryId:  repoID,
		Project:       project,
		PullRequestId: id,
	})
	if err != nil {
		return nil, mapError("list iterations", err)
	}
	if iterations == nil || len(*iterations) == 0 {
		return []git.GitPullRequestChange{}, nil
	}
	last := (*iterations)[len(*iterations)-1]
	if last.Id == nil {
		return nil, schemaError("iterations", "iteration without id")
	}

	changes, err := c.git.GetPullRequestIterationChanges(ctx, git.GetPullRequestIterationChangesArgs{
		RepositoryId:  repoID,
		Project:       project,
		PullRequestId: id,
		IterationId:   last.Id,
	})
	if err != nil {
		return nil, mapError("list iteration changes", err)
	}
	if changes == nil || changes.ChangeEntries == nil {
		return []git.GitPullRequestChange{}, nil
	}
	return *changes.ChangeEntries, nil
}

func (c *Client) ListThreads(ctx context.Context, repo string, number int) ([]git.GitPullRequestCommentThread, error) {
	repoID, project, id := c.prArgs(repo, number)
	threads, err := c.git.GetThreads(ctx, git.GetThreadsArgs{
		RepositoryId:  repoID,
		Project:       project,
		PullRequestId: id,
	})
	if err != nil {
		return nil, mapError("list threads", err)
	}
	if threads == nil {
		return []git.GitPullRequestCommentThread{}, nil
	}
	return *threads, nil
}

func (c *Client) ListStatuses(ctx context.Context, repo string, number int) ([]git.GitPullRequestStatus, error) {
	repoID, project, id := c.prArgs(repo, number)
	statuses, err := c.git.GetPullRequestStatuses(ctx, git.GetPullRequestStatusesArgs{
		RepositoryId:  repoID,
		Project:       project,
		PullRequestId: id,
	})
	if err != nil {
		return nil, mapError("list statuses", err)
	}
	if statuses == nil {
		return []git.GitPullRequestStatus{}, nil
	}
	return *statuses, nil
}

func (c *Client) CreateThread(ctx context.Context, repo string, number int, thread git.GitPullRequestCommentThread) error {
	repoID, project, id := c.prArgs(repo, number)
	_, err := c.git.CreateThread(ctx, git.CreateThreadArgs{
		CommentThread: &thread,
		RepositoryId:  repoID,
		Project:       project,
		PullRequestId: id,
	})
	return mapError("create thread", err)
}

func (c *Client) SetVote(ctx context.Context, repo string, number int, reviewerID string, vote int) error {
	repoID, project, id := c.prArgs(repo, number)
	_, err := c.git.CreatePullRequestReviewer(ctx, git.CreatePullRequestReviewerArgs{
		Reviewer:      &git.IdentityRefWithVote{Vote: &vote},
		RepositoryId:  repoID,
		Project:       project,
		PullRequestId: id,
		ReviewerId:    &reviewerID,
	})
	return mapError("vote", err)
}

func (c *Client) UpdatePullRequest(ctx context.Context, repo string, number int, update git.GitPullRequest) (*git.GitPullRequest, error) {
	repoID, project, id := c.prArgs(repo, number)
	pr, err := c.git.UpdatePullRequest(ctx, git.UpdatePullRequestArgs{
		GitPullRequestToUpdate: &update,
		RepositoryId:           repoID,
		Project:                project,
		PullRequestId:          id,
	})
	if err != nil {
		return nil, mapError("update pull request", err)
	}
	return pr, nil
}

// newIdentityClient builds the REST client used for the connectionData probe.
func newIdentityClient(cfg common.Config, baseURL string) *common.RESTClient {
	token := cfg.Token
	return &common.RESTClient{
		Provider:   domain.ProviderAzureDevOps,
		BaseURL:    baseURL,
		HTTPClient: common.NewHTTPClient(cfg.HTTP),
		Authorize: func(req *http.Request) {
			req.SetBasicAuth("", token)
		},
		Logger: cfg.Log(),
	}
}

func fetchConnectionData(ctx context.Context, rest *common.RESTClient, org string) (*adoIdentity, error) {
	var data connectionData
	path := "/" + url.PathEscape(org) + "/_apis/connectionData"
	if _, err := rest.Get(ctx, path, nil, &data); err != nil {
		return nil, err
	}
	return &data.AuthenticatedUser, nil
}

func normalizeBaseURL(raw string) (string, error) {
	if raw == "" {
		return defaultBaseURL, nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", &domain.ConfigurationError{Field: "base_url", Reason: "invalid URL " + raw}
	}
	return strings.TrimSuffix(raw, "/"), nil
}
