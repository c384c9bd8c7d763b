package bitbucket

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/johanforsgren/prdeck/internal/domain"
	"github.com/johanforsgren/prdeck/internal/provider/common"
)

const (
	defaultBaseURL = "https://api.bitbucket.org/2.0"
	maxPageSize    = 50
	// maxPages bounds how many next links a single listing follows.
	maxPages = 10
)

type bbLink struct {
	Href string `json:"href"`
}

type bbLinks struct {
	HTML   bbLink `json:"html"`
	Avatar bbLink `json:"avatar"`
}

type bbUser struct {
	UUID        string  `json:"uuid" validate:"required"`
	AccountID   string  `json:"account_id"`
	Nickname    string  `json:"nickname"`
	DisplayName string  `json:"display_name"`
	Type        string  `json:"type"`
	Links       bbLinks `json:"links"`
}

type bbBranch struct {
	Name string `json:"name"`
}

type bbCommitRef struct {
	Hash string `json:"hash"`
}

type bbEndpoint struct {
	Branch bbBranch     `json:"branch"`
	Commit *bbCommitRef `json:"commit"`
}

type bbParticipant struct {
	User           *bbUser    `json:"user"`
	Role           string     `json:"role"`
	Approved       bool       `json:"approved"`
	State          *string    `json:"state"`
	ParticipatedOn *time.Time `json:"participated_on"`
}

type bbPullRequest struct {
	ID           int             `json:"id" validate:"required"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	State        string          `json:"state" validate:"required,oneof=OPEN MERGED DECLINED SUPERSEDED"`
	Draft        bool            `json:"draft"`
	Author       *bbUser         `json:"author"`
	Source       bbEndpoint      `json:"source"`
	Destination  bbEndpoint      `json:"destination"`
	CreatedOn    time.Time       `json:"created_on"`
	UpdatedOn    time.Time       `json:"updated_on"`
	Reviewers    []bbUser        `json:"reviewers"`
	Participants []bbParticipant `json:"participants"`
	MergeCommit  *bbCommitRef    `json:"merge_commit"`
	Links        bbLinks         `json:"links"`
}

type bbPath struct {
	Path string `json:"path"`
}

type bbDiffStat struct {
	Status       string  `json:"status" validate:"required"`
	LinesAdded   int     `json:"lines_added"`
	LinesRemoved int     `json:"lines_removed"`
	Old          *bbPath `json:"old"`
	New          *bbPath `json:"new"`
}

type bbCommitAuthor struct {
	Raw  string  `json:"raw"`
	User *bbUser `json:"user"`
}

type bbCommit struct {
	Hash    string         `json:"hash" validate:"required"`
	Message string         `json:"message"`
	Date    time.Time      `json:"date"`
	Author  bbCommitAuthor `json:"author"`
	Links   bbLinks        `json:"links"`
}

type bbContent struct {
	Raw string `json:"raw"`
}

type bbInline struct {
	Path string `json:"path"`
	From *int   `json:"from,omitempty"`
	To   *int   `json:"to,omitempty"`
}

type bbComment struct {
	ID        int64      `json:"id" validate:"required"`
	Content   bbContent  `json:"content"`
	User      *bbUser    `json:"user"`
	CreatedOn time.Time  `json:"created_on"`
	UpdatedOn time.Time  `json:"updated_on"`
	Deleted   bool       `json:"deleted"`
	Inline    *bbInline  `json:"inline"`
	Parent    *bbComment `json:"parent"`
}

type bbStatus struct {
	Key   string `json:"key" validate:"required"`
	Name  string `json:"name"`
	State string `json:"state" validate:"required"`
	URL   string `json:"url"`
}

type page[T any] struct {
	Values []T    `json:"values" validate:"dive"`
	Next   string `json:"next"`
}

// Client wraps the Bitbucket Cloud 2.0 REST API.
type Client struct {
	rest *common.RESTClient
}

func NewClient(cfg common.Config) (*Client, error) {
	if err := cfg.RequireToken(); err != nil {
		return nil, err
	}
	if cfg.Username == "" {
		return nil, &domain.ConfigurationError{Field: "username", Reason: "Bitbucket app passwords need a username"}
	}
	baseURL := defaultBaseURL
	if cfg.BaseURL != "" {
		baseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	username, password := cfg.Username, cfg.Token
	return &Client{rest: &common.RESTClient{
		Provider:   domain.ProviderBitbucket,
		BaseURL:    baseURL,
		HTTPClient: common.NewHTTPClient(cfg.HTTP),
		Authorize: func(req *http.Request) {
			req.SetBasicAuth(username, password)
		},
		Logger: cfg.Log(),
	}}, nil
}

func prPath(workspace, repo string, id int) string {
	return fmt.Sprintf("/repositories/%s/%s/pullrequests/%d", url.PathEscape(workspace), url.PathEscape(repo), id)
}

// nextPage turns an absolute next link back into a path and query the REST
// client can issue against its base URL.
func (c *Client) nextPage(next string) (string, url.Values, bool) {
	if next == "" {
		return "", nil, false
	}
	u, err := url.Parse(next)
	if err != nil {
		return "", nil, false
	}
	base, err := url.Parse(c.rest.BaseURL)
	if err != nil || u.Host != base.Host || !strings.HasPrefix(u.Path, base.Path) {
		return "", nil, false
	}
	return strings.TrimPrefix(u.Path, base.Path), u.Query(), true
}

// collect follows next links until limit values were read or pages run out.
func collect[T any](ctx context.Context, c *Client, path string, query url.Values, limit int) ([]T, error) {
	var out []T
	for i := 0; i < maxPages; i++ {
		var pg page[T]
		if _, err := c.rest.Get(ctx, path, query, &pg); err != nil {
			return nil, err
		}
		out = append(out, pg.Values...)
		if limit > 0 && len(out) >= limit {
			return out[:limit], nil
		}
		var ok bool
		if path, query, ok = c.nextPage(pg.Next); !ok {
			break
		}
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

func (c *Client) CurrentUser(ctx context.Context) (*bbUser, error) {
	var user bbUser
	if _, err := c.rest.Get(ctx, "/user", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) ListPullRequests(ctx context.Context, workspace, repo string, states []string, limit int) ([]bbPullRequest, error) {
	query := url.Values{"pagelen": {strconv.Itoa(limit)}, "state": states}
	path := fmt.Sprintf("/repositories/%s/%s/pullrequests", url.PathEscape(workspace), url.PathEscape(repo))
	return collect[bbPullRequest](ctx, c, path, query, limit)
}

func (c *Client) GetPullRequest(ctx context.Context, workspace, repo string, id int) (*bbPullRequest, error) {
	var pr bbPullRequest
	if _, err := c.rest.Get(ctx, prPath(workspace, repo, id), nil, &pr); err != nil {
		return nil, err
	}
	return &pr, nil
}

func (c *Client) GetDiff(ctx context.Context, workspace, repo string, id int) (string, error) {
	return c.rest.GetText(ctx, prPath(workspace, repo, id)+"/diff", nil)
}

func (c *Client) ListDiffStat(ctx context.Context, workspace, repo string, id int) ([]bbDiffStat, error) {
	query := url.Values{"pagelen": {"500"}}
	return collect[bbDiffStat](ctx, c, prPath(workspace, repo, id)+"/diffstat", query, 0)
}

func (c *Client) ListCommits(ctx context.Context, workspace, repo string, id int) ([]bbCommit, error) {
	query := url.Values{"pagelen": {strconv.Itoa(maxPageSize)}}
	return collect[bbCommit](ctx, c, prPath(workspace, repo, id)+"/commits", query, 0)
}

func (c *Client) ListComments(ctx context.Context, workspace, repo string, id int) ([]bbComment, error) {
	query := url.Values{"pagelen": {"100"}}
	return collect[bbComment](ctx, c, prPath(workspace, repo, id)+"/comments", query, 0)
}

func (c *Client) ListStatuses(ctx context.Context, workspace, repo string, id int) ([]bbStatus, error) {
	query := url.Values{"pagelen": {strconv.Itoa(maxPageSize)}}
	return collect[bbStatus](ctx, c, prPath(workspace, repo, id)+"/statuses", query, 0)
}

type newComment struct {
	Content bbContent `json:"content"`
	Inline  *bbInline `json:"inline,omitempty"`
}

func (c *Client) CreateComment(ctx context.Context, workspace, repo string, id int, comment newComment) error {
	return c.rest.Send(ctx, http.MethodPost, prPath(workspace, repo, id)+"/comments", comment, nil)
}

func (c *Client) Approve(ctx context.Context, workspace, repo string, id int) error {
	return c.rest.Send(ctx, http.MethodPost, prPath(workspace, repo, id)+"/approve", nil, nil)
}

func (c *Client) RequestChanges(ctx context.Context, workspace, repo string, id int) error {
	return c.rest.Send(ctx, http.MethodPost, prPath(workspace, repo, id)+"/request-changes", nil, nil)
}

type mergeRequest struct {
	MergeStrategy     string `json:"merge_strategy,omitempty"`
	Message           string `json:"message,omitempty"`
	CloseSourceBranch bool   `json:"close_source_branch"`
}

func (c *Client) Merge(ctx context.Context, workspace, repo string, id int, req mergeRequest) error {
	return c.rest.Send(ctx, http.MethodPost, prPath(workspace, repo, id)+"/merge", req, nil)
}
