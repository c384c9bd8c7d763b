package gitlab

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
	defaultBaseURL = "https://gitlab.com/api/v4"
	maxPageSize    = 100
)

type glUser struct {
	ID        int64  `json:"id" validate:"required"`
	Username  string `json:"username" validate:"required"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
	WebURL    string `json:"web_url"`
	Bot       bool   `json:"bot"`
}

type glDiffRefs struct {
	BaseSHA  string `json:"base_sha"`
	HeadSHA  string `json:"head_sha"`
	StartSHA string `json:"start_sha"`
}

type glMergeRequest struct {
	ID                  int64       `json:"id" validate:"required"`
	IID                 int         `json:"iid" validate:"required"`
	Title               string      `json:"title"`
	Description         string      `json:"description"`
	State               string      `json:"state" validate:"required,oneof=opened closed merged locked"`
	Draft               bool        `json:"draft"`
	WorkInProgress      bool        `json:"work_in_progress"`
	Author              glUser      `json:"author"`
	SourceBranch        string      `json:"source_branch"`
	TargetBranch        string      `json:"target_branch"`
	SHA                 string      `json:"sha"`
	DiffRefs            *glDiffRefs `json:"diff_refs"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
	MergedAt            *time.Time  `json:"merged_at"`
	ClosedAt            *time.Time  `json:"closed_at"`
	Labels              []string    `json:"labels"`
	Reviewers           []glUser    `json:"reviewers"`
	Assignees           []glUser    `json:"assignees"`
	MergeStatus         string      `json:"merge_status"`
	DetailedMergeStatus string      `json:"detailed_merge_status"`
	WebURL              string      `json:"web_url"`
}

type glChange struct {
	OldPath     string `json:"old_path"`
	NewPath     string `json:"new_path" validate:"required"`
	NewFile     bool   `json:"new_file"`
	RenamedFile bool   `json:"renamed_file"`
	DeletedFile bool   `json:"deleted_file"`
	Diff        string `json:"diff"`
}

type glChanges struct {
	Changes []glChange `json:"changes" validate:"dive"`
}

type glCommit struct {
	ID          string    `json:"id" validate:"required"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	AuthorName  string    `json:"author_name"`
	AuthorEmail string    `json:"author_email"`
	AuthoredAt  time.Time `json:"authored_date"`
	WebURL      string    `json:"web_url"`
}

type glPosition struct {
	PositionType string `json:"position_type"`
	BaseSHA      string `json:"base_sha"`
	StartSHA     string `json:"start_sha"`
	HeadSHA      string `json:"head_sha"`
	OldPath      string `json:"old_path"`
	NewPath      string `json:"new_path"`
	OldLine      *int   `json:"old_line"`
	NewLine      *int   `json:"new_line"`
}

type glNote struct {
	ID        int64       `json:"id" validate:"required"`
	Type      string      `json:"type"`
	Body      string      `json:"body"`
	Author    glUser      `json:"author"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	System    bool        `json:"system"`
	Position  *glPosition `json:"position"`
}

type glDiscussion struct {
	ID             string   `json:"id" validate:"required"`
	IndividualNote bool     `json:"individual_note"`
	Notes          []glNote `json:"notes" validate:"dive"`
}

type glApprovals struct {
	ApprovedBy []struct {
		User glUser `json:"user"`
	} `json:"approved_by" validate:"dive"`
}

type glPipeline struct {
	ID     int64  `json:"id" validate:"required"`
	SHA    string `json:"sha"`
	Ref    string `json:"ref"`
	Status string `json:"status" validate:"required"`
	Source string `json:"source"`
	WebURL string `json:"web_url"`
}

// Client wraps the GitLab v4 REST API.
type Client struct {
	rest *common.RESTClient
}

func NewClient(cfg common.Config) (*Client, error) {
	if err := cfg.RequireToken(); err != nil {
		return nil, err
	}
	baseURL, err := apiBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	token := cfg.Token
	return &Client{rest: &common.RESTClient{
		Provider:   domain.ProviderGitLab,
		BaseURL:    baseURL,
		HTTPClient: common.NewHTTPClient(cfg.HTTP),
		Authorize: func(req *http.Request) {
			req.Header.Set("PRIVATE-TOKEN", token)
		},
		Logger: cfg.Log(),
	}}, nil
}

// apiBaseURL accepts either an instance root or its /api/v4 endpoint.
func apiBaseURL(raw string) (string, error) {
	if raw == "" {
		return defaultBaseURL, nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", &domain.ConfigurationError{Field: "base_url", Reason: fmt.Sprintf("invalid GitLab URL %q", raw)}
	}
	base := strings.TrimSuffix(raw, "/")
	if !strings.HasSuffix(base, "/api/v4") {
		base += "/api/v4"
	}
	return base, nil
}

func projectPath(owner, repo string) string {
	return "/projects/" + url.PathEscape(owner+"/"+repo)
}

func mrPath(owner, repo string, iid int) string {
	return fmt.Sprintf("%s/merge_requests/%d", projectPath(owner, repo), iid)
}

func (c *Client) CurrentUser(ctx context.Context) (*glUser, error) {
	var user glUser
	if _, err := c.rest.Get(ctx, "/user", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// MergeRequestQuery carries the list filters GitLab understands natively.
type MergeRequestQuery struct {
	State      string
	Limit      int
	AuthorID   int64
	ReviewerID int64
}

func (c *Client) ListMergeRequests(ctx context.Context, owner, repo string, q MergeRequestQuery) ([]glMergeRequest, error) {
	query := url.Values{}
	query.Set("state", q.State)
	query.Set("per_page", strconv.Itoa(q.Limit))
	query.Set("order_by", "updated_at")
	query.Set("sort", "desc")
	if q.AuthorID != 0 {
		query.Set("author_id", strconv.FormatInt(q.AuthorID, 10))
	}
	if q.ReviewerID != 0 {
		query.Set("reviewer_id", strconv.FormatInt(q.ReviewerID, 10))
	}

	var mrs []glMergeRequest
	if _, err := c.rest.Get(ctx, projectPath(owner, repo)+"/merge_requests", query, &mrs); err != nil {
		return nil, err
	}
	return mrs, nil
}

func (c *Client) GetMergeRequest(ctx context.Context, owner, repo string, iid int) (*glMergeRequest, error) {
	var mr glMergeRequest
	if _, err := c.rest.Get(ctx, mrPath(owner, repo, iid), nil, &mr); err != nil {
		return nil, err
	}
	return &mr, nil
}

func (c *Client) ListChanges(ctx context.Context, owner, repo string, iid int) ([]glChange, error) {
	var changes glChanges
	if _, err := c.rest.Get(ctx, mrPath(owner, repo, iid)+"/changes", nil, &changes); err != nil {
		return nil, err
	}
	return changes.Changes, nil
}

func (c *Client) ListCommits(ctx context.Context, owner, repo string, iid int) ([]glCommit, error) {
	var commits []glCommit
	query := url.Values{"per_page": {strconv.Itoa(maxPageSize)}}
	if _, err := c.rest.Get(ctx, mrPath(owner, repo, iid)+"/commits", query, &commits); err != nil {
		return nil, err
	}
	return commits, nil
}

func (c *Client) ListDiscussions(ctx context.Context, owner, repo string, iid int) ([]glDiscussion, error) {
	var discussions []glDiscussion
	query := url.Values{"per_page": {strconv.Itoa(maxPageSize)}}
	if _, err := c.rest.Get(ctx, mrPath(owner, repo, iid)+"/discussions", query, &discussions); err != nil {
		return nil, err
	}
	return discussions, nil
}

func (c *Client) GetApprovals(ctx context.Context, owner, repo string, iid int) (*glApprovals, error) {
	var approvals glApprovals
	if _, err := c.rest.Get(ctx, mrPath(owner, repo, iid)+"/approvals", nil, &approvals); err != nil {
		return nil, err
	}
	return &approvals, nil
}

func (c *Client) ListPipelines(ctx context.Context, owner, repo string, iid int) ([]glPipeline, error) {
	var pipelines []glPipeline
	if _, err := c.rest.Get(ctx, mrPath(owner, repo, iid)+"/pipelines", nil, &pipelines); err != nil {
		return nil, err
	}
	return pipelines, nil
}

func (c *Client) CreateNote(ctx context.Context, owner, repo string, iid int, body string) error {
	payload := map[string]string{"body": body}
	return c.rest.Send(ctx, http.MethodPost, mrPath(owner, repo, iid)+"/notes", payload, nil)
}

func (c *Client) CreateDiscussion(ctx context.Context, owner, repo string, iid int, body string, position glPosition) error {
	payload := struct {
		Body     string     `json:"body"`
		Position glPosition `json:"position"`
	}{Body: body, Position: position}
	return c.rest.Send(ctx, http.MethodPost, mrPath(owner, repo, iid)+"/discussions", payload, nil)
}

func (c *Client) Approve(ctx context.Context, owner, repo string, iid int) error {
	return c.rest.Send(ctx, http.MethodPost, mrPath(owner, repo, iid)+"/approve", struct{}{}, nil)
}

func (c *Client) Unapprove(ctx context.Context, owner, repo string, iid int) error {
	return c.rest.Send(ctx, http.MethodPost, mrPath(owner, repo, iid)+"/unapprove", struct{}{}, nil)
}

type mergeRequestMerge struct {
	Squash                   bool   `json:"squash,omitempty"`
	MergeCommitMessage       string `json:"merge_commit_message,omitempty"`
	SquashCommitMessage      string `json:"squash_commit_message,omitempty"`
	ShouldRemoveSourceBranch bool   `json:"should_remove_source_branch,omitempty"`
}

func (c *Client) Merge(ctx context.Context, owner, repo string, iid int, opts mergeRequestMerge) error {
	return c.rest.Send(ctx, http.MethodPut, mrPath(owner, repo, iid)+"/merge", opts, nil)
}
