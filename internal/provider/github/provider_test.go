package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strconv"
	"testing"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/johanforsgren/prdeck/internal/domain"
)

func newTestProvider(t *testing.T, mux *http.ServeMux) *Provider {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	gh := github.NewClient(nil)
	base, err := url.Parse(server.URL + "/")
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	gh.BaseURL = base

	return &Provider{
		client: &Client{client: gh},
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode: %v", err)
	}
}

var userIDs = map[string]int{"alice": 5, "bob": 6, "carol": 7}

func prJSON(number int, login string, extra map[string]any) map[string]any {
	id, ok := userIDs[login]
	if !ok {
		panic("no fixture id for user " + login)
	}
	pr := map[string]any{
		"id":         number * 1000,
		"number":     number,
		"title":      fmt.Sprintf("PR %d", number),
		"state":      "open",
		"user":       map[string]any{"login": login, "id": id, "type": "User"},
		"head":       map[string]any{"ref": "feature", "sha": "abc123"},
		"base":       map[string]any{"ref": "main", "sha": "def456"},
		"created_at": "2024-01-02T03:04:05Z",
		"updated_at": "2024-01-03T03:04:05Z",
		"html_url":   fmt.Sprintf("https://github.com/o/r/pull/%d", number),
	}
	for k, v := range extra {
		pr[k] = v
	}
	return pr
}

func TestListPullRequestsClampsPageSize(t *testing.T) {
	mux := http.NewServeMux()
	var gotPerPage, gotState string
	mux.HandleFunc("/repos/o/r/pulls", func(w http.ResponseWriter, r *http.Request) {
		gotPerPage = r.URL.Query().Get("per_page")
		gotState = r.URL.Query().Get("state")
		writeJSON(t, w, []any{prJSON(1, "alice", nil)})
	})
	p := newTestProvider(t, mux)

	prs, err := p.ListPullRequests(context.Background(), "o", "r", domain.ListOptions{Limit: 200})
	if err != nil {
		t.Fatalf("ListPullRequests() error = %v", err)
	}
	if gotPerPage != "100" {
		t.Errorf("per_page = %q, want 100", gotPerPage)
	}
	if gotState != "open" {
		t.Errorf("state = %q, want open", gotState)
	}
	if len(prs) != 1 {
		t.Fatalf("got %d pull requests, want 1", len(prs))
	}
	if prs[0].Repository.FullName() != "o/r" {
		t.Errorf("repository = %q, want o/r", prs[0].Repository.FullName())
	}
}

func TestListPullRequestsMergedIsClosed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/pulls", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []any{
			prJSON(1, "alice", map[string]any{"state": "closed", "merged_at": "2024-02-01T00:00:00Z", "closed_at": "2024-02-01T00:00:00Z"}),
			prJSON(2, "alice", map[string]any{"state": "closed", "closed_at": "2024-02-02T00:00:00Z"}),
		})
	})
	p := newTestProvider(t, mux)

	prs, err := p.ListPullRequests(context.Background(), "o", "r", domain.ListOptions{State: domain.StateFilterAll})
	if err != nil {
		t.Fatalf("ListPullRequests() error = %v", err)
	}
	if len(prs) != 2 {
		t.Fatalf("got %d pull requests, want 2", len(prs))
	}

	if !prs[0].Merged || prs[0].State != domain.PRStateClosed {
		t.Errorf("pr 1: merged=%v state=%s, want merged closed", prs[0].Merged, prs[0].State)
	}
	if prs[0].MergedAt == nil {
		t.Error("pr 1: MergedAt is nil")
	}
	if !prs[1].IsClosedUnmerged() {
		t.Errorf("pr 2: expected closed and unmerged, got merged=%v state=%s", prs[1].Merged, prs[1].State)
	}
}

func TestListPullRequestsRoleFilter(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"login": "alice", "id": 5, "type": "User"})
	})
	mux.HandleFunc("/repos/o/r/pulls", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []any{
			prJSON(1, "alice", nil),
			prJSON(2, "bob", map[string]any{
				"requested_reviewers": []any{map[string]any{"login": "alice", "id": 5}},
			}),
			prJSON(3, "carol", nil),
		})
	})
	p := newTestProvider(t, mux)

	tests := []struct {
		role domain.Role
		want []int
	}{
		{role: domain.RoleAny, want: []int{1, 2, 3}},
		{role: domain.RoleAuthor, want: []int{1}},
		{role: domain.RoleReviewer, want: []int{2}},
		{role: domain.RoleInvolved, want: []int{1, 2}},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			prs, err := p.ListPullRequests(context.Background(), "o", "r", domain.ListOptions{Role: tt.role})
			if err != nil {
				t.Fatalf("ListPullRequests() error = %v", err)
			}
			got := make([]int, 0, len(prs))
			for _, pr := range prs {
				got = append(got, pr.Number)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("numbers = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetPullRequestSchemaError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/pulls/7", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"title": "no number", "state": "open"})
	})
	p := newTestProvider(t, mux)

	_, err := p.GetPullRequest(context.Background(), "o", "r", 7)
	var schemaErr *domain.SchemaValidationError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaValidationError, got %T: %v", err, err)
	}
}

func TestGetPullRequestUnknownState(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/pulls/7", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, prJSON(7, "alice", map[string]any{"state": "reopened"}))
	})
	p := newTestProvider(t, mux)

	_, err := p.GetPullRequest(context.Background(), "o", "r", 7)
	var schemaErr *domain.SchemaValidationError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaValidationError, got %T: %v", err, err)
	}
}

func TestErrorMapping(t *testing.T) {
	reset := strconv.FormatInt(time.Now().Add(time.Minute).Unix(), 10)

	tests := []struct {
		name       string
		status     int
		header     map[string]string
		body       string
		wantStatus int
		wantRetry  bool
	}{
		{
			name:       "not found",
			status:     http.StatusNotFound,
			body:       `{"message":"Not Found"}`,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "server error",
			status:     http.StatusBadGateway,
			body:       `{"message":"Bad Gateway"}`,
			wantStatus: http.StatusBadGateway,
		},
		{
			name:   "primary rate limit",
			status: http.StatusForbidden,
			header: map[string]string{
				"X-RateLimit-Limit":     "60",
				"X-RateLimit-Remaining": "0",
				"X-RateLimit-Reset":     reset,
			},
			body:       `{"message":"API rate limit exceeded for user ID 1."}`,
			wantStatus: http.StatusTooManyRequests,
			wantRetry:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/repos/o/r/pulls/1", func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			p := newTestProvider(t, mux)

			_, err := p.GetPullRequest(context.Background(), "o", "r", 1)
			var provErr *domain.ProviderError
			if !errors.As(err, &provErr) {
				t.Fatalf("expected ProviderError, got %T: %v", err, err)
			}
			if provErr.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", provErr.StatusCode, tt.wantStatus)
			}
			if tt.wantRetry && provErr.RetryAfter <= 0 {
				t.Errorf("RetryAfter = %v, want positive", provErr.RetryAfter)
			}
		})
	}
}

func TestNetworkErrorMapping(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	gh := github.NewClient(nil)
	gh.BaseURL, _ = url.Parse(server.URL + "/")
	p := &Provider{client: &Client{client: gh}, log: slog.New(slog.NewTextHandler(io.Discard, nil))}

	_, err := p.GetPullRequest(context.Background(), "o", "r", 1)
	var netErr *domain.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %T: %v", err, err)
	}
}

func TestConvertPullRequestIsPure(t *testing.T) {
	merged := true
	ghPR := &github.PullRequest{
		ID:     github.Int64(10),
		Number: github.Int(3),
		State:  github.String("closed"),
		Merged: &merged,
		Title:  github.String("title"),
		User:   &github.User{Login: github.String("renovate[bot]"), ID: github.Int64(9)},
		Labels: []*github.Label{{Name: github.String("deps")}},
	}

	first, err := convertPullRequest(ghPR, "o", "r")
	if err != nil {
		t.Fatalf("convertPullRequest() error = %v", err)
	}
	second, err := convertPullRequest(ghPR, "o", "r")
	if err != nil {
		t.Fatalf("convertPullRequest() error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("mapping is not deterministic:\n%+v\n%+v", first, second)
	}
	if first.Author.Kind != domain.UserKindBot {
		t.Errorf("Author.Kind = %s, want bot", first.Author.Kind)
	}
	if first.Mergeable != domain.MergeableUnknown {
		t.Errorf("Mergeable = %s, want unknown", first.Mergeable)
	}
	if !reflect.DeepEqual(first.Labels, []string{"deps"}) {
		t.Errorf("Labels = %v", first.Labels)
	}
}

func TestListComments(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/pulls/1/comments", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []any{
			map[string]any{
				"id":         11,
				"body":       "first",
				"path":       "main.go",
				"line":       12,
				"side":       "RIGHT",
				"user":       map[string]any{"login": "alice", "id": 5},
				"created_at": "2024-01-02T03:04:05Z",
			},
			map[string]any{
				"id":             12,
				"body":           "reply",
				"path":           "main.go",
				"original_line":  4,
				"side":           "LEFT",
				"in_reply_to_id": 11,
				"user":           map[string]any{"login": "bob", "id": 6},
			},
		})
	})
	p := newTestProvider(t, mux)

	comments, err := p.ListComments(context.Background(), "o", "r", 1)
	if err != nil {
		t.Fatalf("ListComments() error = %v", err)
	}
	if len(comments) != 2 {
		t.Fatalf("got %d comments, want 2", len(comments))
	}

	want := &domain.Anchor{Path: "main.go", Line: 12, Side: domain.SideRight}
	if !reflect.DeepEqual(comments[0].Anchor, want) {
		t.Errorf("anchor = %+v, want %+v", comments[0].Anchor, want)
	}
	if comments[1].InReplyToID != "11" {
		t.Errorf("InReplyToID = %q, want 11", comments[1].InReplyToID)
	}
	if comments[1].Anchor == nil || comments[1].Anchor.Line != 4 || comments[1].Anchor.Side != domain.SideLeft {
		t.Errorf("reply anchor = %+v", comments[1].Anchor)
	}
}

func TestListReviewsDropsPending(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/pulls/1/reviews", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []any{
			map[string]any{"id": 1, "state": "APPROVED", "body": "", "user": map[string]any{"login": "alice"}},
			map[string]any{"id": 2, "state": "PENDING", "user": map[string]any{"login": "bob"}},
			map[string]any{"id": 3, "state": "CHANGES_REQUESTED", "body": "fix", "submitted_at": "2024-01-02T03:04:05Z"},
		})
	})
	p := newTestProvider(t, mux)

	reviews, err := p.ListReviews(context.Background(), "o", "r", 1)
	if err != nil {
		t.Fatalf("ListReviews() error = %v", err)
	}
	if len(reviews) != 2 {
		t.Fatalf("got %d reviews, want 2", len(reviews))
	}
	if reviews[0].Body != nil {
		t.Errorf("empty body should be nil, got %q", *reviews[0].Body)
	}
	if reviews[1].State != domain.ReviewStateChangesRequested || reviews[1].Body == nil || *reviews[1].Body != "fix" {
		t.Errorf("unexpected review %+v", reviews[1])
	}
}

func TestListCheckRuns(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/pulls/1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, prJSON(1, "alice", nil))
	})
	mux.HandleFunc("/repos/o/r/commits/abc123/check-runs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"total_count": 3,
			"check_runs": []any{
				map[string]any{"id": 1, "name": "build", "status": "completed", "conclusion": "success"},
				map[string]any{"id": 2, "name": "lint", "status": "in_progress"},
				map[string]any{"id": 3, "name": "deploy", "status": "completed", "conclusion": "action_required"},
			},
		})
	})
	p := newTestProvider(t, mux)

	runs, err := p.ListCheckRuns(context.Background(), "o", "r", 1)
	if err != nil {
		t.Fatalf("ListCheckRuns() error = %v", err)
	}
	want := []domain.CheckRun{
		{ID: "1", Name: "build", Status: domain.CheckStatusCompleted, Conclusion: domain.CheckConclusionSuccess},
		{ID: "2", Name: "lint", Status: domain.CheckStatusInProgress},
		{ID: "3", Name: "deploy", Status: domain.CheckStatusCompleted, Conclusion: domain.CheckConclusionFailure},
	}
	if !reflect.DeepEqual(runs, want) {
		t.Errorf("runs = %+v, want %+v", runs, want)
	}
}

func TestCreateComment(t *testing.T) {
	t.Run("inline comment uses head sha", func(t *testing.T) {
		mux := http.NewServeMux()
		var got map[string]any
		mux.HandleFunc("/repos/o/r/pulls/1", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, prJSON(1, "alice", nil))
		})
		mux.HandleFunc("/repos/o/r/pulls/1/comments", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("method = %s, want POST", r.Method)
			}
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				t.Errorf("decode: %v", err)
			}
			w.WriteHeader(http.StatusCreated)
			writeJSON(t, w, map[string]any{"id": 1})
		})
		p := newTestProvider(t, mux)

		err := p.CreateComment(context.Background(), "o", "r", 1, domain.CommentInput{Body: "nit", Path: "a.go", Line: 3})
		if err != nil {
			t.Fatalf("CreateComment() error = %v", err)
		}
		if got["commit_id"] != "abc123" || got["side"] != "RIGHT" || got["path"] != "a.go" {
			t.Errorf("unexpected payload %v", got)
		}
	})

	t.Run("general comment goes to the issue", func(t *testing.T) {
		mux := http.NewServeMux()
		called := false
		mux.HandleFunc("/repos/o/r/issues/1/comments", func(w http.ResponseWriter, r *http.Request) {
			called = true
			w.WriteHeader(http.StatusCreated)
			writeJSON(t, w, map[string]any{"id": 1})
		})
		p := newTestProvider(t, mux)

		if err := p.CreateComment(context.Background(), "o", "r", 1, domain.CommentInput{Body: "lgtm"}); err != nil {
			t.Fatalf("CreateComment() error = %v", err)
		}
		if !called {
			t.Error("issue comment endpoint was not called")
		}
	})

	t.Run("path without line is rejected", func(t *testing.T) {
		p := newTestProvider(t, http.NewServeMux())
		err := p.CreateComment(context.Background(), "o", "r", 1, domain.CommentInput{Body: "x", Path: "a.go"})
		var cfgErr *domain.ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("expected ConfigurationError, got %T: %v", err, err)
		}
	})
}

func TestApproveReview(t *testing.T) {
	mux := http.NewServeMux()
	var got map[string]any
	mux.HandleFunc("/repos/o/r/pulls/1/reviews", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		writeJSON(t, w, map[string]any{"id": 1, "state": "APPROVED"})
	})
	p := newTestProvider(t, mux)

	if err := p.ApproveReview(context.Background(), "o", "r", 1, ""); err != nil {
		t.Fatalf("ApproveReview() error = %v", err)
	}
	if got["event"] != "APPROVE" {
		t.Errorf("event = %v, want APPROVE", got["event"])
	}
	if _, ok := got["body"]; ok {
		t.Errorf("empty body should be omitted, payload %v", got)
	}
}

func TestMergePullRequestNotMerged(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/pulls/1/merge", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"merged": false, "message": "Head branch was modified"})
	})
	p := newTestProvider(t, mux)

	err := p.MergePullRequest(context.Background(), "o", "r", 1, domain.MergeInput{Method: domain.MergeMethodSquash})
	var provErr *domain.ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %T: %v", err, err)
	}
	if provErr.Message != "Head branch was modified" {
		t.Errorf("Message = %q", provErr.Message)
	}
}

func TestValidateToken(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   bool
	}{
		{name: "valid token", status: http.StatusOK, want: true},
		{name: "bad credentials", status: http.StatusUnauthorized, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
				if tt.status != http.StatusOK {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(tt.status)
					_, _ = io.WriteString(w, `{"message":"Bad credentials"}`)
					return
				}
				writeJSON(t, w, map[string]any{"login": "alice", "id": 5})
			})
			p := newTestProvider(t, mux)

			if got := p.ValidateToken(context.Background()); got != tt.want {
				t.Errorf("ValidateToken() = %v, want %v", got, tt.want)
			}
		})
	}
}
