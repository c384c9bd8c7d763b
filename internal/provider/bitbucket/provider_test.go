package bitbucket

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/johanforsgren/prdeck/internal/domain"
	"github.com/johanforsgren/prdeck/internal/provider/common"
)

const prsPath = "/repositories/ws/app/pullrequests"

type fakeBitbucket struct {
	t        *testing.T
	mu       sync.Mutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	queries  map[string]string
	bodies   map[string]string
}

func newFakeBitbucket(t *testing.T, handlers map[string]func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *fakeBitbucket, *Provider) {
	t.Helper()
	fake := &fakeBitbucket{t: t, handlers: handlers, queries: map[string]string{}, bodies: map[string]string{}}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	p, err := NewProvider(common.Config{
		Token:    "app-pass",
		Username: "alice",
		BaseURL:  server.URL,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	return server, fake, p
}

func (f *fakeBitbucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + r.URL.Path
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.queries[key] = r.URL.RawQuery
	f.bodies[key] = string(body)
	f.mu.Unlock()

	if user, pass, ok := r.BasicAuth(); !ok || user != "alice" || pass != "app-pass" {
		f.t.Errorf("%s: basic auth = %q/%q", key, user, pass)
	}

	h, ok := f.handlers[key]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"type":"error","error":{"message":"Resource not found"}}`)
		return
	}
	h(w, r)
}

func (f *fakeBitbucket) query(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[key]
}

func (f *fakeBitbucket) body(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[key]
}

func respond(body string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}
}

const aliceUUID = "{11111111-1111-1111-1111-111111111111}"

const bbOpenPR = `{
	"id": 1, "title": "Add feature", "description": "body", "state": "OPEN",
	"author": {"uuid": "{11111111-1111-1111-1111-111111111111}", "nickname": "alice", "type": "user",
		"links": {"avatar": {"href": "https://bb/a.png"}, "html": {"href": "https://bb/alice"}}},
	"source": {"branch": {"name": "feature"}, "commit": {"hash": "abc"}},
	"destination": {"branch": {"name": "main"}, "commit": {"hash": "def"}},
	"created_on": "2024-01-01T10:00:00Z", "updated_on": "2024-01-02T10:00:00Z",
	"reviewers": [{"uuid": "{22222222-2222-2222-2222-222222222222}", "nickname": "bob", "type": "user"}],
	"participants": [
		{"user": {"uuid": "{22222222-2222-2222-2222-222222222222}", "nickname": "bob", "type": "user"},
		 "role": "REVIEWER", "approved": true, "state": "approved", "participated_on": "2024-01-02T09:00:00Z"},
		{"user": {"uuid": "{33333333-3333-3333-3333-333333333333}", "nickname": "carol", "type": "user"},
		 "role": "REVIEWER", "approved": false, "state": "changes_requested"},
		{"user": {"uuid": "{44444444-4444-4444-4444-444444444444}", "nickname": "dave", "type": "user"},
		 "role": "PARTICIPANT", "approved": false, "state": null}
	],
	"links": {"html": {"href": "https://bitbucket.org/ws/app/pull-requests/1"}}
}`

const bbMergedPR = `{
	"id": 2, "title": "Merged", "state": "MERGED",
	"author": {"uuid": "{22222222-2222-2222-2222-222222222222}", "nickname": "bob", "type": "user"},
	"source": {"branch": {"name": "fix"}}, "destination": {"branch": {"name": "main"}},
	"created_on": "2024-01-01T10:00:00Z", "updated_on": "2024-01-04T10:00:00Z"
}`

const bbDeclinedPR = `{
	"id": 3, "title": "Declined", "state": "DECLINED",
	"author": {"uuid": "{22222222-2222-2222-2222-222222222222}", "nickname": "bob", "type": "user"},
	"created_on": "2024-01-01T10:00:00Z", "updated_on": "2024-01-03T10:00:00Z"
}`

func TestListPullRequestsClampsPageSize(t *testing.T) {
	_, fake, p := newFakeBitbucket(t, map[string]func(http.ResponseWriter, *http.Request){
		"GET " + prsPath: respond(`{"values": [` + bbOpenPR + `]}`),
	})

	prs, err := p.ListPullRequests(context.Background(), "ws", "app", domain.ListOptions{Limit: 200})
	if err != nil {
		t.Fatalf("ListPullRequests() error = %v", err)
	}
	if len(prs) != 1 {
		t.Fatalf("got %d pull requests, want 1", len(prs))
	}

	q := fake.query("GET " + prsPath)
	if !strings.Contains(q, "pagelen=50") {
		t.Errorf("query = %q, want pagelen=50", q)
	}
	if !strings.Contains(q, "state=OPEN") {
		t.Errorf("query = %q, want state=OPEN", q)
	}

	pr := prs[0]
	if pr.State != domain.PRStateOpen || pr.Merged || pr.ClosedAt != nil {
		t.Errorf("unexpected state for open pull request: %+v", pr)
	}
	if pr.Head != (domain.BranchRef{Ref: "feature", SHA: "abc"}) {
		t.Errorf("Head = %+v", pr.Head)
	}
	if pr.URL != "https://bitbucket.org/ws/app/pull-requests/1" {
		t.Errorf("URL = %q", pr.URL)
	}
}

func TestListPullRequestsClosedStates(t *testing.T) {
	_, fake, p := newFakeBitbucket(t, map[string]func(http.ResponseWriter, *http.Request){
		"GET " + prsPath: respond(`{"values": [` + bbMergedPR + `,` + bbDeclinedPR + `]}`),
	})

	prs, err := p.ListPullRequests(context.Background(), "ws", "app", domain.ListOptions{State: domain.StateFilterClosed})
	if err != nil {
		t.Fatalf("ListPullRequests() error = %v", err)
	}
	q := fake.query("GET " + prsPath)
	for _, state := range []string{"state=MERGED", "state=DECLINED", "state=SUPERSEDED"} {
		if !strings.Contains(q, state) {
			t.Errorf("query = %q, missing %s", q, state)
		}
	}

	if len(prs) != 2 {
		t.Fatalf("got %d pull requests, want 2", len(prs))
	}
	merged := prs[0]
	if !merged.Merged || merged.State != domain.PRStateClosed {
		t.Errorf("merged pull request: merged=%v state=%s", merged.Merged, merged.State)
	}
	if merged.MergedAt == nil || merged.ClosedAt == nil || !merged.MergedAt.Equal(*merged.ClosedAt) {
		t.Errorf("MergedAt = %v, ClosedAt = %v", merged.MergedAt, merged.ClosedAt)
	}
	if !prs[1].IsClosedUnmerged() {
		t.Errorf("declined pull request should be closed and unmerged: %+v", prs[1])
	}
}

func TestUserIdentityIsHashed(t *testing.T) {
	_, _, p := newFakeBitbucket(t, map[string]func(http.ResponseWriter, *http.Request){
		"GET " + prsPath + "/1": respond(bbOpenPR),
	})

	pr, err := p.GetPullRequest(context.Background(), "ws", "app", 1)
	if err != nil {
		t.Fatalf("GetPullRequest() error = %v", err)
	}
	if pr.Author.ID != domain.HashIdentity(aliceUUID) || pr.Author.ID == 0 {
		t.Errorf("Author.ID = %d, want hash of %s", pr.Author.ID, aliceUUID)
	}
	if pr.Author.Login != "alice" || pr.Author.Kind != domain.UserKindUser {
		t.Errorf("Author = %+v", pr.Author)
	}
	if len(pr.RequestedReviewers) != 1 || pr.RequestedReviewers[0].ID == pr.Author.ID {
		t.Errorf("reviewer identity should differ from author: %+v", pr.RequestedReviewers)
	}
}

func TestListPullRequestsRoleFilter(t *testing.T) {
	_, _, p := newFakeBitbucket(t, map[string]func(http.ResponseWriter, *http.Request){
		"GET /user":      respond(`{"uuid": "` + aliceUUID + `", "nickname": "alice", "type": "user"}`),
		"GET " + prsPath: respond(`{"values": [` + bbOpenPR + `,` + bbMergedPR + `]}`),
	})

	prs, err := p.ListPullRequests(context.Background(), "ws", "app", domain.ListOptions{State: domain.StateFilterAll, Role: domain.RoleAuthor})
	if err != nil {
		t.Fatalf("ListPullRequests() error = %v", err)
	}
	if len(prs) != 1 || prs[0].Number != 1 {
		t.Errorf("expected only the viewer's pull request, got %+v", prs)
	}
}

func TestGetPullRequestSchemaError(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "unknown state", body: `{"id": 1, "state": "WEIRD"}`},
		{name: "missing id", body: `{"state": "OPEN"}`},
		{name: "author without uuid", body: `{"id": 1, "state": "OPEN", "author": {"nickname": "x"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, p := newFakeBitbucket(t, map[string]func(http.ResponseWriter, *http.Request){
				"GET " + prsPath + "/1": respond(tt.body),
			})
			_, err := p.GetPullRequest(context.Background(), "ws", "app", 1)
			var schemaErr *domain.SchemaValidationError
			if !errors.As(err, &schemaErr) {
				t.Fatalf("expected SchemaValidationError, got %T: %v", err, err)
			}
		})
	}
}

func TestMappingIsPure(t *testing.T) {
	var bb bbPullRequest
	if err := json.Unmarshal([]byte(bbOpenPR), &bb); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	first, err := convertPullRequest(bb, "ws", "app")
	if err != nil {
		t.Fatalf("convertPullRequest() error = %v", err)
	}
	second, _ := convertPullRequest(bb, "ws", "app")
	if !reflect.DeepEqual(first, second) {
		t.Error("mapping is not deterministic")
	}
}

func TestGetPullRequestDiffPassesThrough(t *testing.T) {
	const raw = "diff --git a/x.go b/x.go\n--- a/x.go\n+++ b/x.go\n@@ -1 +1 @@\n-a\n+b\n"
	_, _, p := newFakeBitbucket(t, map[string]func(http.ResponseWriter, *http.Request){
		"GET " + prsPath + "/1/diff": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			_, _ = io.WriteString(w, raw)
		},
	})

	got, err := p.GetPullRequestDiff(context.Background(), "ws", "app", 1)
	if err != nil {
		t.Fatalf("GetPullRequestDiff() error = %v", err)
	}
	if got != raw {
		t.Errorf("diff = %q, want %q", got, raw)
	}
}

func TestListCommentsFollowsPagesAndFilters(t *testing.T) {
	_, _, p := newFakeBitbucket(t, map[string]func(http.ResponseWriter, *http.Request){
		"GET " + prsPath + "/1/comments": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if r.URL.Query().Get("page") == "2" {
				_, _ = io.WriteString(w, `{"values": [
					{"id": 13, "content": {"raw": "reply"}, "inline": {"path": "a.go", "to": 5}, "parent": {"id": 12},
					 "user": {"uuid": "{2}", "nickname": "bob", "type": "user"}},
					{"id": 14, "content": {"raw": "gone"}, "deleted": true},
					{"id": 15, "content": {"raw": "old side"}, "inline": {"path": "b.go", "from": 9},
					 "user": {"uuid": "{2}", "nickname": "bob", "type": "user"}}
				]}`)
				return
			}
			_, _ = io.WriteString(w, `{"values": [
				{"id": 11, "content": {"raw": "general"}, "user": {"uuid": "{1}", "nickname": "alice", "type": "user"}},
				{"id": 12, "content": {"raw": "inline"}, "inline": {"path": "a.go", "to": 5},
				 "user": {"uuid": "{1}", "nickname": "alice", "type": "user"}}
			], "next": "http://`+r.Host+prsPath+`/1/comments?page=2&pagelen=100"}`)
		},
	})

	inline, err := p.ListComments(context.Background(), "ws", "app", 1)
	if err != nil {
		t.Fatalf("ListComments() error = %v", err)
	}
	want := []struct {
		id, reply string
		anchor    domain.Anchor
	}{
		{id: "12", anchor: domain.Anchor{Path: "a.go", Line: 5, Side: domain.SideRight}},
		{id: "13", reply: "12", anchor: domain.Anchor{Path: "a.go", Line: 5, Side: domain.SideRight}},
		{id: "15", anchor: domain.Anchor{Path: "b.go", Line: 9, Side: domain.SideLeft}},
	}
	if len(inline) != len(want) {
		t.Fatalf("got %d inline comments, want %d", len(inline), len(want))
	}
	for i, w := range want {
		c := inline[i]
		if c.ID != w.id || c.InReplyToID != w.reply || c.Anchor == nil || *c.Anchor != w.anchor {
			t.Errorf("comment %d = %+v (anchor %+v), want %+v", i, c, c.Anchor, w)
		}
	}

	general, err := p.ListIssueComments(context.Background(), "ws", "app", 1)
	if err != nil {
		t.Fatalf("ListIssueComments() error = %v", err)
	}
	if len(general) != 1 || general[0].Body != "general" {
		t.Errorf("general = %+v", general)
	}
}

func TestListReviewsFromParticipants(t *testing.T) {
	_, _, p := newFakeBitbucket(t, map[string]func(http.ResponseWriter, *http.Request){
		"GET " + prsPath + "/1": respond(bbOpenPR),
	})

	reviews, err := p.ListReviews(context.Background(), "ws", "app", 1)
	if err != nil {
		t.Fatalf("ListReviews() error = %v", err)
	}
	if len(reviews) != 2 {
		t.Fatalf("got %d reviews, want 2", len(reviews))
	}
	if reviews[0].State != domain.ReviewStateApproved || reviews[0].Author.Login != "bob" || reviews[0].SubmittedAt == nil {
		t.Errorf("first review = %+v", reviews[0])
	}
	if reviews[1].State != domain.ReviewStateChangesRequested || reviews[1].Author.Login != "carol" {
		t.Errorf("second review = %+v", reviews[1])
	}
}

func TestListFilesAndChecks(t *testing.T) {
	_, _, p := newFakeBitbucket(t, map[string]func(http.ResponseWriter, *http.Request){
		"GET " + prsPath + "/1/diffstat": respond(`{"values": [
			{"status": "modified", "lines_added": 3, "lines_removed": 1, "old": {"path": "a.go"}, "new": {"path": "a.go"}},
			{"status": "renamed", "old": {"path": "old.go"}, "new": {"path": "new.go"}},
			{"status": "removed", "lines_removed": 7, "old": {"path": "gone.go"}, "new": null}
		]}`),
		"GET " + prsPath + "/1/statuses": respond(`{"values": [
			{"key": "ci", "name": "CI build", "state": "SUCCESSFUL"},
			{"key": "lint", "state": "INPROGRESS"},
			{"key": "deploy", "name": "Deploy", "state": "STOPPED"}
		]}`),
	})

	files, err := p.ListFiles(context.Background(), "ws", "app", 1)
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	wantFiles := []domain.FileChange{
		{Filename: "a.go", Status: domain.FileStatusModified, Additions: 3, Deletions: 1},
		{Filename: "new.go", Status: domain.FileStatusRenamed, PreviousFilename: "old.go"},
		{Filename: "gone.go", Status: domain.FileStatusRemoved, Deletions: 7},
	}
	if !reflect.DeepEqual(files, wantFiles) {
		t.Errorf("files = %+v, want %+v", files, wantFiles)
	}

	runs, err := p.ListCheckRuns(context.Background(), "ws", "app", 1)
	if err != nil {
		t.Fatalf("ListCheckRuns() error = %v", err)
	}
	wantRuns := []domain.CheckRun{
		{ID: "ci", Name: "CI build", Status: domain.CheckStatusCompleted, Conclusion: domain.CheckConclusionSuccess},
		{ID: "lint", Name: "lint", Status: domain.CheckStatusInProgress},
		{ID: "deploy", Name: "Deploy", Status: domain.CheckStatusCompleted, Conclusion: domain.CheckConclusionCancelled},
	}
	if !reflect.DeepEqual(runs, wantRuns) {
		t.Errorf("runs = %+v, want %+v", runs, wantRuns)
	}
}

func TestCreateCommentPayload(t *testing.T) {
	tests := []struct {
		name  string
		input domain.CommentInput
		want  string
	}{
		{name: "general", input: domain.CommentInput{Body: "hi"}, want: `{"content":{"raw":"hi"}}`},
		{name: "new side", input: domain.CommentInput{Body: "nit", Path: "a.go", Line: 4}, want: `{"content":{"raw":"nit"},"inline":{"path":"a.go","to":4}}`},
		{name: "old side", input: domain.CommentInput{Body: "nit", Path: "a.go", Line: 4, Side: domain.SideLeft}, want: `{"content":{"raw":"nit"},"inline":{"path":"a.go","from":4}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, fake, p := newFakeBitbucket(t, map[string]func(http.ResponseWriter, *http.Request){
				"POST " + prsPath + "/1/comments": func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusCreated)
				},
			})
			if err := p.CreateComment(context.Background(), "ws", "app", 1, tt.input); err != nil {
				t.Fatalf("CreateComment() error = %v", err)
			}
			if got := fake.body("POST " + prsPath + "/1/comments"); got != tt.want {
				t.Errorf("payload = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRequestChangesPostsBody(t *testing.T) {
	_, fake, p := newFakeBitbucket(t, map[string]func(http.ResponseWriter, *http.Request){
		"POST " + prsPath + "/1/request-changes": respond(`{"approved": false}`),
		"POST " + prsPath + "/1/comments": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		},
	})

	if err := p.RequestChanges(context.Background(), "ws", "app", 1, "needs tests"); err != nil {
		t.Fatalf("RequestChanges() error = %v", err)
	}
	if !strings.Contains(fake.body("POST "+prsPath+"/1/comments"), "needs tests") {
		t.Error("expected body to be posted as a comment")
	}
}

func TestNewClientRequiresUsername(t *testing.T) {
	_, err := NewProvider(common.Config{Token: "app-pass"})
	var cfgErr *domain.ConfigurationError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "username" {
		t.Fatalf("expected username ConfigurationError, got %v", err)
	}
}

func TestProviderErrorOnNotFound(t *testing.T) {
	_, _, p := newFakeBitbucket(t, nil)

	_, err := p.GetPullRequest(context.Background(), "ws", "app", 99)
	var provErr *domain.ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %T: %v", err, err)
	}
	if provErr.StatusCode != http.StatusNotFound || provErr.Message != "Resource not found" {
		t.Errorf("ProviderError = %+v", provErr)
	}
}
