// Package cache holds query results keyed by resource, with the snapshot,
// generation and observer primitives the query engine builds on.
package cache

import (
	"fmt"
	"strings"
)

type Kind string

const (
	KindPullRequests         Kind = "pull-requests"
	KindPullRequest          Kind = "pull-request"
	KindDiff                 Kind = "diff"
	KindFiles                Kind = "files"
	KindCommits              Kind = "commits"
	KindComments             Kind = "comments"
	KindIssueComments        Kind = "issue-comments"
	KindReviews              Kind = "reviews"
	KindChecks               Kind = "checks"
	KindMyPullRequests       Kind = "my-pull-requests"
	KindReviewRequests       Kind = "review-requests"
	KindInvolvedPullRequests Kind = "involved-pull-requests"
	KindViewer               Kind = "viewer"
)

// IsList reports whether entries of this kind hold []domain.PullRequest.
func (k Kind) IsList() bool {
	switch k {
	case KindPullRequests, KindMyPullRequests, KindReviewRequests, KindInvolvedPullRequests:
		return true
	}
	return false
}

// Key identifies one cached resource. Fields a kind does not use stay empty.
type Key struct {
	Kind   Kind
	Owner  string
	Repo   string
	ID     string
	Params string
}

// String renders the canonical form kind|owner|repo|id|params.
func (k Key) String() string {
	return strings.Join([]string{string(k.Kind), k.Owner, k.Repo, k.ID, k.Params}, "|")
}

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 5 || parts[0] == "" {
		return Key{}, fmt.Errorf("invalid cache key %q", s)
	}
	return Key{Kind: Kind(parts[0]), Owner: parts[1], Repo: parts[2], ID: parts[3], Params: parts[4]}, nil
}

// SameRepo reports whether both keys address the same repository.
func (k Key) SameRepo(other Key) bool {
	return k.Owner == other.Owner && k.Repo == other.Repo
}
