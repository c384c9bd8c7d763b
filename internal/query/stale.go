package query

import (
	"time"

	"github.com/johanforsgren/prdeck/internal/cache"
)

// DefaultStaleTimes is how long a cached entry of each kind is served
// without a refetch.
var DefaultStaleTimes = map[cache.Kind]time.Duration{
	cache.KindPullRequests:         30 * time.Second,
	cache.KindMyPullRequests:       30 * time.Second,
	cache.KindReviewRequests:       30 * time.Second,
	cache.KindInvolvedPullRequests: 30 * time.Second,
	cache.KindPullRequest:          60 * time.Second,
	cache.KindComments:             30 * time.Second,
	cache.KindIssueComments:        30 * time.Second,
	cache.KindReviews:              30 * time.Second,
	cache.KindChecks:               15 * time.Second,
	cache.KindDiff:                 2 * time.Minute,
	cache.KindFiles:                2 * time.Minute,
	cache.KindCommits:              2 * time.Minute,
	cache.KindViewer:               10 * time.Minute,
}

func (e *Engine) staleTime(kind cache.Kind) time.Duration {
	if d, ok := e.stale[kind]; ok {
		return d
	}
	return 30 * time.Second
}

func (e *Engine) fresh(key cache.Key, entry cache.Entry) bool {
	if entry.Invalidated {
		return false
	}
	return e.store.Now().Sub(entry.UpdatedAt) < e.staleTime(key.Kind)
}
