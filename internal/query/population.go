package query

import (
	"github.com/johanforsgren/prdeck/internal/cache"
	"github.com/johanforsgren/prdeck/internal/domain"
)

var kindRoles = map[cache.Kind]domain.Role{
	cache.KindMyPullRequests:       domain.RoleAuthor,
	cache.KindReviewRequests:       domain.RoleReviewer,
	cache.KindInvolvedPullRequests: domain.RoleInvolved,
}

// populationEdges lists which role lists a fetched role list can fill in.
var populationEdges = map[cache.Kind][]cache.Kind{
	cache.KindInvolvedPullRequests: {cache.KindMyPullRequests, cache.KindReviewRequests},
	cache.KindMyPullRequests:       {cache.KindInvolvedPullRequests},
	cache.KindReviewRequests:       {cache.KindInvolvedPullRequests},
}

// populate writes derived role lists after a fetch of a role list. The
// involved list is a superset: from it the narrower lists are filtered out;
// a narrower list is merged into an involved entry only when one is already
// cached, and the merge keeps that entry's age. Population needs the viewer
// in cache and never cascades.
func (e *Engine) populate(key cache.Key, value any) {
	targets := populationEdges[key.Kind]
	if len(targets) == 0 {
		return
	}
	prs, ok := value.([]domain.PullRequest)
	if !ok {
		return
	}
	viewerEntry, ok := e.store.Get(ViewerKey())
	if !ok {
		return
	}
	viewer, ok := viewerEntry.Value.(domain.User)
	if !ok {
		return
	}

	for _, kind := range targets {
		target := key
		target.Kind = kind

		if kind == cache.KindInvolvedPullRequests {
			existing, ok := e.store.Get(target)
			if !ok {
				continue
			}
			union, ok := existing.Value.([]domain.PullRequest)
			if !ok {
				continue
			}
			existing.Value = mergePullRequests(union, prs)
			e.store.SetEntry(target, existing)
		} else {
			e.store.Set(target, domain.FilterByRole(prs, kindRoles[kind], viewer))
		}
		e.metrics.populated(key.Kind, kind)
	}
}

// mergePullRequests replaces entries of base by ID with those in update and
// appends the ones base lacks.
func mergePullRequests(base, update []domain.PullRequest) []domain.PullRequest {
	out := make([]domain.PullRequest, len(base), len(base)+len(update))
	copy(out, base)
	index := make(map[string]int, len(out))
	for i, pr := range out {
		index[pr.ID] = i
	}
	for _, pr := range update {
		if i, ok := index[pr.ID]; ok {
			out[i] = pr
			continue
		}
		index[pr.ID] = len(out)
		out = append(out, pr)
	}
	return out
}
