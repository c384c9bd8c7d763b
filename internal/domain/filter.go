package domain

import "strings"

// SameUser compares identities by id when both sides carry one, otherwise by login.
func SameUser(a, b User) bool {
	if a.ID != 0 && b.ID != 0 {
		return a.ID == b.ID
	}
	return a.Login != "" && strings.EqualFold(a.Login, b.Login)
}

func IsAuthor(pr PullRequest, viewer User) bool {
	return SameUser(pr.Author, viewer)
}

func IsRequestedReviewer(pr PullRequest, viewer User) bool {
	for _, u := range pr.RequestedReviewers {
		if SameUser(u, viewer) {
			return true
		}
	}
	return false
}

func IsAssignee(pr PullRequest, viewer User) bool {
	for _, u := range pr.Assignees {
		if SameUser(u, viewer) {
			return true
		}
	}
	return false
}

// MatchesRole reports whether the viewer holds role on pr. Involved covers
// authorship, review requests and assignment.
func MatchesRole(pr PullRequest, role Role, viewer User) bool {
	switch role {
	case RoleAuthor:
		return IsAuthor(pr, viewer)
	case RoleReviewer:
		return IsRequestedReviewer(pr, viewer)
	case RoleInvolved:
		return IsAuthor(pr, viewer) || IsRequestedReviewer(pr, viewer) || IsAssignee(pr, viewer)
	default:
		return true
	}
}

func FilterByRole(prs []PullRequest, role Role, viewer User) []PullRequest {
	if role == RoleAny {
		return prs
	}
	out := make([]PullRequest, 0, len(prs))
	for _, pr := range prs {
		if MatchesRole(pr, role, viewer) {
			out = append(out, pr)
		}
	}
	return out
}
