package ui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/johanforsgren/prdeck/internal/cache"
	"github.com/johanforsgren/prdeck/internal/domain"
)

// resultMsg marks messages that end a request counted by the status bar.
type resultMsg interface {
	result()
}

type done struct{}

func (done) result() {}

type ViewerLoadedMsg struct {
	done
	user domain.User
}

type PRsLoadedMsg struct {
	done
	key cache.Key
	prs []domain.PullRequest
}

type PRDetailLoadedMsg struct {
	done
	pr domain.PullRequest
}

type DiffLoadedMsg struct {
	done
	number int
	diff   string
}

type CommentsLoadedMsg struct {
	done
	number   int
	comments []domain.Comment
}

type IssueCommentsLoadedMsg struct {
	done
	number   int
	comments []domain.IssueComment
}

type ReviewsLoadedMsg struct {
	done
	number  int
	reviews []domain.Review
}

type ChecksLoadedMsg struct {
	done
	number int
	checks []domain.CheckRun
}

type MutationDoneMsg struct {
	done
	name    string
	message string
	err     error
}

type ErrorMsg struct {
	done
	err error
}

type SuccessMsg struct {
	done
	message string
}

// CacheChangedMsg carries one store notification into the update loop.
type CacheChangedMsg struct {
	key     cache.Key
	entry   cache.Entry
	present bool
}

// subscriptions holds the unsubscribe funcs of the observed list and of the
// inspected pull request. Model is copied on every update, so it lives
// behind a pointer.
type subscriptions struct {
	mu   sync.Mutex
	list []func()
	item []func()
}

func (s *subscriptions) replace(slot *[]func(), next []func()) {
	s.mu.Lock()
	prev := *slot
	*slot = next
	s.mu.Unlock()
	for _, unsubscribe := range prev {
		unsubscribe()
	}
}

func (m Model) subscribe(keys ...cache.Key) []func() {
	out := make([]func(), 0, len(keys))
	for _, key := range keys {
		out = append(out, m.engine.Subscribe(key, func(k cache.Key, e cache.Entry, present bool) {
			select {
			case m.changes <- CacheChangedMsg{key: k, entry: e, present: present}:
			default:
				// Dropped notifications are recovered by the next load.
			}
		}))
	}
	return out
}

func (m Model) waitForChange() tea.Cmd {
	ch := m.changes
	return func() tea.Msg {
		return <-ch
	}
}

func (m Model) loadViewer() tea.Cmd {
	m.statusBar.Begin()
	return func() tea.Msg {
		user, err := m.engine.Viewer(m.ctx)
		if err != nil {
			return ErrorMsg{err: err}
		}
		return ViewerLoadedMsg{user: user}
	}
}

func (m Model) loadPRs() tea.Cmd {
	key := m.listKey()
	m.subs.replace(&m.subs.list, m.subscribe(key))
	m.statusBar.Begin()

	owner, repo, state, limit, opts := m.owner, m.repo, m.stateFilter, m.limit, m.listOptions()
	mode := m.mode
	return func() tea.Msg {
		var (
			prs []domain.PullRequest
			err error
		)
		switch mode {
		case ListMine:
			prs, err = m.engine.MyPullRequests(m.ctx, owner, repo, state, limit)
		case ListReviews:
			prs, err = m.engine.ReviewRequests(m.ctx, owner, repo, state, limit)
		case ListInvolved:
			prs, err = m.engine.InvolvedPullRequests(m.ctx, owner, repo, state, limit)
		default:
			prs, err = m.engine.PullRequests(m.ctx, owner, repo, opts)
		}
		if err != nil {
			return ErrorMsg{err: err}
		}
		return PRsLoadedMsg{key: key, prs: prs}
	}
}

// load runs one typed read of the inspected pull request.
func load[T any](m Model, number int, read func(ctx context.Context, owner, repo string, number int) (T, error), wrap func(T) tea.Msg) tea.Cmd {
	m.statusBar.Begin()
	ctx, owner, repo := m.ctx, m.owner, m.repo
	return func() tea.Msg {
		v, err := read(ctx, owner, repo, number)
		if err != nil {
			return ErrorMsg{err: err}
		}
		return wrap(v)
	}
}

func (m Model) loadPRDetail(number int) tea.Cmd {
	return load(m, number, m.engine.PullRequest, func(pr domain.PullRequest) tea.Msg {
		return PRDetailLoadedMsg{pr: pr}
	})
}

func (m Model) loadDiff(number int) tea.Cmd {
	return load(m, number, m.engine.Diff, func(diff string) tea.Msg {
		return DiffLoadedMsg{number: number, diff: diff}
	})
}

func (m Model) loadComments(number int) tea.Cmd {
	return load(m, number, m.engine.Comments, func(c []domain.Comment) tea.Msg {
		return CommentsLoadedMsg{number: number, comments: c}
	})
}

func (m Model) loadIssueComments(number int) tea.Cmd {
	return load(m, number, m.engine.IssueComments, func(c []domain.IssueComment) tea.Msg {
		return IssueCommentsLoadedMsg{number: number, comments: c}
	})
}

func (m Model) loadReviews(number int) tea.Cmd {
	return load(m, number, m.engine.Reviews, func(r []domain.Review) tea.Msg {
		return ReviewsLoadedMsg{number: number, reviews: r}
	})
}

func (m Model) loadChecks(number int) tea.Cmd {
	return load(m, number, m.engine.Checks, func(c []domain.CheckRun) tea.Msg {
		return ChecksLoadedMsg{number: number, checks: c}
	})
}
