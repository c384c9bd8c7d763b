// Package ui is the terminal front end. Every read and write goes through
// the query engine; views re-render from cache notifications, so optimistic
// updates and rollbacks show up without extra wiring.
package ui

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/johanforsgren/prdeck/internal/cache"
	"github.com/johanforsgren/prdeck/internal/domain"
	"github.com/johanforsgren/prdeck/internal/query"
	"github.com/johanforsgren/prdeck/internal/ui/components"
	"github.com/johanforsgren/prdeck/internal/ui/views"
)

type ViewState int

const (
	ViewPRList ViewState = iota
	ViewPRInspect
)

type ListMode string

const (
	ListMine     ListMode = "mine"
	ListReviews  ListMode = "reviews"
	ListInvolved ListMode = "involved"
	ListAll      ListMode = "all"
)

var listRoles = map[ListMode]domain.Role{
	ListMine:     domain.RoleAuthor,
	ListReviews:  domain.RoleReviewer,
	ListInvolved: domain.RoleInvolved,
	ListAll:      domain.RoleAny,
}

const (
	defaultLimit = 30
	changeBuffer = 64
)

type Options struct {
	Account domain.Account
	Owner   string
	Repo    string
	Mode    ListMode
	State   domain.StateFilter
	Limit   int
}

type Model struct {
	state  ViewState
	width  int
	height int

	topBar        *components.TopBarModel
	statusBar     *components.StatusBarModel
	commandBar    *components.CommandBarModel
	prListView    *views.PRListViewModel
	prInspect     *views.PRInspectViewModel
	reviewView    *views.ReviewViewModel
	inlineComment *views.InlineCommentViewModel
	mergeView     *views.MergeViewModel
	logsView      *views.LogsViewModel

	engine      *query.Engine
	account     domain.Account
	owner       string
	repo        string
	mode        ListMode
	stateFilter domain.StateFilter
	limit       int
	viewer      domain.User

	ctx             context.Context
	changes         chan CacheChangedMsg
	subs            *subscriptions
	commandRegistry *CommandRegistry
}

func NewModel(engine *query.Engine, opts Options) Model {
	if opts.Mode == "" {
		opts.Mode = ListInvolved
	}
	if opts.State == "" {
		opts.State = domain.StateFilterOpen
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultLimit
	}

	m := Model{
		state:           ViewPRList,
		topBar:          components.NewTopBar(),
		statusBar:       components.NewStatusBar(),
		commandBar:      components.NewCommandBar(),
		prListView:      views.NewPRListView(),
		prInspect:       views.NewPRInspectView(),
		reviewView:      views.NewReviewView(),
		inlineComment:   views.NewInlineCommentView(),
		mergeView:       views.NewMergeView(),
		logsView:        views.NewLogsView(),
		engine:          engine,
		account:         opts.Account,
		owner:           opts.Owner,
		repo:            opts.Repo,
		mode:            opts.Mode,
		stateFilter:     opts.State,
		limit:           opts.Limit,
		ctx:             context.Background(),
		changes:         make(chan CacheChangedMsg, changeBuffer),
		subs:            &subscriptions{},
		commandRegistry: NewCommandRegistry(),
	}
	m.topBar.SetAccount(opts.Account.Name, string(opts.Account.Provider), "")
	m.topBar.SetRepo(opts.Owner + "/" + opts.Repo)
	m.updateShortcuts()
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadViewer(), m.loadPRs(), m.waitForChange())
}

func (m Model) isInInputMode() bool {
	return m.commandBar.IsActive() ||
		m.reviewView.IsActive() ||
		m.inlineComment.IsActive() ||
		m.mergeView.IsActive() ||
		m.logsView.IsActive() ||
		(m.state == ViewPRList && m.prListView.IsFiltering())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if _, ok := msg.(resultMsg); ok {
		m.statusBar.Done()
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		body := max(1, msg.Height-8)
		m.topBar.SetWidth(msg.Width)
		m.statusBar.SetWidth(msg.Width)
		m.commandBar.SetWidth(msg.Width)
		m.prListView.SetSize(msg.Width, body)
		m.prInspect.SetSize(msg.Width, body)
		m.reviewView.SetSize(msg.Width, body)
		m.inlineComment.SetSize(msg.Width, body)
		m.mergeView.SetSize(msg.Width, body)
		m.logsView.SetSize(msg.Width, body)
		return m, nil

	case tea.KeyMsg:
		if m.isInInputMode() {
			return m.handleInputKey(msg)
		}
		newModel, cmd, handled := m.commandRegistry.HandleKey(m, msg.String())
		if handled {
			return newModel, cmd
		}

	case ViewerLoadedMsg:
		m.viewer = msg.user
		m.topBar.SetAccount(m.account.Name, string(m.account.Provider), msg.user.Login)
		m.showList(m.currentList())
		return m, nil

	case PRsLoadedMsg:
		if msg.key != m.listKey() {
			return m, nil
		}
		m.showList(msg.prs)
		m.statusBar.SetMessage(fmt.Sprintf("Loaded %d pull requests", len(msg.prs)), false)
		return m, nil

	case PRDetailLoadedMsg:
		if m.isCurrent(msg.pr.Number) {
			m.prInspect.SetPR(msg.pr)
			m.topBar.SetPR(strconv.Itoa(msg.pr.Number), views.StatusText(msg.pr))
		}
		return m, nil

	case DiffLoadedMsg:
		if m.isCurrent(msg.number) {
			m.prInspect.SetDiff(msg.diff)
		}
		return m, nil

	case CommentsLoadedMsg:
		if m.isCurrent(msg.number) {
			m.prInspect.SetComments(msg.comments)
		}
		return m, nil

	case IssueCommentsLoadedMsg:
		if m.isCurrent(msg.number) {
			m.prInspect.SetIssueComments(msg.comments)
		}
		return m, nil

	case ReviewsLoadedMsg:
		if m.isCurrent(msg.number) {
			m.prInspect.SetReviews(msg.reviews)
		}
		return m, nil

	case ChecksLoadedMsg:
		if m.isCurrent(msg.number) {
			m.prInspect.SetChecks(msg.checks)
		}
		return m, nil

	case CacheChangedMsg:
		m = m.applyChange(msg)
		return m, m.waitForChange()

	case MutationDoneMsg:
		if msg.err != nil {
			slog.Warn("ui: mutation failed", "mutation", msg.name, "error", msg.err)
			m.statusBar.SetError(msg.err)
			return m, nil
		}
		if msg.name == "submit-review" {
			m.reviewView.ClearQueue()
		}
		m.statusBar.SetMessage(msg.message, false)
		return m, nil

	case ErrorMsg:
		m.statusBar.SetError(msg.err)
		return m, nil

	case SuccessMsg:
		m.statusBar.SetMessage(msg.message, false)
		return m, nil
	}

	var cmd tea.Cmd
	switch m.state {
	case ViewPRList:
		cmd = m.prListView.Update(msg)
	case ViewPRInspect:
		cmd = m.prInspect.Update(msg)
	}
	return m, cmd
}

func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	switch {
	case m.commandBar.IsActive():
		switch key {
		case "enter":
			return m.commandRegistry.ExecuteCommand(m, m.commandBar.Submit())
		case "esc":
			m.commandBar.Deactivate()
			return m, nil
		}
		return m, m.commandBar.Update(msg)

	case m.logsView.IsActive():
		if key == "esc" || key == "q" {
			m.logsView.Deactivate()
			return m, nil
		}
		return m, m.logsView.Update(msg)

	case m.mergeView.IsActive():
		switch key {
		case "up", "k":
			m.mergeView.PrevOption()
		case "down", "j":
			m.mergeView.NextOption()
		case "d":
			m.mergeView.ToggleDeleteBranch()
		case "enter":
			return m.submitMerge()
		case "esc":
			m.mergeView.Deactivate()
		}
		return m, nil

	case m.inlineComment.IsActive():
		switch key {
		case "esc":
			m.inlineComment.Deactivate()
			return m, nil
		case "ctrl+s":
			return m.submitInlineComment(false)
		case "ctrl+q":
			return m.submitInlineComment(true)
		}
		return m, m.inlineComment.Update(msg)

	case m.reviewView.IsActive():
		switch key {
		case "esc":
			m.reviewView.Deactivate()
			return m, nil
		case "ctrl+s":
			return m.submitReview(domain.ReviewEventComment)
		case "ctrl+a":
			if m.reviewView.Mode() == views.ReviewModeSubmit {
				return m.submitReview(domain.ReviewEventApprove)
			}
		case "ctrl+r":
			if m.reviewView.Mode() == views.ReviewModeSubmit {
				return m.submitReview(domain.ReviewEventRequestChanges)
			}
		}
		return m, m.reviewView.Update(msg)

	case m.prListView.IsFiltering():
		if key == "enter" || key == "esc" {
			m.prListView.ApplyFilter()
			return m, nil
		}
		return m, m.prListView.Update(msg)
	}
	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var content string
	switch {
	case m.logsView.IsActive():
		content = m.logsView.View()
	case m.mergeView.IsActive():
		content = m.mergeView.View()
	case m.inlineComment.IsActive():
		content = m.inlineComment.View()
	case m.reviewView.IsActive():
		content = m.reviewView.View()
	case m.state == ViewPRInspect:
		content = m.prInspect.View()
	default:
		content = m.prListView.View()
	}

	bottom := m.statusBar.View()
	if m.commandBar.IsActive() {
		bottom = m.commandBar.View()
	}
	return m.topBar.View() + "\n" + content + "\n" + bottom
}

func (m Model) listOptions() domain.ListOptions {
	return domain.ListOptions{State: m.stateFilter, Limit: m.limit, Role: listRoles[m.mode]}
}

func (m Model) listKey() cache.Key {
	return query.ListKey(m.owner, m.repo, m.listOptions())
}

func (m Model) currentList() []domain.PullRequest {
	entry, ok := m.engine.Store().Get(m.listKey())
	if !ok {
		return nil
	}
	prs, _ := entry.Value.([]domain.PullRequest)
	return prs
}

func (m Model) showList(prs []domain.PullRequest) {
	m.prListView.SetPRs(string(m.mode), prs, m.viewer)

	var counts components.RoleCounts
	counts.Total = len(prs)
	for _, pr := range prs {
		switch views.RoleIndicator(pr, m.viewer) {
		case views.RoleMarkAuthor:
			counts.Authored++
		case views.RoleMarkReviewer:
			counts.Review++
		case views.RoleMarkAssignee:
			counts.Assigned++
		}
	}
	m.topBar.SetList(fmt.Sprintf("%s (%s)", m.mode, m.stateFilter), counts)
}

func (m Model) isCurrent(number int) bool {
	pr := m.prInspect.GetPR()
	return m.state == ViewPRInspect && pr != nil && pr.Number == number
}

// applyChange renders a cache write that happened outside a loader, such as
// an optimistic update, a rollback or a background refetch.
func (m Model) applyChange(msg CacheChangedMsg) Model {
	if !msg.present || msg.entry.Invalidated {
		return m
	}
	switch v := msg.entry.Value.(type) {
	case domain.User:
		if msg.key.Kind == cache.KindViewer {
			m.viewer = v
		}
	case []domain.PullRequest:
		if msg.key == m.listKey() {
			m.showList(v)
		}
	}

	pr := m.prInspect.GetPR()
	if m.state != ViewPRInspect || pr == nil ||
		msg.key.Owner != m.owner || msg.key.Repo != m.repo || msg.key.ID != strconv.Itoa(pr.Number) {
		return m
	}
	switch v := msg.entry.Value.(type) {
	case domain.PullRequest:
		m.prInspect.SetPR(v)
		m.topBar.SetPR(strconv.Itoa(v.Number), views.StatusText(v))
	case string:
		m.prInspect.SetDiff(v)
	case []domain.Comment:
		m.prInspect.SetComments(v)
	case []domain.IssueComment:
		m.prInspect.SetIssueComments(v)
	case []domain.Review:
		m.prInspect.SetReviews(v)
	case []domain.CheckRun:
		m.prInspect.SetChecks(v)
	}
	return m
}

func (m Model) openSelected() (Model, tea.Cmd) {
	pr := m.prListView.GetSelectedPR()
	if pr == nil {
		return m, nil
	}
	selected := *pr
	slog.Info("ui: inspecting pull request", "repo", selected.Repository.FullName(), "number", selected.Number)

	m.state = ViewPRInspect
	m.prInspect.Reset()
	m.prInspect.SetPR(selected)
	m.topBar.SetPR(strconv.Itoa(selected.Number), views.StatusText(selected))
	m.topBar.SetView("PR Inspect")
	m.updateShortcuts()

	keys := make([]cache.Key, 0, len(inspectKinds))
	for _, kind := range inspectKinds {
		keys = append(keys, query.ItemKey(kind, m.owner, m.repo, selected.Number))
	}
	m.subs.replace(&m.subs.item, m.subscribe(keys...))

	return m, tea.Batch(
		m.loadPRDetail(selected.Number),
		m.loadDiff(selected.Number),
		m.loadComments(selected.Number),
		m.loadIssueComments(selected.Number),
		m.loadReviews(selected.Number),
		m.loadChecks(selected.Number),
	)
}

var inspectKinds = []cache.Kind{
	cache.KindPullRequest,
	cache.KindDiff,
	cache.KindComments,
	cache.KindIssueComments,
	cache.KindReviews,
	cache.KindChecks,
}

func (m Model) navigateBack() (Model, tea.Cmd) {
	if m.state != ViewPRInspect {
		return m, nil
	}
	m.subs.replace(&m.subs.item, nil)
	m.state = ViewPRList
	m.topBar.SetPR("", "")
	m.topBar.SetView("PR List")
	m.updateShortcuts()
	return m, nil
}

// refresh marks everything cached for the repository stale. Observed keys
// refetch on their own; the list is reloaded explicitly.
func (m Model) refresh() (Model, tea.Cmd) {
	slog.Info("ui: refreshing", "owner", m.owner, "repo", m.repo)
	m.engine.InvalidateRepo(m.owner, m.repo)
	m.statusBar.SetMessage("Refreshing...", false)
	if m.state == ViewPRInspect {
		if pr := m.prInspect.GetPR(); pr != nil {
			return m, tea.Batch(m.loadPRs(), m.loadPRDetail(pr.Number), m.loadDiff(pr.Number))
		}
	}
	return m, m.loadPRs()
}

func (m Model) openInlineComment() (Model, tea.Cmd) {
	anchor, ok := m.prInspect.CursorAnchor()
	if !ok {
		m.statusBar.SetMessage("Select a diff line to comment on", true)
		return m, nil
	}
	m.inlineComment.Activate(anchor)
	return m, nil
}

func (m Model) openReview(mode views.ReviewMode) (Model, tea.Cmd) {
	if m.prInspect.GetPR() == nil {
		return m, nil
	}
	m.reviewView.Activate(mode)
	return m, nil
}

func (m Model) openMerge() (Model, tea.Cmd) {
	pr := m.prInspect.GetPR()
	if pr == nil {
		return m, nil
	}
	if pr.State != domain.PRStateOpen {
		m.statusBar.SetMessage("Pull request is not open", true)
		return m, nil
	}
	m.mergeView.Activate(*pr, m.engine.Provider().Kind())
	return m, nil
}

func (m Model) submitInlineComment(queue bool) (Model, tea.Cmd) {
	input := m.inlineComment.GetComment()
	m.inlineComment.Deactivate()
	if input.Body == "" {
		return m, nil
	}
	if queue {
		m.reviewView.Queue(input)
		m.statusBar.SetMessage(fmt.Sprintf("%d comment(s) queued for review", len(m.reviewView.Queued())), false)
		return m, nil
	}

	number := m.prInspect.GetPR().Number
	return m, m.mutate("comment", "Comment posted", func(ctx context.Context) error {
		return m.engine.PostComment(ctx, m.owner, m.repo, number, input)
	})
}

func (m Model) submitReview(event domain.ReviewEvent) (Model, tea.Cmd) {
	mode := m.reviewView.Mode()
	input := m.reviewView.GetReview()
	comment := m.reviewView.GetComment()
	m.reviewView.Deactivate()

	pr := m.prInspect.GetPR()
	if pr == nil {
		return m, func() tea.Msg { return ErrorMsg{err: fmt.Errorf("no pull request selected")} }
	}
	number := pr.Number

	switch mode {
	case views.ReviewModeComment:
		if comment.Body == "" {
			return m, nil
		}
		return m, m.mutate("comment", "Comment posted", func(ctx context.Context) error {
			return m.engine.PostComment(ctx, m.owner, m.repo, number, comment)
		})
	case views.ReviewModeApprove:
		return m, m.mutate("approve", "Approved", func(ctx context.Context) error {
			return m.engine.Approve(ctx, m.owner, m.repo, number, input.Body)
		})
	case views.ReviewModeRequestChanges:
		return m, m.mutate("request-changes", "Changes requested", func(ctx context.Context) error {
			return m.engine.RequestChanges(ctx, m.owner, m.repo, number, input.Body)
		})
	}

	input.Event = event
	return m, m.mutate("submit-review", "Review submitted", func(ctx context.Context) error {
		return m.engine.SubmitReview(ctx, m.owner, m.repo, number, input)
	})
}

func (m Model) submitMerge() (Model, tea.Cmd) {
	pr := m.mergeView.GetPR()
	input := m.mergeView.GetInput()
	m.mergeView.Deactivate()
	if pr == nil {
		return m, nil
	}
	number := pr.Number
	return m, m.mutate("merge", fmt.Sprintf("Merged #%d", number), func(ctx context.Context) error {
		return m.engine.Merge(ctx, m.owner, m.repo, number, input)
	})
}

func (m Model) mutate(name, success string, fn func(ctx context.Context) error) tea.Cmd {
	m.statusBar.Begin()
	ctx := m.ctx
	return func() tea.Msg {
		return MutationDoneMsg{name: name, message: success, err: fn(ctx)}
	}
}

func (m Model) prefetchSelected() tea.Cmd {
	pr := m.prListView.GetSelectedPR()
	if pr == nil {
		return nil
	}
	number := pr.Number
	m.statusBar.Begin()
	return func() tea.Msg {
		if err := m.engine.Prefetch(m.ctx, m.owner, m.repo, number); err != nil {
			return ErrorMsg{err: err}
		}
		return SuccessMsg{message: fmt.Sprintf("Prefetched #%d", number)}
	}
}

func (m Model) updateShortcuts() {
	m.topBar.SetShortcuts(m.commandRegistry.GetContextualShortcuts(m.state))
	switch m.state {
	case ViewPRInspect:
		m.topBar.SetView("PR Inspect")
	default:
		m.topBar.SetView("PR List")
	}
}
