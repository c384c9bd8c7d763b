package views

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/johanforsgren/prdeck/internal/domain"
	"github.com/johanforsgren/prdeck/internal/query"
)

const (
	RoleMarkAuthor   = "✎"
	RoleMarkReviewer = "→"
	RoleMarkAssignee = "◆"
	RoleMarkOther    = "○"
)

// RoleIndicator marks how viewer relates to pr. Without a known viewer
// every row is treated as unrelated.
func RoleIndicator(pr domain.PullRequest, viewer domain.User) string {
	switch {
	case viewer.Login == "" && viewer.ID == 0:
		return RoleMarkOther
	case domain.IsAuthor(pr, viewer):
		return RoleMarkAuthor
	case domain.IsRequestedReviewer(pr, viewer):
		return RoleMarkReviewer
	case domain.IsAssignee(pr, viewer):
		return RoleMarkAssignee
	default:
		return RoleMarkOther
	}
}

func stateBadge(pr domain.PullRequest) string {
	switch {
	case pr.Merged:
		return "⇄"
	case pr.State == domain.PRStateClosed:
		return "✗"
	case pr.Draft:
		return "…"
	default:
		return " "
	}
}

type PRListViewModel struct {
	table table.Model

	sourcePRs  []domain.PullRequest
	visiblePRs []domain.PullRequest
	viewer     domain.User
	title      string

	width       int
	height      int
	filterInput textinput.Model
	filtering   bool
	filterText  string
	now         func() time.Time
}

func NewPRListView() *PRListViewModel {
	t := table.New(
		table.WithColumns(prListColumns(50)),
		table.WithRows([]table.Row{}),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.HiddenBorder()).
		Bold(false).
		Foreground(lipgloss.Color("#6B7280"))
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#F59E0B")).
		Background(lipgloss.Color("#1F2937")).
		Bold(true)
	t.SetStyles(s)

	ti := textinput.New()
	ti.Placeholder = "Filter by title, author, branch or number..."
	ti.CharLimit = 100

	return &PRListViewModel{
		table:       t,
		filterInput: ti,
		now:         time.Now,
	}
}

func prListColumns(titleWidth int) []table.Column {
	return []table.Column{
		{Title: "", Width: 2},
		{Title: "", Width: 2},
		{Title: "Title", Width: titleWidth},
		{Title: "#", Width: 7},
		{Title: "Author", Width: 15},
		{Title: "Branch", Width: 20},
		{Title: "Updated", Width: 14},
	}
}

func (m *PRListViewModel) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.table.SetHeight(max(1, height-7))

	const fixed = 2 + 2 + 7 + 15 + 20 + 14
	m.table.SetColumns(prListColumns(clamp(width-fixed, 20, 100)))
	m.rebuild()
}

// SetPRs replaces the list. title names the list shown, e.g. "mine".
func (m *PRListViewModel) SetPRs(title string, prs []domain.PullRequest, viewer domain.User) {
	m.title = title
	m.viewer = viewer
	m.sourcePRs = append([]domain.PullRequest(nil), prs...)
	m.rebuild()
}

func (m *PRListViewModel) Title() string {
	return m.title
}

func (m *PRListViewModel) rebuild() {
	m.visiblePRs = sortPRs(m.filterPRs(m.sourcePRs), m.viewer)
	m.table.SetRows(m.prsToRows(m.visiblePRs))
}

var roleOrder = map[string]int{RoleMarkAuthor: 0, RoleMarkReviewer: 1, RoleMarkAssignee: 2, RoleMarkOther: 3}

func sortPRs(prs []domain.PullRequest, viewer domain.User) []domain.PullRequest {
	out := append([]domain.PullRequest(nil), prs...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := roleOrder[RoleIndicator(out[i], viewer)], roleOrder[RoleIndicator(out[j], viewer)]
		if ri != rj {
			return ri < rj
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

func (m *PRListViewModel) filterPRs(prs []domain.PullRequest) []domain.PullRequest {
	if m.filterText == "" {
		return prs
	}

	filter := strings.ToLower(m.filterText)
	var out []domain.PullRequest
	for _, pr := range prs {
		if strings.Contains(strings.ToLower(pr.Title), filter) ||
			strings.Contains(strings.ToLower(pr.Author.Login), filter) ||
			strings.Contains(strings.ToLower(pr.Head.Ref), filter) ||
			strings.Contains(strconv.Itoa(pr.Number), filter) {
			out = append(out, pr)
		}
	}
	return out
}

func (m *PRListViewModel) prsToRows(prs []domain.PullRequest) []table.Row {
	rows := make([]table.Row, len(prs))
	titleWidth := m.table.Columns()[2].Width

	for i, pr := range prs {
		title := pr.Title
		if query.IsPending(pr.ID) {
			title = "(saving) " + title
		}
		rows[i] = table.Row{
			RoleIndicator(pr, m.viewer),
			stateBadge(pr),
			truncateString(title, titleWidth),
			fmt.Sprintf("#%d", pr.Number),
			truncateString(pr.Author.Login, 15),
			truncateString(pr.Head.Ref, 20),
			formatAge(m.now().Sub(pr.UpdatedAt)),
		}
	}
	return rows
}

func (m *PRListViewModel) GetSelectedPR() *domain.PullRequest {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.visiblePRs) {
		return nil
	}
	return &m.visiblePRs[idx]
}

func (m *PRListViewModel) VisiblePRs() []domain.PullRequest {
	return m.visiblePRs
}

func (m *PRListViewModel) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	if m.filtering {
		m.filterInput, cmd = m.filterInput.Update(msg)
		m.filterText = m.filterInput.Value()
		m.rebuild()
	} else {
		m.table, cmd = m.table.Update(msg)
	}
	return cmd
}

func (m *PRListViewModel) ActivateFilter() {
	m.filtering = true
	m.filterInput.SetValue(m.filterText)
	m.filterInput.Focus()
}

func (m *PRListViewModel) ApplyFilter() {
	m.filterText = m.filterInput.Value()
	m.filtering = false
	m.filterInput.Blur()
	m.rebuild()
}

func (m *PRListViewModel) ClearFilter() {
	m.filterText = ""
	m.filterInput.SetValue("")
	m.filtering = false
	m.filterInput.Blur()
	m.rebuild()
}

func (m *PRListViewModel) SetFilter(text string) {
	m.filterText = text
	m.filterInput.SetValue(text)
	m.rebuild()
}

func (m *PRListViewModel) IsFiltering() bool {
	return m.filtering
}

func (m *PRListViewModel) FilterText() string {
	return m.filterText
}

func (m *PRListViewModel) View() string {
	help := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#6B7280")).
		Italic(true).
		Render("\n" + m.helpText())

	tableView := m.colorizeTableRows(m.table.View())
	if len(m.visiblePRs) == 0 {
		tableView += "\n  No pull requests"
	}

	if m.filtering {
		filterStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F59E0B")).
			Bold(true)
		return tableView + "\n" + filterStyle.Render("Filter: ") + m.filterInput.View() + help
	}
	return tableView + help
}

func (m *PRListViewModel) colorizeTableRows(tableOutput string) string {
	lines := strings.Split(tableOutput, "\n")
	authoredStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#86EFAC"))
	reviewStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#93C5FD"))
	otherStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	for i, line := range lines {
		switch {
		case strings.Contains(line, RoleMarkAuthor):
			lines[i] = authoredStyle.Render(line)
		case strings.Contains(line, RoleMarkReviewer):
			lines[i] = reviewStyle.Render(line)
		case strings.Contains(line, RoleMarkOther):
			lines[i] = otherStyle.Render(line)
		}
	}
	return strings.Join(lines, "\n")
}

func (m *PRListViewModel) helpText() string {
	if m.filtering {
		return "Type to filter | Enter/Esc: Close"
	}
	if m.filterText != "" {
		return "Enter: Inspect | r: Refresh | /: Filter | Esc: Clear filter | :: Command"
	}
	return "Enter: Inspect | r: Refresh | /: Filter | :: Command"
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if maxLen <= 0 || len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		m := int(d.Minutes())
		if m == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", m)
	case d < 24*time.Hour:
		h := int(d.Hours())
		if h == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", h)
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}

func clamp(v, minV, maxV int) int {
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}
