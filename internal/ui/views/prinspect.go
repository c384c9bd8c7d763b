package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/johanforsgren/prdeck/internal/domain"
	"github.com/johanforsgren/prdeck/internal/provider/common"
	"github.com/johanforsgren/prdeck/internal/query"
)

var (
	addStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	deleteStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	contextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	hunkStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6"))
	cursorStyle  = lipgloss.NewStyle().Background(lipgloss.Color("#1F2937")).Bold(true)
	authorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED")).Bold(true)
	sectionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")).Italic(true)
)

type PRInspectViewModel struct {
	pr            *domain.PullRequest
	diff          *domain.Diff
	comments      []domain.Comment
	issueComments []domain.IssueComment
	reviews       []domain.Review
	checks        []domain.CheckRun

	viewport     viewport.Model
	currentFile  int
	cursor       int
	cursorRow    int
	width        int
	height       int
	showComments bool
}

func NewPRInspectView() *PRInspectViewModel {
	return &PRInspectViewModel{
		viewport:     viewport.New(0, 0),
		showComments: true,
	}
}

func (m *PRInspectViewModel) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = max(1, height-6)
	m.updateViewport()
}

// Reset clears everything loaded for the previous pull request.
func (m *PRInspectViewModel) Reset() {
	*m = PRInspectViewModel{
		viewport:     m.viewport,
		width:        m.width,
		height:       m.height,
		showComments: m.showComments,
	}
	m.viewport.GotoTop()
	m.updateViewport()
}

func (m *PRInspectViewModel) SetPR(pr domain.PullRequest) {
	m.pr = &pr
	m.updateViewport()
}

// SetDiff parses the unified diff text of the pull request.
func (m *PRInspectViewModel) SetDiff(text string) {
	m.diff = common.ParseUnifiedDiff(text)
	m.currentFile = 0
	m.cursor = 0
	m.updateViewport()
}

func (m *PRInspectViewModel) SetComments(comments []domain.Comment) {
	m.comments = comments
	m.updateViewport()
}

func (m *PRInspectViewModel) SetIssueComments(comments []domain.IssueComment) {
	m.issueComments = comments
	m.updateViewport()
}

func (m *PRInspectViewModel) SetReviews(reviews []domain.Review) {
	m.reviews = reviews
	m.updateViewport()
}

func (m *PRInspectViewModel) SetChecks(checks []domain.CheckRun) {
	m.checks = checks
	m.updateViewport()
}

func (m *PRInspectViewModel) GetPR() *domain.PullRequest {
	return m.pr
}

func (m *PRInspectViewModel) NextFile() {
	if m.diff != nil && m.currentFile < len(m.diff.Files)-1 {
		m.currentFile++
		m.cursor = 0
		m.viewport.GotoTop()
		m.updateViewport()
	}
}

func (m *PRInspectViewModel) PrevFile() {
	if m.currentFile > 0 {
		m.currentFile--
		m.cursor = 0
		m.viewport.GotoTop()
		m.updateViewport()
	}
}

func (m *PRInspectViewModel) ToggleComments() {
	m.showComments = !m.showComments
	m.updateViewport()
}

func (m *PRInspectViewModel) CurrentFile() *domain.DiffFile {
	if m.diff == nil || m.currentFile >= len(m.diff.Files) {
		return nil
	}
	return &m.diff.Files[m.currentFile]
}

func (m *PRInspectViewModel) fileLines() []domain.DiffLine {
	file := m.CurrentFile()
	if file == nil {
		return nil
	}
	var lines []domain.DiffLine
	for _, h := range file.Hunks {
		lines = append(lines, h.Lines...)
	}
	return lines
}

func (m *PRInspectViewModel) MoveCursor(delta int) {
	lines := m.fileLines()
	if len(lines) == 0 {
		return
	}
	m.cursor = clamp(m.cursor+delta, 0, len(lines)-1)
	m.updateViewport()
	m.scrollToCursor()
}

func (m *PRInspectViewModel) scrollToCursor() {
	if m.viewport.Height <= 0 {
		return
	}
	switch {
	case m.cursorRow < m.viewport.YOffset:
		m.viewport.SetYOffset(m.cursorRow)
	case m.cursorRow >= m.viewport.YOffset+m.viewport.Height:
		m.viewport.SetYOffset(m.cursorRow - m.viewport.Height + 1)
	}
}

// CursorAnchor is where an inline comment on the selected line attaches.
// Removed lines anchor on the old side, everything else on the new side.
func (m *PRInspectViewModel) CursorAnchor() (domain.Anchor, bool) {
	file := m.CurrentFile()
	lines := m.fileLines()
	if file == nil || m.cursor >= len(lines) {
		return domain.Anchor{}, false
	}
	line := lines[m.cursor]
	switch line.Type {
	case "delete":
		return domain.Anchor{Path: FilePath(*file), Line: line.OldLine, Side: domain.SideLeft}, true
	case "add", "context":
		return domain.Anchor{Path: FilePath(*file), Line: line.NewLine, Side: domain.SideRight}, true
	}
	return domain.Anchor{}, false
}

func (m *PRInspectViewModel) Update(msg tea.Msg) tea.Cmd {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "n":
			m.NextFile()
			return nil
		case "p":
			m.PrevFile()
			return nil
		case "c":
			m.ToggleComments()
			return nil
		case "j", "down":
			m.MoveCursor(1)
			return nil
		case "k", "up":
			m.MoveCursor(-1)
			return nil
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return cmd
}

func (m *PRInspectViewModel) View() string {
	help := mutedStyle.Render("\nj/k: Line | n/p: File | c: Comments | i: Inline comment | C: Comment | a: Approve | x: Request changes | R: Review | m: Merge | Esc: Back")
	return m.viewport.View() + "\n" + help
}

func (m *PRInspectViewModel) updateViewport() {
	var b strings.Builder
	row := func() int { return strings.Count(b.String(), "\n") }

	if m.pr != nil {
		b.WriteString(m.renderPRHeader())
		b.WriteString("\n")
	}
	if s := m.renderChecks(); s != "" {
		b.WriteString(s)
		b.WriteString("\n")
	}
	if s := m.renderReviews(); s != "" {
		b.WriteString(s)
		b.WriteString("\n")
	}

	file := m.CurrentFile()
	switch {
	case m.diff == nil:
		b.WriteString(mutedStyle.Render("Loading diff..."))
		b.WriteString("\n")
	case file == nil:
		b.WriteString(mutedStyle.Render("No diff available"))
		b.WriteString("\n")
	default:
		header := fmt.Sprintf("File %d/%d: %s", m.currentFile+1, len(m.diff.Files), FilePath(*file))
		b.WriteString(lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7C3AED")).
			Bold(true).
			Background(lipgloss.Color("#1F2937")).
			Padding(0, 1).
			Render(header))
		b.WriteString("\n\n")

		idx := 0
		for _, hunk := range file.Hunks {
			b.WriteString(hunkStyle.Render(hunk.Header))
			b.WriteString("\n")
			for _, line := range hunk.Lines {
				if idx == m.cursor {
					m.cursorRow = row()
				}
				b.WriteString(renderDiffLine(line, idx == m.cursor))
				b.WriteString("\n")
				if m.showComments {
					for _, c := range m.commentsOn(FilePath(*file), line) {
						b.WriteString(renderComment(c.Author, c.Body, c.ID, "    "))
					}
				}
				idx++
			}
			b.WriteString("\n")
		}
	}

	if m.showComments {
		b.WriteString(m.renderConversation())
	}

	m.viewport.SetContent(b.String())
}

func (m *PRInspectViewModel) commentsOn(path string, line domain.DiffLine) []domain.Comment {
	var out []domain.Comment
	for _, c := range m.comments {
		if c.Anchor == nil || c.Anchor.Path != path {
			continue
		}
		switch {
		case c.Anchor.Side == domain.SideLeft && line.Type == "delete" && c.Anchor.Line == line.OldLine:
		case c.Anchor.Side != domain.SideLeft && line.Type != "delete" && line.NewLine > 0 && c.Anchor.Line == line.NewLine:
		default:
			continue
		}
		out = append(out, c)
	}
	return out
}

func (m *PRInspectViewModel) renderPRHeader() string {
	var b strings.Builder
	pr := m.pr

	b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED")).Bold(true).Render(pr.Title))
	b.WriteString("\n")

	meta := fmt.Sprintf("%s #%d | %s → %s | by %s",
		pr.Repository.FullName(), pr.Number, pr.Head.Ref, pr.Base.Ref, pr.Author.Login)
	b.WriteString(contextStyle.Render(meta))
	b.WriteString("\n")

	status := StatusText(*pr)
	style := addStyle
	switch {
	case pr.Merged:
		style = authorStyle
	case pr.State == domain.PRStateClosed:
		style = deleteStyle
	}
	b.WriteString(style.Render(status))
	b.WriteString("\n")

	if pr.Body != "" {
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("#F9FAFB")).Render(pr.Body))
		b.WriteString("\n")
	}
	return b.String()
}

// StatusText is the one-line state summary of pr.
func StatusText(pr domain.PullRequest) string {
	var s string
	switch {
	case pr.Merged:
		s = "merged"
	case pr.State == domain.PRStateClosed:
		s = "closed"
	default:
		s = "open"
		if pr.Draft {
			s += " (draft)"
		}
		switch pr.Mergeable {
		case domain.MergeableYes:
			s += " | mergeable"
		case domain.MergeableNo:
			s += " | conflicts"
		}
	}
	return s
}

func (m *PRInspectViewModel) renderChecks() string {
	if len(m.checks) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(sectionStyle.Render("Checks"))
	b.WriteString("\n")
	for _, c := range m.checks {
		b.WriteString("  ")
		b.WriteString(checkSymbol(c))
		b.WriteString(" ")
		b.WriteString(c.Name)
		b.WriteString("\n")
	}
	return b.String()
}

func checkSymbol(c domain.CheckRun) string {
	if c.Status != domain.CheckStatusCompleted {
		return "◯"
	}
	switch c.Conclusion {
	case domain.CheckConclusionSuccess, domain.CheckConclusionNeutral, domain.CheckConclusionSkipped:
		return addStyle.Render("✓")
	default:
		return deleteStyle.Render("✗")
	}
}

func (m *PRInspectViewModel) renderReviews() string {
	if len(m.reviews) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(sectionStyle.Render("Reviews"))
	b.WriteString("\n")
	for _, r := range m.reviews {
		state := string(r.State)
		switch r.State {
		case domain.ReviewStateApproved:
			state = addStyle.Render("✓ approved")
		case domain.ReviewStateChangesRequested:
			state = deleteStyle.Render("✗ changes requested")
		case domain.ReviewStateCommented:
			state = contextStyle.Render("commented")
		}
		line := fmt.Sprintf("  %s %s", authorStyle.Render(r.Author.Login), state)
		if query.IsPending(r.ID) {
			line += mutedStyle.Render(" (saving)")
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (m *PRInspectViewModel) renderConversation() string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(sectionStyle.Render("Conversation"))
	b.WriteString("\n\n")

	if len(m.issueComments) == 0 {
		b.WriteString(mutedStyle.Render("No comments"))
		b.WriteString("\n")
		return b.String()
	}
	for _, c := range m.issueComments {
		b.WriteString(renderComment(c.Author, c.Body, c.ID, ""))
	}
	return b.String()
}

func renderComment(author domain.User, body, id, indent string) string {
	var b strings.Builder
	b.WriteString(indent)
	b.WriteString(authorStyle.Render(author.Login))
	if query.IsPending(id) {
		b.WriteString(mutedStyle.Render(" (saving)"))
	}
	b.WriteString(":\n")
	b.WriteString(lipgloss.NewStyle().
		Foreground(lipgloss.Color("#F9FAFB")).
		PaddingLeft(len(indent) + 2).
		Render(body))
	b.WriteString("\n")
	return b.String()
}

func renderDiffLine(line domain.DiffLine, selected bool) string {
	style := contextStyle
	switch line.Type {
	case "add":
		style = addStyle
	case "delete":
		style = deleteStyle
	}

	number := line.NewLine
	if line.Type == "delete" {
		number = line.OldLine
	}
	gutter := "     "
	if number > 0 {
		gutter = fmt.Sprintf("%4d ", number)
	}

	out := contextStyle.Render(gutter) + style.Render(line.Content)
	if selected {
		return cursorStyle.Render("▸") + out
	}
	return " " + out
}

// FilePath names a diff file by its new path, or its old one when deleted.
func FilePath(file domain.DiffFile) string {
	if file.NewPath != "" && !file.IsDeleted {
		return file.NewPath
	}
	return file.OldPath
}
