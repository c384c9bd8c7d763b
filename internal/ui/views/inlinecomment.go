package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/johanforsgren/prdeck/internal/domain"
)

type InlineCommentViewModel struct {
	textarea textarea.Model
	anchor   domain.Anchor
	width    int
	height   int
	active   bool
}

func NewInlineCommentView() *InlineCommentViewModel {
	ta := textarea.New()
	ta.Placeholder = "Enter your inline comment..."
	ta.CharLimit = 10000
	ta.ShowLineNumbers = false

	return &InlineCommentViewModel{textarea: ta}
}

func (m *InlineCommentViewModel) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.textarea.SetWidth(max(10, width-8))
	m.textarea.SetHeight(8)
}

func (m *InlineCommentViewModel) Activate(anchor domain.Anchor) {
	m.active = true
	m.anchor = anchor
	m.textarea.Focus()
	m.textarea.SetValue("")
}

func (m *InlineCommentViewModel) Deactivate() {
	m.active = false
	m.textarea.Blur()
	m.textarea.SetValue("")
}

func (m *InlineCommentViewModel) IsActive() bool {
	return m.active
}

func (m *InlineCommentViewModel) Anchor() domain.Anchor {
	return m.anchor
}

func (m *InlineCommentViewModel) SetValue(value string) {
	m.textarea.SetValue(value)
}

// GetComment is the typed comment anchored where the view was opened.
func (m *InlineCommentViewModel) GetComment() domain.CommentInput {
	return domain.CommentInput{
		Body: strings.TrimSpace(m.textarea.Value()),
		Path: m.anchor.Path,
		Line: m.anchor.Line,
		Side: m.anchor.Side,
	}
}

func (m *InlineCommentViewModel) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return cmd
}

func (m *InlineCommentViewModel) View() string {
	if !m.active {
		return ""
	}

	var b strings.Builder

	titleStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#7C3AED")).
		Bold(true).
		Padding(1, 0)

	title := fmt.Sprintf("Inline Comment - %s:%d (%s)", m.anchor.Path, m.anchor.Line, strings.ToLower(string(m.anchor.Side)))
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n\n")
	b.WriteString(m.textarea.View())
	b.WriteString("\n\n")
	b.WriteString(mutedStyle.Render("Ctrl+S: Post now | Ctrl+Q: Add to review | Esc: Cancel"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#7C3AED")).
		Padding(1, 2).
		Width(max(10, m.width-4))

	return boxStyle.Render(b.String())
}
