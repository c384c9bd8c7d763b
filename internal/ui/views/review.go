package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/johanforsgren/prdeck/internal/domain"
)

type ReviewMode int

const (
	ReviewModeComment ReviewMode = iota
	ReviewModeApprove
	ReviewModeRequestChanges
	ReviewModeSubmit
)

// ReviewViewModel collects the body of a general comment or a review.
// Inline comments queued on the inspect view ride along with a review.
type ReviewViewModel struct {
	mode     ReviewMode
	textarea textarea.Model
	pending  []domain.CommentInput
	width    int
	height   int
	active   bool
}

func NewReviewView() *ReviewViewModel {
	ta := textarea.New()
	ta.Placeholder = "Enter your comment or review..."
	ta.CharLimit = 10000
	ta.ShowLineNumbers = false

	return &ReviewViewModel{
		mode:     ReviewModeComment,
		textarea: ta,
	}
}

func (m *ReviewViewModel) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.textarea.SetWidth(max(10, width-8))
	m.textarea.SetHeight(max(3, height-14))
}

func (m *ReviewViewModel) Activate(mode ReviewMode) {
	m.active = true
	m.mode = mode
	m.textarea.Focus()
	m.textarea.SetValue("")
}

func (m *ReviewViewModel) Deactivate() {
	m.active = false
	m.textarea.Blur()
	m.textarea.SetValue("")
}

func (m *ReviewViewModel) IsActive() bool {
	return m.active
}

func (m *ReviewViewModel) Mode() ReviewMode {
	return m.mode
}

func (m *ReviewViewModel) Body() string {
	return strings.TrimSpace(m.textarea.Value())
}

func (m *ReviewViewModel) SetBody(body string) {
	m.textarea.SetValue(body)
}

// Queue adds an inline comment to be sent with the next review.
func (m *ReviewViewModel) Queue(c domain.CommentInput) {
	m.pending = append(m.pending, c)
}

func (m *ReviewViewModel) Queued() []domain.CommentInput {
	return m.pending
}

func (m *ReviewViewModel) ClearQueue() {
	m.pending = nil
}

// GetReview builds the review input for the current mode. The queue is
// only attached in submit mode.
func (m *ReviewViewModel) GetReview() domain.ReviewInput {
	input := domain.ReviewInput{Event: domain.ReviewEventComment, Body: m.Body()}
	switch m.mode {
	case ReviewModeApprove:
		input.Event = domain.ReviewEventApprove
	case ReviewModeRequestChanges:
		input.Event = domain.ReviewEventRequestChanges
	case ReviewModeSubmit:
		input.Comments = append([]domain.CommentInput(nil), m.pending...)
	}
	return input
}

// GetComment is the general comment typed in comment mode.
func (m *ReviewViewModel) GetComment() domain.CommentInput {
	return domain.CommentInput{Body: m.Body()}
}

func (m *ReviewViewModel) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return cmd
}

func (m *ReviewViewModel) title() string {
	switch m.mode {
	case ReviewModeApprove:
		return "Approve Pull Request"
	case ReviewModeRequestChanges:
		return "Request Changes"
	case ReviewModeSubmit:
		return "Submit Review"
	default:
		return "Add Comment"
	}
}

func (m *ReviewViewModel) View() string {
	if !m.active {
		return ""
	}

	var b strings.Builder

	titleStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#7C3AED")).
		Bold(true).
		Padding(1, 0)

	b.WriteString(titleStyle.Render(m.title()))
	b.WriteString("\n\n")

	if m.mode == ReviewModeSubmit && len(m.pending) > 0 {
		for _, c := range m.pending {
			b.WriteString(mutedStyle.Render(fmt.Sprintf("  %s:%d  %s", c.Path, c.Line, truncateString(c.Body, 50))))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(m.textarea.View())
	b.WriteString("\n\n")

	help := "Ctrl+S: Submit | Esc: Cancel"
	if m.mode == ReviewModeSubmit {
		help = "Ctrl+S: Comment | Ctrl+A: Approve | Ctrl+R: Request changes | Esc: Cancel"
	}
	b.WriteString(mutedStyle.Render(help))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#7C3AED")).
		Padding(1, 2).
		Width(max(10, m.width-4))

	return boxStyle.Render(b.String())
}
