package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/johanforsgren/prdeck/internal/provider/common"
	"github.com/johanforsgren/prdeck/internal/query"
)

type StatusBarModel struct {
	width     int
	message   string
	isError   bool
	retryable bool
	pending   int
}

func NewStatusBar() *StatusBarModel {
	return &StatusBarModel{}
}

func (m *StatusBarModel) SetWidth(width int) {
	m.width = width
}

func (m *StatusBarModel) SetMessage(message string, isError bool) {
	m.message = message
	m.isError = isError
	m.retryable = false
}

// SetError shows err the way users should read it, with a retry hint when
// trying again can help.
func (m *StatusBarModel) SetError(err error) {
	m.message = common.ExtractErrorMessage(err)
	m.isError = true
	m.retryable = query.IsRetryable(err)
}

func (m *StatusBarModel) IsError() bool {
	return m.isError
}

func (m *StatusBarModel) ClearMessage() {
	m.message = ""
	m.isError = false
	m.retryable = false
}

// Begin and Done count requests in flight for the loading indicator.
func (m *StatusBarModel) Begin() { m.pending++ }

func (m *StatusBarModel) Done() {
	if m.pending > 0 {
		m.pending--
	}
}

func (m *StatusBarModel) Pending() int {
	return m.pending
}

func (m *StatusBarModel) Text() string {
	var b strings.Builder
	if m.pending > 0 {
		b.WriteString("⏳ ")
	}
	b.WriteString(m.message)
	if m.retryable {
		b.WriteString(" (r to retry)")
	}
	return b.String()
}

func (m *StatusBarModel) View() string {
	content := " " + m.Text()

	if m.width > 3 && lipgloss.Width(content) > m.width {
		runes := []rune(content)
		if len(runes) > m.width-3 {
			content = string(runes[:m.width-3]) + "..."
		}
	}

	bgColor := lipgloss.Color("#374151")
	if m.isError {
		bgColor = lipgloss.Color("#991B1B")
	}

	style := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#F9FAFB")).
		Background(bgColor).
		Width(m.width)

	return style.Render(content)
}
