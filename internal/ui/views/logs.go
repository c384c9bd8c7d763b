package views

import (
	"fmt"
	"log/slog"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/johanforsgren/prdeck/internal/logger"
)

type LogsViewModel struct {
	width  int
	height int
	offset int
	active bool
	logs   []logger.LogEntry
	source func() []logger.LogEntry
}

func NewLogsView() *LogsViewModel {
	return &LogsViewModel{source: logger.GetLogs}
}

func (m *LogsViewModel) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *LogsViewModel) Activate() {
	m.active = true
	m.logs = m.source()
	m.offset = m.maxOffset()
}

func (m *LogsViewModel) Deactivate() {
	m.active = false
	m.offset = 0
}

func (m *LogsViewModel) IsActive() bool {
	return m.active
}

func (m *LogsViewModel) visibleLines() int {
	return max(1, m.height-8)
}

func (m *LogsViewModel) maxOffset() int {
	return max(0, len(m.logs)-m.visibleLines())
}

func (m *LogsViewModel) Offset() int {
	return m.offset
}

func (m *LogsViewModel) Update(msg tea.Msg) tea.Cmd {
	if !m.active {
		return nil
	}

	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "up", "k":
			m.offset = max(0, m.offset-1)
		case "down", "j":
			m.offset = min(m.maxOffset(), m.offset+1)
		case "pgup":
			m.offset = max(0, m.offset-m.visibleLines())
		case "pgdown":
			m.offset = min(m.maxOffset(), m.offset+m.visibleLines())
		case "g", "home":
			m.offset = 0
		case "G", "end":
			m.offset = m.maxOffset()
		}
	}
	return nil
}

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "#EF4444"
	case level >= slog.LevelWarn:
		return "#F59E0B"
	case level < slog.LevelInfo:
		return "#6B7280"
	default:
		return "#E5E7EB"
	}
}

func (m *LogsViewModel) View() string {
	if !m.active {
		return ""
	}

	var b strings.Builder

	titleStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#7C3AED")).
		Bold(true).
		Padding(1, 0)

	b.WriteString(titleStyle.Render(fmt.Sprintf("Session Logs (%d entries)", len(m.logs))))
	b.WriteString("\n\n")

	if len(m.logs) == 0 {
		b.WriteString(mutedStyle.Render("No logs yet"))
	} else {
		end := min(len(m.logs), m.offset+m.visibleLines())
		for _, entry := range m.logs[m.offset:end] {
			style := lipgloss.NewStyle().Foreground(lipgloss.Color(levelColor(entry.Level)))
			b.WriteString(style.Render(fmt.Sprintf("[%s] %-5s %s", entry.Timestamp.Format("15:04:05.000"), entry.Level, entry.Message)))
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")

	scrollInfo := ""
	if len(m.logs) > m.visibleLines() {
		scrollInfo = fmt.Sprintf(" | Showing %d-%d of %d", m.offset+1, min(len(m.logs), m.offset+m.visibleLines()), len(m.logs))
	}
	b.WriteString(mutedStyle.Render("j/k: Scroll | PgUp/PgDn: Page | g/G: Top/Bottom | Esc: Close" + scrollInfo))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#7C3AED")).
		Padding(1, 2).
		Width(max(10, m.width-4))

	return boxStyle.Render(b.String())
}
