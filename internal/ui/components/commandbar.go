package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const maxHistory = 50

// CommandBarModel is the ":" prompt. Up and down walk through earlier
// commands of the session.
type CommandBarModel struct {
	textInput textinput.Model
	width     int
	active    bool
	history   []string
	cursor    int
}

func NewCommandBar() *CommandBarModel {
	ti := textinput.New()
	ti.Placeholder = "mine | reviews | involved | all | state closed | refresh | logs | quit"
	ti.CharLimit = 256
	ti.Width = 50

	return &CommandBarModel{textInput: ti}
}

func (m *CommandBarModel) SetWidth(width int) {
	m.width = width
	if width > 10 {
		m.textInput.Width = width - 10
	}
}

func (m *CommandBarModel) Activate() {
	m.active = true
	m.cursor = len(m.history)
	m.textInput.Focus()
	m.textInput.SetValue(":")
	m.textInput.CursorEnd()
}

func (m *CommandBarModel) Deactivate() {
	m.active = false
	m.textInput.Blur()
	m.textInput.SetValue("")
}

func (m *CommandBarModel) IsActive() bool {
	return m.active
}

func (m *CommandBarModel) Value() string {
	return m.textInput.Value()
}

// Submit records the current input in the history and returns it.
func (m *CommandBarModel) Submit() string {
	v := strings.TrimSpace(m.textInput.Value())
	if v != "" && v != ":" {
		if n := len(m.history); n == 0 || m.history[n-1] != v {
			m.history = append(m.history, v)
		}
		if len(m.history) > maxHistory {
			m.history = m.history[len(m.history)-maxHistory:]
		}
	}
	m.Deactivate()
	return v
}

func (m *CommandBarModel) History() []string {
	return m.history
}

func (m *CommandBarModel) Update(msg tea.Msg) tea.Cmd {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "up":
			if m.cursor > 0 {
				m.cursor--
				m.textInput.SetValue(m.history[m.cursor])
				m.textInput.CursorEnd()
			}
			return nil
		case "down":
			if m.cursor < len(m.history)-1 {
				m.cursor++
				m.textInput.SetValue(m.history[m.cursor])
			} else {
				m.cursor = len(m.history)
				m.textInput.SetValue(":")
			}
			m.textInput.CursorEnd()
			return nil
		}
	}

	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	return cmd
}

func (m *CommandBarModel) View() string {
	if !m.active {
		return ""
	}

	style := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#F9FAFB")).
		Background(lipgloss.Color("#1F2937")).
		Border(lipgloss.NormalBorder(), true, false, false, false).
		BorderForeground(lipgloss.Color("#7C3AED")).
		Width(m.width)

	return style.Render(" " + m.textInput.View())
}
