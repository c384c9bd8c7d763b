package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const topBarRows = 4

type TopBarModel struct {
	width     int
	account   string
	provider  string
	viewer    string
	repo      string
	list      string
	counts    RoleCounts
	currentPR string
	prStatus  string
	view      string
	shortcuts []string
}

// RoleCounts breaks the shown list down by how the viewer relates to each
// pull request.
type RoleCounts struct {
	Total    int
	Authored int
	Review   int
	Assigned int
}

var (
	titleStyle        = lipgloss.NewStyle().Padding(1, 2)
	titleOrangeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	valueWhiteStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	shortcutBlueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("33")).Bold(true)
	descGrayStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
)

func NewTopBar() *TopBarModel {
	return &TopBarModel{}
}

func (m *TopBarModel) SetWidth(width int) {
	m.width = width
}

func (m *TopBarModel) SetAccount(name, provider, viewer string) {
	m.account = name
	m.provider = provider
	m.viewer = viewer
}

func (m *TopBarModel) SetRepo(repo string) {
	m.repo = repo
}

func (m *TopBarModel) SetList(name string, counts RoleCounts) {
	m.list = name
	m.counts = counts
}

func (m *TopBarModel) SetPR(number, status string) {
	m.currentPR = number
	m.prStatus = status
}

func (m *TopBarModel) SetView(view string) {
	m.view = view
}

func (m *TopBarModel) SetShortcuts(shortcuts []string) {
	m.shortcuts = shortcuts
}

func (m *TopBarModel) label(name, value string) string {
	return titleOrangeStyle.Render(name+": ") + valueWhiteStyle.Render(value)
}

func (m *TopBarModel) contextLines() []string {
	account := "none"
	if m.account != "" {
		account = fmt.Sprintf("%s (%s)", m.account, m.provider)
		if m.viewer != "" {
			account += " as " + m.viewer
		}
	}

	lines := []string{
		"🔑 " + m.label("Account", account),
		"📦 " + m.label("Repo", m.repo),
	}

	if m.currentPR != "" {
		lines = append(lines, "📋 "+m.label("PR", "#"+m.currentPR+" "+m.prStatus))
	} else {
		c := m.counts
		lines = append(lines, "📋 "+m.label(m.list, fmt.Sprintf("%d", c.Total))+
			descGrayStyle.Render(fmt.Sprintf("  ✎ %d  → %d  ◆ %d", c.Authored, c.Review, c.Assigned)))
	}
	lines = append(lines, "🎯 "+m.label("View", m.view))
	return lines
}

func (m *TopBarModel) View() string {
	const contextColWidth = 50

	context := m.contextLines()
	var shortcuts []string
	for _, s := range m.shortcuts {
		key, desc, ok := strings.Cut(s, ">")
		if !ok {
			continue
		}
		shortcuts = append(shortcuts, shortcutBlueStyle.Render(key+">")+" "+descGrayStyle.Render(strings.TrimSpace(desc)))
	}

	rows := []string{titleOrangeStyle.Render("prdeck"), ""}
	for i := 0; i < topBarRows; i++ {
		var left, right string
		if i < len(context) {
			left = context[i]
		}
		for j := i; j < len(shortcuts); j += topBarRows {
			right += shortcuts[j] + "   "
		}
		pad := max(1, contextColWidth-lipgloss.Width(left))
		rows = append(rows, left+strings.Repeat(" ", pad)+right)
	}

	return titleStyle.Width(m.width).Render(strings.Join(rows, "\n"))
}
