package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/johanforsgren/prdeck/internal/domain"
)

type MergeOption struct {
	Method      domain.MergeMethod
	Label       string
	Description string
}

// mergeOptions lists the canonical methods with the wording each backend
// uses for them.
func mergeOptions(provider domain.ProviderType) []MergeOption {
	switch provider {
	case domain.ProviderAzureDevOps:
		return []MergeOption{
			{domain.MergeMethodMerge, "Merge (no fast-forward)", "Standard merge with merge commit"},
			{domain.MergeMethodSquash, "Squash commit", "Combine all commits into one"},
			{domain.MergeMethodRebase, "Rebase and fast-forward", "Rebase commits onto target branch"},
		}
	case domain.ProviderBitbucket:
		return []MergeOption{
			{domain.MergeMethodMerge, "Merge commit", "Create a merge commit"},
			{domain.MergeMethodSquash, "Squash", "Combine all commits into one"},
			{domain.MergeMethodRebase, "Fast forward", "Move the target branch onto the source"},
		}
	default:
		return []MergeOption{
			{domain.MergeMethodMerge, "Merge commit", "Create a merge commit (preserves all commits)"},
			{domain.MergeMethodSquash, "Squash and merge", "Combine all commits into one"},
			{domain.MergeMethodRebase, "Rebase and merge", "Rebase commits onto target branch"},
		}
	}
}

type MergeViewModel struct {
	active       bool
	width        int
	height       int
	selectedIdx  int
	deleteBranch bool
	options      []MergeOption
	pr           *domain.PullRequest
}

func NewMergeView() *MergeViewModel {
	return &MergeViewModel{}
}

func (m *MergeViewModel) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *MergeViewModel) Activate(pr domain.PullRequest, provider domain.ProviderType) {
	m.active = true
	m.pr = &pr
	m.selectedIdx = 0
	m.deleteBranch = false
	m.options = mergeOptions(provider)
}

func (m *MergeViewModel) Deactivate() {
	m.active = false
	m.pr = nil
	m.selectedIdx = 0
	m.options = nil
}

func (m *MergeViewModel) IsActive() bool {
	return m.active
}

func (m *MergeViewModel) GetPR() *domain.PullRequest {
	return m.pr
}

func (m *MergeViewModel) NextOption() {
	if m.selectedIdx < len(m.options)-1 {
		m.selectedIdx++
	}
}

func (m *MergeViewModel) PrevOption() {
	if m.selectedIdx > 0 {
		m.selectedIdx--
	}
}

func (m *MergeViewModel) ToggleDeleteBranch() {
	m.deleteBranch = !m.deleteBranch
}

func (m *MergeViewModel) GetInput() domain.MergeInput {
	input := domain.MergeInput{DeleteBranch: m.deleteBranch}
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.options) {
		input.Method = m.options[m.selectedIdx].Method
	}
	return input
}

func (m *MergeViewModel) View() string {
	if !m.active || m.pr == nil {
		return ""
	}

	var b strings.Builder

	titleStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#7C3AED")).
		Bold(true).
		Padding(1, 0)

	b.WriteString(titleStyle.Render("Merge Pull Request"))
	b.WriteString("\n\n")

	info := lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	b.WriteString(info.Render(fmt.Sprintf("Title: %s", m.pr.Title)))
	b.WriteString("\n")
	b.WriteString(info.Render(fmt.Sprintf("Branch: %s → %s", m.pr.Head.Ref, m.pr.Base.Ref)))
	b.WriteString("\n\n")

	switch m.pr.Mergeable {
	case domain.MergeableNo:
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true).Render("⚠ Warning: This PR has merge conflicts"))
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("246")).Render("Resolve conflicts before merging"))
	case domain.MergeableYes:
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render("✓ This PR is mergeable"))
	default:
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("246")).Render("? Mergeability not computed yet"))
	}
	b.WriteString("\n\n")

	b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Bold(true).Render("Select merge method:"))
	b.WriteString("\n\n")

	for i, option := range m.options {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
		marker := "○"
		if i == m.selectedIdx {
			style = lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED")).Bold(true)
			marker = "●"
		}

		b.WriteString(style.Render(fmt.Sprintf(" %s %s", marker, option.Label)))
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("246")).PaddingLeft(4).Render(option.Description))
		b.WriteString("\n\n")
	}

	box := "[ ]"
	if m.deleteBranch {
		box = "[x]"
	}
	b.WriteString(fmt.Sprintf(" %s Delete source branch", box))
	b.WriteString("\n\n")
	b.WriteString(mutedStyle.Render("↑↓: Navigate | d: Delete branch | Enter: Confirm | Esc: Cancel"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#7C3AED")).
		Padding(1, 2).
		Width(min(80, max(10, m.width-4)))

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, boxStyle.Render(b.String()))
}
