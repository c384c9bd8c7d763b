package ui

import (
	"fmt"
	"log/slog"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/johanforsgren/prdeck/internal/domain"
	"github.com/johanforsgren/prdeck/internal/provider/common"
	"github.com/johanforsgren/prdeck/internal/ui/views"
)

type CommandType int

const (
	CommandUnknown CommandType = iota
	CommandQuit
	CommandRefresh
	CommandList
	CommandState
	CommandRepo
	CommandLogs
	CommandHelp
)

type Command struct {
	Type CommandType
	Args []string
}

func ParseCommand(input string) Command {
	input = strings.TrimSpace(input)

	if !strings.HasPrefix(input, ":") {
		return Command{Type: CommandUnknown}
	}

	parts := strings.Fields(strings.TrimPrefix(input, ":"))
	if len(parts) == 0 {
		return Command{Type: CommandUnknown}
	}

	cmd := parts[0]
	args := parts[1:]

	switch cmd {
	case "q", "quit":
		return Command{Type: CommandQuit, Args: args}
	case "r", "refresh":
		return Command{Type: CommandRefresh, Args: args}
	case "mine", "reviews", "involved", "all":
		return Command{Type: CommandList, Args: []string{cmd}}
	case "s", "state":
		return Command{Type: CommandState, Args: args}
	case "repo":
		return Command{Type: CommandRepo, Args: args}
	case "logs":
		return Command{Type: CommandLogs, Args: args}
	case "h", "help":
		return Command{Type: CommandHelp, Args: args}
	default:
		return Command{Type: CommandUnknown, Args: append([]string{cmd}, args...)}
	}
}

type keyHandler func(m Model) (Model, tea.Cmd)

type binding struct {
	key     string
	help    string
	handler keyHandler
}

// CommandRegistry maps keys to actions per view and runs ":" commands.
type CommandRegistry struct {
	bindings map[ViewState][]binding
}

func NewCommandRegistry() *CommandRegistry {
	r := &CommandRegistry{bindings: make(map[ViewState][]binding)}

	r.bind(ViewPRList, "enter", "Inspect", func(m Model) (Model, tea.Cmd) { return m.openSelected() })
	r.bind(ViewPRList, "/", "Filter", func(m Model) (Model, tea.Cmd) {
		m.prListView.ActivateFilter()
		return m, nil
	})
	r.bind(ViewPRList, "esc", "Clear filter", func(m Model) (Model, tea.Cmd) {
		m.prListView.ClearFilter()
		return m, nil
	})
	r.bind(ViewPRList, "P", "Prefetch", func(m Model) (Model, tea.Cmd) { return m, m.prefetchSelected() })
	r.bind(ViewPRList, "r", "Refresh", func(m Model) (Model, tea.Cmd) { return m.refresh() })
	r.bind(ViewPRList, "q", "Quit", func(m Model) (Model, tea.Cmd) { return m, tea.Quit })

	r.bind(ViewPRInspect, "i", "Inline comment", func(m Model) (Model, tea.Cmd) { return m.openInlineComment() })
	r.bind(ViewPRInspect, "C", "Comment", func(m Model) (Model, tea.Cmd) { return m.openReview(views.ReviewModeComment) })
	r.bind(ViewPRInspect, "a", "Approve", func(m Model) (Model, tea.Cmd) { return m.openReview(views.ReviewModeApprove) })
	r.bind(ViewPRInspect, "x", "Request changes", func(m Model) (Model, tea.Cmd) { return m.openReview(views.ReviewModeRequestChanges) })
	r.bind(ViewPRInspect, "R", "Submit review", func(m Model) (Model, tea.Cmd) { return m.openReview(views.ReviewModeSubmit) })
	r.bind(ViewPRInspect, "m", "Merge", func(m Model) (Model, tea.Cmd) { return m.openMerge() })
	r.bind(ViewPRInspect, "r", "Refresh", func(m Model) (Model, tea.Cmd) { return m.refresh() })
	r.bind(ViewPRInspect, "esc", "Back", func(m Model) (Model, tea.Cmd) { return m.navigateBack() })
	r.bind(ViewPRInspect, "q", "Back", func(m Model) (Model, tea.Cmd) { return m.navigateBack() })

	return r
}

func (r *CommandRegistry) bind(state ViewState, key, help string, h keyHandler) {
	r.bindings[state] = append(r.bindings[state], binding{key: key, help: help, handler: h})
}

// HandleKey runs the binding of key in the current view, if any.
func (r *CommandRegistry) HandleKey(m Model, key string) (Model, tea.Cmd, bool) {
	switch key {
	case "ctrl+c":
		return m, tea.Quit, true
	case ":":
		m.commandBar.Activate()
		return m, nil, true
	}

	for _, b := range r.bindings[m.state] {
		if b.key == key {
			m, cmd := b.handler(m)
			return m, cmd, true
		}
	}
	return m, nil, false
}

// ExecuteCommand runs one line typed into the command bar.
func (r *CommandRegistry) ExecuteCommand(m Model, input string) (Model, tea.Cmd) {
	cmd := ParseCommand(input)
	slog.Info("ui: executing command", "input", input, "type", cmd.Type)

	switch cmd.Type {
	case CommandQuit:
		return m, tea.Quit

	case CommandRefresh:
		return m.refresh()

	case CommandList:
		m.mode = ListMode(cmd.Args[0])
		m.state = ViewPRList
		return m, m.loadPRs()

	case CommandState:
		if len(cmd.Args) != 1 {
			m.statusBar.SetMessage("usage: :state open|closed|all", true)
			return m, nil
		}
		switch s := domain.StateFilter(cmd.Args[0]); s {
		case domain.StateFilterOpen, domain.StateFilterClosed, domain.StateFilterAll:
			m.stateFilter = s
			m.state = ViewPRList
			return m, m.loadPRs()
		}
		m.statusBar.SetMessage(fmt.Sprintf("unknown state %q", cmd.Args[0]), true)
		return m, nil

	case CommandRepo:
		if len(cmd.Args) != 1 {
			m.statusBar.SetMessage("usage: :repo owner/name", true)
			return m, nil
		}
		owner, repo, err := common.ParseRepository(cmd.Args[0])
		if err != nil {
			m.statusBar.SetError(err)
			return m, nil
		}
		m.owner, m.repo = owner, repo
		m.state = ViewPRList
		m.topBar.SetRepo(owner + "/" + repo)
		return m, m.loadPRs()

	case CommandLogs:
		m.logsView.Activate()
		return m, nil

	case CommandHelp:
		m.statusBar.SetMessage(":mine :reviews :involved :all | :state open|closed|all | :repo owner/name | :refresh | :logs | :q", false)
		return m, nil
	}

	m.statusBar.SetMessage(fmt.Sprintf("unknown command: %s", strings.TrimPrefix(strings.TrimSpace(input), ":")), true)
	return m, nil
}

// GetContextualShortcuts lists the bindings of a view as "<key> help".
func (r *CommandRegistry) GetContextualShortcuts(state ViewState) []string {
	seen := make(map[string]bool)
	out := []string{"<:> Command"}
	for _, b := range r.bindings[state] {
		if seen[b.help] {
			continue
		}
		seen[b.help] = true
		out = append(out, fmt.Sprintf("<%s> %s", b.key, b.help))
	}
	return out
}
