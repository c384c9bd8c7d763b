package views

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/johanforsgren/prdeck/internal/logger"
)

func fixedLogs(n int) func() []logger.LogEntry {
	return func() []logger.LogEntry {
		out := make([]logger.LogEntry, n)
		for i := range out {
			out[i] = logger.LogEntry{Timestamp: time.Unix(int64(i), 0), Level: slog.LevelInfo, Message: fmt.Sprintf("entry %d", i)}
		}
		return out
	}
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestLogsViewScrolling(t *testing.T) {
	m := NewLogsView()
	m.source = fixedLogs(30)
	m.SetSize(80, 18) // 10 visible lines

	m.Activate()
	if m.Offset() != 20 {
		t.Fatalf("Activate() offset = %d, want 20", m.Offset())
	}

	tests := []struct {
		name string
		msg  tea.KeyMsg
		want int
	}{
		{"down at bottom stays", key("j"), 20},
		{"up", key("k"), 19},
		{"top", key("g"), 0},
		{"up at top stays", key("k"), 0},
		{"page down", tea.KeyMsg{Type: tea.KeyPgDown}, 10},
		{"bottom", key("G"), 20},
		{"page up", tea.KeyMsg{Type: tea.KeyPgUp}, 10},
	}
	for _, tt := range tests {
		m.Update(tt.msg)
		if m.Offset() != tt.want {
			t.Errorf("%s: offset = %d, want %d", tt.name, m.Offset(), tt.want)
		}
	}
}

func TestLogsViewShortBuffer(t *testing.T) {
	m := NewLogsView()
	m.source = fixedLogs(3)
	m.SetSize(80, 18)

	m.Activate()
	m.Update(key("G"))
	if m.Offset() != 0 {
		t.Errorf("offset = %d, want 0", m.Offset())
	}
}

func TestLevelColor(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  string
	}{
		{slog.LevelError, "#EF4444"},
		{slog.LevelWarn, "#F59E0B"},
		{slog.LevelInfo, "#E5E7EB"},
		{slog.LevelDebug, "#6B7280"},
	}
	for _, tt := range tests {
		if got := levelColor(tt.level); got != tt.want {
			t.Errorf("levelColor(%s) = %s, want %s", tt.level, got, tt.want)
		}
	}
}
