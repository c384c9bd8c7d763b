package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestHandlerBuffersRecords(t *testing.T) {
	var out bytes.Buffer
	log := slog.New(NewHandler(&out, slog.LevelInfo))

	before := len(GetLogs())
	log.Info("fetched pull requests", "count", 3)
	log.Debug("dropped at info level")

	logs := GetLogs()
	if len(logs) != before+1 {
		t.Fatalf("GetLogs() has %d new entries, want 1", len(logs)-before)
	}
	last := logs[len(logs)-1]
	if last.Message != "fetched pull requests count=3" {
		t.Errorf("entry message = %q, want %q", last.Message, "fetched pull requests count=3")
	}
	if !strings.Contains(out.String(), "count=3") {
		t.Errorf("text output = %q, want it to contain count=3", out.String())
	}
}

func TestHandlerWithAttrsAndGroup(t *testing.T) {
	var out bytes.Buffer
	log := slog.New(NewHandler(&out, slog.LevelDebug)).With("provider", "gitlab").WithGroup("req")

	log.Debug("sent", "path", "/projects")

	logs := GetLogs()
	got := logs[len(logs)-1].Message
	want := "sent provider=gitlab req.path=/projects"
	if got != want {
		t.Errorf("entry message = %q, want %q", got, want)
	}
}

func TestRingBufferEvictsOldest(t *testing.T) {
	r := newRingBuffer(2)
	r.add(LogEntry{Message: "a"})
	r.add(LogEntry{Message: "b"})
	r.add(LogEntry{Message: "c"})

	got := r.entries()
	if len(got) != 2 || got[0].Message != "b" || got[1].Message != "c" {
		t.Errorf("entries() = %v, want [b c]", got)
	}
}
