package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

const maxBufferSize = 1000

var (
	mu      sync.Mutex
	logFile *os.File
	ring    = newRingBuffer(maxBufferSize)
)

type LogEntry struct {
	Timestamp time.Time
	Level     slog.Level
	Message   string
}

func (e LogEntry) String() string {
	return fmt.Sprintf("%s [%s] %s", e.Timestamp.Format("15:04:05"), e.Level, e.Message)
}

// Init installs a default slog logger that writes text records to logPath and
// keeps the most recent records in memory for the UI log view. An empty path
// keeps only the in-memory buffer.
func Init(logPath string, level slog.Level) error {
	mu.Lock()
	defer mu.Unlock()

	var out io.Writer = io.Discard
	if logPath != "" {
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		if logFile != nil {
			_ = logFile.Close()
		}
		logFile = file
		out = file
	}

	slog.SetDefault(slog.New(NewHandler(out, level)))
	return nil
}

func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// GetLogs returns a copy of the buffered records, oldest first.
func GetLogs() []LogEntry {
	return ring.entries()
}

type ringBuffer struct {
	mu      sync.Mutex
	size    int
	records []LogEntry
}

func newRingBuffer(size int) *ringBuffer {
	return &ringBuffer{size: size, records: make([]LogEntry, 0, size)}
}

func (r *ringBuffer) add(e LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.records) >= r.size {
		r.records = r.records[1:]
	}
	r.records = append(r.records, e)
}

func (r *ringBuffer) entries() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]LogEntry, len(r.records))
	copy(out, r.records)
	return out
}

// Handler fans records out to a text handler and the in-memory ring buffer.
type Handler struct {
	next  slog.Handler
	ring  *ringBuffer
	// bound holds attributes rendered by WithAttrs.
	bound string
	group string
}

func NewHandler(w io.Writer, level slog.Level) *Handler {
	return &Handler{
		next: slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}),
		ring: ring,
	}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Message)
	b.WriteString(h.bound)
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.group, a)
		return true
	})
	h.ring.add(LogEntry{Timestamp: r.Time, Level: r.Level, Message: b.String()})
	return h.next.Handle(ctx, r)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.next = h.next.WithAttrs(attrs)
	var b strings.Builder
	b.WriteString(h.bound)
	for _, a := range attrs {
		writeAttr(&b, h.group, a)
	}
	clone.bound = b.String()
	return &clone
}

func (h *Handler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.next = h.next.WithGroup(name)
	if h.group != "" {
		clone.group = h.group + "." + name
	} else {
		clone.group = name
	}
	return &clone
}

func writeAttr(b *strings.Builder, group string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	b.WriteByte(' ')
	if group != "" {
		b.WriteString(group)
		b.WriteByte('.')
	}
	b.WriteString(a.Key)
	b.WriteByte('=')
	b.WriteString(a.Value.Resolve().String())
}
