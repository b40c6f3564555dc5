package testutil

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// MockClock is a settable time source; pass clock.Now wherever a func() time.Time is taken
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewMockClock(start time.Time) *MockClock {
	return &MockClock{now: start}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// LogEntry is one captured log record with its attributes flattened
type LogEntry struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// TestLogger records everything logged through Logger() at every level
type TestLogger struct {
	mu      sync.Mutex
	entries []LogEntry
}

func NewTestLogger() *TestLogger {
	return &TestLogger{}
}

// Logger returns a *slog.Logger writing into l
func (l *TestLogger) Logger() *slog.Logger {
	return slog.New(&captureHandler{sink: l})
}

// Entries returns a copy of the captured records
func (l *TestLogger) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Find returns the first record with the given message
func (l *TestLogger) Find(msg string) (LogEntry, bool) {
	for _, e := range l.Entries() {
		if e.Message == msg {
			return e, true
		}
	}
	return LogEntry{}, false
}

func (l *TestLogger) HasMessage(msg string) bool {
	_, ok := l.Find(msg)
	return ok
}

// HasLevel reports whether anything was logged at exactly level
func (l *TestLogger) HasLevel(level slog.Level) bool {
	for _, e := range l.Entries() {
		if e.Level == level {
			return true
		}
	}
	return false
}

func (l *TestLogger) HasWarning() bool { return l.HasLevel(slog.LevelWarn) }

func (l *TestLogger) HasError() bool { return l.HasLevel(slog.LevelError) }

func (l *TestLogger) add(e LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

// captureHandler feeds a TestLogger. Groups are ignored; attribute keys are kept flat.
type captureHandler struct {
	sink  *TestLogger
	attrs []slog.Attr
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})
	h.sink.add(LogEntry{Level: r.Level, Message: r.Message, Attrs: attrs})
	return nil
}

func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &captureHandler{
		sink:  h.sink,
		attrs: append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *captureHandler) WithGroup(string) slog.Handler {
	return h
}

// TestingT is the part of testing.TB WaitFor needs
type TestingT interface {
	Helper()
	Errorf(format string, args ...any)
}

// WaitFor polls condition every 10ms until it holds or timeout passes.
// On timeout it reports msg through t and returns false.
func WaitFor(t TestingT, condition func() bool, timeout time.Duration, msg string) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if condition() {
			return true
		}
		if time.Now().After(deadline) {
			t.Errorf("timed out after %s waiting for: %s", timeout, msg)
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
}
