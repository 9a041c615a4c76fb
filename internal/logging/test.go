package logging

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/arloliu/fabric/types"
)

// TestLogger implements types.Logger using testing.T for output and keeps
// every entry so tests can assert on logged failures.
type TestLogger struct {
	t       testing.TB
	mu      sync.Mutex
	entries []Entry
}

// Entry is one recorded log line.
type Entry struct {
	Level  string
	Msg    string
	Fields map[string]any
}

var _ types.Logger = (*TestLogger)(nil)

// NewTest creates a new test logger that writes to t.
func NewTest(t testing.TB) *TestLogger {
	return &TestLogger{t: t}
}

func (l *TestLogger) log(level, msg string, kv []any) {
	fields := make(map[string]any, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		if i+1 < len(kv) {
			fields[key] = kv[i+1]
		} else {
			fields[key] = "<missing>"
		}
	}

	l.mu.Lock()
	l.entries = append(l.entries, Entry{Level: level, Msg: msg, Fields: fields})
	l.mu.Unlock()

	l.t.Logf("%s: %s %s", level, msg, formatKeyValues(kv))
}

// Debug logs a debug-level message with optional key-value pairs.
func (l *TestLogger) Debug(msg string, keysAndValues ...any) {
	l.log("DEBUG", msg, keysAndValues)
}

// Info logs an info-level message with optional key-value pairs.
func (l *TestLogger) Info(msg string, keysAndValues ...any) {
	l.log("INFO", msg, keysAndValues)
}

// Warn logs a warning-level message with optional key-value pairs.
func (l *TestLogger) Warn(msg string, keysAndValues ...any) {
	l.log("WARN", msg, keysAndValues)
}

// Error logs an error-level message with optional key-value pairs.
func (l *TestLogger) Error(msg string, keysAndValues ...any) {
	l.log("ERROR", msg, keysAndValues)
}

// Fatal logs a fatal-level message and fails the test.
func (l *TestLogger) Fatal(msg string, keysAndValues ...any) {
	l.t.Fatalf("FATAL: %s %s", msg, formatKeyValues(keysAndValues))
}

// Entries returns a copy of the recorded entries, optionally filtered by level.
func (l *TestLogger) Entries(level string) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		if level == "" || e.Level == level {
			out = append(out, e)
		}
	}

	return out
}

func formatKeyValues(keysAndValues []any) string {
	if len(keysAndValues) == 0 {
		return ""
	}

	var sb strings.Builder
	for i := 0; i < len(keysAndValues); i += 2 {
		if i+1 < len(keysAndValues) {
			fmt.Fprintf(&sb, "%v=%v ", keysAndValues[i], keysAndValues[i+1])
		} else {
			fmt.Fprintf(&sb, "%v=<missing> ", keysAndValues[i])
		}
	}

	return sb.String()
}
