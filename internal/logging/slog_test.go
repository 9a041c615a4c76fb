package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogLogger_Levels(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewSlog(slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	logger.Debug("debug message", "task", "orders")
	logger.Info("info message", "member", "w-1")
	logger.Warn("warning message", "partition", "p1")
	logger.Error("error message", "error", "timeout")

	output := buf.String()
	assert.Contains(t, output, "level=DEBUG")
	assert.Contains(t, output, "task=orders")
	assert.Contains(t, output, "level=INFO")
	assert.Contains(t, output, "member=w-1")
	assert.Contains(t, output, "level=WARN")
	assert.Contains(t, output, "partition=p1")
	assert.Contains(t, output, "level=ERROR")
	assert.Contains(t, output, "error=timeout")
}

func TestSlogLogger_LevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewSlogHandler(buf, "warn", false)

	logger.Debug("debug message")
	logger.Info("info message")
	assert.Empty(t, buf.String())

	logger.Warn("warn message")
	logger.Error("error message")
	output := buf.String()
	assert.Contains(t, output, "warn message")
	assert.Contains(t, output, "error message")
}

func TestNewSlogHandler_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewSlogHandler(buf, "info", true)

	logger.Info("rebalanced", "task", "orders", "members", 2)
	require.Contains(t, buf.String(), `"task":"orders"`)
	require.Contains(t, buf.String(), `"members":2`)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel("info"))
	require.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestNopLogger(t *testing.T) {
	logger := NewNop()

	require.NotPanics(t, func() {
		logger.Debug("test message", "key", "value")
		logger.Info("", nil)
		logger.Warn("message")
		logger.Error("message", "single")
		logger.Fatal("message", "k1", "v1") // must not exit
	})

	require.Same(t, logger, OrNop(logger))
	require.IsType(t, &NopLogger{}, OrNop(nil))
}

func TestWith(t *testing.T) {
	rec := NewTest(t)

	log := With(rec, "task", "orders")
	log = With(log, "member", "w1")
	log.Warn("assignment write failed", "partition", "p3")

	entries := rec.Entries("WARN")
	require.Len(t, entries, 1)
	require.Equal(t, "assignment write failed", entries[0].Msg)
	require.Equal(t, "orders", entries[0].Fields["task"])
	require.Equal(t, "w1", entries[0].Fields["member"])
	require.Equal(t, "p3", entries[0].Fields["partition"])

	require.Same(t, rec, With(rec))
}

func TestTestLogger_Entries(t *testing.T) {
	rec := NewTest(t)
	rec.Info("one")
	rec.Error("two", "dangling")

	require.Len(t, rec.Entries(""), 2)
	errs := rec.Entries("ERROR")
	require.Len(t, errs, 1)
	require.Equal(t, "<missing>", errs[0].Fields["dangling"])
}
