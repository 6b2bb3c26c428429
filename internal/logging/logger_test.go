package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"Warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLog_FormatAndThreshold(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelInfo)
	l.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	l.Log(LevelDebug, "engine", "hidden")
	l.Log(LevelWarn, "engine", "retry item=%s attempt=%d\n", "A", 2)

	assert.Equal(t, "2026-01-02T03:04:05Z WARN engine: retry item=A attempt=2\n", buf.String())
}

func TestDiscard(t *testing.T) {
	l := Discard()
	assert.False(t, l.Enabled(LevelError))
	l.Log(LevelError, "x", "nothing")

	var nilLogger *Logger
	assert.False(t, nilLogger.Enabled(LevelError))
	assert.NoError(t, nilLogger.Close())
}

func TestOpen_AppendsToFile(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, LevelDebug)
	require.NoError(t, err)
	l.Log(LevelInfo, "cli", "hello")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(filepath.Join(dir, "logs", "baton.log"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(data), "INFO cli: hello\n"), string(data))
}
