package logger

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshucs12345/callsim/internal/config"
)

func TestLevels(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"loud", slog.LevelInfo},
	}
	for _, tt := range tests {
		l, err := New(&config.Config{LogLevel: tt.level, LogOutput: "stderr"})
		require.NoError(t, err, tt.level)
		assert.True(t, l.Enabled(t.Context(), tt.want), tt.level)
		assert.False(t, l.Enabled(t.Context(), tt.want-1), tt.level)
	}
}

func TestStandardStreams(t *testing.T) {
	for _, out := range []string{"stdout", "stderr", ""} {
		l, err := New(&config.Config{LogOutput: out})
		require.NoError(t, err)
		assert.Empty(t, l.File())
		assert.NoError(t, l.Close())
		assert.NoError(t, l.Close())
	}
}

func TestJSONFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "callsim.log")
	l, err := New(&config.Config{LogLevel: "warn", LogFormat: "json", LogOutput: path})
	require.NoError(t, err)
	assert.Equal(t, path, l.File())

	l.Info("dropped")
	l.Warn("call ended", "outcome", "hung_up")
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "call ended", entry["msg"])
	assert.Equal(t, "hung_up", entry["outcome"])
}

func TestTextFileAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "callsim.log")
	for _, msg := range []string{"first call", "second call"} {
		l, err := New(&config.Config{LogLevel: "info", LogFormat: "text", LogOutput: path})
		require.NoError(t, err)
		l.Info(msg, "persona", "mum")
		require.NoError(t, l.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	s := string(data)
	assert.Contains(t, s, `msg="first call" persona=mum`)
	assert.Contains(t, s, `msg="second call" persona=mum`)
}

func TestOpenError(t *testing.T) {
	_, err := New(&config.Config{LogOutput: filepath.Join(t.TempDir(), "missing", "x.log")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open log file")
}
