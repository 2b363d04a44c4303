// Package logger builds the process logger from the callsim config.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/keshucs12345/callsim/internal/config"
)

// Logger is the process logger and the log file it owns, if any.
type Logger struct {
	*slog.Logger

	file      *os.File
	closeOnce sync.Once
	closeErr  error
}

// New returns a Logger writing records at cfg.LogLevel and above to
// cfg.LogOutput in cfg.LogFormat. Values config validation would reject
// fall back to info, text and stderr.
func New(cfg *config.Config) (*Logger, error) {
	l := &Logger{}

	var w io.Writer
	switch cfg.LogOutput {
	case "stdout":
		w = os.Stdout
	case "stderr", "":
		w = os.Stderr
	default:
		f, err := os.OpenFile(cfg.LogOutput, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		l.file, w = f, f
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.LogFormat == "json" {
		l.Logger = slog.New(slog.NewJSONHandler(w, opts))
	} else {
		l.Logger = slog.New(slog.NewTextHandler(w, opts))
	}
	return l, nil
}

// File returns the path of the log file, or "" when logging to a standard
// stream.
func (l *Logger) File() string {
	if l.file == nil {
		return ""
	}
	return l.file.Name()
}

// Close closes the log file. Later calls return the first result; loggers
// on stdout or stderr have nothing to close.
func (l *Logger) Close() error {
	l.closeOnce.Do(func() {
		if l.file != nil {
			l.closeErr = l.file.Close()
		}
	})
	return l.closeErr
}
