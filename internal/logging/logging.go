// Package logging builds the process logger: slog text lines on stdout and
// appended to a log file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a logger writing to stdout and, when path is not empty, to
// that file opened for append. Close the returned closer on exit.
func New(level, path string) (*slog.Logger, io.Closer, error) {
	return newLogger(os.Stdout, level, path)
}

func newLogger(stdout io.Writer, level, path string) (*slog.Logger, io.Closer, error) {
	var w io.Writer = stdout
	var closer io.Closer = nopCloser{}
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(f, stdout)
		closer = f
	}

	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}
	return slog.New(slog.NewTextHandler(w, opts)), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
