// Package logging configures the process logger and writes crash reports.
//
// Logs always go to stderr, never stdout, because stdout carries the bar
// protocol.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"
)

// Options selects the logger's level and sinks.
type Options struct {
	// Level is debug, info, warn or error. Empty means info.
	Level string
	// Verbose forces debug.
	Verbose bool
	// File is an extra sink, opened for append.
	File string
	// Stderr defaults to os.Stderr.
	Stderr io.Writer
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}

// New builds a text logger. The returned closer releases the log file and
// is never nil.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	if opts.Verbose {
		level = slog.LevelDebug
	}

	var w io.Writer = opts.Stderr
	if w == nil {
		w = os.Stderr
	}
	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(w, f)
		closer = f
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// CrashFile is the crash report name inside the temp directory.
const CrashFile = "i3-dstatus-crash.log"

// WriteCrashReport appends a timestamped report for err to CrashFile in
// dir (the temp directory when empty) and returns its path. stack may be
// nil, in which case the current goroutine's stack is used.
func WriteCrashReport(dir string, err error, stack []byte) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if stack == nil {
		stack = debug.Stack()
	}
	path := filepath.Join(dir, CrashFile)
	f, openErr := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if openErr != nil {
		return "", fmt.Errorf("open crash report: %w", openErr)
	}
	defer f.Close()

	fmt.Fprintf(f, "=== i3-dstatus crash %s ===\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(f, "error: %v\n\n%s\n", err, stack)
	return path, nil
}
