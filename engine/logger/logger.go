// Package logger provides the structured loggers shared by the engine subsystems. Every subsystem
// receives a *log.Logger through its builder options and falls back to Default() when none is given.
package logger

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var (
	once          sync.Once
	defaultLogger *log.Logger
)

// Default returns the process-wide logger, creating it on first use.
//
// Returns:
//   - *log.Logger: the shared logger writing to stderr
func Default() *log.Logger {
	once.Do(func() {
		defaultLogger = New(os.Stderr, "prism")
	})
	return defaultLogger
}

// New creates a logger that reports timestamps in RFC3339 and tags every line with prefix.
//
// Parameters:
//   - w: destination of the log output
//   - prefix: the prefix printed before each message
//
// Returns:
//   - *log.Logger: the configured logger at info level
func New(w io.Writer, prefix string) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Prefix:          prefix,
	})
}

// Sub derives a child logger from parent with an additional prefix segment, e.g. "prism/scene".
// A nil parent derives from Default().
//
// Parameters:
//   - parent: the logger to derive from
//   - name: the subsystem name appended to the prefix
//
// Returns:
//   - *log.Logger: the child logger sharing the parent's output and level
func Sub(parent *log.Logger, name string) *log.Logger {
	if parent == nil {
		parent = Default()
	}
	child := parent.WithPrefix(joinPrefix(parent.GetPrefix(), name))
	return child
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *log.Logger {
	l := New(io.Discard, "")
	l.SetLevel(log.FatalLevel)
	return l
}

// SetDebug toggles debug level output on the default logger.
func SetDebug(enabled bool) {
	if enabled {
		Default().SetLevel(log.DebugLevel)
		return
	}
	Default().SetLevel(log.InfoLevel)
}

func joinPrefix(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
