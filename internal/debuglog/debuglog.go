// Package debuglog provides an append-only debug line sink. Writes are
// best-effort: a failure to log must never fail a trading operation, so
// write errors are swallowed.
package debuglog

import (
	"fmt"
	"io"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger appends timestamped lines to a rotating log file.
type Logger struct {
	mu   sync.Mutex
	sink io.WriteCloser
	now  func() time.Time
}

// Options configures the rotating file sink.
type Options struct {
	Path       string
	MaxSizeMB  int // rotate after this many megabytes; 0 selects 20
	MaxBackups int // rotated files to keep; 0 selects 3
}

// New creates a Logger appending to the rotating file at opts.Path.
func New(opts Options) *Logger {
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 20
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 3
	}
	return &Logger{
		sink: &lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
		},
		now: time.Now,
	}
}

// NewWithSink creates a Logger on an arbitrary sink. Used by tests.
func NewWithSink(sink io.WriteCloser) *Logger {
	return &Logger{sink: sink, now: time.Now}
}

// Printf appends one formatted line. Errors from the sink are swallowed.
func (l *Logger) Printf(format string, args ...any) {
	if l == nil {
		return
	}
	line := fmt.Sprintf("%s %s\n", l.now().UTC().Format(time.RFC3339), fmt.Sprintf(format, args...))

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.sink, line)
}

// Close flushes and closes the underlying sink.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sink.Close()
}
