// Package logging defines the diagnostic sink injected into the engine
// and a few ready-made implementations.
package logging

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Level represents the severity of a log message.
type Level int

const (
	// LevelDebug for detailed tracing of engine internals.
	LevelDebug Level = iota
	// LevelInfo for general operational messages.
	LevelInfo
	// LevelWarn for recoverable anomalies, such as a corrupt store file
	// being treated as empty.
	LevelWarn
	// LevelError for failed operations.
	LevelError
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger is the sink the engine reports diagnostics to. Implementations
// must be safe for concurrent use.
type Logger interface {
	Log(level Level, msg string)
}

// Logf formats a message and logs it at the given level. A nil logger
// is a no-op.
func Logf(lg Logger, level Level, format string, args ...any) {
	if lg == nil {
		return
	}
	lg.Log(level, fmt.Sprintf(format, args...))
}

type stdLogger struct {
	l   *log.Logger
	min Level
}

// NewStd wraps a standard library logger. If l is nil, a default logger
// writing to stderr is used. Messages below min are dropped.
func NewStd(l *log.Logger, min Level) Logger {
	if l == nil {
		l = log.New(os.Stderr, "[satchel] ", log.LstdFlags)
	}
	return &stdLogger{l: l, min: min}
}

func (s *stdLogger) Log(level Level, msg string) {
	if level < s.min {
		return
	}
	s.l.Printf("%s %s", level, msg)
}

// NewRotating returns a logger appending to path with size-based
// rotation. Messages below min are dropped.
func NewRotating(path string, min Level) Logger {
	out := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
	}
	return &stdLogger{l: log.New(out, "[satchel] ", log.LstdFlags), min: min}
}

type nopLogger struct{}

func (nopLogger) Log(Level, string) {}

// Nop returns a logger that discards everything.
func Nop() Logger { return nopLogger{} }
