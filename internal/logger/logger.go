package logger

import (
	"io"
	"log"
)

// Logger defines the logging contract shared by the store and the CLI.
// Implementations should support standard log levels and be safe for concurrent use.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}

// Level is the minimum severity a StdLogger writes.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a flag value to a Level. Unknown names fall back to LevelInfo.
func ParseLevel(name string) Level {
	switch name {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	}
	return LevelInfo
}

// StdLogger wraps Go's standard logger and drops messages below its level.
type StdLogger struct {
	logger *log.Logger
	level  Level
}

// New creates a StdLogger writing to w.
func New(w io.Writer, level Level) *StdLogger {
	return &StdLogger{
		logger: log.New(w, "", log.LstdFlags),
		level:  level,
	}
}

func (l *StdLogger) Info(msg string, args ...any) {
	l.write(LevelInfo, "[INFO] ", msg, args)
}

func (l *StdLogger) Warn(msg string, args ...any) {
	l.write(LevelWarn, "[WARN] ", msg, args)
}

func (l *StdLogger) Error(msg string, args ...any) {
	l.write(LevelError, "[ERROR] ", msg, args)
}

func (l *StdLogger) Debug(msg string, args ...any) {
	l.write(LevelDebug, "[DEBUG] ", msg, args)
}

func (l *StdLogger) write(level Level, tag, msg string, args []any) {
	if level < l.level {
		return
	}
	l.logger.Printf(tag+msg, args...)
}

type discard struct{}

func (discard) Info(string, ...any)  {}
func (discard) Warn(string, ...any)  {}
func (discard) Error(string, ...any) {}
func (discard) Debug(string, ...any) {}

// Discard is a Logger that writes nothing.
var Discard Logger = discard{}
