// Package logging provides a level-gated logger for bitchat-core,
// grounded on the teacher's device/logger.go Silent/Error/Info/Debug
// level design but backed by stdlib log/slog instead of three
// independently-gated log.Logger instances, since slog gives structured
// key/value fields without a third-party dependency (see SPEC_FULL.md's
// Ambient Stack section).
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Level mirrors the teacher's LogLevelSilent/Error/Info/Debug scale.
type Level int

const (
	LevelSilent Level = iota
	LevelError
	LevelInfo
	LevelDebug
)

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelError + 1
	}
}

// Logger wraps an *slog.Logger gated at construction time to the
// requested Level, matching the teacher's NewLogger(level, prepend).
type Logger struct {
	*slog.Logger
	level Level
}

// New builds a Logger writing JSON lines to writerFor(level) at or above
// level, tagged
// with a "component" field set to prepend.
func New(level Level, prepend string) *Logger {
	if prepend == "" {
		prepend = "bitchat"
	}
	handler := slog.NewJSONHandler(writerFor(level), &slog.HandlerOptions{
		Level: level.slogLevel(),
	})
	base := slog.New(handler).With("component", prepend)
	return &Logger{Logger: base, level: level}
}

func writerFor(level Level) io.Writer {
	if level == LevelSilent {
		return io.Discard
	}
	return os.Stdout
}

// Level returns the level this logger was constructed with.
func (l *Logger) Level() Level { return l.level }

// With returns a child Logger with additional structured fields, keeping
// the same level gate.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), level: l.level}
}
