// Package logger provides the levelled, prefixed logger used across
// the mount command and the engine's replay diagnostics. It wraps the
// standard library's log package rather than introducing a structured
// logging dependency -- this module's whole log surface is a handful
// of startup and replay-warning lines, the same scale dittofs's
// internal/logger and akfs's internal/logger cover with the same
// wrapper style.
package logger

import (
	"fmt"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

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

// ParseLevel accepts the usual case-insensitive level names, defaulting
// to LevelInfo for anything unrecognised.
func ParseLevel(s string) Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return LevelDebug
	case "WARN":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger is a small level-filtered wrapper around *log.Logger. It is
// a value the caller owns (not a package-global), so a test or a
// multi-engine process can run several independently.
type Logger struct {
	min    Level
	std    *stdlog.Logger
	prefix string
}

// New builds a Logger writing to os.Stderr with the given minimum
// level and a fixed prefix (typically the component name, e.g.
// "appendfs" or "engine").
func New(min Level, prefix string) *Logger {
	return &Logger{min: min, std: stdlog.New(os.Stderr, "", 0), prefix: prefix}
}

func (l *Logger) emit(level Level, format string, args ...interface{}) {
	if l == nil || level < l.min {
		return
	}
	ts := time.Now().Format("2006-01-02T15:04:05.000Z07:00")
	msg := fmt.Sprintf(format, args...)
	l.std.Printf("%s [%s] %s: %s", ts, level, l.prefix, msg)
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.emit(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.emit(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.emit(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.emit(LevelError, format, args...) }

// ByteSize renders n using humanize's IEC-style formatting, used by the
// mount command's startup log line (configured buffer capacity) instead
// of printing a raw byte count.
func ByteSize(n uint64) string {
	return humanize.IBytes(n)
}
