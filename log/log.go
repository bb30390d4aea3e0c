// Package log provides the leveled Logger interface used across every
// package in this module. It mirrors the btcsuite/flokicoin convention of a
// package-scoped `var log Logger`, defaulted to Disabled, that callers wire
// up at startup with UseLogger.
package log

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// Level is a logging priority, ordered least to most severe.
type Level uint8

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelCritical
	LevelOff
)

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRC"
	case LevelDebug:
		return "DBG"
	case LevelInfo:
		return "INF"
	case LevelWarn:
		return "WRN"
	case LevelError:
		return "ERR"
	case LevelCritical:
		return "CRT"
	default:
		return "OFF"
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelTrace:
		return slog.Level(-5)
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	case LevelCritical:
		return slog.Level(9)
	default:
		return slog.Level(10)
	}
}

// Logger is the interface every package in this module logs through.
type Logger interface {
	Tracef(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Criticalf(format string, args ...interface{})
	Level() Level
	SetLevel(Level)
}

// Disabled is a Logger that discards everything. It is the default for
// every package-level logger until UseLogger is called.
var Disabled Logger = &slogLogger{level: LevelOff}

type slogLogger struct {
	subsystem string
	level     Level
	handler   *slog.Logger
}

// NewBackend returns a Logger named subsystem that writes through the given
// slog.Logger, starting at LevelInfo.
func NewBackend(subsystem string, handler *slog.Logger) Logger {
	return &slogLogger{subsystem: subsystem, level: LevelInfo, handler: handler}
}

// NewStdoutLogger is a convenience constructor for a text-handler logger
// writing to stderr. cmd/corechaind does not use it; it builds its loggers
// with NewBackend.
func NewStdoutLogger(subsystem string) Logger {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	return NewBackend(subsystem, slog.New(h))
}

func (l *slogLogger) log(lvl Level, format string, args []interface{}) {
	if l.handler == nil || lvl < l.level {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	l.handler.Log(context.Background(), lvl.slogLevel(), msg, slog.String("subsystem", l.subsystem))
}

func (l *slogLogger) Tracef(format string, args ...interface{})    { l.log(LevelTrace, format, args) }
func (l *slogLogger) Debugf(format string, args ...interface{})    { l.log(LevelDebug, format, args) }
func (l *slogLogger) Infof(format string, args ...interface{})     { l.log(LevelInfo, format, args) }
func (l *slogLogger) Warnf(format string, args ...interface{})     { l.log(LevelWarn, format, args) }
func (l *slogLogger) Errorf(format string, args ...interface{})    { l.log(LevelError, format, args) }
func (l *slogLogger) Criticalf(format string, args ...interface{}) { l.log(LevelCritical, format, args) }
func (l *slogLogger) Level() Level                                 { return l.level }
func (l *slogLogger) SetLevel(lvl Level)                           { l.level = lvl }

// LevelFromString parses a log level name, defaulting to LevelInfo and
// false when s is not recognized.
func LevelFromString(s string) (Level, bool) {
	switch s {
	case "trace", "trc":
		return LevelTrace, true
	case "debug", "dbg":
		return LevelDebug, true
	case "info", "inf":
		return LevelInfo, true
	case "warn", "wrn":
		return LevelWarn, true
	case "error", "err":
		return LevelError, true
	case "critical", "crt":
		return LevelCritical, true
	case "off":
		return LevelOff, true
	default:
		return LevelInfo, false
	}
}
