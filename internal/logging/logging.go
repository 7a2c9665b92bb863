// Package logging wraps logrus behind a small package-level facade so the
// rest of the codebase does not bind to a concrete logger, and wires optional
// file rotation via lumberjack.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var std = logrus.StandardLogger()

// Options controls logger initialization.
type Options struct {
	Level string
	// File enables rotated file output when non-empty.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Configure applies the given options to the shared logger.
func Configure(opts Options) {
	level, err := logrus.ParseLevel(strings.TrimSpace(opts.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	std.SetLevel(level)
	std.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	if opts.File == "" {
		std.SetOutput(os.Stderr)
		return
	}
	rotator := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    valueOr(opts.MaxSizeMB, 100),
		MaxBackups: valueOr(opts.MaxBackups, 3),
		MaxAge:     valueOr(opts.MaxAgeDays, 28),
		Compress:   true,
	}
	std.SetOutput(io.MultiWriter(os.Stderr, rotator))
}

func valueOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// SetLevel changes the shared logger level at runtime (config hot reload).
func SetLevel(level string) {
	parsed, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return
	}
	std.SetLevel(parsed)
}

func Debug(args ...any)                 { std.Debug(args...) }
func Debugf(format string, args ...any) { std.Debugf(format, args...) }
func Infof(format string, args ...any)  { std.Infof(format, args...) }
func Warn(args ...any)                  { std.Warn(args...) }
func Warnf(format string, args ...any)  { std.Warnf(format, args...) }
func Errorf(format string, args ...any) { std.Errorf(format, args...) }
func Fatalf(format string, args ...any) { std.Fatalf(format, args...) }

// WithError returns an entry with the error attached.
func WithError(err error) *logrus.Entry { return std.WithError(err) }

// WithField returns an entry with a single structured field attached.
func WithField(key string, value any) *logrus.Entry { return std.WithField(key, value) }

// IsDebugEnabled reports whether debug-level output is active, used to skip
// expensive request/response dumps.
func IsDebugEnabled() bool { return std.IsLevelEnabled(logrus.DebugLevel) }
