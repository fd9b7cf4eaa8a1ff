// Package logging wraps logrus the way the teacher's pkg/logger does: a
// thin Logger type with level/format/output configuration and field-based
// structured logging used throughout the runtime.
package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger wraps a *logrus.Logger.
type Logger struct {
	*logrus.Logger
}

// Config controls level/format/output.
type Config struct {
	Level  string
	Format string // "text" or "json"
	Output string // "stdout" or "stderr"
}

// New builds a Logger from Config.
func New(cfg Config) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	switch strings.ToLower(cfg.Output) {
	case "stderr":
		l.SetOutput(os.Stderr)
	default:
		l.SetOutput(os.Stdout)
	}

	return &Logger{Logger: l}
}

// NewDefault builds a Logger with info level, text format and stdout
// output. The component argument is not recorded on the logger; use Named
// to tag entries with a component field.
func NewDefault(component string) *Logger {
	l := New(Config{Level: "info", Format: "text", Output: "stdout"})
	return &Logger{Logger: l.Logger}
}

// WithField returns a derived entry carrying one field.
func (l *Logger) WithField(key string, value any) *logrus.Entry {
	return l.Logger.WithField(key, value)
}

// WithFields returns a derived entry carrying several fields.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.Logger.WithFields(fields)
}

// Named returns a derived entry tagged with a "component" field, the
// convention every subsystem in this server uses to scope its log lines.
func (l *Logger) Named(component string) *logrus.Entry {
	return l.Logger.WithField("component", component)
}
