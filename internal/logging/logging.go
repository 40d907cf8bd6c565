// Package logging provides the structured logger used by every component of
// the replicated context store: a small interface (Info/Warn/Error/Debug/
// Fatal, plus ToggleDebug) backed by logrus. Every line carries a
// "component" field; With attaches further structured fields.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the contract every component logs through.
type Logger interface {
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})

	// ToggleDebug flips debug-level logging and returns the new state.
	ToggleDebug(on bool) bool

	// With returns a derived Logger that always attaches the given fields.
	With(fields Fields) Logger
}

// Fields is a type alias kept distinct from logrus.Fields so callers never
// need to import logrus directly.
type Fields map[string]interface{}

type logrusLogger struct {
	entry *logrus.Entry
}

// New creates the default logger, writing to stderr with text formatting.
func New(component string) Logger {
	base := logrus.New()
	base.SetOutput(os.Stderr)
	base.SetLevel(logrus.InfoLevel)
	return &logrusLogger{entry: base.WithField("component", component)}
}

// Noop returns a Logger that discards everything, for low-level components
// (such as wire.Conn) that only need a logger when one is explicitly wired
// in.
func Noop() Logger {
	base := logrus.New()
	base.SetOutput(io.Discard)
	return &logrusLogger{entry: base.WithField("component", "noop")}
}

func (l *logrusLogger) Info(args ...interface{})  { l.entry.Info(args...) }
func (l *logrusLogger) Warn(args ...interface{})  { l.entry.Warn(args...) }
func (l *logrusLogger) Error(args ...interface{}) { l.entry.Error(args...) }
func (l *logrusLogger) Debug(args ...interface{}) { l.entry.Debug(args...) }
func (l *logrusLogger) Fatal(args ...interface{}) { l.entry.Fatal(args...) }

func (l *logrusLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *logrusLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *logrusLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
func (l *logrusLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *logrusLogger) Fatalf(format string, args ...interface{}) { l.entry.Fatalf(format, args...) }

func (l *logrusLogger) ToggleDebug(on bool) bool {
	if on {
		l.entry.Logger.SetLevel(logrus.DebugLevel)
	} else {
		l.entry.Logger.SetLevel(logrus.InfoLevel)
	}
	return on
}

func (l *logrusLogger) With(fields Fields) Logger {
	return &logrusLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}
