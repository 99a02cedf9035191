// Package logging defines the Logger interface used across the
// translator, a thin wrapper over logrus with per-module field
// attachment.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the shared logging contract: components never import logrus
// directly, so tests can substitute a no-op or recording implementation.
type Logger interface {
	SetToDebug()
	SetToInfo()
	SetToError()
	// Module returns a child logger scoped to the named component, e.g.
	// log.Module("expand"); fields set on it are merged with the parent's.
	Module(name string) Logger
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
}

type logrusLogger struct {
	entry *logrus.Entry
}

// New returns a Logger writing structured, human-readable lines to stderr.
func New() Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

func fieldsFrom(kv []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		f[key] = kv[i+1]
	}
	return f
}

func (l *logrusLogger) SetToDebug() { l.entry.Logger.SetLevel(logrus.DebugLevel) }
func (l *logrusLogger) SetToInfo()  { l.entry.Logger.SetLevel(logrus.InfoLevel) }
func (l *logrusLogger) SetToError() { l.entry.Logger.SetLevel(logrus.ErrorLevel) }

func (l *logrusLogger) Module(name string) Logger {
	return &logrusLogger{entry: l.entry.WithField("component", name)}
}

func (l *logrusLogger) Debug(msg string, fields ...interface{}) {
	l.entry.WithFields(fieldsFrom(fields)).Debug(msg)
}

func (l *logrusLogger) Info(msg string, fields ...interface{}) {
	l.entry.WithFields(fieldsFrom(fields)).Info(msg)
}

func (l *logrusLogger) Warn(msg string, fields ...interface{}) {
	l.entry.WithFields(fieldsFrom(fields)).Warn(msg)
}

func (l *logrusLogger) Error(msg string, fields ...interface{}) {
	l.entry.WithFields(fieldsFrom(fields)).Error(msg)
}

func (l *logrusLogger) Fatal(msg string, fields ...interface{}) {
	l.entry.WithFields(fieldsFrom(fields)).Fatal(msg)
}

// Nop returns a Logger that discards everything, for use in tests.
func Nop() Logger {
	l := logrus.New()
	l.SetOutput(nopWriter{})
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
