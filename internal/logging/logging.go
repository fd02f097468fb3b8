// Package logging wraps logrus so every engine component carries an
// explicit logger value instead of reaching for process-wide state.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the handle every component takes as a constructor argument.
type Logger struct {
	entry *logrus.Entry
}

// New creates a Logger writing to stderr. verbose raises the level from
// Warn to Debug.
func New(verbose bool) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.WarnLevel)
	}
	return &Logger{entry: logrus.NewEntry(l)}
}

// Discard returns a Logger that drops all output; useful in tests.
func Discard() *Logger {
	l := logrus.New()
	l.SetOutput(os.NewFile(0, os.DevNull))
	l.SetLevel(logrus.PanicLevel)
	return &Logger{entry: logrus.NewEntry(l)}
}

// With returns a child Logger carrying the given structured fields, e.g.
// log.With("fragment", name).Warn("corrupt book-keeping").
func (l *Logger) With(kv ...interface{}) *Logger {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			fields[key] = kv[i+1]
		}
	}
	return &Logger{entry: l.entry.WithFields(fields)}
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
