package logx

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is a structured component logger. Call sites pass alternating
// key/value pairs after the message; a single map argument is also accepted.
type Logger struct {
	entry *logrus.Entry
}

// NewLogger creates a logger for a named component at the given level
// (trace|debug|info|warn|error). Unknown levels fall back to info.
func NewLogger(level, component string) *Logger {
	base := logrus.New()
	base.SetOutput(os.Stderr)
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})

	parsed, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	base.SetLevel(parsed)

	entry := logrus.NewEntry(base)
	if component != "" {
		entry = entry.WithField("component", component)
	}

	return &Logger{entry: entry}
}

// WithComponent returns a child logger tagged with a sub-component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{entry: l.entry.WithField("component", component)}
}

// SetOutput redirects log output, mainly for tests.
func (l *Logger) SetOutput(w io.Writer) {
	l.entry.Logger.SetOutput(w)
}

func (l *Logger) Trace(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).Trace(msg)
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).Info(msg)
}

func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).Warn(msg)
}

func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).Error(msg)
}

// fields converts variadic key/value arguments into logrus fields. Odd
// trailing keys and non-string keys are kept under a placeholder rather than
// dropped, so a malformed call site still logs its data.
func fields(keysAndValues []interface{}) logrus.Fields {
	f := logrus.Fields{}

	if len(keysAndValues) == 1 {
		if m, ok := keysAndValues[0].(map[string]interface{}); ok {
			for k, v := range m {
				f[k] = v
			}
			return f
		}
	}

	for i := 0; i < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			f["arg"] = keysAndValues[i]
			continue
		}
		if i+1 < len(keysAndValues) {
			f[key] = keysAndValues[i+1]
		} else {
			f[key] = "(missing)"
		}
	}

	return f
}
