package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the structured logger every service component receives.
// Args are alternating key/value pairs.
type Logger interface {
	Action(action string) Logger
	With(args ...any) Logger
	WithGroup(name string) Logger

	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, err error, args ...any)
}

type logrusLogger struct {
	entry *logrus.Entry
	group string
}

// New returns a JSON logger that tags every entry with the service and hostname.
func New(service string, level string, out io.Writer) Logger {
	if out == nil {
		out = os.Stdout
	}
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "timestamp",
			logrus.FieldKeyMsg:  "message",
		},
	})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	hostname, _ := os.Hostname()
	return &logrusLogger{
		entry: l.WithFields(logrus.Fields{
			"service":  service,
			"hostname": hostname,
		}),
	}
}

func (l *logrusLogger) Action(action string) Logger {
	return &logrusLogger{entry: l.entry.WithField("action", action), group: l.group}
}

func (l *logrusLogger) With(args ...any) Logger {
	return &logrusLogger{entry: l.entry.WithFields(l.fields(args)), group: l.group}
}

// WithGroup prefixes the keys of every following With call.
func (l *logrusLogger) WithGroup(name string) Logger {
	group := name
	if l.group != "" {
		group = l.group + "." + name
	}
	return &logrusLogger{entry: l.entry, group: group}
}

func (l *logrusLogger) Debug(msg string, args ...any) {
	l.entry.WithFields(l.fields(args)).Debug(msg)
}

func (l *logrusLogger) Info(msg string, args ...any) {
	l.entry.WithFields(l.fields(args)).Info(msg)
}

func (l *logrusLogger) Warn(msg string, args ...any) {
	l.entry.WithFields(l.fields(args)).Warn(msg)
}

func (l *logrusLogger) Error(msg string, err error, args ...any) {
	e := l.entry.WithFields(l.fields(args))
	if err != nil {
		e = e.WithError(err)
	}
	e.Error(msg)
}

func (l *logrusLogger) fields(args []any) logrus.Fields {
	fields := make(logrus.Fields, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		key := fmt.Sprint(args[i])
		if l.group != "" {
			key = l.group + "." + key
		}
		if i+1 >= len(args) {
			fields[key] = "!MISSING"
			break
		}
		fields[key] = args[i+1]
	}
	return fields
}

// Nop discards everything; used by tests.
func Nop() Logger {
	return New("nop", "panic", io.Discard)
}

// ServiceName normalises a --mode value into the service field.
func ServiceName(mode string) string {
	return strings.ReplaceAll(strings.TrimSpace(mode), "_", "-")
}
