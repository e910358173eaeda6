package obs

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var base = newBase(os.Stdout)

func newBase(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000000000Z07:00",
		FieldMap:        logrus.FieldMap{logrus.FieldKeyTime: "ts"},
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

type Fields = logrus.Fields

// Configure sets the global level ("trace" … "error") and format ("json" or "text").
func Configure(level, format string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "log level %q", level)
	}
	switch strings.ToLower(format) {
	case "", "json":
	case "text":
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return errors.Errorf("unknown log format %q", format)
	}
	base.SetLevel(lvl)
	return nil
}

// SetOutput redirects the global logger.
func SetOutput(w io.Writer) { base.SetOutput(w) }

// EnableDebug globally enables debug logs.
func EnableDebug(v bool) {
	if v && !base.IsLevelEnabled(logrus.DebugLevel) {
		base.SetLevel(logrus.DebugLevel)
	}
}

// Logger returns the root entry components derive their loggers from.
func Logger() *logrus.Entry { return logrus.NewEntry(base) }

// Discard returns an entry that drops everything.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func logWith(level logrus.Level, msg string, f Fields) {
	base.WithFields(f).Log(level, msg)
}

func Trace(msg string, f Fields) { logWith(logrus.TraceLevel, msg, f) }
func Debug(msg string, f Fields) { logWith(logrus.DebugLevel, msg, f) }
func Info(msg string, f Fields)  { logWith(logrus.InfoLevel, msg, f) }
func Warn(msg string, f Fields)  { logWith(logrus.WarnLevel, msg, f) }
func Error(msg string, f Fields) { logWith(logrus.ErrorLevel, msg, f) }
