package log

import (
	"github.com/sirupsen/logrus"
)

// entryLogger satisfies Logger with the level methods promoted from a logrus
// entry. Only the methods that return a Logger need wrapping.
type entryLogger struct {
	*logrus.Entry
}

// FromLogrus wraps an existing logrus logger.
func FromLogrus(l *logrus.Logger) Logger {
	return entryLogger{logrus.NewEntry(l)}
}

func (l entryLogger) WithField(key string, value interface{}) Logger {
	return entryLogger{l.Entry.WithField(key, value)}
}

func (l entryLogger) WithFields(fields map[string]interface{}) Logger {
	return entryLogger{l.Entry.WithFields(fields)}
}

func (l entryLogger) WithError(err error) Logger {
	return entryLogger{l.Entry.WithError(err)}
}

func (l entryLogger) enabled(level logrus.Level) bool { return l.Logger.IsLevelEnabled(level) }

func (l entryLogger) IsTraceEnabled() bool { return l.enabled(logrus.TraceLevel) }
func (l entryLogger) IsDebugEnabled() bool { return l.enabled(logrus.DebugLevel) }
func (l entryLogger) IsInfoEnabled() bool  { return l.enabled(logrus.InfoLevel) }
