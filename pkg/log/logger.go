// Package log is the logging facade shared by the decoder and the CLI.
package log

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger is the logging surface used across pktkit. Fatal and Panic exit or
// unwind after writing, as logrus does.
type Logger interface {
	Print(args ...interface{})
	Printf(format string, args ...interface{})
	Trace(args ...interface{})
	Tracef(format string, args ...interface{})
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
	Panic(args ...interface{})
	Panicf(format string, args ...interface{})

	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsTraceEnabled() bool
	IsDebugEnabled() bool
	IsInfoEnabled() bool
}

var (
	mu     sync.RWMutex
	logger Logger = Nop()
)

// GetLogger returns the process-wide logger. Until Init succeeds it discards everything.
func GetLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// SetLogger replaces the process-wide logger.
func SetLogger(l Logger) {
	if l == nil {
		l = Nop()
	}
	mu.Lock()
	logger = l
	mu.Unlock()
}

// Nop returns a Logger that discards all output and reports every level disabled.
func Nop() Logger {
	return FromLogrus(&logrus.Logger{
		Out:       io.Discard,
		Formatter: new(logrus.TextFormatter),
		Hooks:     make(logrus.LevelHooks),
		Level:     logrus.PanicLevel,
		ExitFunc:  func(int) {},
	})
}
