package logflags

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// Logger is the logging interface of the monomirror packages.
type Logger interface {
	WithField(key string, value interface{}) Logger
	// WithAddr adds an address in the target, shown in hex.
	WithAddr(key string, addr uint64) Logger
	// WithPid adds the process id of the target.
	WithPid(pid int) Logger
	WithError(err error) Logger

	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Debug(args ...interface{})
	Warn(args ...interface{})
}

// LoggerFactory creates the Logger of a layer. fields holds the layer name;
// out is nil when logging goes to stderr.
type LoggerFactory func(level logrus.Level, fields Fields, out io.Writer) Logger

var loggerFactory LoggerFactory

// SetLoggerFactory makes every Logger created afterwards come from lf
// instead of logrus with the package text formatter.
func SetLoggerFactory(lf LoggerFactory) {
	loggerFactory = lf
}

// Fields are the fields attached to a Logger.
type Fields map[string]interface{}

// Addr is an address in the target process.
type Addr uint64

func (a Addr) String() string {
	return fmt.Sprintf("%#x", uint64(a))
}

type logrusLogger struct {
	*logrus.Entry
}

func (l *logrusLogger) WithField(key string, value interface{}) Logger {
	return &logrusLogger{l.Entry.WithField(key, value)}
}

func (l *logrusLogger) WithAddr(key string, addr uint64) Logger {
	return l.WithField(key, Addr(addr))
}

func (l *logrusLogger) WithPid(pid int) Logger {
	return l.WithField("pid", pid)
}

func (l *logrusLogger) WithError(err error) Logger {
	return &logrusLogger{l.Entry.WithError(err)}
}
