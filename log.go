package cdpcore

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the structured logger passed to every component that needs to
// report ambient activity (protocol send/receive, frame-tree mutation,
// network correlation). It wraps logrus the way other Go CDP clients in the
// wild do, rather than a handful of bare logf/errf funcs.
type Logger struct {
	log *logrus.Entry
}

// NewLogger builds a Logger writing to stderr at info level, matching the
// teacher's historical Logger default ("ChromeDP ", log.LstdFlags).
func NewLogger() *Logger {
	l := logrus.New()
	l.Out = os.Stderr
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &Logger{log: logrus.NewEntry(l)}
}

// NewNopLogger returns a Logger that discards everything, for use in tests.
func NewNopLogger() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return &Logger{log: logrus.NewEntry(l)}
}

// With returns a child Logger that tags every subsequent entry with the
// given field, e.g. logger.With("sessionID", string(sid)).
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{log: l.log.WithField(key, value)}
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.log.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.log.Infof(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.log.Errorf(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.log.Warnf(format, args...) }
