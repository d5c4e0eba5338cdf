package logger

import (
	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"
)

type cronLogger struct {
	l *log.Logger
}

// Cron adapts l to the cron.Logger interface. Cron's routine scheduling
// chatter is logged at debug level.
func Cron(l *log.Logger) cron.Logger {
	return cronLogger{l: l}
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, "err", err)...)
}
