package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/ledgercache"
)

var _ ledgercache.Logger = LogrusLogger{}

type LogrusLogger struct{ E *logrus.Entry }

// New tags every line with component=ledgercache.
func New(l *logrus.Logger) LogrusLogger {
	return LogrusLogger{E: l.WithField("component", "ledgercache")}
}

func (l LogrusLogger) Debug(msg string, f ledgercache.Fields) {
	l.E.WithFields(logrus.Fields(f)).Debug(msg)
}
func (l LogrusLogger) Info(msg string, f ledgercache.Fields) { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l LogrusLogger) Warn(msg string, f ledgercache.Fields) { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l LogrusLogger) Error(msg string, f ledgercache.Fields) {
	l.E.WithFields(logrus.Fields(f)).Error(msg)
}
