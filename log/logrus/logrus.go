// Package logrus adapts a logrus entry to tiered.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/tiered"
)

var _ tiered.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

func New(l *logrus.Logger) Logger {
	return Logger{E: logrus.NewEntry(l).WithField("component", "tiered")}
}

func (l Logger) Debug(msg string, f tiered.Fields) { l.entry(f).Debug(msg) }
func (l Logger) Info(msg string, f tiered.Fields)  { l.entry(f).Info(msg) }
func (l Logger) Warn(msg string, f tiered.Fields)  { l.entry(f).Warn(msg) }
func (l Logger) Error(msg string, f tiered.Fields) { l.entry(f).Error(msg) }

// entry moves an "err" field to logrus' error key.
func (l Logger) entry(f tiered.Fields) *logrus.Entry {
	e := l.E
	if len(f) == 0 {
		return e
	}
	fields := make(logrus.Fields, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok && k == "err" {
			e = e.WithError(err)
			continue
		}
		fields[k] = v
	}
	return e.WithFields(fields)
}
