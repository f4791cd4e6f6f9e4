package telemetry

import (
	"github.com/sirupsen/logrus"
)

// LogSink writes reports to a logrus logger. Frame-rate reports are logged at
// debug level, everything else at info.
type LogSink struct {
	Logger logrus.FieldLogger
}

func (s LogSink) Report(category Category, text string) {
	entry := s.Logger.WithField("category", string(category))
	if category == CategoryFrameRate {
		entry.Debug(text)
		return
	}
	entry.Info(text)
}
