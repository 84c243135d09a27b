package eventsink

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogrusSink writes events as structured log lines. cmd/server always
// includes it in its sink set, alongside the Redis sink when a Redis
// queue is configured.
type LogrusSink struct {
	logger *logrus.Logger
}

// NewLogrusSink wraps an existing logger. A nil logger falls back to
// logrus's default singleton.
func NewLogrusSink(logger *logrus.Logger) *LogrusSink {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogrusSink{logger: logger}
}

func (s *LogrusSink) Log(_ context.Context, rec Record) {
	fields := logrus.Fields{
		"kind":      rec.Kind,
		"lobby_id":  rec.LobbyID,
		"device_id": rec.DeviceID,
		"ts":        rec.Timestamp,
	}
	for k, v := range rec.Fields {
		fields[k] = v
	}
	s.logger.WithFields(fields).Info("lobby event")
}
