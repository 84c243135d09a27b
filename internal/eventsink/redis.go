package eventsink

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultQueueName is the Redis list events are pushed onto for the
// historian process to later drain into durable storage.
const DefaultQueueName = "lobby_events"

// RedisSink pushes JSON-encoded records onto a Redis list for the
// historian process to drain into durable storage. Push failures are
// logged and swallowed; they never propagate back into core lobby
// operations.
type RedisSink struct {
	client    *redis.Client
	queueName string
	logger    *logrus.Logger
}

// NewRedisSink wraps a connected Redis client. queueName defaults to
// DefaultQueueName when empty.
func NewRedisSink(client *redis.Client, queueName string, logger *logrus.Logger) *RedisSink {
	if queueName == "" {
		queueName = DefaultQueueName
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisSink{client: client, queueName: queueName, logger: logger}
}

func (s *RedisSink) Log(ctx context.Context, rec Record) {
	data, err := json.Marshal(rec)
	if err != nil {
		s.logger.WithError(err).Warn("eventsink: failed to marshal record")
		return
	}
	if err := s.client.RPush(ctx, s.queueName, data).Err(); err != nil {
		s.logger.WithError(err).Warn("eventsink: failed to push record to redis")
	}
}
