// Package historian drains the Redis event queue the coordinator's
// event sink pushes onto and persists the records into Postgres, in
// batches, as a standalone consumer process. It is deliberately
// decoupled from the coordinator: the coordinator never waits on the
// database, and the historian can lag or restart without affecting
// live lobbies.
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/duskforge/lobby/internal/eventsink"
)

// Options tunes the batching behavior.
type Options struct {
	QueueName     string
	BatchSize     int
	FlushInterval time.Duration
}

// Service is the queue-to-database pump.
type Service struct {
	rdb    *redis.Client
	pool   *pgxpool.Pool
	opts   Options
	logger *logrus.Logger

	batchMu sync.Mutex
	batch   []eventsink.Record

	// flushFn lets tests observe flushes without a live database.
	flushFn func(ctx context.Context, records []eventsink.Record) error
}

// New constructs a Service. logger may be nil.
func New(rdb *redis.Client, pool *pgxpool.Pool, opts Options, logger *logrus.Logger) *Service {
	if opts.QueueName == "" {
		opts.QueueName = eventsink.DefaultQueueName
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Service{
		rdb:    rdb,
		pool:   pool,
		opts:   opts,
		logger: logger,
		batch:  make([]eventsink.Record, 0, opts.BatchSize),
	}
	s.flushFn = s.flushToDB
	return s
}

// Run pumps the queue until ctx is cancelled, then flushes whatever is
// still batched.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.FlushInterval)
	defer ticker.Stop()

	s.logger.WithField("queue", s.opts.QueueName).Info("historian started")
	for {
		select {
		case <-ctx.Done():
			s.Flush(context.Background())
			s.logger.Info("historian stopped")
			return
		case <-ticker.C:
			s.Flush(ctx)
		default:
			s.popOne(ctx)
		}
	}
}

// popOne blocks on the queue for a bounded interval so ticker flushes
// and cancellation stay responsive.
func (s *Service) popOne(ctx context.Context) {
	res, err := s.rdb.BLPop(ctx, 3*time.Second, s.opts.QueueName).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			s.logger.WithError(err).Warn("historian: blpop failed")
		}
		return
	}
	if len(res) < 2 {
		return
	}

	var rec eventsink.Record
	if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
		s.logger.WithError(err).Warn("historian: dropping malformed record")
		return
	}
	s.append(ctx, rec)
}

func (s *Service) append(ctx context.Context, rec eventsink.Record) {
	s.batchMu.Lock()
	s.batch = append(s.batch, rec)
	full := len(s.batch) >= s.opts.BatchSize
	s.batchMu.Unlock()

	if full {
		s.Flush(ctx)
	}
}

// Flush writes the current batch in one transaction. Failed batches
// are dropped after logging: the event log is advisory, and wedging
// the pump on a poison batch would stall everything behind it.
func (s *Service) Flush(ctx context.Context) {
	s.batchMu.Lock()
	if len(s.batch) == 0 {
		s.batchMu.Unlock()
		return
	}
	records := make([]eventsink.Record, len(s.batch))
	copy(records, s.batch)
	s.batch = s.batch[:0]
	s.batchMu.Unlock()

	if err := s.flushFn(ctx, records); err != nil {
		s.logger.WithError(err).WithField("count", len(records)).Error("historian: flush failed")
		return
	}
	s.logger.WithField("count", len(records)).Debug("historian: flushed events")
}

func (s *Service) flushToDB(ctx context.Context, records []eventsink.Record) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			INSERT INTO lobby_events (kind, lobby_id, device_id, fields, occurred_at)
			VALUES ($1, $2, $3, $4, $5)
		`
		for _, rec := range records {
			fields, err := json.Marshal(rec.Fields)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, q, string(rec.Kind), rec.LobbyID, rec.DeviceID, fields, rec.Timestamp); err != nil {
				return err
			}
		}
		return nil
	})
}
