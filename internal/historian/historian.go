// Package historian drains the timeline queue written by cache.Journal and
// persists the records to PostgreSQL in batches.
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/drillroom/internal/cache"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Writer persists a batch of timeline records.
type Writer interface {
	WriteTimeline(ctx context.Context, records []cache.TimelineRecord) error
}

// Options tune batching. Zero values fall back to the defaults below.
type Options struct {
	Queue       string
	BatchSize   int
	FlushDelay  time.Duration
	PollTimeout time.Duration
}

const (
	defaultBatchSize   = 20
	defaultFlushDelay  = 500 * time.Millisecond
	defaultPollTimeout = 3 * time.Second
	retryBackoff       = time.Second
	finalFlushTimeout  = 5 * time.Second
)

// Service pops records with BLPOP and flushes them when the batch fills up or
// FlushDelay has passed since the last flush. A failed flush keeps the batch for
// the next attempt.
type Service struct {
	rdb    *redis.Client
	writer Writer
	opts   Options
	logger *logrus.Logger

	batch     []cache.TimelineRecord
	lastFlush time.Time
}

// New returns a Service reading from rdb and writing to w.
func New(rdb *redis.Client, w Writer, opts Options, logger *logrus.Logger) *Service {
	if opts.Queue == "" {
		opts.Queue = cache.DefaultQueueName
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.FlushDelay <= 0 {
		opts.FlushDelay = defaultFlushDelay
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = defaultPollTimeout
	}
	return &Service{
		rdb:    rdb,
		writer: w,
		opts:   opts,
		logger: logger,
		batch:  make([]cache.TimelineRecord, 0, opts.BatchSize),
	}
}

// Run consumes the queue until ctx is cancelled, then flushes what it holds.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Infof("historian reading %s", s.opts.Queue)
	s.lastFlush = time.Now()
	for {
		if ctx.Err() != nil {
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalFlushTimeout)
			defer cancel()
			return s.flush(final)
		}

		res, err := s.rdb.BLPop(ctx, s.opts.PollTimeout, s.opts.Queue).Result()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			if ctx.Err() == nil {
				s.logger.WithError(err).Error("BLPOP failed")
				sleep(ctx, retryBackoff)
			}
			continue
		case len(res) == 2:
			var rec cache.TimelineRecord
			if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
				s.logger.WithError(err).Warn("invalid timeline record")
				break
			}
			s.batch = append(s.batch, rec)
		}

		if len(s.batch) >= s.opts.BatchSize || (len(s.batch) > 0 && time.Since(s.lastFlush) >= s.opts.FlushDelay) {
			if err := s.flush(ctx); err != nil {
				s.logger.WithError(err).Error("timeline flush failed")
			}
		}
	}
}

func (s *Service) flush(ctx context.Context) error {
	s.lastFlush = time.Now()
	if len(s.batch) == 0 {
		return nil
	}
	if err := s.writer.WriteTimeline(ctx, s.batch); err != nil {
		return err
	}
	s.logger.Debugf("flushed %d timeline records", len(s.batch))
	s.batch = s.batch[:0]
	return nil
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// PostgresWriter inserts records into timeline_entries. Replays of the same
// entry are ignored.
type PostgresWriter struct {
	db *pgxpool.Pool
}

// NewPostgresWriter wraps db. The table is created by database.EnsureSchema.
func NewPostgresWriter(db *pgxpool.Pool) *PostgresWriter {
	return &PostgresWriter{db: db}
}

const insertTimelineQ = `
	INSERT INTO timeline_entries (room_code, entry_id, mode, status, kind, message, by_player_id, at_epoch_ms)
	VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
	ON CONFLICT (room_code, entry_id) DO NOTHING
`

// WriteTimeline inserts the batch in one transaction.
func (w *PostgresWriter) WriteTimeline(ctx context.Context, records []cache.TimelineRecord) error {
	return pgx.BeginTxFunc(ctx, w.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for _, r := range records {
			b.Queue(insertTimelineQ, r.RoomCode, r.EntryID, string(r.Mode), string(r.Status), string(r.Kind), r.Message, r.ByPlayer, r.Timestamp)
		}
		if err := tx.SendBatch(ctx, b).Close(); err != nil {
			return fmt.Errorf("insert timeline batch: %w", err)
		}
		return nil
	})
}
