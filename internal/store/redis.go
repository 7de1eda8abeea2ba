package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jason-s-yu/drillroom/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	redisRoomPrefix = "drillroom:room:"
	redisWakeKey    = "drillroom:wake"
)

// Redis stores each room as a JSON string and indexes scheduled ticks in a sorted set.
type Redis struct {
	rdb *redis.Client
}

// NewRedis wraps an already connected client.
func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

func (s *Redis) Load(ctx context.Context, code string) (*models.RoomState, error) {
	data, err := s.rdb.Get(ctx, redisRoomPrefix+code).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to GET room %s: %w", code, err)
	}
	return decode(code, data)
}

// Save writes the blob and updates the wake index in one MULTI/EXEC.
func (s *Redis) Save(ctx context.Context, state *models.RoomState) error {
	data, err := encode(state)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisRoomPrefix+state.RoomCode, data, 0)
		if at, ok := wakeAt(state); ok {
			pipe.ZAdd(ctx, redisWakeKey, redis.Z{Score: float64(at), Member: state.RoomCode})
		} else {
			pipe.ZRem(ctx, redisWakeKey, state.RoomCode)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save room %s: %w", state.RoomCode, err)
	}
	return nil
}

func (s *Redis) PendingWakeups(ctx context.Context) ([]Wakeup, error) {
	zs, err := s.rdb.ZRangeWithScores(ctx, redisWakeKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read wake index: %w", err)
	}
	out := make([]Wakeup, 0, len(zs))
	for _, z := range zs {
		code, ok := z.Member.(string)
		if !ok {
			continue
		}
		out = append(out, Wakeup{Code: code, At: time.UnixMilli(int64(z.Score))})
	}
	return out, nil
}

// Close is a no-op; the client is owned by whoever connected it.
func (s *Redis) Close() error { return nil }
