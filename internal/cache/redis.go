// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jason-s-yu/drillroom/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list (queue) name for timeline records.
const DefaultQueueName = "drillroom_timeline"

// TimelineRecord holds the minimal info needed by an external historian.
type TimelineRecord struct {
	RoomCode  string              `json:"room_code"`
	Mode      models.Mode         `json:"mode"`
	Status    models.Status       `json:"status"`
	EntryID   string              `json:"entry_id"`
	Kind      models.TimelineKind `json:"kind"`
	Message   string              `json:"message"`
	ByPlayer  string              `json:"by_player_id,omitempty"`
	Timestamp int64               `json:"timestamp"`
}

// ConnectRedis creates a client for addr/db and verifies it with a PING.
func ConnectRedis(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// Journal appends timeline entries to a Redis list for the historian.
type Journal struct {
	rdb   *redis.Client
	queue string
}

// NewJournal publishes to queue, or DefaultQueueName when queue is empty.
func NewJournal(rdb *redis.Client, queue string) *Journal {
	if queue == "" {
		queue = DefaultQueueName
	}
	return &Journal{rdb: rdb, queue: queue}
}

// PublishTimeline serializes each entry and pushes the batch with a single RPUSH.
func (j *Journal) PublishTimeline(ctx context.Context, state *models.RoomState, entries []models.TimelineEntry) error {
	if len(entries) == 0 {
		return nil
	}
	values := make([]any, 0, len(entries))
	for _, e := range entries {
		data, err := json.Marshal(TimelineRecord{
			RoomCode:  state.RoomCode,
			Mode:      state.Mode,
			Status:    state.Status,
			EntryID:   e.ID,
			Kind:      e.Kind,
			Message:   e.Message,
			ByPlayer:  e.ByPlayerID,
			Timestamp: e.AtEpochMs,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal TimelineRecord: %w", err)
		}
		values = append(values, data)
	}
	if err := j.rdb.RPush(ctx, j.queue, values...).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", j.queue, err)
	}
	return nil
}
