package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// Schema holds the rooms table used by store.Postgres and the timeline_entries
// table filled by the historian.
const Schema = `
CREATE TABLE IF NOT EXISTS rooms (
	code         TEXT PRIMARY KEY,
	mode         TEXT NOT NULL,
	status       TEXT NOT NULL,
	state        JSONB NOT NULL,
	next_tick_at BIGINT,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS rooms_next_tick_at ON rooms (next_tick_at) WHERE next_tick_at IS NOT NULL;

CREATE TABLE IF NOT EXISTS timeline_entries (
	room_code    TEXT NOT NULL,
	entry_id     TEXT NOT NULL,
	mode         TEXT NOT NULL,
	status       TEXT NOT NULL,
	kind         TEXT NOT NULL,
	message      TEXT NOT NULL,
	by_player_id TEXT,
	at_epoch_ms  BIGINT NOT NULL,
	recorded_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (room_code, entry_id)
);
`

// ConnectDB opens a pool for connStr, pings it and applies Schema.
func ConnectDB(ctx context.Context, connStr string, logger *logrus.Logger) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}

	db, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.Ping(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	if err := EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Infof("Connected to database at %s:%d/%s", config.ConnConfig.Host, config.ConnConfig.Port, config.ConnConfig.Database)
	return db, nil
}

// EnsureSchema creates missing tables.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
