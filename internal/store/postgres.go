package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/drillroom/internal/models"
)

// Postgres stores rooms in the rooms table created by database.EnsureSchema.
type Postgres struct {
	db *pgxpool.Pool
}

// NewPostgres wraps a connected pool. The pool is closed by Close.
func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Load(ctx context.Context, code string) (*models.RoomState, error) {
	var data []byte
	err := s.db.QueryRow(ctx, `SELECT state FROM rooms WHERE code = $1`, code).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load room %s: %w", code, err)
	}
	return decode(code, data)
}

func (s *Postgres) Save(ctx context.Context, state *models.RoomState) error {
	data, err := encode(state)
	if err != nil {
		return err
	}
	var next *int64
	if at, ok := wakeAt(state); ok {
		next = &at
	}
	q := `
	INSERT INTO rooms (code, mode, status, state, next_tick_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, now())
	ON CONFLICT (code) DO UPDATE SET
		mode = EXCLUDED.mode,
		status = EXCLUDED.status,
		state = EXCLUDED.state,
		next_tick_at = EXCLUDED.next_tick_at,
		updated_at = now()
	`
	err = pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, state.RoomCode, string(state.Mode), string(state.Status), data, next)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to save room %s: %w", state.RoomCode, err)
	}
	return nil
}

func (s *Postgres) PendingWakeups(ctx context.Context) ([]Wakeup, error) {
	rows, err := s.db.Query(ctx, `SELECT code, next_tick_at FROM rooms WHERE next_tick_at IS NOT NULL ORDER BY next_tick_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query wakeups: %w", err)
	}
	defer rows.Close()

	var out []Wakeup
	for rows.Next() {
		var (
			code string
			at   int64
		)
		if err := rows.Scan(&code, &at); err != nil {
			return nil, err
		}
		out = append(out, Wakeup{Code: code, At: time.UnixMilli(at)})
	}
	return out, rows.Err()
}

func (s *Postgres) Close() error {
	s.db.Close()
	return nil
}
