package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jason-s-yu/drillroom/internal/models"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS rooms (
	code TEXT PRIMARY KEY,
	mode TEXT NOT NULL,
	status TEXT NOT NULL,
	state BLOB NOT NULL,
	next_tick_at INTEGER,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS rooms_next_tick_at ON rooms (next_tick_at) WHERE next_tick_at IS NOT NULL;
`

// SQLite is a single-node durable store backed by modernc.org/sqlite.
type SQLite struct {
	sqlDB *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(sqliteSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	return &SQLite{sqlDB: sqlDB}, nil
}

func (s *SQLite) Load(ctx context.Context, code string) (*models.RoomState, error) {
	var data []byte
	err := s.sqlDB.QueryRowContext(ctx, `SELECT state FROM rooms WHERE code = ?`, code).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load room %s: %w", code, err)
	}
	return decode(code, data)
}

func (s *SQLite) Save(ctx context.Context, state *models.RoomState) error {
	data, err := encode(state)
	if err != nil {
		return err
	}
	var next sql.NullInt64
	if at, ok := wakeAt(state); ok {
		next = sql.NullInt64{Int64: at, Valid: true}
	}
	_, err = s.sqlDB.ExecContext(ctx, `
		INSERT INTO rooms (code, mode, status, state, next_tick_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (code) DO UPDATE SET
			mode = excluded.mode,
			status = excluded.status,
			state = excluded.state,
			next_tick_at = excluded.next_tick_at,
			updated_at = excluded.updated_at`,
		state.RoomCode, string(state.Mode), string(state.Status), data, next, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save room %s: %w", state.RoomCode, err)
	}
	return nil
}

func (s *SQLite) PendingWakeups(ctx context.Context) ([]Wakeup, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT code, next_tick_at FROM rooms WHERE next_tick_at IS NOT NULL ORDER BY next_tick_at`)
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

func (s *SQLite) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}
