package store_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jason-s-yu/drillroom/internal/database"
	"github.com/jason-s-yu/drillroom/internal/models"
	"github.com/jason-s-yu/drillroom/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRoom(code string) *models.RoomState {
	bomb := models.NewBombScenario(&models.BombScenario{
		Wires:      []models.Wire{{ID: "w1", Color: "red", Critical: true}, {ID: "w2", Color: "blue"}},
		Keypad:     models.Keypad{Symbols: []string{"omega", "psi"}, Target: []string{"psi"}, Entered: []string{}},
		MaxStrikes: 3,
		TimerSec:   300,
	})
	return &models.RoomState{
		RoomCode:         code,
		Mode:             models.ModeBombDefusal,
		Status:           models.StatusLobby,
		Seed:             code + "-seed",
		CreatedAtEpochMs: 1_700_000_000_000,
		Players:          []models.Player{{ID: "gm", Name: "Ada", Role: "coordinator", IsGameMaster: true}},
		Objectives:       []models.Objective{{ID: "bomb-wires", Description: "Cut", RequiredAction: "cut_wire"}},
		Timeline:         []models.TimelineEntry{{ID: "evt-0001", Kind: models.TimelineSystem, Message: "Room created", AtEpochMs: 1_700_000_000_000}},
		PublicSummary:    "A device.",
		GMSecret:         "$argon2id$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA",
		Scenario:         bomb,
	}
}

// exercise runs the behaviour every backend must share.
func exercise(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.Load(ctx, "NOPE01")
	require.ErrorIs(t, err, store.ErrNotFound)

	room := sampleRoom("ABC123")
	require.NoError(t, s.Save(ctx, room))

	got, err := s.Load(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, room, got)

	wakes, err := s.PendingWakeups(ctx)
	require.NoError(t, err)
	assert.Empty(t, wakes, "lobby rooms have no tick")

	room.Status = models.StatusRunning
	room.StartedAtEpochMs = models.Int64Ptr(1_700_000_001_000)
	room.NextTickAtEpochMs = models.Int64Ptr(1_700_000_031_000)
	require.NoError(t, s.Save(ctx, room))

	other := sampleRoom("XYZ789")
	other.Status = models.StatusRunning
	other.NextTickAtEpochMs = models.Int64Ptr(1_700_000_010_000)
	require.NoError(t, s.Save(ctx, other))

	wakes, err = s.PendingWakeups(ctx)
	require.NoError(t, err)
	require.Len(t, wakes, 2)
	assert.Equal(t, "XYZ789", wakes[0].Code)
	assert.Equal(t, time.UnixMilli(1_700_000_010_000), wakes[0].At)
	assert.Equal(t, "ABC123", wakes[1].Code)

	got, err = s.Load(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, got.Status)
	assert.Equal(t, int64(1_700_000_031_000), *got.NextTickAtEpochMs)

	room.Status = models.StatusFailed
	require.NoError(t, s.Save(ctx, room))
	wakes, err = s.PendingWakeups(ctx)
	require.NoError(t, err)
	require.Len(t, wakes, 1, "terminal rooms leave the wake index")
	assert.Equal(t, "XYZ789", wakes[0].Code)
}

func TestMemoryStore(t *testing.T) {
	exercise(t, store.NewMemory())
}

func TestMemoryStoreDoesNotAlias(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	room := sampleRoom("ALIAS1")
	require.NoError(t, s.Save(ctx, room))

	room.Players[0].Name = "changed"
	got, err := s.Load(ctx, "ALIAS1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.Players[0].Name)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := store.NewRedis(rdb)
	exercise(t, s)
	assert.True(t, mr.Exists("drillroom:room:ABC123"))
}

func TestRedisStoreSurfacesErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.SetError("LOADING server is starting")

	err := store.NewRedis(rdb).Save(context.Background(), sampleRoom("DOWN01"))
	assert.Error(t, err)
}

func TestSQLiteStore(t *testing.T) {
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "rooms.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	exercise(t, s)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rooms.db")
	s, err := store.OpenSQLite(path)
	require.NoError(t, err)
	room := sampleRoom("KEEP01")
	require.NoError(t, s.Save(context.Background(), room))
	require.NoError(t, s.Close())

	s, err = store.OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	got, err := s.Load(context.Background(), "KEEP01")
	require.NoError(t, err)
	assert.Equal(t, room, got)
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := database.ConnectDB(ctx, url, logrus.New())
	require.NoError(t, err)
	_, err = db.Exec(ctx, `DELETE FROM rooms WHERE code = ANY($1)`, []string{"ABC123", "XYZ789", "NOPE01"})
	require.NoError(t, err)

	s := store.NewPostgres(db)
	t.Cleanup(func() { _ = s.Close() })
	exercise(t, s)
}
