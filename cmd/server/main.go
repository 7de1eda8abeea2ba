// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/drillroom/internal/cache"
	"github.com/jason-s-yu/drillroom/internal/config"
	"github.com/jason-s-yu/drillroom/internal/database"
	"github.com/jason-s-yu/drillroom/internal/handlers"
	"github.com/jason-s-yu/drillroom/internal/room"
	"github.com/jason-s-yu/drillroom/internal/scheduler"
	"github.com/jason-s-yu/drillroom/internal/store"
	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := logrus.New()
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	logger.SetLevel(cfg.Level())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatalf("server exited: %v", err)
	}
}

func run(ctx context.Context, cfg config.Config, logger *logrus.Logger) error {
	var rdb *redis.Client
	if cfg.NeedsRedis() {
		var err error
		rdb, err = cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer rdb.Close()
	}

	st, err := openStore(ctx, cfg, rdb, logger)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}
	defer st.Close()

	var journal room.Journal
	if cfg.JournalEnabled {
		journal = cache.NewJournal(rdb, cfg.HistorianQueueName)
		logger.Infof("journaling timeline to %s", cfg.HistorianQueueName)
	}

	var mgr *room.Manager
	timers := scheduler.New(func(code string, at time.Time) { mgr.Tick(code, at) }, logger)
	defer timers.Stop()
	mgr = room.NewManager(room.Deps{
		Store:             st,
		Scheduler:         timers,
		Journal:           journal,
		Logger:            logger,
		TickInterval:      cfg.TickInterval,
		KeepaliveInterval: cfg.KeepaliveInterval,
	})

	n, err := mgr.Resume(ctx)
	if err != nil {
		return fmt.Errorf("resume rooms: %w", err)
	}
	logger.Infof("resumed %d running rooms", n)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handlers.NewServer(mgr, logger).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Running on %s with %s store", cfg.Addr(), cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Streams stay open until their clients leave, so a timeout here is expected.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("shutdown incomplete")
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Config, rdb *redis.Client, logger *logrus.Logger) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		logger.Warn("memory store: rooms will not survive a restart")
		return store.NewMemory(), nil
	case config.BackendSQLite:
		return store.OpenSQLite(cfg.SQLitePath)
	case config.BackendRedis:
		return store.NewRedis(rdb), nil
	case config.BackendPostgres:
		db, err := database.ConnectDB(ctx, cfg.PostgresURL(), logger)
		if err != nil {
			return nil, err
		}
		return store.NewPostgres(db), nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.StoreBackend)
}
