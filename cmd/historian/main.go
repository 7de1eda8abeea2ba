// cmd/historian/main.go drains the room timeline queue from Redis into PostgreSQL.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/drillroom/internal/cache"
	"github.com/jason-s-yu/drillroom/internal/config"
	"github.com/jason-s-yu/drillroom/internal/database"
	"github.com/jason-s-yu/drillroom/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	logger.SetLevel(cfg.Level())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Fatal(err)
	}
	defer rdb.Close()

	db, err := database.ConnectDB(ctx, cfg.PostgresURL(), logger)
	if err != nil {
		logger.Fatal(err)
	}
	defer db.Close()

	svc := historian.New(rdb, historian.NewPostgresWriter(db), historian.Options{
		Queue:      cfg.HistorianQueueName,
		BatchSize:  cfg.HistorianBatchSize,
		FlushDelay: cfg.HistorianFlushInterval,
	}, logger)
	if err := svc.Run(ctx); err != nil {
		logger.WithError(err).Error("final flush failed")
	}
	logger.Info("historian shutdown complete")
}
