// Package config reads server configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config is the full server configuration.
type Config struct {
	Port     string `env:"PORT"      envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	StoreBackend string `env:"STORE_BACKEND" envDefault:"sqlite"`
	SQLitePath   string `env:"SQLITE_PATH"   envDefault:"drillroom.db"`

	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisDB   int    `env:"REDIS_DB"   envDefault:"0"`

	// DatabaseURL wins over the discrete PG_* settings when set.
	DatabaseURL string `env:"DATABASE_URL"`
	PGUser      string `env:"POSTGRES_USER"`
	PGPassword  string `env:"POSTGRES_PASSWORD"`
	PGHost      string `env:"PG_HOST" envDefault:"localhost"`
	PGPort      string `env:"PG_PORT" envDefault:"5432"`
	PGDatabase  string `env:"PG_DATABASE" envDefault:"drillroom"`

	TickInterval      time.Duration `env:"TICK_INTERVAL"      envDefault:"30s"`
	KeepaliveInterval time.Duration `env:"KEEPALIVE_INTERVAL" envDefault:"15s"`

	JournalEnabled     bool   `env:"JOURNAL_ENABLED"      envDefault:"false"`
	HistorianQueueName string `env:"HISTORIAN_QUEUE_NAME" envDefault:"drillroom_timeline"`

	// Read by cmd/historian only.
	HistorianBatchSize     int           `env:"HISTORIAN_BATCH_SIZE"     envDefault:"20"`
	HistorianFlushInterval time.Duration `env:"HISTORIAN_FLUSH_INTERVAL" envDefault:"500ms"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendSQLite, BackendRedis, BackendPostgres:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	if c.TickInterval <= 0 || c.KeepaliveInterval <= 0 {
		return fmt.Errorf("TICK_INTERVAL and KEEPALIVE_INTERVAL must be positive")
	}
	if c.HistorianBatchSize <= 0 || c.HistorianFlushInterval <= 0 {
		return fmt.Errorf("HISTORIAN_BATCH_SIZE and HISTORIAN_FLUSH_INTERVAL must be positive")
	}
	if c.StoreBackend == BackendSQLite && c.SQLitePath == "" {
		return fmt.Errorf("SQLITE_PATH is required for the sqlite backend")
	}
	return nil
}

// Level returns the parsed log level, defaulting to info.
func (c Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// Addr is the listen address.
func (c Config) Addr() string {
	return ":" + c.Port
}

// PostgresURL returns DATABASE_URL, or a URL assembled from the PG_* settings.
func (c Config) PostgresURL() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.PGUser, c.PGPassword),
		Host:   c.PGHost + ":" + c.PGPort,
		Path:   "/" + c.PGDatabase,
	}
	return u.String()
}

// NeedsRedis reports whether any configured component talks to Redis.
func (c Config) NeedsRedis() bool {
	return c.StoreBackend == BackendRedis || c.JournalEnabled
}
