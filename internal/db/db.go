// Package db opens the database, migrates the schema and seeds the role table.
package db

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ioea/academy/internal/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Attempts and delay of the connection retry loop, so the server can start
// while Postgres is still coming up.
var (
	connectAttempts = 5
	connectDelay    = 2 * time.Second
)

func dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "", "postgres":
		return postgres.Open(cfg.DSN()), nil
	case "sqlite":
		return sqlite.Open(cfg.Path), nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}

// Open connects to the configured database, retrying a few times.
func Open(cfg config.DatabaseConfig, dev bool, log *slog.Logger) (*gorm.DB, error) {
	d, err := dialector(cfg)
	if err != nil {
		return nil, err
	}
	level := logger.Warn
	if dev {
		level = logger.Info
	}
	gcfg := &gorm.Config{Logger: logger.Default.LogMode(level)}

	var db *gorm.DB
	for i := 1; i <= connectAttempts; i++ {
		db, err = gorm.Open(d, gcfg)
		if err == nil {
			break
		}
		log.Warn("database connection failed, retrying",
			slog.Int("attempt", i), slog.Int("of", connectAttempts), slog.String("error", err.Error()))
		if i < connectAttempts {
			time.Sleep(connectDelay)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return db, nil
}
