// Package database opens the gorm handle that stores notifications,
// reminders and durable store entries.
package database

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/learnhub/pkg/logger"
)

// Config contains database connection options. DSN, when set, replaces the
// host based fields and Path.
type Config struct {
	Driver   string
	Path     string
	DSN      string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	Options  map[string]string

	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	// SlowQuery logs statements slower than this at warn level; zero disables it.
	SlowQuery time.Duration
}

// Open connects to the configured driver and applies pool settings.
func Open(cfg Config) (*gorm.DB, error) {
	d, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(d.dialector, &gorm.Config{
		NowFunc: nowUTC,
		Logger:  newGormLogger(logger.WithModule("database"), cfg.SlowQuery),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if d.driver == driverSQLite {
		if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	}
	return db, nil
}

// Close releases the pooled connections behind db.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping verifies the connection is usable.
func Ping(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// nowUTC keeps gorm-managed timestamps comparable across drivers.
func nowUTC() time.Time {
	return time.Now().UTC()
}
