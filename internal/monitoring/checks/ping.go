// Package checks holds the readiness probes registered by the server.
package checks

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/learnhub/internal/monitoring"
)

const pingTimeout = 2 * time.Second

// RedisPinger is satisfied by cache.RedisStore.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

var errNoDatabase = errors.New("database not configured")

// Database pings the connection pool behind db.
func Database(db *gorm.DB, timeout time.Duration) monitoring.Check {
	return pingCheck("database", timeout, func(ctx context.Context) error {
		if db == nil {
			return errNoDatabase
		}
		pool, err := db.DB()
		if err != nil {
			return err
		}
		return pool.PingContext(ctx)
	})
}

// Redis pings the durable viewer-state store. enabled reports whether the
// configuration asked for Redis at all; a nil client with enabled set means
// startup fell back to the database store.
func Redis(client RedisPinger, enabled bool, timeout time.Duration) monitoring.Check {
	switch {
	case !enabled:
		return fixed("redis", monitoring.StatusUp, "redis disabled")
	case client == nil:
		return fixed("redis", monitoring.StatusDegraded, "using database store fallback")
	}
	return pingCheck("redis", timeout, client.Ping)
}

func pingCheck(name string, timeout time.Duration, ping func(context.Context) error) monitoring.Check {
	if timeout <= 0 {
		timeout = pingTimeout
	}
	return monitoring.NewCheck(name, func(ctx context.Context) monitoring.ProbeResult {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		began := time.Now()
		err := ping(ctx)
		return monitoring.ResultFromError(err, time.Since(began))
	})
}

func fixed(name string, status monitoring.ProbeStatus, details string) monitoring.Check {
	return monitoring.NewCheck(name, func(context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: status, Details: details}
	})
}
