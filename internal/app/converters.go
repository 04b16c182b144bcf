package app

import (
	"strings"

	"github.com/charlesng35/learnhub/internal/auth"
	"github.com/charlesng35/learnhub/internal/cache"
	"github.com/charlesng35/learnhub/internal/database"
)

// JWTServiceConfig returns the token settings, falling back to the default
// access token lifetime.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		AccessTokenTTL: ttl,
	}
}

// DatabaseOpenConfig selects the host block that matches the driver. SQLite
// only uses Path or DSN.
func (c DatabaseConfig) DatabaseOpenConfig() database.Config {
	driver := strings.ToLower(strings.TrimSpace(c.Driver))
	cfg := database.Config{
		Driver:       driver,
		Path:         strings.TrimSpace(c.Path),
		DSN:          strings.TrimSpace(c.DSN),
		MaxOpenConns: c.MaxOpenConns,
		SlowQuery:    c.SlowQuery,
	}

	var hosted DBAuthConfig
	switch driver {
	case "postgres", "postgresql", "pg":
		hosted = c.Postgres
	case "mysql":
		hosted = c.MySQL
	default:
		return cfg
	}

	cfg.Host = strings.TrimSpace(hosted.Host)
	cfg.Port = hosted.Port
	cfg.Name = hosted.Database
	cfg.User = hosted.Username
	cfg.Password = hosted.Password
	if len(hosted.Options) > 0 {
		cfg.Options = hosted.Options
	}
	return cfg
}

// RedisClientConfig returns the Redis connection settings for the store
// selector. Whether Redis is used at all is decided by Redis.Enabled.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Address:  strings.TrimSpace(c.Redis.Address),
		Username: strings.TrimSpace(c.Redis.Username),
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TLS:      c.Redis.TLS,
		Timeout:  c.Redis.Timeout,
	}
}
