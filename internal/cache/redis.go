package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisNamespace = "learnhub"
	redisTimeout   = 5 * time.Second
)

// RedisConfig captures the connection parameters for RedisStore.
type RedisConfig struct {
	Address  string
	Username string
	Password string
	DB       int
	TLS      bool
	Timeout  time.Duration
}

func (c RedisConfig) options() (*redis.Options, error) {
	addr := strings.TrimSpace(c.Address)
	if addr == "" {
		return nil, errors.New("redis: address is required")
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = redisTimeout
	}
	opts := &redis.Options{
		Addr:         addr,
		Username:     c.Username,
		Password:     c.Password,
		DB:           c.DB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}
	if c.TLS {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host}
	}
	return opts, nil
}

// redisCommands is the subset of redis.Cmdable used by RedisStore.
type redisCommands interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore implements Store on Redis under the "learnhub:" namespace.
type RedisStore struct {
	cmd    redisCommands
	client *redis.Client
}

// NewRedisStore dials Redis and fails unless PING succeeds.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	opts, err := cfg.options()
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", opts.Addr, err)
	}
	return &RedisStore{cmd: client, client: client}, nil
}

func newRedisStoreWith(cmd redisCommands) *RedisStore {
	return &RedisStore{cmd: cmd}
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.cmd.Ping(ctx).Err()
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.cmd.Set(ctx, redisKey(key), value, max(ttl, 0)).Err()
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.cmd.Get(ctx, redisKey(key)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return value, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	names := make([]string, len(keys))
	for i, key := range keys {
		names[i] = redisKey(key)
	}
	return s.cmd.Del(ctx, names...).Err()
}

// redisKey namespaces key and drops empty segments, so "a::b" and
// "learnhub:a:b" both map to "learnhub:a:b".
func redisKey(key string) string {
	parts := strings.FieldsFunc(key, func(r rune) bool { return r == ':' })
	if len(parts) == 0 || parts[0] != redisNamespace {
		parts = append([]string{redisNamespace}, parts...)
	}
	return strings.Join(parts, ":")
}
