// Package cache provides the durable key-value space that holds per-viewer
// state, backed by the primary database, Redis or process memory.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNoStore is returned by methods called on a nil store.
var ErrNoStore = errors.New("cache: store not initialised")

// Store is the durable key-value space. A ttl of zero stores the value
// without expiry. Get reports a missing or expired key as ok == false with a
// nil error.
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// GetJSON decodes the JSON value stored under key into a T.
func GetJSON[T any](ctx context.Context, s Store, key string) (T, bool, error) {
	var out T
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return out, false, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false, fmt.Errorf("cache: decode %q: %w", key, err)
	}
	return out, true, nil
}

// SetJSON stores value under key as JSON.
func SetJSON(ctx context.Context, s Store, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %q: %w", key, err)
	}
	return s.Set(ctx, key, raw, ttl)
}
