package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces every lapse key inside a shared Redis database.
const keyPrefix = "lapse:"

// Redis is a Store backed by a Redis server, shared by every worker that
// points at the same database.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedis wraps an existing client. The client's lifecycle stays with the caller.
func NewRedis(client *redis.Client, logger *slog.Logger) *Redis {
	return &Redis{client: client, logger: logger}
}

// Remember implements Store. A failed write-back is logged and the populated
// value is still returned.
func (r *Redis) Remember(ctx context.Context, key string, ttl time.Duration, fn PopulateFunc) ([]byte, error) {
	k := keyPrefix + key
	v, err := r.client.Get(ctx, k).Bytes()
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis get %q: %w", key, err)
	}
	v, err = fn(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.client.Set(ctx, k, v, ttl).Err(); err != nil {
		r.logger.Warn("redis write-back failed", "key", key, "error", err)
	}
	return v, nil
}

// Has implements Store.
func (r *Redis) Has(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, keyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %q: %w", key, err)
	}
	return n > 0, nil
}

// Put implements Store. SET with an expiry is atomic on the server.
func (r *Redis) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, keyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// Forget implements Store.
func (r *Redis) Forget(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}
