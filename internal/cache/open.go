package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Drivers accepted by Open.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

const pingTimeout = 5 * time.Second

// Open builds the Store selected by driver. The returned close function
// releases any connection and is never nil.
func Open(ctx context.Context, driver, redisURL string, logger *slog.Logger) (Store, func() error, error) {
	switch driver {
	case "", DriverMemory:
		return NewMemory(), func() error { return nil }, nil
	case DriverRedis:
		if redisURL == "" {
			return nil, nil, fmt.Errorf("cache driver %q requires cache.redis_url", driver)
		}
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis URL: %w", err)
		}
		client := redis.NewClient(opts)

		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis ping failed: %w", err)
		}
		return NewRedis(client, logger), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache driver %q: must be %q or %q", driver, DriverMemory, DriverRedis)
	}
}
