package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// PopulateFunc computes a value on a cache miss.
type PopulateFunc func(ctx context.Context) ([]byte, error)

// Store is a TTL-bounded key/value store. A ttl <= 0 stores without expiry.
type Store interface {
	// Remember returns the cached value for key, or calls fn, stores its result
	// for ttl and returns it. Errors from fn are returned and nothing is stored.
	Remember(ctx context.Context, key string, ttl time.Duration, fn PopulateFunc) ([]byte, error)
	Has(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Forget(ctx context.Context, key string) error
}

// RememberJSON is Remember for JSON-encodable values.
func RememberJSON[T any](ctx context.Context, s Store, key string, ttl time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	raw, err := s.Remember(ctx, key, ttl, func(ctx context.Context) ([]byte, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		return zero, err
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, fmt.Errorf("decoding cached value for %q: %w", key, err)
	}
	return out, nil
}
