// Package cache provides the shared, TTL-bounded key/value store used for
// provider backoff markers and DNS record caching.
//
// Two drivers exist: Memory for a single process and Redis for state shared
// across workers and hosts. Both are safe for concurrent use, and neither
// adds locking beyond what the underlying store already guarantees.
package cache
