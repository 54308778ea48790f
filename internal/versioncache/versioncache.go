// Package versioncache memoizes VersionLister's aggregate JSON payload
// in Redis so a burst of Version requests does not refork every
// configured compiler. A cache miss or a Redis error both degrade to
// "rebuild from scratch" — never to a failed Version request.
package versioncache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mmizutani/wandbox/pkg/logger"
)

// Cache is the narrow interface VersionLister depends on.
type Cache interface {
	Get(ctx context.Context) (payload []byte, ok bool)
	Set(ctx context.Context, payload []byte)
}

// Noop never hits, so the caller always rebuilds. Used when
// versionCache.enabled is false.
type Noop struct{}

func (Noop) Get(context.Context) ([]byte, bool) { return nil, false }
func (Noop) Set(context.Context, []byte)        {}

var _ Cache = Noop{}

// Redis is a Cache backed by a single fixed key with a TTL.
type Redis struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedis builds a Redis-backed cache. It does not ping at
// construction time: a down Redis should degrade requests one at a
// time, not fail startup.
func NewRedis(addr, key string, ttl time.Duration) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:         addr,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  2 * time.Second,
			WriteTimeout: 2 * time.Second,
		}),
		key: key,
		ttl: ttl,
	}
}

// Get returns the cached payload, if present and unexpired.
func (r *Redis) Get(ctx context.Context) ([]byte, bool) {
	payload, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Warnf(ctx, "version cache get: %v", err)
		}
		return nil, false
	}
	return payload, true
}

// Set stores payload with the configured TTL. Failures are logged and
// swallowed.
func (r *Redis) Set(ctx context.Context, payload []byte) {
	if err := r.client.Set(ctx, r.key, payload, r.ttl).Err(); err != nil {
		logger.Warnf(ctx, "version cache set: %v", err)
	}
}

// Close releases the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}

var _ Cache = (*Redis)(nil)
