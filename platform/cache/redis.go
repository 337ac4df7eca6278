package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Cache backed by a redis instance, used so multiple API
// replicas share one CRM status-name cache.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a redis-backed cache from a redis URL.
func NewRedis(redisURL string) (*Redis, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &Redis{client: redis.NewClient(opt)}, nil
}

// NewRedisWithClient wraps an existing redis client.
func NewRedisWithClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Get returns the cached value; any redis error is treated as a miss.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	value, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return value, true
}

// Set stores value under key for ttl. Errors are ignored: the cache is an
// optimization, never a correctness requirement.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	_ = r.client.Set(ctx, key, value, ttl).Err()
}

// Close releases the underlying redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Compile-time check that Redis implements Cache.
var _ Cache = (*Redis)(nil)
