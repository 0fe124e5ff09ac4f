// Package redisstore wraps the redis client used for shared rate-limit
// counters and as the cache dependency probed by the health aggregator.
package redisstore

import (
	"context"
	"time"

	"github.com/concordia-platform/ai-monitor-go/internal/domain"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// incrWindowScript increments a fixed-window counter and stamps the
// window expiry on first touch, atomically in one round trip.
var incrWindowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
return {count, ttl}
`)

// Client is a thin wrapper over go-redis.
type Client struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewClient connects to redis at addr. The connection is lazy; Ping
// reports actual reachability.
func NewClient(addr, password string, db int, logger *zap.Logger) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Client{rdb: rdb, logger: logger}
}

// Ping checks connectivity. Used by the health aggregator.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Incr bumps the fixed-window counter for key, creating it with the
// window expiry when absent. Returns the post-increment count and the
// remaining window.
func (c *Client) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	res, err := incrWindowScript.Run(ctx, c.rdb, []string{key}, window.Milliseconds()).Result()
	if err != nil {
		return 0, 0, err
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return 0, 0, redis.Nil
	}
	count, _ := vals[0].(int64)
	ttlMs, _ := vals[1].(int64)
	if ttlMs < 0 {
		ttlMs = window.Milliseconds()
	}
	return count, time.Duration(ttlMs) * time.Millisecond, nil
}

// PoolStats exposes the client's own connection-pool counters for the
// detailed health view.
func (c *Client) PoolStats() *domain.RedisPoolStats {
	s := c.rdb.PoolStats()
	return &domain.RedisPoolStats{
		TotalConns: s.TotalConns,
		IdleConns:  s.IdleConns,
		Hits:       s.Hits,
		Misses:     s.Misses,
		Timeouts:   s.Timeouts,
	}
}

// Close releases the underlying pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}
