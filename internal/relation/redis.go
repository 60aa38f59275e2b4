package relation

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultRedisPrefix namespaces relation cache keys in a shared Redis.
const DefaultRedisPrefix = "schemadmin:relation:"

// RedisOptionCache is an OptionCache shared across service replicas.
// Redis errors are logged and treated as misses.
type RedisOptionCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisOptionCache creates a cache on the given client. A non-positive
// ttl falls back to five minutes.
func NewRedisOptionCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisOptionCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisOptionCache{client: client, prefix: DefaultRedisPrefix, ttl: ttl, logger: logger}
}

// Get implements OptionCache.
func (c *RedisOptionCache) Get(ctx context.Context, key string) (Resolution, bool) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("relation cache read failed", zap.String("key", key), zap.Error(err))
		}
		return Resolution{}, false
	}
	var res Resolution
	if err := json.Unmarshal(data, &res); err != nil {
		c.logger.Warn("relation cache entry corrupt", zap.String("key", key), zap.Error(err))
		return Resolution{}, false
	}
	return res, true
}

// Set implements OptionCache.
func (c *RedisOptionCache) Set(ctx context.Context, key string, res Resolution) {
	data, err := json.Marshal(res)
	if err != nil {
		c.logger.Warn("relation cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("relation cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Purge implements OptionCache by deleting every key under the prefix.
func (c *RedisOptionCache) Purge(ctx context.Context) {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("relation cache scan failed", zap.Error(err))
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("relation cache purge failed", zap.Error(err))
	}
}
