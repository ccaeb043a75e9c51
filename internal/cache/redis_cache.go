// Package cache stores encoded observations in Redis, scoped per sensor and agent.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/koios/sensor-bridge/internal/config"
)

// RedisCache is a shared Redis-backed observation cache
type RedisCache struct {
	client *redis.Client
}

// ScopedCache wraps RedisCache with sensor/agent context for key prefixing
type ScopedCache struct {
	cache    *RedisCache
	sensorID string
	agentID  string
}

// NewRedisCache creates a new shared Redis cache instance
func NewRedisCache(cfg *config.RedisConfig) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisCache{
		client: rdb,
	}
}

// NewRedisCacheFromClient creates a new Redis cache instance from an existing client
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{
		client: client,
	}
}

// WithContext creates a scoped cache with sensor/agent prefixing
func (r *RedisCache) WithContext(sensorID, agentID string) *ScopedCache {
	return &ScopedCache{
		cache:    r,
		sensorID: clean(sensorID),
		agentID:  clean(agentID),
	}
}

// Close closes the Redis connection
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// Ping tests the Redis connection
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// clean removes path separators so scoped keys stay three segments long
func clean(s string) string {
	return strings.ReplaceAll(s, "/", "_")
}

func (c *ScopedCache) buildKey(key string) string {
	return fmt.Sprintf("%s/%s/%s", c.sensorID, c.agentID, clean(key))
}

// Get retrieves a value from the cache. A missing key is not an error.
func (c *ScopedCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	cacheKey := c.buildKey(key)

	result, err := c.cache.client.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get key %s from Redis: %w", cacheKey, err)
	}

	return result, true, nil
}

// Set stores a value with the given TTL. A zero TTL keeps the key forever.
func (c *ScopedCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	cacheKey := c.buildKey(key)

	if err := c.cache.client.Set(ctx, cacheKey, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s in Redis: %w", cacheKey, err)
	}

	return nil
}

// FlushAgent removes all cache entries for the current sensor and agent
func (c *ScopedCache) FlushAgent(ctx context.Context) error {
	return c.cache.deleteMatching(ctx, fmt.Sprintf("%s/%s/*", c.sensorID, c.agentID))
}

// FlushSensor removes all cache entries for the current sensor across all agents
func (c *ScopedCache) FlushSensor(ctx context.Context) error {
	return c.cache.deleteMatching(ctx, fmt.Sprintf("%s/*", c.sensorID))
}

// Stats returns the number of entries cached for the current sensor and agent
func (c *ScopedCache) Stats(ctx context.Context) (int64, error) {
	pattern := fmt.Sprintf("%s/%s/*", c.sensorID, c.agentID)

	var count int64
	iter := c.cache.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		count++
	}

	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to count keys with pattern %s: %w", pattern, err)
	}

	return count, nil
}

func (r *RedisCache) deleteMatching(ctx context.Context, pattern string) error {
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string

	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan for keys with pattern %s: %w", pattern, err)
	}

	if len(keys) > 0 {
		if err := r.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to delete keys: %w", err)
		}
	}

	return nil
}
