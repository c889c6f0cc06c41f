package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"checkerminer/internal/logging"

	"github.com/redis/go-redis/v9"
)

// RedisCache is a Redis-backed implementation of Cache. Values are stored as
// JSON, so numbers come back as float64.
type RedisCache struct {
	client    *redis.Client
	namespace string
	stats     struct {
		hits   atomic.Int64
		misses atomic.Int64
		sets   atomic.Int64
	}
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr      string // host:port
	Password  string
	DB        int
	Namespace string // key prefix owned by this cache; Clear and Stats only touch it
}

// NewRedisCache connects to Redis and verifies the connection with PING.
func NewRedisCache(config RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logging.Cache("connected to Redis cache: addr=%s db=%d", config.Addr, config.DB)
	return newRedisCacheWithClient(client, config.Namespace), nil
}

func newRedisCacheWithClient(client *redis.Client, namespace string) *RedisCache {
	return &RedisCache{client: client, namespace: namespace}
}

// Get retrieves a value from Redis.
func (c *RedisCache) Get(key string) (any, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.stats.misses.Add(1)
		return nil, false
	}
	if err != nil {
		logging.CacheWarn("redis get failed: key=%s err=%v", key, err)
		c.stats.misses.Add(1)
		return nil, false
	}

	var result any
	if err := json.Unmarshal(val, &result); err != nil {
		logging.CacheWarn("json unmarshal failed: key=%s err=%v", key, err)
		c.stats.misses.Add(1)
		return nil, false
	}

	c.stats.hits.Add(1)
	return result, true
}

// Set stores a value with TTL. A TTL <= 0 keeps the key until deleted.
func (c *RedisCache) Set(key string, value any, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	data, err := json.Marshal(value)
	if err != nil {
		logging.CacheWarn("json marshal failed: key=%s err=%v", key, err)
		return
	}

	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		logging.CacheWarn("redis set failed: key=%s err=%v", key, err)
		return
	}

	c.stats.sets.Add(1)
}

// Delete removes a value from Redis.
func (c *RedisCache) Delete(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.client.Del(ctx, key).Err(); err != nil {
		logging.CacheWarn("redis delete failed: key=%s err=%v", key, err)
	}
}

// Clear removes every key in the namespace, or flushes the DB when no
// namespace is set.
func (c *RedisCache) Clear() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.namespace == "" {
		if err := c.client.FlushDB(ctx).Err(); err != nil {
			logging.CacheWarn("redis flush failed: %v", err)
		}
		return
	}

	keys, err := c.keys(ctx)
	if err != nil {
		logging.CacheWarn("redis scan failed: %v", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		logging.CacheWarn("redis clear failed: %v", err)
	}
}

func (c *RedisCache) keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, c.namespace+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

// Stats returns cache statistics. Redis expires keys itself, so Evictions is
// always zero.
func (c *RedisCache) Stats() CacheStats {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var size int
	if c.namespace == "" {
		n, err := c.client.DBSize(ctx).Result()
		if err != nil {
			logging.CacheWarn("redis dbsize failed: %v", err)
		}
		size = int(n)
	} else {
		keys, err := c.keys(ctx)
		if err != nil {
			logging.CacheWarn("redis scan failed: %v", err)
		}
		size = len(keys)
	}

	return CacheStats{
		Hits:        c.stats.hits.Load(),
		Misses:      c.stats.misses.Load(),
		Sets:        c.stats.sets.Load(),
		CurrentSize: size,
	}
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// HealthCheck checks if Redis is available.
func (c *RedisCache) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
