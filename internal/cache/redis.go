package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oggyb/soundmatch/internal/config"
)

// PendingCountTTL bounds how stale a cached pending-match count can get.
const PendingCountTTL = time.Hour

type RedisCache struct {
	Client *redis.Client
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return &RedisCache{Client: redis.NewClient(opts)}
}

// NewFromClient wraps an existing client (tests pass a miniredis-backed one).
func NewFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{Client: client}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.Client.Close()
}

// KeyForPendingCount generates Redis key for a user's pending-match count.
func KeyForPendingCount(userID string) string {
	return fmt.Sprintf("matches:pending:%s", userID)
}

// SetPendingCount stores the count and refreshes its TTL.
func (c *RedisCache) SetPendingCount(ctx context.Context, userID string, count int64) error {
	return c.Client.Set(ctx, KeyForPendingCount(userID), count, PendingCountTTL).Err()
}

// GetPendingCount returns the cached count; ok is false on a cache miss.
func (c *RedisCache) GetPendingCount(ctx context.Context, userID string) (count int64, ok bool, err error) {
	key := KeyForPendingCount(userID)
	val, err := c.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil // cache miss
	} else if err != nil {
		return 0, false, err
	}
	// refresh TTL on access
	_ = c.Client.Expire(ctx, key, PendingCountTTL).Err()

	count, err = strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return count, true, nil
}

// InvalidatePendingCounts drops the cached counts of every given user.
func (c *RedisCache) InvalidatePendingCounts(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, KeyForPendingCount(id))
	}
	return c.Client.Del(ctx, keys...).Err()
}
