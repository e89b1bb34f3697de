package recommendation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/enrollment-engine/internal/domain"
)

// RedisCache stores recommendation snapshots as JSON strings.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a cache on the given client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// CacheKey identifies a snapshot for a user, policy and UTC day.
func CacheKey(userID string, policy Policy, day time.Time) string {
	return fmt.Sprintf("recs:%s:%s:%s", userID, policy, day.UTC().Format("2006-01-02"))
}

// Get returns the cached snapshot, or false on a miss.
func (c *RedisCache) Get(ctx context.Context, key string) ([]domain.Recommendation, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	var recs []domain.Recommendation
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, false, fmt.Errorf("decode cached recommendations: %w", err)
	}
	return recs, true, nil
}

// Set stores a snapshot until ttl elapses.
func (c *RedisCache) Set(ctx context.Context, key string, recs []domain.Recommendation, ttl time.Duration) error {
	data, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("encode recommendations: %w", err)
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
