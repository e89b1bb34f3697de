package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrLuaScript increments a daily counter and sets its expiry on creation.
const incrLuaScript = `
local key = KEYS[1]
local increment = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

local newVal = redis.call("INCRBY", key, increment)
if newVal == increment then
    redis.call("EXPIRE", key, ttl)
end
return newVal
`

// seedLuaScript sets a counter only when absent so a concurrent increment
// is never overwritten.
const seedLuaScript = `
local key = KEYS[1]
local value = ARGV[1]
local ttl = tonumber(ARGV[2])

if redis.call("SET", key, value, "NX", "EX", ttl) then
    return tonumber(value)
end
return tonumber(redis.call("GET", key))
`

// counterTTL keeps a day's counters a little past midnight for inspection.
const counterTTL = 26 * time.Hour

// RedisCounter keeps per-day usage counters in Redis and seeds them from the
// store on first read of the day.
type RedisCounter struct {
	redis *redis.Client
	store Counter
	incr  *redis.Script
	seed  *redis.Script
}

// NewRedisCounter wraps store with Redis counters.
func NewRedisCounter(client *redis.Client, store Counter) *RedisCounter {
	return &RedisCounter{
		redis: client,
		store: store,
		incr:  redis.NewScript(incrLuaScript),
		seed:  redis.NewScript(seedLuaScript),
	}
}

func counterKey(userID string, day time.Time, kind string) string {
	return fmt.Sprintf("quota:%s:%s:%s", userID, day.UTC().Format("2006-01-02"), kind)
}

// CountEmailsSince returns today's email count.
func (c *RedisCounter) CountEmailsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	return c.read(ctx, counterKey(userID, since, "emails"), func() (int, error) {
		return c.store.CountEmailsSince(ctx, userID, since)
	})
}

// CountTasksSince returns today's task count.
func (c *RedisCounter) CountTasksSince(ctx context.Context, userID string, since time.Time) (int, error) {
	return c.read(ctx, counterKey(userID, since, "tasks"), func() (int, error) {
		return c.store.CountTasksSince(ctx, userID, since)
	})
}

func (c *RedisCounter) read(ctx context.Context, key string, fallback func() (int, error)) (int, error) {
	n, err := c.redis.Get(ctx, key).Int()
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, redis.Nil) {
		// Redis unavailable: the store is authoritative.
		return fallback()
	}
	stored, err := fallback()
	if err != nil {
		return 0, err
	}
	seeded, err := c.seed.Run(ctx, c.redis, []string{key}, stored, int(counterTTL.Seconds())).Int()
	if err != nil {
		return stored, nil
	}
	return seeded, nil
}

// RecordEmails adds n sent emails to the day's counter.
func (c *RedisCounter) RecordEmails(ctx context.Context, userID string, day time.Time, n int) error {
	return c.add(ctx, counterKey(userID, day, "emails"), n)
}

// RecordTasks adds n created tasks to the day's counter.
func (c *RedisCounter) RecordTasks(ctx context.Context, userID string, day time.Time, n int) error {
	return c.add(ctx, counterKey(userID, day, "tasks"), n)
}

func (c *RedisCounter) add(ctx context.Context, key string, n int) error {
	// Only counters already seeded are incremented; an unseeded key is
	// rebuilt from the store on next read and would double count otherwise.
	exists, err := c.redis.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redis exists: %w", err)
	}
	if exists == 0 {
		return nil
	}
	if err := c.incr.Run(ctx, c.redis, []string{key}, n, int(counterTTL.Seconds())).Err(); err != nil {
		return fmt.Errorf("redis incr: %w", err)
	}
	return nil
}
