package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	kgredis "kindergarten/internal/platform/redis"
)

const redisKeyPrefix = "kindergarten:login-failures:"

// recordScript increments the counter and sets its expiry on the first hit of
// a window, returning the count and remaining TTL in milliseconds.
var recordScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {n, redis.call("PTTL", KEYS[1])}
`)

// RedisStore shares counters between replicas. The window is the key's TTL.
type RedisStore struct {
	client *kgredis.Client
}

func NewRedisStore(client *kgredis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) RecordFailure(ctx context.Context, key string, now time.Time, length time.Duration) (int, time.Time, error) {
	res, err := recordScript.Run(ctx, s.client, []string{redisKeyPrefix + key}, length.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("record login failure: %w", err)
	}
	return int(res[0]), now.Add(time.Duration(res[1]) * time.Millisecond), nil
}

func (s *RedisStore) Failures(ctx context.Context, key string, now time.Time) (int, time.Time, error) {
	k := redisKeyPrefix + key
	pipe := s.client.Pipeline()
	get := pipe.Get(ctx, k)
	ttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, time.Time{}, fmt.Errorf("read login failures: %w", err)
	}
	n, err := get.Int()
	if errors.Is(err, redis.Nil) {
		return 0, time.Time{}, nil
	}
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("read login failures: %w", err)
	}
	return n, now.Add(ttl.Val()), nil
}

func (s *RedisStore) Clear(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("clear login failures: %w", err)
	}
	return nil
}
