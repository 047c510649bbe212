package rating

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	kgredis "kindergarten/internal/platform/redis"
)

// rankingKey holds the full ranking; callers slice it.
const rankingKey = "kindergarten:ranking"

// RankingCache stores the computed ranking between review writes.
type RankingCache interface {
	Get(ctx context.Context) ([]RankedGarden, bool, error)
	Set(ctx context.Context, ranking []RankedGarden) error
	Invalidate(ctx context.Context) error
}

// NopCache never holds anything.
type NopCache struct{}

func (NopCache) Get(context.Context) ([]RankedGarden, bool, error) { return nil, false, nil }
func (NopCache) Set(context.Context, []RankedGarden) error { return nil }
func (NopCache) Invalidate(context.Context) error { return nil }

// RedisCache keeps the ranking as JSON under one key with a TTL.
type RedisCache struct {
	client *kgredis.Client
	ttl    time.Duration
}

func NewRedisCache(client *kgredis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context) ([]RankedGarden, bool, error) {
	raw, err := c.client.Get(ctx, rankingKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read ranking cache: %w", err)
	}
	var ranking []RankedGarden
	if err := json.Unmarshal(raw, &ranking); err != nil {
		return nil, false, fmt.Errorf("decode ranking cache: %w", err)
	}
	return ranking, true, nil
}

func (c *RedisCache) Set(ctx context.Context, ranking []RankedGarden) error {
	raw, err := json.Marshal(ranking)
	if err != nil {
		return fmt.Errorf("encode ranking cache: %w", err)
	}
	if err := c.client.Set(ctx, rankingKey, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("write ranking cache: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, rankingKey).Err(); err != nil {
		return fmt.Errorf("invalidate ranking cache: %w", err)
	}
	return nil
}
