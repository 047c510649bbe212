//go:build integration

package rating_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kindergarten/internal/rating"
	"kindergarten/pkg/testutil/containers"
)

func TestRedisCache(t *testing.T) {
	rc := containers.GetManager().GetRedis(t)
	rc.Reset(t)
	ctx := context.Background()

	cache := rating.NewRedisCache(rc.Client, time.Minute)

	_, ok, err := cache.Get(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	want := []rating.RankedGarden{{ID: "g1", Name: "Sunflower", AverageRating: 90, ReviewCount: 2}}
	require.NoError(t, cache.Set(ctx, want))

	got, ok, err := cache.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, want, got)

	ttl, err := rc.Client.TTL(ctx, "kindergarten:ranking").Result()
	require.NoError(t, err)
	require.Positive(t, ttl)

	require.NoError(t, cache.Invalidate(ctx))
	_, ok, err = cache.Get(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}
