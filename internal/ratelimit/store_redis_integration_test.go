//go:build integration

package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kindergarten/internal/ratelimit"
	"kindergarten/pkg/testutil/containers"
)

func TestRedisStore(t *testing.T) {
	rc := containers.GetManager().GetRedis(t)
	rc.Reset(t)
	ctx := context.Background()
	s := ratelimit.NewRedisStore(rc.Client)
	now := time.Now()

	n, _, err := s.Failures(ctx, "noa|10.0.0.1", now)
	require.NoError(t, err)
	assert.Zero(t, n)

	for want := 1; want <= 3; want++ {
		n, reset, err := s.RecordFailure(ctx, "noa|10.0.0.1", now, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, n)
		assert.WithinDuration(t, now.Add(time.Minute), reset, 2*time.Second)
	}

	n, reset, err := s.Failures(ctx, "noa|10.0.0.1", now)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.True(t, reset.After(now))

	require.NoError(t, s.Clear(ctx, "noa|10.0.0.1"))
	n, _, err = s.Failures(ctx, "noa|10.0.0.1", now)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisStoreLocksOut(t *testing.T) {
	rc := containers.GetManager().GetRedis(t)
	rc.Reset(t)
	l := ratelimit.NewLockout(ratelimit.NewRedisStore(rc.Client),
		ratelimit.WithConfig(ratelimit.Config{AttemptsPerWindow: 2, Window: time.Minute}))
	ctx := context.Background()

	l.RecordFailure(ctx, "noa@example.com", "10.0.0.1")
	require.NoError(t, l.Check(ctx, "noa@example.com", "10.0.0.1"))
	l.RecordFailure(ctx, "noa@example.com", "10.0.0.1")
	require.Error(t, l.Check(ctx, "noa@example.com", "10.0.0.1"))
}
