package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNowFallsBackToWallClock(t *testing.T) {
	before := time.Now()
	got := Now(context.Background())
	assert.False(t, got.Before(before))
}

func TestWithTime(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	ctx := WithTime(context.Background(), fixed)
	assert.Equal(t, fixed, Now(ctx))
}

func TestActor(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, ActorEmail(ctx))
	assert.Empty(t, ActorRole(ctx))

	ctx = WithActor(ctx, "dana@example.com", "director")
	assert.Equal(t, "dana@example.com", ActorEmail(ctx))
	assert.Equal(t, "director", ActorRole(ctx))
}
