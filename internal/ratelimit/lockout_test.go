package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "kindergarten/pkg/domain-errors"
	"kindergarten/pkg/requestcontext"
)

var start = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func at(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func TestLockoutAfterLimit(t *testing.T) {
	l := NewLockout(NewMemoryStore(), WithConfig(Config{AttemptsPerWindow: 3, Window: time.Minute}))
	ctx := at(start)

	for range 2 {
		require.NoError(t, l.Check(ctx, "noa@example.com", "10.0.0.1"))
		l.RecordFailure(ctx, "noa@example.com", "10.0.0.1")
	}
	require.NoError(t, l.Check(ctx, "noa@example.com", "10.0.0.1"))
	l.RecordFailure(ctx, "noa@example.com", "10.0.0.1")

	err := l.Check(at(start.Add(10*time.Second)), "NOA@example.com ", "10.0.0.1")
	var locked *LockedError
	require.True(t, errors.As(err, &locked))
	assert.Equal(t, 50*time.Second, locked.RetryAfter)
	assert.Equal(t, dErrors.CodeRateLimited, dErrors.CodeOf(err))

	assert.NoError(t, l.Check(ctx, "noa@example.com", "10.0.0.2"), "other addresses are unaffected")
	assert.NoError(t, l.Check(at(start.Add(time.Minute)), "noa@example.com", "10.0.0.1"), "window resets")
}

func TestClearForgetsFailures(t *testing.T) {
	l := NewLockout(NewMemoryStore(), WithConfig(Config{AttemptsPerWindow: 1, Window: time.Minute}))
	ctx := at(start)

	l.RecordFailure(ctx, "noa@example.com", "10.0.0.1")
	require.Error(t, l.Check(ctx, "noa@example.com", "10.0.0.1"))

	l.Clear(ctx, "noa@example.com", "10.0.0.1")
	assert.NoError(t, l.Check(ctx, "noa@example.com", "10.0.0.1"))
}

type brokenStore struct{}

func (brokenStore) RecordFailure(context.Context, string, time.Time, time.Duration) (int, time.Time, error) {
	return 0, time.Time{}, errors.New("down")
}

func (brokenStore) Failures(context.Context, string, time.Time) (int, time.Time, error) {
	return 0, time.Time{}, errors.New("down")
}

func (brokenStore) Clear(context.Context, string) error { return errors.New("down") }

func TestStoreFailureAllowsAttempt(t *testing.T) {
	l := NewLockout(brokenStore{})
	ctx := at(start)

	l.RecordFailure(ctx, "noa@example.com", "10.0.0.1")
	assert.NoError(t, l.Check(ctx, "noa@example.com", "10.0.0.1"))
	l.Clear(ctx, "noa@example.com", "10.0.0.1")
}

func TestMemoryStoreWindow(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	n, reset, err := s.RecordFailure(ctx, "k", start, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, start.Add(time.Minute), reset)

	n, reset, err = s.RecordFailure(ctx, "k", start.Add(30*time.Second), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, start.Add(time.Minute), reset, "window does not slide")

	n, _, err = s.Failures(ctx, "k", start.Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)
}
