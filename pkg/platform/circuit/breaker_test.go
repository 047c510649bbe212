package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// replay feeds outcomes to b, 'f' for a failure and 's' for a success, and
// returns the transitions seen.
func replay(b *Breaker, outcomes string) (opened, closed int) {
	for _, o := range outcomes {
		var change StateChange
		if o == 'f' {
			_, change = b.RecordFailure()
		} else {
			_, change = b.RecordSuccess()
		}
		if change.Opened {
			opened++
		}
		if change.Closed {
			closed++
		}
	}
	return opened, closed
}

func TestBreakerTransitions(t *testing.T) {
	tests := []struct {
		name       string
		failures   int
		successes  int
		outcomes   string
		wantState  State
		wantOpened int
		wantClosed int
	}{
		{name: "below threshold", failures: 3, successes: 1, outcomes: "ff", wantState: StateClosed},
		{name: "opens at threshold", failures: 3, successes: 1, outcomes: "fff", wantState: StateOpen, wantOpened: 1},
		{name: "success resets failures", failures: 3, successes: 1, outcomes: "ffsff", wantState: StateClosed},
		{name: "stays open on more failures", failures: 1, successes: 1, outcomes: "fff", wantState: StateOpen, wantOpened: 1},
		{name: "closes after successes", failures: 1, successes: 2, outcomes: "fss", wantState: StateClosed, wantOpened: 1, wantClosed: 1},
		{name: "failure resets successes", failures: 1, successes: 3, outcomes: "fssfss", wantState: StateOpen, wantOpened: 1},
		{name: "reopens after closing", failures: 2, successes: 1, outcomes: "ffsff", wantState: StateOpen, wantOpened: 2, wantClosed: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("kafka-events", WithFailureThreshold(tt.failures), WithSuccessThreshold(tt.successes))
			opened, closed := replay(b, tt.outcomes)
			assert.Equal(t, tt.wantState, b.State())
			assert.Equal(t, tt.wantOpened, opened)
			assert.Equal(t, tt.wantClosed, closed)
		})
	}
}

func TestBreakerFallbackFlags(t *testing.T) {
	b := New("kafka-events", WithFailureThreshold(1))
	require.Equal(t, "kafka-events", b.Name())

	useFallback, _ := b.RecordFailure()
	assert.True(t, useFallback)
	usePrimary, _ := b.RecordSuccess()
	assert.True(t, usePrimary)
}

func TestBreakerAllowAfterCooldown(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	b := New("kafka-events", WithFailureThreshold(1), WithCooldown(time.Minute), WithClock(func() time.Time { return now }))

	assert.True(t, b.Allow())
	b.RecordFailure()
	assert.False(t, b.Allow())

	now = now.Add(time.Minute)
	assert.True(t, b.Allow())

	// A failed probe restarts the cooldown.
	b.RecordFailure()
	assert.False(t, b.Allow())
}
