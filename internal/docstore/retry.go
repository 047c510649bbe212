package docstore

import (
	"context"
	"errors"
	"fmt"

	"kindergarten/pkg/platform/sentinel"
)

// DefaultMaxAttempts bounds optimistic-concurrency retries.
const DefaultMaxAttempts = 5

// ErrRetriesExhausted is returned by RetryOnConflict when every attempt lost
// its version race. It wraps the last conflict.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetryOnConflict runs fn until it returns something other than
// sentinel.ErrConflict or attempts run out. fn must re-read whatever it
// guards on each call. onConflict, when non-nil, observes each lost race.
func RetryOnConflict(ctx context.Context, attempts int, onConflict func(), fn func(ctx context.Context) error) error {
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	var last error
	for range attempts {
		if err := ctx.Err(); err != nil {
			return err
		}
		last = fn(ctx)
		if !errors.Is(last, sentinel.ErrConflict) {
			return last
		}
		if onConflict != nil {
			onConflict()
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, last)
}
