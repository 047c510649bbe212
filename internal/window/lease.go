package window

import (
	"context"
	"sync"
)

// Lease keeps two processes from sweeping at the same time. The Redis lease
// in platform/redis satisfies it.
type Lease interface {
	Acquire(ctx context.Context) (release func(context.Context) error, ok bool, err error)
}

// LocalLease serializes sweeps inside one process.
type LocalLease struct {
	mu sync.Mutex
}

func (l *LocalLease) Acquire(context.Context) (func(context.Context) error, bool, error) {
	if !l.mu.TryLock() {
		return nil, false, nil
	}
	var once sync.Once
	return func(context.Context) error {
		once.Do(l.mu.Unlock)
		return nil
	}, true, nil
}
