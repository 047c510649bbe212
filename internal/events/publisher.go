package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"kindergarten/pkg/requestcontext"
)

// Sink persists or forwards events.
type Sink interface {
	Write(ctx context.Context, e Event) error
}

// Publisher stamps events and hands them to a sink, either inline or through
// a buffered queue drained by a Worker. A nil *Publisher drops everything.
type Publisher struct {
	sink   Sink
	logger *slog.Logger

	queue   chan Event
	wg      sync.WaitGroup
	closeMu sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLogger sets the logger used for sink failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

// WithAsync makes Emit enqueue into a buffer of size n. Events are dropped
// when the buffer is full.
func WithAsync(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.queue = make(chan Event, n)
		}
	}
}

// NewPublisher builds a publisher over sink.
func NewPublisher(sink Sink, opts ...Option) *Publisher {
	p := &Publisher{sink: sink, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(p)
	}
	if p.queue != nil {
		w := NewWorker(sink, p.queue, p.logger)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			w.Run()
		}()
	}
	return p
}

// Emit stamps e with the request time and actor when unset and publishes it.
func (p *Publisher) Emit(ctx context.Context, e Event) {
	if p == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = requestcontext.Now(ctx)
	}
	if e.Actor == "" {
		e.Actor = requestcontext.ActorEmail(ctx)
	}

	if p.queue == nil {
		if err := p.sink.Write(ctx, e); err != nil {
			p.logger.WarnContext(ctx, "failed to publish event",
				"type", e.Type,
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
		return
	}

	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if p.closed {
		p.dropped.Add(1)
		return
	}
	select {
	case p.queue <- e:
	default:
		p.dropped.Add(1)
		p.logger.WarnContext(ctx, "event queue full, dropping event",
			"type", e.Type,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

// Dropped counts events lost to a full queue or a closed publisher.
func (p *Publisher) Dropped() int64 {
	if p == nil {
		return 0
	}
	return p.dropped.Load()
}

// Close stops accepting events and waits for the queue to drain or ctx to end.
func (p *Publisher) Close(ctx context.Context) error {
	if p == nil || p.queue == nil {
		return nil
	}
	p.closeMu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.closeMu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
