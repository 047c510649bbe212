package events

import (
	"context"
	"log/slog"
)

// Worker drains a queue of events into a sink until the queue is closed.
type Worker struct {
	sink   Sink
	inbox  <-chan Event
	logger *slog.Logger
}

func NewWorker(sink Sink, inbox <-chan Event, logger *slog.Logger) *Worker {
	return &Worker{sink: sink, inbox: inbox, logger: logger}
}

// Run returns once inbox is closed and empty. Sink failures are logged and
// the event is dropped.
func (w *Worker) Run() {
	ctx := context.Background()
	for event := range w.inbox {
		if err := w.sink.Write(ctx, event); err != nil {
			w.logger.WarnContext(ctx, "failed to publish event",
				"type", event.Type,
				"garden", event.GardenName,
				"error", err,
			)
		}
	}
}
