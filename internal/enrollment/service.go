// Package enrollment registers children into kindergartens and removes them,
// keeping the four child replicas in step: the parent's embedded list, the
// standalone Child document, the kindergarten children map, and each class
// children map.
//
// There is no cross-document transaction. Each operation runs as a fan-out
// plan of idempotent writes; a plan that stops half way is persisted as a
// saga and can be resumed.
package enrollment

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"kindergarten/internal/docstore"
	"kindergarten/internal/events"
	"kindergarten/internal/fanout"
	"kindergarten/internal/platform/metrics"
	"kindergarten/internal/store"
	dErrors "kindergarten/pkg/domain-errors"
	"kindergarten/pkg/requestcontext"
)

// Service coordinates registration and removal.
type Service struct {
	gardens  *store.Gardens
	children *store.Children
	parents  *store.Parents
	sagas    *SagaStore

	executor  *fanout.Executor
	publisher *events.Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics

	requireOpenWindow bool
	maxAttempts       int
	newID             func() string
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithPublisher(p *events.Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithRequireOpenWindow rejects registrations into kindergartens whose
// registration window is closed.
func WithRequireOpenWindow(require bool) Option {
	return func(s *Service) {
		s.requireOpenWindow = require
	}
}

// WithMaxAttempts bounds the optimistic-concurrency retries per write.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		s.maxAttempts = n
	}
}

// WithIDGenerator overrides child id generation.
func WithIDGenerator(f func() string) Option {
	return func(s *Service) {
		s.newID = f
	}
}

// New constructs a Service over ds.
func New(ds docstore.Store, opts ...Option) *Service {
	s := &Service{
		gardens:     store.NewGardens(ds),
		children:    store.NewChildren(ds),
		parents:     store.NewParents(ds),
		sagas:       NewSagaStore(ds),
		logger:      slog.New(slog.DiscardHandler),
		maxAttempts: docstore.DefaultMaxAttempts,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.executor = fanout.NewExecutor(s.logger, s.metrics)
	return s
}

// Sagas lists open sagas for operation, or all when operation is empty.
func (s *Service) Sagas(ctx context.Context, operation string) ([]*Saga, error) {
	sagas, err := s.sagas.List(ctx, operation)
	if err != nil {
		return nil, store.Translate(err, "enrollment saga")
	}
	return sagas, nil
}

// retry runs fn under the optimistic-concurrency loop and translates the
// outcome. Skips pass through untouched.
func (s *Service) retry(ctx context.Context, coll docstore.Collection, what string, fn func(ctx context.Context) error) error {
	err := docstore.RetryOnConflict(ctx, s.maxAttempts, func() {
		s.metrics.IncrementUpdateConflict(string(coll))
	}, fn)
	if err == nil || errors.Is(err, fanout.ErrSkip) {
		return err
	}
	return store.Translate(err, what)
}

// persistSaga records a partially applied plan and stamps its id on the plan.
func (s *Service) persistSaga(ctx context.Context, plan *fanout.Plan, saga *Saga) {
	now := requestcontext.Now(ctx)
	saga.Operation = plan.Operation
	saga.Completed = plan.Completed()
	saga.CreatedAt = now
	saga.UpdatedAt = now
	if err := s.sagas.Save(ctx, saga); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist enrollment saga",
			"operation", plan.Operation,
			"child_id", saga.ChildID,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return
	}
	plan.SagaID = saga.ID
}

// settleSaga updates or deletes a resumed saga after its plan ran.
func (s *Service) settleSaga(ctx context.Context, saga *Saga, plan *fanout.Plan, runErr error) error {
	plan.SagaID = saga.ID
	if runErr == nil {
		if err := s.sagas.Delete(ctx, saga.ID); err != nil {
			return store.Translate(err, "enrollment saga")
		}
		return nil
	}
	if _, partial := fanout.AsError(runErr); partial {
		if err := s.sagas.Progress(ctx, saga, plan.Completed(), requestcontext.Now(ctx)); err != nil {
			s.logger.ErrorContext(ctx, "failed to record saga progress",
				"saga_id", saga.ID,
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
	}
	return runErr
}

func (s *Service) loadSaga(ctx context.Context, id, operation string) (*Saga, error) {
	saga, err := s.sagas.Get(ctx, id)
	if err != nil {
		return nil, store.Translate(err, "enrollment saga")
	}
	if saga.Operation != operation {
		return nil, dErrors.New(dErrors.CodeBadRequest, "saga belongs to a different operation")
	}
	return saga, nil
}

func (s *Service) observe(operation string, start time.Time) {
	s.metrics.ObserveOperation(operation, start)
}
