package fanout

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"kindergarten/internal/platform/metrics"
	dErrors "kindergarten/pkg/domain-errors"
	"kindergarten/pkg/requestcontext"
)

const tracerName = "kindergarten/fanout"

// Executor runs plans step by step.
type Executor struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// NewExecutor builds an executor. A nil logger discards output; nil metrics
// are allowed.
func NewExecutor(logger *slog.Logger, m *metrics.Metrics) *Executor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{logger: logger, metrics: m, tracer: otel.Tracer(tracerName)}
}

// Run executes every step that has not completed yet, in order. Once started
// a plan is not cancelled by the caller's context.
//
// It returns nil when every step is done or skipped, the failing step's error
// when an aborting step fails, and *Error when any other step fails.
func (e *Executor) Run(ctx context.Context, plan *Plan) error {
	ctx = context.WithoutCancel(ctx)
	ctx, span := e.tracer.Start(ctx, plan.Operation,
		trace.WithAttributes(attribute.String("fanout.saga_id", plan.SagaID)))
	defer span.End()

	for _, step := range plan.Steps {
		if step.completed() {
			continue
		}
		err := e.runStep(ctx, plan, step)
		if err != nil && step.Abort {
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	if len(plan.Failed()) == 0 {
		return nil
	}
	e.metrics.IncrementPartialFanOut(plan.Operation)
	fe := newError(plan)
	span.SetStatus(codes.Error, fe.Error())
	e.logger.WarnContext(ctx, "fan-out partially applied",
		"operation", plan.Operation,
		"saga_id", plan.SagaID,
		"pending", plan.Pending(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return fe
}

func (e *Executor) runStep(ctx context.Context, plan *Plan, step *Step) error {
	ctx, span := e.tracer.Start(ctx, plan.Operation+"."+step.Name)
	defer span.End()

	err := step.run(ctx)
	switch {
	case err == nil:
		step.Status, step.Code, step.Message, step.err = StatusDone, "", "", nil
	case errors.Is(err, ErrSkip):
		step.Status, step.Code, step.Message, step.err = StatusSkipped, "", "", nil
		err = nil
	default:
		step.Status = StatusFailed
		step.Code = dErrors.CodeOf(err)
		step.Message = dErrors.Message(err)
		if step.Message == "" {
			step.Message = string(step.Code)
		}
		step.err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.ErrorContext(ctx, "fan-out step failed",
			"operation", plan.Operation,
			"step", step.Name,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	span.SetAttributes(attribute.String("fanout.status", string(step.Status)))
	e.metrics.IncrementFanOutStep(plan.Operation, step.Name, outcome(step.Status))
	return err
}

func outcome(s Status) string {
	switch s {
	case StatusDone:
		return metrics.OutcomeDone
	case StatusSkipped:
		return metrics.OutcomeSkipped
	default:
		return metrics.OutcomeFailed
	}
}
