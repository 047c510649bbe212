// Package fanout runs one logical write as an ordered plan of independent
// document writes and reports per-step outcomes. A plan is the resumable unit:
// steps already done are skipped when it runs again.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	dErrors "kindergarten/pkg/domain-errors"
)

// Status is the outcome of one step.
type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// ErrSkip is returned by a step that found its write already applied.
var ErrSkip = errors.New("step already applied")

// Step is one document write in a plan.
type Step struct {
	Name    string       `json:"step"`
	Status  Status       `json:"status"`
	Code    dErrors.Code `json:"code,omitempty"`
	Message string       `json:"message,omitempty"`

	// Abort stops the plan when this step fails; later steps stay pending
	// and the step's own error is returned instead of a partial report.
	Abort bool `json:"-"`

	run func(ctx context.Context) error
	err error
}

// Err is the failure of the last run, or nil.
func (s *Step) Err() error { return s.err }

func (s *Step) completed() bool {
	return s.Status == StatusDone || s.Status == StatusSkipped
}

// Plan is an ordered list of steps for one operation.
type Plan struct {
	Operation string  `json:"operation"`
	SagaID    string  `json:"sagaId,omitempty"`
	Steps     []*Step `json:"steps"`
}

// NewPlan starts an empty plan for operation.
func NewPlan(operation string) *Plan {
	return &Plan{Operation: operation}
}

// Add appends a step whose failure does not stop the plan.
func (p *Plan) Add(name string, run func(ctx context.Context) error) *Plan {
	p.Steps = append(p.Steps, &Step{Name: name, Status: StatusPending, run: run})
	return p
}

// AddAborting appends a step whose failure stops the plan.
func (p *Plan) AddAborting(name string, run func(ctx context.Context) error) *Plan {
	p.Steps = append(p.Steps, &Step{Name: name, Status: StatusPending, Abort: true, run: run})
	return p
}

// Step returns the step called name, or nil.
func (p *Plan) Step(name string) *Step {
	for _, s := range p.Steps {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// MarkDone records steps completed by an earlier run so they are not
// re-executed.
func (p *Plan) MarkDone(names ...string) {
	for _, name := range names {
		if s := p.Step(name); s != nil {
			s.Status = StatusDone
		}
	}
}

// Completed lists the names of done or skipped steps.
func (p *Plan) Completed() []string {
	var out []string
	for _, s := range p.Steps {
		if s.completed() {
			out = append(out, s.Name)
		}
	}
	return out
}

// Pending lists the names of steps still to run, failed ones included.
func (p *Plan) Pending() []string {
	var out []string
	for _, s := range p.Steps {
		if !s.completed() {
			out = append(out, s.Name)
		}
	}
	return out
}

// Failed returns the failed steps.
func (p *Plan) Failed() []*Step {
	var out []*Step
	for _, s := range p.Steps {
		if s.Status == StatusFailed {
			out = append(out, s)
		}
	}
	return out
}

// Error reports a plan that ended with some steps applied and others failed.
// It carries the plan so callers can inspect or resume it.
type Error struct {
	Plan *Plan
	err  error
}

func newError(p *Plan) *Error {
	var errs []error
	for _, s := range p.Failed() {
		errs = append(errs, s.err)
	}
	return &Error{Plan: p, err: errors.Join(errs...)}
}

func (e *Error) Error() string {
	failed := e.Plan.Failed()
	names := make([]string, len(failed))
	for i, s := range failed {
		names[i] = s.Name
	}
	return fmt.Sprintf("%s partially applied: %d of %d steps failed (%s)",
		e.Plan.Operation, len(failed), len(e.Plan.Steps), strings.Join(names, ", "))
}

// Unwrap exposes the joined step failures.
func (e *Error) Unwrap() error { return e.err }

// ErrorCode implements domainerrors.Coder.
func (e *Error) ErrorCode() dErrors.Code { return dErrors.CodePartialFanOut }

// ErrorDetails is the per-step report written to the response body.
func (e *Error) ErrorDetails() any { return e.Plan }

// AsError extracts a partial fan-out report from err.
func AsError(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
