// Package approval toggles and reads the approval flag of an enrollment.
//
// Approval lives only in the kindergarten-level children map. Class maps and
// the parent's embedded copies are never updated; class-level approval is
// derived from the kindergarten map when a roster is read.
package approval

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"kindergarten/internal/docstore"
	"kindergarten/internal/domain"
	"kindergarten/internal/events"
	"kindergarten/internal/platform/metrics"
	"kindergarten/internal/store"
	dErrors "kindergarten/pkg/domain-errors"
	"kindergarten/pkg/requestcontext"
)

// Service reads and writes enrollment approval.
type Service struct {
	gardens     *store.Gardens
	publisher   *events.Publisher
	logger      *slog.Logger
	metrics     *metrics.Metrics
	maxAttempts int
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

func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		s.maxAttempts = n
	}
}

// New constructs a Service over ds.
func New(ds docstore.Store, opts ...Option) *Service {
	s := &Service{
		gardens:     store.NewGardens(ds),
		logger:      slog.New(slog.DiscardHandler),
		maxAttempts: docstore.DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var errChildNotEnrolled = errors.New("child not enrolled")

// SetApproval sets children.<childID>.approved in the first kindergarten named
// gardenName. Only the flag is written. Setting the current value again is a
// harmless rewrite, so the last call wins.
func (s *Service) SetApproval(ctx context.Context, gardenName, childID string, approved bool) error {
	err := docstore.RetryOnConflict(ctx, s.maxAttempts, func() {
		s.metrics.IncrementUpdateConflict(string(docstore.Kindergartens))
	}, func(ctx context.Context) error {
		garden, err := s.gardens.FindByName(ctx, gardenName)
		if err != nil {
			return err
		}
		if _, ok := garden.Children[childID]; !ok {
			return errChildNotEnrolled
		}
		_, err = s.gardens.Update(ctx, garden.ID, garden.Version,
			docstore.Set(store.GardenChildPath(childID).Child("approved"), approved))
		return err
	})
	if errors.Is(err, errChildNotEnrolled) {
		return dErrors.New(dErrors.CodeNotFound, "child "+childID+" is not enrolled in "+gardenName)
	}
	if err != nil {
		return store.Translate(err, "kindergarten")
	}

	s.logger.InfoContext(ctx, "approval changed",
		"garden", gardenName,
		"child_id", childID,
		"approved", approved,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.publisher.Emit(ctx, events.Event{
		Type:       events.TypeApprovalChanged,
		GardenName: gardenName,
		ChildID:    childID,
		Payload:    map[string]any{"approved": approved},
	})
	return nil
}

// IsChildApproved reads the flag SetApproval writes.
func (s *Service) IsChildApproved(ctx context.Context, gardenName, childID string) (bool, error) {
	garden, err := s.garden(ctx, gardenName)
	if err != nil {
		return false, err
	}
	status, ok := garden.Children[childID]
	if !ok {
		return false, dErrors.New(dErrors.CodeNotFound, "child "+childID+" is not enrolled in "+gardenName)
	}
	return status.Approved, nil
}

// ApprovedChildren lists the approved enrollments, ordered by name.
func (s *Service) ApprovedChildren(ctx context.Context, gardenName string) ([]domain.Child, error) {
	return s.childrenWhere(ctx, gardenName, true)
}

// PendingChildren lists the enrollments awaiting approval, ordered by name.
func (s *Service) PendingChildren(ctx context.Context, gardenName string) ([]domain.Child, error) {
	return s.childrenWhere(ctx, gardenName, false)
}

// ClassRoster lists a class's children with approval taken from the
// kindergarten-level map, ordered by name.
func (s *Service) ClassRoster(ctx context.Context, gardenName, courseNumber string) ([]domain.ChildStatus, error) {
	garden, err := s.garden(ctx, gardenName)
	if err != nil {
		return nil, err
	}
	i := garden.ClassIndex(courseNumber)
	if i < 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "class "+courseNumber+" not found in "+gardenName)
	}

	roster := make([]domain.ChildStatus, 0, len(garden.Classes[i].Children))
	for id, entry := range garden.Classes[i].Children {
		roster = append(roster, domain.ChildStatus{
			Child:    entry.Child,
			Approved: garden.Children[id].Approved,
		})
	}
	slices.SortFunc(roster, func(a, b domain.ChildStatus) int { return byName(a.Child, b.Child) })
	return roster, nil
}

func (s *Service) childrenWhere(ctx context.Context, gardenName string, approved bool) ([]domain.Child, error) {
	garden, err := s.garden(ctx, gardenName)
	if err != nil {
		return nil, err
	}
	var out []domain.Child
	for _, status := range garden.Children {
		if status.Approved == approved {
			out = append(out, status.Child)
		}
	}
	slices.SortFunc(out, byName)
	return out, nil
}

func (s *Service) garden(ctx context.Context, name string) (*domain.Garden, error) {
	garden, err := s.gardens.FindByName(ctx, name)
	if err != nil {
		return nil, store.Translate(err, "kindergarten")
	}
	return garden, nil
}

func byName(a, b domain.Child) int {
	return cmp.Or(
		strings.Compare(strings.ToLower(a.FullName), strings.ToLower(b.FullName)),
		strings.Compare(a.ID, b.ID),
	)
}
