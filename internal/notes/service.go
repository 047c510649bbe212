// Package notes reconciles staff notes into the two child replicas that carry
// them: the standalone Child document and each parent's embedded copy.
package notes

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"kindergarten/internal/docstore"
	"kindergarten/internal/domain"
	"kindergarten/internal/events"
	"kindergarten/internal/fanout"
	"kindergarten/internal/platform/metrics"
	"kindergarten/internal/store"
	dErrors "kindergarten/pkg/domain-errors"
	"kindergarten/pkg/requestcontext"
)

const (
	OperationMerge = "merge_notes"

	StepChild   = "child"
	StepParents = "parents"
)

type Service struct {
	gardens  *store.Gardens
	children *store.Children
	parents  *store.Parents

	executor    *fanout.Executor
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

func New(ds docstore.Store, opts ...Option) *Service {
	s := &Service{
		gardens:     store.NewGardens(ds),
		children:    store.NewChildren(ds),
		parents:     store.NewParents(ds),
		logger:      slog.New(slog.DiscardHandler),
		maxAttempts: docstore.DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.executor = fanout.NewExecutor(s.logger, s.metrics)
	return s
}

// MergeNotes merges incoming into the standalone Child document first and
// then carries the merged list into every parent's embedded copy. A missing
// child is NotFound; a parent-side failure after the child write is a partial
// fan-out.
func (s *Service) MergeNotes(ctx context.Context, childID string, incoming []domain.Note) error {
	defer s.metrics.ObserveOperation(OperationMerge, time.Now())

	childID = strings.TrimSpace(childID)
	if childID == "" {
		return dErrors.New(dErrors.CodeValidation, "child id is required")
	}
	if len(incoming) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one note is required")
	}
	now := requestcontext.Now(ctx)
	notes := make([]domain.Note, len(incoming))
	for i, n := range incoming {
		if err := n.Validate(); err != nil {
			return err
		}
		if n.Date.IsZero() {
			n.Date = now
		}
		notes[i] = n
	}

	var merged []domain.Note
	plan := fanout.NewPlan(OperationMerge).
		AddAborting(StepChild, func(ctx context.Context) error {
			var err error
			merged, err = s.mergeIntoChild(ctx, childID, notes)
			return err
		}).
		Add(StepParents, func(ctx context.Context) error {
			return s.mergeIntoParents(ctx, childID, merged)
		})
	if err := s.executor.Run(ctx, plan); err != nil {
		return err
	}

	s.metrics.IncrementNotesMerged()
	s.logger.InfoContext(ctx, "notes merged",
		"child_id", childID,
		"notes", len(notes),
		"request_id", requestcontext.RequestID(ctx),
	)
	s.publisher.Emit(ctx, events.Event{
		Type:    events.TypeNotesMerged,
		ChildID: childID,
		Payload: map[string]any{"notes": len(notes)},
	})
	return nil
}

// mergeIntoChild updates every standalone document carrying childID and
// returns the merged list of the first.
func (s *Service) mergeIntoChild(ctx context.Context, childID string, incoming []domain.Note) ([]domain.Note, error) {
	_, docIDs, err := s.children.ByChildID(ctx, childID)
	if err != nil {
		return nil, store.Translate(err, "child")
	}
	if len(docIDs) == 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "child not found")
	}

	var first []domain.Note
	applied := false
	for i, docID := range docIDs {
		err := s.retry(ctx, docstore.Children, func(ctx context.Context) error {
			child, err := s.children.Get(ctx, docID)
			if err != nil {
				return err
			}
			merged := Merge(child.Notes, incoming)
			if i == 0 {
				first = merged
			}
			if equal(child.Notes, merged) {
				return nil
			}
			applied = true
			_, err = s.children.Update(ctx, docID, child.Version, docstore.Set(store.PathNotes, merged))
			return err
		})
		if err != nil {
			return nil, store.Translate(err, "child")
		}
	}
	if !applied {
		return first, fanout.ErrSkip
	}
	return first, nil
}

func (s *Service) mergeIntoParents(ctx context.Context, childID string, notes []domain.Note) error {
	parents, err := s.parents.WithChild(ctx, childID)
	if err != nil {
		return store.Translate(err, "parent")
	}
	for _, p := range parents {
		email := p.Email
		err := s.retry(ctx, docstore.Parents, func(ctx context.Context) error {
			parent, err := s.parents.ByEmail(ctx, email)
			if err != nil {
				return err
			}
			i := parent.ChildIndex(childID)
			if i < 0 {
				return nil
			}
			merged := Merge(parent.Children[i].Notes, notes)
			if equal(parent.Children[i].Notes, merged) {
				return nil
			}
			path := store.PathChildren.Child(strconv.Itoa(i), "notes")
			_, err = s.parents.Update(ctx, email, parent.Version, docstore.Set(path, merged))
			return err
		})
		if err != nil {
			return store.Translate(err, "parent")
		}
	}
	return nil
}

func (s *Service) retry(ctx context.Context, coll docstore.Collection, fn func(ctx context.Context) error) error {
	return docstore.RetryOnConflict(ctx, s.maxAttempts, func() {
		s.metrics.IncrementUpdateConflict(string(coll))
	}, fn)
}

// ChildNote is a note together with the child it was written about.
type ChildNote struct {
	ChildID   string      `json:"childId"`
	ChildName string      `json:"childName"`
	Note      domain.Note `json:"note"`
}

// ParentNotes is everything written about a parent's children.
type ParentNotes struct {
	Notes []ChildNote `json:"notes"`
	// AverageRating maps courseType to the mean of its rated notes.
	AverageRating map[string]float64 `json:"averageRating"`
}

// NotesForParent collects the notes of every child embedded in the parent
// document, newest first.
func (s *Service) NotesForParent(ctx context.Context, email string) (ParentNotes, error) {
	parent, err := s.parents.ByEmail(ctx, email)
	if err != nil {
		return ParentNotes{}, store.Translate(err, "parent")
	}

	out := ParentNotes{Notes: []ChildNote{}, AverageRating: map[string]float64{}}
	sums := map[string]int{}
	counts := map[string]int{}
	for _, child := range parent.Children {
		for _, n := range child.Notes {
			out.Notes = append(out.Notes, ChildNote{ChildID: child.ID, ChildName: child.FullName, Note: n})
			if n.Rating != nil {
				sums[n.CourseType] += *n.Rating
				counts[n.CourseType]++
			}
		}
	}
	for courseType, count := range counts {
		out.AverageRating[courseType] = float64(sums[courseType]) / float64(count)
	}
	sort.SliceStable(out.Notes, func(i, j int) bool {
		return out.Notes[i].Note.Date.After(out.Notes[j].Note.Date)
	})
	return out, nil
}

// CourseTypeFor resolves the courseType of a class, used to label notes.
func (s *Service) CourseTypeFor(ctx context.Context, gardenName, courseNumber string) (string, error) {
	garden, err := s.gardens.FindByName(ctx, gardenName)
	if err != nil {
		return "", store.Translate(err, "kindergarten")
	}
	i := garden.ClassIndex(courseNumber)
	if i < 0 {
		return "", dErrors.New(dErrors.CodeNotFound,
			fmt.Sprintf("class %s not found in %s", courseNumber, gardenName))
	}
	return garden.Classes[i].CourseType, nil
}
