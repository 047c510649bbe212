package enrollment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kindergarten/internal/docstore"
	"kindergarten/internal/domain"
	"kindergarten/internal/events"
	"kindergarten/internal/fanout"
	"kindergarten/internal/store"
	dErrors "kindergarten/pkg/domain-errors"
	"kindergarten/pkg/platform/sentinel"
	kgstrings "kindergarten/pkg/platform/strings"
	"kindergarten/pkg/requestcontext"
)

// RemoveChild deletes every replica of the child. The four removals are
// independent: each is attempted even when another fails, and a missing
// target counts as already removed, so calling it again is safe.
//
// The child must belong to parentID and to gardenName. A child no parent
// holds any more is treated as a half-finished removal and is cleaned up.
func (s *Service) RemoveChild(ctx context.Context, childID, gardenName, parentID string) error {
	defer s.observe(OperationRemove, time.Now())

	parentID = kgstrings.NormalizeEmail(parentID)
	gardenName, err := s.resolveRemoval(ctx, childID, gardenName, parentID)
	if err != nil {
		return err
	}
	plan := s.removalPlan(childID, gardenName, parentID)
	if err := s.executor.Run(ctx, plan); err != nil {
		if _, partial := fanout.AsError(err); partial {
			s.persistSaga(ctx, plan, &Saga{
				ChildID:    childID,
				ParentID:   parentID,
				GardenName: gardenName,
			})
		}
		return err
	}

	s.logger.InfoContext(ctx, "child removed",
		"child_id", childID,
		"garden", gardenName,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.publisher.Emit(ctx, events.Event{
		Type:       events.TypeChildRemoved,
		GardenName: gardenName,
		ChildID:    childID,
		ParentID:   parentID,
	})
	return nil
}

// ResumeRemoval re-issues the removals a partial RemoveChild left pending.
func (s *Service) ResumeRemoval(ctx context.Context, sagaID string) error {
	defer s.observe("resume_removal", time.Now())

	saga, err := s.loadSaga(ctx, sagaID, OperationRemove)
	if err != nil {
		return err
	}
	plan := s.removalPlan(saga.ChildID, saga.GardenName, saga.ParentID)
	plan.MarkDone(saga.Completed...)
	runErr := s.executor.Run(ctx, plan)
	if runErr == nil {
		s.publisher.Emit(ctx, events.Event{
			Type:       events.TypeChildRemoved,
			GardenName: saga.GardenName,
			ChildID:    saga.ChildID,
			ParentID:   saga.ParentID,
			Payload:    map[string]any{"resumed": true},
		})
	}
	return s.settleSaga(ctx, saga, plan, runErr)
}

// resolveRemoval checks that parentID holds childID and that the child
// belongs to gardenName, and returns the kindergarten to remove it from.
func (s *Service) resolveRemoval(ctx context.Context, childID, gardenName, parentID string) (string, error) {
	if err := domain.ValidateChildID(childID); err != nil {
		return "", err
	}
	owners, err := s.parents.WithChild(ctx, childID)
	if err != nil {
		return "", store.Translate(err, "parent")
	}
	var entry *domain.Child
	for _, owner := range owners {
		if kgstrings.NormalizeEmail(owner.Email) == parentID {
			entry = &owner.Children[owner.ChildIndex(childID)]
		}
	}
	if len(owners) > 0 && entry == nil {
		return "", dErrors.New(dErrors.CodeNotFound,
			fmt.Sprintf("child %s not found for parent %s", childID, parentID))
	}

	records, _, err := s.children.ByChildID(ctx, childID)
	if err != nil {
		return "", store.Translate(err, "child")
	}
	enrolledIn := ""
	switch {
	case len(records) > 0:
		enrolledIn = records[0].GartenName
	case entry != nil:
		enrolledIn = entry.GartenName
	}
	if enrolledIn == "" {
		return gardenName, nil
	}
	if enrolledIn != gardenName {
		return "", dErrors.New(dErrors.CodeNotFound,
			fmt.Sprintf("child %s is not enrolled in %s", childID, gardenName))
	}
	return enrolledIn, nil
}

func (s *Service) removalPlan(childID, gardenName, parentID string) *fanout.Plan {
	return fanout.NewPlan(OperationRemove).
		Add(StepKindergarten, func(ctx context.Context) error {
			return s.removeFromGarden(ctx, childID, gardenName)
		}).
		Add(StepClasses, func(ctx context.Context) error {
			return s.removeFromClasses(ctx, childID, gardenName)
		}).
		Add(StepChild, func(ctx context.Context) error {
			return s.deleteChild(ctx, childID)
		}).
		Add(StepParent, func(ctx context.Context) error {
			return s.removeFromParent(ctx, childID, parentID)
		})
}

func (s *Service) removeFromGarden(ctx context.Context, childID, gardenName string) error {
	return s.retry(ctx, docstore.Kindergartens, "kindergarten", func(ctx context.Context) error {
		garden, err := s.gardens.FindByName(ctx, gardenName)
		if errors.Is(err, sentinel.ErrNotFound) {
			return fanout.ErrSkip
		}
		if err != nil {
			return err
		}
		if _, ok := garden.Children[childID]; !ok {
			return fanout.ErrSkip
		}
		_, err = s.gardens.Update(ctx, garden.ID, garden.Version, docstore.Unset(store.GardenChildPath(childID)))
		return err
	})
}

func (s *Service) removeFromClasses(ctx context.Context, childID, gardenName string) error {
	return s.retry(ctx, docstore.Kindergartens, "kindergarten classes", func(ctx context.Context) error {
		garden, err := s.gardens.FindByName(ctx, gardenName)
		if errors.Is(err, sentinel.ErrNotFound) {
			return fanout.ErrSkip
		}
		if err != nil {
			return err
		}
		var mutations []docstore.Mutation
		for i, class := range garden.Classes {
			if _, ok := class.Children[childID]; ok {
				mutations = append(mutations, docstore.Unset(store.ClassChildPath(i, childID)))
			}
		}
		if len(mutations) == 0 {
			return fanout.ErrSkip
		}
		_, err = s.gardens.Update(ctx, garden.ID, garden.Version, mutations...)
		return err
	})
}

// deleteChild removes every standalone document whose id field matches; the
// document key is not assumed to be the child id.
func (s *Service) deleteChild(ctx context.Context, childID string) error {
	_, docIDs, err := s.children.ByChildID(ctx, childID)
	if err != nil {
		return store.Translate(err, "child")
	}
	if len(docIDs) == 0 {
		return fanout.ErrSkip
	}
	for _, id := range docIDs {
		if err := s.children.Delete(ctx, id); err != nil {
			return store.Translate(err, "child")
		}
	}
	return nil
}

// removeFromParent rewrites the parent's embedded list without the child.
func (s *Service) removeFromParent(ctx context.Context, childID, parentID string) error {
	return s.retry(ctx, docstore.Parents, "parent", func(ctx context.Context) error {
		parent, err := s.parents.ByEmail(ctx, parentID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return fanout.ErrSkip
		}
		if err != nil {
			return err
		}
		remaining, found := parent.WithoutChild(childID)
		if !found {
			return fanout.ErrSkip
		}
		parent.Children = remaining
		_, err = s.parents.Replace(ctx, parentID, parent, parent.Version)
		return err
	})
}
