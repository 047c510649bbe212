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

// RegisterChild enrolls child for the parent identified by parentID (the
// parent's email) into the kindergarten named by child.GartenName and into
// every class listed in child.Hobbies.
//
// The parent and standalone child writes abort the operation on failure. A
// failure enrolling into the kindergarten document returns a partial fan-out
// error carrying a saga id for ResumeRegistration.
func (s *Service) RegisterChild(ctx context.Context, child domain.Child, parentID string) (string, error) {
	defer s.observe(OperationRegister, time.Now())

	child.Normalize()
	if err := child.Validate(); err != nil {
		return "", err
	}
	parentID = kgstrings.NormalizeEmail(parentID)

	if _, err := s.parents.ByEmail(ctx, parentID); err != nil {
		return "", store.Translate(err, "parent")
	}
	garden, err := s.gardens.FindByName(ctx, child.GartenName)
	if err != nil {
		return "", store.Translate(err, "kindergarten")
	}
	if s.requireOpenWindow && (!garden.IsRegistered || garden.WindowExpired(requestcontext.Now(ctx))) {
		return "", dErrors.New(dErrors.CodeValidation, "registration is closed for "+garden.Name)
	}
	if err := checkClasses(garden, &child); err != nil {
		return "", err
	}

	child.GartenName = garden.Name
	if child.ID == "" {
		child.ID = s.newID()
	} else if err := s.checkOwnership(ctx, child, parentID); err != nil {
		return "", err
	}

	plan := s.registrationPlan(child, parentID)
	runErr := s.executor.Run(ctx, plan)
	if runErr != nil {
		if _, partial := fanout.AsError(runErr); partial {
			s.persistSaga(ctx, plan, &Saga{
				ChildID:    child.ID,
				ParentID:   parentID,
				GardenName: garden.Name,
				Classes:    child.Hobbies,
				Child:      &child,
			})
			return child.ID, runErr
		}
		s.compensateRegistration(ctx, plan, child.ID, parentID)
		return "", runErr
	}

	s.logger.InfoContext(ctx, "child registered",
		"child_id", child.ID,
		"garden", garden.Name,
		"classes", child.Hobbies,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.publisher.Emit(ctx, events.Event{
		Type:       events.TypeChildRegistered,
		GardenName: garden.Name,
		ChildID:    child.ID,
		ParentID:   parentID,
		Payload:    map[string]any{"classes": child.Hobbies},
	})
	return child.ID, nil
}

// ResumeRegistration re-runs the steps a partial registration left pending.
// The saga is deleted once every step has completed.
func (s *Service) ResumeRegistration(ctx context.Context, sagaID string) error {
	defer s.observe("resume_registration", time.Now())

	saga, err := s.loadSaga(ctx, sagaID, OperationRegister)
	if err != nil {
		return err
	}
	if saga.Child == nil {
		return dErrors.New(dErrors.CodeInvalidState, "saga has no child snapshot")
	}

	plan := s.registrationPlan(*saga.Child, saga.ParentID)
	plan.MarkDone(saga.Completed...)
	runErr := s.executor.Run(ctx, plan)
	if runErr == nil {
		s.publisher.Emit(ctx, events.Event{
			Type:       events.TypeChildRegistered,
			GardenName: saga.GardenName,
			ChildID:    saga.ChildID,
			ParentID:   saga.ParentID,
			Payload:    map[string]any{"classes": saga.Classes, "resumed": true},
		})
	}
	return s.settleSaga(ctx, saga, plan, runErr)
}

// checkClasses validates the selected classes against the child.
func checkClasses(garden *domain.Garden, child *domain.Child) error {
	for _, courseNumber := range child.Hobbies {
		i := garden.ClassIndex(courseNumber)
		if i < 0 {
			return dErrors.New(dErrors.CodeNotFound,
				fmt.Sprintf("class %s not found in %s", courseNumber, garden.Name))
		}
		class := garden.Classes[i]
		if !class.AcceptsAge(child.Age) {
			return dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("age %d is outside class %s range %d-%d", child.Age, courseNumber, class.MinAge, class.MaxAge))
		}
		if _, enrolled := class.Children[child.ID]; !enrolled && class.Full() {
			return dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("class %s is full", courseNumber))
		}
	}
	return nil
}

func (s *Service) registrationPlan(child domain.Child, parentID string) *fanout.Plan {
	return fanout.NewPlan(OperationRegister).
		AddAborting(StepParent, func(ctx context.Context) error {
			return s.addToParent(ctx, child, parentID)
		}).
		AddAborting(StepChild, func(ctx context.Context) error {
			return s.createChild(ctx, child, parentID)
		}).
		Add(StepKindergarten, func(ctx context.Context) error {
			return s.enrollInGarden(ctx, child)
		})
}

// addToParent appends the child snapshot to the parent's embedded list.
func (s *Service) addToParent(ctx context.Context, child domain.Child, parentID string) error {
	return s.retry(ctx, docstore.Parents, "parent", func(ctx context.Context) error {
		parent, err := s.parents.ByEmail(ctx, parentID)
		if err != nil {
			return err
		}
		if parent.ChildIndex(child.ID) >= 0 {
			return fanout.ErrSkip
		}
		_, err = s.parents.Update(ctx, parentID, parent.Version, docstore.Push(store.PathChildren, child))
		return err
	})
}

// createChild stores the standalone Child document under the child id. An
// existing record is only accepted when it is the same enrollment.
func (s *Service) createChild(ctx context.Context, child domain.Child, parentID string) error {
	_, err := s.children.Create(ctx, child.ID, &child)
	if errors.Is(err, sentinel.ErrAlreadyExists) {
		if err := s.checkOwnership(ctx, child, parentID); err != nil {
			return err
		}
		return fanout.ErrSkip
	}
	return store.Translate(err, "child")
}

// checkOwnership rejects a child id that is already held by another parent
// or whose standalone record names a different kindergarten. Re-registering
// the same child with the same parent and kindergarten passes.
func (s *Service) checkOwnership(ctx context.Context, child domain.Child, parentID string) error {
	records, _, err := s.children.ByChildID(ctx, child.ID)
	if err != nil {
		return store.Translate(err, "child")
	}
	for _, record := range records {
		if record.GartenName != child.GartenName {
			return dErrors.New(dErrors.CodeConflict,
				fmt.Sprintf("child %s is already enrolled in %s", child.ID, record.GartenName))
		}
	}
	owners, err := s.parents.WithChild(ctx, child.ID)
	if err != nil {
		return store.Translate(err, "parent")
	}
	for _, owner := range owners {
		if kgstrings.NormalizeEmail(owner.Email) != parentID {
			return dErrors.New(dErrors.CodeConflict,
				fmt.Sprintf("child %s belongs to another parent", child.ID))
		}
	}
	return nil
}

// enrollInGarden upserts the child status into the kindergarten map and every
// selected class map with one version-guarded update. An existing approval is
// kept so a resumed registration never revokes it.
func (s *Service) enrollInGarden(ctx context.Context, child domain.Child) error {
	return s.retry(ctx, docstore.Kindergartens, "kindergarten", func(ctx context.Context) error {
		garden, err := s.gardens.FindByName(ctx, child.GartenName)
		if err != nil {
			return err
		}

		status := domain.ChildStatus{Child: child}
		existing, inGarden := garden.Children[child.ID]
		if inGarden {
			status.Approved = existing.Approved
		}

		var mutations []docstore.Mutation
		if !inGarden {
			mutations = append(mutations, docstore.Set(store.GardenChildPath(child.ID), status))
		}
		for _, courseNumber := range child.Hobbies {
			i := garden.ClassIndex(courseNumber)
			if i < 0 {
				return dErrors.New(dErrors.CodeNotFound,
					fmt.Sprintf("class %s not found in %s", courseNumber, garden.Name))
			}
			if _, ok := garden.Classes[i].Children[child.ID]; ok {
				continue
			}
			if garden.Classes[i].Full() {
				return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("class %s is full", courseNumber))
			}
			mutations = append(mutations, docstore.Set(store.ClassChildPath(i, child.ID), domain.ChildStatus{Child: child}))
		}
		if len(mutations) == 0 {
			return fanout.ErrSkip
		}

		_, err = s.gardens.Update(ctx, garden.ID, garden.Version, mutations...)
		return err
	})
}

// compensateRegistration undoes the parent write when the standalone child
// could not be created, so an aborted registration leaves no replica behind.
func (s *Service) compensateRegistration(ctx context.Context, plan *fanout.Plan, childID, parentID string) {
	parentStep := plan.Step(StepParent)
	if parentStep == nil || parentStep.Status != fanout.StatusDone {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := s.removeFromParent(ctx, childID, parentID); err != nil && !errors.Is(err, fanout.ErrSkip) {
		s.logger.ErrorContext(ctx, "failed to roll back parent entry after aborted registration",
			"child_id", childID,
			"parent_id", parentID,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}
