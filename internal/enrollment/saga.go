package enrollment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"kindergarten/internal/docstore"
	"kindergarten/internal/domain"
	"kindergarten/internal/store"
)

// Operations recorded in sagas and fan-out plans.
const (
	OperationRegister = "register_child"
	OperationRemove   = "remove_child"
)

// Plan step names.
const (
	StepParent       = "parent"
	StepChild        = "child"
	StepKindergarten = "kindergarten"
	StepClasses      = "classes"
)

// Saga is the persisted record of a partially applied fan-out. It holds
// enough to rebuild the plan and run the steps that did not complete.
type Saga struct {
	ID         string        `json:"id"`
	Operation  string        `json:"operation"`
	ChildID    string        `json:"childId"`
	ParentID   string        `json:"parentId"`
	GardenName string        `json:"gardenName"`
	Classes    []string      `json:"classes"`
	Child      *domain.Child `json:"child,omitempty"`
	Completed  []string      `json:"completed"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`

	Version int64 `json:"-"`
}

// SetVersion records the store etag.
func (s *Saga) SetVersion(v int64) { s.Version = v }

// SagaStore persists sagas in the EnrollmentSagas collection.
type SagaStore struct {
	repo *store.Repo[Saga]
}

// NewSagaStore binds the EnrollmentSagas collection.
func NewSagaStore(s docstore.Store) *SagaStore {
	return &SagaStore{repo: store.NewRepo[Saga](s, docstore.EnrollmentSagas)}
}

// Save creates the saga and assigns its id.
func (s *SagaStore) Save(ctx context.Context, saga *Saga) error {
	if saga.ID == "" {
		saga.ID = uuid.NewString()
	}
	_, err := s.repo.Create(ctx, saga.ID, saga)
	return err
}

// Get loads one saga.
func (s *SagaStore) Get(ctx context.Context, id string) (*Saga, error) {
	saga, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	saga.ID = id
	return saga, nil
}

// Progress records newly completed steps.
func (s *SagaStore) Progress(ctx context.Context, saga *Saga, completed []string, now time.Time) error {
	saga.Completed = completed
	saga.UpdatedAt = now
	updated, err := s.repo.Replace(ctx, saga.ID, saga, saga.Version)
	if err != nil {
		return err
	}
	saga.Version = updated.Version
	return nil
}

// Delete drops a finished saga.
func (s *SagaStore) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// List returns every open saga, oldest first.
func (s *SagaStore) List(ctx context.Context, operation string) ([]*Saga, error) {
	var filters []docstore.Filter
	if operation != "" {
		filters = append(filters, docstore.Eq(docstore.P("operation"), operation))
	}
	return s.repo.Find(ctx, filters...)
}
