// Package garden manages the kindergarten catalog: kindergartens, their
// classes, and the organizational affiliations they belong to.
package garden

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"kindergarten/internal/docstore"
	"kindergarten/internal/domain"
	"kindergarten/internal/fanout"
	"kindergarten/internal/platform/metrics"
	"kindergarten/internal/store"
	dErrors "kindergarten/pkg/domain-errors"
	"kindergarten/pkg/platform/sentinel"
	kgstrings "kindergarten/pkg/platform/strings"
	"kindergarten/pkg/requestcontext"
)

const (
	OperationCreate = "create_garden"
	OperationDelete = "delete_garden"

	StepName         = "name"
	StepKindergarten = "kindergarten"
	StepDirector     = "director"
)

var pathDirectorGardens = docstore.P("director", "kindergartens")

// RankingInvalidator drops a cached kindergarten ranking. The rating
// package's caches satisfy it.
type RankingInvalidator interface {
	Invalidate(ctx context.Context) error
}

type Service struct {
	gardens      *store.Gardens
	names        *store.GardenNames
	parents      *store.Parents
	directors    *store.Repo[domain.Person]
	affiliations *store.Affiliations
	ranking      RankingInvalidator

	executor    *fanout.Executor
	logger      *slog.Logger
	metrics     *metrics.Metrics
	maxAttempts int
	newID       func() string
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

func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		s.maxAttempts = n
	}
}

// WithRankingCache invalidates the kindergarten ranking whenever the catalog
// gains or loses a kindergarten.
func WithRankingCache(c RankingInvalidator) Option {
	return func(s *Service) {
		s.ranking = c
	}
}

func New(ds docstore.Store, opts ...Option) *Service {
	s := &Service{
		gardens:      store.NewGardens(ds),
		names:        store.NewGardenNames(ds),
		parents:      store.NewParents(ds),
		directors:    store.NewPeople(ds).Directors,
		affiliations: store.NewAffiliations(ds),
		logger:       slog.New(slog.DiscardHandler),
		maxAttempts:  docstore.DefaultMaxAttempts,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.executor = fanout.NewExecutor(s.logger, s.metrics)
	return s
}

// CreateGarden stores a new, closed kindergarten. Names must be unique: the
// name is reserved in KindergartenNames before the kindergarten is written,
// so concurrent creates of one name cannot both succeed. When a director
// email is set the new id is added to that director's list.
func (s *Service) CreateGarden(ctx context.Context, g domain.Garden) (*domain.Garden, error) {
	defer s.metrics.ObserveOperation(OperationCreate, time.Now())

	g.Name = strings.TrimSpace(g.Name)
	if g.Name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "name is required")
	}
	g.DirectorEmail = kgstrings.NormalizeEmail(g.DirectorEmail)
	seen := map[string]bool{}
	for i := range g.Classes {
		c := &g.Classes[i]
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if seen[c.CourseNumber] {
			return nil, dErrors.New(dErrors.CodeConflict, "duplicate class "+c.CourseNumber)
		}
		seen[c.CourseNumber] = true
		c.ID = s.newID()
		c.Children = map[string]domain.ChildStatus{}
	}

	if _, err := s.gardens.FindByName(ctx, g.Name); err == nil {
		return nil, dErrors.New(dErrors.CodeConflict, "kindergarten "+g.Name+" already exists")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, store.Translate(err, "kindergarten")
	}
	if g.DirectorEmail != "" {
		if _, err := s.directors.Get(ctx, g.DirectorEmail); err != nil {
			return nil, store.Translate(err, "director")
		}
	}

	g.ID = s.newID()
	g.Children = nil
	g.Reviews = nil
	g.IsRegistered = false
	g.RegistrationStartDate = nil
	g.Normalize()

	plan := fanout.NewPlan(OperationCreate).
		AddAborting(StepName, func(ctx context.Context) error {
			return s.reserveName(ctx, g.Name, g.ID)
		}).
		AddAborting(StepKindergarten, func(ctx context.Context) error {
			_, err := s.gardens.Create(ctx, g.ID, &g)
			if errors.Is(err, sentinel.ErrAlreadyExists) {
				return fanout.ErrSkip
			}
			return store.Translate(err, "kindergarten")
		})
	if g.DirectorEmail != "" {
		plan.Add(StepDirector, func(ctx context.Context) error {
			return s.linkDirector(ctx, g.DirectorEmail, g.ID)
		})
	}
	err := s.executor.Run(ctx, plan)
	if step := plan.Step(StepKindergarten); step.Status != fanout.StatusDone {
		s.releaseName(ctx, g.Name, g.ID)
		return nil, err
	}
	s.invalidateRanking(ctx)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "kindergarten created",
		"garden", g.Name,
		"garden_id", g.ID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return &g, nil
}

// GetByName returns the first kindergarten named name.
func (s *Service) GetByName(ctx context.Context, name string) (*domain.Garden, error) {
	g, err := s.gardens.FindByName(ctx, name)
	if err != nil {
		return nil, store.Translate(err, "kindergarten")
	}
	return g, nil
}

// GardensForParent returns the kindergartens holding at least one of the
// parent's children, in store order.
func (s *Service) GardensForParent(ctx context.Context, parentEmail string) ([]*domain.Garden, error) {
	parent, err := s.parents.ByEmail(ctx, parentEmail)
	if err != nil {
		return nil, store.Translate(err, "parent")
	}
	gardens, err := s.gardens.All(ctx)
	if err != nil {
		return nil, store.Translate(err, "kindergartens")
	}
	out := []*domain.Garden{}
	for _, g := range gardens {
		if slices.ContainsFunc(parent.Children, func(c domain.Child) bool {
			_, ok := g.Children[c.ID]
			return ok
		}) {
			out = append(out, g)
		}
	}
	return out, nil
}

// DirectorGardens returns the kindergartens on the director's list. Ids that
// no longer resolve are skipped.
func (s *Service) DirectorGardens(ctx context.Context, directorEmail string) ([]*domain.Garden, error) {
	director, err := s.directors.Get(ctx, kgstrings.NormalizeEmail(directorEmail))
	if err != nil {
		return nil, store.Translate(err, "director")
	}
	out := []*domain.Garden{}
	if director.Director == nil {
		return out, nil
	}
	for _, id := range director.Director.Kindergartens {
		g, err := s.gardens.Get(ctx, id)
		if errors.Is(err, sentinel.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, store.Translate(err, "kindergarten")
		}
		if g.ID == "" {
			g.ID = id
		}
		g.Normalize()
		out = append(out, g)
	}
	return out, nil
}

// Manages reports whether the director manages the kindergarten named
// gardenName. An unknown kindergarten is a NotFound error.
func (s *Service) Manages(ctx context.Context, directorEmail, gardenName string) (bool, error) {
	g, err := s.gardens.FindByName(ctx, gardenName)
	if err != nil {
		return false, store.Translate(err, "kindergarten")
	}
	director, err := s.directors.Get(ctx, kgstrings.NormalizeEmail(directorEmail))
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, store.Translate(err, "director")
	}
	return director.Director != nil && slices.Contains(director.Director.Kindergartens, g.ID), nil
}

// ChildClasses returns the classes of gardenName whose roster holds childID.
func (s *Service) ChildClasses(ctx context.Context, gardenName, childID string) ([]domain.GardenClass, error) {
	g, err := s.gardens.FindByName(ctx, gardenName)
	if err != nil {
		return nil, store.Translate(err, "kindergarten")
	}
	if _, ok := g.Children[childID]; !ok {
		return nil, dErrors.New(dErrors.CodeNotFound,
			fmt.Sprintf("child %s is not enrolled in %s", childID, g.Name))
	}
	out := []domain.GardenClass{}
	for _, c := range g.Classes {
		if _, ok := c.Children[childID]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// Details holds the editable descriptive fields. Nil fields are left as is.
type Details struct {
	Address                   *string `json:"address"`
	City                      *string `json:"city"`
	PhoneNumber               *string `json:"phoneNumber"`
	OpenTime                  *string `json:"openTime"`
	CloseTime                 *string `json:"closeTime"`
	OrganizationalAffiliation *string `json:"organizationalAffiliation"`
	ImageURL                  *string `json:"imageUrl"`
}

func (d Details) mutations() []docstore.Mutation {
	var out []docstore.Mutation
	set := func(field string, v *string) {
		if v != nil {
			out = append(out, docstore.Set(docstore.P(field), strings.TrimSpace(*v)))
		}
	}
	set("address", d.Address)
	set("city", d.City)
	set("phoneNumber", d.PhoneNumber)
	set("openTime", d.OpenTime)
	set("closeTime", d.CloseTime)
	set("organizationalAffiliation", d.OrganizationalAffiliation)
	set("imageUrl", d.ImageURL)
	return out
}

// UpdateDetails patches the descriptive fields of a kindergarten. The name,
// classes, and enrollment maps are not touched.
func (s *Service) UpdateDetails(ctx context.Context, name string, d Details) (*domain.Garden, error) {
	mutations := d.mutations()
	if len(mutations) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "nothing to update")
	}
	g, err := s.gardens.FindByName(ctx, name)
	if err != nil {
		return nil, store.Translate(err, "kindergarten")
	}
	updated, err := s.gardens.Update(ctx, g.ID, 0, mutations...)
	if err != nil {
		return nil, store.Translate(err, "kindergarten")
	}
	updated.Normalize()
	return updated, nil
}

// DeleteGarden removes a kindergarten without enrolled children and unlinks
// it from its director.
func (s *Service) DeleteGarden(ctx context.Context, name string) error {
	defer s.metrics.ObserveOperation(OperationDelete, time.Now())

	g, err := s.gardens.FindByName(ctx, name)
	if err != nil {
		return store.Translate(err, "kindergarten")
	}
	if len(g.Children) > 0 {
		return dErrors.New(dErrors.CodeInvalidState,
			fmt.Sprintf("kindergarten %s still has %d enrolled children", g.Name, len(g.Children)))
	}

	plan := fanout.NewPlan(OperationDelete).
		AddAborting(StepKindergarten, func(ctx context.Context) error {
			return store.Translate(s.gardens.Delete(ctx, g.ID), "kindergarten")
		}).
		Add(StepName, func(ctx context.Context) error {
			s.releaseName(ctx, g.Name, g.ID)
			return nil
		})
	if g.DirectorEmail != "" {
		plan.Add(StepDirector, func(ctx context.Context) error {
			return s.unlinkDirector(ctx, g.DirectorEmail, g.ID)
		})
	}
	err = s.executor.Run(ctx, plan)
	if step := plan.Step(StepKindergarten); step != nil && step.Status == fanout.StatusDone {
		s.invalidateRanking(ctx)
	}
	return err
}

// reserveName claims name for gardenID. A reservation already held by the
// same id is a retry and passes.
func (s *Service) reserveName(ctx context.Context, name, gardenID string) error {
	_, err := s.names.Create(ctx, name, &store.GardenName{GardenID: gardenID})
	if errors.Is(err, sentinel.ErrAlreadyExists) {
		held, getErr := s.names.Get(ctx, name)
		if getErr == nil && held.GardenID == gardenID {
			return fanout.ErrSkip
		}
		return dErrors.New(dErrors.CodeConflict, "kindergarten "+name+" already exists")
	}
	return store.Translate(err, "kindergarten name")
}

// releaseName drops the reservation for name when gardenID holds it.
// Kindergartens created before reservations existed have none.
func (s *Service) releaseName(ctx context.Context, name, gardenID string) {
	ctx = context.WithoutCancel(ctx)
	held, err := s.names.Get(ctx, name)
	if errors.Is(err, sentinel.ErrNotFound) {
		return
	}
	if err == nil && held.GardenID != gardenID {
		return
	}
	if err == nil {
		err = s.names.Delete(ctx, name)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "failed to release kindergarten name",
			"garden", name,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

func (s *Service) invalidateRanking(ctx context.Context) {
	if s.ranking == nil {
		return
	}
	if err := s.ranking.Invalidate(context.WithoutCancel(ctx)); err != nil {
		s.logger.WarnContext(ctx, "ranking cache invalidation failed", "error", err)
	}
}

func (s *Service) linkDirector(ctx context.Context, email, gardenID string) error {
	return s.retry(ctx, docstore.Directors, "director", func(ctx context.Context) error {
		director, err := s.directors.Get(ctx, email)
		if err != nil {
			return err
		}
		if director.Director != nil && slices.Contains(director.Director.Kindergartens, gardenID) {
			return fanout.ErrSkip
		}
		_, err = s.directors.Update(ctx, email, director.Version, docstore.Push(pathDirectorGardens, gardenID))
		return err
	})
}

func (s *Service) unlinkDirector(ctx context.Context, email, gardenID string) error {
	return s.retry(ctx, docstore.Directors, "director", func(ctx context.Context) error {
		director, err := s.directors.Get(ctx, email)
		if errors.Is(err, sentinel.ErrNotFound) {
			return fanout.ErrSkip
		}
		if err != nil {
			return err
		}
		if director.Director == nil || !slices.Contains(director.Director.Kindergartens, gardenID) {
			return fanout.ErrSkip
		}
		kept := slices.DeleteFunc(slices.Clone(director.Director.Kindergartens), func(id string) bool {
			return id == gardenID
		})
		_, err = s.directors.Update(ctx, email, director.Version, docstore.Set(pathDirectorGardens, kept))
		return err
	})
}

// AddClass appends a class with a fresh id and an empty roster.
func (s *Service) AddClass(ctx context.Context, gardenName string, class domain.GardenClass) (*domain.GardenClass, error) {
	if err := class.Validate(); err != nil {
		return nil, err
	}
	class.ID = s.newID()
	class.Children = map[string]domain.ChildStatus{}

	err := s.retry(ctx, docstore.Kindergartens, "kindergarten", func(ctx context.Context) error {
		g, err := s.gardens.FindByName(ctx, gardenName)
		if err != nil {
			return err
		}
		if g.ClassIndex(class.CourseNumber) >= 0 {
			return dErrors.New(dErrors.CodeConflict, "class "+class.CourseNumber+" already exists")
		}
		_, err = s.gardens.Update(ctx, g.ID, g.Version, docstore.Push(store.PathClasses, class))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &class, nil
}

// UpdateClass replaces a class definition, keeping its id, course number, and
// enrolled children.
func (s *Service) UpdateClass(ctx context.Context, gardenName, courseNumber string, class domain.GardenClass) (*domain.GardenClass, error) {
	class.CourseNumber = courseNumber
	if err := class.Validate(); err != nil {
		return nil, err
	}
	err := s.retry(ctx, docstore.Kindergartens, "kindergarten", func(ctx context.Context) error {
		g, err := s.gardens.FindByName(ctx, gardenName)
		if err != nil {
			return err
		}
		i := g.ClassIndex(courseNumber)
		if i < 0 {
			return dErrors.New(dErrors.CodeNotFound, "class "+courseNumber+" not found")
		}
		current := g.Classes[i]
		class.ID = current.ID
		class.Children = current.Children
		if class.MaxChildren > 0 && len(class.Children) > class.MaxChildren {
			return dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("class %s already has %d children", courseNumber, len(class.Children)))
		}
		path := store.PathClasses.Child(strconv.Itoa(i))
		_, err = s.gardens.Update(ctx, g.ID, g.Version, docstore.Set(path, class))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &class, nil
}

// RemoveClass deletes a class with no enrolled children.
func (s *Service) RemoveClass(ctx context.Context, gardenName, courseNumber string) error {
	return s.retry(ctx, docstore.Kindergartens, "kindergarten", func(ctx context.Context) error {
		g, err := s.gardens.FindByName(ctx, gardenName)
		if err != nil {
			return err
		}
		i := g.ClassIndex(courseNumber)
		if i < 0 {
			return dErrors.New(dErrors.CodeNotFound, "class "+courseNumber+" not found")
		}
		if n := len(g.Classes[i].Children); n > 0 {
			return dErrors.New(dErrors.CodeInvalidState,
				fmt.Sprintf("class %s still has %d enrolled children", courseNumber, n))
		}
		classes := slices.Delete(slices.Clone(g.Classes), i, i+1)
		_, err = s.gardens.Update(ctx, g.ID, g.Version, docstore.Set(store.PathClasses, classes))
		return err
	})
}

// Query narrows Search. Empty fields match everything.
type Query struct {
	City        string
	Affiliation string
	Age         *int
}

// Search lists kindergartens in store order. Age matches when any class
// accepts it.
func (s *Service) Search(ctx context.Context, q Query) ([]*domain.Garden, error) {
	var filters []docstore.Filter
	if city := strings.TrimSpace(q.City); city != "" {
		filters = append(filters, docstore.Eq(docstore.P("city"), city))
	}
	if aff := strings.TrimSpace(q.Affiliation); aff != "" {
		filters = append(filters, docstore.Eq(docstore.P("organizationalAffiliation"), aff))
	}
	gardens, err := s.gardens.Find(ctx, filters...)
	if err != nil {
		return nil, store.Translate(err, "kindergartens")
	}
	out := make([]*domain.Garden, 0, len(gardens))
	for _, g := range gardens {
		g.Normalize()
		if q.Age != nil && !slices.ContainsFunc(g.Classes, func(c domain.GardenClass) bool {
			return c.AcceptsAge(*q.Age)
		}) {
			continue
		}
		out = append(out, g)
	}
	return out, nil
}

// AddAffiliation registers an organizational affiliation name.
func (s *Service) AddAffiliation(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return dErrors.New(dErrors.CodeValidation, "affiliation name is required")
	}
	_, err := s.affiliations.Create(ctx, name, &store.Affiliation{Name: name})
	return store.Translate(err, "affiliation")
}

// ListAffiliations returns every affiliation name, sorted.
func (s *Service) ListAffiliations(ctx context.Context) ([]string, error) {
	affs, err := s.affiliations.Find(ctx)
	if err != nil {
		return nil, store.Translate(err, "affiliations")
	}
	names := make([]string, 0, len(affs))
	for _, a := range affs {
		names = append(names, a.Name)
	}
	slices.Sort(names)
	return names, nil
}

func (s *Service) retry(ctx context.Context, coll docstore.Collection, what string, fn func(ctx context.Context) error) error {
	err := docstore.RetryOnConflict(ctx, s.maxAttempts, func() {
		s.metrics.IncrementUpdateConflict(string(coll))
	}, fn)
	if err == nil || errors.Is(err, fanout.ErrSkip) {
		return err
	}
	return store.Translate(err, what)
}
