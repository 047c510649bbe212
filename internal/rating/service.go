// Package rating aggregates parent reviews into kindergarten rankings and
// keeps the two review replicas (kindergarten and parent) in step.
package rating

import (
	"context"
	"errors"
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
	kgstrings "kindergarten/pkg/platform/strings"
	"kindergarten/pkg/requestcontext"
)

const (
	OperationAddReview = "add_review"
	OperationRespond   = "respond_review"

	StepKindergarten = "kindergarten"
	StepParent       = "parent"
)

// RankedGarden is a kindergarten with its aggregate rating. AverageRating is
// the mean review rating times ten, or 0 without reviews.
type RankedGarden struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	City          string  `json:"city"`
	AverageRating float64 `json:"averageRating"`
	ReviewCount   int     `json:"reviewCount"`
}

type Service struct {
	gardens *store.Gardens
	parents *store.Parents
	cache   RankingCache

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

// WithCache sets the ranking cache. The default caches nothing.
func WithCache(c RankingCache) Option {
	return func(s *Service) {
		s.cache = c
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
		parents:     store.NewParents(ds),
		cache:       NopCache{},
		logger:      slog.New(slog.DiscardHandler),
		maxAttempts: docstore.DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.executor = fanout.NewExecutor(s.logger, s.metrics)
	return s
}

// TopRatedGardens returns the n best rated kindergartens, best first. Ties
// keep store order. n <= 0 returns an empty list.
func (s *Service) TopRatedGardens(ctx context.Context, n int) ([]RankedGarden, error) {
	if n <= 0 {
		return []RankedGarden{}, nil
	}
	ranking, err := s.ranking(ctx)
	if err != nil {
		return nil, err
	}
	n = min(n, len(ranking))
	out := make([]RankedGarden, n)
	copy(out, ranking[:n])
	return out, nil
}

// GardensInRatingRange returns kindergartens whose average rating lies in
// [minRating, maxRating], in store order. Kindergartens without reviews are
// left out.
func (s *Service) GardensInRatingRange(ctx context.Context, minRating, maxRating float64) ([]RankedGarden, error) {
	if minRating > maxRating {
		return nil, dErrors.New(dErrors.CodeValidation, "min rating must not exceed max rating")
	}
	gardens, err := s.gardens.All(ctx)
	if err != nil {
		return nil, store.Translate(err, "kindergartens")
	}
	out := []RankedGarden{}
	for _, g := range gardens {
		if len(g.Reviews) == 0 {
			continue
		}
		avg := g.AverageRating()
		if avg >= minRating && avg <= maxRating {
			out = append(out, ranked(g))
		}
	}
	return out, nil
}

func (s *Service) ranking(ctx context.Context) ([]RankedGarden, error) {
	cached, ok, err := s.cache.Get(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "ranking cache read failed", "error", err)
	}
	s.metrics.IncrementRankingCache(ok)
	if ok {
		return cached, nil
	}

	gardens, err := s.gardens.All(ctx)
	if err != nil {
		return nil, store.Translate(err, "kindergartens")
	}
	ranking := make([]RankedGarden, 0, len(gardens))
	for _, g := range gardens {
		ranking = append(ranking, ranked(g))
	}
	sort.SliceStable(ranking, func(i, j int) bool {
		return ranking[i].AverageRating > ranking[j].AverageRating
	})

	if err := s.cache.Set(ctx, ranking); err != nil {
		s.logger.WarnContext(ctx, "ranking cache write failed", "error", err)
	}
	return ranking, nil
}

func ranked(g *domain.Garden) RankedGarden {
	return RankedGarden{
		ID:            g.ID,
		Name:          g.Name,
		City:          g.City,
		AverageRating: g.AverageRating(),
		ReviewCount:   len(g.Reviews),
	}
}

// AddReview stores review in the kindergarten and in the reviewing parent.
// A review already present (same parent and date) is not added twice.
func (s *Service) AddReview(ctx context.Context, gardenName, parentEmail string, review domain.Review) error {
	defer s.metrics.ObserveOperation(OperationAddReview, time.Now())

	parentEmail = kgstrings.NormalizeEmail(parentEmail)
	review.ParentEmail = parentEmail
	review.Comment = strings.TrimSpace(review.Comment)
	review.ManagerResponse = ""
	if review.ReviewDate.IsZero() {
		review.ReviewDate = requestcontext.Now(ctx)
	}
	if err := review.Validate(); err != nil {
		return err
	}
	if _, err := s.parents.ByEmail(ctx, parentEmail); err != nil {
		return store.Translate(err, "parent")
	}
	garden, err := s.gardens.FindByName(ctx, gardenName)
	if err != nil {
		return store.Translate(err, "kindergarten")
	}
	gardenID := garden.ID

	plan := fanout.NewPlan(OperationAddReview).
		AddAborting(StepKindergarten, func(ctx context.Context) error {
			return s.retry(ctx, docstore.Kindergartens, "kindergarten", func(ctx context.Context) error {
				garden, err := s.gardens.Get(ctx, gardenID)
				if err != nil {
					return err
				}
				if reviewIndex(garden.Reviews, parentEmail, review.ReviewDate) >= 0 {
					return fanout.ErrSkip
				}
				_, err = s.gardens.Update(ctx, gardenID, garden.Version, docstore.Push(store.PathReviews, review))
				return err
			})
		}).
		Add(StepParent, func(ctx context.Context) error {
			return s.retry(ctx, docstore.Parents, "parent", func(ctx context.Context) error {
				parent, err := s.parents.ByEmail(ctx, parentEmail)
				if err != nil {
					return err
				}
				if reviewIndex(parent.Reviews, parentEmail, review.ReviewDate) >= 0 {
					return fanout.ErrSkip
				}
				_, err = s.parents.Update(ctx, parentEmail, parent.Version, docstore.Push(store.PathReviews, review))
				return err
			})
		})
	runErr := s.executor.Run(ctx, plan)
	added := plan.Step(StepKindergarten).Status == fanout.StatusDone
	if added {
		s.invalidate(ctx)
	}
	if runErr != nil || !added {
		return runErr
	}

	s.publisher.Emit(ctx, events.Event{
		Type:       events.TypeReviewAdded,
		GardenName: garden.Name,
		ParentID:   parentEmail,
		Payload:    map[string]any{"rating": review.Rating},
	})
	return nil
}

// RespondToReview sets the manager response on the review identified by
// parent and date, in both replicas.
func (s *Service) RespondToReview(ctx context.Context, gardenName, parentEmail string, reviewDate time.Time, response string) error {
	defer s.metrics.ObserveOperation(OperationRespond, time.Now())

	parentEmail = kgstrings.NormalizeEmail(parentEmail)
	response = strings.TrimSpace(response)
	if response == "" {
		return dErrors.New(dErrors.CodeValidation, "response is required")
	}
	garden, err := s.gardens.FindByName(ctx, gardenName)
	if err != nil {
		return store.Translate(err, "kindergarten")
	}
	gardenID := garden.ID

	plan := fanout.NewPlan(OperationRespond).
		AddAborting(StepKindergarten, func(ctx context.Context) error {
			return s.retry(ctx, docstore.Kindergartens, "kindergarten", func(ctx context.Context) error {
				garden, err := s.gardens.Get(ctx, gardenID)
				if err != nil {
					return err
				}
				i := reviewIndex(garden.Reviews, parentEmail, reviewDate)
				if i < 0 {
					return dErrors.New(dErrors.CodeNotFound, "review not found")
				}
				if garden.Reviews[i].ManagerResponse == response {
					return fanout.ErrSkip
				}
				_, err = s.gardens.Update(ctx, gardenID, garden.Version, docstore.Set(responsePath(i), response))
				return err
			})
		}).
		Add(StepParent, func(ctx context.Context) error {
			return s.retry(ctx, docstore.Parents, "parent", func(ctx context.Context) error {
				parent, err := s.parents.ByEmail(ctx, parentEmail)
				if err != nil {
					return err
				}
				i := reviewIndex(parent.Reviews, parentEmail, reviewDate)
				if i < 0 || parent.Reviews[i].ManagerResponse == response {
					return fanout.ErrSkip
				}
				_, err = s.parents.Update(ctx, parentEmail, parent.Version, docstore.Set(responsePath(i), response))
				return err
			})
		})
	runErr := s.executor.Run(ctx, plan)
	if step := plan.Step(StepKindergarten); step.Status == fanout.StatusDone {
		s.invalidate(ctx)
	}
	return runErr
}

// ReviewsForGarden lists the reviews of the first kindergarten named
// gardenName.
func (s *Service) ReviewsForGarden(ctx context.Context, gardenName string) ([]domain.Review, error) {
	garden, err := s.gardens.FindByName(ctx, gardenName)
	if err != nil {
		return nil, store.Translate(err, "kindergarten")
	}
	return garden.Reviews, nil
}

// ReviewsForParent lists the reviews a parent wrote.
func (s *Service) ReviewsForParent(ctx context.Context, email string) ([]domain.Review, error) {
	parent, err := s.parents.ByEmail(ctx, email)
	if err != nil {
		return nil, store.Translate(err, "parent")
	}
	return parent.Reviews, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(context.WithoutCancel(ctx)); err != nil {
		s.logger.WarnContext(ctx, "ranking cache invalidation failed", "error", err)
	}
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

func reviewIndex(reviews []domain.Review, parentEmail string, reviewDate time.Time) int {
	for i, r := range reviews {
		if r.SameReview(parentEmail, reviewDate) {
			return i
		}
	}
	return -1
}

func responsePath(i int) docstore.Path {
	return store.PathReviews.Child(strconv.Itoa(i), "managerResponse")
}
