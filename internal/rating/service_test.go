package rating

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"kindergarten/internal/docstore"
	"kindergarten/internal/docstore/memory"
	"kindergarten/internal/docstore/mocks"
	"kindergarten/internal/docstore/storetest"
	"kindergarten/internal/domain"
	"kindergarten/internal/events"
	"kindergarten/internal/fanout"
	"kindergarten/internal/garden"
	"kindergarten/internal/platform/metrics"
	"kindergarten/internal/store/fixtures"
	dErrors "kindergarten/pkg/domain-errors"
	"kindergarten/pkg/platform/sentinel"
)

const parentEmail = "parent@example.com"

var reviewedAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// memoryCache is a RankingCache backed by a slice.
type memoryCache struct {
	mu          sync.Mutex
	ranking     []RankedGarden
	ok          bool
	invalidated int
}

func (c *memoryCache) Get(context.Context) ([]RankedGarden, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ranking, c.ok, nil
}

func (c *memoryCache) Set(_ context.Context, r []RankedGarden) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ranking, c.ok = r, true
	return nil
}

func (c *memoryCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ranking, c.ok = nil, false
	c.invalidated++
	return nil
}

type RatingSuite struct {
	suite.Suite
	ctx     context.Context
	store   *memory.Store
	cache   *memoryCache
	sink    *events.MemorySink
	metrics *metrics.Metrics
	service *Service
}

func TestRatingSuite(t *testing.T) {
	suite.Run(t, new(RatingSuite))
}

func (s *RatingSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.New()
	s.cache = &memoryCache{}
	s.sink = events.NewMemorySink(0)
	s.metrics = metrics.NewWithRegistry(prometheus.NewRegistry())
	s.service = s.newService(s.store)
	fixtures.SeedParent(s.T(), s.store, fixtures.Parent(parentEmail, "Noa"))
}

func (s *RatingSuite) newService(ds docstore.Store) *Service {
	return New(ds,
		WithCache(s.cache),
		WithMetrics(s.metrics),
		WithPublisher(events.NewPublisher(s.sink)),
	)
}

// seedRated stores a kindergarten whose reviews have the given ratings.
func (s *RatingSuite) seedRated(name string, ratings ...int) {
	g := fixtures.Garden(name)
	for i, r := range ratings {
		g.Reviews = append(g.Reviews, domain.Review{
			ParentEmail: "p@example.com",
			Rating:      r,
			ReviewDate:  reviewedAt.Add(time.Duration(i) * time.Minute),
		})
	}
	fixtures.SeedGarden(s.T(), s.store, g)
}

func names(gardens []RankedGarden) []string {
	out := make([]string, 0, len(gardens))
	for _, g := range gardens {
		out = append(out, g.Name)
	}
	return out
}

func (s *RatingSuite) TestTopRated() {
	s.seedRated("A", 3)
	s.seedRated("B", 9)
	s.seedRated("C", 6)

	top, err := s.service.TopRatedGardens(s.ctx, 2)
	s.Require().NoError(err)
	s.Equal([]string{"B", "C"}, names(top))
	s.Equal(90.0, top[0].AverageRating)
	s.Equal(60.0, top[1].AverageRating)
}

func (s *RatingSuite) TestTopRatedBounds() {
	s.seedRated("A", 3)
	s.seedRated("Unrated")
	s.seedRated("B", 3)

	all, err := s.service.TopRatedGardens(s.ctx, 10)
	s.Require().NoError(err)
	s.Equal([]string{"A", "B", "Unrated"}, names(all), "ties keep store order")
	s.Zero(all[2].AverageRating)

	none, err := s.service.TopRatedGardens(s.ctx, 0)
	s.Require().NoError(err)
	s.Empty(none)

	none, err = s.service.TopRatedGardens(s.ctx, -1)
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *RatingSuite) TestRankingIsCached() {
	s.seedRated("A", 5)

	_, err := s.service.TopRatedGardens(s.ctx, 1)
	s.Require().NoError(err)
	s.True(s.cache.ok)

	s.seedRated("B", 9)
	top, err := s.service.TopRatedGardens(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal([]string{"A"}, names(top), "served from cache")

	s.Equal(1.0, testutil.ToFloat64(s.metrics.RankingCacheLookup.WithLabelValues("miss")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.RankingCacheLookup.WithLabelValues("hit")))
}

func (s *RatingSuite) TestCatalogChangesRefreshCachedRanking() {
	s.seedRated("A", 5)
	catalog := garden.New(s.store, garden.WithRankingCache(s.cache))

	top, err := s.service.TopRatedGardens(s.ctx, 10)
	s.Require().NoError(err)
	s.Equal([]string{"A"}, names(top))

	_, err = catalog.CreateGarden(s.ctx, domain.Garden{Name: "Tulip"})
	s.Require().NoError(err)
	top, err = s.service.TopRatedGardens(s.ctx, 10)
	s.Require().NoError(err)
	s.Equal([]string{"A", "Tulip"}, names(top))

	s.Require().NoError(catalog.DeleteGarden(s.ctx, "A"))
	top, err = s.service.TopRatedGardens(s.ctx, 10)
	s.Require().NoError(err)
	s.Equal([]string{"Tulip"}, names(top))
	s.Equal(2, s.cache.invalidated)
}

func (s *RatingSuite) TestRatingRange() {
	s.seedRated("Low", 2)
	s.seedRated("Mid", 5, 6)
	s.seedRated("High", 10)
	s.seedRated("Unrated")

	got, err := s.service.GardensInRatingRange(s.ctx, 20, 55)
	s.Require().NoError(err)
	s.Equal([]string{"Low", "Mid"}, names(got), "bounds are inclusive")

	got, err = s.service.GardensInRatingRange(s.ctx, 0, 100)
	s.Require().NoError(err)
	s.NotContains(names(got), "Unrated")

	_, err = s.service.GardensInRatingRange(s.ctx, 50, 10)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *RatingSuite) TestAddReviewWritesBothReplicas() {
	fixtures.SeedGarden(s.T(), s.store, fixtures.Sunflower())
	s.Require().NoError(s.cache.Set(s.ctx, []RankedGarden{{Name: "stale"}}))

	review := domain.Review{Rating: 8, Comment: " lovely staff ", ReviewDate: reviewedAt}
	s.Require().NoError(s.service.AddReview(s.ctx, "Sunflower", "Parent@Example.com", review))
	s.Require().NoError(s.service.AddReview(s.ctx, "Sunflower", parentEmail, review))

	garden := fixtures.LoadGarden(s.T(), s.store, "Sunflower")
	s.Require().Len(garden.Reviews, 1, "the same review is stored once")
	s.Equal("lovely staff", garden.Reviews[0].Comment)
	s.Equal(parentEmail, garden.Reviews[0].ParentEmail)
	s.Len(fixtures.LoadParent(s.T(), s.store, parentEmail).Reviews, 1)

	s.False(s.cache.ok)
	s.Equal(1, s.cache.invalidated)
	s.Len(s.sink.OfType(events.TypeReviewAdded), 1)
}

func (s *RatingSuite) TestAddReviewPreconditions() {
	fixtures.SeedGarden(s.T(), s.store, fixtures.Sunflower())

	err := s.service.AddReview(s.ctx, "Sunflower", parentEmail, domain.Review{Rating: 11})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	err = s.service.AddReview(s.ctx, "Sunflower", "ghost@example.com", domain.Review{Rating: 5})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	err = s.service.AddReview(s.ctx, "Nowhere", parentEmail, domain.Review{Rating: 5})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *RatingSuite) TestAddReviewParentFailureIsPartial() {
	fixtures.SeedGarden(s.T(), s.store, fixtures.Sunflower())
	m := mocks.NewMockStore(gomock.NewController(s.T()))
	m.EXPECT().
		Update(gomock.Any(), docstore.Parents, gomock.Any(), gomock.Any(), gomock.Any()).
		Return(docstore.Document{}, sentinel.ErrUnavailable).
		Times(1)
	storetest.Delegate(m, s.store)

	review := domain.Review{Rating: 7, ReviewDate: reviewedAt}
	err := s.newService(m).AddReview(s.ctx, "Sunflower", parentEmail, review)
	s.True(dErrors.HasCode(err, dErrors.CodePartialFanOut))
	fe, ok := fanout.AsError(err)
	s.Require().True(ok)
	s.Equal(dErrors.CodeStoreUnavailable, fe.Plan.Step(StepParent).Code)
	s.Equal(1, s.cache.invalidated, "the ranking changed even though the parent copy did not")

	s.Require().NoError(s.service.AddReview(s.ctx, "Sunflower", parentEmail, review))
	s.Len(fixtures.LoadGarden(s.T(), s.store, "Sunflower").Reviews, 1)
	s.Len(fixtures.LoadParent(s.T(), s.store, parentEmail).Reviews, 1)
}

func (s *RatingSuite) TestRespondToReview() {
	fixtures.SeedGarden(s.T(), s.store, fixtures.Sunflower())
	s.Require().NoError(s.service.AddReview(s.ctx, "Sunflower", parentEmail, domain.Review{Rating: 6, ReviewDate: reviewedAt}))

	s.Require().NoError(s.service.RespondToReview(s.ctx, "Sunflower", parentEmail, reviewedAt, "Thank you"))

	reviews, err := s.service.ReviewsForGarden(s.ctx, "Sunflower")
	s.Require().NoError(err)
	s.Require().Len(reviews, 1)
	s.Equal("Thank you", reviews[0].ManagerResponse)

	reviews, err = s.service.ReviewsForParent(s.ctx, parentEmail)
	s.Require().NoError(err)
	s.Require().Len(reviews, 1)
	s.Equal("Thank you", reviews[0].ManagerResponse)

	err = s.service.RespondToReview(s.ctx, "Sunflower", parentEmail, reviewedAt.Add(time.Hour), "?")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	err = s.service.RespondToReview(s.ctx, "Sunflower", parentEmail, reviewedAt, "  ")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}
