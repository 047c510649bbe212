package window

import (
	"context"
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
	"kindergarten/internal/events"
	"kindergarten/internal/platform/metrics"
	"kindergarten/internal/store/fixtures"
	dErrors "kindergarten/pkg/domain-errors"
	"kindergarten/pkg/platform/sentinel"
	"kindergarten/pkg/requestcontext"
)

var start = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type WindowSuite struct {
	suite.Suite
	ctx     context.Context
	store   *memory.Store
	sink    *events.MemorySink
	metrics *metrics.Metrics
	service *Service
}

func TestWindowSuite(t *testing.T) {
	suite.Run(t, new(WindowSuite))
}

func (s *WindowSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), start)
	s.store = memory.New()
	s.sink = events.NewMemorySink(0)
	s.metrics = metrics.NewWithRegistry(prometheus.NewRegistry())
	s.service = s.newService(s.store)
	fixtures.SeedGarden(s.T(), s.store, fixtures.Sunflower())
}

func (s *WindowSuite) newService(ds docstore.Store, opts ...Option) *Service {
	base := []Option{
		WithPublisher(events.NewPublisher(s.sink)),
		WithMetrics(s.metrics),
	}
	return New(ds, append(base, opts...)...)
}

func (s *WindowSuite) openGarden(name string, at time.Time) {
	g := fixtures.Garden(name)
	g.ApplyOpen(at)
	fixtures.SeedGarden(s.T(), s.store, g)
}

func (s *WindowSuite) TestOpenAndClose() {
	s.Require().NoError(s.service.OpenRegistration(s.ctx, "Sunflower"))

	garden := fixtures.LoadGarden(s.T(), s.store, "Sunflower")
	s.True(garden.IsRegistered)
	s.Require().NotNil(garden.RegistrationStartDate)
	s.True(garden.RegistrationStartDate.Equal(start))

	state, err := s.service.Get(s.ctx, "Sunflower")
	s.Require().NoError(err)
	s.True(state.Open)
	s.Require().NotNil(state.ExpiresAt)
	s.True(state.ExpiresAt.Equal(start.AddDate(0, 0, 3)))

	s.Require().NoError(s.service.CloseRegistration(s.ctx, "Sunflower"))

	garden = fixtures.LoadGarden(s.T(), s.store, "Sunflower")
	s.False(garden.IsRegistered)
	s.Require().NotNil(garden.RegistrationStartDate, "start date is kept as history")
	s.True(garden.RegistrationStartDate.Equal(start))

	s.Len(s.sink.OfType(events.TypeRegistrationOpened), 1)
	s.Len(s.sink.OfType(events.TypeRegistrationClosed), 1)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.WindowsClosed.WithLabelValues(metrics.TriggerManual)))
}

func (s *WindowSuite) TestOpeningAnOpenWindowIsRejected() {
	s.Require().NoError(s.service.OpenRegistration(s.ctx, "Sunflower"))

	err := s.service.OpenRegistration(s.ctx, "Sunflower")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *WindowSuite) TestClosingAClosedWindowIsNoop() {
	s.Require().NoError(s.service.CloseRegistration(s.ctx, "Sunflower"))

	s.Empty(s.sink.OfType(events.TypeRegistrationClosed))
	s.Zero(testutil.ToFloat64(s.metrics.WindowsClosed.WithLabelValues(metrics.TriggerManual)))
}

func (s *WindowSuite) TestUnknownGarden() {
	s.True(dErrors.HasCode(s.service.OpenRegistration(s.ctx, "Nowhere"), dErrors.CodeNotFound))
	s.True(dErrors.HasCode(s.service.CloseRegistration(s.ctx, "Nowhere"), dErrors.CodeNotFound))
	s.True(dErrors.HasCode(s.service.SetStatus(s.ctx, "Nowhere", "x"), dErrors.CodeNotFound))
}

func (s *WindowSuite) TestSetStatusLeavesWindowAlone() {
	s.Require().NoError(s.service.OpenRegistration(s.ctx, "Sunflower"))
	s.Require().NoError(s.service.SetStatus(s.ctx, "Sunflower", "closed for renovation"))

	garden := fixtures.LoadGarden(s.T(), s.store, "Sunflower")
	s.Require().NotNil(garden.Status)
	s.Equal("closed for renovation", *garden.Status)
	s.True(garden.IsRegistered)

	s.Require().NoError(s.service.SetStatus(s.ctx, "Sunflower", ""))
	s.Nil(fixtures.LoadGarden(s.T(), s.store, "Sunflower").Status)
}

func (s *WindowSuite) TestSweepClosesOnlyExpiredWindows() {
	s.openGarden("Expired", start)
	s.openGarden("Fresh", start.Add(time.Hour))
	s.Require().NoError(s.service.OpenRegistration(s.ctx, "Sunflower"))

	now := start.AddDate(0, 0, 3).Add(time.Second)
	res, err := s.service.Sweep(context.Background(), now)
	s.Require().NoError(err)
	s.ElementsMatch([]string{"Expired", "Sunflower"}, res.Changed)
	s.Empty(res.Failed)

	s.False(fixtures.LoadGarden(s.T(), s.store, "Expired").IsRegistered)
	s.False(fixtures.LoadGarden(s.T(), s.store, "Sunflower").IsRegistered)
	s.True(fixtures.LoadGarden(s.T(), s.store, "Fresh").IsRegistered)
	s.Equal(2.0, testutil.ToFloat64(s.metrics.WindowsClosed.WithLabelValues(metrics.TriggerSweep)))
}

func (s *WindowSuite) TestSweepKeepsWindowBeforeThreeDays() {
	s.Require().NoError(s.service.OpenRegistration(s.ctx, "Sunflower"))

	for _, now := range []time.Time{
		start.Add(2*24*time.Hour + 23*time.Hour),
		start.AddDate(0, 0, 3),
	} {
		res, err := s.service.Sweep(context.Background(), now)
		s.Require().NoError(err)
		s.Empty(res.Changed, "at %s", now)
	}
	s.True(fixtures.LoadGarden(s.T(), s.store, "Sunflower").IsRegistered)
}

func (s *WindowSuite) TestSweepReportsPerGardenFailures() {
	s.openGarden("Broken", start)
	s.openGarden("Healthy", start)
	broken := fixtures.LoadGarden(s.T(), s.store, "Broken")

	m := mocks.NewMockStore(gomock.NewController(s.T()))
	m.EXPECT().
		Update(gomock.Any(), docstore.Kindergartens, broken.ID, gomock.Any(), gomock.Any()).
		Return(docstore.Document{}, sentinel.ErrUnavailable).
		AnyTimes()
	storetest.Delegate(m, s.store)

	res, err := s.newService(m).Sweep(context.Background(), start.AddDate(0, 0, 4))
	s.Require().NoError(err)
	s.Equal([]string{"Healthy"}, res.Changed)
	s.Contains(res.Failed, "Broken")

	s.True(fixtures.LoadGarden(s.T(), s.store, "Broken").IsRegistered)
	s.False(fixtures.LoadGarden(s.T(), s.store, "Healthy").IsRegistered)
}

func (s *WindowSuite) TestSweepSkipsWhenLeaseIsHeld() {
	s.openGarden("Expired", start)
	lease := &LocalLease{}
	release, ok, err := lease.Acquire(s.ctx)
	s.Require().NoError(err)
	s.Require().True(ok)

	svc := s.newService(s.store, WithLease(lease))
	res, err := svc.Sweep(context.Background(), start.AddDate(0, 0, 4))
	s.Require().NoError(err)
	s.True(res.Skipped)
	s.True(fixtures.LoadGarden(s.T(), s.store, "Expired").IsRegistered)

	s.Require().NoError(release(s.ctx))
	res, err = svc.Sweep(context.Background(), start.AddDate(0, 0, 4))
	s.Require().NoError(err)
	s.Equal([]string{"Expired"}, res.Changed)
}

func (s *WindowSuite) TestOpenAllAndCloseAll() {
	s.openGarden("AlreadyOpen", start.Add(-time.Hour))
	fixtures.SeedGarden(s.T(), s.store, fixtures.Garden("Closed"))

	res, err := s.service.OpenAll(s.ctx)
	s.Require().NoError(err)
	s.ElementsMatch([]string{"Sunflower", "Closed"}, res.Changed)

	reopened := fixtures.LoadGarden(s.T(), s.store, "AlreadyOpen")
	s.True(reopened.RegistrationStartDate.Equal(start.Add(-time.Hour)), "open windows keep their start")

	res, err = s.service.CloseAll(s.ctx)
	s.Require().NoError(err)
	s.ElementsMatch([]string{"Sunflower", "Closed", "AlreadyOpen"}, res.Changed)
	for _, name := range []string{"Sunflower", "Closed", "AlreadyOpen"} {
		s.False(fixtures.LoadGarden(s.T(), s.store, name).IsRegistered, name)
	}
}

func (s *WindowSuite) TestRunSweepsAtStart() {
	s.openGarden("Stale", time.Now().AddDate(0, 0, -5))

	s.service.Run(context.Background(), 0)

	s.False(fixtures.LoadGarden(s.T(), s.store, "Stale").IsRegistered)
}

func TestLocalLeaseIsExclusive(t *testing.T) {
	var lease LocalLease
	ctx := context.Background()

	release, ok, err := lease.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := lease.Acquire(ctx); ok {
		t.Fatal("second acquire succeeded while held")
	}
	_ = release(ctx)
	_ = release(ctx)
	if _, ok, _ := lease.Acquire(ctx); !ok {
		t.Fatal("acquire after release failed")
	}
}
