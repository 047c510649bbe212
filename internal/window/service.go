// Package window runs the per-kindergarten registration window:
// CLOSED -> OPEN -> CLOSED. An open window closes by hand or, once more than
// three calendar days old, through the sweep.
package window

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"kindergarten/internal/docstore"
	"kindergarten/internal/domain"
	"kindergarten/internal/events"
	"kindergarten/internal/platform/metrics"
	"kindergarten/internal/store"
	"kindergarten/pkg/requestcontext"
)

var (
	pathIsRegistered = docstore.P("isRegistered")
	pathStartDate    = docstore.P("registrationStartDate")
	pathStatus       = docstore.P("status")
)

// sweepConcurrency bounds concurrent closes during a sweep or bulk change.
const sweepConcurrency = 8

// errUnchanged marks a garden already in the requested state.
var errUnchanged = errors.New("window already in requested state")

// Service operates registration windows.
type Service struct {
	gardens     *store.Gardens
	lease       Lease
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

// WithLease sets the lease taken around each sweep.
func WithLease(l Lease) Option {
	return func(s *Service) {
		s.lease = l
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
		lease:       &LocalLease{},
		logger:      slog.New(slog.DiscardHandler),
		maxAttempts: docstore.DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State is the window as seen by callers.
type State struct {
	GardenName string     `json:"gardenName"`
	Open       bool       `json:"open"`
	StartDate  *time.Time `json:"registrationStartDate,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	Status     *string    `json:"status,omitempty"`
}

// SweepResult reports a sweep or bulk change per kindergarten.
type SweepResult struct {
	Changed []string          `json:"changed"`
	Failed  map[string]string `json:"failed,omitempty"`
	Skipped bool              `json:"skipped,omitempty"`
}

// Get returns the window of the first kindergarten named gardenName.
func (s *Service) Get(ctx context.Context, gardenName string) (State, error) {
	garden, err := s.gardens.FindByName(ctx, gardenName)
	if err != nil {
		return State{}, store.Translate(err, "kindergarten")
	}
	st := State{
		GardenName: garden.Name,
		Open:       garden.IsRegistered,
		StartDate:  garden.RegistrationStartDate,
		Status:     garden.Status,
	}
	if expiry, ok := garden.WindowExpiry(); ok && garden.IsRegistered {
		st.ExpiresAt = &expiry
	}
	return st, nil
}

// OpenRegistration moves a closed window to OPEN starting now. Opening an open window is
// a validation error.
func (s *Service) OpenRegistration(ctx context.Context, gardenName string) error {
	now := requestcontext.Now(ctx)
	err := s.retry(ctx, func(ctx context.Context) error {
		garden, err := s.gardens.FindByName(ctx, gardenName)
		if err != nil {
			return err
		}
		if err := garden.CanOpen(); err != nil {
			return err
		}
		return s.open(ctx, garden, now)
	})
	if err != nil {
		return store.Translate(err, "kindergarten")
	}
	s.opened(ctx, gardenName, now)
	return nil
}

// CloseRegistration moves an open window to CLOSED and keeps the start date. Closing a
// closed window is a no-op.
func (s *Service) CloseRegistration(ctx context.Context, gardenName string) error {
	err := s.retry(ctx, func(ctx context.Context) error {
		garden, err := s.gardens.FindByName(ctx, gardenName)
		if err != nil {
			return err
		}
		return s.close(ctx, garden)
	})
	if errors.Is(err, errUnchanged) {
		return nil
	}
	if err != nil {
		return store.Translate(err, "kindergarten")
	}
	s.closed(ctx, gardenName, metrics.TriggerManual)
	return nil
}

// SetStatus writes the free-text operational status. An empty status clears
// it. The registration window is not touched.
func (s *Service) SetStatus(ctx context.Context, gardenName, status string) error {
	garden, err := s.gardens.FindByName(ctx, gardenName)
	if err != nil {
		return store.Translate(err, "kindergarten")
	}
	var value any
	if status != "" {
		value = status
	}
	if _, err := s.gardens.Update(ctx, garden.ID, 0, docstore.Set(pathStatus, value)); err != nil {
		return store.Translate(err, "kindergarten")
	}
	return nil
}

// OpenAll opens every closed window.
func (s *Service) OpenAll(ctx context.Context) (SweepResult, error) {
	now := requestcontext.Now(ctx)
	return s.each(ctx, func(g *domain.Garden) bool { return !g.IsRegistered }, func(ctx context.Context, id string) error {
		garden, err := s.gardens.Get(ctx, id)
		if err != nil {
			return err
		}
		if garden.IsRegistered {
			return errUnchanged
		}
		if err := s.open(ctx, garden, now); err != nil {
			return err
		}
		s.opened(ctx, garden.Name, now)
		return nil
	})
}

// CloseAll closes every open window.
func (s *Service) CloseAll(ctx context.Context) (SweepResult, error) {
	return s.each(ctx, func(g *domain.Garden) bool { return g.IsRegistered }, func(ctx context.Context, id string) error {
		garden, err := s.gardens.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := s.close(ctx, garden); err != nil {
			return err
		}
		s.closed(ctx, garden.Name, metrics.TriggerManual)
		return nil
	})
}

// Sweep closes every open window whose start date plus three calendar days
// is before now. Kindergartens are closed concurrently and independently; a
// failure on one is reported without affecting the others. When another
// process holds the sweep lease the sweep is skipped.
func (s *Service) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	release, ok, err := s.lease.Acquire(ctx)
	if err != nil {
		return SweepResult{}, err
	}
	if !ok {
		s.logger.InfoContext(ctx, "registration sweep skipped, lease held elsewhere")
		return SweepResult{Skipped: true}, nil
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.WarnContext(ctx, "failed to release sweep lease", "error", err)
		}
	}()

	expired := func(g *domain.Garden) bool { return g.WindowExpired(now) }
	return s.each(ctx, expired, func(ctx context.Context, id string) error {
		garden, err := s.gardens.Get(ctx, id)
		if err != nil {
			return err
		}
		if !garden.WindowExpired(now) {
			return errUnchanged
		}
		if err := s.close(ctx, garden); err != nil {
			return err
		}
		s.closed(ctx, garden.Name, metrics.TriggerSweep)
		return nil
	})
}

// Run sweeps once immediately and then every interval until ctx ends. A
// non-positive interval sweeps once.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	s.sweepAndLog(ctx)
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepAndLog(ctx)
		}
	}
}

func (s *Service) sweepAndLog(ctx context.Context) {
	res, err := s.Sweep(ctx, time.Now())
	if err != nil {
		s.logger.ErrorContext(ctx, "registration sweep failed", "error", err)
		return
	}
	if res.Skipped {
		return
	}
	s.logger.InfoContext(ctx, "registration sweep finished",
		"closed", len(res.Changed),
		"failed", len(res.Failed),
	)
}

// each applies change to every kindergarten matching want, concurrently.
func (s *Service) each(ctx context.Context, want func(*domain.Garden) bool, change func(ctx context.Context, id string) error) (SweepResult, error) {
	gardens, err := s.gardens.All(ctx)
	if err != nil {
		return SweepResult{}, store.Translate(err, "kindergartens")
	}

	var (
		mu  sync.Mutex
		res = SweepResult{Changed: []string{}}
	)
	var g errgroup.Group
	g.SetLimit(sweepConcurrency)
	for _, garden := range gardens {
		if !want(garden) {
			continue
		}
		id, name := garden.ID, garden.Name
		g.Go(func() error {
			err := s.retry(ctx, func(ctx context.Context) error { return change(ctx, id) })
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				res.Changed = append(res.Changed, name)
			case errors.Is(err, errUnchanged):
			default:
				if res.Failed == nil {
					res.Failed = map[string]string{}
				}
				res.Failed[name] = store.Translate(err, "kindergarten").Error()
				s.logger.ErrorContext(ctx, "registration window change failed",
					"garden", name,
					"error", err,
				)
			}
			return nil
		})
	}
	_ = g.Wait()
	return res, nil
}

func (s *Service) open(ctx context.Context, garden *domain.Garden, now time.Time) error {
	garden.ApplyOpen(now)
	_, err := s.gardens.Update(ctx, garden.ID, garden.Version,
		docstore.Set(pathIsRegistered, true),
		docstore.Set(pathStartDate, garden.RegistrationStartDate))
	return err
}

func (s *Service) close(ctx context.Context, garden *domain.Garden) error {
	if !garden.IsRegistered {
		return errUnchanged
	}
	garden.ApplyClose()
	_, err := s.gardens.Update(ctx, garden.ID, garden.Version, docstore.Set(pathIsRegistered, false))
	return err
}

func (s *Service) retry(ctx context.Context, fn func(ctx context.Context) error) error {
	return docstore.RetryOnConflict(ctx, s.maxAttempts, func() {
		s.metrics.IncrementUpdateConflict(string(docstore.Kindergartens))
	}, fn)
}

func (s *Service) opened(ctx context.Context, gardenName string, at time.Time) {
	s.logger.InfoContext(ctx, "registration window opened",
		"garden", gardenName,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.publisher.Emit(ctx, events.Event{
		Type:       events.TypeRegistrationOpened,
		GardenName: gardenName,
		Payload:    map[string]any{"registrationStartDate": at},
	})
}

func (s *Service) closed(ctx context.Context, gardenName, trigger string) {
	s.metrics.IncrementWindowClosed(trigger)
	s.logger.InfoContext(ctx, "registration window closed",
		"garden", gardenName,
		"trigger", trigger,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.publisher.Emit(ctx, events.Event{
		Type:       events.TypeRegistrationClosed,
		GardenName: gardenName,
		Payload:    map[string]any{"trigger": trigger},
	})
}
