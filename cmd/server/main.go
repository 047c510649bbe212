package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kindergarten/internal/approval"
	"kindergarten/internal/docstore"
	"kindergarten/internal/enrollment"
	"kindergarten/internal/events"
	"kindergarten/internal/garden"
	jwttoken "kindergarten/internal/jwt_token"
	"kindergarten/internal/notes"
	"kindergarten/internal/people"
	"kindergarten/internal/photos"
	"kindergarten/internal/platform/config"
	"kindergarten/internal/platform/httpserver"
	"kindergarten/internal/platform/logger"
	"kindergarten/internal/platform/metrics"
	kgredis "kindergarten/internal/platform/redis"
	"kindergarten/internal/ratelimit"
	"kindergarten/internal/rating"
	httptransport "kindergarten/internal/transport/http"
	"kindergarten/internal/window"
	dErrors "kindergarten/pkg/domain-errors"
	kgstrings "kindergarten/pkg/platform/strings"
)

const (
	shutdownGrace  = 10 * time.Second
	sweepLeaseKey  = "kindergarten:window-sweep"
	eventQueueSize = 1024
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in the feature packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Server.LogFormat, cfg.Server.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	ds, closeStore, err := openStore(ctx, cfg.Store, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(context.Background()); err != nil {
			log.Warn("failed to close document store", "error", err)
		}
	}()

	m := metrics.New()

	rc, err := kgredis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rc != nil {
		defer rc.Close()
		log.Info("redis connected")
	}

	publisher, closeEvents, err := newPublisher(ctx, cfg.Kafka, log)
	if err != nil {
		return err
	}
	defer closeEvents()

	windows := newWindowService(ds, rc, m, publisher, cfg, log)
	startSweeper(ctx, windows, cfg.Enrollment.SweepInterval)

	var cache rating.RankingCache = rating.NopCache{}
	if rc != nil {
		cache = rating.NewRedisCache(rc, cfg.Enrollment.RankingCacheTTL)
	}

	var failures ratelimit.Store = ratelimit.NewMemoryStore()
	if rc != nil {
		failures = ratelimit.NewRedisStore(rc)
	}

	accounts := people.New(ds,
		people.WithLogger(log),
		people.WithMetrics(m),
	)
	if err := bootstrapAdmin(ctx, accounts, cfg.Server, log); err != nil {
		return err
	}

	jwt := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, "kindergarten")
	attempts := cfg.Enrollment.MaxUpdateAttempts

	handler := httptransport.New(httptransport.Deps{
		Enrollment: enrollment.New(ds,
			enrollment.WithLogger(log),
			enrollment.WithMetrics(m),
			enrollment.WithPublisher(publisher),
			enrollment.WithRequireOpenWindow(cfg.Enrollment.RequireOpenWindow),
			enrollment.WithMaxAttempts(attempts),
		),
		Approval: approval.New(ds,
			approval.WithLogger(log),
			approval.WithMetrics(m),
			approval.WithPublisher(publisher),
			approval.WithMaxAttempts(attempts),
		),
		Window: windows,
		Notes: notes.New(ds,
			notes.WithLogger(log),
			notes.WithMetrics(m),
			notes.WithPublisher(publisher),
			notes.WithMaxAttempts(attempts),
		),
		Rating: rating.New(ds,
			rating.WithLogger(log),
			rating.WithMetrics(m),
			rating.WithPublisher(publisher),
			rating.WithCache(cache),
			rating.WithMaxAttempts(attempts),
		),
		Gardens: garden.New(ds,
			garden.WithLogger(log),
			garden.WithMetrics(m),
			garden.WithMaxAttempts(attempts),
			garden.WithRankingCache(cache),
		),
		People:    accounts,
		Photos:    photos.New(ds),
		Tokens:    jwt,
		Validator: jwttoken.NewMiddlewareValidator(jwt),
		Logins:    ratelimit.NewLockout(failures, ratelimit.WithLogger(log)),
		Logger:    log,
		Metrics:   m,

		PublicBaseURL: cfg.Server.PublicBaseURL,
	})

	router := handler.Router()
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	srv := httpserver.New(cfg.Server.Addr, router)
	log.Info("starting kindergarten service",
		"addr", cfg.Server.Addr,
		"store", cfg.Store.Backend,
		"sweep_interval", cfg.Enrollment.SweepInterval,
	)
	return httpserver.Run(ctx, srv, shutdownGrace, log)
}

// bootstrapAdmin creates the configured system administrator on first start
// so a fresh install can be administered over the API.
func bootstrapAdmin(ctx context.Context, accounts *people.Service, cfg config.Server, log *slog.Logger) error {
	if cfg.BootstrapAdminEmail == "" {
		return nil
	}
	_, err := accounts.CreateAdministrator(ctx, cfg.BootstrapAdminEmail,
		kgstrings.DisplayNameFromEmail(cfg.BootstrapAdminEmail), cfg.BootstrapAdminPassword)
	switch {
	case err == nil:
		log.Info("bootstrap administrator created", "email", cfg.BootstrapAdminEmail)
	case dErrors.HasCode(err, dErrors.CodeConflict):
		log.Debug("bootstrap administrator already exists", "email", cfg.BootstrapAdminEmail)
	default:
		return fmt.Errorf("bootstrap administrator: %w", err)
	}
	return nil
}

// newPublisher returns an async publisher over Kafka when brokers are
// configured and an in-process sink otherwise.
func newPublisher(ctx context.Context, cfg config.Kafka, log *slog.Logger) (*events.Publisher, func(), error) {
	if len(cfg.Brokers) == 0 {
		p := events.NewPublisher(events.NewMemorySink(eventQueueSize), events.WithLogger(log))
		return p, func() {}, nil
	}

	sink, err := events.NewKafkaSink(cfg.Brokers, cfg.Topic, events.WithKafkaLogger(log))
	if err != nil {
		return nil, nil, err
	}
	if err := sink.EnsureTopic(ctx, 3, 1); err != nil {
		log.Warn("could not ensure event topic", "topic", cfg.Topic, "error", err)
	}
	p := events.NewPublisher(sink, events.WithLogger(log), events.WithAsync(eventQueueSize))
	return p, func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := p.Close(closeCtx); err != nil {
			log.Warn("event publisher did not drain", "error", err)
		}
		if err := sink.Close(closeCtx); err != nil {
			log.Warn("failed to close kafka sink", "error", err)
		}
	}, nil
}

// startSweeper runs the registration sweep in the background. The first
// sweep happens at start whatever the interval; a non-positive interval
// disables the periodic sweeps after it. The returned channel closes when the
// sweeper stops.
func startSweeper(ctx context.Context, windows *window.Service, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		windows.Run(ctx, interval)
	}()
	return done
}

func newWindowService(ds docstore.Store, rc *kgredis.Client, m *metrics.Metrics, p *events.Publisher, cfg config.Config, log *slog.Logger) *window.Service {
	opts := []window.Option{
		window.WithLogger(log),
		window.WithMetrics(m),
		window.WithPublisher(p),
		window.WithMaxAttempts(cfg.Enrollment.MaxUpdateAttempts),
	}
	if rc != nil {
		lease := cfg.Enrollment.SweepInterval
		if lease <= 0 {
			lease = time.Minute
		}
		opts = append(opts, window.WithLease(kgredis.NewLease(rc, sweepLeaseKey, lease)))
	}
	return window.New(ds, opts...)
}
