// Package ratelimit throttles repeated failed logins. Failures are counted per
// account and client address inside a fixed window; once the window's
// attempts are spent, logins for that pair are refused until it resets.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	dErrors "kindergarten/pkg/domain-errors"
	kgstrings "kindergarten/pkg/platform/strings"
	"kindergarten/pkg/requestcontext"
)

// Config bounds login attempts.
type Config struct {
	AttemptsPerWindow int
	Window            time.Duration
}

// DefaultConfig allows five failures per fifteen minutes.
func DefaultConfig() Config {
	return Config{AttemptsPerWindow: 5, Window: 15 * time.Minute}
}

// Store counts failures per key.
type Store interface {
	// RecordFailure increments the counter for key, opening a window of the
	// given length when none is open, and returns the new count and the
	// window's reset time.
	RecordFailure(ctx context.Context, key string, now time.Time, window time.Duration) (int, time.Time, error)
	// Failures returns the count and reset time of the open window, or zero.
	Failures(ctx context.Context, key string, now time.Time) (int, time.Time, error)
	Clear(ctx context.Context, key string) error
}

// LockedError is returned by Check while a key is locked out.
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("too many failed logins, retry in %d seconds", int(e.RetryAfter.Seconds()))
}

// ErrorCode implements dErrors.Coder.
func (e *LockedError) ErrorCode() dErrors.Code { return dErrors.CodeRateLimited }

// Lockout applies Config over a Store.
type Lockout struct {
	store  Store
	cfg    Config
	logger *slog.Logger
}

// Option configures a Lockout.
type Option func(*Lockout)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Lockout) { l.logger = logger }
}

func WithConfig(cfg Config) Option {
	return func(l *Lockout) { l.cfg = cfg }
}

// NewLockout builds a Lockout with DefaultConfig unless overridden.
func NewLockout(store Store, opts ...Option) *Lockout {
	l := &Lockout{
		store:  store,
		cfg:    DefaultConfig(),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func key(email, ip string) string {
	return kgstrings.NormalizeEmail(email) + "|" + ip
}

// Check returns a *LockedError when email from ip has no attempts left. Store
// failures are logged and let the attempt through.
func (l *Lockout) Check(ctx context.Context, email, ip string) error {
	now := requestcontext.Now(ctx)
	count, resetAt, err := l.store.Failures(ctx, key(email, ip), now)
	if err != nil {
		l.logger.WarnContext(ctx, "login lockout check failed, allowing attempt",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil
	}
	if count < l.cfg.AttemptsPerWindow {
		return nil
	}
	return &LockedError{RetryAfter: max(resetAt.Sub(now), time.Second)}
}

// RecordFailure counts a failed login.
func (l *Lockout) RecordFailure(ctx context.Context, email, ip string) {
	count, _, err := l.store.RecordFailure(ctx, key(email, ip), requestcontext.Now(ctx), l.cfg.Window)
	if err != nil {
		l.logger.WarnContext(ctx, "failed to record login failure",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return
	}
	if count == l.cfg.AttemptsPerWindow {
		l.logger.WarnContext(ctx, "login locked out",
			"email", kgstrings.NormalizeEmail(email),
			"window", l.cfg.Window,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

// Clear forgets failures after a successful login.
func (l *Lockout) Clear(ctx context.Context, email, ip string) {
	if err := l.store.Clear(ctx, key(email, ip)); err != nil {
		l.logger.WarnContext(ctx, "failed to clear login failures",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}
