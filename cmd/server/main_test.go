package main

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kindergarten/internal/docstore/memory"
	"kindergarten/internal/domain"
	"kindergarten/internal/people"
	"kindergarten/internal/platform/config"
	"kindergarten/internal/store/fixtures"
	"kindergarten/internal/window"
)

func TestBootstrapAdmin(t *testing.T) {
	ctx := context.Background()
	accounts := people.New(memory.New())
	log := slog.New(slog.DiscardHandler)
	cfg := config.Server{BootstrapAdminEmail: "root@example.com", BootstrapAdminPassword: "s3cret-pass"}

	require.NoError(t, bootstrapAdmin(ctx, accounts, cfg, log))
	require.NoError(t, bootstrapAdmin(ctx, accounts, cfg, log), "second start keeps the existing account")

	role, err := accounts.UserType(ctx, "root@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSystemAdministrator, role)

	_, err = accounts.Authenticate(ctx, "root@example.com", "s3cret-pass")
	assert.NoError(t, err)
}

func TestBootstrapAdminDisabled(t *testing.T) {
	assert.NoError(t, bootstrapAdmin(context.Background(), people.New(memory.New()), config.Server{}, slog.New(slog.DiscardHandler)))
}

func TestStartSweeperClosesStaleWindowsWithDefaultInterval(t *testing.T) {
	for _, key := range []string{"KG_SWEEP_INTERVAL", "KG_STORE_BACKEND", "KG_MAX_UPDATE_ATTEMPTS", "KG_BOOTSTRAP_ADMIN_EMAIL"} {
		t.Setenv(key, "")
	}
	cfg, err := config.FromEnv()
	require.NoError(t, err)
	require.Zero(t, cfg.Enrollment.SweepInterval)

	ds := memory.New()
	stale := fixtures.Garden("Sunflower")
	stale.ApplyOpen(time.Now().AddDate(0, 0, -10))
	fixtures.SeedGarden(t, ds, stale)
	fresh := fixtures.Garden("Tulip")
	fresh.ApplyOpen(time.Now())
	fixtures.SeedGarden(t, ds, fresh)

	done := startSweeper(context.Background(), window.New(ds), cfg.Enrollment.SweepInterval)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper did not finish its start-up sweep")
	}

	assert.False(t, fixtures.LoadGarden(t, ds, "Sunflower").IsRegistered)
	assert.True(t, fixtures.LoadGarden(t, ds, "Tulip").IsRegistered)
}
