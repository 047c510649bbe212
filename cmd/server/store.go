package main

import (
	"context"
	"fmt"
	"log/slog"

	"kindergarten/internal/docstore"
	"kindergarten/internal/docstore/memory"
	"kindergarten/internal/docstore/mongo"
	"kindergarten/internal/docstore/postgres"
	"kindergarten/internal/docstore/sqlite"
	"kindergarten/internal/platform/config"
)

// openStore connects the configured backend and prepares its schema. The
// returned closer releases the connection.
func openStore(ctx context.Context, cfg config.Store, log *slog.Logger) (docstore.Store, func(context.Context) error, error) {
	switch cfg.Backend {
	case config.BackendMongo:
		s, client, err := mongo.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, mongo.WithTimeout(cfg.Timeout))
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		if err := s.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		log.Info("document store ready", "backend", cfg.Backend, "database", cfg.MongoDatabase)
		return s, client.Disconnect, nil

	case config.BackendPostgres:
		s, db, err := postgres.Open(ctx, cfg.PostgresDSN, postgres.WithTimeout(cfg.Timeout))
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := s.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		log.Info("document store ready", "backend", cfg.Backend)
		return s, func(context.Context) error { return db.Close() }, nil

	case config.BackendSQLite:
		s, err := sqlite.Open(cfg.SQLitePath, sqlite.WithTimeout(cfg.Timeout))
		if err != nil {
			return nil, nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		log.Info("document store ready", "backend", cfg.Backend, "path", cfg.SQLitePath)
		return s, func(context.Context) error { return s.Close() }, nil

	default:
		log.Warn("using in-memory document store; data is lost on restart")
		return memory.New(), func(context.Context) error { return nil }, nil
	}
}
