// Package sqlite is the embedded docstore backend for single-node installs.
// Documents are JSON text rows in one gorm-managed table; mutations and
// filters are evaluated in process inside a write transaction.
package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"kindergarten/internal/docstore"
	"kindergarten/pkg/platform/sentinel"
)

// document is one stored row. Seq keeps insertion order for Find.
type document struct {
	Seq        uint   `gorm:"primaryKey;autoIncrement"`
	Collection string `gorm:"not null;uniqueIndex:idx_documents_key"`
	DocID      string `gorm:"column:doc_id;not null;uniqueIndex:idx_documents_key"`
	Version    int64  `gorm:"not null"`
	Body       string `gorm:"type:text;not null"`
}

func (document) TableName() string { return "documents" }

// Store implements docstore.Store on SQLite through gorm.
type Store struct {
	db      *gorm.DB
	timeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithTimeout bounds every store call.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

// New wraps an open gorm connection. The connection should be opened with
// TranslateError so duplicate keys surface as gorm.ErrDuplicatedKey.
func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{db: db}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Open opens the database file at path with WAL journaling and a single
// writer connection.
func Open(path string, opts ...Option) (*Store, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	return New(db, opts...), nil
}

// Migrate creates the documents table and its key index.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&document{}); err != nil {
		return fmt.Errorf("migrate documents: %w", err)
	}
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) Get(ctx context.Context, c docstore.Collection, id string) (docstore.Document, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	row, err := load(s.db.WithContext(ctx), c, id)
	if err != nil {
		return docstore.Document{}, err
	}
	return toDocument(row)
}

func (s *Store) Find(ctx context.Context, c docstore.Collection, filters ...docstore.Filter) ([]docstore.Document, error) {
	normalized, err := docstore.NormalizeFilters(filters)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var rows []document
	if err := s.db.WithContext(ctx).Where("collection = ?", string(c)).Order("seq").Find(&rows).Error; err != nil {
		return nil, unavailable("find", c, err)
	}
	out := make([]docstore.Document, 0, len(rows))
	for i := range rows {
		doc, err := toDocument(&rows[i])
		if err != nil {
			return nil, err
		}
		if docstore.Matches(doc.Body, normalized...) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, c docstore.Collection, id string, body any) (docstore.Document, error) {
	encoded, err := docstore.Encode(body)
	if err != nil {
		return docstore.Document{}, err
	}
	raw, err := json.Marshal(encoded)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("encode %s body: %w", c, err)
	}
	if id == "" {
		id = uuid.NewString()
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	row := &document{Collection: string(c), DocID: id, Version: 1, Body: string(raw)}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return docstore.Document{}, fmt.Errorf("%s/%s: %w", c, id, sentinel.ErrAlreadyExists)
		}
		return docstore.Document{}, unavailable("create", c, err)
	}
	return docstore.Document{ID: id, Version: 1, Body: encoded}, nil
}

func (s *Store) Replace(ctx context.Context, c docstore.Collection, id string, body any, ifVersion int64) (docstore.Document, error) {
	encoded, err := docstore.Encode(body)
	if err != nil {
		return docstore.Document{}, err
	}
	return s.rewrite(ctx, c, id, ifVersion, func(map[string]any) (map[string]any, error) {
		return encoded, nil
	})
}

func (s *Store) Update(ctx context.Context, c docstore.Collection, id string, ifVersion int64, mutations ...docstore.Mutation) (docstore.Document, error) {
	prepared := make([]docstore.Mutation, len(mutations))
	for i, m := range mutations {
		v, err := docstore.Normalize(m.Value)
		if err != nil {
			return docstore.Document{}, err
		}
		m.Value = v
		prepared[i] = m
	}
	return s.rewrite(ctx, c, id, ifVersion, func(body map[string]any) (map[string]any, error) {
		for _, m := range prepared {
			if err := docstore.Apply(body, m); err != nil {
				return nil, fmt.Errorf("%s/%s: %w", c, id, err)
			}
		}
		return body, nil
	})
}

// rewrite loads the row, checks the version, and stores the body returned by
// change with the version bumped, all in one transaction.
func (s *Store) rewrite(ctx context.Context, c docstore.Collection, id string, ifVersion int64, change func(map[string]any) (map[string]any, error)) (docstore.Document, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var out docstore.Document
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := load(tx, c, id)
		if err != nil {
			return err
		}
		if ifVersion > 0 && row.Version != ifVersion {
			return fmt.Errorf("%s/%s at version %d, expected %d: %w", c, id, row.Version, ifVersion, sentinel.ErrConflict)
		}
		current, err := toDocument(row)
		if err != nil {
			return err
		}
		next, err := change(current.Body)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode %s/%s: %w", c, id, err)
		}

		res := tx.Model(&document{}).
			Where("collection = ? AND doc_id = ? AND version = ?", string(c), id, row.Version).
			Updates(map[string]any{"body": string(raw), "version": row.Version + 1})
		if res.Error != nil {
			return unavailable("update", c, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%s/%s: %w", c, id, sentinel.ErrConflict)
		}
		out = docstore.Document{ID: id, Version: row.Version + 1, Body: next}
		return nil
	})
	if err != nil {
		return docstore.Document{}, err
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, c docstore.Collection, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.db.WithContext(ctx).Where("collection = ? AND doc_id = ?", string(c), id).Delete(&document{}).Error; err != nil {
		return unavailable("delete", c, err)
	}
	return nil
}

func load(db *gorm.DB, c docstore.Collection, id string) (*document, error) {
	var row document
	err := db.Where("collection = ? AND doc_id = ?", string(c), id).Take(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("%s/%s: %w", c, id, sentinel.ErrNotFound)
	case err != nil:
		return nil, unavailable("get", c, err)
	}
	return &row, nil
}

func toDocument(row *document) (docstore.Document, error) {
	var body map[string]any
	if err := json.Unmarshal([]byte(row.Body), &body); err != nil {
		return docstore.Document{}, fmt.Errorf("decode %s body: %w", row.DocID, err)
	}
	if body == nil {
		body = map[string]any{}
	}
	return docstore.Document{ID: row.DocID, Version: row.Version, Body: body}, nil
}

func unavailable(op string, c docstore.Collection, err error) error {
	return fmt.Errorf("sqlite %s %s: %w: %v", op, c, sentinel.ErrUnavailable, err)
}
