// Package postgres is the PostgreSQL docstore backend. All collections share
// one JSONB table keyed by (collection, id); field-path mutations run as
// jsonb_set / #- / || statements inside a row-locking transaction.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"kindergarten/internal/docstore"
	"kindergarten/pkg/platform/sentinel"
	"kindergarten/pkg/platform/tx"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	version    BIGINT NOT NULL,
	seq        BIGSERIAL,
	body       JSONB NOT NULL,
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS documents_collection_seq_idx ON documents (collection, seq);
`

const (
	pqUniqueViolation       = "23505"
	pqInvalidParameterValue = "22023"
)

// Store implements docstore.Store on PostgreSQL.
type Store struct {
	db      *sql.DB
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

// New constructs a PostgreSQL-backed document store.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Open connects with the lib/pq driver and verifies the connection.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, *sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	return New(db, opts...), db, nil
}

// Migrate creates the documents table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate documents: %w", err)
	}
	return nil
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

	var version int64
	var raw []byte
	err := tx.Use(ctx, s.db).QueryRowContext(ctx,
		`SELECT version, body FROM documents WHERE collection = $1 AND id = $2`,
		string(c), id,
	).Scan(&version, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Document{}, fmt.Errorf("%s/%s: %w", c, id, sentinel.ErrNotFound)
	}
	if err != nil {
		return docstore.Document{}, unavailable("get", c, err)
	}
	return toDocument(id, version, raw)
}

func (s *Store) Find(ctx context.Context, c docstore.Collection, filters ...docstore.Filter) ([]docstore.Document, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query, args, err := findQuery(c, filters)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Use(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("find", c, err)
	}
	defer rows.Close()

	out := []docstore.Document{}
	for rows.Next() {
		var id string
		var version int64
		var raw []byte
		if err := rows.Scan(&id, &version, &raw); err != nil {
			return nil, unavailable("find", c, err)
		}
		doc, err := toDocument(id, version, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("find", c, err)
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
		return docstore.Document{}, fmt.Errorf("encode body: %w", err)
	}
	if id == "" {
		id = uuid.NewString()
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err = tx.Use(ctx, s.db).ExecContext(ctx,
		`INSERT INTO documents (collection, id, version, body) VALUES ($1, $2, 1, $3::jsonb)`,
		string(c), id, string(raw),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
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
	raw, err := json.Marshal(encoded)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("encode body: %w", err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var version int64
	err = tx.Use(ctx, s.db).QueryRowContext(ctx, `
		UPDATE documents SET body = $3::jsonb, version = version + 1
		WHERE collection = $1 AND id = $2 AND ($4 = 0 OR version = $4)
		RETURNING version`,
		string(c), id, string(raw), ifVersion,
	).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Document{}, s.missOrConflict(ctx, c, id, ifVersion)
	}
	if err != nil {
		return docstore.Document{}, unavailable("replace", c, err)
	}
	return docstore.Document{ID: id, Version: version, Body: encoded}, nil
}

func (s *Store) Update(ctx context.Context, c docstore.Collection, id string, ifVersion int64, mutations ...docstore.Mutation) (docstore.Document, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var doc docstore.Document
	err := tx.Run(ctx, s.db, func(ctx context.Context) error {
		q := tx.Use(ctx, s.db)

		var current int64
		err := q.QueryRowContext(ctx,
			`SELECT version FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE`,
			string(c), id,
		).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s/%s: %w", c, id, sentinel.ErrNotFound)
		}
		if err != nil {
			return unavailable("update", c, err)
		}
		if ifVersion > 0 && current != ifVersion {
			return fmt.Errorf("%s/%s at version %d, expected %d: %w", c, id, current, ifVersion, sentinel.ErrConflict)
		}

		for _, m := range mutations {
			if err := s.apply(ctx, q, c, id, m); err != nil {
				return err
			}
		}

		var version int64
		var raw []byte
		err = q.QueryRowContext(ctx, `
			UPDATE documents SET version = version + 1
			WHERE collection = $1 AND id = $2
			RETURNING version, body`,
			string(c), id,
		).Scan(&version, &raw)
		if err != nil {
			return unavailable("update", c, err)
		}
		doc, err = toDocument(id, version, raw)
		return err
	})
	if err != nil {
		return docstore.Document{}, err
	}
	return doc, nil
}

func (s *Store) Delete(ctx context.Context, c docstore.Collection, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := tx.Use(ctx, s.db).ExecContext(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`, string(c), id)
	if err != nil {
		return unavailable("delete", c, err)
	}
	return nil
}

func (s *Store) apply(ctx context.Context, q tx.Querier, c docstore.Collection, id string, m docstore.Mutation) error {
	if len(m.Path) == 0 {
		return fmt.Errorf("%w: empty path", sentinel.ErrInvalidPath)
	}
	path := pq.Array([]string(m.Path))

	switch m.Op {
	case docstore.OpUnset:
		return s.exec(ctx, q, c, id, `UPDATE documents SET body = body #- $3::text[] WHERE collection = $1 AND id = $2`, path)

	case docstore.OpSet, docstore.OpPush:
		if err := s.ensureParents(ctx, q, c, id, m.Path); err != nil {
			return err
		}
		value, err := json.Marshal(m.Value)
		if err != nil {
			return fmt.Errorf("encode %s: %w", m.Path, err)
		}
		if m.Op == docstore.OpSet {
			return s.exec(ctx, q, c, id,
				`UPDATE documents SET body = jsonb_set(body, $3::text[], $4::jsonb, true) WHERE collection = $1 AND id = $2`,
				path, string(value))
		}

		var kind sql.NullString
		if err := q.QueryRowContext(ctx,
			`SELECT jsonb_typeof(body #> $3::text[]) FROM documents WHERE collection = $1 AND id = $2`,
			string(c), id, path,
		).Scan(&kind); err != nil {
			return unavailable("update", c, err)
		}
		if kind.Valid && kind.String != "array" && kind.String != "null" {
			return fmt.Errorf("%s/%s: %w: %s is %s", c, id, sentinel.ErrInvalidPath, m.Path, kind.String)
		}
		return s.exec(ctx, q, c, id, `
			UPDATE documents
			SET body = jsonb_set(body, $3::text[], COALESCE(NULLIF(body #> $3::text[], 'null'::jsonb), '[]'::jsonb) || jsonb_build_array($4::jsonb), true)
			WHERE collection = $1 AND id = $2`,
			path, string(value))

	default:
		return fmt.Errorf("%w: unknown op %s", sentinel.ErrInvalidPath, m.Op)
	}
}

// ensureParents materializes every missing intermediate object on path, since
// jsonb_set only creates the final key.
func (s *Store) ensureParents(ctx context.Context, q tx.Querier, c docstore.Collection, id string, path docstore.Path) error {
	for i := 1; i < len(path); i++ {
		prefix := pq.Array([]string(path[:i]))
		err := s.exec(ctx, q, c, id, `
			UPDATE documents
			SET body = jsonb_set(body, $3::text[], COALESCE(body #> $3::text[], '{}'::jsonb), true)
			WHERE collection = $1 AND id = $2`,
			prefix)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) exec(ctx context.Context, q tx.Querier, c docstore.Collection, id, query string, args ...any) error {
	full := append([]any{string(c), id}, args...)
	if _, err := q.ExecContext(ctx, query, full...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqInvalidParameterValue {
			return fmt.Errorf("%s/%s: %w: %v", c, id, sentinel.ErrInvalidPath, err)
		}
		return unavailable("update", c, err)
	}
	return nil
}

func (s *Store) missOrConflict(ctx context.Context, c docstore.Collection, id string, ifVersion int64) error {
	var exists bool
	err := tx.Use(ctx, s.db).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM documents WHERE collection = $1 AND id = $2)`,
		string(c), id,
	).Scan(&exists)
	if err != nil {
		return unavailable("replace", c, err)
	}
	if !exists {
		return fmt.Errorf("%s/%s: %w", c, id, sentinel.ErrNotFound)
	}
	return fmt.Errorf("%s/%s expected version %d: %w", c, id, ifVersion, sentinel.ErrConflict)
}

func findQuery(c docstore.Collection, filters []docstore.Filter) (string, []any, error) {
	normalized, err := docstore.NormalizeFilters(filters)
	if err != nil {
		return "", nil, err
	}
	var b strings.Builder
	b.WriteString(`SELECT id, version, body FROM documents WHERE collection = $1`)
	args := []any{string(c)}
	for _, f := range normalized {
		jp, err := jsonPath(f)
		if err != nil {
			return "", nil, err
		}
		value, err := json.Marshal(f.Value)
		if err != nil {
			return "", nil, fmt.Errorf("encode filter value: %w", err)
		}
		args = append(args, jp, string(value))
		fmt.Fprintf(&b, ` AND jsonb_path_exists(body, $%d::jsonpath, jsonb_build_object('v', $%d::jsonb))`, len(args)-1, len(args))
	}
	b.WriteString(` ORDER BY seq`)
	return b.String(), args, nil
}

// jsonPath renders a filter as a lax-mode SQL/JSON path predicate. Lax mode
// unwraps arrays along the way, which gives the any-element semantics.
func jsonPath(f docstore.Filter) (string, error) {
	if len(f.Path) == 0 {
		return "", fmt.Errorf("%w: empty filter path", sentinel.ErrInvalidPath)
	}
	var b strings.Builder
	b.WriteString("$")
	for _, seg := range f.Path {
		if idx, err := strconv.Atoi(seg); err == nil && idx >= 0 {
			fmt.Fprintf(&b, "[%d]", idx)
			continue
		}
		b.WriteString(`."`)
		b.WriteString(strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(seg))
		b.WriteString(`"`)
	}
	switch f.Op {
	case docstore.FilterEq:
		b.WriteString(" ? (@ == $v)")
	case docstore.FilterGte:
		b.WriteString(" ? (@ >= $v)")
	case docstore.FilterLte:
		b.WriteString(" ? (@ <= $v)")
	default:
		return "", fmt.Errorf("unsupported filter op %d", f.Op)
	}
	return b.String(), nil
}

func toDocument(id string, version int64, raw []byte) (docstore.Document, error) {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return docstore.Document{}, fmt.Errorf("decode %s body: %w", id, err)
	}
	if body == nil {
		body = map[string]any{}
	}
	return docstore.Document{ID: id, Version: version, Body: body}, nil
}

func unavailable(op string, c docstore.Collection, err error) error {
	return fmt.Errorf("postgres %s %s: %w: %v", op, c, sentinel.ErrUnavailable, err)
}
