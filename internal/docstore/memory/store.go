// Package memory is the in-process docstore backend. It is the default
// backend and the one unit tests run against.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"kindergarten/internal/docstore"
	"kindergarten/pkg/platform/sentinel"
)

type entry struct {
	version int64
	body    map[string]any
}

type collection struct {
	docs  map[string]*entry
	order []string
}

// Store keeps documents in memory. Bodies are deep-copied on the way in and
// out so callers never share state with the store.
type Store struct {
	mu          sync.RWMutex
	collections map[docstore.Collection]*collection
}

// New creates an empty Store.
func New() *Store {
	return &Store{collections: make(map[docstore.Collection]*collection)}
}

func (s *Store) coll(c docstore.Collection) *collection {
	col, ok := s.collections[c]
	if !ok {
		col = &collection{docs: make(map[string]*entry)}
		s.collections[c] = col
	}
	return col
}

func snapshot(id string, e *entry) docstore.Document {
	return docstore.Document{ID: id, Version: e.version, Body: docstore.CloneBody(e.body)}
}

func (s *Store) Get(_ context.Context, c docstore.Collection, id string) (docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.collections[c]
	if !ok {
		return docstore.Document{}, sentinel.ErrNotFound
	}
	e, ok := col.docs[id]
	if !ok {
		return docstore.Document{}, sentinel.ErrNotFound
	}
	return snapshot(id, e), nil
}

func (s *Store) Find(_ context.Context, c docstore.Collection, filters ...docstore.Filter) ([]docstore.Document, error) {
	normalized, err := docstore.NormalizeFilters(filters)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.collections[c]
	if !ok {
		return []docstore.Document{}, nil
	}
	out := make([]docstore.Document, 0, len(col.order))
	for _, id := range col.order {
		e := col.docs[id]
		if docstore.Matches(e.body, normalized...) {
			out = append(out, snapshot(id, e))
		}
	}
	return out, nil
}

func (s *Store) Create(_ context.Context, c docstore.Collection, id string, body any) (docstore.Document, error) {
	encoded, err := docstore.Encode(body)
	if err != nil {
		return docstore.Document{}, err
	}
	if id == "" {
		id = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.coll(c)
	if _, exists := col.docs[id]; exists {
		return docstore.Document{}, fmt.Errorf("%s/%s: %w", c, id, sentinel.ErrAlreadyExists)
	}
	e := &entry{version: 1, body: encoded}
	col.docs[id] = e
	col.order = append(col.order, id)
	return snapshot(id, e), nil
}

func (s *Store) Replace(_ context.Context, c docstore.Collection, id string, body any, ifVersion int64) (docstore.Document, error) {
	encoded, err := docstore.Encode(body)
	if err != nil {
		return docstore.Document{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.guarded(c, id, ifVersion)
	if err != nil {
		return docstore.Document{}, err
	}
	e.body = encoded
	e.version++
	return snapshot(id, e), nil
}

func (s *Store) Update(_ context.Context, c docstore.Collection, id string, ifVersion int64, mutations ...docstore.Mutation) (docstore.Document, error) {
	prepared := make([]docstore.Mutation, len(mutations))
	for i, m := range mutations {
		v, err := docstore.Normalize(m.Value)
		if err != nil {
			return docstore.Document{}, err
		}
		m.Value = v
		prepared[i] = m
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.guarded(c, id, ifVersion)
	if err != nil {
		return docstore.Document{}, err
	}
	// Mutations apply to a copy so a failing one leaves the document untouched.
	next := docstore.CloneBody(e.body)
	for _, m := range prepared {
		if err := docstore.Apply(next, m); err != nil {
			return docstore.Document{}, fmt.Errorf("%s/%s: %w", c, id, err)
		}
	}
	e.body = next
	e.version++
	return snapshot(id, e), nil
}

func (s *Store) Delete(_ context.Context, c docstore.Collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.collections[c]
	if !ok {
		return nil
	}
	if _, ok := col.docs[id]; !ok {
		return nil
	}
	delete(col.docs, id)
	col.order = slices.DeleteFunc(col.order, func(v string) bool { return v == id })
	return nil
}

// guarded returns the entry for id after checking the version precondition.
// Callers hold the write lock.
func (s *Store) guarded(c docstore.Collection, id string, ifVersion int64) (*entry, error) {
	col, ok := s.collections[c]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", c, id, sentinel.ErrNotFound)
	}
	e, ok := col.docs[id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", c, id, sentinel.ErrNotFound)
	}
	if ifVersion > 0 && e.version != ifVersion {
		return nil, fmt.Errorf("%s/%s at version %d, expected %d: %w", c, id, e.version, ifVersion, sentinel.ErrConflict)
	}
	return e, nil
}
