// Package storetest is the behavioural contract every docstore backend must
// satisfy. Backend packages run it from their own tests:
//
//	suite.Run(t, &storetest.Suite{NewStore: func(t *testing.T) docstore.Store { ... }})
package storetest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/suite"

	"kindergarten/internal/docstore"
	"kindergarten/pkg/platform/sentinel"
)

// Suite exercises a Store through the public interface only.
type Suite struct {
	suite.Suite
	// NewStore returns an empty store for each test.
	NewStore func(t *testing.T) docstore.Store

	store docstore.Store
	ctx   context.Context
}

func (s *Suite) SetupTest() {
	s.store = s.NewStore(s.T())
	s.ctx = context.Background()
}

type garden struct {
	Name     string                    `json:"name"`
	City     string                    `json:"city"`
	Children map[string]map[string]any `json:"children"`
	Classes  []map[string]any          `json:"classes"`
	Reviews  []map[string]any          `json:"reviews"`
}

func (s *Suite) seedGarden(id, name, city string) docstore.Document {
	doc, err := s.store.Create(s.ctx, docstore.Kindergartens, id, garden{
		Name:     name,
		City:     city,
		Children: map[string]map[string]any{},
		Classes: []map[string]any{
			{"courseNumber": "A1", "children": map[string]any{}},
			{"courseNumber": "B2", "children": map[string]any{}},
		},
		Reviews: []map[string]any{},
	})
	s.Require().NoError(err)
	return doc
}

func (s *Suite) TestCreateAndGet() {
	s.Run("round-trips body and starts at version 1", func() {
		doc := s.seedGarden("g1", "Sunflower", "Haifa")
		s.Equal(int64(1), doc.Version)

		got, err := s.store.Get(s.ctx, docstore.Kindergartens, "g1")
		s.Require().NoError(err)
		s.Equal("Sunflower", got.Body["name"])
		s.Equal(doc.Version, got.Version)

		var decoded garden
		s.Require().NoError(got.Decode(&decoded))
		s.Len(decoded.Classes, 2)
	})

	s.Run("generates an id when empty", func() {
		doc, err := s.store.Create(s.ctx, docstore.Children, "", map[string]any{"fullName": "Noa"})
		s.Require().NoError(err)
		s.NotEmpty(doc.ID)
	})

	s.Run("rejects a taken id", func() {
		_, err := s.store.Create(s.ctx, docstore.Kindergartens, "g1", garden{Name: "Other"})
		s.Require().ErrorIs(err, sentinel.ErrAlreadyExists)
	})

	s.Run("missing document is not found", func() {
		_, err := s.store.Get(s.ctx, docstore.Kindergartens, "nope")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *Suite) TestFind() {
	s.seedGarden("g1", "Sunflower", "Haifa")
	s.seedGarden("g2", "Tulip", "Haifa")
	s.seedGarden("g3", "Sunflower", "Akko")

	s.Run("equality returns matches in insertion order", func() {
		docs, err := s.store.Find(s.ctx, docstore.Kindergartens, docstore.Eq(docstore.P("name"), "Sunflower"))
		s.Require().NoError(err)
		s.Require().Len(docs, 2)
		s.Equal("g1", docs[0].ID)
		s.Equal("g3", docs[1].ID)
	})

	s.Run("filters combine", func() {
		docs, err := s.store.Find(s.ctx, docstore.Kindergartens,
			docstore.Eq(docstore.P("name"), "Sunflower"),
			docstore.Eq(docstore.P("city"), "Akko"),
		)
		s.Require().NoError(err)
		s.Require().Len(docs, 1)
		s.Equal("g3", docs[0].ID)
	})

	s.Run("path through array matches any element", func() {
		docs, err := s.store.Find(s.ctx, docstore.Kindergartens, docstore.Eq(docstore.P("classes", "courseNumber"), "B2"))
		s.Require().NoError(err)
		s.Len(docs, 3)
	})

	s.Run("numeric ranges are inclusive", func() {
		for i, age := range []float64{3, 4, 5} {
			_, err := s.store.Create(s.ctx, docstore.Children, "", map[string]any{"age": age, "n": i})
			s.Require().NoError(err)
		}
		docs, err := s.store.Find(s.ctx, docstore.Children,
			docstore.Gte(docstore.P("age"), 4),
			docstore.Lte(docstore.P("age"), 5),
		)
		s.Require().NoError(err)
		s.Len(docs, 2)
	})

	s.Run("empty collection yields empty result", func() {
		docs, err := s.store.Find(s.ctx, docstore.ChildPhotos)
		s.Require().NoError(err)
		s.Empty(docs)
	})
}

func (s *Suite) TestUpdate() {
	doc := s.seedGarden("g1", "Sunflower", "Haifa")
	child := map[string]any{"child": map[string]any{"id": "c1", "fullName": "Noa"}, "approved": false}

	s.Run("set creates nested keys and bumps version", func() {
		updated, err := s.store.Update(s.ctx, docstore.Kindergartens, "g1", doc.Version,
			docstore.Set(docstore.P("children", "c1"), child),
			docstore.Set(docstore.P("classes", "1", "children", "c1"), child),
		)
		s.Require().NoError(err)
		s.Equal(doc.Version+1, updated.Version)

		children := updated.Body["children"].(map[string]any)
		s.Contains(children, "c1")
		classes := updated.Body["classes"].([]any)
		s.Contains(classes[1].(map[string]any)["children"], "c1")
		s.NotContains(classes[0].(map[string]any)["children"], "c1")
		doc = updated
	})

	s.Run("set on a leaf field", func() {
		updated, err := s.store.Update(s.ctx, docstore.Kindergartens, "g1", 0,
			docstore.Set(docstore.P("children", "c1", "approved"), true),
		)
		s.Require().NoError(err)
		entry := updated.Body["children"].(map[string]any)["c1"].(map[string]any)
		s.Equal(true, entry["approved"])
		doc = updated
	})

	s.Run("stale version conflicts", func() {
		_, err := s.store.Update(s.ctx, docstore.Kindergartens, "g1", doc.Version-1,
			docstore.Set(docstore.P("city"), "Akko"),
		)
		s.Require().ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("push appends and creates arrays", func() {
		updated, err := s.store.Update(s.ctx, docstore.Kindergartens, "g1", 0,
			docstore.Push(docstore.P("reviews"), map[string]any{"rating": 4}),
			docstore.Push(docstore.P("tags"), "outdoor"),
		)
		s.Require().NoError(err)
		s.Len(updated.Body["reviews"], 1)
		s.Equal([]any{"outdoor"}, updated.Body["tags"])
	})

	s.Run("unset removes keys and tolerates absent ones", func() {
		updated, err := s.store.Update(s.ctx, docstore.Kindergartens, "g1", 0,
			docstore.Unset(docstore.P("children", "c1")),
			docstore.Unset(docstore.P("children", "ghost")),
			docstore.Unset(docstore.P("missing", "deeper")),
		)
		s.Require().NoError(err)
		s.NotContains(updated.Body["children"], "c1")
	})

	s.Run("missing document is not found", func() {
		_, err := s.store.Update(s.ctx, docstore.Kindergartens, "nope", 0, docstore.Set(docstore.P("x"), 1))
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *Suite) TestReplaceAndDelete() {
	doc := s.seedGarden("g1", "Sunflower", "Haifa")

	s.Run("replace overwrites the body", func() {
		updated, err := s.store.Replace(s.ctx, docstore.Kindergartens, "g1", garden{Name: "Sunflower", City: "Akko"}, doc.Version)
		s.Require().NoError(err)
		s.Equal(doc.Version+1, updated.Version)
		s.Equal("Akko", updated.Body["city"])
	})

	s.Run("replace with stale version conflicts", func() {
		_, err := s.store.Replace(s.ctx, docstore.Kindergartens, "g1", garden{Name: "X"}, doc.Version)
		s.Require().ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("delete is idempotent", func() {
		s.Require().NoError(s.store.Delete(s.ctx, docstore.Kindergartens, "g1"))
		s.Require().NoError(s.store.Delete(s.ctx, docstore.Kindergartens, "g1"))
		_, err := s.store.Get(s.ctx, docstore.Kindergartens, "g1")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

// TestConcurrentGuardedUpdates checks that version-guarded writers never lose
// an update when each retries on conflict.
func (s *Suite) TestConcurrentGuardedUpdates() {
	s.seedGarden("g1", "Sunflower", "Haifa")
	const writers = 20

	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := range writers {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := "c" + string(rune('a'+n))
			err := docstore.RetryOnConflict(s.ctx, 100, nil, func(ctx context.Context) error {
				doc, err := s.store.Get(ctx, docstore.Kindergartens, "g1")
				if err != nil {
					return err
				}
				_, err = s.store.Update(ctx, docstore.Kindergartens, "g1", doc.Version,
					docstore.Set(docstore.P("children", id), map[string]any{"approved": false}),
				)
				return err
			})
			if err != nil {
				failures.Add(1)
			}
		}(i)
	}
	wg.Wait()

	s.Zero(failures.Load())
	doc, err := s.store.Get(s.ctx, docstore.Kindergartens, "g1")
	s.Require().NoError(err)
	s.Len(doc.Body["children"], writers)
	s.Equal(int64(1+writers), doc.Version)
}
