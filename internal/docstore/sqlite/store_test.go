package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"kindergarten/internal/docstore"
	"kindergarten/internal/docstore/storetest"
	"kindergarten/pkg/platform/sentinel"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "docs.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStoreSuite(t *testing.T) {
	suite.Run(t, &storetest.Suite{
		NewStore: func(t *testing.T) docstore.Store { return openTestStore(t) },
	})
}

func TestFailedMutationRollsBack(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	_, err := store.Create(ctx, docstore.Children, "c1", map[string]any{"fullName": "Noa"})
	require.NoError(t, err)

	_, err = store.Update(ctx, docstore.Children, "c1", 0,
		docstore.Set(docstore.P("age"), 4),
		docstore.Push(docstore.P("fullName"), "x"),
	)
	require.ErrorIs(t, err, sentinel.ErrInvalidPath)

	doc, err := store.Get(ctx, docstore.Children, "c1")
	require.NoError(t, err)
	require.Equal(t, int64(1), doc.Version)
	require.NotContains(t, doc.Body, "age")
}

func TestCollectionsAreSeparate(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	_, err := store.Create(ctx, docstore.Children, "x", map[string]any{"fullName": "Noa"})
	require.NoError(t, err)
	_, err = store.Create(ctx, docstore.Parents, "x", map[string]any{"name": "Dana"})
	require.NoError(t, err, "same id in another collection")

	_, err = store.Get(ctx, docstore.Kindergartens, "x")
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}
