//go:generate mockgen -source=store.go -destination=mocks/mocks.go -package=mocks Store

package docstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kindergarten/pkg/platform/sentinel"
)

func body(t *testing.T, v any) map[string]any {
	t.Helper()
	b, err := Encode(v)
	require.NoError(t, err)
	return b
}

func TestApply(t *testing.T) {
	t.Run("set creates missing maps", func(t *testing.T) {
		b := body(t, map[string]any{})
		require.NoError(t, Apply(b, Set(P("children", "c1", "approved"), true)))
		assert.Equal(t, true, b["children"].(map[string]any)["c1"].(map[string]any)["approved"])
	})

	t.Run("set addresses array elements by index", func(t *testing.T) {
		b := body(t, map[string]any{"classes": []any{map[string]any{}, map[string]any{}}})
		require.NoError(t, Apply(b, Set(P("classes", "1", "children", "c1"), "x")))
		classes := b["classes"].([]any)
		assert.Empty(t, classes[0])
		assert.Equal(t, "x", classes[1].(map[string]any)["children"].(map[string]any)["c1"])
	})

	t.Run("index out of range is invalid", func(t *testing.T) {
		b := body(t, map[string]any{"classes": []any{}})
		err := Apply(b, Set(P("classes", "3", "x"), 1))
		assert.ErrorIs(t, err, sentinel.ErrInvalidPath)
	})

	t.Run("unset of absent path is a no-op", func(t *testing.T) {
		b := body(t, map[string]any{"a": 1})
		require.NoError(t, Apply(b, Unset(P("b", "c"))))
		assert.Equal(t, map[string]any{"a": float64(1)}, b)
	})

	t.Run("push onto scalar is invalid", func(t *testing.T) {
		b := body(t, map[string]any{"name": "Sunflower"})
		assert.ErrorIs(t, Apply(b, Push(P("name"), 1)), sentinel.ErrInvalidPath)
	})
}

func TestMatches(t *testing.T) {
	b := body(t, map[string]any{
		"name":     "Sunflower",
		"children": []any{map[string]any{"id": "c1"}, map[string]any{"id": "c2"}},
		"avg":      42.5,
	})

	filters := func(fs ...Filter) []Filter {
		n, err := NormalizeFilters(fs)
		require.NoError(t, err)
		return n
	}

	assert.True(t, Matches(b, filters(Eq(P("name"), "Sunflower"))...))
	assert.True(t, Matches(b, filters(Eq(P("children", "id"), "c2"))...))
	assert.False(t, Matches(b, filters(Eq(P("children", "id"), "c3"))...))
	assert.True(t, Matches(b, filters(Eq(P("children", "0", "id"), "c1"))...))
	assert.True(t, Matches(b, filters(Gte(P("avg"), 42.5), Lte(P("avg"), 50))...))
	assert.False(t, Matches(b, filters(Gte(P("name"), 1))...))
	assert.False(t, Matches(b, filters(Eq(P("missing"), "x"))...))
}

func TestRetryOnConflict(t *testing.T) {
	ctx := context.Background()

	t.Run("stops on success", func(t *testing.T) {
		calls := 0
		err := RetryOnConflict(ctx, 5, nil, func(context.Context) error {
			calls++
			if calls < 3 {
				return sentinel.ErrConflict
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("returns other errors immediately", func(t *testing.T) {
		boom := errors.New("boom")
		calls := 0
		err := RetryOnConflict(ctx, 5, nil, func(context.Context) error {
			calls++
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("exhaustion wraps the last conflict", func(t *testing.T) {
		conflicts := 0
		err := RetryOnConflict(ctx, 2, func() { conflicts++ }, func(context.Context) error {
			return sentinel.ErrConflict
		})
		assert.ErrorIs(t, err, ErrRetriesExhausted)
		assert.ErrorIs(t, err, sentinel.ErrConflict)
		assert.Equal(t, 2, conflicts)
	})
}

func TestDocumentDecode(t *testing.T) {
	type child struct {
		ID      string   `json:"id"`
		Age     int      `json:"age"`
		Hobbies []string `json:"hobbies"`
	}
	doc := Document{ID: "c1", Body: body(t, child{ID: "c1", Age: 4, Hobbies: []string{"A1"}})}

	var got child
	require.NoError(t, doc.Decode(&got))
	assert.Equal(t, child{ID: "c1", Age: 4, Hobbies: []string{"A1"}}, got)
}
