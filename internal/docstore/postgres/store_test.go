package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kindergarten/internal/docstore"
)

func TestJSONPath(t *testing.T) {
	cases := []struct {
		name   string
		filter docstore.Filter
		want   string
	}{
		{"equality", docstore.Eq(docstore.P("name"), "Sunflower"), `$."name" ? (@ == $v)`},
		{"nested through array", docstore.Eq(docstore.P("children", "id"), "c1"), `$."children"."id" ? (@ == $v)`},
		{"indexed", docstore.Eq(docstore.P("classes", "0", "courseNumber"), "A1"), `$."classes"[0]."courseNumber" ? (@ == $v)`},
		{"range", docstore.Gte(docstore.P("avg"), 40), `$."avg" ? (@ >= $v)`},
		{"quoted key", docstore.Lte(docstore.P(`we"ird`), 1), `$."we\"ird" ? (@ <= $v)`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := jsonPath(tc.filter)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFindQueryNumbersPlaceholders(t *testing.T) {
	query, args, err := findQuery(docstore.Kindergartens, []docstore.Filter{
		docstore.Eq(docstore.P("name"), "Sunflower"),
		docstore.Eq(docstore.P("city"), "Haifa"),
	})
	require.NoError(t, err)
	assert.Contains(t, query, "$2::jsonpath, jsonb_build_object('v', $3::jsonb)")
	assert.Contains(t, query, "$4::jsonpath, jsonb_build_object('v', $5::jsonb)")
	assert.Contains(t, query, "ORDER BY seq")
	require.Len(t, args, 5)
	assert.Equal(t, `"Sunflower"`, args[2])
}
