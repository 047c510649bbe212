package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{name: "nil stays nil", input: nil, expected: nil},
		{name: "empty stays empty", input: []string{}, expected: []string{}},
		{name: "keeps first position", input: []string{"102", " 101", "102 "}, expected: []string{"102", "101"}},
		{name: "drops blanks", input: []string{"", "  ", "A1"}, expected: []string{"A1"}},
		{name: "case sensitive", input: []string{"a1", "A1"}, expected: []string{"a1", "A1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}

func TestDedupeAndTrimLower(t *testing.T) {
	got := DedupeAndTrimLower([]string{" Dana@Example.com", "dana@example.com", "lee@example.com"})
	assert.Equal(t, []string{"dana@example.com", "lee@example.com"}, got)
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "parent@example.com", NormalizeEmail("  Parent@Example.COM "))
}
