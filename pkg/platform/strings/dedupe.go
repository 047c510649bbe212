// Package strings holds small normalization helpers for user-entered values.
package strings

import (
	"strings"
)

// DedupeAndTrim trims every element and drops blanks and repeats, keeping the
// first occurrence's position. Used for course-number selections.
//
//	DedupeAndTrim([]string{" 101", "102", "101 ", ""}) // []string{"101", "102"}
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}
	return dedupe(values, strings.TrimSpace)
}

// DedupeAndTrimLower is DedupeAndTrim with case folding, for email lists.
func DedupeAndTrimLower(values []string) []string {
	if len(values) == 0 {
		return values
	}
	return dedupe(values, NormalizeEmail)
}

// NormalizeEmail trims and lowercases an address. Emails key parent and staff
// documents, so every lookup goes through here.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func dedupe(values []string, norm func(string) string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		n := norm(v)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
