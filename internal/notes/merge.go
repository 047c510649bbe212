package notes

import "kindergarten/internal/domain"

// Merge folds incoming into existing. Notes are matched on their text only: a
// match takes the incoming courseType and rating, anything else is appended.
// Neither input is modified and merging the same notes twice is a no-op.
func Merge(existing, incoming []domain.Note) []domain.Note {
	out := make([]domain.Note, len(existing), len(existing)+len(incoming))
	copy(out, existing)
	for _, n := range incoming {
		i := indexOf(out, n.Note)
		if i < 0 {
			out = append(out, n)
			continue
		}
		out[i].CourseType = n.CourseType
		out[i].Rating = n.Rating
	}
	return out
}

func indexOf(notes []domain.Note, text string) int {
	for i, n := range notes {
		if n.Note == text {
			return i
		}
	}
	return -1
}

// equal reports whether a and b hold the same notes in the same order, looking
// only at the fields Merge writes.
func equal(a, b []domain.Note) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Note != b[i].Note || a[i].CourseType != b[i].CourseType {
			return false
		}
		if (a[i].Rating == nil) != (b[i].Rating == nil) {
			return false
		}
		if a[i].Rating != nil && *a[i].Rating != *b[i].Rating {
			return false
		}
	}
	return true
}
