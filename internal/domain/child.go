// Package domain holds the persisted document shapes shared by every feature
// package. JSON tags are the stored field names.
package domain

import (
	"strings"
	"time"

	dErrors "kindergarten/pkg/domain-errors"
	kgstrings "kindergarten/pkg/platform/strings"
)

// Child is one enrolled (or enrolling) child. The same shape is stored
// standalone in Children and embedded in Parent.children and ChildStatus.
//
// Invariants:
//   - GartenName names the single kindergarten the child belongs to
//   - every Hobbies entry is a courseNumber of a class in that kindergarten
//     and the child id is a key of that class's children map
type Child struct {
	ID         string   `json:"id"`
	FullName   string   `json:"fullName"`
	Age        int      `json:"age"`
	Hobbies    []string `json:"hobbies"`
	GartenName string   `json:"gartenName"`
	Notes      []Note   `json:"notes"`

	Version int64 `json:"-"`
}

// Normalize trims text fields, de-duplicates hobbies, and replaces nil slices
// with empty ones so stored documents always carry the arrays.
func (c *Child) Normalize() {
	c.ID = strings.TrimSpace(c.ID)
	c.FullName = strings.TrimSpace(c.FullName)
	c.GartenName = strings.TrimSpace(c.GartenName)
	c.Hobbies = kgstrings.DedupeAndTrim(c.Hobbies)
	if c.Hobbies == nil {
		c.Hobbies = []string{}
	}
	if c.Notes == nil {
		c.Notes = []Note{}
	}
}

// MaxChildIDLength bounds client-chosen child ids.
const MaxChildIDLength = 64

// ValidateChildID checks that id can be used as a map key in every store
// backend: ASCII letters, digits, '-' and '_' only. Dots and '$' would be
// read as path operators.
func ValidateChildID(id string) error {
	if id == "" {
		return dErrors.New(dErrors.CodeValidation, "child id is required")
	}
	if len(id) > MaxChildIDLength {
		return dErrors.New(dErrors.CodeValidation, "child id is too long")
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return dErrors.New(dErrors.CodeValidation, "child id may only contain letters, digits, '-' and '_'")
		}
	}
	return nil
}

// Validate checks the fields a registration requires. An empty id is allowed
// and is assigned by the registrar.
func (c *Child) Validate() error {
	if c.ID != "" {
		if err := ValidateChildID(c.ID); err != nil {
			return err
		}
	}
	if c.FullName == "" {
		return dErrors.New(dErrors.CodeValidation, "fullName is required")
	}
	if c.GartenName == "" {
		return dErrors.New(dErrors.CodeValidation, "gartenName is required")
	}
	if c.Age < 0 {
		return dErrors.New(dErrors.CodeValidation, "age must not be negative")
	}
	return nil
}

// HasHobby reports whether the child is enrolled in courseNumber.
func (c *Child) HasHobby(courseNumber string) bool {
	for _, h := range c.Hobbies {
		if h == courseNumber {
			return true
		}
	}
	return false
}

// ChildStatus is the enrollment replica stored in kindergarten and class
// children maps. Approval belongs to the enrollment, not the child.
type ChildStatus struct {
	Child    Child `json:"child"`
	Approved bool  `json:"approved"`
}

// Note is a behavioural observation written by staff. Notes are identified by
// their text alone.
type Note struct {
	Note       string    `json:"note"`
	Date       time.Time `json:"date"`
	AuthorName string    `json:"authorName"`
	AuthorRole string    `json:"authorRole"`
	CourseType string    `json:"courseType"`
	Rating     *int      `json:"rating,omitempty"`
}

// MaxNoteRating is the upper bound of Note.Rating (five stars times two).
const MaxNoteRating = 10

// Validate checks a note before it is merged.
func (n Note) Validate() error {
	if strings.TrimSpace(n.Note) == "" {
		return dErrors.New(dErrors.CodeValidation, "note text is required")
	}
	if n.Rating != nil && (*n.Rating < 0 || *n.Rating > MaxNoteRating) {
		return dErrors.New(dErrors.CodeValidation, "note rating must be between 0 and 10")
	}
	return nil
}
