package domain

import "time"

// ChildPhoto is photo metadata; the image bytes live elsewhere.
type ChildPhoto struct {
	ImageURL  string    `json:"imageUrl"`
	ClassName string    `json:"className"`
	Time      time.Time `json:"time"`
	ChildID   string    `json:"childId"`
}
