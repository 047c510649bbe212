// Package events publishes domain events about enrollments, approvals, and
// registration windows. Events are informational: a failed publish never
// fails the operation that emitted it.
package events

import "time"

// Type names a domain event.
type Type string

const (
	TypeChildRegistered    Type = "child_registered"
	TypeChildRemoved       Type = "child_removed"
	TypeApprovalChanged    Type = "approval_changed"
	TypeRegistrationOpened Type = "registration_opened"
	TypeRegistrationClosed Type = "registration_closed"
	TypeNotesMerged        Type = "notes_merged"
	TypeReviewAdded        Type = "review_added"
)

// Event is emitted from domain logic. Keep it transport-agnostic so sinks can
// fan out.
type Event struct {
	Type       Type           `json:"type"`
	GardenName string         `json:"gardenName,omitempty"`
	ChildID    string         `json:"childId,omitempty"`
	ParentID   string         `json:"parentId,omitempty"`
	Actor      string         `json:"actor,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Key partitions events so one kindergarten's events stay ordered.
func (e Event) Key() string {
	if e.GardenName != "" {
		return e.GardenName
	}
	return e.ChildID
}
