// Package docstore is the backing store adapter: a small document-database
// abstraction over named collections with versioned documents, field-path
// mutations, and filtered scans.
//
// Every write bumps the document's Version. Callers that read a document and
// then write it back pass the version they read as ifVersion; a mismatch
// returns sentinel.ErrConflict so the caller can re-read and retry (see
// RetryOnConflict). An ifVersion of 0 skips the check.
package docstore

import "context"

// Collection names a group of documents.
type Collection string

const (
	Kindergartens              Collection = "Kindergartens"
	Children                   Collection = "Children"
	Parents                    Collection = "Parents"
	Staff                      Collection = "Staff"
	Directors                  Collection = "Directors"
	SystemAdministrators       Collection = "SystemAdministrators"
	OrganizationalAffiliations Collection = "OrganizationalAffiliations"
	ChildPhotos                Collection = "ChildPhotos"
	EnrollmentSagas            Collection = "EnrollmentSagas"
	KindergartenNames          Collection = "KindergartenNames"
)

// Collections lists every collection the service touches. Backends that need
// schema setup iterate it.
var Collections = []Collection{
	Kindergartens,
	Children,
	Parents,
	Staff,
	Directors,
	SystemAdministrators,
	OrganizationalAffiliations,
	ChildPhotos,
	EnrollmentSagas,
	KindergartenNames,
}

// Store is implemented by every backend.
//
// Errors:
//   - sentinel.ErrNotFound: Get, Replace, or Update on an absent document
//   - sentinel.ErrAlreadyExists: Create with a taken id
//   - sentinel.ErrConflict: ifVersion did not match
//   - sentinel.ErrInvalidPath: a mutation addressed a non-container value
//   - sentinel.ErrUnavailable: transport failure or timeout
type Store interface {
	Get(ctx context.Context, c Collection, id string) (Document, error)
	// Find returns documents matching every filter, in insertion order.
	Find(ctx context.Context, c Collection, filters ...Filter) ([]Document, error)
	// Create stores body under id. An empty id is replaced by a generated one.
	Create(ctx context.Context, c Collection, id string, body any) (Document, error)
	Replace(ctx context.Context, c Collection, id string, body any, ifVersion int64) (Document, error)
	Update(ctx context.Context, c Collection, id string, ifVersion int64, mutations ...Mutation) (Document, error)
	// Delete is a no-op for absent documents.
	Delete(ctx context.Context, c Collection, id string) error
}
