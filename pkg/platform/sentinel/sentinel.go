package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Document store backends return
// these (optionally wrapped) so services can translate them into domain errors.
//
//   - ErrNotFound: document does not exist in the collection
//   - ErrAlreadyExists: a create collided with an existing document id
//   - ErrConflict: a version precondition did not hold (lost race)
//   - ErrInvalidPath: a field path does not address a mutable location
//   - ErrUnavailable: backend unreachable or timed out
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrConflict      = errors.New("conflict")
	ErrInvalidPath   = errors.New("invalid field path")
	ErrUnavailable   = errors.New("unavailable")
)
