package store

import (
	"context"
	"errors"

	"kindergarten/internal/docstore"
	dErrors "kindergarten/pkg/domain-errors"
	"kindergarten/pkg/platform/sentinel"
)

// Translate maps store sentinels onto domain codes. what names the document
// the caller was working on and appears in the client message. Errors that
// already carry a code pass through unchanged.
func Translate(err error, what string) error {
	if err == nil {
		return nil
	}
	var coded dErrors.Coder
	if errors.As(err, &coded) {
		return err
	}
	switch {
	case errors.Is(err, docstore.ErrRetriesExhausted):
		return dErrors.Wrap(err, dErrors.CodeConcurrentUpdateLost, "concurrent updates to "+what+" could not be applied")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, what+" not found")
	case errors.Is(err, sentinel.ErrAlreadyExists):
		return dErrors.Wrap(err, dErrors.CodeConflict, what+" already exists")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, what+" was modified concurrently")
	case errors.Is(err, sentinel.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "store unavailable")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "store operation failed")
	}
}
