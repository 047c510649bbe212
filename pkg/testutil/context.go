package testutil

import (
	"net/http"
	"time"

	"kindergarten/pkg/requestcontext"
)

// AsActor returns req as if the auth middleware had accepted a token for
// email with role.
func AsActor(req *http.Request, email, role string) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), email, role))
}

// AtTime pins the request clock.
func AtTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
