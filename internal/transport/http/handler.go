package httptransport

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	dErrors "kindergarten/pkg/domain-errors"
	"kindergarten/pkg/platform/httputil"
	"kindergarten/pkg/requestcontext"
)

// fail logs err at a level matching its status and writes the error body.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error, args ...any) {
	args = append(args,
		"error", err,
		"code", dErrors.CodeOf(err),
		"request_id", requestcontext.RequestID(ctx),
	)
	if dErrors.ToHTTPStatus(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.Logger.ErrorContext(ctx, msg, args...)
	} else {
		h.Logger.WarnContext(ctx, msg, args...)
	}
	httputil.WriteError(w, err)
}

// scopeGarden restricts directors to the kindergartens on their own list.
// Routes without a {garden} parameter and other roles pass through.
func (h *Handler) scopeGarden(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gardenName := param(r, "garden"); gardenName != "" && !h.allowed(w, r, gardenName) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// allowed reports whether the caller may act on gardenName, writing the
// error response when not. Only directors are checked.
func (h *Handler) allowed(w http.ResponseWriter, r *http.Request, gardenName string) bool {
	ctx := r.Context()
	if requestcontext.ActorRole(ctx) != roleDirector {
		return true
	}
	email := requestcontext.ActorEmail(ctx)
	ok, err := h.Gardens.Manages(ctx, email, gardenName)
	if err != nil {
		h.fail(ctx, w, "director scope check failed", err, "garden", gardenName)
		return false
	}
	if !ok {
		h.fail(ctx, w, "director outside scope",
			dErrors.New(dErrors.CodeForbidden, "director does not manage "+gardenName),
			"garden", gardenName,
			"director", email,
		)
		return false
	}
	return true
}

// decode reads and validates a JSON body.
func decode[T any](h *Handler, w http.ResponseWriter, r *http.Request) (*T, bool) {
	ctx := r.Context()
	return httputil.DecodeAndPrepare[T](w, r, h.Logger, ctx, requestcontext.RequestID(ctx))
}

// param returns an unescaped path parameter.
func param(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeBadRequest, name+" must be an integer")
	}
	return v, nil
}

func queryFloat(r *http.Request, name string, def float64) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeBadRequest, name+" must be a number")
	}
	return v, nil
}
