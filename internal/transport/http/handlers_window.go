package httptransport

import (
	"context"
	"net/http"

	"kindergarten/pkg/platform/httputil"
	"kindergarten/pkg/requestcontext"
)

func (h *Handler) handleGetWindow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	gardenName := param(r, "garden")
	state, err := h.Window.Get(ctx, gardenName)
	if err != nil {
		h.fail(ctx, w, "failed to load registration window", err, "garden", gardenName)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, state)
}

func (h *Handler) handleOpenWindow(w http.ResponseWriter, r *http.Request) {
	h.changeWindow(w, r, h.Window.OpenRegistration)
}

func (h *Handler) handleCloseWindow(w http.ResponseWriter, r *http.Request) {
	h.changeWindow(w, r, h.Window.CloseRegistration)
}

func (h *Handler) changeWindow(w http.ResponseWriter, r *http.Request, change func(ctx context.Context, gardenName string) error) {
	ctx := r.Context()
	gardenName := param(r, "garden")
	if err := change(ctx, gardenName); err != nil {
		h.fail(ctx, w, "registration window change failed", err, "garden", gardenName)
		return
	}
	h.handleGetWindow(w, r)
}

func (h *Handler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	gardenName := param(r, "garden")
	req, ok := decode[StatusRequest](h, w, r)
	if !ok {
		return
	}
	if err := h.Window.SetStatus(ctx, gardenName, req.Status); err != nil {
		h.fail(ctx, w, "status update failed", err, "garden", gardenName)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleOpenAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := h.Window.OpenAll(ctx)
	if err != nil {
		h.fail(ctx, w, "bulk open failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleCloseAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := h.Window.CloseAll(ctx)
	if err != nil {
		h.fail(ctx, w, "bulk close failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// handleSweep runs the expiry sweep now, at the request time.
func (h *Handler) handleSweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := h.Window.Sweep(ctx, requestcontext.Now(ctx))
	if err != nil {
		h.fail(ctx, w, "registration sweep failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}
