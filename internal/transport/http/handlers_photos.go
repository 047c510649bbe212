package httptransport

import (
	"net/http"
	"strings"

	"kindergarten/internal/domain"
	dErrors "kindergarten/pkg/domain-errors"
	"kindergarten/pkg/platform/httputil"
	"kindergarten/pkg/requestcontext"
)

func (h *Handler) handleSavePhoto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := decode[PhotoRequest](h, w, r)
	if !ok {
		return
	}
	taken := req.Time
	if taken.IsZero() {
		taken = requestcontext.Now(ctx)
	}
	photo, err := h.Photos.Save(ctx, domain.ChildPhoto{
		ImageURL:  req.ImageURL,
		ClassName: req.ClassName,
		ChildID:   req.ChildID,
		Time:      taken,
	})
	if err != nil {
		h.fail(ctx, w, "photo upload failed", err, "child_id", req.ChildID)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, photo)
}

// handleChildrenPhotos lists photos for ?ids=a,b,c.
func (h *Handler) handleChildrenPhotos(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var ids []string
	for _, id := range strings.Split(r.URL.Query().Get("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "ids query parameter is required"))
		return
	}
	photos, err := h.Photos.ForChildren(ctx, ids)
	if err != nil {
		h.fail(ctx, w, "failed to load photos", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"photos": photos})
}

// handleMyPhotos lists photos of the caller's children in ?garden=.
func (h *Handler) handleMyPhotos(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	gardenName := r.URL.Query().Get("garden")
	photos, err := h.Photos.ForParentInGarden(ctx, requestcontext.ActorEmail(ctx), gardenName)
	if err != nil {
		h.fail(ctx, w, "failed to load photos", err, "garden", gardenName)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"photos": photos})
}
