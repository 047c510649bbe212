package httptransport

import (
	"net/http"

	"kindergarten/internal/domain"
	dErrors "kindergarten/pkg/domain-errors"
	"kindergarten/pkg/platform/httputil"
)

func (h *Handler) handleSetApproval(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	gardenName, childID := param(r, "garden"), param(r, "child")
	req, ok := decode[ApprovalRequest](h, w, r)
	if !ok {
		return
	}
	if err := h.Approval.SetApproval(ctx, gardenName, childID, *req.Approved); err != nil {
		h.fail(ctx, w, "approval update failed", err,
			"garden", gardenName,
			"child_id", childID,
		)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"approved": *req.Approved})
}

func (h *Handler) handleGetApproval(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	gardenName, childID := param(r, "garden"), param(r, "child")
	approved, err := h.Approval.IsChildApproved(ctx, gardenName, childID)
	if err != nil {
		h.fail(ctx, w, "approval lookup failed", err,
			"garden", gardenName,
			"child_id", childID,
		)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"approved": approved})
}

// handleListChildren lists enrolled children filtered by ?approved=true|false.
func (h *Handler) handleListChildren(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	gardenName := param(r, "garden")

	var (
		children []domain.Child
		err      error
	)
	switch r.URL.Query().Get("approved") {
	case "true":
		children, err = h.Approval.ApprovedChildren(ctx, gardenName)
	case "false":
		children, err = h.Approval.PendingChildren(ctx, gardenName)
	default:
		err = dErrors.New(dErrors.CodeBadRequest, "approved must be true or false")
	}
	if err != nil {
		h.fail(ctx, w, "failed to list children", err, "garden", gardenName)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"children": children})
}

func (h *Handler) handleClassRoster(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	gardenName, course := param(r, "garden"), param(r, "course")
	roster, err := h.Approval.ClassRoster(ctx, gardenName, course)
	if err != nil {
		h.fail(ctx, w, "failed to load class roster", err, "garden", gardenName)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"children": roster})
}
