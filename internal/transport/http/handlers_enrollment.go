package httptransport

import (
	"net/http"

	"kindergarten/internal/domain"
	"kindergarten/internal/enrollment"
	dErrors "kindergarten/pkg/domain-errors"
	"kindergarten/pkg/platform/httputil"
	"kindergarten/pkg/requestcontext"
)

// handleRegisterChild enrolls a child of the calling parent. A partial
// fan-out still reports the child id next to the step report.
func (h *Handler) handleRegisterChild(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	gardenName := param(r, "garden")
	req, ok := decode[RegisterChildRequest](h, w, r)
	if !ok {
		return
	}

	child := domain.Child{
		ID:         req.ID,
		FullName:   req.FullName,
		Age:        req.Age,
		Hobbies:    req.Hobbies,
		GartenName: gardenName,
	}
	id, err := h.Enrollment.RegisterChild(ctx, child, requestcontext.ActorEmail(ctx))
	if err != nil {
		if id != "" {
			w.Header().Set("Location", "/gardens/"+gardenName+"/children/"+id)
		}
		h.fail(ctx, w, "child registration failed", err,
			"garden", gardenName,
			"child_id", id,
		)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, map[string]string{"childId": id})
}

// handleRemoveChild removes a child from every replica. Parents remove their
// own children; managers name the parent with ?parent=.
func (h *Handler) handleRemoveChild(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	gardenName, childID := param(r, "garden"), param(r, "child")

	parentID := requestcontext.ActorEmail(ctx)
	if requestcontext.ActorRole(ctx) != roleParent {
		parentID = r.URL.Query().Get("parent")
		if parentID == "" {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "parent query parameter is required"))
			return
		}
	}

	if err := h.Enrollment.RemoveChild(ctx, childID, gardenName, parentID); err != nil {
		h.fail(ctx, w, "child removal failed", err,
			"garden", gardenName,
			"child_id", childID,
		)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListSagas lists partially applied enrollments.
func (h *Handler) handleListSagas(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sagas, err := h.Enrollment.Sagas(ctx, r.URL.Query().Get("operation"))
	if err != nil {
		h.fail(ctx, w, "failed to list sagas", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"sagas": sagas})
}

// handleResumeSaga re-runs the pending steps of a saga. The operation query
// parameter selects registration (default) or removal.
func (h *Handler) handleResumeSaga(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sagaID := param(r, "saga")

	var err error
	switch op := r.URL.Query().Get("operation"); op {
	case "", enrollment.OperationRegister:
		err = h.Enrollment.ResumeRegistration(ctx, sagaID)
	case enrollment.OperationRemove:
		err = h.Enrollment.ResumeRemoval(ctx, sagaID)
	default:
		err = dErrors.New(dErrors.CodeBadRequest, "unknown operation "+op)
	}
	if err != nil {
		h.fail(ctx, w, "saga resume failed", err, "saga_id", sagaID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
