package httptransport

import (
	"net/http"

	"kindergarten/internal/domain"
	"kindergarten/internal/people"
	dErrors "kindergarten/pkg/domain-errors"
	"kindergarten/pkg/platform/httputil"
	"kindergarten/pkg/requestcontext"
)

func (h *Handler) handleCreateStaff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := decode[StaffRequest](h, w, r)
	if !ok {
		return
	}
	if req.GardenName != "" && !h.allowed(w, r, req.GardenName) {
		return
	}
	role, _ := domain.ParseRole(req.Role)
	person, err := h.People.CreateStaff(ctx, people.NewStaff{
		Email:      req.Email,
		Name:       req.Name,
		Password:   req.Password,
		Role:       role,
		GardenName: req.GardenName,
		Classes:    req.Classes,
	})
	if err != nil {
		h.fail(ctx, w, "staff creation failed", err, "role", req.Role)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, person)
}

func (h *Handler) handleGetStaff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	person, err := h.People.FindStaff(ctx, param(r, "email"))
	if err != nil {
		h.fail(ctx, w, "failed to load staff member", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, person)
}

// handleListStaff serves /gardens/{garden}/staff and /staff?unassigned=true.
// Directors only list their own kindergartens or unassigned staff.
func (h *Handler) handleListStaff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := people.StaffQuery{
		GardenName: param(r, "garden"),
		Unassigned: r.URL.Query().Get("unassigned") == "true",
	}
	if q.GardenName == "" && !q.Unassigned && requestcontext.ActorRole(ctx) == roleDirector {
		h.fail(ctx, w, "director outside scope",
			dErrors.New(dErrors.CodeForbidden, "directors list staff per kindergarten"))
		return
	}
	staff, err := h.People.ListStaff(ctx, q)
	if err != nil {
		h.fail(ctx, w, "staff listing failed", err, "garden", q.GardenName)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"staff": staff})
}

func (h *Handler) handleAssignStaff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := decode[AssignmentRequest](h, w, r)
	if !ok {
		return
	}
	if !h.allowed(w, r, req.GardenName) {
		return
	}
	if err := h.People.AssignStaffToGarden(ctx, param(r, "email"), req.GardenName, req.Classes); err != nil {
		h.fail(ctx, w, "staff assignment failed", err, "garden", req.GardenName)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCreateAdministrator(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := decode[AdministratorRequest](h, w, r)
	if !ok {
		return
	}
	person, err := h.People.CreateAdministrator(ctx, req.Email, req.Name, req.Password)
	if err != nil {
		h.fail(ctx, w, "administrator creation failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, person)
}

func (h *Handler) handleUserType(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	role, err := h.People.UserType(ctx, param(r, "email"))
	if err != nil {
		h.fail(ctx, w, "user type lookup failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]domain.Role{"role": role})
}
