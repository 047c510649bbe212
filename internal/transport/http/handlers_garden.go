package httptransport

import (
	"net/http"
	"strings"

	"kindergarten/internal/domain"
	"kindergarten/internal/garden"
	dErrors "kindergarten/pkg/domain-errors"
	"kindergarten/pkg/platform/httputil"
	"kindergarten/pkg/requestcontext"
)

// handleSearchGardens filters by ?city=, ?affiliation= and ?age=.
func (h *Handler) handleSearchGardens(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := garden.Query{
		City:        r.URL.Query().Get("city"),
		Affiliation: r.URL.Query().Get("affiliation"),
	}
	if r.URL.Query().Has("age") {
		age, err := queryInt(r, "age", 0)
		if err != nil {
			h.fail(ctx, w, "invalid garden search", err)
			return
		}
		q.Age = &age
	}

	gardens, err := h.Gardens.Search(ctx, q)
	if err != nil {
		h.fail(ctx, w, "garden search failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"gardens": gardens})
}

func (h *Handler) handleGetGarden(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := param(r, "garden")
	g, err := h.Gardens.GetByName(ctx, name)
	if err != nil {
		h.fail(ctx, w, "failed to load garden", err, "garden", name)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, g)
}

func (h *Handler) handleCreateGarden(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := decode[CreateGardenRequest](h, w, r)
	if !ok {
		return
	}
	g := req.toDomain()
	// A director creates kindergartens for their own list.
	if requestcontext.ActorRole(ctx) == roleDirector {
		actor := requestcontext.ActorEmail(ctx)
		if g.DirectorEmail == "" {
			g.DirectorEmail = actor
		}
		if !strings.EqualFold(strings.TrimSpace(g.DirectorEmail), actor) {
			h.fail(ctx, w, "director outside scope",
				dErrors.New(dErrors.CodeForbidden, "directors create kindergartens for themselves only"),
				"garden", req.Name)
			return
		}
	}
	created, err := h.Gardens.CreateGarden(ctx, g)
	if err != nil {
		h.fail(ctx, w, "garden creation failed", err, "garden", req.Name)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleUpdateGarden(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := param(r, "garden")
	req, ok := decode[garden.Details](h, w, r)
	if !ok {
		return
	}
	g, err := h.Gardens.UpdateDetails(ctx, name, *req)
	if err != nil {
		h.fail(ctx, w, "garden update failed", err, "garden", name)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, g)
}

func (h *Handler) handleDeleteGarden(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := param(r, "garden")
	if err := h.Gardens.DeleteGarden(ctx, name); err != nil {
		h.fail(ctx, w, "garden deletion failed", err, "garden", name)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAddClass(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := param(r, "garden")
	req, ok := decode[ClassRequest](h, w, r)
	if !ok {
		return
	}
	class, err := h.Gardens.AddClass(ctx, name, req.toDomain())
	if err != nil {
		h.fail(ctx, w, "class creation failed", err,
			"garden", name,
			"course", req.CourseNumber,
		)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, class)
}

func (h *Handler) handleUpdateClass(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name, course := param(r, "garden"), param(r, "course")
	req, ok := decode[ClassRequest](h, w, r)
	if !ok {
		return
	}
	class, err := h.Gardens.UpdateClass(ctx, name, course, req.toDomain())
	if err != nil {
		h.fail(ctx, w, "class update failed", err,
			"garden", name,
			"course", course,
		)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, class)
}

func (h *Handler) handleRemoveClass(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name, course := param(r, "garden"), param(r, "course")
	if err := h.Gardens.RemoveClass(ctx, name, course); err != nil {
		h.fail(ctx, w, "class removal failed", err,
			"garden", name,
			"course", course,
		)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListAffiliations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	names, err := h.Gardens.ListAffiliations(ctx)
	if err != nil {
		h.fail(ctx, w, "failed to list affiliations", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"affiliations": names})
}

func (h *Handler) handleAddAffiliation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := decode[AffiliationRequest](h, w, r)
	if !ok {
		return
	}
	if err := h.Gardens.AddAffiliation(ctx, req.Name); err != nil {
		h.fail(ctx, w, "affiliation creation failed", err, "affiliation", req.Name)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// handleMyGardens lists the kindergartens of the caller: where a parent's
// children are enrolled, or the ones a director manages.
func (h *Handler) handleMyGardens(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	email := requestcontext.ActorEmail(ctx)
	var (
		gardens []*domain.Garden
		err     error
	)
	if requestcontext.ActorRole(ctx) == roleDirector {
		gardens, err = h.Gardens.DirectorGardens(ctx, email)
	} else {
		gardens, err = h.Gardens.GardensForParent(ctx, email)
	}
	if err != nil {
		h.fail(ctx, w, "failed to list own gardens", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"gardens": gardens})
}

// handleChildClasses lists the classes a child attends. Parents only see
// their own children.
func (h *Handler) handleChildClasses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	gardenName, childID := param(r, "garden"), param(r, "child")
	if requestcontext.ActorRole(ctx) == roleParent {
		parent, err := h.People.FindParent(ctx, requestcontext.ActorEmail(ctx))
		if err != nil {
			h.fail(ctx, w, "failed to load parent", err)
			return
		}
		if parent.ChildIndex(childID) < 0 {
			h.fail(ctx, w, "child classes lookup failed",
				dErrors.New(dErrors.CodeNotFound, "child "+childID+" not found"),
				"child_id", childID)
			return
		}
	}
	classes, err := h.Gardens.ChildClasses(ctx, gardenName, childID)
	if err != nil {
		h.fail(ctx, w, "child classes lookup failed", err,
			"garden", gardenName,
			"child_id", childID,
		)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"classes": classes})
}
