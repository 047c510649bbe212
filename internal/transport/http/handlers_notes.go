package httptransport

import (
	"net/http"

	"kindergarten/internal/domain"
	"kindergarten/pkg/platform/httputil"
	"kindergarten/pkg/requestcontext"
)

// handleMergeNotes merges staff notes into a child. The author is the caller;
// a note given by courseNumber gets the course type of that class.
func (h *Handler) handleMergeNotes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	childID := param(r, "child")
	req, ok := decode[NotesRequest](h, w, r)
	if !ok {
		return
	}

	author := requestcontext.ActorEmail(ctx)
	if staff, err := h.People.FindStaff(ctx, author); err == nil && staff.Name != "" {
		author = staff.Name
	}

	incoming := make([]domain.Note, 0, len(req.Notes))
	for _, n := range req.Notes {
		courseType := n.CourseType
		if courseType == "" && n.CourseNumber != "" {
			ct, err := h.Notes.CourseTypeFor(ctx, req.GardenName, n.CourseNumber)
			if err != nil {
				h.fail(ctx, w, "course type lookup failed", err,
					"garden", req.GardenName,
					"course", n.CourseNumber,
				)
				return
			}
			courseType = ct
		}
		incoming = append(incoming, domain.Note{
			Note:       n.Note,
			Date:       requestcontext.Now(ctx),
			AuthorName: author,
			AuthorRole: requestcontext.ActorRole(ctx),
			CourseType: courseType,
			Rating:     n.Rating,
		})
	}

	if err := h.Notes.MergeNotes(ctx, childID, incoming); err != nil {
		h.fail(ctx, w, "note merge failed", err, "child_id", childID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMyNotes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := h.Notes.NotesForParent(ctx, requestcontext.ActorEmail(ctx))
	if err != nil {
		h.fail(ctx, w, "failed to load notes", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}
