package httptransport

import (
	"net/http"

	"kindergarten/internal/domain"
	"kindergarten/pkg/platform/httputil"
	"kindergarten/pkg/requestcontext"
)

const defaultTopRated = 5

func (h *Handler) handleTopRated(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	n, err := queryInt(r, "n", defaultTopRated)
	if err != nil {
		h.fail(ctx, w, "invalid top-rated query", err)
		return
	}
	ranked, err := h.Rating.TopRatedGardens(ctx, n)
	if err != nil {
		h.fail(ctx, w, "failed to rank gardens", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"gardens": ranked})
}

func (h *Handler) handleRatingRange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	minRating, err := queryFloat(r, "min", domain.MinReviewRating)
	if err != nil {
		h.fail(ctx, w, "invalid rating range", err)
		return
	}
	maxRating, err := queryFloat(r, "max", domain.MaxReviewRating)
	if err != nil {
		h.fail(ctx, w, "invalid rating range", err)
		return
	}
	ranked, err := h.Rating.GardensInRatingRange(ctx, minRating, maxRating)
	if err != nil {
		h.fail(ctx, w, "failed to filter gardens by rating", err,
			"min", minRating,
			"max", maxRating,
		)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"gardens": ranked})
}

func (h *Handler) handleGardenReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	gardenName := param(r, "garden")
	reviews, err := h.Rating.ReviewsForGarden(ctx, gardenName)
	if err != nil {
		h.fail(ctx, w, "failed to load reviews", err, "garden", gardenName)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"reviews": reviews})
}

func (h *Handler) handleAddReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	gardenName := param(r, "garden")
	req, ok := decode[ReviewRequest](h, w, r)
	if !ok {
		return
	}

	review := domain.Review{
		Rating:     req.Rating,
		Comment:    req.Comment,
		ReviewDate: requestcontext.Now(ctx),
	}
	if err := h.Rating.AddReview(ctx, gardenName, requestcontext.ActorEmail(ctx), review); err != nil {
		h.fail(ctx, w, "review failed", err, "garden", gardenName)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, review)
}

func (h *Handler) handleRespondToReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	gardenName := param(r, "garden")
	req, ok := decode[ReviewResponseRequest](h, w, r)
	if !ok {
		return
	}
	if err := h.Rating.RespondToReview(ctx, gardenName, req.ParentEmail, req.ReviewDate, req.Response); err != nil {
		h.fail(ctx, w, "review response failed", err, "garden", gardenName)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMyReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reviews, err := h.Rating.ReviewsForParent(ctx, requestcontext.ActorEmail(ctx))
	if err != nil {
		h.fail(ctx, w, "failed to load reviews", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"reviews": reviews})
}
