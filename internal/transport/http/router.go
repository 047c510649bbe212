// Package httptransport is the thin HTTP layer. Handlers decode and validate
// requests, call the feature services, and map domain errors to responses;
// they hold no business rules.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"kindergarten/internal/domain"
	"kindergarten/internal/platform/metrics"
	"kindergarten/internal/platform/middleware"
	authmw "kindergarten/pkg/platform/middleware/auth"
	"kindergarten/pkg/platform/middleware/request"
	"kindergarten/pkg/platform/middleware/requesttime"
)

const (
	roleParent   = string(domain.RoleParent)
	roleStaff    = string(domain.RoleStaff)
	roleDirector = string(domain.RoleDirector)
	roleAdmin    = string(domain.RoleSystemAdministrator)
)

// Deps is everything the router needs. Services are the feature packages'
// concrete types in production and fakes in tests.
type Deps struct {
	Enrollment EnrollmentService
	Approval   ApprovalService
	Window     WindowService
	Notes      NotesService
	Rating     RatingService
	Gardens    GardenService
	People     PeopleService
	Photos     PhotoService

	Tokens    TokenIssuer
	Validator authmw.JWTValidator
	TokenTTL  time.Duration
	// Logins is optional; without it failed logins are not throttled.
	Logins LoginLimiter

	// PublicBaseURL prefixes links in registration QR codes.
	PublicBaseURL string

	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	RequestTimeout time.Duration
}

// Handler serves every public endpoint.
type Handler struct {
	Deps
}

// New builds a Handler, filling defaults.
func New(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.TokenTTL <= 0 {
		deps.TokenTTL = time.Hour
	}
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 30 * time.Second
	}
	return &Handler{Deps: deps}
}

// Router installs the middleware chain and mounts every route.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(request.Recovery(h.Logger))
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(request.Logger(h.Logger))
	r.Use(request.Timeout(h.RequestTimeout))
	r.Use(request.ContentTypeJSON)
	r.Use(middleware.LatencyMiddleware(h.Metrics))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h.Register(r)
	return r
}

// Register mounts the routes on r.
func (h *Handler) Register(r chi.Router) {
	// Public.
	r.Post("/auth/login", h.handleLogin)
	r.Post("/parents", h.handleSignUp)
	r.Get("/affiliations", h.handleListAffiliations)
	r.Get("/gardens", h.handleSearchGardens)
	r.Get("/gardens/top", h.handleTopRated)
	r.Get("/gardens/rating", h.handleRatingRange)
	r.Get("/gardens/{garden}", h.handleGetGarden)
	r.Get("/gardens/{garden}/reviews", h.handleGardenReviews)
	r.Get("/gardens/{garden}/registration", h.handleGetWindow)
	r.Get("/gardens/{garden}/qr", h.handleGardenQR)

	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(h.Validator, h.Logger))
		r.Get("/me", h.handleMe)
		r.With(authmw.RequireRole(h.Logger, roleParent, roleDirector)).
			Get("/me/gardens", h.handleMyGardens)

		r.Group(func(r chi.Router) {
			r.Use(authmw.RequireRole(h.Logger, roleParent))
			r.Post("/gardens/{garden}/children", h.handleRegisterChild)
			r.Post("/gardens/{garden}/reviews", h.handleAddReview)
			r.Get("/me/notes", h.handleMyNotes)
			r.Get("/me/reviews", h.handleMyReviews)
			r.Get("/me/photos", h.handleMyPhotos)
		})

		r.With(authmw.RequireRole(h.Logger, roleParent, roleDirector, roleAdmin), h.scopeGarden).
			Delete("/gardens/{garden}/children/{child}", h.handleRemoveChild)
		r.With(authmw.RequireRole(h.Logger, roleParent, roleStaff, roleDirector, roleAdmin), h.scopeGarden).
			Get("/gardens/{garden}/children/{child}/classes", h.handleChildClasses)

		r.Group(func(r chi.Router) {
			r.Use(authmw.RequireRole(h.Logger, roleStaff, roleDirector))
			r.Post("/children/{child}/notes", h.handleMergeNotes)
			r.Post("/photos", h.handleSavePhoto)
		})

		r.Group(func(r chi.Router) {
			r.Use(authmw.RequireRole(h.Logger, roleDirector, roleAdmin))
			r.Use(h.scopeGarden)
			r.Post("/gardens", h.handleCreateGarden)
			r.Patch("/gardens/{garden}", h.handleUpdateGarden)
			r.Delete("/gardens/{garden}", h.handleDeleteGarden)
			r.Post("/gardens/{garden}/classes", h.handleAddClass)
			r.Put("/gardens/{garden}/classes/{course}", h.handleUpdateClass)
			r.Delete("/gardens/{garden}/classes/{course}", h.handleRemoveClass)
			r.Get("/gardens/{garden}/classes/{course}/roster", h.handleClassRoster)
			r.Get("/gardens/{garden}/children", h.handleListChildren)
			r.Get("/gardens/{garden}/children/{child}/approval", h.handleGetApproval)
			r.Put("/gardens/{garden}/children/{child}/approval", h.handleSetApproval)
			r.Post("/gardens/{garden}/registration/open", h.handleOpenWindow)
			r.Post("/gardens/{garden}/registration/close", h.handleCloseWindow)
			r.Put("/gardens/{garden}/status", h.handleSetStatus)
			r.Post("/gardens/{garden}/reviews/response", h.handleRespondToReview)
			r.Get("/gardens/{garden}/staff", h.handleListStaff)
			r.Get("/children/photos", h.handleChildrenPhotos)
			r.Get("/staff", h.handleListStaff)
			r.Post("/staff", h.handleCreateStaff)
			r.Put("/staff/{email}/assignment", h.handleAssignStaff)
			r.Get("/staff/{email}", h.handleGetStaff)
		})

		r.Group(func(r chi.Router) {
			r.Use(authmw.RequireRole(h.Logger, roleAdmin))
			r.Post("/admin/administrators", h.handleCreateAdministrator)
			r.Post("/admin/affiliations", h.handleAddAffiliation)
			r.Get("/admin/users/{email}/role", h.handleUserType)
			r.Post("/admin/registration/open-all", h.handleOpenAll)
			r.Post("/admin/registration/close-all", h.handleCloseAll)
			r.Post("/admin/registration/sweep", h.handleSweep)
			r.Get("/admin/sagas", h.handleListSagas)
			r.Post("/admin/sagas/{saga}/resume", h.handleResumeSaga)
		})
	})
}
