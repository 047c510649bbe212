package httptransport

import (
	"errors"
	"net/http"
	"strconv"

	"kindergarten/internal/domain"
	"kindergarten/internal/people"
	"kindergarten/internal/ratelimit"
	dErrors "kindergarten/pkg/domain-errors"
	"kindergarten/pkg/platform/httputil"
	"kindergarten/pkg/platform/middleware/metadata"
	"kindergarten/pkg/requestcontext"
)

// handleLogin exchanges an email and password for an access token.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := decode[LoginRequest](h, w, r)
	if !ok {
		return
	}

	ip := metadata.ClientIPFromRequest(r)
	if h.Logins != nil {
		if err := h.Logins.Check(ctx, req.Email, ip); err != nil {
			var locked *ratelimit.LockedError
			if errors.As(err, &locked) {
				w.Header().Set("Retry-After", strconv.Itoa(int(locked.RetryAfter.Seconds())))
			}
			h.fail(ctx, w, "login throttled", err, "client_ip", ip)
			return
		}
	}

	account, err := h.People.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		if h.Logins != nil && dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			h.Logins.RecordFailure(ctx, req.Email, ip)
		}
		h.fail(ctx, w, "login failed", err)
		return
	}
	if h.Logins != nil {
		h.Logins.Clear(ctx, req.Email, ip)
	}
	token, err := h.Tokens.GenerateAccessToken(account.Email, string(account.Role), h.TokenTTL)
	if err != nil {
		h.fail(ctx, w, "failed to issue token", dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token"))
		return
	}

	h.Logger.InfoContext(ctx, "login succeeded",
		"email", account.Email,
		"role", account.Role,
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(h.TokenTTL.Seconds()),
		Email:       account.Email,
		Role:        string(account.Role),
	})
}

// handleSignUp creates a parent account.
func (h *Handler) handleSignUp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := decode[SignUpRequest](h, w, r)
	if !ok {
		return
	}
	parent, err := h.People.SignUpParent(ctx, people.SignUp{Email: req.Email, Name: req.Name, Password: req.Password})
	if err != nil {
		h.fail(ctx, w, "parent sign-up failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, parent)
}

// handleMe returns the caller's own account.
func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	email := requestcontext.ActorEmail(ctx)

	switch domain.Role(requestcontext.ActorRole(ctx)) {
	case domain.RoleParent:
		parent, err := h.People.FindParent(ctx, email)
		if err != nil {
			h.fail(ctx, w, "failed to load parent", err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, parent)
	case domain.RoleStaff, domain.RoleDirector:
		person, err := h.People.FindStaff(ctx, email)
		if err != nil {
			h.fail(ctx, w, "failed to load staff member", err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, person)
	default:
		httputil.WriteJSON(w, http.StatusOK, people.Account{
			Email: email,
			Role:  domain.Role(requestcontext.ActorRole(ctx)),
		})
	}
}
