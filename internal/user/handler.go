package user

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bazaarml/controlplane/internal/apperr"
	"github.com/bazaarml/controlplane/internal/audit"
	"github.com/bazaarml/controlplane/internal/authn"
	"github.com/bazaarml/controlplane/internal/httpserver"
	"github.com/bazaarml/controlplane/internal/team"
)

type Handler struct {
	store      *Store
	teams      *team.Store
	sessions   *authn.SessionManager
	rateLimit  *authn.RateLimiter
	audit      *audit.Writer
	logger     *slog.Logger
	requireAuth func(http.Handler) http.Handler
}

func NewHandler(store *Store, teams *team.Store, sessions *authn.SessionManager, rateLimit *authn.RateLimiter, auditWriter *audit.Writer, logger *slog.Logger, requireAuth func(http.Handler) http.Handler) *Handler {
	return &Handler{store: store, teams: teams, sessions: sessions, rateLimit: rateLimit, audit: auditWriter, logger: logger, requireAuth: requireAuth}
}

// Routes is self-contained: signup/verify/login are public, everything
// else requires an authenticated identity. Callers mount this at /users
// without needing to know which of its routes are public.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/signup", h.handleSignup)
	r.Post("/verify", h.handleVerify)
	r.Post("/login", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/logout", h.handleLogout)
		r.Get("/me", h.handleMe)
		r.Route("/{id}", func(r chi.Router) {
			r.Delete("/", h.handleDelete)
			r.Post("/global-admin", authn.RequireAdmin(http.HandlerFunc(h.handleAddGlobalAdmin)).ServeHTTP)
		})
	})
	return r
}

type signupRequest struct {
	TeamName string `json:"team_name" validate:"required"`
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	hash, err := authn.HashPassword(req.Password)
	if err != nil {
		httpserver.RespondErr(w, http.StatusInternalServerError, "failed to process password")
		return
	}

	placeholderOwner := uuid.New()
	t, err := h.teams.Create(r.Context(), req.TeamName, placeholderOwner)
	if err != nil {
		h.respondErr(w, err, "creating team")
		return
	}

	u, err := h.store.Create(r.Context(), t.ID, req.Username, req.Email, hash, string(team.RoleOwner))
	if err != nil {
		h.respondErr(w, err, "creating user")
		return
	}

	// Replace the placeholder membership row with the real user ID.
	if err := h.teams.RemoveMember(r.Context(), t.ID, placeholderOwner); err != nil {
		h.logger.Warn("removing placeholder team membership", "error", err)
	}
	if err := h.teams.AddMember(r.Context(), t.ID, u.ID, team.RoleOwner); err != nil {
		h.respondErr(w, err, "adding team owner")
		return
	}

	if h.audit != nil {
		detail, _ := json.Marshal(map[string]string{"email": u.Email})
		h.audit.LogFromRequest(r, "signup", "user", u.ID, detail)
	}

	httpserver.RespondOK(w, http.StatusCreated, "signup successful, verify your email to continue", u)
}

type verifyRequest struct {
	UserID uuid.UUID `json:"user_id" validate:"required"`
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if err := h.store.MarkVerified(r.Context(), req.UserID); err != nil {
		h.respondErr(w, err, "verifying user")
		return
	}

	httpserver.RespondOK(w, http.StatusOK, "email verified", nil)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	clientIP := r.RemoteAddr
	if h.rateLimit != nil {
		allowed, err := h.rateLimit.Allow(r.Context(), clientIP)
		if err != nil {
			httpserver.RespondErr(w, http.StatusInternalServerError, "rate limiting unavailable")
			return
		}
		if !allowed {
			httpserver.RespondErr(w, http.StatusTooManyRequests, "too many login attempts, try again later")
			return
		}
	}

	id, err := h.store.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondErr(w, err, "logging in")
		return
	}

	if h.rateLimit != nil {
		_ = h.rateLimit.Reset(r.Context(), clientIP)
	}

	token, err := h.sessions.Issue(id)
	if err != nil {
		httpserver.RespondErr(w, http.StatusInternalServerError, "failed to issue session")
		return
	}
	h.sessions.SetCookie(w, token)

	if h.audit != nil {
		h.audit.LogFromRequest(r, "login", "user", id.UserID, nil)
	}

	httpserver.RespondOK(w, http.StatusOK, "login successful", map[string]string{"token": token})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.sessions.ClearCookie(w)
	httpserver.RespondOK(w, http.StatusOK, "logged out", nil)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := authn.FromContext(r.Context())
	if !ok {
		httpserver.RespondErr(w, http.StatusUnauthorized, "authentication required")
		return
	}

	u, err := h.store.Get(r.Context(), id.UserID)
	if err != nil {
		h.respondErr(w, err, "fetching user")
		return
	}

	httpserver.RespondOK(w, http.StatusOK, "current user", u)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, "invalid user ID")
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		h.respondErr(w, err, "deleting user")
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "delete", "user", id, nil)
	}

	httpserver.RespondOK(w, http.StatusOK, "user deleted", nil)
}

func (h *Handler) handleAddGlobalAdmin(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, "invalid user ID")
		return
	}

	if err := h.store.SetGlobalAdmin(r.Context(), id, true); err != nil {
		h.respondErr(w, err, "granting global admin")
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "grant_global_admin", "user", id, nil)
	}

	httpserver.RespondOK(w, http.StatusOK, "global admin granted", nil)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error, context string) {
	h.logger.Error(context, "error", err)
	httpserver.RespondErr(w, apperr.HTTPStatus(err), apperr.Message(err))
}
