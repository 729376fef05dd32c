package team

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bazaarml/controlplane/internal/apperr"
	"github.com/bazaarml/controlplane/internal/audit"
	"github.com/bazaarml/controlplane/internal/authn"
	"github.com/bazaarml/controlplane/internal/httpserver"
)

type Handler struct {
	store  *Store
	audit  *audit.Writer
	logger *slog.Logger
}

func NewHandler(store *Store, auditWriter *audit.Writer, logger *slog.Logger) *Handler {
	return &Handler{store: store, audit: auditWriter, logger: logger}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{id}", h.handleGet)
	r.Get("/{id}/members", h.handleListMembers)
	r.Post("/{id}/members", h.handleAddMember)
	r.Delete("/{id}/members/{user_id}", h.handleRemoveMember)
	return r
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, "invalid team ID")
		return
	}
	t, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.RespondOK(w, http.StatusOK, "team", t)
}

func (h *Handler) handleListMembers(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, "invalid team ID")
		return
	}
	members, err := h.store.Members(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.RespondOK(w, http.StatusOK, "team members", members)
}

type addMemberRequest struct {
	UserID uuid.UUID `json:"user_id" validate:"required"`
	Role   string    `json:"role" validate:"required,oneof=member admin owner"`
}

func (h *Handler) handleAddMember(w http.ResponseWriter, r *http.Request) {
	teamID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, "invalid team ID")
		return
	}

	caller, ok := authn.FromContext(r.Context())
	if !ok || caller.TeamID != teamID {
		httpserver.RespondErr(w, http.StatusForbidden, "not a member of this team")
		return
	}
	if role, err := h.store.RoleOf(r.Context(), teamID, caller.UserID); err != nil || role == RoleMember {
		httpserver.RespondErr(w, http.StatusForbidden, "admin or owner role required")
		return
	}

	var req addMemberRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if err := h.store.AddMember(r.Context(), teamID, req.UserID, Role(req.Role)); err != nil {
		h.respondErr(w, err)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "add_member", "team", teamID, nil)
	}

	httpserver.RespondOK(w, http.StatusOK, "member added", nil)
}

func (h *Handler) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	teamID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, "invalid team ID")
		return
	}
	userID, err := uuid.Parse(chi.URLParam(r, "user_id"))
	if err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, "invalid user ID")
		return
	}

	if err := h.store.RemoveMember(r.Context(), teamID, userID); err != nil {
		h.respondErr(w, err)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "remove_member", "team", teamID, nil)
	}

	httpserver.RespondOK(w, http.StatusOK, "member removed", nil)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	h.logger.Error("team handler error", "error", err)
	httpserver.RespondErr(w, apperr.HTTPStatus(err), apperr.Message(err))
}
