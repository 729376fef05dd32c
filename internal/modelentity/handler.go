package modelentity

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bazaarml/controlplane/internal/apperr"
	"github.com/bazaarml/controlplane/internal/audit"
	"github.com/bazaarml/controlplane/internal/authn"
	"github.com/bazaarml/controlplane/internal/httpserver"
	"github.com/bazaarml/controlplane/internal/question"
)

type Handler struct {
	store     *Store
	audit     *audit.Writer
	logger    *slog.Logger
	questions *question.Handler
}

func NewHandler(store *Store, auditWriter *audit.Writer, logger *slog.Logger, questions *question.Handler) *Handler {
	return &Handler{store: store, audit: auditWriter, logger: logger, questions: questions}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Get("/name-check", h.handleNameCheck)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/access-level", h.handleUpdateAccessLevel)
	r.Mount("/{id}/questions", h.questions.Routes())
	return r
}

type createRequest struct {
	ModelName string `json:"model_name" validate:"required"`
	Type      Type   `json:"type" validate:"required,oneof=ndb udt enterprise_search knowledge_extraction"`
	Subtype   string `json:"subtype"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	id, ok := authn.FromContext(r.Context())
	if !ok {
		httpserver.RespondErr(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req createRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	m, err := h.store.Create(r.Context(), Model{
		TeamID:        id.TeamID,
		OwnerUsername: id.UserID.String(),
		ModelName:     req.ModelName,
		Type:          req.Type,
		Subtype:       req.Subtype,
		TrainStatus:   TrainStatusNotStarted,
		AccessLevel:   AccessPrivate,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "create", "model", m.ID, nil)
	}

	httpserver.RespondOK(w, http.StatusCreated, "model created", m)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, "invalid model ID")
		return
	}

	m, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	httpserver.RespondOK(w, http.StatusOK, "model", m)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	id, ok := authn.FromContext(r.Context())
	if !ok {
		httpserver.RespondErr(w, http.StatusUnauthorized, "authentication required")
		return
	}

	models, err := h.store.ListByTeam(r.Context(), id.TeamID, r.URL.Query().Get("include_hidden") == "true")
	if err != nil {
		h.respondErr(w, err)
		return
	}

	httpserver.RespondOK(w, http.StatusOK, "models", models)
}

func (h *Handler) handleNameCheck(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner_username")
	name := r.URL.Query().Get("model_name")
	if owner == "" || name == "" {
		httpserver.RespondErr(w, http.StatusBadRequest, "owner_username and model_name are required")
		return
	}

	_, err := h.store.GetByIdentity(r.Context(), owner, name)
	available := false
	if appErr, ok := apperr.As(err); ok && appErr.Kind == apperr.KindNotFound {
		available = true
	}
	httpserver.RespondOK(w, http.StatusOK, "name availability", map[string]bool{"available": available})
}

// Deletion is not exposed here: it must cascade through an active
// deployment's undeploy first, which only lifecycle.Manager.Delete knows
// how to do (see internal/lifecycle.Handler's DELETE /{id}).

type accessLevelRequest struct {
	AccessLevel AccessLevel `json:"access_level" validate:"required,oneof=private team protected public"`
}

func (h *Handler) handleUpdateAccessLevel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, "invalid model ID")
		return
	}

	var req accessLevelRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if err := h.store.SetAccessLevel(r.Context(), id, req.AccessLevel); err != nil {
		h.respondErr(w, err)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "update_access_level", "model", id, nil)
	}

	httpserver.RespondOK(w, http.StatusOK, "access level updated", nil)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	h.logger.Error("model handler error", "error", err)
	httpserver.RespondErr(w, apperr.HTTPStatus(err), apperr.Message(err))
}
