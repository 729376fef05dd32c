package workflow

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bazaarml/controlplane/internal/apperr"
	"github.com/bazaarml/controlplane/internal/authn"
	"github.com/bazaarml/controlplane/internal/httpserver"
	"github.com/bazaarml/controlplane/internal/modelentity"
)

type Handler struct {
	manager *Manager
	logger  *slog.Logger
}

func NewHandler(manager *Manager, logger *slog.Logger) *Handler {
	return &Handler{manager: manager, logger: logger}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/enterprise-search", h.handleCreate(modelentity.TypeEnterpriseSearch))
	r.Post("/knowledge-extraction", h.handleCreate(modelentity.TypeKnowledgeExtraction))
	r.Post("/create", h.handleCreateGeneric)
	r.Post("/{id}/add-models", h.handleAddModels)
	r.Post("/{id}/delete-models", h.handleDeleteModels)
	r.Post("/{id}/start", h.handleStart)
	r.Post("/{id}/stop", h.handleStop)
	r.Post("/{id}/validate", h.handleValidate)
	r.Delete("/{id}", h.handleDelete)
	return r
}

type createRequest struct {
	Name    string `json:"name" validate:"required"`
	Subtype string `json:"subtype"`
}

func (h *Handler) handleCreate(typ modelentity.Type) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.create(w, r, typ)
	}
}

type createGenericRequest struct {
	Name string           `json:"name" validate:"required"`
	Type modelentity.Type `json:"type" validate:"required,oneof=enterprise_search knowledge_extraction"`
}

func (h *Handler) handleCreateGeneric(w http.ResponseWriter, r *http.Request) {
	var req createGenericRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	id, ok := authn.FromContext(r.Context())
	if !ok {
		httpserver.RespondErr(w, http.StatusUnauthorized, "authentication required")
		return
	}

	model, err := h.manager.Create(r.Context(), id.TeamID, id.UserID.String(), req.Name, req.Type, "")
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.RespondOK(w, http.StatusCreated, "workflow model created", model)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request, typ modelentity.Type) {
	var req createRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	id, ok := authn.FromContext(r.Context())
	if !ok {
		httpserver.RespondErr(w, http.StatusUnauthorized, "authentication required")
		return
	}

	model, err := h.manager.Create(r.Context(), id.TeamID, id.UserID.String(), req.Name, typ, req.Subtype)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.RespondOK(w, http.StatusCreated, "workflow model created", model)
}

type modelIDsRequest struct {
	ModelIDs []uuid.UUID `json:"model_ids" validate:"required,min=1"`
}

func (h *Handler) handleAddModels(w http.ResponseWriter, r *http.Request) {
	compositeID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, "invalid model ID")
		return
	}

	var req modelIDsRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if err := h.manager.AddModels(r.Context(), compositeID, req.ModelIDs); err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.RespondOK(w, http.StatusOK, "dependency models added", nil)
}

func (h *Handler) handleDeleteModels(w http.ResponseWriter, r *http.Request) {
	compositeID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, "invalid model ID")
		return
	}

	var req modelIDsRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if err := h.manager.DeleteModels(r.Context(), compositeID, req.ModelIDs); err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.RespondOK(w, http.StatusOK, "dependency models removed", nil)
}

type startRequest struct {
	Name               string `json:"name" validate:"required"`
	AutoscalingEnabled bool   `json:"autoscaling_enabled"`
	MemoryHintMB       int    `json:"memory_hint_mb" validate:"omitempty,gte=128"`
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	compositeID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, "invalid model ID")
		return
	}

	var req startRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if req.MemoryHintMB == 0 {
		req.MemoryHintMB = 2048
	}

	if err := h.manager.Start(r.Context(), compositeID, req.Name, req.AutoscalingEnabled, req.MemoryHintMB); err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.RespondOK(w, http.StatusAccepted, "workflow started", nil)
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	compositeID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, "invalid model ID")
		return
	}

	if err := h.manager.Stop(r.Context(), compositeID); err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.RespondOK(w, http.StatusOK, "workflow stopped", nil)
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	compositeID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, "invalid model ID")
		return
	}

	if err := h.manager.Validate(r.Context(), compositeID); err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.RespondOK(w, http.StatusOK, "workflow is valid", nil)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	compositeID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, "invalid model ID")
		return
	}

	if err := h.manager.Delete(r.Context(), compositeID); err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.RespondOK(w, http.StatusOK, "workflow deleted", nil)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	h.logger.Error("workflow handler error", "error", err)
	httpserver.RespondErr(w, apperr.HTTPStatus(err), apperr.Message(err))
}
