package lifecycle

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bazaarml/controlplane/internal/apperr"
	"github.com/bazaarml/controlplane/internal/audit"
	"github.com/bazaarml/controlplane/internal/httpserver"
)

type Handler struct {
	manager           *Manager
	audit             *audit.Writer
	logger            *slog.Logger
	requireSession    func(http.Handler) http.Handler
	requireTaskRunner func(http.Handler) http.Handler
}

// NewHandler wires a lifecycle Handler. requireSession gates the
// interactive operations (train/retrain/deploy/undeploy/delete);
// requireTaskRunner gates the machine-to-machine callback surface the
// cluster's task runner and a deploy replica's own idle timer call back
// into. The two share a path prefix (baked into the cluster job templates
// and the inference runtime's control-plane client) but never an auth
// scheme, so Routes scopes each group with its own middleware rather than
// exposing them as separately-mountable routers.
func NewHandler(manager *Manager, auditWriter *audit.Writer, logger *slog.Logger, requireSession, requireTaskRunner func(http.Handler) http.Handler) *Handler {
	return &Handler{manager: manager, audit: auditWriter, logger: logger, requireSession: requireSession, requireTaskRunner: requireTaskRunner}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(h.requireSession)
		r.Post("/{id}/train", h.handleTrain)
		r.Post("/{id}/retrain", h.handleRetrain)
		r.Post("/{id}/deploy", h.handleDeploy)
		r.Post("/deployments/{id}/undeploy", h.handleUndeploy)
		r.Delete("/{id}", h.handleDelete)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.requireTaskRunner)
		r.Get("/{id}/deploy/status", h.handleDeployStatus)
		r.Post("/deployments/{id}/update-status", h.handleUpdateStatus)
		r.Post("/callback/{kind}/{id}", h.handleCallback)
	})
	return r
}

func (h *Handler) handleTrain(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, "invalid model ID")
		return
	}
	if err := h.manager.Train(r.Context(), id); err != nil {
		h.respondErr(w, err)
		return
	}
	if h.audit != nil {
		h.audit.LogFromRequest(r, "train", "model", id, nil)
	}
	httpserver.RespondOK(w, http.StatusAccepted, "training started", nil)
}

type retrainRequest struct {
	OwnerUsername string `json:"owner_username" validate:"required"`
	ModelName     string `json:"model_name" validate:"required"`
}

func (h *Handler) handleRetrain(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, "invalid model ID")
		return
	}

	var req retrainRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	newModel, err := h.manager.Retrain(r.Context(), id, req.OwnerUsername, req.ModelName)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	if h.audit != nil {
		detail, _ := json.Marshal(map[string]string{"base_model_id": id.String()})
		h.audit.LogFromRequest(r, "retrain", "model", newModel.ID, detail)
	}
	httpserver.RespondOK(w, http.StatusAccepted, "retraining started", newModel)
}

type deployRequest struct {
	Name               string `json:"name" validate:"required"`
	AutoscalingEnabled bool   `json:"autoscaling_enabled"`
	MemoryHintMB       int    `json:"memory_hint_mb" validate:"required,gte=128"`
}

func (h *Handler) handleDeploy(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, "invalid model ID")
		return
	}

	var req deployRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	d, err := h.manager.Deploy(r.Context(), id, req.Name, req.AutoscalingEnabled, req.MemoryHintMB)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "deploy", "model", id, nil)
	}

	httpserver.RespondOK(w, http.StatusAccepted, "deployment started", d)
}

func (h *Handler) handleUndeploy(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, "invalid deployment ID")
		return
	}
	if err := h.manager.Undeploy(r.Context(), id); err != nil {
		h.respondErr(w, err)
		return
	}
	if h.audit != nil {
		h.audit.LogFromRequest(r, "undeploy", "deployment", id, nil)
	}
	httpserver.RespondOK(w, http.StatusOK, "undeploy requested", nil)
}

// handleDeployStatus answers an inference replica's own idle timer: how
// many non-terminal deployments its model currently has, so the replica
// knows whether it is still the one the control plane expects running.
func (h *Handler) handleDeployStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, "invalid model ID")
		return
	}

	count, err := h.manager.ActiveDeploymentCount(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	httpserver.RespondOK(w, http.StatusOK, "deploy status", map[string]int{"active_count": count})
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// handleUpdateStatus lets a replica report that it stopped itself after
// going idle, authenticated by the same task-runner token as the cluster
// callbacks.
func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, "invalid deployment ID")
		return
	}

	var req updateStatusRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if req.Status != "stopped" {
		httpserver.RespondErr(w, http.StatusBadRequest, "unsupported status")
		return
	}

	if err := h.manager.ReportDeploymentStopped(r.Context(), id); err != nil {
		h.respondErr(w, err)
		return
	}

	httpserver.RespondOK(w, http.StatusOK, "deployment status updated", nil)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, "invalid model ID")
		return
	}
	if err := h.manager.Delete(r.Context(), id); err != nil {
		h.respondErr(w, err)
		return
	}
	if h.audit != nil {
		h.audit.LogFromRequest(r, "delete", "model", id, nil)
	}
	httpserver.RespondOK(w, http.StatusOK, "model deleted", nil)
}

type callbackRequest struct {
	Success bool `json:"success"`
}

// handleCallback is invoked by the cluster's task-runner once a job
// finishes. It is authenticated by a shared task-runner token rather than
// a user session (enforced by middleware at mount time).
func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, "invalid callback ID")
		return
	}

	var req callbackRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	switch kind {
	case "train", "retrain":
		err = h.manager.HandleTrainCallback(r.Context(), id, req.Success)
	case "deploy":
		err = h.manager.HandleDeployCallback(r.Context(), id, req.Success)
	default:
		httpserver.RespondErr(w, http.StatusBadRequest, "unknown callback kind")
		return
	}
	if err != nil {
		h.respondErr(w, err)
		return
	}

	httpserver.RespondOK(w, http.StatusOK, "callback processed", nil)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	h.logger.Error("lifecycle handler error", "error", err)
	httpserver.RespondErr(w, apperr.HTTPStatus(err), apperr.Message(err))
}
