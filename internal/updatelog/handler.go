package updatelog

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bazaarml/controlplane/internal/httpserver"
)

type Handler struct {
	bazaarDir string
	logger    *slog.Logger
}

func NewHandler(bazaarDir string, logger *slog.Logger) *Handler {
	return &Handler{bazaarDir: bazaarDir, logger: logger}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/{deployment_id}/allocations/{allocation_id}/{kind}", h.handleAppend)
	r.Get("/{deployment_id}/{kind}", h.handleReadAll)
	return r
}

func (h *Handler) handleAppend(w http.ResponseWriter, r *http.Request) {
	deploymentID, err := uuid.Parse(chi.URLParam(r, "deployment_id"))
	if err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, "invalid deployment ID")
		return
	}
	allocationID, err := uuid.Parse(chi.URLParam(r, "allocation_id"))
	if err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, "invalid allocation ID")
		return
	}
	kind := Kind(chi.URLParam(r, "kind"))
	if !ValidKind(kind) {
		httpserver.RespondErr(w, http.StatusBadRequest, "unknown update log kind")
		return
	}

	var payload json.RawMessage
	if err := httpserver.Decode(r, &payload); err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, err.Error())
		return
	}

	writer, err := NewWriter(h.bazaarDir, deploymentID)
	if err != nil {
		h.logger.Error("creating update log writer", "error", err)
		httpserver.RespondErr(w, http.StatusInternalServerError, "failed to open update log")
		return
	}

	if err := writer.Append(allocationID, kind, payload); err != nil {
		h.logger.Error("appending update log entry", "error", err)
		httpserver.RespondErr(w, http.StatusInternalServerError, "failed to record feedback")
		return
	}

	httpserver.RespondOK(w, http.StatusCreated, "feedback recorded", nil)
}

func (h *Handler) handleReadAll(w http.ResponseWriter, r *http.Request) {
	deploymentID, err := uuid.Parse(chi.URLParam(r, "deployment_id"))
	if err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, "invalid deployment ID")
		return
	}
	kind := Kind(chi.URLParam(r, "kind"))
	if !ValidKind(kind) {
		httpserver.RespondErr(w, http.StatusBadRequest, "unknown update log kind")
		return
	}

	reader := NewReader(h.bazaarDir, deploymentID)
	entries, err := reader.ReadAll(kind)
	if err != nil {
		h.logger.Error("reading update log", "error", err)
		httpserver.RespondErr(w, http.StatusInternalServerError, "failed to read update log")
		return
	}

	httpserver.RespondOK(w, http.StatusOK, "update log entries", entries)
}
