package syntheticdata

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bazaarml/controlplane/internal/apperr"
	"github.com/bazaarml/controlplane/internal/httpserver"
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
	r.Post("/{modelID}/ingest", h.handleIngest)
	r.Post("/{modelID}/export", h.handleExport)
	return r
}

type ingestRequest struct {
	Tag  string `json:"tag" validate:"required"`
	Text string `json:"text" validate:"required"`
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	modelID, err := uuid.Parse(chi.URLParam(r, "modelID"))
	if err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, "invalid model ID")
		return
	}

	var req ingestRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	accepted, err := h.manager.IngestUserSample(r.Context(), modelID, req.Tag, req.Text)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	httpserver.RespondOK(w, http.StatusOK, "sample offered to reservoir", map[string]bool{"accepted": accepted})
}

type exportRequest struct {
	Header    []string `json:"header" validate:"required,len=2,dive,required"`
	TestRatio float64  `json:"test_ratio" validate:"gte=0,lte=1"`
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	modelID, err := uuid.Parse(chi.URLParam(r, "modelID"))
	if err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, "invalid model ID")
		return
	}

	var req exportRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	trainPath, testPath, err := h.manager.Export(r.Context(), modelID, [2]string{req.Header[0], req.Header[1]}, req.TestRatio)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	httpserver.RespondOK(w, http.StatusOK, "synthetic data exported", map[string]string{
		"train_path": trainPath,
		"test_path":  testPath,
	})
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	h.logger.Error("synthetic data handler error", "error", err)
	httpserver.RespondErr(w, apperr.HTTPStatus(err), apperr.Message(err))
}
