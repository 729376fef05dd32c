package reportqueue

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bazaarml/controlplane/internal/apperr"
	"github.com/bazaarml/controlplane/internal/authn"
	"github.com/bazaarml/controlplane/internal/httpserver"
)

// Handler serves both the interactive report surface (enqueue, get, list,
// delete — gated by a session) and the worker callback surface (claim,
// complete — gated by the same task-runner token the cluster driver and
// deploy replicas authenticate with), mirroring lifecycle.Handler's split.
type Handler struct {
	store             *Store
	logger            *slog.Logger
	requireSession    func(http.Handler) http.Handler
	requireTaskRunner func(http.Handler) http.Handler
}

func NewHandler(store *Store, logger *slog.Logger, requireSession, requireTaskRunner func(http.Handler) http.Handler) *Handler {
	return &Handler{store: store, logger: logger, requireSession: requireSession, requireTaskRunner: requireTaskRunner}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(h.requireSession)
		r.Post("/", h.handleEnqueue)
		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleGet)
		r.Delete("/{id}", h.handleDelete)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.requireTaskRunner)
		r.Post("/claim", h.handleClaim)
		r.Post("/{id}/complete", h.handleComplete)
	})

	return r
}

type enqueueRequest struct {
	ModelID uuid.UUID `json:"model_id" validate:"required"`
}

func (h *Handler) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	id, ok := authn.FromContext(r.Context())
	if !ok {
		httpserver.RespondErr(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req enqueueRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	report, err := h.store.Enqueue(r.Context(), id.TeamID, req.ModelID)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	httpserver.RespondOK(w, http.StatusAccepted, "report queued", report)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, "invalid report ID")
		return
	}

	report, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	httpserver.RespondOK(w, http.StatusOK, "report", report)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	modelID, err := uuid.Parse(r.URL.Query().Get("model_id"))
	if err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, "model_id query parameter is required")
		return
	}

	reports, err := h.store.ListByModel(r.Context(), modelID)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	httpserver.RespondOK(w, http.StatusOK, "reports", reports)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, "invalid report ID")
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		h.respondErr(w, err)
		return
	}

	httpserver.RespondOK(w, http.StatusOK, "report deleted", nil)
}

// handleClaim is claim_next_report: a worker polls this to lease the
// oldest queued-or-abandoned report, getting back the (report_id, attempt)
// pair it must echo back on completion.
func (h *Handler) handleClaim(w http.ResponseWriter, r *http.Request) {
	report, err := h.store.ClaimNext(r.Context())
	if err != nil {
		h.respondErr(w, err)
		return
	}
	if report == nil {
		httpserver.RespondOK(w, http.StatusOK, "no report available", nil)
		return
	}
	httpserver.RespondOK(w, http.StatusOK, "report claimed", report)
}

type completeRequest struct {
	Attempt   int    `json:"attempt" validate:"required"`
	NewStatus Status `json:"new_status" validate:"required,oneof=complete failed"`
	Result    []byte `json:"result"`
}

// handleComplete is the completion protocol: it 400s whenever the
// submitted attempt no longer matches the row's current attempt, meaning
// this worker's lease went stale and another worker has since reclaimed
// the report.
func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, "invalid report ID")
		return
	}

	var req completeRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if err := h.store.Complete(r.Context(), id, req.Attempt, req.NewStatus, req.Result); err != nil {
		h.respondErr(w, err)
		return
	}

	httpserver.RespondOK(w, http.StatusOK, "report status updated", nil)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	h.logger.Error("report queue handler error", "error", err)
	httpserver.RespondErr(w, apperr.HTTPStatus(err), apperr.Message(err))
}
