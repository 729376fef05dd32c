package question

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bazaarml/controlplane/internal/apperr"
	"github.com/bazaarml/controlplane/internal/httpserver"
)

// Handler is mounted nested under a model's own route (e.g.
// /models/{id}/questions), reading the owning model's ID from the parent
// router's "id" URL param.
type Handler struct {
	store  *Store
	logger *slog.Logger
}

func NewHandler(store *Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Delete("/{question_id}", h.handleDelete)
	r.Post("/{question_id}/keywords", h.handleAddKeywords)
	return r
}

type createRequest struct {
	Text string `json:"text" validate:"required"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	modelID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, "invalid model ID")
		return
	}

	var req createRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	q, err := h.store.Create(r.Context(), modelID, req.Text)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	httpserver.RespondOK(w, http.StatusCreated, "question created", q)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	modelID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, "invalid model ID")
		return
	}

	questions, err := h.store.ListByModel(r.Context(), modelID)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	httpserver.RespondOK(w, http.StatusOK, "questions", questions)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	questionID, err := uuid.Parse(chi.URLParam(r, "question_id"))
	if err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, "invalid question ID")
		return
	}

	if err := h.store.Delete(r.Context(), questionID); err != nil {
		h.respondErr(w, err)
		return
	}

	httpserver.RespondOK(w, http.StatusOK, "question deleted", nil)
}

type addKeywordsRequest struct {
	Keywords []string `json:"keywords" validate:"required,min=1"`
}

func (h *Handler) handleAddKeywords(w http.ResponseWriter, r *http.Request) {
	questionID, err := uuid.Parse(chi.URLParam(r, "question_id"))
	if err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, "invalid question ID")
		return
	}

	var req addKeywordsRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if err := h.store.AddKeywords(r.Context(), questionID, req.Keywords); err != nil {
		h.respondErr(w, err)
		return
	}

	httpserver.RespondOK(w, http.StatusOK, "keywords added", nil)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	h.logger.Error("question handler error", "error", err)
	httpserver.RespondErr(w, apperr.HTTPStatus(err), apperr.Message(err))
}
