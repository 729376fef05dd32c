package vault

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bazaarml/controlplane/internal/apperr"
	"github.com/bazaarml/controlplane/internal/authn"
	"github.com/bazaarml/controlplane/internal/httpserver"
)

type Handler struct {
	store  *Store
	logger *slog.Logger
}

func NewHandler(store *Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/add-secret", h.handleAddSecret)
	r.Post("/get-secret", h.handleGetSecret)
	r.Post("/delete-secret", h.handleDeleteSecret)
	return r
}

type addSecretRequest struct {
	Name  string `json:"name" validate:"required"`
	Value string `json:"value" validate:"required"`
}

func (h *Handler) handleAddSecret(w http.ResponseWriter, r *http.Request) {
	id, ok := authn.FromContext(r.Context())
	if !ok {
		httpserver.RespondErr(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req addSecretRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if err := h.store.AddSecret(r.Context(), id.TeamID, req.Name, req.Value); err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.RespondOK(w, http.StatusCreated, "secret stored", nil)
}

type nameRequest struct {
	Name string `json:"name" validate:"required"`
}

func (h *Handler) handleGetSecret(w http.ResponseWriter, r *http.Request) {
	id, ok := authn.FromContext(r.Context())
	if !ok {
		httpserver.RespondErr(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req nameRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	value, err := h.store.GetSecret(r.Context(), id.TeamID, req.Name)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.RespondOK(w, http.StatusOK, "secret retrieved", map[string]string{"value": value})
}

func (h *Handler) handleDeleteSecret(w http.ResponseWriter, r *http.Request) {
	id, ok := authn.FromContext(r.Context())
	if !ok {
		httpserver.RespondErr(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req nameRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if err := h.store.DeleteSecret(r.Context(), id.TeamID, req.Name); err != nil {
		h.respondErr(w, err)
		return
	}
	httpserver.RespondOK(w, http.StatusOK, "secret deleted", nil)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	h.logger.Error("vault handler error", "error", err)
	httpserver.RespondErr(w, apperr.HTTPStatus(err), apperr.Message(err))
}
