package entsearch

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bazaarml/controlplane/internal/apperr"
	"github.com/bazaarml/controlplane/internal/httpserver"
	"github.com/bazaarml/controlplane/internal/permcache"
	"github.com/bazaarml/controlplane/internal/redact"
)

// Handler exposes the composed enterprise-search deployment's own
// "search"/"unredact" routes, mounted by the inference runtime alongside
// its base predict/feedback routes when the deployment's model type is
// enterprise_search.
type Handler struct {
	composer *Composer
}

func NewHandler(composer *Composer) *Handler {
	return &Handler{composer: composer}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/search", h.handleSearch)
	r.Post("/unredact", h.handleUnredact)
	return r
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	token := permcache.TokenFromContext(r.Context())
	results, entities, err := h.composer.Search(r.Context(), req, token)
	if err != nil {
		httpserver.RespondErr(w, apperr.HTTPStatus(err), apperr.Message(err))
		return
	}

	httpserver.RespondOK(w, http.StatusOK, "search results", map[string]any{
		"results":  results,
		"entities": entities,
	})
}

type unredactRequest struct {
	Text     string             `json:"text" validate:"required"`
	Entities []redact.PiiEntity `json:"entities"`
}

func (h *Handler) handleUnredact(w http.ResponseWriter, r *http.Request) {
	var req unredactRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	restored := redact.Unredact(req.Text, req.Entities)
	httpserver.RespondOK(w, http.StatusOK, "unredacted text", map[string]string{"text": restored})
}
