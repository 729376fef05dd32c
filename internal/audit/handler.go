package audit

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bazaarml/controlplane/internal/authn"
	"github.com/bazaarml/controlplane/internal/httpserver"
)

// Handler exposes the team audit log for review.
type Handler struct {
	store  *Store
	logger *slog.Logger
}

func NewHandler(pool *pgxpool.Pool, logger *slog.Logger) *Handler {
	return &Handler{store: NewStore(pool), logger: logger}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	id, ok := authn.FromContext(r.Context())
	if !ok {
		httpserver.RespondErr(w, http.StatusUnauthorized, "authentication required")
		return
	}

	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.store.List(r.Context(), id.TeamID, params.PageSize, params.Offset)
	if err != nil {
		h.logger.Error("listing audit log", "error", err)
		httpserver.RespondErr(w, http.StatusInternalServerError, "failed to list audit log")
		return
	}

	httpserver.RespondOK(w, http.StatusOK, "audit log entries", entries)
}
