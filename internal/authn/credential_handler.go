package authn

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bazaarml/controlplane/internal/apperr"
	"github.com/bazaarml/controlplane/internal/httpserver"
)

// CredentialHandler issues and revokes the two bearer-token credential
// kinds Middleware accepts: team-scoped API keys and user-scoped personal
// access tokens. The raw token is returned exactly once, at creation.
type CredentialHandler struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewCredentialHandler(pool *pgxpool.Pool, logger *slog.Logger) *CredentialHandler {
	return &CredentialHandler{pool: pool, logger: logger}
}

// APIKeyRoutes mounts /api-keys: team-scoped service credentials.
func (h *CredentialHandler) APIKeyRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreateAPIKey)
	r.Delete("/{id}", h.handleRevokeAPIKey)
	return r
}

// PATRoutes mounts /user/tokens: personal access tokens scoped to the
// calling user.
func (h *CredentialHandler) PATRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreatePAT)
	r.Delete("/{id}", h.handleRevokePAT)
	return r
}

type createAPIKeyRequest struct {
	Role      string `json:"role" validate:"required,oneof=member admin owner"`
	ExpiresIn string `json:"expires_in"`
}

func (h *CredentialHandler) handleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	id, ok := FromContext(r.Context())
	if !ok {
		httpserver.RespondErr(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req createAPIKeyRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	var expires *time.Time
	if req.ExpiresIn != "" {
		d, err := time.ParseDuration(req.ExpiresIn)
		if err != nil {
			httpserver.RespondErr(w, http.StatusBadRequest, "expires_in must be a valid duration")
			return
		}
		t := time.Now().Add(d)
		expires = &t
	}

	raw, _, hash, err := GenerateAPIKey()
	if err != nil {
		h.logger.Error("generating api key", "error", err)
		httpserver.RespondErr(w, http.StatusInternalServerError, "failed to generate api key")
		return
	}

	var keyID uuid.UUID
	err = h.pool.QueryRow(r.Context(), `
		INSERT INTO api_keys (id, team_id, user_id, role, key_hash, expires_at, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, now())
		RETURNING id
	`, id.TeamID, id.UserID, req.Role, hash, expires).Scan(&keyID)
	if err != nil {
		h.logger.Error("storing api key", "error", err)
		httpserver.RespondErr(w, http.StatusInternalServerError, "failed to store api key")
		return
	}

	httpserver.RespondOK(w, http.StatusCreated, "api key created; this is the only time the raw key is shown", map[string]string{
		"id":  keyID.String(),
		"key": raw,
	})
}

func (h *CredentialHandler) handleRevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, "invalid api key ID")
		return
	}

	caller, ok := FromContext(r.Context())
	if !ok {
		httpserver.RespondErr(w, http.StatusUnauthorized, "authentication required")
		return
	}

	tag, err := h.pool.Exec(r.Context(), `DELETE FROM api_keys WHERE id = $1 AND team_id = $2`, id, caller.TeamID)
	if err != nil {
		h.logger.Error("revoking api key", "error", err)
		httpserver.RespondErr(w, http.StatusInternalServerError, "failed to revoke api key")
		return
	}
	if tag.RowsAffected() == 0 {
		httpserver.RespondErr(w, apperr.HTTPStatus(apperr.NotFound("api key not found")), "api key not found")
		return
	}

	httpserver.RespondOK(w, http.StatusOK, "api key revoked", nil)
}

type createPATRequest struct {
	ExpiresIn string `json:"expires_in"`
}

func (h *CredentialHandler) handleCreatePAT(w http.ResponseWriter, r *http.Request) {
	id, ok := FromContext(r.Context())
	if !ok {
		httpserver.RespondErr(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req createPATRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	var expires *time.Time
	if req.ExpiresIn != "" {
		d, err := time.ParseDuration(req.ExpiresIn)
		if err != nil {
			httpserver.RespondErr(w, http.StatusBadRequest, "expires_in must be a valid duration")
			return
		}
		t := time.Now().Add(d)
		expires = &t
	}

	raw, hash, err := GeneratePAT()
	if err != nil {
		h.logger.Error("generating pat", "error", err)
		httpserver.RespondErr(w, http.StatusInternalServerError, "failed to generate personal access token")
		return
	}

	var patID uuid.UUID
	err = h.pool.QueryRow(r.Context(), `
		INSERT INTO personal_access_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, now())
		RETURNING id
	`, id.UserID, hash, expires).Scan(&patID)
	if err != nil {
		h.logger.Error("storing pat", "error", err)
		httpserver.RespondErr(w, http.StatusInternalServerError, "failed to store personal access token")
		return
	}

	httpserver.RespondOK(w, http.StatusCreated, "personal access token created; this is the only time the raw token is shown", map[string]string{
		"id":    patID.String(),
		"token": raw,
	})
}

func (h *CredentialHandler) handleRevokePAT(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondErr(w, http.StatusBadRequest, "invalid token ID")
		return
	}

	caller, ok := FromContext(r.Context())
	if !ok {
		httpserver.RespondErr(w, http.StatusUnauthorized, "authentication required")
		return
	}

	tag, err := h.pool.Exec(r.Context(), `DELETE FROM personal_access_tokens WHERE id = $1 AND user_id = $2`, id, caller.UserID)
	if err != nil {
		h.logger.Error("revoking pat", "error", err)
		httpserver.RespondErr(w, http.StatusInternalServerError, "failed to revoke personal access token")
		return
	}
	if tag.RowsAffected() == 0 {
		httpserver.RespondErr(w, apperr.HTTPStatus(apperr.NotFound("token not found")), "token not found")
		return
	}

	httpserver.RespondOK(w, http.StatusOK, "personal access token revoked", nil)
}
