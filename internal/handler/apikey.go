package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/brinecast/brinecast/internal/auth"
	"github.com/brinecast/brinecast/internal/model"
	"github.com/brinecast/brinecast/internal/repository"
)

// validScopes enumerates the scopes a key may carry.
var validScopes = []string{model.ScopeRead, model.ScopeWrite, model.ScopeAdmin}

// APIKeyHandler handles API key management endpoints.
type APIKeyHandler struct {
	repo   *repository.Repository
	logger *slog.Logger
}

// NewAPIKeyHandler creates a new APIKeyHandler.
func NewAPIKeyHandler(repo *repository.Repository, logger *slog.Logger) *APIKeyHandler {
	return &APIKeyHandler{
		repo:   repo,
		logger: logger,
	}
}

// CreateKeyRequest is the request body for key creation.
type CreateKeyRequest struct {
	Label  string   `json:"label"`
	Scopes []string `json:"scopes"`
}

// CreateKeyResponse carries the plaintext key, shown exactly once.
type CreateKeyResponse struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	KeyPrefix string    `json:"key_prefix"`
	Label     string    `json:"label"`
	Scopes    []string  `json:"scopes"`
	CreatedAt time.Time `json:"created_at"`
}

// Create handles POST /api/v1/api-keys.
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	for _, scope := range req.Scopes {
		if !slices.Contains(validScopes, scope) {
			writeError(w, http.StatusBadRequest, "INVALID_SCOPE",
				"Invalid scope: "+scope+". Valid scopes: read, write, admin")
			return
		}
	}
	if len(req.Scopes) == 0 {
		req.Scopes = []string{model.ScopeRead}
	}

	generated, err := auth.GenerateAPIKey(auth.EnvLive)
	if err != nil {
		h.logger.Error("failed to generate API key", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to generate API key")
		return
	}

	key := &model.APIKey{
		ID:        ulid.Make().String(),
		KeyPrefix: generated.Prefix,
		KeyHash:   generated.Hash,
		Label:     req.Label,
		Scopes:    req.Scopes,
		CreatedAt: time.Now(),
	}

	if err := h.repo.CreateAPIKey(r.Context(), key); err != nil {
		h.logger.Error("failed to create API key", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create API key")
		return
	}

	h.logger.Info("api_key_created",
		"key_id", key.ID,
		"key_prefix", key.KeyPrefix,
	)

	writeJSON(w, http.StatusCreated, CreateKeyResponse{
		ID:        key.ID,
		Key:       generated.Plaintext,
		KeyPrefix: key.KeyPrefix,
		Label:     key.Label,
		Scopes:    key.Scopes,
		CreatedAt: key.CreatedAt,
	})
}

// List handles GET /api/v1/api-keys.
func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.repo.ListAPIKeys(r.Context())
	if err != nil {
		h.logger.Error("failed to list API keys", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list API keys")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

// Revoke handles DELETE /api/v1/api-keys/{id}.
func (h *APIKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ID", "Key ID is required")
		return
	}

	if err := h.repo.RevokeAPIKey(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrAPIKeyNotFound) {
			writeError(w, http.StatusNotFound, "KEY_NOT_FOUND", "API key not found or already revoked")
			return
		}
		h.logger.Error("failed to revoke API key", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to revoke API key")
		return
	}

	h.logger.Info("api_key_revoked", "key_id", id)

	w.WriteHeader(http.StatusNoContent)
}
