package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/brinecast/brinecast/internal/auth"
	"github.com/brinecast/brinecast/internal/campaign"
	"github.com/brinecast/brinecast/internal/handler/dto"
	"github.com/brinecast/brinecast/internal/model"
	"github.com/brinecast/brinecast/internal/provider"
	"github.com/brinecast/brinecast/internal/repository"
)

// CampaignHandler handles HTTP requests for campaign operations.
type CampaignHandler struct {
	svc    *campaign.Service
	logger *slog.Logger
}

// NewCampaignHandler creates a new CampaignHandler.
func NewCampaignHandler(svc *campaign.Service, logger *slog.Logger) *CampaignHandler {
	return &CampaignHandler{
		svc:    svc,
		logger: logger,
	}
}

// Create handles POST /api/v1/campaigns.
func (h *CampaignHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	created, err := h.svc.Create(r.Context(), campaign.CreateInput{
		OwnerID:     ownerID(r),
		Name:        req.Name,
		Template:    req.Template,
		Audience:    req.Audience,
		Discount:    req.Discount,
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("campaign_created",
		"campaign_id", created.ID,
		"status", created.Status,
	)

	writeJSON(w, http.StatusCreated, dto.ToCampaignResponse(created))
}

// Get handles GET /api/v1/campaigns/{id}.
func (h *CampaignHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	found, err := h.svc.Get(r.Context(), id, ownerID(r))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToCampaignResponse(found))
}

// List handles GET /api/v1/campaigns.
func (h *CampaignHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := 20
	if l := query.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	result, err := h.svc.List(r.Context(), campaign.ListInput{
		OwnerID: ownerID(r),
		Status:  model.CampaignStatus(query.Get("status")),
		Cursor:  query.Get("cursor"),
		Limit:   limit,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToCampaignListResponse(result.Campaigns, result.NextCursor, result.HasMore))
}

// Update handles PATCH /api/v1/campaigns/{id}.
func (h *CampaignHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req dto.UpdateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	updated, err := h.svc.Update(r.Context(), campaign.UpdateInput{
		ID:            id,
		OwnerID:       ownerID(r),
		Name:          req.Name,
		Template:      req.Template,
		Audience:      req.Audience,
		Discount:      req.Discount,
		ScheduledAt:   req.ScheduledAt,
		ClearSchedule: req.ClearSchedule,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("campaign_updated", "campaign_id", id)

	writeJSON(w, http.StatusOK, dto.ToCampaignResponse(updated))
}

// Delete handles DELETE /api/v1/campaigns/{id}.
func (h *CampaignHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.svc.Delete(r.Context(), id, ownerID(r)); err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("campaign_deleted", "campaign_id", id)

	w.WriteHeader(http.StatusNoContent)
}

// Send handles POST /api/v1/campaigns/{id}/send.
func (h *CampaignHandler) Send(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	started, err := h.svc.Send(r.Context(), id, ownerID(r))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("campaign_send_accepted",
		"campaign_id", id,
		"recipients", started.Stats.Recipients,
	)

	writeJSON(w, http.StatusAccepted, dto.ToCampaignResponse(started))
}

// Pause handles POST /api/v1/campaigns/{id}/pause.
func (h *CampaignHandler) Pause(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.svc.Pause(r.Context(), id, ownerID(r)); err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": string(model.CampaignStatusPaused)})
}

// Resume handles POST /api/v1/campaigns/{id}/resume.
func (h *CampaignHandler) Resume(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.svc.Resume(r.Context(), id, ownerID(r)); err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": string(model.CampaignStatusSending)})
}

// Cancel handles POST /api/v1/campaigns/{id}/cancel.
func (h *CampaignHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.svc.Cancel(r.Context(), id, ownerID(r)); err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": string(model.CampaignStatusCancelled)})
}

// TestSend handles POST /api/v1/campaigns/{id}/test.
func (h *CampaignHandler) TestSend(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req dto.TestSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if req.Phone == "" {
		writeError(w, http.StatusBadRequest, "MISSING_PHONE", "Phone number is required")
		return
	}

	result, err := h.svc.TestSend(r.Context(), id, ownerID(r), req.Phone)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TestSendResponse{
		Success:           result.Success,
		ProviderMessageID: result.ProviderMessageID,
		Error:             result.Error,
	})
}

// Stats handles GET /api/v1/campaigns/{id}/stats.
func (h *CampaignHandler) Stats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	found, err := h.svc.Stats(r.Context(), id, ownerID(r))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToStatsResponse(found.Stats))
}

// RecalculateStats handles POST /api/v1/campaigns/{id}/stats/recalculate.
func (h *CampaignHandler) RecalculateStats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	stats, err := h.svc.RecalculateStats(r.Context(), id, ownerID(r))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToStatsResponse(*stats))
}

// AudienceCount handles GET /api/v1/campaigns/audience-count.
func (h *CampaignHandler) AudienceCount(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := model.AudienceFilter{
		Type:   model.AudienceType(query.Get("type")),
		ListID: query.Get("list_id"),
	}
	if spend := query.Get("min_spend"); spend != "" {
		parsed, err := strconv.ParseFloat(spend, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_MIN_SPEND", "min_spend must be a number")
			return
		}
		filter.MinSpend = parsed
	}

	count, err := h.svc.AudienceCount(r.Context(), filter)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AudienceCountResponse{Count: count})
}

// handleServiceError maps campaign service errors to HTTP responses.
func (h *CampaignHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, campaign.ErrCampaignNotFound):
		writeError(w, http.StatusNotFound, "CAMPAIGN_NOT_FOUND", "Campaign not found")
	case errors.Is(err, campaign.ErrNotMutable):
		writeError(w, http.StatusConflict, "NOT_EDITABLE", "Campaign is no longer editable")
	case errors.Is(err, campaign.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "INVALID_TRANSITION", "Campaign status does not allow this action")
	case errors.Is(err, campaign.ErrInvalidAudience):
		writeError(w, http.StatusBadRequest, "INVALID_AUDIENCE", "Invalid audience filter")
	case errors.Is(err, campaign.ErrInvalidDiscount):
		writeError(w, http.StatusBadRequest, "INVALID_DISCOUNT", "Invalid discount configuration")
	case errors.Is(err, campaign.ErrEmptyAudience):
		writeError(w, http.StatusUnprocessableEntity, "EMPTY_AUDIENCE", "No eligible recipients for this audience")
	case errors.Is(err, campaign.ErrMissingName):
		writeError(w, http.StatusBadRequest, "MISSING_NAME", "Campaign name is required")
	case errors.Is(err, campaign.ErrMissingTemplate):
		writeError(w, http.StatusBadRequest, "MISSING_TEMPLATE", "Campaign template is required")
	case errors.Is(err, provider.ErrInvalidNumber):
		writeError(w, http.StatusBadRequest, "INVALID_PHONE", "Phone number could not be normalized")
	case errors.Is(err, repository.ErrInvalidCursor):
		writeError(w, http.StatusBadRequest, "INVALID_CURSOR", "Invalid pagination cursor")
	default:
		h.logger.Error("internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}

// ownerID resolves the owning API key for the request. Auth middleware
// guarantees the context is populated on API routes.
func ownerID(r *http.Request) string {
	if authCtx := auth.AuthFromContext(r.Context()); authCtx != nil {
		return authCtx.KeyID
	}
	return ""
}
