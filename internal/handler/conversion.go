package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/brinecast/brinecast/internal/engagement"
	"github.com/brinecast/brinecast/internal/handler/dto"
	"github.com/brinecast/brinecast/internal/repository"
	"github.com/brinecast/brinecast/internal/shortlink"
)

// ConversionHandler attributes storefront orders to campaign clicks.
type ConversionHandler struct {
	links      *shortlink.Service
	repo       *repository.Repository
	publisher  *engagement.Publisher
	cookieName string
	logger     *slog.Logger
}

// NewConversionHandler creates a new ConversionHandler.
func NewConversionHandler(links *shortlink.Service, repo *repository.Repository, publisher *engagement.Publisher, cookieName string, logger *slog.Logger) *ConversionHandler {
	if cookieName == "" {
		cookieName = "bc_attr"
	}
	return &ConversionHandler{
		links:      links,
		repo:       repo,
		publisher:  publisher,
		cookieName: cookieName,
		logger:     logger,
	}
}

// Record handles POST /api/v1/conversions. The short code comes from
// the request body when the storefront passes it through, or from the
// attribution cookie when the browser carries it.
func (h *ConversionHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req dto.ConversionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ORDER_ID", "order_id is required")
		return
	}
	if req.Amount < 0 {
		writeError(w, http.StatusBadRequest, "INVALID_AMOUNT", "amount must not be negative")
		return
	}

	code := req.Code
	if code == "" {
		if cookie, err := r.Cookie(h.cookieName); err == nil {
			code = cookie.Value
		}
	}
	if code == "" {
		writeError(w, http.StatusUnprocessableEntity, "NO_ATTRIBUTION", "No short code or attribution cookie present")
		return
	}

	short, _, err := h.links.Resolve(r.Context(), code)
	if err != nil {
		if errors.Is(err, shortlink.ErrCodeNotFound) {
			writeError(w, http.StatusNotFound, "CODE_NOT_FOUND", "Short code not found")
			return
		}
		// Expired or deactivated codes still attribute: the click
		// happened while the link was live.
		if !errors.Is(err, shortlink.ErrCodeExpired) && !errors.Is(err, shortlink.ErrCodeInactive) {
			h.logger.Error("conversion resolve failed", "code", code, "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
			return
		}
		short, err = h.repo.GetShortURLByCode(r.Context(), code)
		if err != nil {
			writeError(w, http.StatusNotFound, "CODE_NOT_FOUND", "Short code not found")
			return
		}
	}

	recorded, err := h.links.RecordConversion(r.Context(), code, req.OrderID, req.Amount)
	if err != nil {
		h.logger.Error("conversion recording failed", "code", code, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return
	}

	if recorded && h.publisher != nil && short.MessageID != "" {
		event := engagement.EventPayload{
			Kind:       engagement.KindConversion,
			MessageID:  short.MessageID,
			CampaignID: short.CampaignID,
			Code:       code,
			OrderID:    req.OrderID,
			Amount:     req.Amount,
			OccurredAt: time.Now().UnixMilli(),
		}
		// Carry the customer so the worker can bump their order history.
		if msg, err := h.repo.GetMessageByID(r.Context(), short.MessageID); err == nil {
			event.CustomerID = msg.CustomerID
		}
		h.publisher.PublishAsync(event)
	}

	h.logger.Info("conversion received",
		"code", code,
		"order_id", req.OrderID,
		"recorded", recorded,
	)

	writeJSON(w, http.StatusOK, dto.ConversionResponse{Recorded: recorded})
}
