package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/brinecast/brinecast/internal/bounce"
	"github.com/brinecast/brinecast/internal/metrics"
	"github.com/brinecast/brinecast/internal/model"
	"github.com/brinecast/brinecast/internal/provider"
	"github.com/brinecast/brinecast/internal/repository"
)

// maxWebhookBody caps how much of a gateway callback we read.
const maxWebhookBody = 64 * 1024

// processTimeout bounds the background processing of one callback.
const processTimeout = 10 * time.Second

// WebhookHandler ingests provider delivery callbacks and inbound
// replies.
type WebhookHandler struct {
	repo    *repository.Repository
	bounces *bounce.Manager
	metrics metrics.Recorder
	logger  *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(repo *repository.Repository, bounces *bounce.Manager, recorder metrics.Recorder, logger *slog.Logger) *WebhookHandler {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &WebhookHandler{
		repo:    repo,
		bounces: bounces,
		metrics: recorder,
		logger:  logger,
	}
}

// Receive handles POST /webhooks/{provider}. The gateway gets an
// immediate 200 no matter what; reconciliation happens in a goroutine
// so a slow database never makes the provider retry or give up.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Warn("webhook body read failed", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	w.WriteHeader(http.StatusOK)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()
		h.process(ctx, body)
	}()
}

// process applies one callback to the ledger and suppression state.
// Errors are logged, never surfaced to the gateway.
func (h *WebhookHandler) process(ctx context.Context, body []byte) {
	event, err := provider.ParseWebhook(body)
	if err != nil {
		if errors.Is(err, provider.ErrUnknownEvent) {
			h.logger.Debug("ignoring unrecognized webhook event")
		} else {
			h.logger.Warn("webhook parse failed", "error", err)
		}
		h.metrics.IncWebhookReceived("unparsed")
		return
	}

	switch event.Kind {
	case provider.EventKindInbound:
		h.processInbound(ctx, event)
	case provider.EventKindStatus:
		h.processStatus(ctx, event)
	}
}

// processStatus reconciles a delivery status callback into the ledger.
func (h *WebhookHandler) processStatus(ctx context.Context, event *provider.WebhookEvent) {
	h.metrics.IncWebhookReceived(string(event.Status))

	msg, err := h.repo.UpdateMessageFromProviderEvent(ctx, event.ProviderMessageID, event.Status, event.ErrorReason)
	if err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			// Unknown provider id: a test send, or a very late callback
			// for a deleted campaign.
			h.logger.Debug("webhook for unknown message",
				"provider_message_id", event.ProviderMessageID)
			return
		}
		h.logger.Error("webhook ledger update failed",
			"provider_message_id", event.ProviderMessageID, "error", err)
		return
	}
	if msg == nil {
		// Status did not advance (stale or duplicate callback).
		return
	}

	switch {
	case event.Status == model.MessageStatusDelivered:
		if err := h.repo.IncrementCampaignDelivered(ctx, msg.CampaignID); err != nil {
			h.logger.Error("delivered counter update failed",
				"campaign_id", msg.CampaignID, "error", err)
		}
		if err := h.bounces.MarkDelivered(ctx, msg.CustomerID); err != nil {
			h.logger.Warn("bounce reset failed",
				"customer_id", msg.CustomerID, "error", err)
		}

	case event.Status.IsFailure():
		if err := h.repo.IncrementCampaignFailed(ctx, msg.CampaignID); err != nil {
			h.logger.Error("failed counter update failed",
				"campaign_id", msg.CampaignID, "error", err)
		}
		if err := h.bounces.MarkBounced(ctx, msg.CustomerID, event.BounceKind, event.ErrorReason, msg.CampaignID); err != nil {
			if !errors.Is(err, bounce.ErrCustomerNotFound) {
				h.logger.Error("bounce escalation failed",
					"customer_id", msg.CustomerID, "error", err)
			}
		}
	}

	h.logger.Info("webhook applied",
		"provider_message_id", event.ProviderMessageID,
		"status", event.Status,
	)
}

// processInbound handles an inbound reply, acting only on opt-outs.
func (h *WebhookHandler) processInbound(ctx context.Context, event *provider.WebhookEvent) {
	h.metrics.IncWebhookReceived("inbound")

	if !event.OptOut {
		h.logger.Debug("inbound message ignored", "from", event.From)
		return
	}

	normalized, err := provider.NormalizeNumber(event.From)
	if err != nil {
		h.logger.Warn("opt-out from unnormalizable number", "error", err)
		return
	}

	customer, err := h.repo.GetCustomerByPhone(ctx, normalized)
	if err != nil {
		if errors.Is(err, repository.ErrCustomerNotFound) {
			h.logger.Info("opt-out from unknown number")
			return
		}
		h.logger.Error("opt-out customer lookup failed", "error", err)
		return
	}

	if err := h.bounces.OptOut(ctx, customer.ID); err != nil {
		h.logger.Error("opt-out processing failed",
			"customer_id", customer.ID, "error", err)
		return
	}

	h.logger.Info("opt-out processed", "customer_id", customer.ID)
}
