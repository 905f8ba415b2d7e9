package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brinecast/brinecast/internal/model"
)

// Webhook event kinds.
const (
	EventKindStatus  = "status"
	EventKindInbound = "inbound"
)

// ErrUnknownEvent is returned for webhook payloads the parser cannot map.
var ErrUnknownEvent = errors.New("unknown webhook event")

// optOutKeywords are the inbound bodies that count as an opt-out
// request (carrier-standard keyword set, case-insensitive).
var optOutKeywords = map[string]bool{
	"stop":        true,
	"stopall":     true,
	"unsubscribe": true,
	"cancel":      true,
	"end":         true,
	"quit":        true,
}

// statusVocabulary maps the gateway's event names to ledger statuses.
var statusVocabulary = map[string]model.MessageStatus{
	"queued":                model.MessageStatusQueued,
	"sending":               model.MessageStatusSending,
	"sent":                  model.MessageStatusSent,
	"delivered":             model.MessageStatusDelivered,
	"message.sent":          model.MessageStatusSent,
	"message.finalized":     model.MessageStatusDelivered,
	"delivery_failed":       model.MessageStatusFailed,
	"sending_failed":        model.MessageStatusFailed,
	"message.failed":        model.MessageStatusFailed,
	"undelivered":           model.MessageStatusUndelivered,
	"delivery_unconfirmed":  model.MessageStatusUndelivered,
	"rejected":              model.MessageStatusRejected,
}

// WebhookEvent is a parsed gateway callback, either a delivery status
// update for an outbound message or an inbound reply.
type WebhookEvent struct {
	Kind              string
	ProviderMessageID string
	Status            model.MessageStatus
	ErrorReason       string
	// Bounce classification for failure statuses.
	BounceKind model.BounceKind

	// Inbound fields.
	From   string
	Body   string
	OptOut bool

	OccurredAt time.Time
}

type webhookEnvelope struct {
	Data struct {
		EventType  string    `json:"event_type"`
		OccurredAt time.Time `json:"occurred_at"`
		Payload    struct {
			ID        string `json:"id"`
			Direction string `json:"direction"`
			Text      string `json:"text"`
			From      struct {
				PhoneNumber string `json:"phone_number"`
			} `json:"from"`
			To []struct {
				Status string `json:"status"`
			} `json:"to"`
			Errors []struct {
				Code  string `json:"code"`
				Title string `json:"title"`
			} `json:"errors"`
		} `json:"payload"`
	} `json:"data"`
}

// ParseWebhook decodes a raw gateway callback into a WebhookEvent.
// Inbound messages are flagged as opt-outs when the trimmed lowercased
// body is a carrier opt-out keyword.
func ParseWebhook(raw []byte) (*WebhookEvent, error) {
	var envelope webhookEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}

	data := envelope.Data
	if data.EventType == "" {
		return nil, ErrUnknownEvent
	}

	occurredAt := data.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	// Inbound replies arrive as message.received or with an explicit
	// inbound direction.
	if data.EventType == "message.received" || data.Payload.Direction == "inbound" {
		body := strings.TrimSpace(data.Payload.Text)
		return &WebhookEvent{
			Kind:       EventKindInbound,
			From:       data.Payload.From.PhoneNumber,
			Body:       body,
			OptOut:     optOutKeywords[strings.ToLower(body)],
			OccurredAt: occurredAt,
		}, nil
	}

	status, ok := statusVocabulary[data.EventType]
	if !ok {
		// Some gateways put the terminal status on the recipient leg
		// rather than the event name.
		if len(data.Payload.To) > 0 {
			status, ok = statusVocabulary[data.Payload.To[0].Status]
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, data.EventType)
		}
	}

	event := &WebhookEvent{
		Kind:              EventKindStatus,
		ProviderMessageID: data.Payload.ID,
		Status:            status,
		OccurredAt:        occurredAt,
	}

	if len(data.Payload.Errors) > 0 {
		event.ErrorReason = data.Payload.Errors[0].Title
	}
	if status.IsFailure() {
		event.BounceKind = classifyBounce(status, event.ErrorReason)
	}

	return event, nil
}

// classifyBounce decides whether a failure is permanent (hard) or
// transient (soft). Rejected numbers and invalid-destination errors are
// hard; everything else is treated as soft and escalates by count.
func classifyBounce(status model.MessageStatus, reason string) model.BounceKind {
	if status == model.MessageStatusRejected {
		return model.BounceHard
	}
	lower := strings.ToLower(reason)
	for _, marker := range []string{"invalid", "unallocated", "disconnected", "blocked", "landline"} {
		if strings.Contains(lower, marker) {
			return model.BounceHard
		}
	}
	return model.BounceSoft
}
