// Package engagement captures click and conversion events and applies
// them to the message ledger through a Redis stream pipeline.
package engagement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brinecast/brinecast/internal/metrics"
)

const (
	// StreamKey is the Redis stream for engagement events.
	StreamKey = "stream:engagement_events"

	// DeadLetterStreamKey is the Redis stream for poison messages.
	DeadLetterStreamKey = "stream:engagement_events:dlq"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000

	// PublishTimeout is the max time to wait for Redis publish.
	PublishTimeout = 100 * time.Millisecond
)

// Event kinds.
const (
	KindClick      = "click"
	KindConversion = "conversion"
)

// EventPayload is the compressed event format for the Redis stream.
type EventPayload struct {
	Kind       string  `json:"k"`
	MessageID  string  `json:"mid"`
	CampaignID string  `json:"cid"`
	CustomerID string  `json:"cust,omitempty"`
	Code       string  `json:"sc"`
	OrderID    string  `json:"oid,omitempty"`
	Amount     float64 `json:"amt,omitempty"`
	OccurredAt int64   `json:"t"` // Unix milliseconds
}

// Validate checks the payload has the fields its kind requires.
func (p EventPayload) Validate() error {
	switch p.Kind {
	case KindClick:
		if p.MessageID == "" || p.CampaignID == "" {
			return errors.New("click event missing message or campaign id")
		}
	case KindConversion:
		if p.MessageID == "" || p.CampaignID == "" || p.OrderID == "" {
			return errors.New("conversion event missing message, campaign or order id")
		}
		if p.Amount < 0 {
			return errors.New("conversion amount negative")
		}
	default:
		return fmt.Errorf("unknown event kind %q", p.Kind)
	}
	if p.OccurredAt <= 0 {
		return errors.New("event missing timestamp")
	}
	return nil
}

// Publisher enqueues engagement events to the Redis stream.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewPublisher creates an engagement event publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "engagement.publisher"),
		metrics: recorder,
	}
}

// Publish adds an engagement event to the stream synchronously.
func (p *Publisher) Publish(ctx context.Context, event EventPayload) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	result, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true, // ~MAXLEN for performance
		ID:     "*",  // Auto-generate ID
		Values: map[string]interface{}{
			"payload": string(data),
		},
	}).Result()

	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}

	return result, nil
}

// PublishAsync publishes without blocking the caller.
// Errors are logged but not returned (fire-and-forget).
func (p *Publisher) PublishAsync(event EventPayload) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		streamID, err := p.Publish(ctx, event)
		if err != nil {
			p.logger.Warn("failed to publish engagement event",
				"kind", event.Kind,
				"message_id", event.MessageID,
				"error", err,
			)
			p.metrics.IncEngagementEventPublished("dropped")
			return
		}

		p.logger.Debug("engagement event published",
			"kind", event.Kind,
			"message_id", event.MessageID,
			"stream_id", streamID,
		)
		p.metrics.IncEngagementEventPublished("success")
	}()
}
