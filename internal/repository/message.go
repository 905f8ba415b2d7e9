package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/brinecast/brinecast/internal/model"
)

// Common errors for message ledger operations.
var (
	ErrMessageNotFound  = errors.New("message not found")
	ErrDuplicateMessage = errors.New("message already exists for this recipient")
	ErrAlreadyClicked   = errors.New("message already marked clicked")
	ErrAlreadyConverted = errors.New("message already marked converted")
)

// InsertMessageBatch inserts one ledger row per message. The unique
// (campaign_id, customer_id) index rejects duplicates; conflicting rows
// are skipped so a retried send never double-provisions a recipient.
// Returns the number of rows actually inserted.
func (r *Repository) InsertMessageBatch(ctx context.Context, messages []*model.Message) (int64, error) {
	if len(messages) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}

	query := `
		INSERT INTO messages (id, campaign_id, customer_id, destination, body, discount_code, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (campaign_id, customer_id) DO NOTHING
	`

	for _, m := range messages {
		batch.Queue(query,
			m.ID,
			m.CampaignID,
			m.CustomerID,
			m.Destination,
			m.Body,
			m.DiscountCode,
			m.Status,
			m.CreatedAt,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	var inserted int64
	for i := 0; i < len(messages); i++ {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("batch insert message %d: %w", i, err)
		}
		inserted += tag.RowsAffected()
	}

	return inserted, nil
}

// InsertMessage inserts a single ledger row, returning
// ErrDuplicateMessage when the (campaign, recipient) pair exists.
func (r *Repository) InsertMessage(ctx context.Context, m *model.Message) error {
	query := `
		INSERT INTO messages (id, campaign_id, customer_id, destination, body, discount_code, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.pool.Exec(ctx, query,
		m.ID, m.CampaignID, m.CustomerID, m.Destination, m.Body, m.DiscountCode, m.Status, m.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateMessage
		}
		return fmt.Errorf("failed to insert message: %w", err)
	}

	return nil
}

// GetMessageByID retrieves a ledger row by its ID.
func (r *Repository) GetMessageByID(ctx context.Context, id string) (*model.Message, error) {
	query := messageSelect + ` WHERE id = $1`

	m, err := scanMessage(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	return m, nil
}

// NextPendingMessages returns the next batch of pending rows for a
// campaign in insertion order. The dispatcher drains this until empty.
func (r *Repository) NextPendingMessages(ctx context.Context, campaignID string, limit int) ([]*model.Message, error) {
	query := messageSelect + `
		WHERE campaign_id = $1 AND status = 'pending'
		ORDER BY created_at, id
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending messages: %w", err)
	}
	defer rows.Close()

	var messages []*model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

// CountPendingMessages counts undispatched rows for a campaign.
func (r *Repository) CountPendingMessages(ctx context.Context, campaignID string) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE campaign_id = $1 AND status = 'pending'`,
		campaignID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending messages: %w", err)
	}
	return count, nil
}

// DeletePendingMessages removes all still-pending rows for a campaign.
// Used by cancel; already-sent rows are left as history.
func (r *Repository) DeletePendingMessages(ctx context.Context, campaignID string) (int64, error) {
	result, err := r.pool.Exec(ctx,
		`DELETE FROM messages WHERE campaign_id = $1 AND status = 'pending'`,
		campaignID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete pending messages: %w", err)
	}
	return result.RowsAffected(), nil
}

// MarkMessageSent records a successful provider accept. The provider
// message id is what inbound webhooks will correlate on.
func (r *Repository) MarkMessageSent(ctx context.Context, id, providerMessageID string, cost float64, carrier string) error {
	query := `
		UPDATE messages
		SET status = 'sent', provider_message_id = $2, cost = $3, carrier = $4, sent_at = NOW()
		WHERE id = $1 AND status NOT IN ('delivered', 'failed', 'undelivered', 'rejected')
	`

	result, err := r.pool.Exec(ctx, query, id, providerMessageID, cost, carrier)
	if err != nil {
		return fmt.Errorf("failed to mark message sent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrMessageNotFound
	}

	return nil
}

// MarkMessageFailed records a per-row send failure with the provider's
// error text. Non-fatal to the campaign.
func (r *Repository) MarkMessageFailed(ctx context.Context, id, errMsg string) error {
	query := `
		UPDATE messages
		SET status = 'failed', error_message = $2, failed_at = NOW()
		WHERE id = $1 AND status NOT IN ('delivered', 'failed', 'undelivered', 'rejected')
	`

	result, err := r.pool.Exec(ctx, query, id, errMsg)
	if err != nil {
		return fmt.Errorf("failed to mark message failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrMessageNotFound
	}

	return nil
}

// SetMessageBody stores the rendered body and assigned discount code
// just before dispatch.
func (r *Repository) SetMessageBody(ctx context.Context, id, body, discountCode string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE messages SET body = $2, discount_code = $3 WHERE id = $1`,
		id, body, discountCode,
	)
	if err != nil {
		return fmt.Errorf("failed to set message body: %w", err)
	}
	return nil
}

// UpdateMessageFromProviderEvent applies a normalized webhook status by
// provider message id. Idempotent: replays and out-of-order deliveries
// are absorbed by the terminal-status guard, so a row's status never
// regresses once delivered/failed/undelivered/rejected.
// Returns the affected row, or ErrMessageNotFound when the id is
// unknown or the row is already terminal.
func (r *Repository) UpdateMessageFromProviderEvent(ctx context.Context, providerMessageID string, status model.MessageStatus, errMsg string) (*model.Message, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("invalid message status %q", status)
	}

	query := `
		UPDATE messages
		SET status = $2,
		    error_message = CASE WHEN $3 <> '' THEN $3 ELSE error_message END,
		    delivered_at = CASE WHEN $2 = 'delivered' THEN NOW() ELSE delivered_at END,
		    failed_at = CASE WHEN $2 IN ('failed', 'undelivered', 'rejected') THEN NOW() ELSE failed_at END,
		    queued_at = CASE WHEN $2 = 'queued' AND queued_at IS NULL THEN NOW() ELSE queued_at END
		WHERE provider_message_id = $1
		  AND status NOT IN ('delivered', 'failed', 'undelivered', 'rejected')
		RETURNING ` + messageColumns

	m, err := scanMessage(r.pool.QueryRow(ctx, query, providerMessageID, status, errMsg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to apply provider event: %w", err)
	}

	return m, nil
}

// MarkMessageClicked flips the click flag, first write wins. Returns
// ErrAlreadyClicked when the flag was already set so callers can skip
// the campaign counter bump.
func (r *Repository) MarkMessageClicked(ctx context.Context, id string, at time.Time) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE messages SET clicked = TRUE, clicked_at = $2 WHERE id = $1 AND NOT clicked`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("failed to mark message clicked: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAlreadyClicked
	}
	return nil
}

// MarkMessageConverted stamps the conversion and atomically rolls the
// order revenue and converted count into the owning campaign. The
// campaign increment uses a plain additive UPDATE so concurrent
// conversions of different messages in the same campaign never lose
// updates. First write wins per message.
func (r *Repository) MarkMessageConverted(ctx context.Context, id, orderID string, orderTotal float64, at time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin conversion: %w", err)
	}
	defer tx.Rollback(ctx)

	var campaignID string
	err = tx.QueryRow(ctx, `
		UPDATE messages
		SET converted = TRUE, converted_at = $2, order_id = $3, order_total = $4
		WHERE id = $1 AND NOT converted
		RETURNING campaign_id
	`, id, at, orderID, orderTotal).Scan(&campaignID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAlreadyConverted
		}
		return fmt.Errorf("failed to mark message converted: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE campaigns
		SET stats_converted = stats_converted + 1,
		    stats_revenue = stats_revenue + $2,
		    updated_at = NOW()
		WHERE id = $1
	`, campaignID, orderTotal)
	if err != nil {
		return fmt.Errorf("failed to roll conversion into campaign: %w", err)
	}

	return tx.Commit(ctx)
}

// MessageStatusCounts returns per-status row counts for a campaign.
func (r *Repository) MessageStatusCounts(ctx context.Context, campaignID string) (map[model.MessageStatus]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM messages WHERE campaign_id = $1 GROUP BY status`,
		campaignID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count message statuses: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.MessageStatus]int64)
	for rows.Next() {
		var status model.MessageStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = count
	}

	return counts, rows.Err()
}

const messageColumns = `
	id, campaign_id, customer_id, destination, body, provider_message_id,
	status, error_message, discount_code, cost, carrier,
	clicked, clicked_at, converted, converted_at, order_id, order_total,
	queued_at, sent_at, delivered_at, failed_at, created_at
`

const messageSelect = `SELECT ` + messageColumns + ` FROM messages`

// scanMessage scans a single row into a Message model.
func scanMessage(row pgx.Row) (*model.Message, error) {
	var m model.Message
	var providerMessageID, errorMessage, discountCode, carrier, orderID *string
	var cost, orderTotal *float64

	err := row.Scan(
		&m.ID,
		&m.CampaignID,
		&m.CustomerID,
		&m.Destination,
		&m.Body,
		&providerMessageID,
		&m.Status,
		&errorMessage,
		&discountCode,
		&cost,
		&carrier,
		&m.Clicked,
		&m.ClickedAt,
		&m.Converted,
		&m.ConvertedAt,
		&orderID,
		&orderTotal,
		&m.QueuedAt,
		&m.SentAt,
		&m.DeliveredAt,
		&m.FailedAt,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if providerMessageID != nil {
		m.ProviderMessageID = *providerMessageID
	}
	if errorMessage != nil {
		m.ErrorMessage = *errorMessage
	}
	if discountCode != nil {
		m.DiscountCode = *discountCode
	}
	if carrier != nil {
		m.Carrier = *carrier
	}
	if orderID != nil {
		m.OrderID = *orderID
	}
	if cost != nil {
		m.Cost = *cost
	}
	if orderTotal != nil {
		m.OrderTotal = *orderTotal
	}

	return &m, nil
}
