package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/brinecast/brinecast/internal/model"
)

// Common errors for campaign repository operations.
var (
	ErrCampaignNotFound = errors.New("campaign not found")
	ErrStatusConflict   = errors.New("campaign status changed concurrently")
	ErrInvalidCursor    = errors.New("invalid pagination cursor")
)

// CampaignFilter defines filters for listing campaigns.
type CampaignFilter struct {
	OwnerID string
	Status  model.CampaignStatus
}

// PaginationCursor represents decoded cursor for pagination.
type PaginationCursor struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateCampaign inserts a new campaign.
func (r *Repository) CreateCampaign(ctx context.Context, c *model.Campaign) error {
	audience, err := json.Marshal(c.Audience)
	if err != nil {
		return fmt.Errorf("marshal audience: %w", err)
	}
	discount, err := json.Marshal(c.Discount)
	if err != nil {
		return fmt.Errorf("marshal discount: %w", err)
	}

	query := `
		INSERT INTO campaigns (id, owner_id, name, template, audience, discount, status, notes, scheduled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.pool.Exec(ctx, query,
		c.ID,
		c.OwnerID,
		c.Name,
		c.Template,
		audience,
		discount,
		c.Status,
		c.Notes,
		c.ScheduledAt,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	return nil
}

// GetCampaignByID retrieves a campaign by its ID.
func (r *Repository) GetCampaignByID(ctx context.Context, id string) (*model.Campaign, error) {
	query := campaignSelect + ` WHERE id = $1`

	c, err := scanCampaign(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCampaignNotFound
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	return c, nil
}

// GetCampaignStatus reads only the status column. This is the cheap
// read the dispatcher issues between rows for cooperative pause/cancel.
func (r *Repository) GetCampaignStatus(ctx context.Context, id string) (model.CampaignStatus, error) {
	var status model.CampaignStatus
	err := r.pool.QueryRow(ctx, `SELECT status FROM campaigns WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrCampaignNotFound
		}
		return "", fmt.Errorf("failed to get campaign status: %w", err)
	}
	return status, nil
}

// ListCampaigns retrieves a cursor-paginated list of campaigns.
func (r *Repository) ListCampaigns(ctx context.Context, filter CampaignFilter, cursor string, limit int) ([]*model.Campaign, string, error) {
	var cursorData *PaginationCursor
	if cursor != "" {
		var err error
		cursorData, err = decodeCursor(cursor)
		if err != nil {
			return nil, "", ErrInvalidCursor
		}
	}

	query := campaignSelect + ` WHERE owner_id = $1`
	args := []any{filter.OwnerID}
	argIndex := 2

	if cursorData != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIndex, argIndex+1)
		args = append(args, cursorData.CreatedAt, cursorData.ID)
		argIndex += 2
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, filter.Status)
		argIndex++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", argIndex)
	args = append(args, limit+1) // Fetch one extra to determine hasMore

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []*model.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, "", fmt.Errorf("failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, c)
	}

	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("error iterating campaigns: %w", err)
	}

	var nextCursor string
	if len(campaigns) > limit {
		campaigns = campaigns[:limit]
		last := campaigns[len(campaigns)-1]
		nextCursor = encodeCursor(&PaginationCursor{ID: last.ID, CreatedAt: last.CreatedAt})
	}

	return campaigns, nextCursor, nil
}

// UpdateCampaign updates mutable configuration fields.
func (r *Repository) UpdateCampaign(ctx context.Context, c *model.Campaign) error {
	audience, err := json.Marshal(c.Audience)
	if err != nil {
		return fmt.Errorf("marshal audience: %w", err)
	}
	discount, err := json.Marshal(c.Discount)
	if err != nil {
		return fmt.Errorf("marshal discount: %w", err)
	}

	query := `
		UPDATE campaigns
		SET name = $2, template = $3, audience = $4, discount = $5, scheduled_at = $6, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, c.ID, c.Name, c.Template, audience, discount, c.ScheduledAt)
	if err != nil {
		return fmt.Errorf("failed to update campaign: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrCampaignNotFound
	}

	return nil
}

// DeleteCampaign removes a campaign and its ledger rows.
func (r *Repository) DeleteCampaign(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete campaign: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE campaign_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete campaign messages: %w", err)
	}

	result, err := tx.Exec(ctx, `DELETE FROM campaigns WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete campaign: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrCampaignNotFound
	}

	return tx.Commit(ctx)
}

// TransitionCampaignStatus moves a campaign from one status to another
// with compare-and-swap semantics. Returns ErrStatusConflict if the
// campaign is no longer in any of the expected statuses, which is how
// concurrent send/pause/cancel races surface.
func (r *Repository) TransitionCampaignStatus(ctx context.Context, id string, from []model.CampaignStatus, to model.CampaignStatus) error {
	fromStrs := make([]string, len(from))
	for i, s := range from {
		fromStrs[i] = string(s)
	}

	query := `
		UPDATE campaigns
		SET status = $2,
		    started_at = CASE WHEN $2 = 'sending' AND started_at IS NULL THEN NOW() ELSE started_at END,
		    completed_at = CASE WHEN $2 IN ('sent', 'cancelled', 'failed') THEN NOW() ELSE completed_at END,
		    updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
	`

	result, err := r.pool.Exec(ctx, query, id, to, fromStrs)
	if err != nil {
		return fmt.Errorf("failed to transition campaign status: %w", err)
	}
	if result.RowsAffected() == 0 {
		// Distinguish missing from conflicting for callers that care.
		if _, err := r.GetCampaignStatus(ctx, id); errors.Is(err, ErrCampaignNotFound) {
			return ErrCampaignNotFound
		}
		return ErrStatusConflict
	}

	return nil
}

// SetCampaignNotes records diagnostic text, typically the error that
// failed a campaign.
func (r *Repository) SetCampaignNotes(ctx context.Context, id, notes string) error {
	_, err := r.pool.Exec(ctx, `UPDATE campaigns SET notes = $2, updated_at = NOW() WHERE id = $1`, id, notes)
	if err != nil {
		return fmt.Errorf("failed to set campaign notes: %w", err)
	}
	return nil
}

// SetCampaignRecipients records the size of the snapshotted audience.
func (r *Repository) SetCampaignRecipients(ctx context.Context, id string, count int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE campaigns SET stats_recipients = $2, updated_at = NOW() WHERE id = $1`, id, count)
	if err != nil {
		return fmt.Errorf("failed to set campaign recipients: %w", err)
	}
	return nil
}

// IncrementCampaignCounter atomically bumps one stats counter. column
// must be one of the fixed counter names; it is never caller input.
func (r *Repository) incrementCampaignCounter(ctx context.Context, id, column string, delta int64) error {
	query := fmt.Sprintf(`UPDATE campaigns SET %s = %s + $2, updated_at = NOW() WHERE id = $1`, column, column)
	_, err := r.pool.Exec(ctx, query, id, delta)
	if err != nil {
		return fmt.Errorf("failed to increment %s: %w", column, err)
	}
	return nil
}

// IncrementCampaignSent bumps the sent counter.
func (r *Repository) IncrementCampaignSent(ctx context.Context, id string) error {
	return r.incrementCampaignCounter(ctx, id, "stats_sent", 1)
}

// IncrementCampaignDelivered bumps the delivered counter.
func (r *Repository) IncrementCampaignDelivered(ctx context.Context, id string) error {
	return r.incrementCampaignCounter(ctx, id, "stats_delivered", 1)
}

// IncrementCampaignFailed bumps the failed counter.
func (r *Repository) IncrementCampaignFailed(ctx context.Context, id string) error {
	return r.incrementCampaignCounter(ctx, id, "stats_failed", 1)
}

// IncrementCampaignClicked bumps the clicked counter.
func (r *Repository) IncrementCampaignClicked(ctx context.Context, id string) error {
	return r.incrementCampaignCounter(ctx, id, "stats_clicked", 1)
}

// RecalculateCampaignStats re-derives the aggregate counters from the
// message ledger. Incremental counters drift when provider webhooks are
// missed; this is the documented repair mechanism.
func (r *Repository) RecalculateCampaignStats(ctx context.Context, id string) (*model.CampaignStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status IN ('sent', 'delivered')),
			COUNT(*) FILTER (WHERE status = 'delivered'),
			COUNT(*) FILTER (WHERE status IN ('failed', 'undelivered', 'rejected')),
			COUNT(*) FILTER (WHERE clicked),
			COUNT(*) FILTER (WHERE converted),
			COALESCE(SUM(order_total) FILTER (WHERE converted), 0)
		FROM messages
		WHERE campaign_id = $1
	`

	var stats model.CampaignStats
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&stats.Recipients,
		&stats.Sent,
		&stats.Delivered,
		&stats.Failed,
		&stats.Clicked,
		&stats.Converted,
		&stats.Revenue,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to recalculate stats: %w", err)
	}

	update := `
		UPDATE campaigns
		SET stats_recipients = $2, stats_sent = $3, stats_delivered = $4,
		    stats_failed = $5, stats_clicked = $6, stats_converted = $7,
		    stats_revenue = $8, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, update, id,
		stats.Recipients, stats.Sent, stats.Delivered,
		stats.Failed, stats.Clicked, stats.Converted, stats.Revenue,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to store recalculated stats: %w", err)
	}
	if result.RowsAffected() == 0 {
		return nil, ErrCampaignNotFound
	}

	return &stats, nil
}

// FindStuckSendingCampaigns returns ids of campaigns left in `sending`
// with pending ledger rows. Scanned at boot so dispatch survives a
// process restart.
func (r *Repository) FindStuckSendingCampaigns(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT c.id
		FROM campaigns c
		JOIN messages m ON m.campaign_id = c.id
		WHERE c.status = 'sending' AND m.status = 'pending'
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to find stuck campaigns: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan campaign id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

const campaignSelect = `
	SELECT id, owner_id, name, template, audience, discount, status, notes,
	       stats_recipients, stats_sent, stats_delivered, stats_failed,
	       stats_clicked, stats_converted, stats_revenue,
	       scheduled_at, started_at, completed_at, created_at, updated_at
	FROM campaigns
`

// scanCampaign scans a single row into a Campaign model.
func scanCampaign(row pgx.Row) (*model.Campaign, error) {
	var c model.Campaign
	var audience, discount []byte

	err := row.Scan(
		&c.ID,
		&c.OwnerID,
		&c.Name,
		&c.Template,
		&audience,
		&discount,
		&c.Status,
		&c.Notes,
		&c.Stats.Recipients,
		&c.Stats.Sent,
		&c.Stats.Delivered,
		&c.Stats.Failed,
		&c.Stats.Clicked,
		&c.Stats.Converted,
		&c.Stats.Revenue,
		&c.ScheduledAt,
		&c.StartedAt,
		&c.CompletedAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(audience) > 0 {
		if err := json.Unmarshal(audience, &c.Audience); err != nil {
			return nil, fmt.Errorf("unmarshal audience: %w", err)
		}
	}
	if len(discount) > 0 {
		if err := json.Unmarshal(discount, &c.Discount); err != nil {
			return nil, fmt.Errorf("unmarshal discount: %w", err)
		}
	}

	return &c, nil
}

// encodeCursor encodes pagination cursor to base64.
func encodeCursor(cursor *PaginationCursor) string {
	data, _ := json.Marshal(cursor)
	return base64.URLEncoding.EncodeToString(data)
}

// decodeCursor decodes base64 pagination cursor.
func decodeCursor(s string) (*PaginationCursor, error) {
	data, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}

	var cursor PaginationCursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, err
	}

	return &cursor, nil
}
