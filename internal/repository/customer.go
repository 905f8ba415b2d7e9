package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/brinecast/brinecast/internal/model"
)

// Common errors for customer repository operations.
var (
	ErrCustomerNotFound  = errors.New("customer not found")
	ErrDuplicateCustomer = errors.New("customer with this phone already exists")
)

// CreateCustomer inserts a new customer record.
func (r *Repository) CreateCustomer(ctx context.Context, c *model.Customer) error {
	query := `
		INSERT INTO customers (id, phone, email, first_name, last_name, status, subscribed,
		                       order_count, total_spend,
		                       bounce_count, bounce_is_bounced, bounce_last_kind,
		                       bounce_last_reason, bounce_last_campaign_id, bounce_last_at,
		                       created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := r.pool.Exec(ctx, query,
		c.ID,
		c.Phone,
		c.Email,
		c.FirstName,
		c.LastName,
		c.Status,
		c.Subscribed,
		c.OrderCount,
		c.TotalSpend,
		c.BounceInfo.Count,
		c.BounceInfo.IsBounced,
		nullableString(string(c.BounceInfo.LastKind)),
		c.BounceInfo.LastReason,
		nullableString(c.BounceInfo.LastCampaignID),
		c.BounceInfo.LastBouncedAt,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateCustomer
		}
		return fmt.Errorf("failed to create customer: %w", err)
	}

	return nil
}

// GetCustomerByID retrieves a customer by ID.
func (r *Repository) GetCustomerByID(ctx context.Context, id string) (*model.Customer, error) {
	c, err := scanCustomer(r.pool.QueryRow(ctx, customerSelect+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return c, nil
}

// GetCustomerByPhone retrieves a customer by normalized phone number.
// Used by inbound webhook handling to resolve opt-out senders.
func (r *Repository) GetCustomerByPhone(ctx context.Context, phone string) (*model.Customer, error) {
	c, err := scanCustomer(r.pool.QueryRow(ctx, customerSelect+` WHERE phone = $1`, phone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("failed to get customer by phone: %w", err)
	}
	return c, nil
}

// EligibleCustomers returns the contactable customers matching an
// audience filter, ordered by creation time for deterministic ledger
// population. Suppressed and unsubscribed customers never match.
func (r *Repository) EligibleCustomers(ctx context.Context, filter model.AudienceFilter) ([]*model.Customer, error) {
	query, args, err := eligibleQuery(customerSelect, filter)
	if err != nil {
		return nil, err
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query eligible customers: %w", err)
	}
	defer rows.Close()

	var customers []*model.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate customers: %w", err)
	}

	return customers, nil
}

// CountEligibleCustomers returns the audience size without loading rows.
// Used for send previews.
func (r *Repository) CountEligibleCustomers(ctx context.Context, filter model.AudienceFilter) (int, error) {
	query, args, err := eligibleQuery(`SELECT COUNT(*) FROM customers`, filter)
	if err != nil {
		return 0, err
	}

	var count int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count eligible customers: %w", err)
	}
	return count, nil
}

// eligibleQuery builds the WHERE clause shared by EligibleCustomers and
// CountEligibleCustomers.
func eligibleQuery(selectClause string, filter model.AudienceFilter) (string, []any, error) {
	query := selectClause + ` WHERE subscribed = TRUE AND status = 'active'`
	var args []any

	switch filter.Type {
	case model.AudienceAll:
		// no extra predicate
	case model.AudienceNotConverted:
		query += ` AND order_count = 0`
	case model.AudienceList:
		if filter.ListID == "" {
			return "", nil, errors.New("list audience requires a list id")
		}
		query += ` AND id = ANY(SELECT UNNEST(member_ids) FROM lists WHERE id = $1)`
		args = append(args, filter.ListID)
	case model.AudienceMinSpend:
		query += ` AND total_spend >= $1`
		args = append(args, filter.MinSpend)
	default:
		return "", nil, fmt.Errorf("unknown audience type: %s", filter.Type)
	}

	return query, args, nil
}

// RecordCustomerBounce applies a bounce signal to a customer. The
// suppression decision is made inside the UPDATE against the current
// row, so concurrent webhook deliveries cannot each read a stale count
// and all decide not to suppress: a hard bounce, or a count reaching
// softLimit, flips status to bounced atomically with the counter bump.
// The flip happens only from active status; unsubscribed customers keep
// their status and never gain the bounce flag. Returns the new count
// and whether the customer is suppressed after this bounce.
func (r *Repository) RecordCustomerBounce(ctx context.Context, customerID string, kind model.BounceKind, reason, campaignID string, softLimit int) (int, bool, error) {
	query := `
		UPDATE customers
		SET bounce_count = bounce_count + 1,
		    bounce_is_bounced = bounce_is_bounced OR (($2 = 'hard' OR bounce_count + 1 >= $5) AND status = 'active'),
		    bounce_last_kind = $2,
		    bounce_last_reason = $3,
		    bounce_last_campaign_id = $4,
		    bounce_last_at = NOW(),
		    status = CASE WHEN ($2 = 'hard' OR bounce_count + 1 >= $5) AND status = 'active' THEN 'bounced' ELSE status END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING bounce_count, bounce_is_bounced
	`

	var count int
	var suppressed bool
	err := r.pool.QueryRow(ctx, query, customerID, kind, reason, nullableString(campaignID), softLimit).Scan(&count, &suppressed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, ErrCustomerNotFound
		}
		return 0, false, fmt.Errorf("failed to record bounce: %w", err)
	}
	return count, suppressed, nil
}

// ResetCustomerBounces clears bounce state after a successful delivery,
// so old soft bounces do not accumulate toward suppression forever.
func (r *Repository) ResetCustomerBounces(ctx context.Context, customerID string) error {
	query := `
		UPDATE customers
		SET bounce_count = 0,
		    bounce_is_bounced = FALSE,
		    bounce_last_kind = NULL,
		    bounce_last_reason = '',
		    bounce_last_campaign_id = NULL,
		    bounce_last_at = NULL,
		    status = CASE WHEN status = 'bounced' THEN 'active' ELSE status END,
		    updated_at = NOW()
		WHERE id = $1 AND bounce_count > 0
	`

	if _, err := r.pool.Exec(ctx, query, customerID); err != nil {
		return fmt.Errorf("failed to reset bounces: %w", err)
	}
	return nil
}

// UnsubscribeCustomer marks a customer as opted out. Idempotent.
// Opt-out wins over suppression: the bounce flag is cleared so it
// tracks the bounced status exactly, while the count stays as history.
func (r *Repository) UnsubscribeCustomer(ctx context.Context, customerID string) error {
	query := `
		UPDATE customers
		SET subscribed = FALSE, status = 'unsubscribed', bounce_is_bounced = FALSE, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, customerID)
	if err != nil {
		return fmt.Errorf("failed to unsubscribe customer: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}

// RecordCustomerOrder bumps order count and lifetime spend after an
// attributed purchase.
func (r *Repository) RecordCustomerOrder(ctx context.Context, customerID string, amount float64) error {
	query := `
		UPDATE customers
		SET order_count = order_count + 1, total_spend = total_spend + $2, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, customerID, amount)
	if err != nil {
		return fmt.Errorf("failed to record order: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}

const customerSelect = `
	SELECT id, phone, email, first_name, last_name, status, subscribed,
	       order_count, total_spend,
	       bounce_count, bounce_is_bounced, bounce_last_kind,
	       bounce_last_reason, bounce_last_campaign_id, bounce_last_at,
	       created_at, updated_at
	FROM customers
`

// scanCustomer scans a single row into a Customer model.
func scanCustomer(row pgx.Row) (*model.Customer, error) {
	var c model.Customer
	var lastKind, lastCampaignID *string

	err := row.Scan(
		&c.ID,
		&c.Phone,
		&c.Email,
		&c.FirstName,
		&c.LastName,
		&c.Status,
		&c.Subscribed,
		&c.OrderCount,
		&c.TotalSpend,
		&c.BounceInfo.Count,
		&c.BounceInfo.IsBounced,
		&lastKind,
		&c.BounceInfo.LastReason,
		&lastCampaignID,
		&c.BounceInfo.LastBouncedAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastKind != nil {
		c.BounceInfo.LastKind = model.BounceKind(*lastKind)
	}
	if lastCampaignID != nil {
		c.BounceInfo.LastCampaignID = *lastCampaignID
	}

	return &c, nil
}
