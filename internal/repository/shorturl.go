package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/brinecast/brinecast/internal/model"
)

// Common errors for short URL repository operations.
var (
	ErrCodeNotFound = errors.New("short code not found")
	ErrCodeExists   = errors.New("short code already exists")
)

// CreateShortURL inserts a new short URL. Returns ErrCodeExists on a
// code collision so the service can retry with a fresh code.
func (r *Repository) CreateShortURL(ctx context.Context, s *model.ShortURL) error {
	history, err := json.Marshal(s.ClickHistory)
	if err != nil {
		return fmt.Errorf("marshal click history: %w", err)
	}
	seenIPs, err := json.Marshal(s.SeenIPs)
	if err != nil {
		return fmt.Errorf("marshal seen ips: %w", err)
	}

	query := `
		INSERT INTO short_urls (id, code, original_url, source, campaign_id, message_id,
		                        active, expires_at, clicks, unique_clicks,
		                        click_history, seen_ips, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err = r.pool.Exec(ctx, query,
		s.ID,
		s.Code,
		s.OriginalURL,
		s.Source,
		nullableString(s.CampaignID),
		nullableString(s.MessageID),
		s.Active,
		s.ExpiresAt,
		s.Clicks,
		s.UniqueClicks,
		history,
		seenIPs,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrCodeExists
		}
		return fmt.Errorf("failed to create short url: %w", err)
	}

	return nil
}

// GetShortURLByCode retrieves a short URL by its code.
// This is the hot path for redirects.
func (r *Repository) GetShortURLByCode(ctx context.Context, code string) (*model.ShortURL, error) {
	query := shortURLSelect + ` WHERE code = $1`

	s, err := scanShortURL(r.pool.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("failed to get short url: %w", err)
	}

	return s, nil
}

// ShortCodeExists checks if a code is already taken.
func (r *Repository) ShortCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM short_urls WHERE code = $1)`, code,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check short code existence: %w", err)
	}
	return exists, nil
}

// RecordShortURLClick applies one click to a short URL inside a
// row-locked transaction: counters bump, the bounded history ring
// advances and the bounded seen-IP set decides uniqueness. Returns the
// updated row and whether the click was unique.
func (r *Repository) RecordShortURLClick(ctx context.Context, code string, click model.Click, historyLimit, ipLimit int) (*model.ShortURL, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin click: %w", err)
	}
	defer tx.Rollback(ctx)

	s, err := scanShortURL(tx.QueryRow(ctx, shortURLSelect+` WHERE code = $1 FOR UPDATE`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrCodeNotFound
		}
		return nil, false, fmt.Errorf("failed to lock short url: %w", err)
	}

	unique := !s.HasSeenIP(click.IP)

	s.Clicks++
	if unique {
		s.UniqueClicks++
		s.SeenIPs = append(s.SeenIPs, click.IP)
		if len(s.SeenIPs) > ipLimit {
			// FIFO eviction keeps the set bounded; uniqueness is an
			// approximation past this cap.
			s.SeenIPs = s.SeenIPs[len(s.SeenIPs)-ipLimit:]
		}
	}

	s.ClickHistory = append(s.ClickHistory, click)
	if len(s.ClickHistory) > historyLimit {
		s.ClickHistory = s.ClickHistory[len(s.ClickHistory)-historyLimit:]
	}

	history, err := json.Marshal(s.ClickHistory)
	if err != nil {
		return nil, false, fmt.Errorf("marshal click history: %w", err)
	}
	seenIPs, err := json.Marshal(s.SeenIPs)
	if err != nil {
		return nil, false, fmt.Errorf("marshal seen ips: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE short_urls
		SET clicks = $2, unique_clicks = $3, click_history = $4, seen_ips = $5, updated_at = NOW()
		WHERE code = $1
	`, code, s.Clicks, s.UniqueClicks, history, seenIPs)
	if err != nil {
		return nil, false, fmt.Errorf("failed to record click: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit click: %w", err)
	}

	return s, unique, nil
}

// SetShortURLConversion records the conversion once. A short URL that
// already converted keeps its original record.
func (r *Repository) SetShortURLConversion(ctx context.Context, code string, conv model.Conversion) (bool, error) {
	data, err := json.Marshal(conv)
	if err != nil {
		return false, fmt.Errorf("marshal conversion: %w", err)
	}

	result, err := r.pool.Exec(ctx, `
		UPDATE short_urls
		SET conversion = $2, updated_at = NOW()
		WHERE code = $1 AND conversion IS NULL
	`, code, data)
	if err != nil {
		return false, fmt.Errorf("failed to set conversion: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// DeactivateShortURL turns off a code without deleting its analytics.
func (r *Repository) DeactivateShortURL(ctx context.Context, code string) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE short_urls SET active = FALSE, updated_at = NOW() WHERE code = $1`, code,
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate short url: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrCodeNotFound
	}
	return nil
}

const shortURLSelect = `
	SELECT id, code, original_url, source, campaign_id, message_id,
	       active, expires_at, clicks, unique_clicks,
	       click_history, seen_ips, conversion, created_at, updated_at
	FROM short_urls
`

// scanShortURL scans a single row into a ShortURL model.
func scanShortURL(row pgx.Row) (*model.ShortURL, error) {
	var s model.ShortURL
	var campaignID, messageID *string
	var history, seenIPs, conversion []byte

	err := row.Scan(
		&s.ID,
		&s.Code,
		&s.OriginalURL,
		&s.Source,
		&campaignID,
		&messageID,
		&s.Active,
		&s.ExpiresAt,
		&s.Clicks,
		&s.UniqueClicks,
		&history,
		&seenIPs,
		&conversion,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if campaignID != nil {
		s.CampaignID = *campaignID
	}
	if messageID != nil {
		s.MessageID = *messageID
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &s.ClickHistory); err != nil {
			return nil, fmt.Errorf("unmarshal click history: %w", err)
		}
	}
	if len(seenIPs) > 0 {
		if err := json.Unmarshal(seenIPs, &s.SeenIPs); err != nil {
			return nil, fmt.Errorf("unmarshal seen ips: %w", err)
		}
	}
	if len(conversion) > 0 {
		var conv model.Conversion
		if err := json.Unmarshal(conversion, &conv); err != nil {
			return nil, fmt.Errorf("unmarshal conversion: %w", err)
		}
		s.Conversion = &conv
	}

	return &s, nil
}

// nullableString returns nil for empty strings.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
