package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/brinecast/brinecast/internal/model"
)

// ErrListNotFound is returned when a list does not exist.
var ErrListNotFound = errors.New("list not found")

// CreateList inserts a new mailing list.
func (r *Repository) CreateList(ctx context.Context, l *model.List) error {
	query := `
		INSERT INTO lists (id, name, description, member_ids, member_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		l.ID, l.Name, l.Description, l.MemberIDs, l.MemberCount, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create list: %w", err)
	}
	return nil
}

// GetListByID retrieves a list with its full membership.
func (r *Repository) GetListByID(ctx context.Context, id string) (*model.List, error) {
	query := `
		SELECT id, name, description, member_ids, member_count, created_at, updated_at
		FROM lists WHERE id = $1
	`

	var l model.List
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&l.ID, &l.Name, &l.Description, &l.MemberIDs, &l.MemberCount, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrListNotFound
		}
		return nil, fmt.Errorf("failed to get list: %w", err)
	}

	return &l, nil
}

// AddListMember appends a customer to a list if not already present,
// keeping the cached member_count in step.
func (r *Repository) AddListMember(ctx context.Context, listID, customerID string) error {
	query := `
		UPDATE lists
		SET member_ids = array_append(member_ids, $2),
		    member_count = member_count + 1,
		    updated_at = NOW()
		WHERE id = $1 AND NOT ($2 = ANY(member_ids))
	`

	result, err := r.pool.Exec(ctx, query, listID, customerID)
	if err != nil {
		return fmt.Errorf("failed to add list member: %w", err)
	}
	if result.RowsAffected() == 0 {
		// Either the list is missing or the member is already there;
		// distinguish for the caller.
		exists, err := r.listExists(ctx, listID)
		if err != nil {
			return err
		}
		if !exists {
			return ErrListNotFound
		}
	}
	return nil
}

// RemoveCustomerFromAllLists drops a customer from every list in one
// statement. Used when a customer unsubscribes or hard-bounces.
func (r *Repository) RemoveCustomerFromAllLists(ctx context.Context, customerID string) (int, error) {
	query := `
		UPDATE lists
		SET member_ids = array_remove(member_ids, $1),
		    member_count = member_count - 1,
		    updated_at = NOW()
		WHERE $1 = ANY(member_ids)
	`

	result, err := r.pool.Exec(ctx, query, customerID)
	if err != nil {
		return 0, fmt.Errorf("failed to remove customer from lists: %w", err)
	}
	return int(result.RowsAffected()), nil
}

func (r *Repository) listExists(ctx context.Context, listID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM lists WHERE id = $1)`, listID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check list existence: %w", err)
	}
	return exists, nil
}
