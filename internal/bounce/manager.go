// Package bounce applies delivery-failure signals to customer
// suppression state and cascades suppression through list membership.
package bounce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/brinecast/brinecast/internal/model"
	"github.com/brinecast/brinecast/internal/repository"
)

// ErrCustomerNotFound is returned when the bounced customer is unknown.
var ErrCustomerNotFound = errors.New("customer not found")

// Manager escalates bounces into suppression. A hard bounce suppresses
// immediately; soft bounces suppress once the count reaches the limit.
type Manager struct {
	repo            *repository.Repository
	softBounceLimit int
	logger          *slog.Logger
}

// NewManager creates a bounce manager.
func NewManager(repo *repository.Repository, softBounceLimit int, logger *slog.Logger) *Manager {
	if softBounceLimit <= 0 {
		softBounceLimit = 3
	}
	return &Manager{
		repo:            repo,
		softBounceLimit: softBounceLimit,
		logger:          logger.With("component", "bounce"),
	}
}

// MarkBounced records one bounce against a customer and, when the
// escalation policy says so, suppresses them and removes them from all
// lists. The threshold check runs inside the repository update against
// the current count, so concurrent webhook deliveries for the same
// customer cannot slip past the limit on stale reads.
func (m *Manager) MarkBounced(ctx context.Context, customerID string, kind model.BounceKind, reason, campaignID string) error {
	count, suppressed, err := m.repo.RecordCustomerBounce(ctx, customerID, kind, reason, campaignID, m.softBounceLimit)
	if err != nil {
		if errors.Is(err, repository.ErrCustomerNotFound) {
			return ErrCustomerNotFound
		}
		return fmt.Errorf("record bounce: %w", err)
	}

	if !suppressed {
		m.logger.Info("bounce recorded",
			"customer_id", customerID, "kind", kind, "count", count)
		return nil
	}

	removed, err := m.repo.RemoveCustomerFromAllLists(ctx, customerID)
	if err != nil {
		// Suppression already landed; membership cleanup can be retried
		// on the next bounce without violating the invariant.
		m.logger.Error("failed to remove suppressed customer from lists",
			"error", err, "customer_id", customerID)
		return nil
	}

	m.logger.Info("customer suppressed",
		"customer_id", customerID, "kind", kind, "count", count, "lists_removed", removed)
	return nil
}

// MarkDelivered clears accumulated bounce state after a confirmed
// delivery, so stale soft bounces stop counting toward suppression.
func (m *Manager) MarkDelivered(ctx context.Context, customerID string) error {
	if err := m.repo.ResetCustomerBounces(ctx, customerID); err != nil {
		return fmt.Errorf("reset bounces: %w", err)
	}
	return nil
}

// OptOut marks a customer unsubscribed and removes them from all lists.
// Triggered by inbound STOP-keyword webhooks.
func (m *Manager) OptOut(ctx context.Context, customerID string) error {
	if err := m.repo.UnsubscribeCustomer(ctx, customerID); err != nil {
		if errors.Is(err, repository.ErrCustomerNotFound) {
			return ErrCustomerNotFound
		}
		return fmt.Errorf("unsubscribe customer: %w", err)
	}

	removed, err := m.repo.RemoveCustomerFromAllLists(ctx, customerID)
	if err != nil {
		m.logger.Error("failed to remove unsubscribed customer from lists",
			"error", err, "customer_id", customerID)
		return nil
	}

	m.logger.Info("customer opted out", "customer_id", customerID, "lists_removed", removed)
	return nil
}
