package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/brinecast/brinecast/internal/cache"
	"github.com/brinecast/brinecast/internal/model"
	"github.com/brinecast/brinecast/internal/repository"
)

// startDispatcher launches the dispatch loop for one campaign under the
// service's lifecycle context.
func (s *Service) startDispatcher(campaignID string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runDispatcher(s.dispatchCtx, campaignID)
	}()
}

// runDispatcher drains a campaign's pending ledger rows one provider
// call at a time, SendInterval apart. Exactly one dispatcher per
// campaign runs cluster-wide, enforced by the redis single-flight lock.
// Pause and cancel are cooperative: the loop re-reads campaign status
// between rows and parks or exits accordingly. Process shutdown cancels
// ctx and leaves the campaign in sending for the boot recovery scan.
func (s *Service) runDispatcher(ctx context.Context, campaignID string) {
	logger := s.logger.With("campaign_id", campaignID)

	lock, err := s.cache.AcquireDispatchLock(ctx, campaignID, s.cfg.DispatchLockTTL)
	if err != nil {
		if errors.Is(err, cache.ErrLockHeld) {
			logger.Info("dispatch already running elsewhere, standing down")
			return
		}
		logger.Error("failed to acquire dispatch lock", "error", err)
		return
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil {
			logger.Warn("failed to release dispatch lock", "error", err)
		}
	}()

	campaign, err := s.repo.GetCampaignByID(ctx, campaignID)
	if err != nil {
		logger.Error("failed to load campaign for dispatch", "error", err)
		return
	}

	assigner := newDiscountAssigner(s.discounts, campaign.ID, campaign.Discount)

	logger.Info("dispatch loop started")

	if err := s.dispatchLoop(ctx, campaign, assigner, lock, logger); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("dispatch interrupted by shutdown, campaign stays sending")
			return
		}
		s.failCampaign(campaignID, err, logger)
	}
}

// dispatchLoop is the batch loop body. Returns nil when the campaign
// reached a resting state (sent, paused, cancelled) and an error only
// for unexpected faults that should fail the campaign.
func (s *Service) dispatchLoop(ctx context.Context, campaign *model.Campaign, assigner *discountAssigner, lock *cache.DispatchLock, logger *slog.Logger) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		owned, err := lock.Refresh(ctx)
		if err != nil {
			logger.Warn("dispatch lock refresh failed", "error", err)
		} else if !owned {
			// Someone else holds the campaign now; let them drive.
			logger.Warn("dispatch lock ownership lost, standing down")
			return nil
		}

		status, err := s.repo.GetCampaignStatus(ctx, campaign.ID)
		if err != nil {
			return fmt.Errorf("read campaign status: %w", err)
		}
		if status != model.CampaignStatusSending {
			logger.Info("dispatch parked", "status", status)
			return nil
		}

		batch, err := s.repo.NextPendingMessages(ctx, campaign.ID, s.cfg.DispatchBatchSize)
		if err != nil {
			return fmt.Errorf("fetch pending rows: %w", err)
		}

		if len(batch) == 0 {
			return s.finalizeCampaign(ctx, campaign.ID, logger)
		}

		if pending, err := s.repo.CountPendingMessages(ctx, campaign.ID); err == nil {
			s.metrics.SetDispatchQueueDepth(pending)
		}

		for _, row := range batch {
			if err := ctx.Err(); err != nil {
				return err
			}

			// Cheap status-only read per row so pause and cancel take
			// effect mid-batch, not just between batches.
			status, err := s.repo.GetCampaignStatus(ctx, campaign.ID)
			if err != nil {
				return fmt.Errorf("read campaign status: %w", err)
			}
			if status != model.CampaignStatusSending {
				logger.Info("dispatch parked mid-batch", "status", status)
				return nil
			}

			if err := s.dispatchRow(ctx, campaign, row, assigner); err != nil {
				return fmt.Errorf("dispatch row %s: %w", row.ID, err)
			}

			// Fixed inter-send delay: the gateway's rate policy.
			timer := time.NewTimer(s.cfg.SendInterval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
}

// dispatchRow renders and sends one ledger row. Provider rejections and
// per-row provisioning problems fail the row, never the campaign; only
// repository faults propagate.
func (s *Service) dispatchRow(ctx context.Context, campaign *model.Campaign, row *model.Message, assigner *discountAssigner) error {
	customer, err := s.repo.GetCustomerByID(ctx, row.CustomerID)
	if err != nil {
		if errors.Is(err, repository.ErrCustomerNotFound) {
			return s.failRow(ctx, campaign.ID, row.ID, "recipient no longer exists")
		}
		return err
	}

	// Suppression that landed after the ledger snapshot still blocks
	// the send.
	if !customer.IsContactable() {
		return s.failRow(ctx, campaign.ID, row.ID, "recipient suppressed or unsubscribed")
	}

	code, err := assigner.CodeFor(ctx)
	if err != nil {
		// Row-level failure by policy: one recipient's discount trouble
		// must not sink the whole campaign.
		s.logger.Warn("discount assignment failed for row",
			"campaign_id", campaign.ID, "message_id", row.ID, "error", err)
		return s.failRow(ctx, campaign.ID, row.ID, "discount provisioning failed: "+err.Error())
	}

	body := renderTemplate(campaign.Template, customer, code)
	body = s.links.ShortenURLsInText(ctx, body, campaign.ID, row.ID)

	if err := s.repo.SetMessageBody(ctx, row.ID, body, code); err != nil {
		return err
	}

	start := time.Now()
	result, err := s.gateway.Send(ctx, row.Destination, body)
	s.metrics.ObserveSendDuration(time.Since(start))

	if err != nil {
		// Transport-level trouble (timeout, DNS). Still a row failure;
		// the next row may well go through.
		s.logger.Warn("provider send failed",
			"campaign_id", campaign.ID, "message_id", row.ID, "error", err)
		return s.failRow(ctx, campaign.ID, row.ID, err.Error())
	}
	if !result.Success {
		return s.failRow(ctx, campaign.ID, row.ID, result.Error)
	}

	if err := s.repo.MarkMessageSent(ctx, row.ID, result.ProviderMessageID, result.Cost, result.Carrier); err != nil {
		return err
	}
	if err := s.repo.IncrementCampaignSent(ctx, campaign.ID); err != nil {
		return err
	}
	s.metrics.IncMessageSent("sent")

	return nil
}

// failRow marks one ledger row failed and bumps the campaign counter.
func (s *Service) failRow(ctx context.Context, campaignID, messageID, reason string) error {
	if err := s.repo.MarkMessageFailed(ctx, messageID, reason); err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			// Row went terminal through another path (webhook race).
			return nil
		}
		return err
	}
	if err := s.repo.IncrementCampaignFailed(ctx, campaignID); err != nil {
		return err
	}
	s.metrics.IncMessageSent("failed")
	return nil
}

// finalizeCampaign transitions sending → sent once the ledger drains.
func (s *Service) finalizeCampaign(ctx context.Context, campaignID string, logger *slog.Logger) error {
	err := s.repo.TransitionCampaignStatus(ctx, campaignID,
		[]model.CampaignStatus{model.CampaignStatusSending},
		model.CampaignStatusSent,
	)
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			// Paused or cancelled in the final gap; that status wins.
			logger.Info("campaign left sending before finalize")
			return nil
		}
		return fmt.Errorf("finalize campaign: %w", err)
	}

	s.metrics.SetDispatchQueueDepth(0)
	logger.Info("campaign completed")
	return nil
}

// failCampaign records an unexpected dispatcher fault on the campaign.
func (s *Service) failCampaign(campaignID string, cause error, logger *slog.Logger) {
	logger.Error("dispatch failed", "error", cause)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.repo.TransitionCampaignStatus(ctx, campaignID,
		[]model.CampaignStatus{model.CampaignStatusSending, model.CampaignStatusPaused},
		model.CampaignStatusFailed,
	)
	if err != nil {
		logger.Error("failed to mark campaign failed", "error", err)
		return
	}
	if err := s.repo.SetCampaignNotes(ctx, campaignID, "dispatch error: "+cause.Error()); err != nil {
		logger.Error("failed to record failure notes", "error", err)
	}
}

// discountAssigner hands out discount codes per row. Static campaigns
// reuse the configured code; dynamic campaigns draw a random percentage
// in range and lazily confirm its rule, caching codes per percent.
type discountAssigner struct {
	provisioner DiscountProvisioner
	campaignID  string
	cfg         model.DiscountConfig

	mu    sync.Mutex
	codes map[int]string
}

func newDiscountAssigner(p DiscountProvisioner, campaignID string, cfg model.DiscountConfig) *discountAssigner {
	return &discountAssigner{
		provisioner: p,
		campaignID:  campaignID,
		cfg:         cfg,
		codes:       make(map[int]string),
	}
}

// CodeFor returns the discount code for the next row, or "" when the
// campaign carries no discount.
func (a *discountAssigner) CodeFor(ctx context.Context) (string, error) {
	switch a.cfg.Type {
	case model.DiscountStatic:
		return a.cfg.Code, nil
	case model.DiscountDynamic:
		percent := a.cfg.MinPercent
		if spread := a.cfg.MaxPercent - a.cfg.MinPercent; spread > 0 {
			percent += rand.Intn(spread + 1)
		}

		a.mu.Lock()
		code, ok := a.codes[percent]
		a.mu.Unlock()
		if ok {
			return code, nil
		}

		code, err := a.provisioner.ProvisionRule(ctx, a.campaignID, percent)
		if err != nil {
			return "", err
		}

		a.mu.Lock()
		a.codes[percent] = code
		a.mu.Unlock()
		return code, nil
	default:
		return "", nil
	}
}
