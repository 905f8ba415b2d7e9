// Package campaign implements the campaign aggregate: lifecycle state
// machine, audience eligibility, ledger provisioning and the rate-limited
// dispatch loop.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brinecast/brinecast/internal/cache"
	"github.com/brinecast/brinecast/internal/metrics"
	"github.com/brinecast/brinecast/internal/model"
	"github.com/brinecast/brinecast/internal/provider"
	"github.com/brinecast/brinecast/internal/repository"
	"github.com/brinecast/brinecast/internal/shortlink"
)

// Service errors.
var (
	ErrCampaignNotFound  = errors.New("campaign not found")
	ErrNotOwner          = errors.New("campaign belongs to a different API key")
	ErrNotMutable        = errors.New("campaign is no longer editable")
	ErrInvalidTransition = errors.New("campaign status does not allow this action")
	ErrInvalidAudience   = errors.New("invalid audience filter")
	ErrInvalidDiscount   = errors.New("invalid discount configuration")
	ErrEmptyAudience     = errors.New("no eligible recipients")
	ErrMissingName       = errors.New("campaign name is required")
	ErrMissingTemplate   = errors.New("campaign template is required")
)

// Config holds campaign dispatch tunables.
type Config struct {
	// SendInterval is the fixed delay between provider calls within one
	// campaign.
	SendInterval time.Duration
	// DispatchBatchSize is how many pending rows one loop iteration pulls.
	DispatchBatchSize int
	// DispatchLockTTL bounds how long a dead worker can hold a campaign.
	DispatchLockTTL time.Duration
}

// Gateway is the slice of the provider client the service needs.
type Gateway interface {
	Send(ctx context.Context, dest, body string) (*provider.SendResult, error)
}

// DiscountProvisioner provisions percent-off rules ahead of dispatch.
type DiscountProvisioner interface {
	ProvisionRule(ctx context.Context, campaignID string, percent int) (string, error)
}

// Service handles campaign business logic.
type Service struct {
	repo      *repository.Repository
	cache     *cache.Cache
	links     *shortlink.Service
	gateway   Gateway
	discounts DiscountProvisioner
	metrics   metrics.Recorder
	logger    *slog.Logger
	cfg       Config

	dispatchCtx    context.Context
	dispatchCancel context.CancelFunc
	wg             sync.WaitGroup
}

// NewService creates a campaign service. Dispatcher goroutines run
// under the service's own context so Shutdown can drain them.
func NewService(
	repo *repository.Repository,
	c *cache.Cache,
	links *shortlink.Service,
	gateway Gateway,
	discounts DiscountProvisioner,
	cfg Config,
	recorder metrics.Recorder,
	logger *slog.Logger,
) *Service {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if cfg.SendInterval <= 0 {
		cfg.SendInterval = 1100 * time.Millisecond
	}
	if cfg.DispatchBatchSize <= 0 {
		cfg.DispatchBatchSize = 50
	}
	if cfg.DispatchLockTTL <= 0 {
		cfg.DispatchLockTTL = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		repo:           repo,
		cache:          c,
		links:          links,
		gateway:        gateway,
		discounts:      discounts,
		metrics:        recorder,
		logger:         logger.With("component", "campaign"),
		cfg:            cfg,
		dispatchCtx:    ctx,
		dispatchCancel: cancel,
	}
}

// CreateInput defines input for creating a campaign.
type CreateInput struct {
	OwnerID     string
	Name        string
	Template    string
	Audience    model.AudienceFilter
	Discount    model.DiscountConfig
	ScheduledAt *time.Time
}

// Create registers a new draft (or scheduled) campaign.
func (s *Service) Create(ctx context.Context, input CreateInput) (*model.Campaign, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, ErrMissingName
	}
	if strings.TrimSpace(input.Template) == "" {
		return nil, ErrMissingTemplate
	}
	if err := validateAudience(input.Audience); err != nil {
		return nil, err
	}
	if err := validateDiscount(input.Discount); err != nil {
		return nil, err
	}

	status := model.CampaignStatusDraft
	if input.ScheduledAt != nil {
		if input.ScheduledAt.Before(time.Now()) {
			return nil, fmt.Errorf("%w: scheduled_at in the past", ErrInvalidTransition)
		}
		status = model.CampaignStatusScheduled
	}

	now := time.Now().UTC()
	campaign := &model.Campaign{
		ID:          uuid.NewString(),
		OwnerID:     input.OwnerID,
		Name:        input.Name,
		Template:    input.Template,
		Audience:    input.Audience,
		Discount:    input.Discount,
		Status:      status,
		ScheduledAt: input.ScheduledAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.CreateCampaign(ctx, campaign); err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}

	s.logger.Info("campaign created", "campaign_id", campaign.ID, "status", status)
	return campaign, nil
}

// Get retrieves a campaign, enforcing ownership.
func (s *Service) Get(ctx context.Context, id, ownerID string) (*model.Campaign, error) {
	return s.loadOwned(ctx, id, ownerID)
}

// ListInput defines input for listing campaigns.
type ListInput struct {
	OwnerID string
	Status  model.CampaignStatus
	Cursor  string
	Limit   int
}

// ListOutput defines output for listing campaigns.
type ListOutput struct {
	Campaigns  []*model.Campaign
	NextCursor string
	HasMore    bool
}

// List retrieves a paginated list of the key's campaigns.
func (s *Service) List(ctx context.Context, input ListInput) (*ListOutput, error) {
	if input.Limit <= 0 || input.Limit > 100 {
		input.Limit = 20
	}

	campaigns, nextCursor, err := s.repo.ListCampaigns(ctx, repository.CampaignFilter{
		OwnerID: input.OwnerID,
		Status:  input.Status,
	}, input.Cursor, input.Limit)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidCursor) {
			return nil, err
		}
		return nil, fmt.Errorf("list campaigns: %w", err)
	}

	return &ListOutput{
		Campaigns:  campaigns,
		NextCursor: nextCursor,
		HasMore:    nextCursor != "",
	}, nil
}

// UpdateInput defines input for updating a campaign. Nil pointers leave
// fields unchanged.
type UpdateInput struct {
	ID            string
	OwnerID       string
	Name          *string
	Template      *string
	Audience      *model.AudienceFilter
	Discount      *model.DiscountConfig
	ScheduledAt   *time.Time
	ClearSchedule bool
}

// Update edits a draft or scheduled campaign's configuration.
func (s *Service) Update(ctx context.Context, input UpdateInput) (*model.Campaign, error) {
	campaign, err := s.loadOwned(ctx, input.ID, input.OwnerID)
	if err != nil {
		return nil, err
	}
	if !campaign.IsMutable() {
		return nil, ErrNotMutable
	}

	if input.Name != nil {
		if strings.TrimSpace(*input.Name) == "" {
			return nil, ErrMissingName
		}
		campaign.Name = *input.Name
	}
	if input.Template != nil {
		if strings.TrimSpace(*input.Template) == "" {
			return nil, ErrMissingTemplate
		}
		campaign.Template = *input.Template
	}
	if input.Audience != nil {
		if err := validateAudience(*input.Audience); err != nil {
			return nil, err
		}
		campaign.Audience = *input.Audience
	}
	if input.Discount != nil {
		if err := validateDiscount(*input.Discount); err != nil {
			return nil, err
		}
		campaign.Discount = *input.Discount
	}
	if input.ClearSchedule {
		campaign.ScheduledAt = nil
	} else if input.ScheduledAt != nil {
		if input.ScheduledAt.Before(time.Now()) {
			return nil, fmt.Errorf("%w: scheduled_at in the past", ErrInvalidTransition)
		}
		campaign.ScheduledAt = input.ScheduledAt
	}

	if err := s.repo.UpdateCampaign(ctx, campaign); err != nil {
		return nil, fmt.Errorf("update campaign: %w", err)
	}

	return campaign, nil
}

// Delete removes a campaign that has not started sending.
func (s *Service) Delete(ctx context.Context, id, ownerID string) error {
	campaign, err := s.loadOwned(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if !campaign.IsMutable() {
		return ErrNotMutable
	}

	if err := s.repo.DeleteCampaign(ctx, id); err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	return nil
}

// AudienceCount previews how many customers an audience filter reaches.
func (s *Service) AudienceCount(ctx context.Context, filter model.AudienceFilter) (int, error) {
	if err := validateAudience(filter); err != nil {
		return 0, err
	}
	return s.repo.CountEligibleCustomers(ctx, filter)
}

// Send moves a campaign into sending: provisions discount rules,
// snapshots the eligible audience into the message ledger, flips status
// and starts the dispatch loop. Eligibility is computed here, at send
// time, never earlier.
func (s *Service) Send(ctx context.Context, id, ownerID string) (*model.Campaign, error) {
	campaign, err := s.loadOwned(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if !campaign.CanSend() {
		return nil, ErrInvalidTransition
	}

	// Dynamic discounts are provisioned up front, one rule per
	// percentage in the range. Any failure aborts before the campaign
	// is touched.
	if campaign.Discount.Type == model.DiscountDynamic {
		for pct := campaign.Discount.MinPercent; pct <= campaign.Discount.MaxPercent; pct++ {
			if _, err := s.discounts.ProvisionRule(ctx, campaign.ID, pct); err != nil {
				return nil, fmt.Errorf("provision discount rule for %d%%: %w", pct, err)
			}
		}
	}

	customers, err := s.repo.EligibleCustomers(ctx, campaign.Audience)
	if err != nil {
		return nil, fmt.Errorf("compute eligible audience: %w", err)
	}

	// Every eligible customer gets a ledger row, so the recipient count
	// always matches the audience count. An unusable phone fails its
	// row visibly instead of silently shrinking the recipient set.
	rows := make([]*model.Message, 0, len(customers))
	badPhones := make(map[string]string)
	now := time.Now().UTC()
	for _, customer := range customers {
		row := &model.Message{
			ID:          uuid.NewString(),
			CampaignID:  campaign.ID,
			CustomerID:  customer.ID,
			Destination: customer.Phone,
			Status:      model.MessageStatusPending,
			CreatedAt:   now,
		}
		if dest, err := provider.NormalizeNumber(customer.Phone); err != nil {
			badPhones[row.ID] = "unusable phone number: " + err.Error()
		} else {
			row.Destination = dest
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, ErrEmptyAudience
	}

	inserted, err := s.repo.InsertMessageBatch(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("provision message ledger: %w", err)
	}
	if err := s.repo.SetCampaignRecipients(ctx, campaign.ID, int64(len(rows))); err != nil {
		return nil, fmt.Errorf("record recipient count: %w", err)
	}

	for rowID, reason := range badPhones {
		if err := s.failRow(ctx, campaign.ID, rowID, reason); err != nil {
			return nil, fmt.Errorf("fail unreachable recipient row: %w", err)
		}
	}

	err = s.repo.TransitionCampaignStatus(ctx, campaign.ID,
		[]model.CampaignStatus{model.CampaignStatusDraft, model.CampaignStatusScheduled},
		model.CampaignStatusSending,
	)
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("start campaign: %w", err)
	}

	s.logger.Info("campaign send started",
		"campaign_id", campaign.ID, "recipients", len(rows), "new_rows", inserted)

	s.startDispatcher(campaign.ID)

	return s.repo.GetCampaignByID(ctx, campaign.ID)
}

// Pause suspends a sending campaign between rows. The dispatcher
// notices on its next status check and parks.
func (s *Service) Pause(ctx context.Context, id, ownerID string) error {
	if _, err := s.loadOwned(ctx, id, ownerID); err != nil {
		return err
	}

	err := s.repo.TransitionCampaignStatus(ctx, id,
		[]model.CampaignStatus{model.CampaignStatusSending},
		model.CampaignStatusPaused,
	)
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return ErrInvalidTransition
		}
		return fmt.Errorf("pause campaign: %w", err)
	}

	s.logger.Info("campaign paused", "campaign_id", id)
	return nil
}

// Resume restarts a paused campaign's dispatch loop. The single-flight
// lock makes a racing double-resume start exactly one dispatcher.
func (s *Service) Resume(ctx context.Context, id, ownerID string) error {
	if _, err := s.loadOwned(ctx, id, ownerID); err != nil {
		return err
	}

	err := s.repo.TransitionCampaignStatus(ctx, id,
		[]model.CampaignStatus{model.CampaignStatusPaused},
		model.CampaignStatusSending,
	)
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return ErrInvalidTransition
		}
		return fmt.Errorf("resume campaign: %w", err)
	}

	s.logger.Info("campaign resumed", "campaign_id", id)
	s.startDispatcher(id)
	return nil
}

// Cancel stops a campaign for good and discards undispatched rows.
// Already-sent rows stay as history.
func (s *Service) Cancel(ctx context.Context, id, ownerID string) error {
	if _, err := s.loadOwned(ctx, id, ownerID); err != nil {
		return err
	}

	err := s.repo.TransitionCampaignStatus(ctx, id,
		[]model.CampaignStatus{
			model.CampaignStatusScheduled,
			model.CampaignStatusSending,
			model.CampaignStatusPaused,
		},
		model.CampaignStatusCancelled,
	)
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return ErrInvalidTransition
		}
		return fmt.Errorf("cancel campaign: %w", err)
	}

	dropped, err := s.repo.DeletePendingMessages(ctx, id)
	if err != nil {
		return fmt.Errorf("discard pending rows: %w", err)
	}

	s.logger.Info("campaign cancelled", "campaign_id", id, "rows_dropped", dropped)
	return nil
}

// TestSend renders the campaign template with placeholder values and
// sends one message to an ad-hoc number, bypassing the ledger.
func (s *Service) TestSend(ctx context.Context, id, ownerID, phone string) (*provider.SendResult, error) {
	campaign, err := s.loadOwned(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	dest, err := provider.NormalizeNumber(phone)
	if err != nil {
		return nil, err
	}

	code := ""
	switch campaign.Discount.Type {
	case model.DiscountStatic:
		code = campaign.Discount.Code
	case model.DiscountDynamic:
		code = fmt.Sprintf("BRINE%d", campaign.Discount.MaxPercent)
	}

	sample := &model.Customer{FirstName: "Test", LastName: "Recipient"}
	body := renderTemplate(campaign.Template, sample, code)
	body = s.links.ShortenURLsInText(ctx, body, campaign.ID, "")

	result, err := s.gateway.Send(ctx, dest, body)
	if err != nil {
		return nil, fmt.Errorf("test send: %w", err)
	}
	return result, nil
}

// Stats returns the campaign's current aggregate counters.
func (s *Service) Stats(ctx context.Context, id, ownerID string) (*model.Campaign, error) {
	return s.loadOwned(ctx, id, ownerID)
}

// RecalculateStats re-derives the counters from the message ledger,
// repairing drift from missed provider webhooks.
func (s *Service) RecalculateStats(ctx context.Context, id, ownerID string) (*model.CampaignStats, error) {
	if _, err := s.loadOwned(ctx, id, ownerID); err != nil {
		return nil, err
	}

	stats, err := s.repo.RecalculateCampaignStats(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrCampaignNotFound) {
			return nil, ErrCampaignNotFound
		}
		return nil, fmt.Errorf("recalculate stats: %w", err)
	}

	s.logger.Info("campaign stats recalculated", "campaign_id", id)
	return stats, nil
}

// ResumeInterrupted restarts dispatchers for campaigns left in sending
// with pending rows by a previous process. Called once at boot.
func (s *Service) ResumeInterrupted(ctx context.Context) error {
	ids, err := s.repo.FindStuckSendingCampaigns(ctx)
	if err != nil {
		return fmt.Errorf("scan for interrupted campaigns: %w", err)
	}

	for _, id := range ids {
		s.logger.Info("resuming interrupted campaign", "campaign_id", id)
		s.startDispatcher(id)
	}
	return nil
}

// Shutdown stops all dispatch loops and waits for them to park.
func (s *Service) Shutdown(ctx context.Context) error {
	s.dispatchCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("campaign dispatchers drained")
		return nil
	case <-ctx.Done():
		s.logger.Warn("campaign dispatcher drain timed out")
		return ctx.Err()
	}
}

// loadOwned fetches a campaign and checks the caller owns it.
func (s *Service) loadOwned(ctx context.Context, id, ownerID string) (*model.Campaign, error) {
	campaign, err := s.repo.GetCampaignByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrCampaignNotFound) {
			return nil, ErrCampaignNotFound
		}
		return nil, err
	}
	if ownerID != "" && campaign.OwnerID != ownerID {
		// Same response as not-found so keys cannot probe each other's
		// campaign ids.
		return nil, ErrCampaignNotFound
	}
	return campaign, nil
}

// validateAudience checks filter shape per audience type.
func validateAudience(filter model.AudienceFilter) error {
	if !filter.Type.IsValid() {
		return ErrInvalidAudience
	}
	if filter.Type == model.AudienceList && filter.ListID == "" {
		return fmt.Errorf("%w: list audience requires list_id", ErrInvalidAudience)
	}
	if filter.Type == model.AudienceMinSpend && filter.MinSpend <= 0 {
		return fmt.Errorf("%w: min_spend audience requires a positive floor", ErrInvalidAudience)
	}
	return nil
}

// validateDiscount checks discount configuration shape.
func validateDiscount(cfg model.DiscountConfig) error {
	switch cfg.Type {
	case model.DiscountNone, "":
		return nil
	case model.DiscountStatic:
		if cfg.Code == "" {
			return fmt.Errorf("%w: static discount requires a code", ErrInvalidDiscount)
		}
		return nil
	case model.DiscountDynamic:
		if cfg.MinPercent < 1 || cfg.MaxPercent > 100 || cfg.MinPercent > cfg.MaxPercent {
			return fmt.Errorf("%w: dynamic discount requires 1 <= min <= max <= 100", ErrInvalidDiscount)
		}
		return nil
	default:
		return ErrInvalidDiscount
	}
}
