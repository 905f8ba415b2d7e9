// Package model defines domain entities for the application.
package model

import "time"

// CampaignStatus represents the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusScheduled CampaignStatus = "scheduled"
	CampaignStatusSending   CampaignStatus = "sending"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusSent      CampaignStatus = "sent"
	CampaignStatusCancelled CampaignStatus = "cancelled"
	CampaignStatusFailed    CampaignStatus = "failed"
)

// campaignTransitions enumerates the legal status moves.
// paused is a reversible sub-state of sending; sent, cancelled and
// failed are terminal.
var campaignTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignStatusDraft:     {CampaignStatusScheduled, CampaignStatusSending},
	CampaignStatusScheduled: {CampaignStatusSending, CampaignStatusCancelled},
	CampaignStatusSending:   {CampaignStatusPaused, CampaignStatusSent, CampaignStatusCancelled, CampaignStatusFailed},
	CampaignStatusPaused:    {CampaignStatusSending, CampaignStatusCancelled, CampaignStatusFailed},
}

// CanTransitionTo reports whether moving from s to target is legal.
func (s CampaignStatus) CanTransitionTo(target CampaignStatus) bool {
	for _, allowed := range campaignTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status permits no further transitions.
func (s CampaignStatus) IsTerminal() bool {
	switch s {
	case CampaignStatusSent, CampaignStatusCancelled, CampaignStatusFailed:
		return true
	}
	return false
}

// AudienceType selects which eligibility predicate a campaign targets.
type AudienceType string

const (
	// AudienceAll targets every subscribed customer.
	AudienceAll AudienceType = "all"
	// AudienceNotConverted targets customers with no recorded orders.
	AudienceNotConverted AudienceType = "not_converted"
	// AudienceList targets members of a specific list.
	AudienceList AudienceType = "list"
	// AudienceMinSpend targets customers above a lifetime-spend floor.
	AudienceMinSpend AudienceType = "min_spend"
)

// IsValid checks if the audience type is known.
func (a AudienceType) IsValid() bool {
	switch a {
	case AudienceAll, AudienceNotConverted, AudienceList, AudienceMinSpend:
		return true
	}
	return false
}

// AudienceFilter describes the recipient predicate for a campaign.
// Eligibility is recomputed against the customer population at call
// time, never snapshotted before send.
type AudienceFilter struct {
	Type     AudienceType `json:"type"`
	ListID   string       `json:"list_id,omitempty"`
	MinSpend float64      `json:"min_spend,omitempty"`
}

// DiscountType selects the discount policy of a campaign.
type DiscountType string

const (
	DiscountNone DiscountType = "none"
	// DiscountStatic uses one shared code for every recipient.
	DiscountStatic DiscountType = "static"
	// DiscountDynamic assigns each recipient a random percentage in
	// [MinPercent, MaxPercent]; one rule per percentage is provisioned
	// before dispatch.
	DiscountDynamic DiscountType = "dynamic"
)

// DiscountConfig describes the discount policy of a campaign.
type DiscountConfig struct {
	Type       DiscountType `json:"type"`
	Code       string       `json:"code,omitempty"`
	MinPercent int          `json:"min_percent,omitempty"`
	MaxPercent int          `json:"max_percent,omitempty"`
}

// CampaignStats holds aggregate counters for a campaign. The message
// ledger is the source of truth; these are incrementally maintained and
// repaired by recalculation when webhooks are missed.
type CampaignStats struct {
	Recipients int64   `json:"recipients"`
	Sent       int64   `json:"sent"`
	Delivered  int64   `json:"delivered"`
	Failed     int64   `json:"failed"`
	Clicked    int64   `json:"clicked"`
	Converted  int64   `json:"converted"`
	Revenue    float64 `json:"revenue"`
}

// DeliveryRate returns delivered/sent as a percentage.
func (s CampaignStats) DeliveryRate() float64 {
	if s.Sent == 0 {
		return 0
	}
	return float64(s.Delivered) / float64(s.Sent) * 100
}

// ClickRate returns clicked/delivered as a percentage.
func (s CampaignStats) ClickRate() float64 {
	if s.Delivered == 0 {
		return 0
	}
	return float64(s.Clicked) / float64(s.Delivered) * 100
}

// ConversionRate returns converted/delivered as a percentage.
func (s CampaignStats) ConversionRate() float64 {
	if s.Delivered == 0 {
		return 0
	}
	return float64(s.Converted) / float64(s.Delivered) * 100
}

// Campaign represents a configured bulk message send job.
type Campaign struct {
	ID          string         `json:"id"`
	OwnerID     string         `json:"owner_id"`
	Name        string         `json:"name"`
	Template    string         `json:"template"`
	Audience    AudienceFilter `json:"audience"`
	Discount    DiscountConfig `json:"discount"`
	Status      CampaignStatus `json:"status"`
	Notes       string         `json:"notes,omitempty"`
	Stats       CampaignStats  `json:"stats"`
	ScheduledAt *time.Time     `json:"scheduled_at,omitempty"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// IsMutable reports whether campaign configuration may still change.
// Only draft and scheduled campaigns accept edits.
func (c *Campaign) IsMutable() bool {
	return c.Status == CampaignStatusDraft || c.Status == CampaignStatusScheduled
}

// CanSend reports whether the campaign may begin dispatching.
func (c *Campaign) CanSend() bool {
	return c.Status == CampaignStatusDraft || c.Status == CampaignStatusScheduled
}

// CanCancel reports whether cancel is a legal action right now.
func (c *Campaign) CanCancel() bool {
	switch c.Status {
	case CampaignStatusSending, CampaignStatusPaused, CampaignStatusScheduled:
		return true
	}
	return false
}
