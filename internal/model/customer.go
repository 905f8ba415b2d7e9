package model

import "time"

// ContactStatus represents whether a customer may be contacted.
type ContactStatus string

const (
	ContactStatusActive       ContactStatus = "active"
	ContactStatusBounced      ContactStatus = "bounced"
	ContactStatusUnsubscribed ContactStatus = "unsubscribed"
)

// BounceKind classifies a delivery-failure signal from the provider.
type BounceKind string

const (
	// BounceSoft is a temporary failure (full mailbox, carrier
	// congestion). Escalates to suppression after repeated hits.
	BounceSoft BounceKind = "soft"
	// BounceHard is a permanent failure (dead number, invalid
	// address). Suppresses immediately.
	BounceHard BounceKind = "hard"
)

// BounceInfo tracks per-customer bounce state. Invariant: the
// customer's ContactStatus is bounced iff IsBounced is true.
type BounceInfo struct {
	Count          int        `json:"count"`
	IsBounced      bool       `json:"is_bounced"`
	LastKind       BounceKind `json:"last_kind,omitempty"`
	LastReason     string     `json:"last_reason,omitempty"`
	LastCampaignID string     `json:"last_campaign_id,omitempty"`
	LastBouncedAt  *time.Time `json:"last_bounced_at,omitempty"`
}

// Customer is a message recipient with engagement and suppression state.
type Customer struct {
	ID         string        `json:"id"`
	Phone      string        `json:"phone"`
	Email      string        `json:"email,omitempty"`
	FirstName  string        `json:"first_name,omitempty"`
	LastName   string        `json:"last_name,omitempty"`
	Status     ContactStatus `json:"status"`
	Subscribed bool          `json:"subscribed"`
	OrderCount int           `json:"order_count"`
	TotalSpend float64       `json:"total_spend"`
	BounceInfo BounceInfo    `json:"bounce_info"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// IsContactable reports whether campaign sends may target this customer.
func (c *Customer) IsContactable() bool {
	return c.Subscribed && c.Status == ContactStatusActive
}

// FullName joins first and last name for template rendering.
func (c *Customer) FullName() string {
	switch {
	case c.FirstName != "" && c.LastName != "":
		return c.FirstName + " " + c.LastName
	case c.FirstName != "":
		return c.FirstName
	default:
		return c.LastName
	}
}
