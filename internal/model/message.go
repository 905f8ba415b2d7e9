package model

import "time"

// MessageStatus represents the lifecycle state of one ledger row.
type MessageStatus string

const (
	MessageStatusPending     MessageStatus = "pending"
	MessageStatusQueued      MessageStatus = "queued"
	MessageStatusSending     MessageStatus = "sending"
	MessageStatusSent        MessageStatus = "sent"
	MessageStatusDelivered   MessageStatus = "delivered"
	MessageStatusFailed      MessageStatus = "failed"
	MessageStatusUndelivered MessageStatus = "undelivered"
	MessageStatusRejected    MessageStatus = "rejected"
)

// messageStatusRank orders the forward-only progression. Failure exits
// (failed, undelivered, rejected) share the top rank with delivered so
// no terminal state can be overwritten by a replayed webhook.
var messageStatusRank = map[MessageStatus]int{
	MessageStatusPending:     0,
	MessageStatusQueued:      1,
	MessageStatusSending:     2,
	MessageStatusSent:        3,
	MessageStatusDelivered:   4,
	MessageStatusFailed:      4,
	MessageStatusUndelivered: 4,
	MessageStatusRejected:    4,
}

// IsValid checks if the status belongs to the ledger enum.
func (s MessageStatus) IsValid() bool {
	_, ok := messageStatusRank[s]
	return ok
}

// IsTerminal reports whether the status ends the row's lifecycle.
func (s MessageStatus) IsTerminal() bool {
	switch s {
	case MessageStatusDelivered, MessageStatusFailed, MessageStatusUndelivered, MessageStatusRejected:
		return true
	}
	return false
}

// IsFailure reports whether the status is a delivery-failure exit.
func (s MessageStatus) IsFailure() bool {
	switch s {
	case MessageStatusFailed, MessageStatusUndelivered, MessageStatusRejected:
		return true
	}
	return false
}

// CanAdvanceTo reports whether moving from s to target respects the
// forward-only invariant.
func (s MessageStatus) CanAdvanceTo(target MessageStatus) bool {
	if s.IsTerminal() {
		return false
	}
	return messageStatusRank[target] > messageStatusRank[s]
}

// TerminalStatuses lists the statuses a row can never leave. Exposed
// for repository queries guarding against webhook replays.
func TerminalStatuses() []string {
	return []string{
		string(MessageStatusDelivered),
		string(MessageStatusFailed),
		string(MessageStatusUndelivered),
		string(MessageStatusRejected),
	}
}

// Message is one per-recipient ledger row. Exactly one row exists per
// (campaign, customer) pair; the unique index in Postgres is what
// prevents double-sends within a campaign.
type Message struct {
	ID                string        `json:"id"`
	CampaignID        string        `json:"campaign_id"`
	CustomerID        string        `json:"customer_id"`
	Destination       string        `json:"destination"`
	Body              string        `json:"body"`
	ProviderMessageID string        `json:"provider_message_id,omitempty"`
	Status            MessageStatus `json:"status"`
	ErrorMessage      string        `json:"error_message,omitempty"`
	DiscountCode      string        `json:"discount_code,omitempty"`
	Cost              float64       `json:"cost,omitempty"`
	Carrier           string        `json:"carrier,omitempty"`

	Clicked     bool       `json:"clicked"`
	ClickedAt   *time.Time `json:"clicked_at,omitempty"`
	Converted   bool       `json:"converted"`
	ConvertedAt *time.Time `json:"converted_at,omitempty"`
	OrderID     string     `json:"order_id,omitempty"`
	OrderTotal  float64    `json:"order_total,omitempty"`

	QueuedAt    *time.Time `json:"queued_at,omitempty"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
