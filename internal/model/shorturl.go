package model

import (
	"strconv"
	"time"
)

// ShortURLSource records what created a short URL.
type ShortURLSource string

const (
	ShortURLSourceCampaign ShortURLSource = "campaign"
	ShortURLSourceManual   ShortURLSource = "manual"
	ShortURLSourceTest     ShortURLSource = "test"
)

// Click is one entry in a short URL's bounded click history.
type Click struct {
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent,omitempty"`
	Referer   string    `json:"referer,omitempty"`
	At        time.Time `json:"at"`
}

// Conversion records the order attributed to a short URL. Recorded at
// most once; later conversions for the same code are ignored.
type Conversion struct {
	OrderID string    `json:"order_id"`
	Amount  float64   `json:"amount"`
	At      time.Time `json:"at"`
}

// ShortURL maps a random code to a destination URL with click and
// uniqueness counters. Click history and the seen-IP set are bounded:
// history keeps the most recent entries and the IP set evicts FIFO at
// its cap, so uniqueness is approximate past the cap.
type ShortURL struct {
	ID          string         `json:"id"`
	Code        string         `json:"code"`
	OriginalURL string         `json:"original_url"`
	Source      ShortURLSource `json:"source"`
	CampaignID  string         `json:"campaign_id,omitempty"`
	MessageID   string         `json:"message_id,omitempty"`
	Active      bool           `json:"active"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`

	Clicks       int64        `json:"clicks"`
	UniqueClicks int64        `json:"unique_clicks"`
	ClickHistory []Click      `json:"click_history,omitempty"`
	SeenIPs      []string     `json:"-"`
	Conversion   *Conversion  `json:"conversion,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsExpired returns true if the short URL has passed its optional expiry.
func (s *ShortURL) IsExpired() bool {
	return s.ExpiresAt != nil && time.Now().After(*s.ExpiresAt)
}

// IsResolvable reports whether a redirect through this code should work.
func (s *ShortURL) IsResolvable() bool {
	return s.Active && !s.IsExpired()
}

// HasSeenIP reports whether ip is in the bounded seen set.
func (s *ShortURL) HasSeenIP(ip string) bool {
	for _, seen := range s.SeenIPs {
		if seen == ip {
			return true
		}
	}
	return false
}

// CachedShortURL represents short URL data stored in Redis for the
// redirect hot path. Uses string types for Redis hash compatibility.
type CachedShortURL struct {
	OriginalURL string `redis:"original_url"`
	Active      string `redis:"active"`     // "1" or "0"
	ExpiresAt   string `redis:"expires_at"` // Unix timestamp or empty
	CampaignID  string `redis:"campaign_id"`
	MessageID   string `redis:"message_id"`
}

// ToShortURL converts CachedShortURL to the domain model. Only the
// fields the redirect path needs are populated.
func (c *CachedShortURL) ToShortURL(code string) *ShortURL {
	s := &ShortURL{
		Code:        code,
		OriginalURL: c.OriginalURL,
		Active:      c.Active == "1",
		CampaignID:  c.CampaignID,
		MessageID:   c.MessageID,
	}

	if c.ExpiresAt != "" {
		if ts, err := strconv.ParseInt(c.ExpiresAt, 10, 64); err == nil {
			t := time.Unix(ts, 0)
			s.ExpiresAt = &t
		}
	}

	return s
}

// ToCachedShortURL converts the domain model to its cache form.
func (s *ShortURL) ToCachedShortURL() *CachedShortURL {
	cached := &CachedShortURL{
		OriginalURL: s.OriginalURL,
		Active:      boolToString(s.Active),
		CampaignID:  s.CampaignID,
		MessageID:   s.MessageID,
	}

	if s.ExpiresAt != nil {
		cached.ExpiresAt = strconv.FormatInt(s.ExpiresAt.Unix(), 10)
	}

	return cached
}

// boolToString converts boolean to "1" or "0".
func boolToString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
