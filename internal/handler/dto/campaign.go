// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/brinecast/brinecast/internal/model"
)

// CreateCampaignRequest represents the request body for creating a campaign.
type CreateCampaignRequest struct {
	Name        string               `json:"name"`
	Template    string               `json:"template"`
	Audience    model.AudienceFilter `json:"audience"`
	Discount    model.DiscountConfig `json:"discount"`
	ScheduledAt *time.Time           `json:"scheduled_at,omitempty"`
}

// UpdateCampaignRequest represents the request body for updating a campaign.
// Nil fields are left unchanged.
type UpdateCampaignRequest struct {
	Name          *string               `json:"name,omitempty"`
	Template      *string               `json:"template,omitempty"`
	Audience      *model.AudienceFilter `json:"audience,omitempty"`
	Discount      *model.DiscountConfig `json:"discount,omitempty"`
	ScheduledAt   *time.Time            `json:"scheduled_at,omitempty"`
	ClearSchedule bool                  `json:"clear_schedule,omitempty"`
}

// TestSendRequest represents the request body for a campaign test send.
type TestSendRequest struct {
	Phone string `json:"phone"`
}

// CampaignResponse represents a campaign in API responses.
type CampaignResponse struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Template    string               `json:"template"`
	Audience    model.AudienceFilter `json:"audience"`
	Discount    model.DiscountConfig `json:"discount"`
	Status      string               `json:"status"`
	Notes       string               `json:"notes,omitempty"`
	Stats       StatsResponse        `json:"stats"`
	ScheduledAt *time.Time           `json:"scheduled_at,omitempty"`
	StartedAt   *time.Time           `json:"started_at,omitempty"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// StatsResponse represents campaign counters plus derived rates.
type StatsResponse struct {
	Recipients     int64   `json:"recipients"`
	Sent           int64   `json:"sent"`
	Delivered      int64   `json:"delivered"`
	Failed         int64   `json:"failed"`
	Clicked        int64   `json:"clicked"`
	Converted      int64   `json:"converted"`
	Revenue        float64 `json:"revenue"`
	DeliveryRate   float64 `json:"delivery_rate"`
	ClickRate      float64 `json:"click_rate"`
	ConversionRate float64 `json:"conversion_rate"`
}

// CampaignListResponse represents a paginated list of campaigns.
type CampaignListResponse struct {
	Data       []CampaignResponse `json:"data"`
	Pagination *Pagination        `json:"pagination"`
}

// Pagination provides cursor-based pagination info.
type Pagination struct {
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// AudienceCountResponse reports the audience preview size.
type AudienceCountResponse struct {
	Count int `json:"count"`
}

// TestSendResponse reports the outcome of a test send.
type TestSendResponse struct {
	Success           bool   `json:"success"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
	Error             string `json:"error,omitempty"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ToStatsResponse converts campaign stats to their response form.
func ToStatsResponse(s model.CampaignStats) StatsResponse {
	return StatsResponse{
		Recipients:     s.Recipients,
		Sent:           s.Sent,
		Delivered:      s.Delivered,
		Failed:         s.Failed,
		Clicked:        s.Clicked,
		Converted:      s.Converted,
		Revenue:        s.Revenue,
		DeliveryRate:   s.DeliveryRate(),
		ClickRate:      s.ClickRate(),
		ConversionRate: s.ConversionRate(),
	}
}

// ToCampaignResponse converts a Campaign model to CampaignResponse DTO.
func ToCampaignResponse(c *model.Campaign) *CampaignResponse {
	return &CampaignResponse{
		ID:          c.ID,
		Name:        c.Name,
		Template:    c.Template,
		Audience:    c.Audience,
		Discount:    c.Discount,
		Status:      string(c.Status),
		Notes:       c.Notes,
		Stats:       ToStatsResponse(c.Stats),
		ScheduledAt: c.ScheduledAt,
		StartedAt:   c.StartedAt,
		CompletedAt: c.CompletedAt,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

// ToCampaignListResponse converts a slice of Campaign models to CampaignListResponse.
func ToCampaignListResponse(campaigns []*model.Campaign, nextCursor string, hasMore bool) *CampaignListResponse {
	responses := make([]CampaignResponse, len(campaigns))
	for i, c := range campaigns {
		responses[i] = *ToCampaignResponse(c)
	}
	return &CampaignListResponse{
		Data: responses,
		Pagination: &Pagination{
			NextCursor: nextCursor,
			HasMore:    hasMore,
		},
	}
}
