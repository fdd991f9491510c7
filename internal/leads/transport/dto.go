// Package transport defines the request/response DTOs for the leads module.
package transport

import (
	"time"

	"leadpulse_backend/internal/leads/domain"
	"leadpulse_backend/internal/leads/stats"

	"github.com/google/uuid"
)

// RecordEngagementRequest ingests one engagement event.
type RecordEngagementRequest struct {
	Platform    string  `json:"platform" validate:"required,min=1,max=50"`
	Username    string  `json:"username" validate:"required,min=1,max=255"`
	DisplayName string  `json:"displayName" validate:"max=255"`
	Type        string  `json:"type" validate:"required,min=1,max=30"`
	ContentRef  *string `json:"contentRef,omitempty" validate:"omitempty,max=500"`
}

// ScoringActionRequest triggers a scoring maintenance action.
type ScoringActionRequest struct {
	Action string     `json:"action" validate:"required,oneof=recalculate recalculate_all"`
	LeadID *uuid.UUID `json:"leadId,omitempty"`
}

// LeadResponse is the response DTO for a single lead.
type LeadResponse struct {
	ID          uuid.UUID `json:"id"`
	Platform    string    `json:"platform"`
	Username    string    `json:"username"`
	DisplayName string    `json:"displayName,omitempty"`
	Email       *string   `json:"email,omitempty"`
	Phone       *string   `json:"phone,omitempty"`

	Score  int    `json:"score"`
	Grade  string `json:"grade"`
	Status string `json:"status"`

	Signals SignalsResponse `json:"signals"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SignalsResponse exposes the engagement counters behind a lead's score.
type SignalsResponse struct {
	Likes            int        `json:"likes"`
	Comments         int        `json:"comments"`
	Shares           int        `json:"shares"`
	Followed         bool       `json:"followed"`
	DMSent           bool       `json:"dmSent"`
	DMRepliedAt      *time.Time `json:"dmRepliedAt,omitempty"`
	ConvertedAt      *time.Time `json:"convertedAt,omitempty"`
	ChurnedAt        *time.Time `json:"churnedAt,omitempty"`
	LastEngagementAt *time.Time `json:"lastEngagementAt,omitempty"`
}

// LeadListResponse is a page of leads.
type LeadListResponse struct {
	Items []LeadResponse `json:"items"`
	Total int            `json:"total"`
}

// ScoringOverviewResponse is the dashboard payload: grade distribution,
// lifecycle funnel and the current top leads.
type ScoringOverviewResponse struct {
	Distribution stats.Distribution  `json:"distribution"`
	Funnel       []stats.FunnelStage `json:"funnel"`
	HotLeads     []LeadResponse      `json:"hotLeads"`
}

// RecalculateResponse reports the outcome of a scoring action.
type RecalculateResponse struct {
	Updated int           `json:"updated"`
	Lead    *LeadResponse `json:"lead,omitempty"`
}

// FromLead maps a domain lead to its response DTO.
func FromLead(lead domain.Lead) LeadResponse {
	return LeadResponse{
		ID:          lead.ID,
		Platform:    lead.Platform,
		Username:    lead.Username,
		DisplayName: lead.DisplayName,
		Email:       lead.Email,
		Phone:       lead.Phone,
		Score:       lead.Score,
		Grade:       string(lead.Grade),
		Status:      string(lead.Status),
		Signals: SignalsResponse{
			Likes:            lead.Signals.Likes,
			Comments:         lead.Signals.Comments,
			Shares:           lead.Signals.Shares,
			Followed:         lead.Signals.Followed,
			DMSent:           lead.Signals.DMSent,
			DMRepliedAt:      lead.Signals.DMRepliedAt,
			ConvertedAt:      lead.Signals.ConvertedAt,
			ChurnedAt:        lead.Signals.ChurnedAt,
			LastEngagementAt: lead.Signals.LastEngagementAt,
		},
		CreatedAt: lead.CreatedAt,
		UpdatedAt: lead.UpdatedAt,
	}
}

// FromLeads maps a slice of domain leads to response DTOs.
func FromLeads(leads []domain.Lead) []LeadResponse {
	items := make([]LeadResponse, 0, len(leads))
	for _, lead := range leads {
		items = append(items, FromLead(lead))
	}
	return items
}
