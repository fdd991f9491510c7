// Package transport defines the request/response DTOs for the sync module.
package transport

import (
	"time"

	"leadpulse_backend/internal/sync/domain"

	"github.com/google/uuid"
)

// IntegrationActionRequest drives POST /integrations: connect stores a
// credential, sync-to pushes local leads, import-from pulls remote contacts.
type IntegrationActionRequest struct {
	Action   string `json:"action" validate:"required,oneof=connect sync-to import-from"`
	Platform string `json:"platform" validate:"required,oneof=salesforce hubspot all"`
	APIKey   string `json:"apiKey" validate:"omitempty,min=8,max=512"`
	BaseURL  string `json:"baseUrl" validate:"omitempty,url,max=255"`
}

// ConnectRequest stores a CRM credential and opens the connection.
type ConnectRequest struct {
	Platform string `json:"platform" validate:"required,oneof=salesforce hubspot"`
	APIKey   string `json:"apiKey" validate:"required,min=8,max=512"`
	BaseURL  string `json:"baseUrl" validate:"omitempty,url,max=255"`
}

// SyncRequest triggers one sync run.
type SyncRequest struct {
	Platform  string `json:"platform" validate:"required,oneof=salesforce hubspot all"`
	Direction string `json:"direction" validate:"required,oneof=push pull"`
}

// JobResponse is the response DTO for a sync job.
type JobResponse struct {
	ID        uuid.UUID            `json:"id"`
	Platform  string               `json:"platform"`
	Direction string               `json:"direction"`
	Status    string               `json:"status"`
	Created   int                  `json:"created"`
	Updated   int                  `json:"updated"`
	Failed    int                  `json:"failed"`
	Errors    []domain.RecordError `json:"errors,omitempty"`
	Failure   string               `json:"failure,omitempty"`

	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// JobListResponse is a page of sync jobs.
type JobListResponse struct {
	Items []JobResponse `json:"items"`
}

// SyncRunResponse reports the jobs started by a sync request.
type SyncRunResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// FromJob maps a domain job to its response DTO.
func FromJob(job domain.SyncJob) JobResponse {
	return JobResponse{
		ID:         job.ID,
		Platform:   string(job.Platform),
		Direction:  string(job.Direction),
		Status:     string(job.Status),
		Created:    job.Created,
		Updated:    job.Updated,
		Failed:     job.Failed,
		Errors:     job.Errors,
		Failure:    job.Failure,
		StartedAt:  job.StartedAt,
		FinishedAt: job.FinishedAt,
	}
}

// FromJobs maps a slice of domain jobs to response DTOs.
func FromJobs(jobs []domain.SyncJob) []JobResponse {
	items := make([]JobResponse, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, FromJob(job))
	}
	return items
}
