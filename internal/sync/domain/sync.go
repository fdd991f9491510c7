// Package domain holds the sync bounded context's types: CRM platforms,
// connection state, sync jobs and sealed credentials.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// CRM identifies a supported CRM platform.
type CRM string

const (
	CRMSalesforce CRM = "salesforce"
	CRMHubSpot    CRM = "hubspot"
)

// All lists the supported CRM platforms.
var All = []CRM{CRMSalesforce, CRMHubSpot}

// Valid reports whether the CRM is supported.
func (c CRM) Valid() bool {
	return c == CRMSalesforce || c == CRMHubSpot
}

// Direction is the transfer direction of a sync job.
type Direction string

const (
	DirectionPush Direction = "push"
	DirectionPull Direction = "pull"
)

// Valid reports whether the direction is known.
func (d Direction) Valid() bool {
	return d == DirectionPush || d == DirectionPull
}

// ConnectionState is the lifecycle state of a CRM connection.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateSyncing      ConnectionState = "syncing"
	StateError        ConnectionState = "error"
)

// JobStatus is the terminal or running status of a sync job.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobPartial   JobStatus = "partial"
	JobFailed    JobStatus = "failed"
)

// RecordError captures one record-level failure inside a sync job. Record
// failures never abort the batch; they are collected and reported here.
type RecordError struct {
	LeadID     *uuid.UUID `json:"leadId,omitempty"`
	ExternalID string     `json:"externalId,omitempty"`
	Message    string     `json:"message"`
}

// SyncJob is one push or pull run against a CRM. Created, Updated and Failed
// always sum to the number of records attempted.
type SyncJob struct {
	ID        uuid.UUID
	Platform  CRM
	Direction Direction
	Status    JobStatus

	Created int
	Updated int
	Failed  int

	Errors  []RecordError
	Failure string // job-level failure message, empty unless the job aborted

	StartedAt  time.Time
	FinishedAt *time.Time
}

// Attempted is the total number of records the job touched.
func (j SyncJob) Attempted() int {
	return j.Created + j.Updated + j.Failed
}

// Credential is an API credential for a CRM platform. The secret is sealed at
// rest and only opened in memory when a connector needs it.
type Credential struct {
	Platform  CRM
	BaseURL   string // empty means the platform default
	APIKey    string // open form, never persisted as-is
	CreatedAt time.Time
	UpdatedAt time.Time
}
