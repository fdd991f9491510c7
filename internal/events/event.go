// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"leadpulse_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Leads Domain Events
// =============================================================================

// LeadCreated is published when a previously unseen identity produces its
// first engagement.
type LeadCreated struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	Platform string    `json:"platform"`
	Username string    `json:"username"`
}

func (e LeadCreated) EventName() string { return "leads.lead.created" }

// EngagementRecorded is published after an engagement has been appended and
// the lead's counters updated.
type EngagementRecorded struct {
	BaseEvent
	LeadID       uuid.UUID `json:"leadId"`
	EngagementID uuid.UUID `json:"engagementId"`
	Type         string    `json:"type"`
	Platform     string    `json:"platform"`
}

func (e EngagementRecorded) EventName() string { return "leads.engagement.recorded" }

// LeadScoreChanged is published when a recompute produces a different
// score, grade or status than the lead previously had.
type LeadScoreChanged struct {
	BaseEvent
	LeadID        uuid.UUID `json:"leadId"`
	Score         int       `json:"score"`
	Grade         string    `json:"grade"`
	Status        string    `json:"status"`
	PreviousScore int       `json:"previousScore"`
}

func (e LeadScoreChanged) EventName() string { return "leads.score.changed" }

// =============================================================================
// Sync Domain Events
// =============================================================================

// SyncJobCompleted is published when a push or pull job finishes, whether
// fully or partially.
type SyncJobCompleted struct {
	BaseEvent
	JobID     uuid.UUID `json:"jobId"`
	Platform  string    `json:"platform"`
	Direction string    `json:"direction"`
	Created   int       `json:"created"`
	Updated   int       `json:"updated"`
	Failed    int       `json:"failed"`
	Failure   string    `json:"failure,omitempty"`
}

func (e SyncJobCompleted) EventName() string { return "sync.job.completed" }

// ConnectionStateChanged is published when a CRM connection transitions
// between states (e.g. Connected -> Error on an auth failure).
type ConnectionStateChanged struct {
	BaseEvent
	Platform string `json:"platform"`
	State    string `json:"state"`
}

func (e ConnectionStateChanged) EventName() string { return "sync.connection.state_changed" }
