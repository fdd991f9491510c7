// Package domain holds the lead aggregate and its value types.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// EngagementType identifies the kind of social interaction a lead had with
// the brand's content.
type EngagementType string

const (
	EngagementLike    EngagementType = "like"
	EngagementComment EngagementType = "comment"
	EngagementShare   EngagementType = "share"
	EngagementFollow  EngagementType = "follow"
	EngagementDMSent  EngagementType = "dm_sent"
	EngagementDMReply EngagementType = "dm_reply"
	// EngagementConversion is the external conversion signal that promotes a
	// lead to customer.
	EngagementConversion EngagementType = "conversion"
	// EngagementChurn is the explicit churn signal. Churned is sticky and is
	// never recomputed away.
	EngagementChurn EngagementType = "churn"
)

// Valid reports whether the engagement type is one of the known kinds.
func (t EngagementType) Valid() bool {
	switch t {
	case EngagementLike, EngagementComment, EngagementShare, EngagementFollow,
		EngagementDMSent, EngagementDMReply, EngagementConversion, EngagementChurn:
		return true
	}
	return false
}

// Grade is the letter bucket derived from a lead's score.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// GradeForScore maps a 0-100 score to a grade. Bands use an inclusive lower
// bound and exclusive upper bound; 100 still grades A.
func GradeForScore(score int) Grade {
	switch {
	case score >= 80:
		return GradeA
	case score >= 60:
		return GradeB
	case score >= 40:
		return GradeC
	case score >= 20:
		return GradeD
	default:
		return GradeF
	}
}

// Status is the lifecycle stage of a lead.
type Status string

const (
	StatusCold     Status = "cold"
	StatusWarm     Status = "warm"
	StatusHot      Status = "hot"
	StatusCustomer Status = "customer"
	StatusChurned  Status = "churned"
)

// FunnelOrder is the canonical ordering of statuses for funnel views.
var FunnelOrder = []Status{StatusCold, StatusWarm, StatusHot, StatusCustomer, StatusChurned}

// Valid reports whether the status is one of the known stages.
func (s Status) Valid() bool {
	switch s {
	case StatusCold, StatusWarm, StatusHot, StatusCustomer, StatusChurned:
		return true
	}
	return false
}

// Identity is the (platform, username) pair that uniquely identifies a lead.
type Identity struct {
	Platform    string
	Username    string
	DisplayName string
}

// SignalSnapshot is the aggregate of a lead's engagement log. The scoring
// engine is a pure function of this snapshot and the current time, never of
// the delta that triggered a recompute.
type SignalSnapshot struct {
	Likes            int
	Comments         int
	Shares           int
	Followed         bool
	DMSent           bool
	DMRepliedAt      *time.Time
	ConvertedAt      *time.Time
	ChurnedAt        *time.Time
	LastEngagementAt *time.Time
}

// Corrupt reports whether the counters are in an impossible state. A corrupt
// snapshot degrades to score 0 instead of failing the aggregation pass.
func (s SignalSnapshot) Corrupt() bool {
	return s.Likes < 0 || s.Comments < 0 || s.Shares < 0
}

// Lead is the canonical per-contact aggregate and single source of truth.
// Score, grade and status are locally owned and never imported from a CRM.
type Lead struct {
	ID          uuid.UUID
	Platform    string
	Username    string
	DisplayName string
	Email       *string
	Phone       *string

	Signals SignalSnapshot

	Score  int
	Grade  Grade
	Status Status

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Engagement is a single timestamped interaction, append-only. The lead's
// counters are a replay-equivalent aggregate of this log.
type Engagement struct {
	ID         uuid.UUID
	LeadID     uuid.UUID
	Type       EngagementType
	Platform   string
	ContentRef *string
	OccurredAt time.Time
	CreatedAt  time.Time
}

// ExternalMapping records the correspondence between a local lead and a CRM
// platform's record. At most one mapping per CRM per lead; a duplicate is a
// reconciliation bug, not a valid state.
type ExternalMapping struct {
	LeadID       uuid.UUID
	CRM          string
	ExternalID   string
	LastSyncedAt time.Time
}
