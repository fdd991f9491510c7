package repository

import (
	"context"
	"time"

	"leadpulse_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// =====================================
// Segregated Interfaces (Interface Segregation Principle)
// =====================================

// LeadReader provides read-only access to lead data.
type LeadReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	GetByIdentity(ctx context.Context, platform, username string) (domain.Lead, error)
	List(ctx context.Context, params ListParams) ([]domain.Lead, error)
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
}

// LeadWriter provides write operations for the lead aggregate.
type LeadWriter interface {
	Upsert(ctx context.Context, identity domain.Identity) (domain.Lead, bool, error)
	UpdateScore(ctx context.Context, id uuid.UUID, score int, grade domain.Grade, status domain.Status) error
	UpdateContact(ctx context.Context, id uuid.UUID, params UpdateContactParams) error
	SetConverted(ctx context.Context, id uuid.UUID, at time.Time) error
}

// EngagementAppender appends to the engagement log and keeps the lead's
// counters replay-equivalent with it.
type EngagementAppender interface {
	AppendEngagement(ctx context.Context, engagement domain.Engagement) error
}

// StatsReader provides aggregate views over the lead store.
type StatsReader interface {
	GradeDistribution(ctx context.Context) (map[domain.Grade]int, float64, int, error)
	StatusCounts(ctx context.Context) (map[domain.Status]int, error)
	TopByScore(ctx context.Context, limit int) ([]domain.Lead, error)
}

// MappingStore manages external CRM record mappings.
type MappingStore interface {
	GetMapping(ctx context.Context, leadID uuid.UUID, crm string) (domain.ExternalMapping, error)
	GetMappingByExternalID(ctx context.Context, crm, externalID string) (domain.ExternalMapping, error)
	SaveMapping(ctx context.Context, mapping domain.ExternalMapping) error
	MarkSynced(ctx context.Context, leadID uuid.UUID, crm string, at time.Time) error
	CountMappings(ctx context.Context, crm string) (int, error)
	ListForPush(ctx context.Context, crm string, cursor PushCursor, limit int) ([]LeadWithMapping, error)
	FindByEmailOrUsername(ctx context.Context, email, username string) (domain.Lead, error)
}

// LeadsRepository is the full repository contract used by the leads services.
type LeadsRepository interface {
	LeadReader
	LeadWriter
	EngagementAppender
	StatsReader
	MappingStore
}

// ListParams filters lead listings.
type ListParams struct {
	Status   *domain.Status
	Platform *string
	Search   string
	Limit    int
}

// UpdateContactParams carries remote-owned contact fields applied on pull.
// Score, grade and status are locally owned and deliberately absent.
type UpdateContactParams struct {
	DisplayName *string
	Email       *string
	Phone       *string
}

// LeadWithMapping pairs a lead with its mapping for a CRM, if any.
type LeadWithMapping struct {
	Lead       domain.Lead
	ExternalID string // empty when the lead has no mapping yet
}

// PushCursor is a keyset position in the push ordering (updated_at, id). The
// zero value starts from the beginning. Callers advance it with the last row
// of each page so records that stay due (e.g. failed pushes) are stepped
// past instead of re-listed.
type PushCursor struct {
	UpdatedAt time.Time
	ID        uuid.UUID
}
