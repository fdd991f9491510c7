// Package service implements the lead store: ingest of engagement events,
// per-lead serialized score recomputation and read access for callers.
package service

import (
	"context"
	"errors"
	"time"

	"leadpulse_backend/internal/events"
	"leadpulse_backend/internal/leads/domain"
	"leadpulse_backend/internal/leads/repository"
	"leadpulse_backend/internal/leads/scoring"
	"leadpulse_backend/platform/apperr"
	"leadpulse_backend/platform/logger"

	"github.com/google/uuid"
)

// Service is the canonical lead store. All mutations flow through it so the
// scoring recompute stays serialized per lead.
type Service struct {
	repo    repository.LeadsRepository
	bus     events.Bus
	scoring scoring.Config
	locks   *keyedMutex
	log     *logger.Logger
	now     func() time.Time
}

// New creates the lead service.
func New(repo repository.LeadsRepository, bus events.Bus, scoringCfg scoring.Config, log *logger.Logger) *Service {
	return &Service{
		repo:    repo,
		bus:     bus,
		scoring: scoringCfg,
		locks:   newKeyedMutex(),
		log:     log,
		now:     time.Now,
	}
}

// Upsert returns the lead for an identity, creating it when unseen. It never
// errors on an unknown identity.
func (s *Service) Upsert(ctx context.Context, identity domain.Identity) (domain.Lead, error) {
	if identity.Platform == "" || identity.Username == "" {
		return domain.Lead{}, apperr.Validation("platform and username are required")
	}

	lead, created, err := s.repo.Upsert(ctx, identity)
	if err != nil {
		return domain.Lead{}, err
	}

	if created && s.bus != nil {
		s.bus.Publish(ctx, events.LeadCreated{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    lead.ID,
			Platform:  lead.Platform,
			Username:  lead.Username,
		})
	}

	return lead, nil
}

// RecordEngagement appends an engagement for the identity (creating the lead
// when unseen), updates the counters and recomputes the score. After it
// returns, a Get on the same lead reflects the event.
func (s *Service) RecordEngagement(ctx context.Context, identity domain.Identity, engType domain.EngagementType, contentRef *string) (domain.Lead, error) {
	if !engType.Valid() {
		return domain.Lead{}, apperr.Validation("unknown engagement type").WithDetails(string(engType))
	}

	lead, err := s.Upsert(ctx, identity)
	if err != nil {
		return domain.Lead{}, err
	}

	unlock := s.locks.Lock(lead.ID)
	defer unlock()

	engagement := domain.Engagement{
		ID:         uuid.New(),
		LeadID:     lead.ID,
		Type:       engType,
		Platform:   identity.Platform,
		ContentRef: contentRef,
		OccurredAt: s.now().UTC(),
	}
	if err := s.repo.AppendEngagement(ctx, engagement); err != nil {
		return domain.Lead{}, err
	}

	updated, err := s.recomputeLocked(ctx, lead.ID)
	if err != nil {
		return domain.Lead{}, err
	}

	if s.bus != nil {
		s.bus.Publish(ctx, events.EngagementRecorded{
			BaseEvent:    events.NewBaseEvent(),
			LeadID:       lead.ID,
			EngagementID: engagement.ID,
			Type:         string(engType),
			Platform:     identity.Platform,
		})
	}

	return updated, nil
}

// Get returns a lead by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	lead, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Lead{}, apperr.NotFound("lead not found")
	}
	return lead, err
}

// List returns leads matching the filter.
func (s *Service) List(ctx context.Context, params repository.ListParams) ([]domain.Lead, error) {
	return s.repo.List(ctx, params)
}

// Recalculate recomputes one lead's score under its lock. Calling it with no
// new engagements is a no-op.
func (s *Service) Recalculate(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	unlock := s.locks.Lock(id)
	defer unlock()
	return s.recomputeLocked(ctx, id)
}

// RecalculateAll rescores every lead and returns how many changed.
func (s *Service) RecalculateAll(ctx context.Context) (int, error) {
	ids, err := s.repo.ListIDs(ctx)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return updated, err
		}

		before, err := s.repo.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return updated, err
		}

		after, err := s.Recalculate(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return updated, err
		}

		if after.Score != before.Score || after.Grade != before.Grade || after.Status != before.Status {
			updated++
		}
	}

	return updated, nil
}

// recomputeLocked loads the current snapshot, computes the score and persists
// it. Callers must hold the per-lead lock. The computation depends only on
// the snapshot and the clock, so redundant calls are harmless.
func (s *Service) recomputeLocked(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	lead, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Lead{}, apperr.NotFound("lead not found")
		}
		return domain.Lead{}, err
	}

	result := scoring.Compute(lead.Signals, s.now().UTC(), s.scoring)
	if lead.Signals.Corrupt() && s.log != nil {
		s.log.Warn("corrupt signal counters, degraded to zero score", "leadId", id)
	}

	if result.Score == lead.Score && result.Grade == lead.Grade && result.Status == lead.Status {
		return lead, nil
	}

	if err := s.repo.UpdateScore(ctx, id, result.Score, result.Grade, result.Status); err != nil {
		return domain.Lead{}, err
	}

	if s.bus != nil {
		s.bus.Publish(ctx, events.LeadScoreChanged{
			BaseEvent:     events.NewBaseEvent(),
			LeadID:        id,
			Score:         result.Score,
			Grade:         string(result.Grade),
			Status:        string(result.Status),
			PreviousScore: lead.Score,
		})
	}

	previous := lead
	previous.Score = result.Score
	previous.Grade = result.Grade
	previous.Status = result.Status
	return previous, nil
}
