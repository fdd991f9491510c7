// Package stats provides cached aggregate views over the lead store:
// grade distribution, funnel counts and the hot-lead list.
package stats

import (
	"context"
	"strconv"
	"sync"
	"time"

	"leadpulse_backend/internal/leads/domain"
	"leadpulse_backend/internal/leads/repository"

	"golang.org/x/sync/singleflight"
)

const defaultTTL = 30 * time.Second

// Distribution summarizes lead scores by grade.
type Distribution struct {
	Counts  map[domain.Grade]int `json:"counts"`
	Average float64              `json:"averageScore"`
	Total   int                  `json:"total"`
}

// FunnelStage is one step of the lifecycle funnel.
type FunnelStage struct {
	Status domain.Status `json:"status"`
	Count  int           `json:"count"`
}

// Service computes and caches the aggregate views. Aggregates are cheap to
// stale-read, so results are cached briefly and concurrent recomputes are
// collapsed through singleflight.
type Service struct {
	repo repository.StatsReader
	sf   singleflight.Group
	ttl  time.Duration
	now  func() time.Time

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	value   any
	expires time.Time
}

// New creates the stats service.
func New(repo repository.StatsReader) *Service {
	return &Service{
		repo:  repo,
		ttl:   defaultTTL,
		now:   time.Now,
		cache: make(map[string]cacheEntry),
	}
}

// Distribution returns the per-grade counts and the average score.
func (s *Service) Distribution(ctx context.Context) (Distribution, error) {
	value, err := s.cached(ctx, "distribution", func() (any, error) {
		counts, average, total, err := s.repo.GradeDistribution(ctx)
		if err != nil {
			return nil, err
		}
		// Zero-count grades are still reported so dashboards always render
		// all five buckets.
		for _, grade := range []domain.Grade{domain.GradeA, domain.GradeB, domain.GradeC, domain.GradeD, domain.GradeF} {
			if _, ok := counts[grade]; !ok {
				counts[grade] = 0
			}
		}
		return Distribution{Counts: counts, Average: average, Total: total}, nil
	})
	if err != nil {
		return Distribution{}, err
	}
	return value.(Distribution), nil
}

// Funnel returns the lifecycle counts in canonical stage order. The stage
// counts always sum to the total lead count.
func (s *Service) Funnel(ctx context.Context) ([]FunnelStage, error) {
	value, err := s.cached(ctx, "funnel", func() (any, error) {
		counts, err := s.repo.StatusCounts(ctx)
		if err != nil {
			return nil, err
		}
		stages := make([]FunnelStage, 0, len(domain.FunnelOrder))
		for _, status := range domain.FunnelOrder {
			stages = append(stages, FunnelStage{Status: status, Count: counts[status]})
		}
		return stages, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]FunnelStage), nil
}

// HotLeads returns up to limit leads ordered by score descending.
func (s *Service) HotLeads(ctx context.Context, limit int) ([]domain.Lead, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	// Top lists are limit-specific, so they bypass the shared cache and rely
	// on singleflight alone, keyed per limit so concurrent callers with
	// different limits never share a result.
	value, err, _ := s.sf.Do("top:"+strconv.Itoa(limit), func() (any, error) {
		return s.repo.TopByScore(ctx, limit)
	})
	if err != nil {
		return nil, err
	}
	leads := value.([]domain.Lead)
	if len(leads) > limit {
		leads = leads[:limit]
	}
	return leads, nil
}

// Invalidate drops all cached aggregates. Wired to score-change events so
// dashboards converge quickly after a burst of engagements.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.cache = make(map[string]cacheEntry)
	s.mu.Unlock()
}

func (s *Service) cached(_ context.Context, key string, compute func() (any, error)) (any, error) {
	s.mu.RLock()
	entry, ok := s.cache[key]
	s.mu.RUnlock()
	if ok && s.now().Before(entry.expires) {
		return entry.value, nil
	}

	value, err, _ := s.sf.Do(key, func() (any, error) {
		value, err := compute()
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.cache[key] = cacheEntry{value: value, expires: s.now().Add(s.ttl)}
		s.mu.Unlock()
		return value, nil
	})
	return value, err
}
