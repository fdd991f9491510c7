// Package leads provides the lead scoring bounded context module.
// This file defines the module that encapsulates all leads setup and route registration.
package leads

import (
	"context"

	"leadpulse_backend/internal/events"
	apphttp "leadpulse_backend/internal/http"
	"leadpulse_backend/internal/leads/handler"
	"leadpulse_backend/internal/leads/repository"
	"leadpulse_backend/internal/leads/scoring"
	"leadpulse_backend/internal/leads/service"
	"leadpulse_backend/internal/leads/stats"
	"leadpulse_backend/platform/config"
	"leadpulse_backend/platform/logger"
	"leadpulse_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	stats   *stats.Service
	repo    *repository.Repository
}

// NewModule creates and initializes the leads module with all its dependencies.
func NewModule(pool *pgxpool.Pool, eventBus events.Bus, val *validator.Validator, cfg config.ScoringConfig, log *logger.Logger) *Module {
	repo := repository.New(pool)

	svc := service.New(repo, eventBus, scoring.FromConfig(cfg), log)
	statsSvc := stats.New(repo)

	// Score changes invalidate the cached dashboard aggregates so the
	// overview converges quickly after an engagement burst.
	eventBus.Subscribe(events.LeadScoreChanged{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		statsSvc.Invalidate()
		return nil
	}))
	eventBus.Subscribe(events.LeadCreated{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		statsSvc.Invalidate()
		return nil
	}))

	return &Module{
		handler: handler.New(svc, statsSvc, val),
		service: svc,
		stats:   statsSvc,
		repo:    repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string { return "leads" }

// RegisterRoutes mounts the leads routes on the protected API group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected)
}

// Service exposes the lead store for other modules (sync, scheduler).
func (m *Module) Service() *service.Service { return m.service }

// Repository exposes the repository for the sync module's mapping access.
func (m *Module) Repository() *repository.Repository { return m.repo }
