// Package sync provides the CRM synchronization bounded context module.
package sync

import (
	"leadpulse_backend/internal/events"
	apphttp "leadpulse_backend/internal/http"
	leadsrepo "leadpulse_backend/internal/leads/repository"
	leadsservice "leadpulse_backend/internal/leads/service"
	"leadpulse_backend/internal/sync/connector"
	"leadpulse_backend/internal/sync/domain"
	"leadpulse_backend/internal/sync/handler"
	"leadpulse_backend/internal/sync/orchestrator"
	"leadpulse_backend/internal/sync/repository"
	"leadpulse_backend/platform/config"
	"leadpulse_backend/platform/logger"
	"leadpulse_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config combines the configuration the sync module needs.
type Config interface {
	config.SyncConfig
	config.CredentialConfig
}

// Module is the sync bounded context module implementing http.Module.
type Module struct {
	handler      *handler.Handler
	orchestrator *orchestrator.Orchestrator
}

// NewModule wires the sync module. The connector factory routes each stored
// credential to its platform adapter, honoring configured base URL overrides
// for sandbox environments.
func NewModule(pool *pgxpool.Pool, leads *leadsservice.Service, leadData *leadsrepo.Repository, eventBus events.Bus, val *validator.Validator, cfg Config, log *logger.Logger) *Module {
	repo := repository.New(pool, cfg.GetCredentialKey())

	factory := func(credential domain.Credential) connector.Connector {
		switch credential.Platform {
		case domain.CRMHubSpot:
			base := credential.BaseURL
			if base == "" {
				base = cfg.GetHubSpotBaseURL()
			}
			return connector.NewHubSpot(base, credential.APIKey, log.WithPlatform("hubspot"))
		default:
			base := credential.BaseURL
			if base == "" {
				base = cfg.GetSalesforceBaseURL()
			}
			return connector.NewSalesforce(base, credential.APIKey, log.WithPlatform("salesforce"))
		}
	}

	orch := orchestrator.New(leads, leadData, repo, factory, eventBus, orchestrator.Options{
		BatchSize:  cfg.GetSyncBatchSize(),
		PageSize:   cfg.GetSyncPageSize(),
		PullPerSec: cfg.GetSyncPullRatePerSec(),
	}, log)

	return &Module{
		handler:      handler.New(orch, val),
		orchestrator: orch,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string { return "sync" }

// RegisterRoutes mounts the sync routes on the protected API group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected)
}

// Orchestrator exposes the orchestrator for the worker's task handlers.
func (m *Module) Orchestrator() *orchestrator.Orchestrator { return m.orchestrator }
