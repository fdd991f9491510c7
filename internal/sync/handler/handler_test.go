package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"leadpulse_backend/internal/sync/domain"
	"leadpulse_backend/internal/sync/orchestrator"
	"leadpulse_backend/internal/sync/transport"
	"leadpulse_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type runCall struct {
	platform  domain.CRM
	direction domain.Direction
}

type fakeSyncer struct {
	connected    []domain.Credential
	disconnected []domain.CRM
	runs         []runCall
	runAll       []domain.Direction
}

func (f *fakeSyncer) Status(context.Context) ([]orchestrator.PlatformStatus, error) {
	statuses := make([]orchestrator.PlatformStatus, 0, len(domain.All))
	for _, platform := range domain.All {
		statuses = append(statuses, orchestrator.PlatformStatus{
			Platform: platform,
			State:    domain.StateDisconnected,
		})
	}
	return statuses, nil
}

func (f *fakeSyncer) Connect(_ context.Context, credential domain.Credential) error {
	f.connected = append(f.connected, credential)
	return nil
}

func (f *fakeSyncer) Disconnect(_ context.Context, platform domain.CRM) error {
	f.disconnected = append(f.disconnected, platform)
	return nil
}

func (f *fakeSyncer) RunSync(_ context.Context, platform domain.CRM, direction domain.Direction) (domain.SyncJob, error) {
	f.runs = append(f.runs, runCall{platform: platform, direction: direction})
	return domain.SyncJob{
		ID:        uuid.New(),
		Platform:  platform,
		Direction: direction,
		Status:    domain.JobCompleted,
		StartedAt: time.Now().UTC(),
	}, nil
}

func (f *fakeSyncer) RunAll(_ context.Context, direction domain.Direction) ([]domain.SyncJob, error) {
	f.runAll = append(f.runAll, direction)
	jobs := make([]domain.SyncJob, 0, len(domain.All))
	for _, platform := range domain.All {
		jobs = append(jobs, domain.SyncJob{
			ID:        uuid.New(),
			Platform:  platform,
			Direction: direction,
			Status:    domain.JobCompleted,
		})
	}
	return jobs, nil
}

func (f *fakeSyncer) Jobs(context.Context, *domain.CRM, int) ([]domain.SyncJob, error) {
	return nil, nil
}

func newIntegrationsRouter(t *testing.T) (*gin.Engine, *fakeSyncer) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	orch := &fakeSyncer{}
	h := New(orch, validator.New())
	router := gin.New()
	h.RegisterRoutes(router.Group("/api"))
	return router, orch
}

func postIntegrations(t *testing.T, router *gin.Engine, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/integrations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)
	return rec
}

func TestIntegrationActionSyncTo(t *testing.T) {
	router, orch := newIntegrationsRouter(t)

	rec := postIntegrations(t, router, map[string]string{
		"action":   "sync-to",
		"platform": "salesforce",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(orch.runs) != 1 || orch.runs[0] != (runCall{platform: domain.CRMSalesforce, direction: domain.DirectionPush}) {
		t.Fatalf("expected one push run for salesforce, got %+v", orch.runs)
	}
	var resp transport.SyncRunResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Jobs) != 1 || resp.Jobs[0].Direction != "push" {
		t.Fatalf("expected one push job in the response, got %+v", resp.Jobs)
	}
}

func TestIntegrationActionImportFrom(t *testing.T) {
	router, orch := newIntegrationsRouter(t)

	rec := postIntegrations(t, router, map[string]string{
		"action":   "import-from",
		"platform": "hubspot",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(orch.runs) != 1 || orch.runs[0] != (runCall{platform: domain.CRMHubSpot, direction: domain.DirectionPull}) {
		t.Fatalf("expected one pull run for hubspot, got %+v", orch.runs)
	}
}

func TestIntegrationActionSyncToAllPlatforms(t *testing.T) {
	router, orch := newIntegrationsRouter(t)

	rec := postIntegrations(t, router, map[string]string{
		"action":   "sync-to",
		"platform": "all",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(orch.runAll) != 1 || orch.runAll[0] != domain.DirectionPush {
		t.Fatalf("expected one push run across all platforms, got %+v", orch.runAll)
	}
	var resp transport.SyncRunResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Jobs) != len(domain.All) {
		t.Fatalf("expected a job per platform, got %d", len(resp.Jobs))
	}
}

func TestIntegrationActionConnect(t *testing.T) {
	router, orch := newIntegrationsRouter(t)

	rec := postIntegrations(t, router, map[string]string{
		"action":   "connect",
		"platform": "salesforce",
		"apiKey":   "sf-secret-token",
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(orch.connected) != 1 {
		t.Fatalf("expected one stored credential, got %d", len(orch.connected))
	}
	credential := orch.connected[0]
	if credential.Platform != domain.CRMSalesforce || credential.APIKey != "sf-secret-token" {
		t.Fatalf("unexpected credential %+v", credential)
	}
}

func TestIntegrationActionConnectRejectsAllPlatforms(t *testing.T) {
	router, orch := newIntegrationsRouter(t)

	rec := postIntegrations(t, router, map[string]string{
		"action":   "connect",
		"platform": "all",
		"apiKey":   "sf-secret-token",
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(orch.connected) != 0 {
		t.Fatal("expected no credential stored")
	}
}

func TestIntegrationActionRejectsUnknownAction(t *testing.T) {
	router, orch := newIntegrationsRouter(t)

	rec := postIntegrations(t, router, map[string]string{
		"action":   "export",
		"platform": "salesforce",
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(orch.runs) != 0 && len(orch.runAll) != 0 {
		t.Fatal("expected no sync triggered")
	}
}
