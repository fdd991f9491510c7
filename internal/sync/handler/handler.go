// Package handler provides the HTTP handlers for the sync module.
package handler

import (
	"context"
	"net/http"

	"leadpulse_backend/internal/sync/domain"
	"leadpulse_backend/internal/sync/orchestrator"
	"leadpulse_backend/internal/sync/transport"
	"leadpulse_backend/platform/httpkit"
	"leadpulse_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Syncer is the orchestrator surface the handlers drive.
type Syncer interface {
	Status(ctx context.Context) ([]orchestrator.PlatformStatus, error)
	Connect(ctx context.Context, credential domain.Credential) error
	Disconnect(ctx context.Context, platform domain.CRM) error
	RunSync(ctx context.Context, platform domain.CRM, direction domain.Direction) (domain.SyncJob, error)
	RunAll(ctx context.Context, direction domain.Direction) ([]domain.SyncJob, error)
	Jobs(ctx context.Context, platform *domain.CRM, limit int) ([]domain.SyncJob, error)
}

type Handler struct {
	orch Syncer
	val  *validator.Validator
}

func New(orch Syncer, val *validator.Validator) *Handler {
	return &Handler{orch: orch, val: val}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/integrations", h.Status)
	rg.POST("/integrations", h.Action)
	rg.DELETE("/integrations/:platform", h.Disconnect)
	rg.POST("/integrations/sync", h.RunSync)
	rg.GET("/integrations/jobs", h.ListJobs)
}

// Status reports every platform's connection state and last sync outcome.
func (h *Handler) Status(c *gin.Context) {
	statuses, err := h.orch.Status(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, statuses)
}

// Action dispatches the integration actions: connect stores a credential,
// sync-to pushes, import-from pulls.
func (h *Handler) Action(c *gin.Context) {
	var req transport.IntegrationActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	switch req.Action {
	case "connect":
		if req.Platform == "all" {
			httpkit.Error(c, http.StatusBadRequest, "connect requires a single platform", nil)
			return
		}
		err := h.orch.Connect(c.Request.Context(), domain.Credential{
			Platform: domain.CRM(req.Platform),
			BaseURL:  req.BaseURL,
			APIKey:   req.APIKey,
		})
		if httpkit.HandleError(c, err) {
			return
		}
		httpkit.JSON(c, http.StatusCreated, gin.H{"platform": req.Platform, "state": domain.StateConnected})
	case "sync-to":
		h.runDirection(c, req.Platform, domain.DirectionPush)
	case "import-from":
		h.runDirection(c, req.Platform, domain.DirectionPull)
	}
}

// Disconnect removes a platform's credential.
func (h *Handler) Disconnect(c *gin.Context) {
	platform := domain.CRM(c.Param("platform"))
	err := h.orch.Disconnect(c.Request.Context(), platform)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"platform": platform, "state": domain.StateDisconnected})
}

// RunSync starts a push or pull for one platform or for all connected ones.
func (h *Handler) RunSync(c *gin.Context) {
	var req transport.SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	h.runDirection(c, req.Platform, domain.Direction(req.Direction))
}

func (h *Handler) runDirection(c *gin.Context, platform string, direction domain.Direction) {
	if platform == "all" {
		jobs, err := h.orch.RunAll(c.Request.Context(), direction)
		if httpkit.HandleError(c, err) {
			return
		}
		httpkit.OK(c, transport.SyncRunResponse{Jobs: transport.FromJobs(jobs)})
		return
	}

	job, err := h.orch.RunSync(c.Request.Context(), domain.CRM(platform), direction)
	if err != nil && job.ID == uuid.Nil {
		// Job-level failures still produced a job record worth returning.
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, transport.SyncRunResponse{Jobs: []transport.JobResponse{transport.FromJob(job)}})
}

// ListJobs returns recent sync jobs, optionally filtered by platform.
func (h *Handler) ListJobs(c *gin.Context) {
	var platform *domain.CRM
	if raw := c.Query("platform"); raw != "" {
		crm := domain.CRM(raw)
		if !crm.Valid() {
			httpkit.Error(c, http.StatusBadRequest, "unknown platform", raw)
			return
		}
		platform = &crm
	}

	jobs, err := h.orch.Jobs(c.Request.Context(), platform, 50)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.JobListResponse{Items: transport.FromJobs(jobs)})
}
