// Package handler provides the HTTP handlers for the leads module.
package handler

import (
	"net/http"
	"strconv"

	"leadpulse_backend/internal/leads/domain"
	"leadpulse_backend/internal/leads/repository"
	"leadpulse_backend/internal/leads/service"
	"leadpulse_backend/internal/leads/stats"
	"leadpulse_backend/internal/leads/transport"
	"leadpulse_backend/platform/httpkit"
	"leadpulse_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

type Handler struct {
	svc   *service.Service
	stats *stats.Service
	val   *validator.Validator
}

func New(svc *service.Service, statsSvc *stats.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, stats: statsSvc, val: val}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/engagements", h.RecordEngagement)
	rg.GET("/lead-scoring", h.ScoringOverview)
	rg.POST("/lead-scoring", h.ScoringAction)
	rg.GET("/leads", h.List)
	rg.GET("/leads/:id", h.GetByID)
}

// RecordEngagement ingests one engagement event and returns the lead with its
// freshly recomputed score.
func (h *Handler) RecordEngagement(c *gin.Context) {
	var req transport.RecordEngagementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	identity := domain.Identity{
		Platform:    req.Platform,
		Username:    req.Username,
		DisplayName: req.DisplayName,
	}
	lead, err := h.svc.RecordEngagement(c.Request.Context(), identity, domain.EngagementType(req.Type), req.ContentRef)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, transport.FromLead(lead))
}

// ScoringOverview serves the dashboard aggregates. An action query selects a
// single view; without one the combined overview is returned.
func (h *Handler) ScoringOverview(c *gin.Context) {
	ctx := c.Request.Context()

	switch action := c.Query("action"); action {
	case "":
		distribution, err := h.stats.Distribution(ctx)
		if httpkit.HandleError(c, err) {
			return
		}
		funnel, err := h.stats.Funnel(ctx)
		if httpkit.HandleError(c, err) {
			return
		}
		hot, err := h.stats.HotLeads(ctx, 10)
		if httpkit.HandleError(c, err) {
			return
		}
		httpkit.OK(c, transport.ScoringOverviewResponse{
			Distribution: distribution,
			Funnel:       funnel,
			HotLeads:     transport.FromLeads(hot),
		})
	case "distribution":
		distribution, err := h.stats.Distribution(ctx)
		if httpkit.HandleError(c, err) {
			return
		}
		httpkit.OK(c, distribution)
	case "funnel":
		funnel, err := h.stats.Funnel(ctx)
		if httpkit.HandleError(c, err) {
			return
		}
		httpkit.OK(c, funnel)
	case "hot-leads":
		limit := 10
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 || parsed > 100 {
				httpkit.Error(c, http.StatusBadRequest, "limit must be between 1 and 100", nil)
				return
			}
			limit = parsed
		}
		hot, err := h.stats.HotLeads(ctx, limit)
		if httpkit.HandleError(c, err) {
			return
		}
		httpkit.OK(c, transport.LeadListResponse{
			Items: transport.FromLeads(hot),
			Total: len(hot),
		})
	default:
		httpkit.Error(c, http.StatusBadRequest, "unknown action", action)
	}
}

// ScoringAction triggers a rescore of one lead or of the whole store.
func (h *Handler) ScoringAction(c *gin.Context) {
	var req transport.ScoringActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	switch req.Action {
	case "recalculate":
		if req.LeadID == nil {
			httpkit.Error(c, http.StatusBadRequest, "leadId is required for recalculate", nil)
			return
		}
		lead, err := h.svc.Recalculate(c.Request.Context(), *req.LeadID)
		if httpkit.HandleError(c, err) {
			return
		}
		resp := transport.FromLead(lead)
		httpkit.OK(c, transport.RecalculateResponse{Updated: 1, Lead: &resp})
	case "recalculate_all":
		updated, err := h.svc.RecalculateAll(c.Request.Context())
		if httpkit.HandleError(c, err) {
			return
		}
		httpkit.OK(c, transport.RecalculateResponse{Updated: updated})
	default:
		httpkit.Error(c, http.StatusBadRequest, "unknown action", req.Action)
	}
}

// List returns leads filtered by status, platform and search term.
func (h *Handler) List(c *gin.Context) {
	params := repository.ListParams{
		Search: c.Query("search"),
		Limit:  50,
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 200 {
			httpkit.Error(c, http.StatusBadRequest, "limit must be between 1 and 200", nil)
			return
		}
		params.Limit = limit
	}
	if raw := c.Query("status"); raw != "" {
		status := domain.Status(raw)
		if !status.Valid() {
			httpkit.Error(c, http.StatusBadRequest, "unknown status", raw)
			return
		}
		params.Status = &status
	}
	if raw := c.Query("platform"); raw != "" {
		params.Platform = &raw
	}

	leads, err := h.svc.List(c.Request.Context(), params)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.LeadListResponse{
		Items: transport.FromLeads(leads),
		Total: len(leads),
	})
}

// GetByID returns a single lead.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	lead, err := h.svc.Get(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.FromLead(lead))
}
