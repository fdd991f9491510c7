package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"leadpulse_backend/internal/leads/domain"
	"leadpulse_backend/internal/leads/stats"
	"leadpulse_backend/internal/leads/transport"
	"leadpulse_backend/platform/httpkit"
	"leadpulse_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type fakeStats struct {
	grades   map[domain.Grade]int
	average  float64
	total    int
	statuses map[domain.Status]int
	top      []domain.Lead
}

func (f *fakeStats) GradeDistribution(context.Context) (map[domain.Grade]int, float64, int, error) {
	counts := make(map[domain.Grade]int, len(f.grades))
	for grade, count := range f.grades {
		counts[grade] = count
	}
	return counts, f.average, f.total, nil
}

func (f *fakeStats) StatusCounts(context.Context) (map[domain.Status]int, error) {
	return f.statuses, nil
}

func (f *fakeStats) TopByScore(_ context.Context, limit int) ([]domain.Lead, error) {
	if limit < len(f.top) {
		return f.top[:limit], nil
	}
	return f.top, nil
}

func newScoringRouter(t *testing.T, reader *fakeStats) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := New(nil, stats.New(reader), validator.New())
	router := gin.New()
	h.RegisterRoutes(router.Group("/api"))
	return router
}

func topLeads(n int) []domain.Lead {
	leads := make([]domain.Lead, 0, n)
	for i := 0; i < n; i++ {
		leads = append(leads, domain.Lead{
			ID:       uuid.New(),
			Platform: "instagram",
			Username: fmt.Sprintf("lead%d", i),
			Score:    90 - i*10,
		})
	}
	return leads
}

func TestScoringOverviewHotLeadsAction(t *testing.T) {
	router := newScoringRouter(t, &fakeStats{top: topLeads(5)})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/lead-scoring?action=hot-leads&limit=3", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp transport.LeadListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 3 || len(resp.Items) != 3 {
		t.Fatalf("expected 3 hot leads for limit=3, got total=%d items=%d", resp.Total, len(resp.Items))
	}
	if resp.Items[0].Score != 90 {
		t.Fatalf("expected the top lead first, got score %d", resp.Items[0].Score)
	}
}

func TestScoringOverviewDistributionAction(t *testing.T) {
	router := newScoringRouter(t, &fakeStats{
		grades:  map[domain.Grade]int{domain.GradeA: 2, domain.GradeC: 5},
		average: 48.5,
		total:   7,
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/lead-scoring?action=distribution", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp stats.Distribution
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 7 || len(resp.Counts) != 5 {
		t.Fatalf("expected the distribution view alone, got %+v", resp)
	}
}

func TestScoringOverviewDefaultsToCombinedView(t *testing.T) {
	router := newScoringRouter(t, &fakeStats{
		grades:   map[domain.Grade]int{domain.GradeB: 1},
		total:    1,
		statuses: map[domain.Status]int{domain.StatusHot: 1},
		top:      topLeads(1),
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/lead-scoring", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp transport.ScoringOverviewResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Distribution.Total != 1 || len(resp.Funnel) == 0 || len(resp.HotLeads) != 1 {
		t.Fatalf("expected the combined overview, got %+v", resp)
	}
}

func TestScoringOverviewRejectsBadLimit(t *testing.T) {
	router := newScoringRouter(t, &fakeStats{top: topLeads(5)})

	for _, limit := range []string{"0", "101", "abc"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/lead-scoring?action=hot-leads&limit="+limit, nil)
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("limit=%s: expected 400, got %d", limit, rec.Code)
		}
	}
}

func TestScoringOverviewRejectsUnknownAction(t *testing.T) {
	router := newScoringRouter(t, &fakeStats{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/lead-scoring?action=export", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var resp httpkit.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error != "unknown action" {
		t.Fatalf("unexpected error message %q", resp.Error)
	}
}
