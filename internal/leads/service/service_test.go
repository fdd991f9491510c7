package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"leadpulse_backend/internal/leads/domain"
	"leadpulse_backend/internal/leads/repository"
	"leadpulse_backend/internal/leads/scoring"
	"leadpulse_backend/platform/logger"

	"github.com/google/uuid"
)

// fakeRepo is an in-memory LeadsRepository mirroring the SQL layer's counter
// semantics, safe for concurrent use.
type fakeRepo struct {
	mu       sync.Mutex
	leads    map[uuid.UUID]*domain.Lead
	byIdent  map[string]uuid.UUID
	appended int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		leads:   make(map[uuid.UUID]*domain.Lead),
		byIdent: make(map[string]uuid.UUID),
	}
}

func identKey(platform, username string) string { return platform + "\x00" + username }

func (f *fakeRepo) Upsert(_ context.Context, identity domain.Identity) (domain.Lead, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := identKey(identity.Platform, identity.Username)
	if id, ok := f.byIdent[key]; ok {
		return *f.leads[id], false, nil
	}

	lead := &domain.Lead{
		ID:          uuid.New(),
		Platform:    identity.Platform,
		Username:    identity.Username,
		DisplayName: identity.DisplayName,
		Grade:       domain.GradeF,
		Status:      domain.StatusCold,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	f.leads[lead.ID] = lead
	f.byIdent[key] = lead.ID
	return *lead, true, nil
}

func (f *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (domain.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead, ok := f.leads[id]
	if !ok {
		return domain.Lead{}, repository.ErrNotFound
	}
	return *lead, nil
}

func (f *fakeRepo) GetByIdentity(_ context.Context, platform, username string) (domain.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byIdent[identKey(platform, username)]
	if !ok {
		return domain.Lead{}, repository.ErrNotFound
	}
	return *f.leads[id], nil
}

func (f *fakeRepo) List(_ context.Context, _ repository.ListParams) ([]domain.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	leads := make([]domain.Lead, 0, len(f.leads))
	for _, lead := range f.leads {
		leads = append(leads, *lead)
	}
	return leads, nil
}

func (f *fakeRepo) ListIDs(_ context.Context) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(f.leads))
	for id := range f.leads {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeRepo) UpdateScore(_ context.Context, id uuid.UUID, score int, grade domain.Grade, status domain.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead, ok := f.leads[id]
	if !ok {
		return repository.ErrNotFound
	}
	lead.Score = score
	lead.Grade = grade
	lead.Status = status
	return nil
}

func (f *fakeRepo) UpdateContact(_ context.Context, id uuid.UUID, params repository.UpdateContactParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead, ok := f.leads[id]
	if !ok {
		return repository.ErrNotFound
	}
	if params.DisplayName != nil {
		lead.DisplayName = *params.DisplayName
	}
	if params.Email != nil {
		lead.Email = params.Email
	}
	if params.Phone != nil {
		lead.Phone = params.Phone
	}
	return nil
}

func (f *fakeRepo) SetConverted(_ context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead, ok := f.leads[id]
	if !ok {
		return repository.ErrNotFound
	}
	if lead.Signals.ConvertedAt == nil {
		lead.Signals.ConvertedAt = &at
	}
	return nil
}

func (f *fakeRepo) AppendEngagement(_ context.Context, engagement domain.Engagement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead, ok := f.leads[engagement.LeadID]
	if !ok {
		return repository.ErrNotFound
	}
	f.appended++

	at := engagement.OccurredAt
	switch engagement.Type {
	case domain.EngagementLike:
		lead.Signals.Likes++
	case domain.EngagementComment:
		lead.Signals.Comments++
	case domain.EngagementShare:
		lead.Signals.Shares++
	case domain.EngagementFollow:
		lead.Signals.Followed = true
	case domain.EngagementDMSent:
		lead.Signals.DMSent = true
	case domain.EngagementDMReply:
		if lead.Signals.DMRepliedAt == nil {
			lead.Signals.DMRepliedAt = &at
		}
	case domain.EngagementConversion:
		if lead.Signals.ConvertedAt == nil {
			lead.Signals.ConvertedAt = &at
		}
	case domain.EngagementChurn:
		if lead.Signals.ChurnedAt == nil {
			lead.Signals.ChurnedAt = &at
		}
	}
	if lead.Signals.LastEngagementAt == nil || at.After(*lead.Signals.LastEngagementAt) {
		lead.Signals.LastEngagementAt = &at
	}
	return nil
}

func (f *fakeRepo) GradeDistribution(context.Context) (map[domain.Grade]int, float64, int, error) {
	return nil, 0, 0, nil
}
func (f *fakeRepo) StatusCounts(context.Context) (map[domain.Status]int, error) { return nil, nil }
func (f *fakeRepo) TopByScore(context.Context, int) ([]domain.Lead, error)      { return nil, nil }
func (f *fakeRepo) GetMapping(context.Context, uuid.UUID, string) (domain.ExternalMapping, error) {
	return domain.ExternalMapping{}, repository.ErrMappingNotFound
}
func (f *fakeRepo) GetMappingByExternalID(context.Context, string, string) (domain.ExternalMapping, error) {
	return domain.ExternalMapping{}, repository.ErrMappingNotFound
}
func (f *fakeRepo) SaveMapping(context.Context, domain.ExternalMapping) error        { return nil }
func (f *fakeRepo) MarkSynced(context.Context, uuid.UUID, string, time.Time) error   { return nil }
func (f *fakeRepo) CountMappings(context.Context, string) (int, error)               { return 0, nil }
func (f *fakeRepo) ListForPush(context.Context, string, repository.PushCursor, int) ([]repository.LeadWithMapping, error) {
	return nil, nil
}
func (f *fakeRepo) FindByEmailOrUsername(context.Context, string, string) (domain.Lead, error) {
	return domain.Lead{}, repository.ErrNotFound
}

func newTestService(repo repository.LeadsRepository) *Service {
	return New(repo, nil, scoring.DefaultConfig(), logger.New("development"))
}

func TestRecordEngagementCreatesLead(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	identity := domain.Identity{Platform: "instagram", Username: "lena"}
	lead, err := svc.RecordEngagement(context.Background(), identity, domain.EngagementLike, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if lead.Signals.Likes != 1 {
		t.Fatalf("expected 1 like, got %d", lead.Signals.Likes)
	}
	if lead.Score != 2 {
		t.Fatalf("expected score 2 after one like, got %d", lead.Score)
	}
}

func TestRecordEngagementRejectsUnknownType(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	identity := domain.Identity{Platform: "instagram", Username: "lena"}
	if _, err := svc.RecordEngagement(context.Background(), identity, domain.EngagementType("retweet"), nil); err == nil {
		t.Fatal("expected error for unknown engagement type")
	}
	if repo.appended != 0 {
		t.Fatalf("expected no engagement appended, got %d", repo.appended)
	}
}

func TestRecordEngagementReadYourWrites(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	identity := domain.Identity{Platform: "tiktok", Username: "marc"}
	recorded, err := svc.RecordEngagement(context.Background(), identity, domain.EngagementComment, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := svc.Get(context.Background(), recorded.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Signals.Comments != 1 {
		t.Fatalf("expected the read to reflect the engagement, got %d comments", got.Signals.Comments)
	}
	if got.Score != recorded.Score {
		t.Fatalf("expected stable score, got %d vs %d", got.Score, recorded.Score)
	}
}

func TestRecordEngagementConcurrentBurst(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	identity := domain.Identity{Platform: "instagram", Username: "burst"}
	const n = 100

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.RecordEngagement(context.Background(), identity, domain.EngagementLike, nil); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent engagement failed: %v", err)
	}

	lead, err := svc.Get(context.Background(), mustLeadID(t, repo, identity))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lead.Signals.Likes != n {
		t.Fatalf("expected %d likes after burst, got %d", n, lead.Signals.Likes)
	}
	if repo.appended != n {
		t.Fatalf("expected %d engagements appended, got %d", n, repo.appended)
	}
	// 100 likes = 200 raw, clamped to 100, hot
	if lead.Score != 100 {
		t.Fatalf("expected score 100, got %d", lead.Score)
	}
	if len(repo.leads) != 1 {
		t.Fatalf("expected a single lead, got %d", len(repo.leads))
	}
}

func TestRecalculateAllCountsChanges(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		identity := domain.Identity{Platform: "x", Username: fmt.Sprintf("user%d", i)}
		if _, err := svc.RecordEngagement(ctx, identity, domain.EngagementLike, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// Scores are already current, so nothing should change.
	updated, err := svc.RecalculateAll(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated != 0 {
		t.Fatalf("expected no changes on immediate recalculation, got %d", updated)
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	identity := domain.Identity{Platform: "linkedin", Username: "sam"}
	first, err := svc.Upsert(context.Background(), identity)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.Upsert(context.Background(), identity)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected the same lead on repeated upsert, got %s and %s", first.ID, second.ID)
	}
}

func TestUpsertRequiresIdentity(t *testing.T) {
	svc := newTestService(newFakeRepo())

	if _, err := svc.Upsert(context.Background(), domain.Identity{Platform: "instagram"}); err == nil {
		t.Fatal("expected error for missing username")
	}
	if _, err := svc.Upsert(context.Background(), domain.Identity{Username: "lena"}); err == nil {
		t.Fatal("expected error for missing platform")
	}
}

func mustLeadID(t *testing.T, repo *fakeRepo, identity domain.Identity) uuid.UUID {
	t.Helper()
	repo.mu.Lock()
	defer repo.mu.Unlock()
	id, ok := repo.byIdent[identKey(identity.Platform, identity.Username)]
	if !ok {
		t.Fatalf("lead for %s/%s not found", identity.Platform, identity.Username)
	}
	return id
}
