package orchestrator

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	leadsdomain "leadpulse_backend/internal/leads/domain"
	leadsrepo "leadpulse_backend/internal/leads/repository"
	"leadpulse_backend/internal/sync/connector"
	"leadpulse_backend/internal/sync/domain"
	"leadpulse_backend/internal/sync/repository"
	"leadpulse_backend/platform/apperr"
	"leadpulse_backend/platform/logger"

	"github.com/google/uuid"
)

// =====================================
// Fakes
// =====================================

type fakeLeadStore struct {
	leads        map[string]leadsdomain.Lead
	recalculated []uuid.UUID
}

func newFakeLeadStore() *fakeLeadStore {
	return &fakeLeadStore{leads: make(map[string]leadsdomain.Lead)}
}

func (f *fakeLeadStore) Upsert(_ context.Context, identity leadsdomain.Identity) (leadsdomain.Lead, error) {
	key := identity.Platform + "/" + identity.Username
	if lead, ok := f.leads[key]; ok {
		return lead, nil
	}
	lead := leadsdomain.Lead{
		ID:          uuid.New(),
		Platform:    identity.Platform,
		Username:    identity.Username,
		DisplayName: identity.DisplayName,
	}
	f.leads[key] = lead
	return lead, nil
}

func (f *fakeLeadStore) Recalculate(_ context.Context, id uuid.UUID) (leadsdomain.Lead, error) {
	f.recalculated = append(f.recalculated, id)
	return leadsdomain.Lead{ID: id}, nil
}

type fakeLeadData struct {
	mappings  map[string]leadsdomain.ExternalMapping // key: crm/externalID
	byLead    map[string]leadsdomain.ExternalMapping // key: leadID/crm
	pending   []leadsrepo.LeadWithMapping
	byEmail   map[string]leadsdomain.Lead
	converted []uuid.UUID
	updated   []uuid.UUID
}

func newFakeLeadData() *fakeLeadData {
	return &fakeLeadData{
		mappings: make(map[string]leadsdomain.ExternalMapping),
		byLead:   make(map[string]leadsdomain.ExternalMapping),
		byEmail:  make(map[string]leadsdomain.Lead),
	}
}

func (f *fakeLeadData) GetMapping(_ context.Context, leadID uuid.UUID, crm string) (leadsdomain.ExternalMapping, error) {
	mapping, ok := f.byLead[leadID.String()+"/"+crm]
	if !ok {
		return leadsdomain.ExternalMapping{}, leadsrepo.ErrMappingNotFound
	}
	return mapping, nil
}

func (f *fakeLeadData) GetMappingByExternalID(_ context.Context, crm, externalID string) (leadsdomain.ExternalMapping, error) {
	mapping, ok := f.mappings[crm+"/"+externalID]
	if !ok {
		return leadsdomain.ExternalMapping{}, leadsrepo.ErrMappingNotFound
	}
	return mapping, nil
}

func (f *fakeLeadData) SaveMapping(_ context.Context, mapping leadsdomain.ExternalMapping) error {
	f.mappings[mapping.CRM+"/"+mapping.ExternalID] = mapping
	f.byLead[mapping.LeadID.String()+"/"+mapping.CRM] = mapping
	return nil
}

func (f *fakeLeadData) MarkSynced(context.Context, uuid.UUID, string, time.Time) error { return nil }

func (f *fakeLeadData) CountMappings(_ context.Context, crm string) (int, error) {
	count := 0
	for key := range f.mappings {
		if strings.HasPrefix(key, crm+"/") {
			count++
		}
	}
	return count, nil
}

// ListForPush pages keyset-style over f.pending, which must be ordered by
// (UpdatedAt, ID) like the real query.
func (f *fakeLeadData) ListForPush(_ context.Context, _ string, cursor leadsrepo.PushCursor, limit int) ([]leadsrepo.LeadWithMapping, error) {
	items := make([]leadsrepo.LeadWithMapping, 0, limit)
	for _, item := range f.pending {
		if !afterCursor(item.Lead, cursor) {
			continue
		}
		items = append(items, item)
		if len(items) == limit {
			break
		}
	}
	return items, nil
}

func afterCursor(lead leadsdomain.Lead, cursor leadsrepo.PushCursor) bool {
	if lead.UpdatedAt.After(cursor.UpdatedAt) {
		return true
	}
	if !lead.UpdatedAt.Equal(cursor.UpdatedAt) {
		return false
	}
	return bytes.Compare(lead.ID[:], cursor.ID[:]) > 0
}

func (f *fakeLeadData) FindByEmailOrUsername(_ context.Context, email, username string) (leadsdomain.Lead, error) {
	if lead, ok := f.byEmail[email]; ok && email != "" {
		return lead, nil
	}
	if lead, ok := f.byEmail[username]; ok && username != "" {
		return lead, nil
	}
	return leadsdomain.Lead{}, leadsrepo.ErrNotFound
}

func (f *fakeLeadData) UpdateContact(_ context.Context, id uuid.UUID, _ leadsrepo.UpdateContactParams) error {
	f.updated = append(f.updated, id)
	return nil
}

func (f *fakeLeadData) SetConverted(_ context.Context, id uuid.UUID, _ time.Time) error {
	f.converted = append(f.converted, id)
	return nil
}

type fakeSyncStore struct {
	jobs        map[uuid.UUID]domain.SyncJob
	finished    []domain.SyncJob
	credentials map[domain.CRM]domain.Credential
}

func newFakeSyncStore() *fakeSyncStore {
	return &fakeSyncStore{
		jobs:        make(map[uuid.UUID]domain.SyncJob),
		credentials: make(map[domain.CRM]domain.Credential),
	}
}

func (f *fakeSyncStore) CreateJob(_ context.Context, platform domain.CRM, direction domain.Direction) (domain.SyncJob, error) {
	job := domain.SyncJob{
		ID:        uuid.New(),
		Platform:  platform,
		Direction: direction,
		Status:    domain.JobRunning,
		StartedAt: time.Now().UTC(),
	}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeSyncStore) FinishJob(_ context.Context, job domain.SyncJob) error {
	f.jobs[job.ID] = job
	f.finished = append(f.finished, job)
	return nil
}

func (f *fakeSyncStore) ListJobs(context.Context, *domain.CRM, int) ([]domain.SyncJob, error) {
	return nil, nil
}

func (f *fakeSyncStore) LastJob(context.Context, domain.CRM) (domain.SyncJob, error) {
	return domain.SyncJob{}, repository.ErrJobNotFound
}

func (f *fakeSyncStore) SaveCredential(_ context.Context, credential domain.Credential) error {
	f.credentials[credential.Platform] = credential
	return nil
}

func (f *fakeSyncStore) GetCredential(_ context.Context, platform domain.CRM) (domain.Credential, error) {
	credential, ok := f.credentials[platform]
	if !ok {
		return domain.Credential{}, repository.ErrCredentialNotFound
	}
	return credential, nil
}

func (f *fakeSyncStore) DeleteCredential(_ context.Context, platform domain.CRM) error {
	if _, ok := f.credentials[platform]; !ok {
		return repository.ErrCredentialNotFound
	}
	delete(f.credentials, platform)
	return nil
}

type fakeConnector struct {
	platform domain.CRM
	testErr  error
	push     func(contacts []connector.Contact) ([]connector.PushOutcome, error)
	pull     func(cursor string) (connector.Page, error)
}

func (f *fakeConnector) Platform() domain.CRM { return f.platform }

func (f *fakeConnector) TestConnection(context.Context) error { return f.testErr }

func (f *fakeConnector) PushBatch(_ context.Context, contacts []connector.Contact) ([]connector.PushOutcome, error) {
	if f.push == nil {
		return nil, nil
	}
	return f.push(contacts)
}

func (f *fakeConnector) PullBatch(_ context.Context, cursor string, _ int) (connector.Page, error) {
	if f.pull == nil {
		return connector.Page{}, nil
	}
	return f.pull(cursor)
}

// =====================================
// Helpers
// =====================================

type fixture struct {
	orch     *Orchestrator
	leads    *fakeLeadStore
	leadData *fakeLeadData
	store    *fakeSyncStore
	conn     *fakeConnector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		leads:    newFakeLeadStore(),
		leadData: newFakeLeadData(),
		store:    newFakeSyncStore(),
		conn:     &fakeConnector{platform: domain.CRMSalesforce},
	}
	factory := func(domain.Credential) connector.Connector { return f.conn }
	f.orch = New(f.leads, f.leadData, f.store, factory, nil, Options{BatchSize: 10, PageSize: 10, PullPerSec: 1000}, logger.New("development"))
	return f
}

func (f *fixture) connect(t *testing.T) {
	t.Helper()
	err := f.orch.Connect(context.Background(), domain.Credential{
		Platform: domain.CRMSalesforce,
		APIKey:   "sf-token",
	})
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
}

// =====================================
// Tests
// =====================================

func TestConnectRejectsBadCredential(t *testing.T) {
	f := newFixture(t)
	f.conn.testErr = apperr.Unauthorized("bad token")

	err := f.orch.Connect(context.Background(), domain.Credential{
		Platform: domain.CRMSalesforce,
		APIKey:   "bad",
	})
	if apperr.GetKind(err) != apperr.KindUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if len(f.store.credentials) != 0 {
		t.Fatal("expected no credential stored after failed validation")
	}
	if got := f.orch.state(domain.CRMSalesforce); got != domain.StateDisconnected {
		t.Fatalf("expected disconnected state, got %s", got)
	}
}

func TestRunSyncRequiresConnection(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.RunSync(context.Background(), domain.CRMSalesforce, domain.DirectionPush)
	if apperr.GetKind(err) != apperr.KindConflict {
		t.Fatalf("expected conflict for disconnected platform, got %v", err)
	}
}

func TestPushCountsSumToAttempted(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	newLead := uuid.New()
	mappedLead := uuid.New()
	badLead := uuid.New()
	f.leadData.pending = []leadsrepo.LeadWithMapping{
		{Lead: leadsdomain.Lead{ID: newLead, Username: "new"}},
		{Lead: leadsdomain.Lead{ID: mappedLead, Username: "mapped"}, ExternalID: "SF-9"},
		{Lead: leadsdomain.Lead{ID: badLead, Username: "bad"}},
	}

	f.conn.push = func(contacts []connector.Contact) ([]connector.PushOutcome, error) {
		outcomes := make([]connector.PushOutcome, 0, len(contacts))
		for _, contact := range contacts {
			outcome := connector.PushOutcome{LeadID: contact.LeadID, ExternalID: contact.ExternalID}
			switch contact.LeadID {
			case newLead:
				outcome.ExternalID = "SF-1"
				outcome.Created = true
			case badLead:
				outcome.Err = apperr.Validation("missing required field")
			}
			outcomes = append(outcomes, outcome)
		}
		return outcomes, nil
	}

	job, err := f.orch.RunSync(context.Background(), domain.CRMSalesforce, domain.DirectionPush)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Created != 1 || job.Updated != 1 || job.Failed != 1 {
		t.Fatalf("expected counts 1/1/1, got %d/%d/%d", job.Created, job.Updated, job.Failed)
	}
	if job.Attempted() != 3 {
		t.Fatalf("expected counts to sum to attempted, got %d", job.Attempted())
	}
	if job.Status != domain.JobPartial {
		t.Fatalf("expected partial status with record failures, got %s", job.Status)
	}
	if len(job.Errors) != 1 || *job.Errors[0].LeadID != badLead {
		t.Fatalf("expected one record error for the bad lead, got %+v", job.Errors)
	}
	if _, err := f.leadData.GetMappingByExternalID(context.Background(), "salesforce", "SF-1"); err != nil {
		t.Fatal("expected mapping saved for the created record")
	}
	if got := f.orch.state(domain.CRMSalesforce); got != domain.StateConnected {
		t.Fatalf("expected connected after partial job, got %s", got)
	}
}

func TestPushAuthFailureFailsJobWithPartialCounts(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	okLead := uuid.New()
	f.leadData.pending = []leadsrepo.LeadWithMapping{
		{Lead: leadsdomain.Lead{ID: okLead, Username: "ok"}},
		{Lead: leadsdomain.Lead{ID: uuid.New(), Username: "never-reached"}},
	}

	f.conn.push = func(contacts []connector.Contact) ([]connector.PushOutcome, error) {
		return []connector.PushOutcome{
			{LeadID: contacts[0].LeadID, ExternalID: "SF-1", Created: true},
		}, apperr.Unauthorized("token expired")
	}

	job, err := f.orch.RunSync(context.Background(), domain.CRMSalesforce, domain.DirectionPush)
	if apperr.GetKind(err) != apperr.KindUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	if job.Status != domain.JobFailed {
		t.Fatalf("expected failed job, got %s", job.Status)
	}
	if job.Created != 1 {
		t.Fatalf("expected partial counts retained, got created=%d", job.Created)
	}
	if job.Failure == "" {
		t.Fatal("expected job-level failure message")
	}
	if got := f.orch.state(domain.CRMSalesforce); got != domain.StateError {
		t.Fatalf("expected error state after auth failure, got %s", got)
	}
	if len(f.store.finished) != 1 {
		t.Fatalf("expected job persisted, got %d finished", len(f.store.finished))
	}
}

func TestPullCreatesUnknownRemoteContact(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	f.conn.pull = func(cursor string) (connector.Page, error) {
		if cursor != "" {
			return connector.Page{}, nil
		}
		return connector.Page{Contacts: []connector.RemoteContact{
			{ExternalID: "SF-7", Username: "nora", Email: "nora@example.com"},
		}}, nil
	}

	job, err := f.orch.RunSync(context.Background(), domain.CRMSalesforce, domain.DirectionPull)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Created != 1 || job.Failed != 0 {
		t.Fatalf("expected 1 created, got %d/%d", job.Created, job.Failed)
	}
	if len(f.leads.leads) != 1 {
		t.Fatalf("expected one local lead created, got %d", len(f.leads.leads))
	}
	mapping, err := f.leadData.GetMappingByExternalID(context.Background(), "salesforce", "SF-7")
	if err != nil {
		t.Fatal("expected mapping attached to the new lead")
	}
	if mapping.ExternalID != "SF-7" {
		t.Fatalf("unexpected mapping %+v", mapping)
	}
}

func TestPullAttachesMappingToIdentityMatch(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	existing := leadsdomain.Lead{ID: uuid.New(), Platform: "instagram", Username: "lena"}
	f.leadData.byEmail["lena@example.com"] = existing

	f.conn.pull = func(cursor string) (connector.Page, error) {
		if cursor != "" {
			return connector.Page{}, nil
		}
		return connector.Page{Contacts: []connector.RemoteContact{
			{ExternalID: "SF-3", Username: "lena", Email: "lena@example.com"},
		}}, nil
	}

	job, err := f.orch.RunSync(context.Background(), domain.CRMSalesforce, domain.DirectionPull)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Created != 0 || job.Updated != 1 {
		t.Fatalf("expected identity match to update, got created=%d updated=%d", job.Created, job.Updated)
	}
	if len(f.leads.leads) != 0 {
		t.Fatal("expected no duplicate lead created")
	}
	mapping, err := f.leadData.GetMapping(context.Background(), existing.ID, "salesforce")
	if err != nil || mapping.ExternalID != "SF-3" {
		t.Fatalf("expected mapping attached to existing lead, got %+v err=%v", mapping, err)
	}
}

func TestPullConflictKeepsEarlierMapping(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	existing := leadsdomain.Lead{ID: uuid.New(), Platform: "instagram", Username: "lena"}
	f.leadData.byEmail["lena@example.com"] = existing
	if err := f.leadData.SaveMapping(context.Background(), leadsdomain.ExternalMapping{
		LeadID:     existing.ID,
		CRM:        "salesforce",
		ExternalID: "SF-OLD",
	}); err != nil {
		t.Fatalf("save mapping: %v", err)
	}

	f.conn.pull = func(cursor string) (connector.Page, error) {
		if cursor != "" {
			return connector.Page{}, nil
		}
		return connector.Page{Contacts: []connector.RemoteContact{
			{ExternalID: "SF-NEW", Username: "lena", Email: "lena@example.com"},
		}}, nil
	}

	job, err := f.orch.RunSync(context.Background(), domain.CRMSalesforce, domain.DirectionPull)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Failed != 1 {
		t.Fatalf("expected conflicting record to fail, got failed=%d", job.Failed)
	}
	mapping, err := f.leadData.GetMapping(context.Background(), existing.ID, "salesforce")
	if err != nil || mapping.ExternalID != "SF-OLD" {
		t.Fatalf("expected the earlier mapping to win, got %+v err=%v", mapping, err)
	}
}

func TestPullAppliesConversionSignal(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	existing := leadsdomain.Lead{ID: uuid.New(), Platform: "instagram", Username: "lena"}
	if err := f.leadData.SaveMapping(context.Background(), leadsdomain.ExternalMapping{
		LeadID:     existing.ID,
		CRM:        "salesforce",
		ExternalID: "SF-5",
	}); err != nil {
		t.Fatalf("save mapping: %v", err)
	}

	f.conn.pull = func(cursor string) (connector.Page, error) {
		if cursor != "" {
			return connector.Page{}, nil
		}
		return connector.Page{Contacts: []connector.RemoteContact{
			{ExternalID: "SF-5", Username: "lena", Converted: true},
		}}, nil
	}

	if _, err := f.orch.RunSync(context.Background(), domain.CRMSalesforce, domain.DirectionPull); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.leadData.converted) != 1 || f.leadData.converted[0] != existing.ID {
		t.Fatalf("expected conversion recorded for mapped lead, got %v", f.leadData.converted)
	}
	if len(f.leads.recalculated) != 1 || f.leads.recalculated[0] != existing.ID {
		t.Fatalf("expected rescore after conversion, got %v", f.leads.recalculated)
	}
}

func TestPushPaginatesPastFailedRecords(t *testing.T) {
	f := newFixture(t)
	factory := func(domain.Credential) connector.Connector { return f.conn }
	f.orch = New(f.leads, f.leadData, f.store, factory, nil, Options{BatchSize: 2, PageSize: 10, PullPerSec: 1000}, logger.New("development"))
	f.connect(t)

	base := time.Now().UTC()
	goodLead := uuid.New()
	f.leadData.pending = []leadsrepo.LeadWithMapping{
		{Lead: leadsdomain.Lead{ID: uuid.New(), Username: "bad1", UpdatedAt: base.Add(-3 * time.Minute)}},
		{Lead: leadsdomain.Lead{ID: uuid.New(), Username: "bad2", UpdatedAt: base.Add(-2 * time.Minute)}},
		{Lead: leadsdomain.Lead{ID: goodLead, Username: "good", UpdatedAt: base.Add(-time.Minute)}},
	}

	f.conn.push = func(contacts []connector.Contact) ([]connector.PushOutcome, error) {
		outcomes := make([]connector.PushOutcome, 0, len(contacts))
		for _, contact := range contacts {
			outcome := connector.PushOutcome{LeadID: contact.LeadID}
			if contact.LeadID == goodLead {
				outcome.ExternalID = "SF-OK"
				outcome.Created = true
			} else {
				outcome.Err = apperr.Validation("missing required field")
			}
			outcomes = append(outcomes, outcome)
		}
		return outcomes, nil
	}

	job, err := f.orch.RunSync(context.Background(), domain.CRMSalesforce, domain.DirectionPush)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Attempted() != 3 {
		t.Fatalf("expected all due leads attempted despite a failing first page, got %d", job.Attempted())
	}
	if job.Created != 1 || job.Failed != 2 {
		t.Fatalf("expected 1 created and 2 failed, got %d/%d", job.Created, job.Failed)
	}
	if _, err := f.leadData.GetMappingByExternalID(context.Background(), "salesforce", "SF-OK"); err != nil {
		t.Fatal("expected the lead beyond the failing page to be pushed")
	}
}

func TestPullSkipsStaleRemoteRecord(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	now := time.Now().UTC()
	staleLead := leadsdomain.Lead{ID: uuid.New(), Platform: "instagram", Username: "lena"}
	freshLead := leadsdomain.Lead{ID: uuid.New(), Platform: "instagram", Username: "marc"}
	for _, mapping := range []leadsdomain.ExternalMapping{
		{LeadID: staleLead.ID, CRM: "salesforce", ExternalID: "SF-STALE", LastSyncedAt: now},
		{LeadID: freshLead.ID, CRM: "salesforce", ExternalID: "SF-FRESH", LastSyncedAt: now.Add(-time.Hour)},
	} {
		if err := f.leadData.SaveMapping(context.Background(), mapping); err != nil {
			t.Fatalf("save mapping: %v", err)
		}
	}

	f.conn.pull = func(cursor string) (connector.Page, error) {
		if cursor != "" {
			return connector.Page{}, nil
		}
		return connector.Page{Contacts: []connector.RemoteContact{
			{ExternalID: "SF-STALE", Username: "lena", DisplayName: "Old Name", UpdatedAt: now.Add(-48 * time.Hour)},
			{ExternalID: "SF-FRESH", Username: "marc", DisplayName: "New Name", UpdatedAt: now},
		}}, nil
	}

	job, err := f.orch.RunSync(context.Background(), domain.CRMSalesforce, domain.DirectionPull)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Updated != 2 || job.Failed != 0 {
		t.Fatalf("expected both records processed, got updated=%d failed=%d", job.Updated, job.Failed)
	}
	if len(f.leadData.updated) != 1 || f.leadData.updated[0] != freshLead.ID {
		t.Fatalf("expected only the fresher remote record to overwrite local fields, got %v", f.leadData.updated)
	}
}

func TestDisconnectRemovesCredential(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	if err := f.orch.Disconnect(context.Background(), domain.CRMSalesforce); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.orch.state(domain.CRMSalesforce); got != domain.StateDisconnected {
		t.Fatalf("expected disconnected, got %s", got)
	}
	if _, err := f.orch.RunSync(context.Background(), domain.CRMSalesforce, domain.DirectionPush); err == nil {
		t.Fatal("expected sync rejection after disconnect")
	}
}

func TestStatusReportsAllPlatforms(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	statuses, err := f.orch.Status(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(statuses) != len(domain.All) {
		t.Fatalf("expected %d platforms, got %d", len(domain.All), len(statuses))
	}

	byPlatform := make(map[domain.CRM]PlatformStatus, len(statuses))
	for _, status := range statuses {
		byPlatform[status.Platform] = status
	}
	if byPlatform[domain.CRMSalesforce].State != domain.StateConnected {
		t.Fatalf("expected salesforce connected, got %s", byPlatform[domain.CRMSalesforce].State)
	}
	if byPlatform[domain.CRMHubSpot].State != domain.StateDisconnected {
		t.Fatalf("expected hubspot disconnected, got %s", byPlatform[domain.CRMHubSpot].State)
	}
}
