// Package orchestrator drives CRM synchronization: it owns the per-platform
// connection state machine and runs push and pull jobs against connectors.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"leadpulse_backend/internal/events"
	leadsdomain "leadpulse_backend/internal/leads/domain"
	leadsrepo "leadpulse_backend/internal/leads/repository"
	"leadpulse_backend/internal/sync/connector"
	"leadpulse_backend/internal/sync/domain"
	"leadpulse_backend/internal/sync/repository"
	"leadpulse_backend/platform/apperr"
	"leadpulse_backend/platform/logger"
	"leadpulse_backend/platform/phone"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// LeadStore is the slice of the lead service the orchestrator needs: creating
// leads discovered on pull and rescoring after a remote conversion signal.
type LeadStore interface {
	Upsert(ctx context.Context, identity leadsdomain.Identity) (leadsdomain.Lead, error)
	Recalculate(ctx context.Context, id uuid.UUID) (leadsdomain.Lead, error)
}

// LeadData is the repository access the orchestrator needs beyond the service.
type LeadData interface {
	leadsrepo.MappingStore
	UpdateContact(ctx context.Context, id uuid.UUID, params leadsrepo.UpdateContactParams) error
	SetConverted(ctx context.Context, id uuid.UUID, at time.Time) error
}

// SyncStore persists jobs and credentials.
type SyncStore interface {
	CreateJob(ctx context.Context, platform domain.CRM, direction domain.Direction) (domain.SyncJob, error)
	FinishJob(ctx context.Context, job domain.SyncJob) error
	ListJobs(ctx context.Context, platform *domain.CRM, limit int) ([]domain.SyncJob, error)
	LastJob(ctx context.Context, platform domain.CRM) (domain.SyncJob, error)
	SaveCredential(ctx context.Context, credential domain.Credential) error
	GetCredential(ctx context.Context, platform domain.CRM) (domain.Credential, error)
	DeleteCredential(ctx context.Context, platform domain.CRM) error
}

// ConnectorFactory builds a connector for a credential. Injected so tests can
// substitute fakes and point adapters at local servers.
type ConnectorFactory func(credential domain.Credential) connector.Connector

// Options tunes batch sizes and the pull rate limit.
type Options struct {
	BatchSize  int
	PageSize   int
	PullPerSec float64
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.PageSize <= 0 {
		o.PageSize = 100
	}
	if o.PullPerSec <= 0 {
		o.PullPerSec = 2
	}
	return o
}

// platformState is the per-CRM runtime state. Pulls are serialized per
// platform; pushes to different platforms may run concurrently.
type platformState struct {
	mu      sync.Mutex
	state   domain.ConnectionState
	limiter *rate.Limiter
}

// Orchestrator implements the sync state machine.
type Orchestrator struct {
	leads    LeadStore
	leadData LeadData
	store    SyncStore
	factory  ConnectorFactory
	bus      events.Bus
	opts     Options
	log      *logger.Logger

	mu        sync.Mutex
	platforms map[domain.CRM]*platformState
}

// New creates the orchestrator. Platforms with a stored credential start in
// the connected state after Restore is called.
func New(leads LeadStore, leadData LeadData, store SyncStore, factory ConnectorFactory, bus events.Bus, opts Options, log *logger.Logger) *Orchestrator {
	o := &Orchestrator{
		leads:     leads,
		leadData:  leadData,
		store:     store,
		factory:   factory,
		bus:       bus,
		opts:      opts.withDefaults(),
		log:       log,
		platforms: make(map[domain.CRM]*platformState),
	}
	for _, crm := range domain.All {
		o.platforms[crm] = &platformState{
			state:   domain.StateDisconnected,
			limiter: rate.NewLimiter(rate.Limit(o.opts.PullPerSec), 1),
		}
	}
	return o
}

// Restore re-establishes connections for platforms with stored credentials.
// Called once at startup; a failing credential leaves the platform in the
// error state rather than blocking boot.
func (o *Orchestrator) Restore(ctx context.Context) {
	for _, crm := range domain.All {
		credential, err := o.store.GetCredential(ctx, crm)
		if errors.Is(err, repository.ErrCredentialNotFound) {
			continue
		}
		if err != nil {
			o.log.Error("credential restore failed", "platform", crm, "error", err)
			continue
		}

		if err := o.factory(credential).TestConnection(ctx); err != nil {
			o.log.Error("connection restore failed", "platform", crm, "error", err)
			o.setState(ctx, crm, domain.StateError)
			continue
		}
		o.setState(ctx, crm, domain.StateConnected)
	}
}

// Connect validates the credential against the CRM and stores it sealed. A
// failed validation leaves the platform disconnected and stores nothing.
func (o *Orchestrator) Connect(ctx context.Context, credential domain.Credential) error {
	if !credential.Platform.Valid() {
		return apperr.Validation("unknown CRM platform").WithDetails(string(credential.Platform))
	}
	if credential.APIKey == "" {
		return apperr.Validation("api key is required")
	}

	o.setState(ctx, credential.Platform, domain.StateConnecting)

	if err := o.factory(credential).TestConnection(ctx); err != nil {
		o.setState(ctx, credential.Platform, domain.StateDisconnected)
		return err
	}

	if err := o.store.SaveCredential(ctx, credential); err != nil {
		o.setState(ctx, credential.Platform, domain.StateError)
		return err
	}

	o.setState(ctx, credential.Platform, domain.StateConnected)
	return nil
}

// Disconnect removes the credential and returns the platform to disconnected.
// Mappings are kept so a later reconnect resumes without re-matching.
func (o *Orchestrator) Disconnect(ctx context.Context, platform domain.CRM) error {
	if !platform.Valid() {
		return apperr.Validation("unknown CRM platform").WithDetails(string(platform))
	}
	if err := o.store.DeleteCredential(ctx, platform); err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return apperr.NotFound("platform is not connected")
		}
		return err
	}
	o.setState(ctx, platform, domain.StateDisconnected)
	return nil
}

// PlatformStatus describes one CRM connection for the status endpoint.
type PlatformStatus struct {
	Platform domain.CRM             `json:"platform"`
	State    domain.ConnectionState `json:"state"`
	Mapped   int                    `json:"mappedLeads"`
	LastJob  *domain.SyncJob        `json:"lastJob,omitempty"`
}

// Status reports every platform's connection state, mapping count and most
// recent job.
func (o *Orchestrator) Status(ctx context.Context) ([]PlatformStatus, error) {
	statuses := make([]PlatformStatus, 0, len(domain.All))
	for _, crm := range domain.All {
		status := PlatformStatus{Platform: crm, State: o.state(crm)}

		mapped, err := o.leadData.CountMappings(ctx, string(crm))
		if err != nil {
			return nil, err
		}
		status.Mapped = mapped

		job, err := o.store.LastJob(ctx, crm)
		if err == nil {
			status.LastJob = &job
		} else if !errors.Is(err, repository.ErrJobNotFound) {
			return nil, err
		}

		statuses = append(statuses, status)
	}
	return statuses, nil
}

// RunSync executes one push or pull job for the platform. The platform must
// be connected; concurrent syncs for the same platform are rejected.
func (o *Orchestrator) RunSync(ctx context.Context, platform domain.CRM, direction domain.Direction) (domain.SyncJob, error) {
	if !platform.Valid() {
		return domain.SyncJob{}, apperr.Validation("unknown CRM platform").WithDetails(string(platform))
	}
	if !direction.Valid() {
		return domain.SyncJob{}, apperr.Validation("unknown sync direction").WithDetails(string(direction))
	}

	ps := o.platformState(platform)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.state != domain.StateConnected {
		return domain.SyncJob{}, apperr.Conflict("platform is not connected").WithDetails(string(ps.state))
	}

	credential, err := o.store.GetCredential(ctx, platform)
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return domain.SyncJob{}, apperr.Conflict("platform is not connected")
		}
		return domain.SyncJob{}, err
	}

	job, err := o.store.CreateJob(ctx, platform, direction)
	if err != nil {
		return domain.SyncJob{}, err
	}

	o.transition(ctx, platform, ps, domain.StateSyncing)

	conn := o.factory(credential)
	var runErr error
	if direction == domain.DirectionPush {
		runErr = o.runPush(ctx, conn, &job)
	} else {
		runErr = o.runPull(ctx, conn, ps, &job)
	}

	job.Status = jobOutcome(&job, runErr)
	if err := o.store.FinishJob(ctx, job); err != nil {
		o.log.Error("finish job failed", "jobId", job.ID, "error", err)
	}

	next := domain.StateConnected
	if job.Status == domain.JobFailed {
		next = domain.StateError
	}
	o.transition(ctx, platform, ps, next)

	if o.bus != nil {
		o.bus.Publish(ctx, events.SyncJobCompleted{
			BaseEvent: events.NewBaseEvent(),
			JobID:     job.ID,
			Platform:  string(platform),
			Direction: string(direction),
			Created:   job.Created,
			Updated:   job.Updated,
			Failed:    job.Failed,
			Failure:   job.Failure,
		})
	}

	o.log.SyncJob(string(platform), string(direction), job.Created, job.Updated, job.Failed, runErr)
	return job, runErr
}

// RunAll syncs every connected platform in the given direction concurrently.
// One platform's failure does not stop the others.
func (o *Orchestrator) RunAll(ctx context.Context, direction domain.Direction) ([]domain.SyncJob, error) {
	var (
		mu   sync.Mutex
		jobs []domain.SyncJob
	)

	g, ctx := errgroup.WithContext(ctx)
	for _, crm := range domain.All {
		if o.state(crm) != domain.StateConnected {
			continue
		}
		g.Go(func() error {
			job, err := o.RunSync(ctx, crm, direction)
			if err != nil && !isJobLevelFailure(err) {
				return err
			}
			mu.Lock()
			jobs = append(jobs, job)
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	return jobs, err
}

// Jobs lists recent sync jobs, optionally filtered by platform.
func (o *Orchestrator) Jobs(ctx context.Context, platform *domain.CRM, limit int) ([]domain.SyncJob, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return o.store.ListJobs(ctx, platform, limit)
}

// runPush sends local leads changed since their last sync. Record failures
// are accumulated; an auth failure aborts with the partial counts retained.
func (o *Orchestrator) runPush(ctx context.Context, conn connector.Connector, job *domain.SyncJob) error {
	crm := string(conn.Platform())
	// Failed records stay due, so the keyset cursor steps past each page and
	// the attempted set guards against re-pushing a lead whose row moved in
	// the ordering mid-run.
	var cursor leadsrepo.PushCursor
	attempted := make(map[uuid.UUID]struct{})
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		pending, err := o.leadData.ListForPush(ctx, crm, cursor, o.opts.BatchSize)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return nil
		}
		last := pending[len(pending)-1].Lead
		cursor = leadsrepo.PushCursor{UpdatedAt: last.UpdatedAt, ID: last.ID}

		contacts := make([]connector.Contact, 0, len(pending))
		for _, item := range pending {
			if _, ok := attempted[item.Lead.ID]; ok {
				continue
			}
			attempted[item.Lead.ID] = struct{}{}
			contacts = append(contacts, toContact(item))
		}
		if len(contacts) > 0 {
			outcomes, batchErr := conn.PushBatch(ctx, contacts)
			now := time.Now().UTC()
			for _, outcome := range outcomes {
				o.applyPushOutcome(ctx, crm, outcome, now, job)
			}
			if batchErr != nil {
				return batchErr
			}
		}

		if len(pending) < o.opts.BatchSize {
			return nil
		}
	}
}

func (o *Orchestrator) applyPushOutcome(ctx context.Context, crm string, outcome connector.PushOutcome, now time.Time, job *domain.SyncJob) {
	if outcome.Err != nil {
		leadID := outcome.LeadID
		job.Failed++
		job.Errors = append(job.Errors, domain.RecordError{
			LeadID:  &leadID,
			Message: outcome.Err.Error(),
		})
		return
	}

	err := o.leadData.SaveMapping(ctx, leadsdomain.ExternalMapping{
		LeadID:       outcome.LeadID,
		CRM:          crm,
		ExternalID:   outcome.ExternalID,
		LastSyncedAt: now,
	})
	if err != nil {
		leadID := outcome.LeadID
		job.Failed++
		job.Errors = append(job.Errors, domain.RecordError{
			LeadID:  &leadID,
			Message: fmt.Sprintf("save mapping: %v", err),
		})
		return
	}

	if outcome.Created {
		job.Created++
	} else {
		job.Updated++
	}
}

// runPull pages through remote contacts under the platform rate limiter and
// reconciles each record against the local store.
func (o *Orchestrator) runPull(ctx context.Context, conn connector.Connector, ps *platformState, job *domain.SyncJob) error {
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := ps.limiter.Wait(ctx); err != nil {
			return err
		}

		page, err := conn.PullBatch(ctx, cursor, o.opts.PageSize)
		if err != nil {
			return err
		}

		for _, remote := range page.Contacts {
			if err := ctx.Err(); err != nil {
				return err
			}
			o.reconcile(ctx, conn.Platform(), remote, job)
		}

		if page.Cursor == "" {
			return nil
		}
		cursor = page.Cursor
	}
}

// reconcile applies one remote record: an existing mapping updates the lead's
// remote-owned fields, an identity match attaches a mapping, and everything
// else creates a new lead. Score, grade and status are never imported.
func (o *Orchestrator) reconcile(ctx context.Context, platform domain.CRM, remote connector.RemoteContact, job *domain.SyncJob) {
	crm := string(platform)
	now := time.Now().UTC()

	recordFailed := func(format string, args ...any) {
		job.Failed++
		job.Errors = append(job.Errors, domain.RecordError{
			ExternalID: remote.ExternalID,
			Message:    fmt.Sprintf(format, args...),
		})
	}

	mapping, err := o.leadData.GetMappingByExternalID(ctx, crm, remote.ExternalID)
	switch {
	case err == nil:
		// The local copy is at least as fresh as the remote record; keep the
		// local fields and only advance the sync watermark.
		if !remote.UpdatedAt.IsZero() && !remote.UpdatedAt.After(mapping.LastSyncedAt) {
			if err := o.leadData.MarkSynced(ctx, mapping.LeadID, crm, now); err != nil {
				recordFailed("mark synced: %v", err)
				return
			}
			job.Updated++
			return
		}
		if err := o.applyRemote(ctx, mapping.LeadID, crm, remote, now); err != nil {
			recordFailed("apply remote update: %v", err)
			return
		}
		job.Updated++

	case errors.Is(err, leadsrepo.ErrMappingNotFound):
		lead, err := o.leadData.FindByEmailOrUsername(ctx, remote.Email, remote.Username)
		if errors.Is(err, leadsrepo.ErrNotFound) {
			lead, err = o.createFromRemote(ctx, platform, remote)
			if err != nil {
				recordFailed("create lead: %v", err)
				return
			}
			if err := o.attachAndApply(ctx, lead.ID, crm, remote, now); err != nil {
				recordFailed("attach mapping: %v", err)
				return
			}
			job.Created++
			return
		}
		if err != nil {
			recordFailed("identity match: %v", err)
			return
		}

		// Identity match. If the lead already maps to a different remote
		// record, the earlier mapping wins and this record is skipped.
		existing, err := o.leadData.GetMapping(ctx, lead.ID, crm)
		if err == nil && existing.ExternalID != remote.ExternalID {
			o.log.Warn("conflicting remote record skipped",
				"platform", crm, "leadId", lead.ID,
				"mappedExternalId", existing.ExternalID, "externalId", remote.ExternalID)
			recordFailed("lead already mapped to %s", existing.ExternalID)
			return
		}
		if err != nil && !errors.Is(err, leadsrepo.ErrMappingNotFound) {
			recordFailed("mapping lookup: %v", err)
			return
		}

		if err := o.attachAndApply(ctx, lead.ID, crm, remote, now); err != nil {
			recordFailed("attach mapping: %v", err)
			return
		}
		job.Updated++

	default:
		recordFailed("mapping lookup: %v", err)
	}
}

func (o *Orchestrator) createFromRemote(ctx context.Context, platform domain.CRM, remote connector.RemoteContact) (leadsdomain.Lead, error) {
	username := remote.Username
	if username == "" {
		// CRM-only contacts with no social handle get a stable synthetic
		// identity derived from the remote record id.
		username = "crm:" + remote.ExternalID
	}
	return o.leads.Upsert(ctx, leadsdomain.Identity{
		Platform:    string(platform),
		Username:    username,
		DisplayName: remote.DisplayName,
	})
}

func (o *Orchestrator) attachAndApply(ctx context.Context, leadID uuid.UUID, crm string, remote connector.RemoteContact, now time.Time) error {
	if err := o.leadData.SaveMapping(ctx, leadsdomain.ExternalMapping{
		LeadID:       leadID,
		CRM:          crm,
		ExternalID:   remote.ExternalID,
		LastSyncedAt: now,
	}); err != nil {
		return err
	}
	return o.applyRemote(ctx, leadID, crm, remote, now)
}

// applyRemote writes the remote-owned contact fields and the conversion
// signal, then rescores. Locally owned fields are never touched.
func (o *Orchestrator) applyRemote(ctx context.Context, leadID uuid.UUID, crm string, remote connector.RemoteContact, now time.Time) error {
	params := leadsrepo.UpdateContactParams{}
	if remote.DisplayName != "" {
		params.DisplayName = &remote.DisplayName
	}
	if remote.Email != "" {
		params.Email = &remote.Email
	}
	if remote.Phone != "" {
		normalized := phone.NormalizeE164(remote.Phone)
		params.Phone = &normalized
	}
	if err := o.leadData.UpdateContact(ctx, leadID, params); err != nil {
		return err
	}

	if remote.Converted {
		if err := o.leadData.SetConverted(ctx, leadID, now); err != nil {
			return err
		}
		if _, err := o.leads.Recalculate(ctx, leadID); err != nil {
			return err
		}
	}

	return o.leadData.MarkSynced(ctx, leadID, crm, now)
}

func (o *Orchestrator) platformState(crm domain.CRM) *platformState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.platforms[crm]
}

func (o *Orchestrator) state(crm domain.CRM) domain.ConnectionState {
	ps := o.platformState(crm)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.state
}

// setState changes a platform's state taking its lock.
func (o *Orchestrator) setState(ctx context.Context, crm domain.CRM, next domain.ConnectionState) {
	ps := o.platformState(crm)
	ps.mu.Lock()
	changed := ps.state != next
	ps.state = next
	ps.mu.Unlock()
	if changed {
		o.publishState(ctx, crm, next)
	}
}

// transition changes state while the caller already holds the platform lock.
func (o *Orchestrator) transition(ctx context.Context, crm domain.CRM, ps *platformState, next domain.ConnectionState) {
	changed := ps.state != next
	ps.state = next
	if changed {
		o.publishState(ctx, crm, next)
	}
}

func (o *Orchestrator) publishState(ctx context.Context, crm domain.CRM, state domain.ConnectionState) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(ctx, events.ConnectionStateChanged{
		BaseEvent: events.NewBaseEvent(),
		Platform:  string(crm),
		State:     string(state),
	})
}

// jobOutcome derives the terminal job status: a run error fails the job, any
// record failures make it partial, otherwise it completed.
func jobOutcome(job *domain.SyncJob, runErr error) domain.JobStatus {
	if runErr != nil {
		job.Failure = runErr.Error()
		return domain.JobFailed
	}
	if job.Failed > 0 {
		return domain.JobPartial
	}
	return domain.JobCompleted
}

// isJobLevelFailure reports whether the error was already absorbed into a
// job record (vs. an infrastructure failure worth surfacing).
func isJobLevelFailure(err error) bool {
	kind := apperr.GetKind(err)
	return kind == apperr.KindUnauthorized || kind == apperr.KindTransient
}

func toContact(item leadsrepo.LeadWithMapping) connector.Contact {
	contact := connector.Contact{
		LeadID:      item.Lead.ID,
		ExternalID:  item.ExternalID,
		Username:    item.Lead.Username,
		DisplayName: item.Lead.DisplayName,
		Score:       item.Lead.Score,
		Grade:       string(item.Lead.Grade),
		Status:      string(item.Lead.Status),
	}
	if item.Lead.Email != nil {
		contact.Email = *item.Lead.Email
	}
	if item.Lead.Phone != nil {
		contact.Phone = *item.Lead.Phone
	}
	return contact
}
