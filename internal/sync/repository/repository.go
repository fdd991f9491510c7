// Package repository persists sync jobs and sealed CRM credentials.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"leadpulse_backend/internal/sync/domain"
	"leadpulse_backend/platform/secretbox"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrJobNotFound        = errors.New("sync job not found")
	ErrCredentialNotFound = errors.New("crm credential not found")
)

// Repository is the pgx-backed store for the sync module. The credential key
// seals API tokens at rest; they are only opened in memory.
type Repository struct {
	pool          *pgxpool.Pool
	credentialKey []byte
}

// New creates the sync repository.
func New(pool *pgxpool.Pool, credentialKey []byte) *Repository {
	return &Repository{pool: pool, credentialKey: credentialKey}
}

// =====================================
// Sync jobs
// =====================================

const jobColumns = `id, platform, direction, status, created_count, updated_count, failed_count, errors, failure, started_at, finished_at`

// CreateJob inserts a running job and returns it.
func (r *Repository) CreateJob(ctx context.Context, platform domain.CRM, direction domain.Direction) (domain.SyncJob, error) {
	job := domain.SyncJob{
		ID:        uuid.New(),
		Platform:  platform,
		Direction: direction,
		Status:    domain.JobRunning,
		StartedAt: time.Now().UTC(),
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO sync_jobs (id, platform, direction, status, started_at)
		VALUES ($1, $2, $3, $4, $5)
	`, job.ID, job.Platform, job.Direction, job.Status, job.StartedAt)
	if err != nil {
		return domain.SyncJob{}, err
	}
	return job, nil
}

// FinishJob records a job's terminal state, counts and record errors.
func (r *Repository) FinishJob(ctx context.Context, job domain.SyncJob) error {
	encoded, err := json.Marshal(job.Errors)
	if err != nil {
		return fmt.Errorf("encode record errors: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE sync_jobs SET
			status = $2,
			created_count = $3,
			updated_count = $4,
			failed_count = $5,
			errors = $6,
			failure = $7,
			finished_at = now()
		WHERE id = $1
	`, job.ID, job.Status, job.Created, job.Updated, job.Failed, encoded, job.Failure)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// GetJob returns one job by id.
func (r *Repository) GetJob(ctx context.Context, id uuid.UUID) (domain.SyncJob, error) {
	return scanJob(r.pool.QueryRow(ctx, `
		SELECT `+jobColumns+` FROM sync_jobs WHERE id = $1
	`, id))
}

// ListJobs returns recent jobs, newest first, optionally filtered by platform.
func (r *Repository) ListJobs(ctx context.Context, platform *domain.CRM, limit int) ([]domain.SyncJob, error) {
	query := `SELECT ` + jobColumns + ` FROM sync_jobs`
	args := []any{}
	if platform != nil {
		query += ` WHERE platform = $1`
		args = append(args, *platform)
	}
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT %d`, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]domain.SyncJob, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// LastJob returns the most recent job for a platform, if any.
func (r *Repository) LastJob(ctx context.Context, platform domain.CRM) (domain.SyncJob, error) {
	return scanJob(r.pool.QueryRow(ctx, `
		SELECT `+jobColumns+` FROM sync_jobs
		WHERE platform = $1 ORDER BY started_at DESC LIMIT 1
	`, platform))
}

func scanJob(row pgx.Row) (domain.SyncJob, error) {
	var (
		job     domain.SyncJob
		encoded []byte
	)
	err := row.Scan(&job.ID, &job.Platform, &job.Direction, &job.Status,
		&job.Created, &job.Updated, &job.Failed, &encoded, &job.Failure,
		&job.StartedAt, &job.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SyncJob{}, ErrJobNotFound
	}
	if err != nil {
		return domain.SyncJob{}, err
	}
	if len(encoded) > 0 {
		if err := json.Unmarshal(encoded, &job.Errors); err != nil {
			return domain.SyncJob{}, fmt.Errorf("decode record errors: %w", err)
		}
	}
	return job, nil
}

// =====================================
// CRM credentials
// =====================================

// SaveCredential seals the API key and upserts the platform's credential.
func (r *Repository) SaveCredential(ctx context.Context, credential domain.Credential) error {
	sealed, err := secretbox.Seal(credential.APIKey, r.credentialKey)
	if err != nil {
		return fmt.Errorf("seal credential: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO crm_credentials (platform, base_url, sealed_key, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (platform) DO UPDATE SET
			base_url = EXCLUDED.base_url,
			sealed_key = EXCLUDED.sealed_key,
			updated_at = now()
	`, credential.Platform, credential.BaseURL, sealed)
	return err
}

// GetCredential returns the platform's credential with the API key opened.
func (r *Repository) GetCredential(ctx context.Context, platform domain.CRM) (domain.Credential, error) {
	var (
		credential domain.Credential
		sealed     string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT platform, base_url, sealed_key, created_at, updated_at
		FROM crm_credentials WHERE platform = $1
	`, platform).Scan(&credential.Platform, &credential.BaseURL, &sealed,
		&credential.CreatedAt, &credential.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Credential{}, ErrCredentialNotFound
	}
	if err != nil {
		return domain.Credential{}, err
	}

	credential.APIKey, err = secretbox.Open(sealed, r.credentialKey)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("open credential: %w", err)
	}
	return credential, nil
}

// DeleteCredential removes the platform's credential, disconnecting it.
func (r *Repository) DeleteCredential(ctx context.Context, platform domain.CRM) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM crm_credentials WHERE platform = $1`, platform)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCredentialNotFound
	}
	return nil
}
