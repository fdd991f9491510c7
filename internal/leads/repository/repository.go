// Package repository persists the lead aggregate, its engagement log and its
// external CRM mappings in PostgreSQL.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"leadpulse_backend/internal/leads/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("lead not found")

const leadColumns = `id, platform, username, display_name, email, phone,
	likes_count, comments_count, shares_count, followed, dm_sent, dm_replied_at,
	converted_at, churned_at, last_engagement_at, score, grade, status,
	created_at, updated_at`

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Upsert creates the lead for an identity if it does not exist yet. The
// returned bool reports whether a new lead was created. Unknown identities
// always succeed by creating a new lead.
func (r *Repository) Upsert(ctx context.Context, identity domain.Identity) (domain.Lead, bool, error) {
	var (
		lead    domain.Lead
		created bool
	)
	err := r.pool.QueryRow(ctx, `
		INSERT INTO leads (platform, username, display_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (platform, username) DO UPDATE SET
			display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), leads.display_name),
			updated_at = now()
		RETURNING `+leadColumns+`, (xmax = 0)
	`, identity.Platform, identity.Username, identity.DisplayName).Scan(
		leadFields(&lead, &created)...,
	)
	if err != nil {
		return domain.Lead{}, false, err
	}

	return lead, created, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	return scanLead(row)
}

func (r *Repository) GetByIdentity(ctx context.Context, platform, username string) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+leadColumns+` FROM leads WHERE platform = $1 AND username = $2
	`, platform, username)
	return scanLead(row)
}

// List returns leads matching the filter, most recently engaged first.
func (r *Repository) List(ctx context.Context, params ListParams) ([]domain.Lead, error) {
	conditions := make([]string, 0, 3)
	args := make([]interface{}, 0, 3)

	if params.Status != nil {
		args = append(args, *params.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if params.Platform != nil {
		args = append(args, *params.Platform)
		conditions = append(conditions, fmt.Sprintf("platform = $%d", len(args)))
	}
	if search := strings.TrimSpace(params.Search); search != "" {
		args = append(args, "%"+search+"%")
		conditions = append(conditions, fmt.Sprintf("(username ILIKE $%d OR display_name ILIKE $%d)", len(args), len(args)))
	}

	query := `SELECT ` + leadColumns + ` FROM leads`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY last_engagement_at DESC NULLS LAST, created_at DESC"
	if params.Limit > 0 {
		args = append(args, params.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectLeads(rows)
}

// ListIDs returns every lead id, used by full recalculation passes.
func (r *Repository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM leads ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateScore persists a recompute result.
func (r *Repository) UpdateScore(ctx context.Context, id uuid.UUID, score int, grade domain.Grade, status domain.Status) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads SET score = $2, grade = $3, status = $4, updated_at = now()
		WHERE id = $1
	`, id, score, grade, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateContact applies remote-owned contact fields during a pull. Score,
// grade and status are never touched here.
func (r *Repository) UpdateContact(ctx context.Context, id uuid.UUID, params UpdateContactParams) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads SET
			display_name = COALESCE($2, display_name),
			email = COALESCE($3, email),
			phone = COALESCE($4, phone),
			updated_at = now()
		WHERE id = $1
	`, id, params.DisplayName, params.Email, params.Phone)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanLead(row pgx.Row) (domain.Lead, error) {
	var lead domain.Lead
	err := row.Scan(leadFields(&lead)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	if err != nil {
		return domain.Lead{}, err
	}
	return lead, nil
}

func collectLeads(rows pgx.Rows) ([]domain.Lead, error) {
	leads := make([]domain.Lead, 0)
	for rows.Next() {
		var lead domain.Lead
		if err := rows.Scan(leadFields(&lead)...); err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}

// leadFields returns scan destinations in leadColumns order, with optional
// extra destinations appended.
func leadFields(lead *domain.Lead, extra ...interface{}) []interface{} {
	fields := []interface{}{
		&lead.ID, &lead.Platform, &lead.Username, &lead.DisplayName, &lead.Email, &lead.Phone,
		&lead.Signals.Likes, &lead.Signals.Comments, &lead.Signals.Shares,
		&lead.Signals.Followed, &lead.Signals.DMSent, &lead.Signals.DMRepliedAt,
		&lead.Signals.ConvertedAt, &lead.Signals.ChurnedAt, &lead.Signals.LastEngagementAt,
		&lead.Score, &lead.Grade, &lead.Status,
		&lead.CreatedAt, &lead.UpdatedAt,
	}
	return append(fields, extra...)
}
