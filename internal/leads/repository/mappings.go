package repository

import (
	"context"
	"errors"
	"time"

	"leadpulse_backend/internal/leads/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrMappingNotFound = errors.New("external mapping not found")

// GetMapping returns the lead's mapping for a CRM platform, if any.
func (r *Repository) GetMapping(ctx context.Context, leadID uuid.UUID, crm string) (domain.ExternalMapping, error) {
	return scanMapping(r.pool.QueryRow(ctx, `
		SELECT lead_id, crm, external_id, last_synced_at
		FROM external_mappings WHERE lead_id = $1 AND crm = $2
	`, leadID, crm))
}

// GetMappingByExternalID resolves a remote record id back to a local lead.
func (r *Repository) GetMappingByExternalID(ctx context.Context, crm, externalID string) (domain.ExternalMapping, error) {
	return scanMapping(r.pool.QueryRow(ctx, `
		SELECT lead_id, crm, external_id, last_synced_at
		FROM external_mappings WHERE crm = $1 AND external_id = $2
	`, crm, externalID))
}

// SaveMapping stores or refreshes the lead's mapping for a CRM. The unique
// constraints guarantee at most one id per platform per lead.
func (r *Repository) SaveMapping(ctx context.Context, mapping domain.ExternalMapping) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO external_mappings (lead_id, crm, external_id, last_synced_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (lead_id, crm) DO UPDATE SET
			external_id = EXCLUDED.external_id,
			last_synced_at = EXCLUDED.last_synced_at
	`, mapping.LeadID, mapping.CRM, mapping.ExternalID, mapping.LastSyncedAt)
	return err
}

// MarkSynced advances the mapping's last_synced_at watermark.
func (r *Repository) MarkSynced(ctx context.Context, leadID uuid.UUID, crm string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE external_mappings SET last_synced_at = $3
		WHERE lead_id = $1 AND crm = $2
	`, leadID, crm, at)
	return err
}

// CountMappings reports how many leads are linked to the CRM platform.
func (r *Repository) CountMappings(ctx context.Context, crm string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM external_mappings WHERE crm = $1
	`, crm).Scan(&count)
	return count, err
}

// ListForPush returns leads due for a push to the CRM: those never synced to
// it plus those changed since their last sync, oldest change first. The
// cursor pages keyset-style through the due set so a page of failing records
// does not pin the listing to the head.
func (r *Repository) ListForPush(ctx context.Context, crm string, cursor PushCursor, limit int) ([]LeadWithMapping, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+`, COALESCE(m.external_id, '')
		FROM leads l
		LEFT JOIN external_mappings m ON m.lead_id = l.id AND m.crm = $1
		WHERE (m.lead_id IS NULL OR l.updated_at > m.last_synced_at)
			AND (l.updated_at, l.id) > ($2, $3)
		ORDER BY l.updated_at ASC, l.id ASC
		LIMIT $4
	`, crm, cursor.UpdatedAt, cursor.ID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]LeadWithMapping, 0)
	for rows.Next() {
		var item LeadWithMapping
		if err := rows.Scan(leadFields(&item.Lead, &item.ExternalID)...); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// FindByEmailOrUsername matches a remote record's identity against local
// leads, preferring an email match. Used to attach mappings instead of
// creating duplicate leads on pull.
func (r *Repository) FindByEmailOrUsername(ctx context.Context, email, username string) (domain.Lead, error) {
	if email != "" {
		lead, err := scanLead(r.pool.QueryRow(ctx, `
			SELECT `+leadColumns+` FROM leads WHERE email = $1 ORDER BY created_at LIMIT 1
		`, email))
		if err == nil {
			return lead, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return domain.Lead{}, err
		}
	}
	if username == "" {
		return domain.Lead{}, ErrNotFound
	}
	return scanLead(r.pool.QueryRow(ctx, `
		SELECT `+leadColumns+` FROM leads WHERE username = $1 ORDER BY created_at LIMIT 1
	`, username))
}

func scanMapping(row pgx.Row) (domain.ExternalMapping, error) {
	var mapping domain.ExternalMapping
	err := row.Scan(&mapping.LeadID, &mapping.CRM, &mapping.ExternalID, &mapping.LastSyncedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ExternalMapping{}, ErrMappingNotFound
	}
	if err != nil {
		return domain.ExternalMapping{}, err
	}
	return mapping, nil
}
