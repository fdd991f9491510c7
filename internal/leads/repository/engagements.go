package repository

import (
	"context"
	"fmt"
	"time"

	"leadpulse_backend/internal/leads/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AppendEngagement inserts the engagement and updates the lead's counters in
// a single transaction, keeping counters replay-equivalent with the log.
func (r *Repository) AppendEngagement(ctx context.Context, engagement domain.Engagement) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO engagements (id, lead_id, type, platform, content_ref, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, engagement.ID, engagement.LeadID, engagement.Type, engagement.Platform,
		engagement.ContentRef, engagement.OccurredAt)
	if err != nil {
		return err
	}

	if err := applyCounterDelta(ctx, tx, engagement); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// applyCounterDelta bumps the counter matching the engagement type and
// advances last_engagement_at. Flags (followed, dm_sent) latch on; timestamp
// signals (dm_replied_at, converted_at, churned_at) keep their earliest value
// so replays stay idempotent.
func applyCounterDelta(ctx context.Context, tx pgx.Tx, engagement domain.Engagement) error {
	var column string
	switch engagement.Type {
	case domain.EngagementLike:
		column = "likes_count = likes_count + 1"
	case domain.EngagementComment:
		column = "comments_count = comments_count + 1"
	case domain.EngagementShare:
		column = "shares_count = shares_count + 1"
	case domain.EngagementFollow:
		column = "followed = true"
	case domain.EngagementDMSent:
		column = "dm_sent = true"
	case domain.EngagementDMReply:
		column = "dm_replied_at = COALESCE(dm_replied_at, $2)"
	case domain.EngagementConversion:
		column = "converted_at = COALESCE(converted_at, $2)"
	case domain.EngagementChurn:
		column = "churned_at = COALESCE(churned_at, $2)"
	default:
		return fmt.Errorf("unknown engagement type %q", engagement.Type)
	}

	query := `
		UPDATE leads SET ` + column + `,
			last_engagement_at = GREATEST(COALESCE(last_engagement_at, $2), $2),
			updated_at = now()
		WHERE id = $1
	`

	tag, err := tx.Exec(ctx, query, engagement.LeadID, engagement.OccurredAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetConverted records an external conversion signal discovered during a CRM
// pull (remote lifecycle says customer).
func (r *Repository) SetConverted(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads SET converted_at = COALESCE(converted_at, $2), updated_at = now()
		WHERE id = $1
	`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
