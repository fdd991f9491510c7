package repository

import (
	"context"

	"leadpulse_backend/internal/leads/domain"
)

// GradeDistribution returns per-grade counts, the average score and the total
// lead count in one scan.
func (r *Repository) GradeDistribution(ctx context.Context) (map[domain.Grade]int, float64, int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT grade, COUNT(*), AVG(score)
		FROM leads
		GROUP BY grade
	`)
	if err != nil {
		return nil, 0, 0, err
	}
	defer rows.Close()

	counts := make(map[domain.Grade]int)
	total := 0
	weightedSum := 0.0
	for rows.Next() {
		var (
			grade domain.Grade
			count int
			avg   float64
		)
		if err := rows.Scan(&grade, &count, &avg); err != nil {
			return nil, 0, 0, err
		}
		counts[grade] = count
		total += count
		weightedSum += avg * float64(count)
	}
	if rows.Err() != nil {
		return nil, 0, 0, rows.Err()
	}

	average := 0.0
	if total > 0 {
		average = weightedSum / float64(total)
	}
	return counts, average, total, nil
}

// StatusCounts returns the number of leads in each lifecycle status.
func (r *Repository) StatusCounts(ctx context.Context) (map[domain.Status]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM leads GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.Status]int)
	for rows.Next() {
		var (
			status domain.Status
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// TopByScore returns up to limit leads ordered by score descending.
func (r *Repository) TopByScore(ctx context.Context, limit int) ([]domain.Lead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+` FROM leads
		ORDER BY score DESC, last_engagement_at DESC NULLS LAST
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectLeads(rows)
}
