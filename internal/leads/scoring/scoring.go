// Package scoring computes a lead's score, grade and lifecycle status.
//
// Compute is a pure function of the current signal snapshot and the supplied
// time: identical inputs always yield identical outputs, which makes
// recomputation idempotent and safe under retry. Weights, decay breakpoints
// and thresholds come from configuration, never literals.
package scoring

import (
	"math"
	"time"

	"leadpulse_backend/internal/leads/domain"
	"leadpulse_backend/platform/config"
)

const (
	// scoreVersion tracks the scoring model for debugging and analysis.
	// Bump this when changing scoring logic significantly.
	scoreVersion = "2026-v1"

	minScore = 0
	maxScore = 100
)

// Config holds the tunable scoring parameters.
type Config struct {
	Weights    config.ScoreWeights
	Decay      config.ScoreDecay
	Thresholds config.ScoreThresholds
}

// FromConfig builds a scoring Config from the application configuration.
func FromConfig(cfg config.ScoringConfig) Config {
	return Config{
		Weights:    cfg.GetScoreWeights(),
		Decay:      cfg.GetScoreDecay(),
		Thresholds: cfg.GetScoreThresholds(),
	}
}

// DefaultConfig returns the documented default weights and breakpoints.
// Production values come from the environment; these defaults keep the pure
// function usable in isolation.
func DefaultConfig() Config {
	return Config{
		Weights: config.ScoreWeights{
			Like:    2,
			Comment: 5,
			Share:   8,
			Follow:  10,
			DMSent:  3,
			DMReply: 20,
		},
		Decay: config.ScoreDecay{
			FreshDays:     30,
			StaleDays:     90,
			StaleFactor:   0.5,
			AncientFactor: 0.2,
		},
		Thresholds: config.ScoreThresholds{
			Hot:              70,
			Warm:             40,
			DMReplyHotMargin: 10,
		},
	}
}

// Result holds scoring output and per-factor details.
type Result struct {
	Score   int
	Grade   domain.Grade
	Status  domain.Status
	Factors map[string]float64
	Version string
}

// Compute derives (score, grade, status) from the signal snapshot at the
// given time. It performs no I/O and never fails: corrupt counters degrade to
// score 0 rather than aborting the aggregation pass.
func Compute(signals domain.SignalSnapshot, now time.Time, cfg Config) Result {
	factors := map[string]float64{}

	raw := 0.0
	if !signals.Corrupt() {
		raw += addFactor(factors, "likes", float64(signals.Likes)*cfg.Weights.Like)
		raw += addFactor(factors, "comments", float64(signals.Comments)*cfg.Weights.Comment)
		raw += addFactor(factors, "shares", float64(signals.Shares)*cfg.Weights.Share)
		if signals.Followed {
			raw += addFactor(factors, "follow", cfg.Weights.Follow)
		}
		if signals.DMSent {
			raw += addFactor(factors, "dm_sent", cfg.Weights.DMSent)
		}
		if signals.DMRepliedAt != nil {
			raw += addFactor(factors, "dm_reply", cfg.Weights.DMReply)
		}

		recency := recencyFactor(signals.LastEngagementAt, now, cfg.Decay)
		if recency != 1.0 {
			factors["recency"] = recency
		}
		raw *= recency
	}

	score := clampScore(raw)
	return Result{
		Score:   score,
		Grade:   domain.GradeForScore(score),
		Status:  deriveStatus(signals, score, cfg.Thresholds),
		Factors: factors,
		Version: scoreVersion,
	}
}

// deriveStatus applies the lifecycle precedence in order: customer overrides
// all; churned overrides all except customer; otherwise the score decides,
// with a DM reply able to promote a borderline score into hot.
func deriveStatus(signals domain.SignalSnapshot, score int, t config.ScoreThresholds) domain.Status {
	if signals.ConvertedAt != nil {
		return domain.StatusCustomer
	}
	if signals.ChurnedAt != nil {
		return domain.StatusChurned
	}

	hot := score >= t.Hot
	if !hot && t.DMReplyHotMargin > 0 && signals.DMRepliedAt != nil {
		hot = score >= t.Hot-t.DMReplyHotMargin
	}

	switch {
	case hot:
		return domain.StatusHot
	case score >= t.Warm:
		return domain.StatusWarm
	default:
		return domain.StatusCold
	}
}

// recencyFactor returns the step-function decay multiplier for the age of the
// most recent engagement.
func recencyFactor(last *time.Time, now time.Time, decay config.ScoreDecay) float64 {
	if last == nil {
		return 1.0
	}

	age := now.Sub(*last)
	switch {
	case age <= time.Duration(decay.FreshDays)*24*time.Hour:
		return 1.0
	case age <= time.Duration(decay.StaleDays)*24*time.Hour:
		return decay.StaleFactor
	default:
		return decay.AncientFactor
	}
}

func addFactor(factors map[string]float64, key string, value float64) float64 {
	if math.Abs(value) < 0.01 {
		return 0
	}
	// Round to 1 decimal place for cleaner factor display
	factors[key] = math.Round(value*10) / 10
	return value
}

func clampScore(value float64) int {
	rounded := int(math.Round(value))
	if rounded < minScore {
		return minScore
	}
	if rounded > maxScore {
		return maxScore
	}
	return rounded
}
