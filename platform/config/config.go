// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides settings for the asynq scheduler and worker.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// CredentialConfig provides the key used to seal CRM access tokens at rest.
type CredentialConfig interface {
	GetCredentialKey() []byte
}

// SyncConfig provides tuning knobs for CRM synchronization.
type SyncConfig interface {
	GetSyncBatchSize() int
	GetSyncPageSize() int
	GetSyncPullRatePerSec() float64
	GetSalesforceBaseURL() string
	GetHubSpotBaseURL() string
}

// ScoringConfig provides the lead scoring weights and decay breakpoints.
// Weights are deliberately configuration, not literals in scoring code.
type ScoringConfig interface {
	GetScoreWeights() ScoreWeights
	GetScoreDecay() ScoreDecay
	GetScoreThresholds() ScoreThresholds
}

// ScoreWeights holds the per-signal contribution to a lead's score.
type ScoreWeights struct {
	Like    float64
	Comment float64
	Share   float64
	Follow  float64
	DMSent  float64
	DMReply float64
}

// ScoreDecay holds the step-function recency breakpoints. Engagement older
// than FreshDays counts at StaleFactor, older than StaleDays at AncientFactor.
type ScoreDecay struct {
	FreshDays     int
	StaleDays     int
	StaleFactor   float64
	AncientFactor float64
}

// ScoreThresholds holds the status derivation cutoffs.
type ScoreThresholds struct {
	Hot  int
	Warm int
	// DMReplyHotMargin promotes a lead with a DM reply to hot when its score
	// is within this many points below the hot threshold. Zero disables the
	// promotion.
	DMReplyHotMargin int
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                string
	HTTPAddr           string
	DatabaseURL        string
	JWTAccessSecret    string
	CORSAllowAll       bool
	CORSOrigins        []string
	CORSAllowCreds     bool
	RedisURL           string
	RedisTLSInsecure   bool
	AsynqQueueName     string
	AsynqConcurrency   int
	CredentialKey      []byte
	SyncBatchSize      int
	SyncPageSize       int
	SyncPullRatePerSec float64
	SyncInterval       time.Duration
	SalesforceBaseURL  string
	HubSpotBaseURL     string
	Weights            ScoreWeights
	Decay              ScoreDecay
	Thresholds         ScoreThresholds
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// CredentialConfig implementation
func (c *Config) GetCredentialKey() []byte { return c.CredentialKey }

// SyncConfig implementation
func (c *Config) GetSyncBatchSize() int          { return c.SyncBatchSize }
func (c *Config) GetSyncPageSize() int           { return c.SyncPageSize }
func (c *Config) GetSyncPullRatePerSec() float64 { return c.SyncPullRatePerSec }
func (c *Config) GetSalesforceBaseURL() string   { return c.SalesforceBaseURL }
func (c *Config) GetHubSpotBaseURL() string      { return c.HubSpotBaseURL }

// ScoringConfig implementation
func (c *Config) GetScoreWeights() ScoreWeights       { return c.Weights }
func (c *Config) GetScoreDecay() ScoreDecay           { return c.Decay }
func (c *Config) GetScoreThresholds() ScoreThresholds { return c.Thresholds }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	credentialKey, err := parseCredentialKey(getEnv("CRM_CREDENTIAL_KEY", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Env:                getEnv("APP_ENV", "development"),
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		JWTAccessSecret:    getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:       corsAllowAll,
		CORSOrigins:        corsOrigins,
		CORSAllowCreds:     strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		RedisURL:           getEnv("REDIS_URL", ""),
		RedisTLSInsecure:   strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:     getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:   mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		CredentialKey:      credentialKey,
		SyncBatchSize:      mustInt(getEnv("SYNC_BATCH_SIZE", "200")),
		SyncPageSize:       mustInt(getEnv("SYNC_PAGE_SIZE", "100")),
		SyncPullRatePerSec: mustFloat(getEnv("SYNC_PULL_RATE_PER_SEC", "4")),
		SyncInterval:       mustDuration(getEnv("SYNC_INTERVAL", "1h")),
		SalesforceBaseURL:  getEnv("SALESFORCE_BASE_URL", ""),
		HubSpotBaseURL:     getEnv("HUBSPOT_BASE_URL", "https://api.hubapi.com"),
		Weights: ScoreWeights{
			Like:    mustFloat(getEnv("SCORE_WEIGHT_LIKE", "2")),
			Comment: mustFloat(getEnv("SCORE_WEIGHT_COMMENT", "5")),
			Share:   mustFloat(getEnv("SCORE_WEIGHT_SHARE", "8")),
			Follow:  mustFloat(getEnv("SCORE_WEIGHT_FOLLOW", "10")),
			DMSent:  mustFloat(getEnv("SCORE_WEIGHT_DM_SENT", "3")),
			DMReply: mustFloat(getEnv("SCORE_WEIGHT_DM_REPLY", "20")),
		},
		Decay: ScoreDecay{
			FreshDays:     mustInt(getEnv("SCORE_DECAY_FRESH_DAYS", "30")),
			StaleDays:     mustInt(getEnv("SCORE_DECAY_STALE_DAYS", "90")),
			StaleFactor:   mustFloat(getEnv("SCORE_DECAY_STALE_FACTOR", "0.5")),
			AncientFactor: mustFloat(getEnv("SCORE_DECAY_ANCIENT_FACTOR", "0.2")),
		},
		Thresholds: ScoreThresholds{
			Hot:              mustInt(getEnv("SCORE_THRESHOLD_HOT", "70")),
			Warm:             mustInt(getEnv("SCORE_THRESHOLD_WARM", "40")),
			DMReplyHotMargin: mustInt(getEnv("SCORE_DM_REPLY_HOT_MARGIN", "10")),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}

	return cfg, nil
}

func parseCredentialKey(value string) ([]byte, error) {
	if value == "" {
		return nil, fmt.Errorf("CRM_CREDENTIAL_KEY is required")
	}
	key, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("CRM_CREDENTIAL_KEY must be hex encoded: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("CRM_CREDENTIAL_KEY must decode to 32 bytes")
	}
	return key, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
