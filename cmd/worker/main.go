package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadpulse_backend/internal/events"
	"leadpulse_backend/internal/leads"
	"leadpulse_backend/internal/scheduler"
	"leadpulse_backend/internal/sync"
	"leadpulse_backend/platform/config"
	"leadpulse_backend/platform/db"
	"leadpulse_backend/platform/logger"
	"leadpulse_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting worker", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	leadsModule := leads.NewModule(pool, eventBus, val, cfg, log)
	syncModule := sync.NewModule(pool, leadsModule.Service(), leadsModule.Repository(), eventBus, val, cfg, log)
	syncModule.Orchestrator().Restore(ctx)

	go runPeriodicSync(ctx, cfg, log)
	go runNightlyRecalculate(ctx, cfg, log)

	worker, err := scheduler.NewWorker(cfg, syncModule.Orchestrator(), leadsModule.Service(), log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

// runPeriodicSync queues a pull then a push for all connected platforms on
// the configured interval. Uniqueness on the task drops overlapping runs.
func runPeriodicSync(ctx context.Context, cfg *config.Config, log *logger.Logger) {
	interval := cfg.SyncInterval
	if interval <= 0 {
		log.Warn("SYNC_INTERVAL not configured; periodic sync disabled")
		return
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize periodic sync client", "error", err)
		return
	}
	defer func() { _ = client.Close() }()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, direction := range []string{"pull", "push"} {
				err := client.EnqueueSyncRun(ctx, scheduler.SyncRunPayload{Platform: "all", Direction: direction})
				if err != nil {
					log.Error("failed to enqueue periodic sync", "direction", direction, "error", err)
				}
			}
		}
	}
}

// runNightlyRecalculate schedules a full rescore at 03:00 UTC each night so
// recency decay applies to leads with no fresh engagements.
func runNightlyRecalculate(ctx context.Context, cfg *config.Config, log *logger.Logger) {
	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize recalculate client", "error", err)
		return
	}
	defer func() { _ = client.Close() }()

	for {
		next := nextRunAt(time.Now().UTC(), 3)
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
			err := client.ScheduleRecalculateAll(ctx, scheduler.RecalculateAllPayload{Reason: "nightly decay"}, time.Now())
			if err != nil {
				log.Error("failed to enqueue recalculate", "error", err)
			}
		}
	}
}

func nextRunAt(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
