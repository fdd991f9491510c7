package scheduler

import (
	"context"
	"fmt"

	syncdomain "leadpulse_backend/internal/sync/domain"
	"leadpulse_backend/platform/config"
	"leadpulse_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// SyncRunner is the orchestrator capability the worker needs.
type SyncRunner interface {
	RunSync(ctx context.Context, platform syncdomain.CRM, direction syncdomain.Direction) (syncdomain.SyncJob, error)
	RunAll(ctx context.Context, direction syncdomain.Direction) ([]syncdomain.SyncJob, error)
}

// Recalculator is the lead store capability the worker needs.
type Recalculator interface {
	RecalculateAll(ctx context.Context) (int, error)
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	syncer SyncRunner
	leads  Recalculator
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, syncer SyncRunner, leads Recalculator, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		syncer: syncer,
		leads:  leads,
		log:    log,
	}

	mux.HandleFunc(TaskSyncRun, w.handleSyncRun)
	mux.HandleFunc(TaskRecalculateAll, w.handleRecalculateAll)

	return w, nil
}

func (w *Worker) handleSyncRun(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseSyncRunPayload(task)
	if err != nil {
		return err
	}

	direction := syncdomain.Direction(payload.Direction)
	if !direction.Valid() {
		return fmt.Errorf("unknown sync direction %q", payload.Direction)
	}

	if payload.Platform == "all" || payload.Platform == "" {
		_, err := w.syncer.RunAll(ctx, direction)
		return err
	}

	platform := syncdomain.CRM(payload.Platform)
	if !platform.Valid() {
		return fmt.Errorf("unknown CRM platform %q", payload.Platform)
	}

	// Job-level failures are recorded on the job itself; returning the error
	// here would make asynq retry a run that already persisted its outcome.
	if _, err := w.syncer.RunSync(ctx, platform, direction); err != nil {
		w.log.Error("scheduled sync failed", "platform", payload.Platform, "direction", payload.Direction, "error", err)
	}
	return nil
}

func (w *Worker) handleRecalculateAll(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseRecalculateAllPayload(task)
	if err != nil {
		return err
	}

	updated, err := w.leads.RecalculateAll(ctx)
	if err != nil {
		return err
	}

	w.log.Info("recalculate all finished", "updated", updated, "reason", payload.Reason)
	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
