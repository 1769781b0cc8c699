package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/dewiapp/dewi-backend/internal/domain"
	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/realtime"
	"github.com/dewiapp/dewi-backend/internal/repos"
	"github.com/dewiapp/dewi-backend/internal/services"
	"github.com/dewiapp/dewi-backend/internal/types"
)

type WorkerConfig struct {
	// Concurrency is the number of claim loops. Each loop runs one job at a
	// time; chunk-level parallelism lives inside the ingestion pipeline.
	Concurrency  int
	PollInterval time.Duration
	MaxAttempts  int
	// RetryDelay is multiplied by the attempt count on each requeue.
	RetryDelay time.Duration
	// StaleRunning is how long a running job may go without a progress
	// write (progress refreshes started_at) before the claim loop treats
	// its worker as dead and reclaims the job.
	StaleRunning time.Duration
}

func (c *WorkerConfig) applyDefaults() {
	if c.Concurrency < 1 {
		c.Concurrency = 2
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 30 * time.Second
	}
	if c.StaleRunning <= 0 {
		c.StaleRunning = 5 * time.Minute
	}
}

type Worker struct {
	log      *logger.Logger
	cfg      WorkerConfig
	repo     repos.JobRepo
	registry *Registry
	notify   services.Notifier
}

func NewWorker(baseLog *logger.Logger, cfg WorkerConfig, repo repos.JobRepo, registry *Registry, notify services.Notifier) *Worker {
	cfg.applyDefaults()
	return &Worker{
		log:      baseLog.With("component", "JobWorker"),
		cfg:      cfg,
		repo:     repo,
		registry: registry,
		notify:   notify,
	}
}

func (w *Worker) Start(ctx context.Context) {
	w.log.Info("Starting job worker pool", "concurrency", w.cfg.Concurrency)
	for i := 0; i < w.cfg.Concurrency; i++ {
		workerID := i + 1
		go w.runLoop(ctx, workerID)
	}
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			// Drain whatever is runnable before sleeping again.
			for w.RunOnce(ctx) {
				if ctx.Err() != nil {
					return
				}
			}
		}
	}
}

// RunOnce claims and executes at most one job, reporting whether one was
// found. Exposed so callers can drive the queue without the ticker.
func (w *Worker) RunOnce(ctx context.Context) bool {
	job, err := w.repo.ClaimNextRunnable(ctx, nil, w.cfg.MaxAttempts, w.cfg.StaleRunning)
	if err != nil {
		w.log.Warn("Job claim failed", "error", err)
		return false
	}
	if job == nil {
		return false
	}
	w.execute(ctx, job)
	return true
}

func (w *Worker) execute(ctx context.Context, job *types.Job) {
	h, ok := w.registry.Get(job.Type)
	if !ok {
		w.log.Warn("No handler registered for job type", "job_type", job.Type, "job_id", job.ID)
		w.settle(ctx, job, nil, domain.NewValidation("type", fmt.Sprintf("no handler for job type %s", job.Type)))
		return
	}

	w.log.Info("Job started", "job_id", job.ID, "job_type", job.Type, "attempt", job.Attempts)
	jc := newContext(ctx, job, w.repo, w.notify, w.log)

	var (
		result any
		runErr error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("Job handler panic", "job_id", job.ID, "job_type", job.Type, "panic", r)
				runErr = domain.NewValidation("handler", fmt.Sprintf("handler panic: %v", r))
			}
		}()
		result, runErr = h.Run(jc)
	}()
	w.settle(ctx, job, result, runErr)
}

// settle maps the handler outcome onto the job row. Partial and aborted runs
// are terminal: their committed portion stands and a retry would duplicate
// it. Validation errors are deterministic, so they fail without retries.
func (w *Worker) settle(ctx context.Context, job *types.Job, result any, runErr error) {
	now := time.Now().UTC()
	updates := map[string]interface{}{}
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}

	var status string
	switch {
	case runErr == nil:
		status = types.JobStatusSucceeded
		updates["stage"] = "done"
		updates["progress"] = 100
		updates["last_error"] = ""
		updates["finished_at"] = now
	case errors.Is(runErr, domain.ErrAborted):
		status = types.JobStatusAborted
		updates["last_error"] = errMsg
		updates["finished_at"] = now
	case errors.Is(runErr, domain.ErrPartial):
		status = types.JobStatusPartial
		updates["last_error"] = errMsg
		updates["finished_at"] = now
	case domain.IsValidation(runErr) || job.Attempts >= w.cfg.MaxAttempts:
		status = types.JobStatusFailed
		updates["last_error"] = errMsg
		updates["finished_at"] = now
	default:
		status = types.JobStatusQueued
		updates["last_error"] = errMsg
		updates["run_at"] = now.Add(time.Duration(job.Attempts) * w.cfg.RetryDelay)
	}
	updates["status"] = status

	if result != nil {
		if encoded, err := json.Marshal(result); err != nil {
			w.log.Warn("Job result not encodable", "job_id", job.ID, "error", err)
		} else {
			updates["result"] = datatypes.JSON(encoded)
		}
	}

	if err := w.repo.UpdateFields(ctx, nil, job.ID, updates); err != nil {
		w.log.Error("Job settle failed", "job_id", job.ID, "status", status, "error", err)
		return
	}
	job.Status = status
	job.LastError = errMsg

	switch status {
	case types.JobStatusQueued:
		w.log.Warn("Job requeued", "job_id", job.ID, "job_type", job.Type, "attempt", job.Attempts, "error", errMsg)
	case types.JobStatusFailed:
		w.log.Error("Job failed", "job_id", job.ID, "job_type", job.Type, "attempt", job.Attempts, "error", errMsg)
	default:
		w.log.Info("Job finished", "job_id", job.ID, "job_type", job.Type, "status", status)
	}

	if w.notify == nil {
		return
	}
	data := map[string]any{
		"job_id": job.ID,
		"status": status,
	}
	if errMsg != "" {
		data["error"] = errMsg
	}
	err := w.notify.Publish(ctx, realtime.Message{
		Channel: realtime.JobChannel(job.ID),
		Event:   realtime.EventJobStatusChanged,
		Data:    data,
	})
	if err != nil {
		w.log.Warn("Status publish failed", "job_id", job.ID, "error", err)
	}
}
