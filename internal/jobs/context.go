package jobs

import (
	"context"
	"time"

	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/realtime"
	"github.com/dewiapp/dewi-backend/internal/repos"
	"github.com/dewiapp/dewi-backend/internal/services"
	"github.com/dewiapp/dewi-backend/internal/types"
)

// Context is the execution handle for one claimed job. Handlers report
// progress and poll for aborts through it; they never write the job row
// directly, the worker owns every status transition.
type Context struct {
	ctx    context.Context
	Job    *types.Job
	repo   repos.JobRepo
	notify services.Notifier
	log    *logger.Logger
}

func newContext(ctx context.Context, job *types.Job, repo repos.JobRepo, notify services.Notifier, log *logger.Logger) *Context {
	return &Context{
		ctx:    ctx,
		Job:    job,
		repo:   repo,
		notify: notify,
		log:    log,
	}
}

func (c *Context) Ctx() context.Context { return c.ctx }

// Progress persists the stage snapshot on the job row and streams it to
// subscribers. The write doubles as the heartbeat: refreshing started_at
// keeps a long run from being reclaimed as stale. Best effort on both
// sides: a progress write that fails must not fail the job.
func (c *Context) Progress(stage string, pct int, data any) {
	if c == nil || c.Job == nil {
		return
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	now := time.Now().UTC()
	err := c.repo.UpdateFields(c.ctx, nil, c.Job.ID, map[string]interface{}{
		"stage":      stage,
		"progress":   pct,
		"started_at": now,
	})
	if err != nil {
		c.log.Warn("Progress update failed", "job_id", c.Job.ID, "error", err)
	} else {
		c.Job.Stage = stage
		c.Job.Progress = pct
		c.Job.StartedAt = &now
	}

	if c.notify == nil {
		return
	}
	err = c.notify.Publish(c.ctx, realtime.Message{
		Channel: realtime.JobChannel(c.Job.ID),
		Event:   realtime.EventJobProgress,
		Data: map[string]any{
			"job_id":   c.Job.ID,
			"stage":    stage,
			"progress": pct,
			"detail":   data,
		},
	})
	if err != nil {
		c.log.Warn("Progress publish failed", "job_id", c.Job.ID, "error", err)
	}
}

// AbortRequested polls the abort flag. Poll errors report false so a flaky
// read cannot kill a healthy run; the requester retries anyway.
func (c *Context) AbortRequested() bool {
	if c == nil || c.Job == nil {
		return false
	}
	flag, err := c.repo.IsAbortRequested(c.ctx, nil, c.Job.ID)
	if err != nil {
		c.log.Warn("Abort poll failed", "job_id", c.Job.ID, "error", err)
		return false
	}
	return flag
}

