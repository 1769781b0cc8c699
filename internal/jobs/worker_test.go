package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dewiapp/dewi-backend/internal/domain"
	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/realtime"
	"github.com/dewiapp/dewi-backend/internal/repos"
	"github.com/dewiapp/dewi-backend/internal/types"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := gdb.AutoMigrate(&types.Job{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []realtime.Message
}

func (n *recordingNotifier) Publish(_ context.Context, msg realtime.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return nil
}

func (n *recordingNotifier) byEvent(event realtime.Event) []realtime.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []realtime.Message
	for _, m := range n.messages {
		if m.Event == event {
			out = append(out, m)
		}
	}
	return out
}

// fakeHandler runs a test-owned function for a fixed job type.
type fakeHandler struct {
	typ  string
	mu   sync.Mutex
	runs int
	fn   func(jc *Context) (any, error)
}

func (h *fakeHandler) Type() string { return h.typ }

func (h *fakeHandler) Run(jc *Context) (any, error) {
	h.mu.Lock()
	h.runs++
	h.mu.Unlock()
	return h.fn(jc)
}

func (h *fakeHandler) runCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runs
}

type workerHarness struct {
	db       *gorm.DB
	repo     repos.JobRepo
	registry *Registry
	notify   *recordingNotifier
	worker   *Worker
}

func newWorkerHarness(t *testing.T, cfg WorkerConfig, handlers ...Handler) *workerHarness {
	t.Helper()
	db := testDB(t)
	log := logger.NewNop()
	h := &workerHarness{
		db:       db,
		repo:     repos.NewJobRepo(db, log),
		registry: NewRegistry(),
		notify:   &recordingNotifier{},
	}
	for _, handler := range handlers {
		if err := h.registry.Register(handler); err != nil {
			t.Fatalf("register handler: %v", err)
		}
	}
	h.worker = NewWorker(log, cfg, h.repo, h.registry, h.notify)
	return h
}

func (h *workerHarness) enqueue(t *testing.T, jobType string, payload any) *types.Job {
	t.Helper()
	job := &types.Job{Type: jobType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("encode payload: %v", err)
		}
		job.Payload = raw
	}
	if err := h.repo.Create(context.Background(), nil, job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return job
}

func (h *workerHarness) reload(t *testing.T, id uuid.UUID) *types.Job {
	t.Helper()
	job, err := h.repo.GetByID(context.Background(), nil, id)
	if err != nil || job == nil {
		t.Fatalf("reload job: %v", err)
	}
	return job
}

func TestRegistryRejectsDuplicateTypes(t *testing.T) {
	r := NewRegistry()
	h := &fakeHandler{typ: "work", fn: func(*Context) (any, error) { return nil, nil }}
	if err := r.Register(h); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(h); err == nil {
		t.Error("duplicate register accepted")
	}
	if err := r.Register(nil); err == nil {
		t.Error("nil handler accepted")
	}
}

func TestWorkerRunsJobToSuccess(t *testing.T) {
	handler := &fakeHandler{typ: "work", fn: func(jc *Context) (any, error) {
		jc.Progress("halfway", 50, map[string]int{"done": 1})
		return map[string]int{"count": 3}, nil
	}}
	h := newWorkerHarness(t, WorkerConfig{}, handler)
	job := h.enqueue(t, "work", nil)
	ctx := context.Background()

	if !h.worker.RunOnce(ctx) {
		t.Fatal("RunOnce found nothing")
	}
	stored := h.reload(t, job.ID)
	if stored.Status != types.JobStatusSucceeded {
		t.Errorf("status = %q, want succeeded", stored.Status)
	}
	if stored.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", stored.Attempts)
	}
	if stored.Stage != "done" || stored.Progress != 100 {
		t.Errorf("stage/progress = %q/%d, want done/100", stored.Stage, stored.Progress)
	}
	if stored.FinishedAt == nil {
		t.Error("finished_at not set")
	}
	var result map[string]int
	if err := json.Unmarshal(stored.Result, &result); err != nil || result["count"] != 3 {
		t.Errorf("result = %s (err %v)", stored.Result, err)
	}

	progress := h.notify.byEvent(realtime.EventJobProgress)
	if len(progress) != 1 {
		t.Fatalf("progress events = %d, want 1", len(progress))
	}
	if progress[0].Channel != realtime.JobChannel(job.ID) {
		t.Errorf("progress channel = %q", progress[0].Channel)
	}
	status := h.notify.byEvent(realtime.EventJobStatusChanged)
	if len(status) != 1 {
		t.Fatalf("status events = %d, want 1", len(status))
	}

	if h.worker.RunOnce(ctx) {
		t.Error("finished job claimed again")
	}
}

func TestWorkerRetriesUntilAttemptsExhausted(t *testing.T) {
	handler := &fakeHandler{typ: "work", fn: func(*Context) (any, error) {
		return nil, fmt.Errorf("collaborator down")
	}}
	h := newWorkerHarness(t, WorkerConfig{MaxAttempts: 3, RetryDelay: 0}, handler)
	job := h.enqueue(t, "work", nil)
	ctx := context.Background()

	for attempt := 1; attempt <= 3; attempt++ {
		if !h.worker.RunOnce(ctx) {
			t.Fatalf("attempt %d: nothing claimed", attempt)
		}
		stored := h.reload(t, job.ID)
		want := types.JobStatusQueued
		if attempt == 3 {
			want = types.JobStatusFailed
		}
		if stored.Status != want {
			t.Fatalf("after attempt %d: status = %q, want %q", attempt, stored.Status, want)
		}
		if stored.LastError == "" {
			t.Errorf("after attempt %d: last_error empty", attempt)
		}
	}
	if handler.runCount() != 3 {
		t.Errorf("handler ran %d times, want 3", handler.runCount())
	}
	if h.worker.RunOnce(ctx) {
		t.Error("failed job claimed again")
	}
}

func TestWorkerFailsFastOnValidationError(t *testing.T) {
	handler := &fakeHandler{typ: "work", fn: func(*Context) (any, error) {
		return nil, domain.NewValidation("payload", "garbage in")
	}}
	h := newWorkerHarness(t, WorkerConfig{MaxAttempts: 3, RetryDelay: 0}, handler)
	job := h.enqueue(t, "work", nil)

	if !h.worker.RunOnce(context.Background()) {
		t.Fatal("RunOnce found nothing")
	}
	stored := h.reload(t, job.ID)
	if stored.Status != types.JobStatusFailed {
		t.Errorf("status = %q, want failed without retries", stored.Status)
	}
	if handler.runCount() != 1 {
		t.Errorf("handler ran %d times, want 1", handler.runCount())
	}
}

func TestWorkerPartialIsTerminal(t *testing.T) {
	handler := &fakeHandler{typ: "work", fn: func(*Context) (any, error) {
		return types.IngestResult{ChunksTotal: 4, ChunksFailed: 1, FactsCreated: 7},
			fmt.Errorf("1 of 4 chunks failed: %w", domain.ErrPartial)
	}}
	h := newWorkerHarness(t, WorkerConfig{MaxAttempts: 3, RetryDelay: 0}, handler)
	job := h.enqueue(t, "work", nil)
	ctx := context.Background()

	if !h.worker.RunOnce(ctx) {
		t.Fatal("RunOnce found nothing")
	}
	stored := h.reload(t, job.ID)
	if stored.Status != types.JobStatusPartial {
		t.Errorf("status = %q, want partial", stored.Status)
	}
	var result types.IngestResult
	if err := json.Unmarshal(stored.Result, &result); err != nil || result.FactsCreated != 7 {
		t.Errorf("result = %s (err %v), want committed counts", stored.Result, err)
	}
	if h.worker.RunOnce(ctx) {
		t.Error("partial job retried")
	}
}

func TestWorkerAbortedIsTerminal(t *testing.T) {
	handler := &fakeHandler{typ: "work", fn: func(*Context) (any, error) {
		return nil, fmt.Errorf("stopped at chunk boundary: %w", domain.ErrAborted)
	}}
	h := newWorkerHarness(t, WorkerConfig{MaxAttempts: 3, RetryDelay: 0}, handler)
	job := h.enqueue(t, "work", nil)
	ctx := context.Background()

	if !h.worker.RunOnce(ctx) {
		t.Fatal("RunOnce found nothing")
	}
	if stored := h.reload(t, job.ID); stored.Status != types.JobStatusAborted {
		t.Errorf("status = %q, want aborted", stored.Status)
	}
	if h.worker.RunOnce(ctx) {
		t.Error("aborted job retried")
	}
}

func TestWorkerRecoversHandlerPanic(t *testing.T) {
	handler := &fakeHandler{typ: "work", fn: func(*Context) (any, error) {
		panic("nil map write")
	}}
	h := newWorkerHarness(t, WorkerConfig{MaxAttempts: 3, RetryDelay: 0}, handler)
	job := h.enqueue(t, "work", nil)

	if !h.worker.RunOnce(context.Background()) {
		t.Fatal("RunOnce found nothing")
	}
	stored := h.reload(t, job.ID)
	if stored.Status != types.JobStatusFailed {
		t.Errorf("status = %q, want failed", stored.Status)
	}
	if stored.LastError == "" {
		t.Error("panic not recorded in last_error")
	}
}

func TestWorkerFailsUnroutableJob(t *testing.T) {
	h := newWorkerHarness(t, WorkerConfig{})
	job := h.enqueue(t, "nobody_handles_this", nil)

	if !h.worker.RunOnce(context.Background()) {
		t.Fatal("RunOnce found nothing")
	}
	stored := h.reload(t, job.ID)
	if stored.Status != types.JobStatusFailed {
		t.Errorf("status = %q, want failed", stored.Status)
	}
	status := h.notify.byEvent(realtime.EventJobStatusChanged)
	if len(status) != 1 {
		t.Errorf("status events = %d, want 1", len(status))
	}
}

func TestWorkerStartDrainsQueue(t *testing.T) {
	handler := &fakeHandler{typ: "work", fn: func(*Context) (any, error) {
		return nil, nil
	}}
	h := newWorkerHarness(t, WorkerConfig{Concurrency: 1, PollInterval: 5 * time.Millisecond}, handler)
	jobs := []*types.Job{
		h.enqueue(t, "work", nil),
		h.enqueue(t, "work", nil),
		h.enqueue(t, "work", nil),
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.worker.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for {
		done := 0
		for _, job := range jobs {
			if h.reload(t, job.ID).Status == types.JobStatusSucceeded {
				done++
			}
		}
		if done == len(jobs) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("only %d of %d jobs finished", done, len(jobs))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestContextProgressClampsAndHeartbeats(t *testing.T) {
	var observed *types.Job
	handler := &fakeHandler{typ: "work", fn: func(jc *Context) (any, error) {
		jc.Progress("overshoot", 150, nil)
		observed = jc.Job
		return nil, fmt.Errorf("stop here")
	}}
	h := newWorkerHarness(t, WorkerConfig{MaxAttempts: 1, RetryDelay: 0}, handler)
	h.enqueue(t, "work", nil)

	if !h.worker.RunOnce(context.Background()) {
		t.Fatal("RunOnce found nothing")
	}
	if observed.Progress != 100 {
		t.Errorf("progress = %d, want clamped to 100", observed.Progress)
	}
	if observed.Stage != "overshoot" {
		t.Errorf("stage = %q", observed.Stage)
	}
	if observed.StartedAt == nil {
		t.Error("progress did not refresh started_at")
	}
}
