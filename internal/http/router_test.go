package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dewiapp/dewi-backend/internal/domain"
	"github.com/dewiapp/dewi-backend/internal/http/handlers"
	"github.com/dewiapp/dewi-backend/internal/ingestion"
	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/realtime"
	"github.com/dewiapp/dewi-backend/internal/scheduler"
	"github.com/dewiapp/dewi-backend/internal/services"
	"github.com/dewiapp/dewi-backend/internal/types"
)

type stubLearnerService struct {
	learner   *types.Learner
	learners  []*types.Learner
	err       error
	lastName  string
	lastLimit int
}

func (s *stubLearnerService) Create(_ context.Context, displayName string) (*types.Learner, error) {
	s.lastName = displayName
	return s.learner, s.err
}

func (s *stubLearnerService) Get(_ context.Context, id uuid.UUID) (*types.Learner, error) {
	return s.learner, s.err
}

func (s *stubLearnerService) List(_ context.Context, limit int) ([]*types.Learner, error) {
	s.lastLimit = limit
	return s.learners, s.err
}

type stubGestureService struct {
	result      *services.GestureResult
	err         error
	lastLearner uuid.UUID
	lastFact    uuid.UUID
	lastGesture scheduler.Gesture
}

func (s *stubGestureService) Apply(_ context.Context, learnerID, factID uuid.UUID, g scheduler.Gesture) (*services.GestureResult, error) {
	s.lastLearner = learnerID
	s.lastFact = factID
	s.lastGesture = g
	return s.result, s.err
}

type stubQueueService struct {
	feed *services.SessionFeed
	err  error
}

func (s *stubQueueService) BuildSession(_ context.Context, learnerID uuid.UUID, sessionID string, size int) (*services.SessionFeed, error) {
	return s.feed, s.err
}

func (s *stubQueueService) Invalidate(uuid.UUID) {}

type stubFactService struct {
	fact           *types.Fact
	facts          []*types.Fact
	related        []services.RelatedFact
	err            error
	retireErr      error
	lastMergedInto *uuid.UUID
}

func (s *stubFactService) Get(_ context.Context, factID uuid.UUID) (*types.Fact, error) {
	return s.fact, s.err
}

func (s *stubFactService) ListByTopic(_ context.Context, topic string, limit int) ([]*types.Fact, error) {
	return s.facts, s.err
}

func (s *stubFactService) ListBySource(_ context.Context, sourceID uuid.UUID) ([]*types.Fact, error) {
	return s.facts, s.err
}

func (s *stubFactService) Related(_ context.Context, factID uuid.UUID, limit int) ([]services.RelatedFact, error) {
	return s.related, s.err
}

func (s *stubFactService) Retire(_ context.Context, factID uuid.UUID, mergedInto *uuid.UUID) error {
	s.lastMergedInto = mergedInto
	return s.retireErr
}

type stubScriptService struct {
	script *types.VideoScript
	err    error
}

func (s *stubScriptService) Generate(_ context.Context, factID uuid.UUID, withTTS bool) (*types.VideoScript, error) {
	return s.script, s.err
}

func (s *stubScriptService) GetByFact(_ context.Context, factID uuid.UUID) (*types.VideoScript, error) {
	return s.script, s.err
}

type stubIngestService struct {
	submission *services.Submission
	err        error
	lastText   services.SubmitTextInput
	lastUpload services.SubmitUploadInput
	lastTube   services.SubmitYouTubeInput
}

func (s *stubIngestService) SubmitText(_ context.Context, in services.SubmitTextInput) (*services.Submission, error) {
	s.lastText = in
	return s.submission, s.err
}

func (s *stubIngestService) SubmitUpload(_ context.Context, in services.SubmitUploadInput) (*services.Submission, error) {
	s.lastUpload = in
	return s.submission, s.err
}

func (s *stubIngestService) SubmitYouTube(_ context.Context, in services.SubmitYouTubeInput) (*services.Submission, error) {
	s.lastTube = in
	return s.submission, s.err
}

func (s *stubIngestService) Run(context.Context, *types.Job, func(ingestion.Progress)) (types.IngestResult, error) {
	return types.IngestResult{}, errors.New("not used")
}

type stubJobRepo struct {
	job          *types.Job
	created      *types.Job
	err          error
	transitioned bool
}

func (s *stubJobRepo) Create(_ context.Context, _ *gorm.DB, job *types.Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	s.created = job
	return s.err
}

func (s *stubJobRepo) GetByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*types.Job, error) {
	return s.job, s.err
}

func (s *stubJobRepo) ClaimNextRunnable(context.Context, *gorm.DB, int, time.Duration) (*types.Job, error) {
	return nil, errors.New("not used")
}

func (s *stubJobRepo) UpdateFields(context.Context, *gorm.DB, uuid.UUID, map[string]interface{}) error {
	return errors.New("not used")
}

func (s *stubJobRepo) RequestAbort(_ context.Context, _ *gorm.DB, id uuid.UUID) (bool, error) {
	return s.transitioned, s.err
}

func (s *stubJobRepo) IsAbortRequested(context.Context, *gorm.DB, uuid.UUID) (bool, error) {
	return false, errors.New("not used")
}

type stubSourceRepo struct {
	source  *types.Source
	sources []*types.Source
	err     error
}

func (s *stubSourceRepo) Create(context.Context, *gorm.DB, *types.Source) error {
	return errors.New("not used")
}

func (s *stubSourceRepo) GetByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*types.Source, error) {
	return s.source, s.err
}

func (s *stubSourceRepo) GetByLearnerAndSHA(context.Context, *gorm.DB, uuid.UUID, string) (*types.Source, error) {
	return nil, errors.New("not used")
}

func (s *stubSourceRepo) ListByLearner(_ context.Context, _ *gorm.DB, learnerID uuid.UUID, limit int) ([]*types.Source, error) {
	return s.sources, s.err
}

func (s *stubSourceRepo) UpdateFields(context.Context, *gorm.DB, uuid.UUID, map[string]interface{}) error {
	return errors.New("not used")
}

type routerHarness struct {
	engine   *gin.Engine
	learners *stubLearnerService
	gestures *stubGestureService
	queue    *stubQueueService
	facts    *stubFactService
	scripts  *stubScriptService
	ingest   *stubIngestService
	jobs     *stubJobRepo
	sources  *stubSourceRepo
}

func newRouterHarness(t *testing.T) *routerHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := &routerHarness{
		learners: &stubLearnerService{},
		gestures: &stubGestureService{},
		queue:    &stubQueueService{},
		facts:    &stubFactService{},
		scripts:  &stubScriptService{},
		ingest:   &stubIngestService{},
		jobs:     &stubJobRepo{},
		sources:  &stubSourceRepo{},
	}
	log := logger.NewNop()
	h.engine = NewRouter(RouterConfig{
		Log:      log,
		Health:   handlers.NewHealthHandler(),
		Learners: handlers.NewLearnerHandler(log, h.learners),
		Content:  handlers.NewContentHandler(log, h.ingest, h.facts, h.sources),
		Jobs:     handlers.NewJobHandler(log, h.jobs),
		Gestures: handlers.NewGestureHandler(log, h.gestures),
		Queue:    handlers.NewQueueHandler(log, h.queue),
		Facts:    handlers.NewFactHandler(log, h.facts),
		Scripts:  handlers.NewScriptHandler(log, h.scripts, h.jobs),
		Events:   handlers.NewRealtimeHandler(log, realtime.NewHub(log)),
	})
	return h
}

func (h *routerHarness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), into); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeBody(t, w, &envelope)
	return envelope.Error.Code
}

func TestHealthcheck(t *testing.T) {
	t.Parallel()
	h := newRouterHarness(t)

	w := h.do(t, http.MethodGet, "/healthcheck", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != "ok" {
		t.Fatalf("body = %q, want ok", w.Body.String())
	}
}

func TestLearnerRoutes(t *testing.T) {
	t.Parallel()
	h := newRouterHarness(t)
	h.learners.learner = &types.Learner{ID: uuid.New(), DisplayName: "Maya"}

	w := h.do(t, http.MethodPost, "/api/learners", gin.H{"display_name": "Maya"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201: %s", w.Code, w.Body.String())
	}
	if h.learners.lastName != "Maya" {
		t.Fatalf("service received name %q", h.learners.lastName)
	}
	var created struct {
		Learner *types.Learner `json:"learner"`
	}
	decodeBody(t, w, &created)
	if created.Learner == nil || created.Learner.DisplayName != "Maya" {
		t.Fatalf("unexpected create body: %s", w.Body.String())
	}

	w = h.do(t, http.MethodPost, "/api/learners", nil)
	if w.Code != http.StatusBadRequest || errorCode(t, w) != "invalid_body" {
		t.Fatalf("empty body: status %d code %q", w.Code, errorCode(t, w))
	}

	w = h.do(t, http.MethodGet, "/api/learners/not-a-uuid", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d, want 400", w.Code)
	}

	h.learners.learners = []*types.Learner{{ID: uuid.New()}, {ID: uuid.New()}}
	w = h.do(t, http.MethodGet, "/api/learners?limit=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	if h.learners.lastLimit != 2 {
		t.Fatalf("limit = %d, want 2", h.learners.lastLimit)
	}
	var listed struct {
		Learners []*types.Learner `json:"learners"`
	}
	decodeBody(t, w, &listed)
	if len(listed.Learners) != 2 {
		t.Fatalf("listed %d learners, want 2", len(listed.Learners))
	}
}

func TestGestureApply(t *testing.T) {
	t.Parallel()
	h := newRouterHarness(t)
	learnerID, factID := uuid.New(), uuid.New()
	h.gestures.result = &services.GestureResult{FactID: factID}

	w := h.do(t, http.MethodPost, "/api/gestures", gin.H{
		"learner_id": learnerID,
		"fact_id":    factID,
		"kind":       "loop",
		"loop_count": 3,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if h.gestures.lastLearner != learnerID || h.gestures.lastFact != factID {
		t.Fatal("service did not receive the request ids")
	}
	if h.gestures.lastGesture.Kind != scheduler.KindLoop || h.gestures.lastGesture.LoopCount != 3 {
		t.Fatalf("gesture = %+v", h.gestures.lastGesture)
	}
	if time.Since(h.gestures.lastGesture.OccurredAt) > time.Minute {
		t.Fatalf("occurred_at not defaulted to now: %v", h.gestures.lastGesture.OccurredAt)
	}

	occurred := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	w = h.do(t, http.MethodPost, "/api/gestures", gin.H{
		"learner_id":  learnerID,
		"fact_id":     factID,
		"kind":        "like",
		"occurred_at": occurred,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !h.gestures.lastGesture.OccurredAt.Equal(occurred) {
		t.Fatalf("occurred_at = %v, want %v", h.gestures.lastGesture.OccurredAt, occurred)
	}

	w = h.do(t, http.MethodPost, "/api/gestures", gin.H{
		"learner_id": learnerID,
		"fact_id":    factID,
		"kind":       "superlike",
	})
	if w.Code != http.StatusBadRequest || errorCode(t, w) != "invalid_gesture_kind" {
		t.Fatalf("unknown kind: status %d code %q", w.Code, errorCode(t, w))
	}
}

func TestQueueSession(t *testing.T) {
	t.Parallel()
	h := newRouterHarness(t)
	h.queue.feed = &services.SessionFeed{SessionID: "s-1", DueCount: 2, BuiltAt: time.Now()}

	w := h.do(t, http.MethodGet, "/api/queue?learner_id="+uuid.NewString()+"&session_id=s-1&size=5", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var feed services.SessionFeed
	decodeBody(t, w, &feed)
	if feed.SessionID != "s-1" || feed.DueCount != 2 {
		t.Fatalf("feed = %+v", feed)
	}

	w = h.do(t, http.MethodGet, "/api/queue?session_id=s-1", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing learner_id status = %d, want 400", w.Code)
	}
}

func TestJobRoutes(t *testing.T) {
	t.Parallel()
	h := newRouterHarness(t)
	jobID := uuid.New()

	w := h.do(t, http.MethodGet, "/api/jobs/"+jobID.String(), nil)
	if w.Code != http.StatusNotFound || errorCode(t, w) != "job_not_found" {
		t.Fatalf("missing job: status %d code %q", w.Code, errorCode(t, w))
	}

	h.jobs.job = &types.Job{ID: jobID, Type: types.JobTypeSourceIngest, Status: types.JobStatusRunning}
	w = h.do(t, http.MethodGet, "/api/jobs/"+jobID.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	h.jobs.transitioned = true
	w = h.do(t, http.MethodPost, "/api/jobs/"+jobID.String()+"/abort", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("abort status = %d: %s", w.Code, w.Body.String())
	}

	h.jobs.transitioned = false
	w = h.do(t, http.MethodPost, "/api/jobs/"+jobID.String()+"/abort", nil)
	if w.Code != http.StatusConflict || errorCode(t, w) != "job_not_abortable" {
		t.Fatalf("terminal job: status %d code %q", w.Code, errorCode(t, w))
	}

	h.jobs.job = nil
	w = h.do(t, http.MethodPost, "/api/jobs/"+jobID.String()+"/abort", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing job abort status = %d, want 404", w.Code)
	}
}

func TestFactRoutes(t *testing.T) {
	t.Parallel()
	h := newRouterHarness(t)
	factID := uuid.New()

	h.facts.err = fmt.Errorf("fact %s: %w", factID, domain.ErrNotFound)
	w := h.do(t, http.MethodGet, "/api/facts/"+factID.String(), nil)
	if w.Code != http.StatusNotFound || errorCode(t, w) != "not_found" {
		t.Fatalf("missing fact: status %d code %q", w.Code, errorCode(t, w))
	}

	h.facts.err = nil
	h.facts.fact = &types.Fact{ID: factID, Topic: "biology"}
	w = h.do(t, http.MethodGet, "/api/facts/"+factID.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	h.facts.related = []services.RelatedFact{{Fact: &types.Fact{ID: uuid.New()}, Score: 0.9}}
	w = h.do(t, http.MethodGet, "/api/facts/"+factID.String()+"/related?limit=3", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("related status = %d", w.Code)
	}

	w = h.do(t, http.MethodPost, "/api/facts/"+factID.String()+"/retire", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("retire status = %d: %s", w.Code, w.Body.String())
	}
	if h.facts.lastMergedInto != nil {
		t.Fatal("plain retire should not carry a merge target")
	}

	survivor := uuid.New()
	w = h.do(t, http.MethodPost, "/api/facts/"+factID.String()+"/retire", gin.H{"merged_into": survivor})
	if w.Code != http.StatusOK {
		t.Fatalf("merge retire status = %d", w.Code)
	}
	if h.facts.lastMergedInto == nil || *h.facts.lastMergedInto != survivor {
		t.Fatalf("merged_into = %v, want %s", h.facts.lastMergedInto, survivor)
	}
}

func TestScriptRoutes(t *testing.T) {
	t.Parallel()
	h := newRouterHarness(t)
	factID := uuid.New()

	h.scripts.err = domain.NewCollaborator("openai", errors.New("rate limited"))
	w := h.do(t, http.MethodPost, "/api/facts/"+factID.String()+"/script", nil)
	if w.Code != http.StatusBadGateway || errorCode(t, w) != "collaborator_unavailable" {
		t.Fatalf("collaborator failure: status %d code %q", w.Code, errorCode(t, w))
	}

	h.scripts.err = nil
	h.scripts.script = &types.VideoScript{ID: uuid.New(), FactID: factID}
	w = h.do(t, http.MethodPost, "/api/facts/"+factID.String()+"/script", gin.H{"tts": true})
	if w.Code != http.StatusCreated {
		t.Fatalf("generate status = %d: %s", w.Code, w.Body.String())
	}

	w = h.do(t, http.MethodGet, "/api/facts/"+factID.String()+"/script", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}

	ids := []uuid.UUID{uuid.New(), uuid.New()}
	w = h.do(t, http.MethodPost, "/api/scripts/batch", gin.H{"fact_ids": ids, "tts": true})
	if w.Code != http.StatusAccepted {
		t.Fatalf("batch status = %d: %s", w.Code, w.Body.String())
	}
	if h.jobs.created == nil || h.jobs.created.Type != types.JobTypeScriptBatch {
		t.Fatalf("created job = %+v", h.jobs.created)
	}
	var payload types.ScriptBatchPayload
	if err := json.Unmarshal(h.jobs.created.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(payload.FactIDs) != 2 || !payload.TTS {
		t.Fatalf("payload = %+v", payload)
	}

	w = h.do(t, http.MethodPost, "/api/scripts/batch", gin.H{"fact_ids": []uuid.UUID{}})
	if w.Code != http.StatusBadRequest || errorCode(t, w) != "empty_fact_ids" {
		t.Fatalf("empty batch: status %d code %q", w.Code, errorCode(t, w))
	}
}

func TestContentSubmitText(t *testing.T) {
	t.Parallel()
	h := newRouterHarness(t)
	learnerID := uuid.New()
	source := &types.Source{ID: uuid.New(), LearnerID: learnerID}

	h.ingest.submission = &services.Submission{
		Source: source,
		Job:    &types.Job{ID: uuid.New(), Type: types.JobTypeSourceIngest},
	}
	w := h.do(t, http.MethodPost, "/api/content/text", gin.H{
		"learner_id": learnerID,
		"title":      "Octopus notes",
		"topic":      "biology",
		"text":       "An octopus has three hearts.",
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", w.Code, w.Body.String())
	}
	if h.ingest.lastText.LearnerID != learnerID || h.ingest.lastText.Topic != "biology" {
		t.Fatalf("service received %+v", h.ingest.lastText)
	}
	var accepted struct {
		Duplicate bool       `json:"duplicate"`
		Job       *types.Job `json:"job"`
	}
	decodeBody(t, w, &accepted)
	if accepted.Duplicate || accepted.Job == nil {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}

	// Resubmitting the same content returns the prior source and no job.
	h.ingest.submission = &services.Submission{Source: source, Duplicate: true}
	w = h.do(t, http.MethodPost, "/api/content/text", gin.H{
		"learner_id": learnerID,
		"topic":      "biology",
		"text":       "An octopus has three hearts.",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("duplicate status = %d, want 200", w.Code)
	}
	accepted.Job = nil
	decodeBody(t, w, &accepted)
	if !accepted.Duplicate || accepted.Job != nil {
		t.Fatalf("unexpected duplicate body: %s", w.Body.String())
	}
}

func TestContentSubmitUpload(t *testing.T) {
	t.Parallel()
	h := newRouterHarness(t)
	learnerID := uuid.New()
	h.ingest.submission = &services.Submission{
		Source: &types.Source{ID: uuid.New(), LearnerID: learnerID},
		Job:    &types.Job{ID: uuid.New()},
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("learner_id", learnerID.String())
	_ = mw.WriteField("title", "Lecture slides")
	_ = mw.WriteField("topic", "biology")
	_ = mw.WriteField("kind", types.SourceKindImage)
	for i, content := range []string{"slide-one", "slide-two"} {
		fw, err := mw.CreateFormFile("files", fmt.Sprintf("slide-%d.png", i+1))
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/content/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	got := h.ingest.lastUpload
	if got.LearnerID != learnerID || got.Kind != types.SourceKindImage {
		t.Fatalf("service received %+v", got)
	}
	if len(got.Files) != 2 || string(got.Files[0]) != "slide-one" || string(got.Files[1]) != "slide-two" {
		t.Fatalf("files = %d entries", len(got.Files))
	}
}

func TestContentSubmitYouTube(t *testing.T) {
	t.Parallel()
	h := newRouterHarness(t)
	learnerID := uuid.New()
	h.ingest.submission = &services.Submission{
		Source: &types.Source{ID: uuid.New(), LearnerID: learnerID},
		Job:    &types.Job{ID: uuid.New()},
	}

	w := h.do(t, http.MethodPost, "/api/content/youtube", gin.H{
		"learner_id": learnerID,
		"topic":      "biology",
		"video":      "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if h.ingest.lastTube.VideoRef != "https://www.youtube.com/watch?v=dQw4w9WgXcQ" {
		t.Fatalf("video ref = %q", h.ingest.lastTube.VideoRef)
	}
}

func TestSourceRoutes(t *testing.T) {
	t.Parallel()
	h := newRouterHarness(t)
	sourceID := uuid.New()

	w := h.do(t, http.MethodGet, "/api/sources/"+sourceID.String(), nil)
	if w.Code != http.StatusNotFound || errorCode(t, w) != "source_not_found" {
		t.Fatalf("missing source: status %d code %q", w.Code, errorCode(t, w))
	}

	h.sources.source = &types.Source{ID: sourceID}
	w = h.do(t, http.MethodGet, "/api/sources/"+sourceID.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	w = h.do(t, http.MethodGet, "/api/sources?learner_id="+uuid.NewString(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var listed struct {
		Sources []*types.Source `json:"sources"`
	}
	decodeBody(t, w, &listed)
	if listed.Sources == nil {
		t.Fatal("sources should decode to an empty slice, not null")
	}

	h.facts.facts = []*types.Fact{{ID: uuid.New()}}
	w = h.do(t, http.MethodGet, "/api/sources/"+sourceID.String()+"/facts", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("source facts status = %d", w.Code)
	}
}

func TestEventStreamValidation(t *testing.T) {
	t.Parallel()
	h := newRouterHarness(t)

	w := h.do(t, http.MethodGet, "/api/events/stream", nil)
	if w.Code != http.StatusBadRequest || errorCode(t, w) != "missing_channel" {
		t.Fatalf("no channel: status %d code %q", w.Code, errorCode(t, w))
	}

	q := url.Values{}
	for i := 0; i < 17; i++ {
		q.Add("channel", fmt.Sprintf("job:%d", i))
	}
	w = h.do(t, http.MethodGet, "/api/events/stream?"+q.Encode(), nil)
	if w.Code != http.StatusBadRequest || errorCode(t, w) != "too_many_channels" {
		t.Fatalf("channel cap: status %d code %q", w.Code, errorCode(t, w))
	}
}

func TestValidationErrorsMapToBadRequest(t *testing.T) {
	t.Parallel()
	h := newRouterHarness(t)
	h.gestures.err = domain.NewValidation("loop_count", "must be non-negative")

	w := h.do(t, http.MethodPost, "/api/gestures", gin.H{
		"learner_id": uuid.New(),
		"fact_id":    uuid.New(),
		"kind":       "loop",
		"loop_count": -1,
	})
	if w.Code != http.StatusBadRequest || errorCode(t, w) != "validation_failed" {
		t.Fatalf("status %d code %q", w.Code, errorCode(t, w))
	}
}

func TestRaceConflictMapsToConflict(t *testing.T) {
	t.Parallel()
	h := newRouterHarness(t)
	h.gestures.err = fmt.Errorf("apply gesture: %w", domain.ErrRaceConflict)

	w := h.do(t, http.MethodPost, "/api/gestures", gin.H{
		"learner_id": uuid.New(),
		"fact_id":    uuid.New(),
		"kind":       "like",
	})
	if w.Code != http.StatusConflict || errorCode(t, w) != "conflict" {
		t.Fatalf("status %d code %q", w.Code, errorCode(t, w))
	}
}

func TestRequestIDEchoedOnResponses(t *testing.T) {
	t.Parallel()
	h := newRouterHarness(t)

	w := h.do(t, http.MethodGet, "/healthcheck", nil)
	if w.Header().Get("X-Request-Id") == "" {
		t.Fatal("response should carry a generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/healthcheck", nil)
	req.Header.Set("X-Request-Id", "req-123")
	rec := httptest.NewRecorder()
	h.engine.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); got != "req-123" {
		t.Fatalf("request id = %q, want req-123", got)
	}
}
