package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dewiapp/dewi-backend/internal/domain"
	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/realtime"
	"github.com/dewiapp/dewi-backend/internal/repos"
	"github.com/dewiapp/dewi-backend/internal/scheduler"
	"github.com/dewiapp/dewi-backend/internal/types"
)

type gestureHarness struct {
	db          *gorm.DB
	svc         GestureService
	cfg         scheduler.Config
	factRepo    repos.FactRepo
	reviewRepo  repos.ReviewStateRepo
	eventRepo   repos.GestureEventRepo
	notifier    *recordingNotifier
	invalidator *recordingInvalidator
}

func newGestureHarness(t *testing.T) *gestureHarness {
	t.Helper()
	db := testDB(t)
	log := logger.NewNop()
	cfg := scheduler.DefaultConfig()
	sched, err := scheduler.NewScheduler(cfg)
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}

	h := &gestureHarness{
		db:          db,
		cfg:         cfg,
		factRepo:    repos.NewFactRepo(db, log),
		reviewRepo:  repos.NewReviewStateRepo(db, log),
		eventRepo:   repos.NewGestureEventRepo(db, log),
		notifier:    &recordingNotifier{},
		invalidator: &recordingInvalidator{},
	}
	h.svc = NewGestureService(
		db, log, sched,
		repos.NewLearnerRepo(db, log),
		h.factRepo, h.reviewRepo, h.eventRepo,
		h.invalidator, h.notifier,
	)
	return h
}

func (h *gestureHarness) seedFact(t *testing.T, learnerID uuid.UUID, text string) *types.Fact {
	t.Helper()
	ctx := context.Background()
	source := &types.Source{
		LearnerID:  learnerID,
		Kind:       types.SourceKindText,
		Topic:      "biology",
		ContentSHA: uuid.NewString(),
		Status:     types.SourceStatusReady,
	}
	if err := repos.NewSourceRepo(h.db, logger.NewNop()).Create(ctx, nil, source); err != nil {
		t.Fatalf("seed source: %v", err)
	}
	fact := &types.Fact{SourceID: source.ID, Text: text, Topic: "biology"}
	if err := h.factRepo.Create(ctx, nil, fact); err != nil {
		t.Fatalf("seed fact: %v", err)
	}
	return fact
}

func TestApplyFirstGestureCreatesState(t *testing.T) {
	h := newGestureHarness(t)
	learner := seedLearner(t, h.db)
	fact := h.seedFact(t, learner.ID, "Mitochondria produce cellular ATP.")
	ctx := context.Background()
	at := time.Now().UTC().Truncate(time.Second)

	res, err := h.svc.Apply(ctx, learner.ID, fact.ID, scheduler.Gesture{Kind: scheduler.KindLike, OccurredAt: at})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Stale {
		t.Fatal("first gesture flagged stale")
	}
	if res.State.Status != scheduler.StatusLearning.String() {
		t.Errorf("status = %q, want learning", res.State.Status)
	}
	wantEase := h.cfg.EaseStart + h.cfg.LikeEaseBonus
	if res.State.EaseFactor != wantEase {
		t.Errorf("ease = %v, want %v", res.State.EaseFactor, wantEase)
	}
	if !res.State.NextDueAt.After(at) {
		t.Errorf("next due %v not after %v", res.State.NextDueAt, at)
	}

	stored, err := h.reviewRepo.Get(ctx, nil, learner.ID, fact.ID)
	if err != nil {
		t.Fatalf("reload state: %v", err)
	}
	if stored == nil || stored.Status != scheduler.StatusLearning.String() {
		t.Errorf("stored state = %+v, want persisted learning row", stored)
	}

	events, err := h.eventRepo.ListByPair(ctx, nil, learner.ID, fact.ID, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("audit rows = %d, want 1", len(events))
	}
	if events[0].Kind != "like" || events[0].FromStatus != "new" || events[0].ToStatus != "learning" {
		t.Errorf("audit row = %s %s->%s", events[0].Kind, events[0].FromStatus, events[0].ToStatus)
	}

	if h.invalidator.count() != 1 {
		t.Errorf("invalidations = %d, want 1", h.invalidator.count())
	}
	if got := h.notifier.byEvent(realtime.EventQueueInvalidated); len(got) != 1 {
		t.Errorf("queue-invalidated events = %d, want 1", len(got))
	}
}

func TestApplyStaleGestureDroppedSilently(t *testing.T) {
	h := newGestureHarness(t)
	learner := seedLearner(t, h.db)
	fact := h.seedFact(t, learner.ID, "Enzymes lower activation energy.")
	ctx := context.Background()
	t1 := time.Now().UTC().Truncate(time.Second)
	t0 := t1.Add(-time.Hour)

	if _, err := h.svc.Apply(ctx, learner.ID, fact.ID, scheduler.Gesture{Kind: scheduler.KindLike, OccurredAt: t1}); err != nil {
		t.Fatalf("fresh gesture: %v", err)
	}

	res, err := h.svc.Apply(ctx, learner.ID, fact.ID, scheduler.Gesture{Kind: scheduler.KindSkip, OccurredAt: t0})
	if err != nil {
		t.Fatalf("stale gesture: %v", err)
	}
	if !res.Stale {
		t.Fatal("out-of-order gesture not flagged stale")
	}
	if res.Change != nil {
		t.Error("stale gesture reported a change")
	}
	if res.State.Status != scheduler.StatusLearning.String() {
		t.Errorf("state mutated by stale gesture: %q", res.State.Status)
	}

	events, err := h.eventRepo.ListByPair(ctx, nil, learner.ID, fact.ID, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("audit rows = %d, want only the fresh gesture", len(events))
	}
	if h.invalidator.count() != 1 {
		t.Errorf("invalidations = %d, want only the fresh gesture's", h.invalidator.count())
	}
}

func TestApplyRedirectsMergedFact(t *testing.T) {
	h := newGestureHarness(t)
	learner := seedLearner(t, h.db)
	survivor := h.seedFact(t, learner.ID, "Water boils at 100 degrees Celsius at sea level.")
	merged := h.seedFact(t, learner.ID, "At sea level water boils at 100C.")
	ctx := context.Background()

	if err := h.factRepo.Retire(ctx, nil, merged.ID, &survivor.ID); err != nil {
		t.Fatalf("merge fact: %v", err)
	}

	res, err := h.svc.Apply(ctx, learner.ID, merged.ID,
		scheduler.Gesture{Kind: scheduler.KindSave, OccurredAt: time.Now().UTC()})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.FactID != survivor.ID {
		t.Errorf("gesture landed on %s, want merge target %s", res.FactID, survivor.ID)
	}
	state, err := h.reviewRepo.Get(ctx, nil, learner.ID, survivor.ID)
	if err != nil {
		t.Fatalf("reload state: %v", err)
	}
	if state == nil || state.Status != scheduler.StatusMastered.String() {
		t.Errorf("survivor state = %+v, want mastered", state)
	}
	if redirected, _ := h.reviewRepo.Get(ctx, nil, learner.ID, merged.ID); redirected != nil {
		t.Error("merged fact grew its own review state")
	}
}

func TestApplyRejectsRetiredFact(t *testing.T) {
	h := newGestureHarness(t)
	learner := seedLearner(t, h.db)
	fact := h.seedFact(t, learner.ID, "Ribosomes assemble cell proteins.")
	ctx := context.Background()

	if err := h.factRepo.Retire(ctx, nil, fact.ID, nil); err != nil {
		t.Fatalf("retire fact: %v", err)
	}
	_, err := h.svc.Apply(ctx, learner.ID, fact.ID,
		scheduler.Gesture{Kind: scheduler.KindLike, OccurredAt: time.Now().UTC()})
	if !domain.IsValidation(err) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestApplyUnknownFactNotFound(t *testing.T) {
	h := newGestureHarness(t)
	learner := seedLearner(t, h.db)

	_, err := h.svc.Apply(context.Background(), learner.ID, uuid.New(),
		scheduler.Gesture{Kind: scheduler.KindLike, OccurredAt: time.Now().UTC()})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestApplySkipDemotesAndResurfacesQuickly(t *testing.T) {
	h := newGestureHarness(t)
	learner := seedLearner(t, h.db)
	fact := h.seedFact(t, learner.ID, "The mantle convects over geologic time.")
	ctx := context.Background()
	t0 := time.Now().UTC().Truncate(time.Second)

	if _, err := h.svc.Apply(ctx, learner.ID, fact.ID, scheduler.Gesture{Kind: scheduler.KindLike, OccurredAt: t0}); err != nil {
		t.Fatalf("like: %v", err)
	}
	t1 := t0.Add(time.Hour)
	res, err := h.svc.Apply(ctx, learner.ID, fact.ID, scheduler.Gesture{Kind: scheduler.KindSkip, OccurredAt: t1})
	if err != nil {
		t.Fatalf("skip: %v", err)
	}
	if res.State.Status != scheduler.StatusHard.String() {
		t.Errorf("status = %q, want hard", res.State.Status)
	}
	wantDue := t1.Add(h.cfg.SkipInterval.Std())
	if !res.State.NextDueAt.Equal(wantDue) {
		t.Errorf("next due = %v, want %v", res.State.NextDueAt, wantDue)
	}
	if res.State.EaseFactor >= h.cfg.EaseStart+h.cfg.LikeEaseBonus {
		t.Errorf("ease = %v, want reduced below %v", res.State.EaseFactor, h.cfg.EaseStart+h.cfg.LikeEaseBonus)
	}

	events, err := h.eventRepo.ListByPair(ctx, nil, learner.ID, fact.ID, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("audit rows = %d, want 2", len(events))
	}
	if events[1].FromStatus != "learning" || events[1].ToStatus != "hard" {
		t.Errorf("second transition = %s->%s, want learning->hard", events[1].FromStatus, events[1].ToStatus)
	}
}
