package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dewiapp/dewi-backend/internal/domain"
	"github.com/dewiapp/dewi-backend/internal/pkg/locks"
	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/realtime"
	"github.com/dewiapp/dewi-backend/internal/repos"
	"github.com/dewiapp/dewi-backend/internal/scheduler"
	"github.com/dewiapp/dewi-backend/internal/types"
)

const (
	gestureLockWait = 2 * time.Second
	// maxMergeHops bounds merge-chain resolution; chains form one hop at a
	// time, so anything deeper is corrupt data.
	maxMergeHops = 8
)

// GestureResult is the settled outcome of one gesture. Stale gestures report
// the unchanged state with Stale set and no Change.
type GestureResult struct {
	// FactID is the fact the gesture actually landed on, after following any
	// merge redirect.
	FactID uuid.UUID          `json:"fact_id"`
	State  *types.ReviewState `json:"state"`
	Change *scheduler.Change  `json:"change,omitempty"`
	Stale  bool               `json:"stale,omitempty"`
}

type GestureService interface {
	// Apply folds one engagement gesture into the learner's review state for
	// the fact. Gestures against a merged fact land on the merge target;
	// gestures older than the pair's last_seen_at are dropped silently.
	Apply(ctx context.Context, learnerID, factID uuid.UUID, g scheduler.Gesture) (*GestureResult, error)
}

type gestureService struct {
	db          *gorm.DB
	log         *logger.Logger
	sched       *scheduler.Scheduler
	learnerRepo repos.LearnerRepo
	factRepo    repos.FactRepo
	reviewRepo  repos.ReviewStateRepo
	eventRepo   repos.GestureEventRepo
	locks       *locks.KeyedMutex
	invalidator QueueInvalidator
	notify      Notifier
}

func NewGestureService(
	db *gorm.DB,
	baseLog *logger.Logger,
	sched *scheduler.Scheduler,
	learnerRepo repos.LearnerRepo,
	factRepo repos.FactRepo,
	reviewRepo repos.ReviewStateRepo,
	eventRepo repos.GestureEventRepo,
	invalidator QueueInvalidator,
	notify Notifier,
) GestureService {
	return &gestureService{
		db:          db,
		log:         baseLog.With("service", "GestureService"),
		sched:       sched,
		learnerRepo: learnerRepo,
		factRepo:    factRepo,
		reviewRepo:  reviewRepo,
		eventRepo:   eventRepo,
		locks:       locks.NewKeyedMutex(),
		invalidator: invalidator,
		notify:      notify,
	}
}

func (s *gestureService) Apply(ctx context.Context, learnerID, factID uuid.UUID, g scheduler.Gesture) (*GestureResult, error) {
	if err := g.Validate(); err != nil {
		return nil, domain.NewValidation("gesture", err.Error())
	}
	if learnerID == uuid.Nil || factID == uuid.Nil {
		return nil, domain.NewValidation("id", "learner_id and fact_id are required")
	}
	learner, err := s.learnerRepo.GetByID(ctx, nil, learnerID)
	if err != nil {
		return nil, err
	}
	if learner == nil {
		return nil, fmt.Errorf("learner %s: %w", learnerID, domain.ErrNotFound)
	}

	fact, err := resolveActiveFact(ctx, s.factRepo, factID)
	if err != nil {
		return nil, err
	}

	// One writer per pair; the read-apply-write window must not interleave.
	key := fmt.Sprintf("gesture:%s:%s", learnerID, fact.ID)
	unlock, err := s.locks.LockWithin(ctx, key, gestureLockWait)
	if err != nil {
		if errors.Is(err, locks.ErrWaitExceeded) {
			return nil, fmt.Errorf("gesture for fact %s busy: %w", fact.ID, domain.ErrRaceConflict)
		}
		return nil, err
	}
	defer unlock()

	state, err := s.reviewRepo.Get(ctx, nil, learnerID, fact.ID)
	if err != nil {
		return nil, err
	}
	snap, err := s.snapshotOf(state, g.OccurredAt)
	if err != nil {
		return nil, err
	}

	next, change, err := s.sched.Apply(snap, g)
	if err != nil {
		if errors.Is(err, scheduler.ErrStaleGesture) {
			s.log.Debug("Stale gesture dropped",
				"learner_id", learnerID, "fact_id", fact.ID, "kind", g.Kind.String(), "occurred_at", g.OccurredAt)
			return &GestureResult{FactID: fact.ID, State: stateRow(learnerID, fact.ID, state, snap), Stale: true}, nil
		}
		return nil, domain.NewValidation("gesture", err.Error())
	}

	row := stateRow(learnerID, fact.ID, state, next)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.reviewRepo.Upsert(ctx, tx, row); err != nil {
			return err
		}
		return s.eventRepo.Create(ctx, tx, &types.GestureEvent{
			LearnerID:  learnerID,
			FactID:     fact.ID,
			Kind:       g.Kind.String(),
			LoopCount:  g.LoopCount,
			OccurredAt: g.OccurredAt,
			FromStatus: change.From.String(),
			ToStatus:   change.To.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	if s.invalidator != nil {
		s.invalidator.Invalidate(learnerID)
	}
	if s.notify != nil {
		_ = s.notify.Publish(ctx, realtime.Message{
			Channel: realtime.LearnerChannel(learnerID),
			Event:   realtime.EventQueueInvalidated,
			Data:    map[string]any{"fact_id": fact.ID, "trigger": g.Kind.String()},
		})
	}

	s.log.Info("Gesture applied",
		"learner_id", learnerID,
		"fact_id", fact.ID,
		"kind", g.Kind.String(),
		"from", change.From.String(),
		"to", change.To.String(),
		"next_due_at", change.NextDueAt)
	return &GestureResult{FactID: fact.ID, State: row, Change: &change}, nil
}

// snapshotOf converts a stored row into a scheduler snapshot, or synthesizes
// first-exposure state when the pair has none.
func (s *gestureService) snapshotOf(state *types.ReviewState, occurredAt time.Time) (scheduler.Snapshot, error) {
	if state == nil {
		return s.sched.NewSnapshot(occurredAt), nil
	}
	status, err := scheduler.ParseStatus(state.Status)
	if err != nil {
		return scheduler.Snapshot{}, fmt.Errorf("review state %s holds %q: %w", state.ID, state.Status, err)
	}
	return scheduler.Snapshot{
		Status:     status,
		LoopCount:  state.LoopCount,
		EaseFactor: state.EaseFactor,
		LastSeenAt: state.LastSeenAt,
		NextDueAt:  state.NextDueAt,
	}, nil
}

// stateRow folds a snapshot back into the persistence row, reusing the stored
// row's identity when one exists.
func stateRow(learnerID, factID uuid.UUID, prior *types.ReviewState, snap scheduler.Snapshot) *types.ReviewState {
	row := &types.ReviewState{
		LearnerID:  learnerID,
		FactID:     factID,
		Status:     snap.Status.String(),
		LoopCount:  snap.LoopCount,
		EaseFactor: snap.EaseFactor,
		LastSeenAt: snap.LastSeenAt,
		NextDueAt:  snap.NextDueAt,
	}
	if prior != nil {
		row.ID = prior.ID
		row.CreatedAt = prior.CreatedAt
	}
	return row
}
