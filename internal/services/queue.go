package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dewiapp/dewi-backend/internal/domain"
	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/repos"
	"github.com/dewiapp/dewi-backend/internal/scheduler"
	"github.com/dewiapp/dewi-backend/internal/types"
)

const (
	defaultSessionSize = 12
	maxSessionSize     = 50
	// queuePoolFactor oversizes the candidate pool relative to the requested
	// session so retired facts and ratio reservations still leave a full feed.
	queuePoolFactor = 4
	minQueuePool    = 40
)

// FeedItem is one hydrated entry of a session feed.
type FeedItem struct {
	FactID uuid.UUID `json:"fact_id"`
	Text   string    `json:"text"`
	Topic  string    `json:"topic"`
	Status string    `json:"status"`
	New    bool      `json:"new"`
	// DueAt is the review deadline that queued this item; zero for never-seen
	// facts.
	DueAt time.Time `json:"due_at,omitempty"`
	// Hook, PosterURI and AudioURI come from the fact's generated script when
	// one exists.
	Hook      string `json:"hook,omitempty"`
	PosterURI string `json:"poster_uri,omitempty"`
	AudioURI  string `json:"audio_uri,omitempty"`
}

// SessionFeed is one ordered review session.
type SessionFeed struct {
	SessionID string     `json:"session_id"`
	Items     []FeedItem `json:"items"`
	DueCount  int        `json:"due_count"`
	NewCount  int        `json:"new_count"`
	BuiltAt   time.Time  `json:"built_at"`
}

type QueueService interface {
	// BuildSession assembles the learner's next session: due reviews first,
	// never-seen facts up to the configured share, order varied per session.
	// An empty sessionID gets one generated.
	BuildSession(ctx context.Context, learnerID uuid.UUID, sessionID string, size int) (*SessionFeed, error)
	// Invalidate drops the learner's cached candidate pool. Gestures and
	// finished ingests call this so the next session sees the change.
	Invalidate(learnerID uuid.UUID)
}

// queuePool is the cached feed material for one learner: scheduling items
// plus the fact rows backing them.
type queuePool struct {
	due       []scheduler.QueueItem
	fresh     []scheduler.QueueItem
	facts     map[uuid.UUID]*types.Fact
	fetchedAt time.Time
}

type queueService struct {
	log         *logger.Logger
	sched       *scheduler.Scheduler
	learnerRepo repos.LearnerRepo
	factRepo    repos.FactRepo
	reviewRepo  repos.ReviewStateRepo
	scriptRepo  repos.VideoScriptRepo

	mu    sync.Mutex
	pools map[uuid.UUID]*queuePool
}

func NewQueueService(
	baseLog *logger.Logger,
	sched *scheduler.Scheduler,
	learnerRepo repos.LearnerRepo,
	factRepo repos.FactRepo,
	reviewRepo repos.ReviewStateRepo,
	scriptRepo repos.VideoScriptRepo,
) QueueService {
	return &queueService{
		log:         baseLog.With("service", "QueueService"),
		sched:       sched,
		learnerRepo: learnerRepo,
		factRepo:    factRepo,
		reviewRepo:  reviewRepo,
		scriptRepo:  scriptRepo,
		pools:       make(map[uuid.UUID]*queuePool),
	}
}

func (s *queueService) BuildSession(ctx context.Context, learnerID uuid.UUID, sessionID string, size int) (*SessionFeed, error) {
	if learnerID == uuid.Nil {
		return nil, domain.NewValidation("learner_id", "learner_id is required")
	}
	learner, err := s.learnerRepo.GetByID(ctx, nil, learnerID)
	if err != nil {
		return nil, err
	}
	if learner == nil {
		return nil, fmt.Errorf("learner %s: %w", learnerID, domain.ErrNotFound)
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if size <= 0 {
		size = defaultSessionSize
	}
	if size > maxSessionSize {
		size = maxSessionSize
	}

	now := time.Now().UTC()
	pool, err := s.poolFor(ctx, learnerID, size, now)
	if err != nil {
		return nil, err
	}

	// BuildFeed sorts its inputs in place; the cached pool must stay shared.
	due := append([]scheduler.QueueItem(nil), pool.due...)
	fresh := append([]scheduler.QueueItem(nil), pool.fresh...)
	feed := scheduler.BuildFeed(due, fresh, size, s.sched.Config().NewRatio, now)
	scheduler.VarietyShuffle(feed, learnerID, sessionID)

	items, err := s.hydrate(ctx, feed, pool.facts)
	if err != nil {
		return nil, err
	}

	out := &SessionFeed{SessionID: sessionID, Items: items, BuiltAt: now}
	for _, it := range items {
		if it.New {
			out.NewCount++
		} else {
			out.DueCount++
		}
	}
	s.log.Debug("Session built",
		"learner_id", learnerID, "session_id", sessionID, "items", len(items),
		"due", out.DueCount, "new", out.NewCount)
	return out, nil
}

func (s *queueService) Invalidate(learnerID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pools, learnerID)
}

// poolFor returns the learner's cached candidate pool, refreshing it when
// missing or older than the configured TTL.
func (s *queueService) poolFor(ctx context.Context, learnerID uuid.UUID, size int, now time.Time) (*queuePool, error) {
	ttl := s.sched.Config().QueueCacheTTL.Std()

	s.mu.Lock()
	cached, ok := s.pools[learnerID]
	s.mu.Unlock()
	if ok && ttl > 0 && now.Sub(cached.fetchedAt) < ttl {
		return cached, nil
	}

	pool, err := s.fetchPool(ctx, learnerID, size, now)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.pools[learnerID] = pool
	s.mu.Unlock()
	return pool, nil
}

func (s *queueService) fetchPool(ctx context.Context, learnerID uuid.UUID, size int, now time.Time) (*queuePool, error) {
	limit := size * queuePoolFactor
	if limit < minQueuePool {
		limit = minQueuePool
	}

	pool := &queuePool{facts: make(map[uuid.UUID]*types.Fact), fetchedAt: now}

	states, err := s.reviewRepo.ListDue(ctx, nil, learnerID, now, limit)
	if err != nil {
		return nil, err
	}
	dueIDs := make([]uuid.UUID, 0, len(states))
	for _, st := range states {
		dueIDs = append(dueIDs, st.FactID)
	}
	dueFacts, err := s.factRepo.GetByIDs(ctx, nil, dueIDs)
	if err != nil {
		return nil, err
	}
	for _, f := range dueFacts {
		if !f.Retired() {
			pool.facts[f.ID] = f
		}
	}
	for _, st := range states {
		if _, ok := pool.facts[st.FactID]; !ok {
			continue
		}
		status, err := scheduler.ParseStatus(st.Status)
		if err != nil {
			s.log.Warn("Review state holds unknown status; skipping",
				"state_id", st.ID, "status", st.Status)
			continue
		}
		pool.due = append(pool.due, scheduler.QueueItem{
			FactID:    st.FactID,
			NextDueAt: st.NextDueAt,
			Status:    status,
		})
	}

	freshFacts, err := s.factRepo.ListUnseenByLearner(ctx, nil, learnerID, limit)
	if err != nil {
		return nil, err
	}
	for _, f := range freshFacts {
		pool.facts[f.ID] = f
		pool.fresh = append(pool.fresh, scheduler.QueueItem{
			FactID:     f.ID,
			IngestedAt: f.CreatedAt,
			Status:     scheduler.StatusNew,
			New:        true,
		})
	}
	return pool, nil
}

// hydrate joins feed items with their fact text and any generated script.
func (s *queueService) hydrate(ctx context.Context, feed []scheduler.QueueItem, facts map[uuid.UUID]*types.Fact) ([]FeedItem, error) {
	ids := make([]uuid.UUID, 0, len(feed))
	for _, it := range feed {
		ids = append(ids, it.FactID)
	}
	scripts, err := s.scriptRepo.ListByFactIDs(ctx, nil, ids)
	if err != nil {
		return nil, err
	}
	scriptByFact := make(map[uuid.UUID]*types.VideoScript, len(scripts))
	for _, sc := range scripts {
		scriptByFact[sc.FactID] = sc
	}

	items := make([]FeedItem, 0, len(feed))
	for _, it := range feed {
		fact, ok := facts[it.FactID]
		if !ok {
			continue
		}
		item := FeedItem{
			FactID: it.FactID,
			Text:   fact.Text,
			Topic:  fact.Topic,
			Status: it.Status.String(),
			New:    it.New,
		}
		if !it.New {
			item.DueAt = it.NextDueAt
		}
		if sc := scriptByFact[it.FactID]; sc != nil {
			item.Hook = sc.Hook
			item.PosterURI = sc.PosterURI
			item.AudioURI = sc.AudioURI
		}
		items = append(items, item)
	}
	return items, nil
}
