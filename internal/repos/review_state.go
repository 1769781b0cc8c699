package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/types"
)

type ReviewStateRepo interface {
	// Get returns nil, nil for a pair the scheduler has never seen; the
	// caller synthesizes a fresh state.
	Get(ctx context.Context, tx *gorm.DB, learnerID, factID uuid.UUID) (*types.ReviewState, error)
	Upsert(ctx context.Context, tx *gorm.DB, state *types.ReviewState) error
	// ListDue returns states with next_due_at at or before now, most overdue
	// first.
	ListDue(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID, now time.Time, limit int) ([]*types.ReviewState, error)
	CountByStatus(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) (map[string]int64, error)
}

type reviewStateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReviewStateRepo(db *gorm.DB, baseLog *logger.Logger) ReviewStateRepo {
	return &reviewStateRepo{
		db:  db,
		log: baseLog.With("repo", "ReviewStateRepo"),
	}
}

func (r *reviewStateRepo) Get(ctx context.Context, tx *gorm.DB, learnerID, factID uuid.UUID) (*types.ReviewState, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if learnerID == uuid.Nil || factID == uuid.Nil {
		return nil, nil
	}
	var row types.ReviewState
	err := transaction.WithContext(ctx).
		Where("learner_id = ? AND fact_id = ?", learnerID, factID).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *reviewStateRepo) Upsert(ctx context.Context, tx *gorm.DB, state *types.ReviewState) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if state.LearnerID == uuid.Nil || state.FactID == uuid.Nil {
		return nil
	}
	if state.ID == uuid.Nil {
		state.ID = uuid.New()
	}
	state.UpdatedAt = time.Now().UTC()
	err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "learner_id"}, {Name: "fact_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status", "loop_count", "ease_factor", "last_seen_at", "next_due_at", "updated_at",
			}),
		}).
		Create(state).Error
	return mapWriteError("upsert review state", err)
}

func (r *reviewStateRepo) ListDue(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID, now time.Time, limit int) ([]*types.ReviewState, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if learnerID == uuid.Nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	var out []*types.ReviewState
	err := transaction.WithContext(ctx).
		Where("learner_id = ? AND next_due_at <= ?", learnerID, now).
		Order("next_due_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *reviewStateRepo) CountByStatus(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) (map[string]int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if learnerID == uuid.Nil {
		return map[string]int64{}, nil
	}
	var rows []struct {
		Status string
		N      int64
	}
	err := transaction.WithContext(ctx).
		Model(&types.ReviewState{}).
		Select("status, COUNT(*) AS n").
		Where("learner_id = ?", learnerID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.N
	}
	return out, nil
}
