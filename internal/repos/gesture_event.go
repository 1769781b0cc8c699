package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/types"
)

type GestureEventRepo interface {
	Create(ctx context.Context, tx *gorm.DB, event *types.GestureEvent) error
	ListByPair(ctx context.Context, tx *gorm.DB, learnerID, factID uuid.UUID, limit int) ([]*types.GestureEvent, error)
}

type gestureEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGestureEventRepo(db *gorm.DB, baseLog *logger.Logger) GestureEventRepo {
	return &gestureEventRepo{
		db:  db,
		log: baseLog.With("repo", "GestureEventRepo"),
	}
}

func (r *gestureEventRepo) Create(ctx context.Context, tx *gorm.DB, event *types.GestureEvent) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	return mapWriteError("create gesture event", transaction.WithContext(ctx).Create(event).Error)
}

func (r *gestureEventRepo) ListByPair(ctx context.Context, tx *gorm.DB, learnerID, factID uuid.UUID, limit int) ([]*types.GestureEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if learnerID == uuid.Nil || factID == uuid.Nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	var out []*types.GestureEvent
	err := transaction.WithContext(ctx).
		Where("learner_id = ? AND fact_id = ?", learnerID, factID).
		Order("occurred_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
