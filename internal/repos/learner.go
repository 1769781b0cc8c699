package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/types"
)

type LearnerRepo interface {
	Create(ctx context.Context, tx *gorm.DB, learner *types.Learner) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Learner, error)
	List(ctx context.Context, tx *gorm.DB, limit int) ([]*types.Learner, error)
}

type learnerRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLearnerRepo(db *gorm.DB, baseLog *logger.Logger) LearnerRepo {
	return &learnerRepo{
		db:  db,
		log: baseLog.With("repo", "LearnerRepo"),
	}
}

func (r *learnerRepo) Create(ctx context.Context, tx *gorm.DB, learner *types.Learner) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if learner.ID == uuid.Nil {
		learner.ID = uuid.New()
	}
	return mapWriteError("create learner", transaction.WithContext(ctx).Create(learner).Error)
}

func (r *learnerRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Learner, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.Learner
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
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

func (r *learnerRepo) List(ctx context.Context, tx *gorm.DB, limit int) ([]*types.Learner, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 100
	}
	var out []*types.Learner
	err := transaction.WithContext(ctx).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
