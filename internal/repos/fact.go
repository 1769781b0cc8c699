package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/types"
)

type FactRepo interface {
	Create(ctx context.Context, tx *gorm.DB, fact *types.Fact) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Fact, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Fact, error)
	ListByTopic(ctx context.Context, tx *gorm.DB, topic string, limit int) ([]*types.Fact, error)
	// ListBySource returns every fact extracted from one source, including
	// retired ones; provenance views show the whole history.
	ListBySource(ctx context.Context, tx *gorm.DB, sourceID uuid.UUID) ([]*types.Fact, error)
	// ListUnseenByLearner returns active facts the learner has no review state
	// for yet, newest first. This is the "new" pool for queue building.
	ListUnseenByLearner(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID, limit int) ([]*types.Fact, error)
	// Retire soft-retires a fact; mergedInto marks it a duplicate of another.
	Retire(ctx context.Context, tx *gorm.DB, id uuid.UUID, mergedInto *uuid.UUID) error
	CountBySource(ctx context.Context, tx *gorm.DB, sourceID uuid.UUID) (int64, error)
}

type factRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFactRepo(db *gorm.DB, baseLog *logger.Logger) FactRepo {
	return &factRepo{
		db:  db,
		log: baseLog.With("repo", "FactRepo"),
	}
}

func (r *factRepo) Create(ctx context.Context, tx *gorm.DB, fact *types.Fact) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if fact.ID == uuid.Nil {
		fact.ID = uuid.New()
	}
	return mapWriteError("create fact", transaction.WithContext(ctx).Create(fact).Error)
}

func (r *factRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Fact, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.Fact
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

func (r *factRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Fact, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Fact
	if len(ids) == 0 {
		return out, nil
	}
	err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *factRepo) ListByTopic(ctx context.Context, tx *gorm.DB, topic string, limit int) ([]*types.Fact, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 100
	}
	var out []*types.Fact
	err := transaction.WithContext(ctx).
		Where("topic = ? AND retired_at IS NULL AND merged_into_id IS NULL", topic).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *factRepo) ListBySource(ctx context.Context, tx *gorm.DB, sourceID uuid.UUID) ([]*types.Fact, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if sourceID == uuid.Nil {
		return nil, nil
	}
	var out []*types.Fact
	err := transaction.WithContext(ctx).
		Where("source_id = ?", sourceID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *factRepo) ListUnseenByLearner(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID, limit int) ([]*types.Fact, error) {
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
	var out []*types.Fact
	err := transaction.WithContext(ctx).
		Joins("LEFT JOIN review_state rs ON rs.fact_id = facts.id AND rs.learner_id = ?", learnerID).
		Where("rs.id IS NULL AND facts.retired_at IS NULL AND facts.merged_into_id IS NULL").
		Order("facts.created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *factRepo) Retire(ctx context.Context, tx *gorm.DB, id uuid.UUID, mergedInto *uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"retired_at": now,
		"updated_at": now,
	}
	if mergedInto != nil {
		updates["merged_into_id"] = *mergedInto
	}
	return transaction.WithContext(ctx).
		Model(&types.Fact{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *factRepo) CountBySource(ctx context.Context, tx *gorm.DB, sourceID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if sourceID == uuid.Nil {
		return 0, nil
	}
	var n int64
	err := transaction.WithContext(ctx).
		Model(&types.Fact{}).
		Where("source_id = ?", sourceID).
		Count(&n).Error
	return n, err
}
