package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/types"
)

type SourceRepo interface {
	Create(ctx context.Context, tx *gorm.DB, source *types.Source) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Source, error)
	// GetByLearnerAndSHA finds the prior submission of identical content, if
	// any. Nil result means the content is new for this learner.
	GetByLearnerAndSHA(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID, contentSHA string) (*types.Source, error)
	ListByLearner(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID, limit int) ([]*types.Source, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
}

type sourceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSourceRepo(db *gorm.DB, baseLog *logger.Logger) SourceRepo {
	return &sourceRepo{
		db:  db,
		log: baseLog.With("repo", "SourceRepo"),
	}
}

func (r *sourceRepo) Create(ctx context.Context, tx *gorm.DB, source *types.Source) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if source.ID == uuid.Nil {
		source.ID = uuid.New()
	}
	return mapWriteError("create source", transaction.WithContext(ctx).Create(source).Error)
}

func (r *sourceRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Source, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.Source
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

func (r *sourceRepo) GetByLearnerAndSHA(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID, contentSHA string) (*types.Source, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if learnerID == uuid.Nil || contentSHA == "" {
		return nil, nil
	}
	var row types.Source
	err := transaction.WithContext(ctx).
		Where("learner_id = ? AND content_sha = ?", learnerID, contentSHA).
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

func (r *sourceRepo) ListByLearner(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID, limit int) ([]*types.Source, error) {
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
	var out []*types.Source
	err := transaction.WithContext(ctx).
		Where("learner_id = ?", learnerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sourceRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return transaction.WithContext(ctx).
		Model(&types.Source{}).
		Where("id = ?", id).
		Updates(updates).Error
}
