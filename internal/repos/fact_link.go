package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/types"
)

type FactLinkRepo interface {
	Create(ctx context.Context, tx *gorm.DB, link *types.FactLink) error
	// ListForFact returns links where the fact sits on either side.
	ListForFact(ctx context.Context, tx *gorm.DB, factID uuid.UUID) ([]*types.FactLink, error)
}

type factLinkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFactLinkRepo(db *gorm.DB, baseLog *logger.Logger) FactLinkRepo {
	return &factLinkRepo{
		db:  db,
		log: baseLog.With("repo", "FactLinkRepo"),
	}
}

func (r *factLinkRepo) Create(ctx context.Context, tx *gorm.DB, link *types.FactLink) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}
	return mapWriteError("create fact link", transaction.WithContext(ctx).Create(link).Error)
}

func (r *factLinkRepo) ListForFact(ctx context.Context, tx *gorm.DB, factID uuid.UUID) ([]*types.FactLink, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if factID == uuid.Nil {
		return nil, nil
	}
	var out []*types.FactLink
	err := transaction.WithContext(ctx).
		Where("fact_id = ? OR related_fact_id = ?", factID, factID).
		Order("score DESC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
