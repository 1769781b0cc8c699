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

type VideoScriptRepo interface {
	// Upsert keeps one script per fact; regenerating replaces it.
	Upsert(ctx context.Context, tx *gorm.DB, script *types.VideoScript) error
	GetByFactID(ctx context.Context, tx *gorm.DB, factID uuid.UUID) (*types.VideoScript, error)
	// ListByFactIDs batch-loads scripts for feed hydration. Facts without a
	// generated script are simply absent from the result.
	ListByFactIDs(ctx context.Context, tx *gorm.DB, factIDs []uuid.UUID) ([]*types.VideoScript, error)
}

type videoScriptRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewVideoScriptRepo(db *gorm.DB, baseLog *logger.Logger) VideoScriptRepo {
	return &videoScriptRepo{
		db:  db,
		log: baseLog.With("repo", "VideoScriptRepo"),
	}
}

func (r *videoScriptRepo) Upsert(ctx context.Context, tx *gorm.DB, script *types.VideoScript) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if script.FactID == uuid.Nil {
		return nil
	}
	if script.ID == uuid.Nil {
		script.ID = uuid.New()
	}
	script.UpdatedAt = time.Now().UTC()
	err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "fact_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"hook", "body", "repeat_phrase", "bg_suggestion", "audio_vibe", "poster_uri", "audio_uri", "updated_at",
			}),
		}).
		Create(script).Error
	return mapWriteError("upsert video script", err)
}

func (r *videoScriptRepo) ListByFactIDs(ctx context.Context, tx *gorm.DB, factIDs []uuid.UUID) ([]*types.VideoScript, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(factIDs) == 0 {
		return nil, nil
	}
	var out []*types.VideoScript
	err := transaction.WithContext(ctx).
		Where("fact_id IN ?", factIDs).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *videoScriptRepo) GetByFactID(ctx context.Context, tx *gorm.DB, factID uuid.UUID) (*types.VideoScript, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if factID == uuid.Nil {
		return nil, nil
	}
	var row types.VideoScript
	err := transaction.WithContext(ctx).
		Where("fact_id = ?", factID).
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
