package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dewiapp/dewi-backend/internal/domain"
	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/repos"
	"github.com/dewiapp/dewi-backend/internal/types"
)

const maxDisplayNameRunes = 80

type LearnerService interface {
	Create(ctx context.Context, displayName string) (*types.Learner, error)
	Get(ctx context.Context, learnerID uuid.UUID) (*types.Learner, error)
	List(ctx context.Context, limit int) ([]*types.Learner, error)
}

type learnerService struct {
	db          *gorm.DB
	log         *logger.Logger
	learnerRepo repos.LearnerRepo
}

func NewLearnerService(db *gorm.DB, baseLog *logger.Logger, learnerRepo repos.LearnerRepo) LearnerService {
	return &learnerService{
		db:          db,
		log:         baseLog.With("service", "LearnerService"),
		learnerRepo: learnerRepo,
	}
}

func (s *learnerService) Create(ctx context.Context, displayName string) (*types.Learner, error) {
	name := strings.Join(strings.Fields(displayName), " ")
	if name == "" {
		return nil, domain.NewValidation("display_name", "display_name is required")
	}
	if len([]rune(name)) > maxDisplayNameRunes {
		return nil, domain.NewValidation("display_name", fmt.Sprintf("display_name exceeds %d characters", maxDisplayNameRunes))
	}
	learner := &types.Learner{DisplayName: name}
	if err := s.learnerRepo.Create(ctx, nil, learner); err != nil {
		return nil, err
	}
	s.log.Info("Learner created", "learner_id", learner.ID)
	return learner, nil
}

func (s *learnerService) Get(ctx context.Context, learnerID uuid.UUID) (*types.Learner, error) {
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
	return learner, nil
}

func (s *learnerService) List(ctx context.Context, limit int) ([]*types.Learner, error) {
	return s.learnerRepo.List(ctx, nil, limit)
}
