package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dewiapp/dewi-backend/internal/domain"
	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/repos"
	"github.com/dewiapp/dewi-backend/internal/types"
)

// VectorDeleter removes fact vectors from the similarity index when facts
// retire. pinecone.VectorStore and the qdrant store satisfy it.
type VectorDeleter interface {
	DeleteIDs(ctx context.Context, namespace string, ids []string) error
}

// RelatedFact is one similarity neighbor of a fact.
type RelatedFact struct {
	Fact  *types.Fact `json:"fact"`
	Score float64     `json:"score"`
}

type FactService interface {
	// Get returns the fact, following merge redirects to the surviving fact.
	Get(ctx context.Context, factID uuid.UUID) (*types.Fact, error)
	ListByTopic(ctx context.Context, topic string, limit int) ([]*types.Fact, error)
	ListBySource(ctx context.Context, sourceID uuid.UUID) ([]*types.Fact, error)
	// Related returns the fact's similarity-linked neighbors, strongest first,
	// retired neighbors excluded.
	Related(ctx context.Context, factID uuid.UUID, limit int) ([]RelatedFact, error)
	// Retire soft-retires a fact and removes its vector from the index. With
	// mergedInto set the fact is recorded as a duplicate of the target and
	// future gestures against it redirect there.
	Retire(ctx context.Context, factID uuid.UUID, mergedInto *uuid.UUID) error
}

type factService struct {
	log      *logger.Logger
	factRepo repos.FactRepo
	linkRepo repos.FactLinkRepo
	vectors  VectorDeleter
}

func NewFactService(
	baseLog *logger.Logger,
	factRepo repos.FactRepo,
	linkRepo repos.FactLinkRepo,
	vectors VectorDeleter,
) FactService {
	return &factService{
		log:      baseLog.With("service", "FactService"),
		factRepo: factRepo,
		linkRepo: linkRepo,
		vectors:  vectors,
	}
}

// resolveActiveFact loads a fact and follows merge redirects to the surviving
// fact. Retired facts that were not merged reject the operation.
func resolveActiveFact(ctx context.Context, factRepo repos.FactRepo, factID uuid.UUID) (*types.Fact, error) {
	id := factID
	for hop := 0; hop <= maxMergeHops; hop++ {
		fact, err := factRepo.GetByID(ctx, nil, id)
		if err != nil {
			return nil, err
		}
		if fact == nil {
			return nil, fmt.Errorf("fact %s: %w", id, domain.ErrNotFound)
		}
		if fact.MergedIntoID != nil {
			id = *fact.MergedIntoID
			continue
		}
		if fact.RetiredAt != nil {
			return nil, domain.NewValidation("fact_id", fmt.Sprintf("fact %s is retired", fact.ID))
		}
		return fact, nil
	}
	return nil, fmt.Errorf("fact %s: merge chain deeper than %d hops", factID, maxMergeHops)
}

func (s *factService) Get(ctx context.Context, factID uuid.UUID) (*types.Fact, error) {
	if factID == uuid.Nil {
		return nil, domain.NewValidation("fact_id", "fact_id is required")
	}
	return resolveActiveFact(ctx, s.factRepo, factID)
}

func (s *factService) ListByTopic(ctx context.Context, topic string, limit int) ([]*types.Fact, error) {
	normalized := NormalizeTopic(topic)
	if normalized == "" {
		return nil, domain.NewValidation("topic", "topic is required")
	}
	return s.factRepo.ListByTopic(ctx, nil, normalized, limit)
}

func (s *factService) ListBySource(ctx context.Context, sourceID uuid.UUID) ([]*types.Fact, error) {
	if sourceID == uuid.Nil {
		return nil, domain.NewValidation("source_id", "source_id is required")
	}
	return s.factRepo.ListBySource(ctx, nil, sourceID)
}

func (s *factService) Related(ctx context.Context, factID uuid.UUID, limit int) ([]RelatedFact, error) {
	fact, err := s.Get(ctx, factID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	links, err := s.linkRepo.ListForFact(ctx, nil, fact.ID)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, nil
	}

	neighborIDs := make([]uuid.UUID, 0, len(links))
	scoreByID := make(map[uuid.UUID]float64, len(links))
	for _, link := range links {
		other := link.RelatedFactID
		if other == fact.ID {
			other = link.FactID
		}
		if _, seen := scoreByID[other]; seen && scoreByID[other] >= link.Score {
			continue
		}
		if _, seen := scoreByID[other]; !seen {
			neighborIDs = append(neighborIDs, other)
		}
		scoreByID[other] = link.Score
	}

	neighbors, err := s.factRepo.GetByIDs(ctx, nil, neighborIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*types.Fact, len(neighbors))
	for _, n := range neighbors {
		if !n.Retired() {
			byID[n.ID] = n
		}
	}

	// Links came back strongest first; keep that order.
	out := make([]RelatedFact, 0, len(neighborIDs))
	for _, id := range neighborIDs {
		n, ok := byID[id]
		if !ok {
			continue
		}
		out = append(out, RelatedFact{Fact: n, Score: scoreByID[id]})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *factService) Retire(ctx context.Context, factID uuid.UUID, mergedInto *uuid.UUID) error {
	if factID == uuid.Nil {
		return domain.NewValidation("fact_id", "fact_id is required")
	}
	fact, err := s.factRepo.GetByID(ctx, nil, factID)
	if err != nil {
		return err
	}
	if fact == nil {
		return fmt.Errorf("fact %s: %w", factID, domain.ErrNotFound)
	}
	if fact.Retired() {
		return domain.NewValidation("fact_id", fmt.Sprintf("fact %s is already retired", factID))
	}
	if mergedInto != nil {
		if *mergedInto == factID {
			return domain.NewValidation("merged_into", "a fact cannot merge into itself")
		}
		if _, err := resolveActiveFact(ctx, s.factRepo, *mergedInto); err != nil {
			return err
		}
	}

	// The index entry goes first: a retired fact must never win a dedup
	// query, so an index that cannot drop it blocks the retire.
	if s.vectors != nil {
		if err := s.vectors.DeleteIDs(ctx, VectorNamespace, []string{factID.String()}); err != nil {
			return domain.NewCollaborator("vector_store", err)
		}
	}
	if err := s.factRepo.Retire(ctx, nil, factID, mergedInto); err != nil {
		return err
	}

	if mergedInto != nil {
		s.log.Info("Fact merged", "fact_id", factID, "merged_into", *mergedInto)
	} else {
		s.log.Info("Fact retired", "fact_id", factID)
	}
	return nil
}
