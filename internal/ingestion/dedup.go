package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/dewiapp/dewi-backend/internal/domain"
	"github.com/dewiapp/dewi-backend/internal/pkg/locks"
	"github.com/dewiapp/dewi-backend/internal/types"
)

// Embedder turns fact text into vectors. Implementations live in platform.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorMatch is one nearest-neighbor hit from the index.
type VectorMatch struct {
	ID    uuid.UUID
	Score float64
}

// VectorIndex is the similarity-index surface the deduplicator needs.
type VectorIndex interface {
	UpsertVector(ctx context.Context, id uuid.UUID, vec []float32, topic string) error
	QueryNearest(ctx context.Context, vec []float32, topic string, topK int) ([]VectorMatch, error)
}

// FactSink persists committed facts and their similarity links.
type FactSink interface {
	CreateFact(ctx context.Context, fact *types.Fact) error
	CreateFactLink(ctx context.Context, link *types.FactLink) error
}

// Decision records how the deduplicator settled one candidate.
type Decision int

const (
	// DecisionCommitted means the candidate was novel and stored as a new fact.
	DecisionCommitted Decision = iota + 1
	// DecisionMerged means a near-duplicate already exists; nothing was stored.
	DecisionMerged
	// DecisionRelated means the candidate was stored and linked to its nearest
	// neighbor in the similarity middle band.
	DecisionRelated
)

var decisionNames = [...]string{"committed", "merged", "related"}

func (d Decision) String() string {
	if d < DecisionCommitted || d > DecisionRelated {
		return fmt.Sprintf("Decision(%d)", int(d))
	}
	return decisionNames[d-1]
}

// Outcome is the result of committing one candidate.
type Outcome struct {
	Decision Decision
	// Fact is the stored row for committed and related decisions, nil for merged.
	Fact *types.Fact
	// NearestID is the closest existing fact considered, when one was found.
	NearestID uuid.UUID
	// Score is the similarity against NearestID.
	Score float64
}

// DedupConfig tunes the two-threshold duplicate policy.
type DedupConfig struct {
	// HighThreshold and above is a duplicate: discard, point at the original.
	HighThreshold float64
	// LowThreshold up to HighThreshold is the related band: commit and link.
	LowThreshold float64
	// TopicScope confines nearest-neighbor queries to the candidate's topic.
	TopicScope bool
	TopK       int
	LockWait   time.Duration
}

func DefaultDedupConfig() DedupConfig {
	return DedupConfig{HighThreshold: 0.90, LowThreshold: 0.75, TopicScope: true, TopK: 5, LockWait: 5 * time.Second}
}

func (c DedupConfig) Validate() error {
	switch {
	case c.HighThreshold <= 0 || c.HighThreshold > 1:
		return fmt.Errorf("dedup config: high threshold %v out of (0,1]", c.HighThreshold)
	case c.LowThreshold < 0 || c.LowThreshold >= c.HighThreshold:
		return fmt.Errorf("dedup config: low threshold %v must sit below high %v", c.LowThreshold, c.HighThreshold)
	case c.TopK < 1:
		return fmt.Errorf("dedup config: topK %d must be positive", c.TopK)
	case c.LockWait <= 0:
		return fmt.Errorf("dedup config: lock wait %v must be positive", c.LockWait)
	}
	return nil
}

// Deduplicator settles fact candidates against the existing corpus. The
// query-nearest-then-commit window runs inside a per-topic critical section
// so two concurrent uploads of the same claim cannot both pass the duplicate
// check; a unique-violation surfacing as a race conflict anyway gets exactly
// one fresh retry before the error propagates.
type Deduplicator struct {
	cfg   DedupConfig
	index VectorIndex
	sink  FactSink
	locks *locks.KeyedMutex
}

func NewDeduplicator(cfg DedupConfig, index VectorIndex, sink FactSink) (*Deduplicator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Deduplicator{cfg: cfg, index: index, sink: sink, locks: locks.NewKeyedMutex()}, nil
}

// Commit runs the duplicate policy for one sanitized candidate and persists
// the result. vec must be the embedding of cand.Text.
func (d *Deduplicator) Commit(ctx context.Context, cand FactCandidate, topic string, sourceID uuid.UUID, vec []float32) (Outcome, error) {
	scope := topic
	if !d.cfg.TopicScope {
		scope = ""
	}

	unlock, err := d.locks.LockWithin(ctx, "topic:"+scope, d.cfg.LockWait)
	if err != nil {
		if errors.Is(err, locks.ErrWaitExceeded) {
			return Outcome{}, fmt.Errorf("dedup: topic %q busy: %w", scope, domain.ErrRaceConflict)
		}
		return Outcome{}, fmt.Errorf("dedup: acquire topic lock: %w", err)
	}
	defer unlock()

	out, err := d.settle(ctx, cand, topic, scope, sourceID, vec)
	if errors.Is(err, domain.ErrRaceConflict) {
		out, err = d.settle(ctx, cand, topic, scope, sourceID, vec)
	}
	return out, err
}

func (d *Deduplicator) settle(ctx context.Context, cand FactCandidate, topic, scope string, sourceID uuid.UUID, vec []float32) (Outcome, error) {
	matches, err := d.index.QueryNearest(ctx, vec, scope, d.cfg.TopK)
	if err != nil {
		return Outcome{}, fmt.Errorf("dedup: query nearest: %w", err)
	}

	var best VectorMatch
	for _, m := range matches {
		if m.Score > best.Score {
			best = m
		}
	}

	if best.ID != uuid.Nil && best.Score >= d.cfg.HighThreshold {
		return Outcome{Decision: DecisionMerged, NearestID: best.ID, Score: best.Score}, nil
	}

	fact, err := buildFact(cand, topic, sourceID, vec)
	if err != nil {
		return Outcome{}, err
	}
	if err := d.sink.CreateFact(ctx, fact); err != nil {
		return Outcome{}, fmt.Errorf("dedup: create fact: %w", err)
	}
	if err := d.index.UpsertVector(ctx, fact.ID, vec, scope); err != nil {
		return Outcome{}, fmt.Errorf("dedup: index fact %s: %w", fact.ID, err)
	}

	out := Outcome{Decision: DecisionCommitted, Fact: fact}
	if best.ID != uuid.Nil && best.Score >= d.cfg.LowThreshold {
		link := &types.FactLink{FactID: fact.ID, RelatedFactID: best.ID, Score: best.Score}
		if err := d.sink.CreateFactLink(ctx, link); err != nil {
			return Outcome{}, fmt.Errorf("dedup: link fact %s to %s: %w", fact.ID, best.ID, err)
		}
		out.Decision = DecisionRelated
		out.NearestID = best.ID
		out.Score = best.Score
	}
	return out, nil
}

func buildFact(cand FactCandidate, topic string, sourceID uuid.UUID, vec []float32) (*types.Fact, error) {
	embJSON, err := json.Marshal(vec)
	if err != nil {
		return nil, fmt.Errorf("dedup: encode embedding: %w", err)
	}
	fact := &types.Fact{
		ID:        uuid.New(),
		SourceID:  sourceID,
		Text:      cand.Text,
		Topic:     topic,
		Embedding: datatypes.JSON(embJSON),
	}
	if len(cand.Keywords) > 0 {
		kwJSON, err := json.Marshal(cand.Keywords)
		if err != nil {
			return nil, fmt.Errorf("dedup: encode keywords: %w", err)
		}
		fact.Keywords = datatypes.JSON(kwJSON)
	}
	return fact, nil
}
