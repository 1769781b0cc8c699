// Package services holds the application services between HTTP handlers and
// the storage/pipeline layers: submission intake, gesture application, feed
// assembly and script generation.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dewiapp/dewi-backend/internal/domain"
	"github.com/dewiapp/dewi-backend/internal/ingestion"
	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/platform/openai"
	"github.com/dewiapp/dewi-backend/internal/platform/pinecone"
	"github.com/dewiapp/dewi-backend/internal/repos"
	"github.com/dewiapp/dewi-backend/internal/types"
)

// VectorNamespace scopes all fact vectors in the shared index.
const VectorNamespace = "facts"

const extractionSystemPrompt = `You extract atomic facts from study material.

Rules:
- One fact is ONE self-contained claim. Split compound statements.
- Name the subject explicitly in every fact. Never open with a pronoun
  (it, this, they, he, she); the fact must stand alone out of context.
- Keep each fact under 280 characters, ideally one sentence.
- Only state what the text supports. No outside knowledge, no opinions.
- Skip filler, anecdotes, and meta commentary. A chunk with nothing
  factual yields an empty list.
- keywords: 1 to 5 lowercase search terms per fact.`

var factListSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"properties": map[string]any{
		"facts": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"text":     map[string]any{"type": "string"},
					"keywords": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				},
				"required": []string{"text", "keywords"},
			},
		},
	},
	"required": []string{"facts"},
}

type factExtractor struct {
	ai  openai.Client
	log *logger.Logger
}

// NewFactExtractor adapts the OpenAI client to the pipeline's extraction
// surface.
func NewFactExtractor(ai openai.Client, baseLog *logger.Logger) ingestion.Extractor {
	return &factExtractor{ai: ai, log: baseLog.With("component", "fact_extractor")}
}

func (e *factExtractor) ExtractFacts(ctx context.Context, chunkText, topic string) ([]ingestion.FactCandidate, error) {
	var user strings.Builder
	if topic != "" {
		fmt.Fprintf(&user, "Topic: %s\n\n", topic)
	}
	user.WriteString("Material:\n")
	user.WriteString(chunkText)

	raw, err := e.ai.GenerateJSON(ctx, extractionSystemPrompt, user.String(), "fact_list", factListSchema)
	if err != nil {
		return nil, domain.NewCollaborator("openai", err)
	}

	var out struct {
		Facts []ingestion.FactCandidate `json:"facts"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, domain.NewCollaborator("openai", fmt.Errorf("decode fact list: %w", err))
	}
	return out.Facts, nil
}

type openaiEmbedder struct {
	ai openai.Client
}

// NewEmbedder adapts the OpenAI client to the pipeline's embedding surface.
func NewEmbedder(ai openai.Client) ingestion.Embedder {
	return &openaiEmbedder{ai: ai}
}

func (e *openaiEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := e.ai.Embed(ctx, texts)
	if err != nil {
		return nil, domain.NewCollaborator("openai", err)
	}
	return vecs, nil
}

type topicVectorIndex struct {
	store     pinecone.VectorStore
	namespace string
}

// NewVectorIndex adapts a vector store to the deduplicator's surface. Topic
// lands in vector metadata so nearest-neighbor queries can stay
// topic-scoped.
func NewVectorIndex(store pinecone.VectorStore) ingestion.VectorIndex {
	return &topicVectorIndex{store: store, namespace: VectorNamespace}
}

func (x *topicVectorIndex) UpsertVector(ctx context.Context, id uuid.UUID, vec []float32, topic string) error {
	err := x.store.Upsert(ctx, x.namespace, []pinecone.Vector{{
		ID:       id.String(),
		Values:   vec,
		Metadata: map[string]any{"topic": topic},
	}})
	if err != nil {
		return domain.NewCollaborator("vector_store", err)
	}
	return nil
}

func (x *topicVectorIndex) QueryNearest(ctx context.Context, vec []float32, topic string, topK int) ([]ingestion.VectorMatch, error) {
	var filter map[string]any
	if topic != "" {
		filter = map[string]any{"topic": map[string]any{"$eq": topic}}
	}
	matches, err := x.store.QueryMatches(ctx, x.namespace, vec, topK, filter)
	if err != nil {
		return nil, domain.NewCollaborator("vector_store", err)
	}

	out := make([]ingestion.VectorMatch, 0, len(matches))
	for _, m := range matches {
		id, err := uuid.Parse(m.ID)
		if err != nil {
			// Foreign IDs in the namespace are not ours to dedup against.
			continue
		}
		out = append(out, ingestion.VectorMatch{ID: id, Score: m.Score})
	}
	return out, nil
}

type repoFactSink struct {
	factRepo repos.FactRepo
	linkRepo repos.FactLinkRepo
}

// NewFactSink adapts the fact repos to the deduplicator's persistence
// surface.
func NewFactSink(factRepo repos.FactRepo, linkRepo repos.FactLinkRepo) ingestion.FactSink {
	return &repoFactSink{factRepo: factRepo, linkRepo: linkRepo}
}

func (s *repoFactSink) CreateFact(ctx context.Context, fact *types.Fact) error {
	return s.factRepo.Create(ctx, nil, fact)
}

func (s *repoFactSink) CreateFactLink(ctx context.Context, link *types.FactLink) error {
	return s.linkRepo.Create(ctx, nil, link)
}
